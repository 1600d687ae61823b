// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package state

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
)

// envelope is the on-disk format: the serialized state plus a keyed integrity
// code over exactly those bytes. The MAC is verified against the raw stored
// bytes, never against a re-marshaled copy, so formatting differences cannot
// produce false tamper alarms.
type envelope struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
	MAC     string          `json:"mac"`
}

const envelopeVersion = 1

// encodeSigned serializes st and wraps it with an HMAC-SHA256 integrity code.
func encodeSigned(st *SessionState, key []byte) ([]byte, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, hgerr.Wrap(err, hgerr.CodeStateWriteFailure, "marshalling state")
	}

	env := envelope{
		Version: envelopeVersion,
		State:   payload,
		MAC:     computeMAC(payload, key),
	}

	// The envelope must be marshaled compactly: an indenting encoder would
	// reformat the embedded raw state bytes and the MAC would no longer
	// match what is stored.
	data, err := json.Marshal(env)
	if err != nil {
		return nil, hgerr.Wrap(err, hgerr.CodeStateWriteFailure, "marshalling state envelope")
	}
	return append(data, '\n'), nil
}

// decodeSigned parses and verifies a signed state record. A MAC mismatch or
// unparseable record returns CodeStateTampered — the caller must discard the
// record, reset to defaults, and journal the event as security-relevant.
func decodeSigned(data []byte, key []byte) (*SessionState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, hgerr.Wrap(err, hgerr.CodeStateTampered, "state envelope unparseable")
	}

	if !hmac.Equal([]byte(computeMAC(env.State, key)), []byte(env.MAC)) {
		return nil, hgerr.New(hgerr.CodeStateTampered, "state integrity code mismatch")
	}

	var st SessionState
	if err := json.Unmarshal(env.State, &st); err != nil {
		return nil, hgerr.Wrap(err, hgerr.CodeStateTampered, "state payload unparseable")
	}
	st.normalize()
	return &st, nil
}

func computeMAC(payload, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
