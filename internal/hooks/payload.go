// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

// Package hooks adapts the enforcement pipeline to the host agent's hook
// protocol: small single-shot processes that read a JSON payload on stdin
// and answer with an exit code. Exit 0 allows, exit 2 blocks; anything the
// runner cannot make sense of allows, because a broken hook must degrade to
// a no-op, never to a locked-up agent.
package hooks

import (
	"encoding/json"
	"io"
)

// Payload is the hook event read from stdin. Fields are event-dependent;
// absent ones stay zero.
type Payload struct {
	SessionID      string          `json:"session_id"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
	ToolResponse   json.RawMessage `json:"tool_response"`
	Prompt         string          `json:"prompt"`
	StopHookActive bool            `json:"stop_hook_active"`
	SelfReported   *int            `json:"self_reported_score,omitempty"`
}

// ParsePayload decodes one hook payload. A malformed payload returns ok =
// false; callers treat that as "nothing to do".
func ParsePayload(r io.Reader) (Payload, bool) {
	var p Payload
	dec := json.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return Payload{}, false
	}
	if p.SessionID == "" {
		p.SessionID = "unknown"
	}
	return p, true
}
