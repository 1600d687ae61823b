// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package errors_test

import (
	stderrors "errors"
	"testing"

	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	err := hgerr.New(hgerr.CodeStateTampered, "state record failed integrity check")
	assert.Equal(t, hgerr.CodeStateTampered, hgerr.CodeOf(err))
	assert.True(t, hgerr.HasCode(err, hgerr.CodeStateTampered))
	assert.False(t, hgerr.HasCode(err, hgerr.CodeStateLockTimeout))
}

func TestCodeOfPlainError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, hgerr.Code(""), hgerr.CodeOf(stderrors.New("plain")))
	assert.Equal(t, hgerr.Code(""), hgerr.CodeOf(nil))
}

func TestWrapNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, hgerr.Wrap(nil, hgerr.CodeStateWriteFailure, "ignored"))
	assert.NoError(t, hgerr.Wrapf(nil, hgerr.CodeStateWriteFailure, "ignored %d", 1))
	assert.NoError(t, hgerr.With(nil, hgerr.Field("k", "v")))
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("disk full")
	err := hgerr.Wrap(cause, hgerr.CodeStateWriteFailure, "persisting state")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, hgerr.CodeStateWriteFailure, hgerr.CodeOf(err))
}

func TestFieldsOf(t *testing.T) {
	t.Parallel()

	err := hgerr.New(hgerr.CodeGatePathDenied, "blocked path",
		hgerr.FieldTool("Edit"),
		hgerr.FieldPath("/etc/shadow"),
	)
	fields := hgerr.FieldsOf(err)
	require.NotNil(t, fields)
	assert.Equal(t, "Edit", fields["tool"])
	assert.Equal(t, "/etc/shadow", fields["path"])
}

func TestReasonPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"lock timeout", hgerr.New(hgerr.CodeStateLockTimeout, "x"), hgerr.IsLockTimeout, true},
		{"tampered", hgerr.New(hgerr.CodeStateTampered, "x"), hgerr.IsTampered, true},
		{"denied path", hgerr.New(hgerr.CodeGatePathDenied, "x"), hgerr.IsDenied, true},
		{"tripped breaker is denied", hgerr.New(hgerr.CodeGateBreakerTripped, "x"), hgerr.IsDenied, true},
		{"halted is denied", hgerr.New(hgerr.CodeGateHalted, "x"), hgerr.IsDenied, true},
		{"invalid payload", hgerr.New(hgerr.CodeHookPayloadInvalid, "x"), hgerr.IsInvalidInput, true},
		{"not found section", hgerr.New(hgerr.CodeStateSectionUnknown, "x"), hgerr.IsNotFound, true},
		{"timeout is not tampered", hgerr.New(hgerr.CodeStateLockTimeout, "x"), hgerr.IsTampered, false},
		{"nil is nothing", nil, hgerr.IsDenied, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.pred(tt.err))
		})
	}
}
