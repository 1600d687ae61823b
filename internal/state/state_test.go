// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package state_test

import (
	"testing"
	"time"

	"github.com/hookguard-dev/hookguard/internal/state"
	"github.com/stretchr/testify/assert"
)

func TestRequirementsOutstanding(t *testing.T) {
	t.Parallel()

	var r state.Requirements
	r.AddRequested("research")
	r.AddRequested("plan")
	r.AddRequested("research") // duplicate ignored
	assert.Equal(t, []string{"plan", "research"}, r.Requested)

	r.MarkSatisfied("plan")
	assert.Equal(t, []string{"research"}, r.Outstanding())

	r.MarkSatisfied("research")
	assert.Empty(t, r.Outstanding())
}

func TestEnforcementBlockHistoryBounded(t *testing.T) {
	t.Parallel()

	var e state.Enforcement
	now := time.Now().UTC()
	for i := 0; i < 15; i++ {
		e.RecordBlock("sig-a", now, 10)
	}
	assert.Len(t, e.Blocks, 10)
}

func TestTrailingIdenticalRun(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := []struct {
		name string
		sigs []string
		want int
	}{
		{"empty", nil, 0},
		{"single", []string{"a"}, 1},
		{"uniform", []string{"a", "a", "a"}, 3},
		{"broken run", []string{"a", "b", "a", "a"}, 2},
		{"different tail", []string{"a", "a", "b"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var e state.Enforcement
			for _, sig := range tt.sigs {
				e.RecordBlock(sig, now, 10)
			}
			assert.Equal(t, tt.want, e.TrailingIdenticalRun())
		})
	}
}

func TestResetSectionUnknown(t *testing.T) {
	t.Parallel()

	st := state.Default()
	assert.False(t, st.ResetSection(state.Section("bogus")))
	for _, section := range state.Sections {
		assert.True(t, st.ResetSection(section), "section %s", section)
	}
}
