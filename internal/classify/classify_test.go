// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package classify_test

import (
	"testing"

	"github.com/hookguard-dev/hookguard/internal/classify"
	"github.com/stretchr/testify/assert"
)

func TestClassifyKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prompt string
		want   classify.Kind
	}{
		{"empty", "", classify.KindPassthrough},
		{"punctuation only", "...", classify.KindPassthrough},
		{"acknowledgement", "ok", classify.KindPassthrough},
		{"thanks", "thanks!", classify.KindPassthrough},
		{"go ahead", "go ahead", classify.KindPassthrough},
		{"slash command", "/compact", classify.KindPassthrough},
		{"trailing question mark", "the build is green now?", classify.KindQuestion},
		{"leading interrogative", "what does this function return", classify.KindQuestion},
		{"modal verb question", "could you maybe update the code?", classify.KindQuestion},
		{"explain", "explain the locking strategy", classify.KindQuestion},
		{"plain task", "fix the login bug", classify.KindTask},
		{"task with noun", "refactor the session manager", classify.KindTask},
		{"big task everything", "fix everything in the parser", classify.KindBigTask},
		{"big task rewrite", "rewrite the storage layer", classify.KindBigTask},
		{"big task architecture", "update the architecture for multi-tenant use", classify.KindBigTask},
		{"no task verb", "the weather is nice today", classify.KindPassthrough},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := classify.Classify(tt.prompt, "")
			assert.Equal(t, tt.want, res.Kind)
		})
	}
}

// Question syntax beats embedded action verbs. This ordering is a contract:
// do not "fix" it without flagging the behavior change.
func TestQuestionBeatsTask(t *testing.T) {
	t.Parallel()

	res := classify.Classify("could you maybe update the code?", "")
	assert.Equal(t, classify.KindQuestion, res.Kind)
	assert.Empty(t, res.Requirements)
}

func TestRequirementExtraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		prompt    string
		wantReqs  []string
		wantFresh bool
	}{
		{"research first", "fix the bug, research it first", []string{"research"}, false},
		{"also research", "add caching, also research the eviction policy", []string{"research"}, false},
		{"plan", "implement the exporter, make a plan before you start", []string{"plan"}, false},
		{"tests", "fix the race and add tests", []string{"test"}, false},
		{"commit is fresh start", "commit the fix", []string{"commit"}, true},
		{"start loop is fresh start", "start the structured loop and fix the parser", []string{"loop"}, true},
		{"none", "fix the typo", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := classify.Classify(tt.prompt, "")
			assert.Equal(t, tt.wantReqs, res.Requirements)
			assert.Equal(t, tt.wantFresh, res.FreshStart)
		})
	}
}

func TestTriggerDetection(t *testing.T) {
	t.Parallel()

	res := classify.Classify("just make a quick fix to the handler", "")
	words := make([]string, 0, len(res.Triggers))
	for _, hit := range res.Triggers {
		assert.NotEmpty(t, hit.Rule)
		assert.NotEmpty(t, hit.Warning)
		words = append(words, hit.Word)
	}
	assert.Contains(t, words, "quick")
	assert.Contains(t, words, "just")
}

func TestFrustrationSignals(t *testing.T) {
	t.Parallel()

	t.Run("all caps", func(t *testing.T) {
		t.Parallel()
		res := classify.Classify("FIX THE LOGIN BUG NOW", "")
		assert.True(t, res.Frustration.AllCaps)
	})

	t.Run("short caps exempt", func(t *testing.T) {
		t.Parallel()
		res := classify.Classify("OK", "")
		assert.False(t, res.Frustration.AllCaps)
	})

	t.Run("correction", func(t *testing.T) {
		t.Parallel()
		res := classify.Classify("no, that's wrong, fix the OTHER handler", "")
		assert.True(t, res.Frustration.Correction)
	})

	t.Run("repeated instruction", func(t *testing.T) {
		t.Parallel()
		res := classify.Classify("Fix the login bug.", "fix the login bug")
		assert.True(t, res.Frustration.RepeatedInstruction)
	})

	t.Run("different instruction", func(t *testing.T) {
		t.Parallel()
		res := classify.Classify("fix the logout bug", "fix the login bug")
		assert.False(t, res.Frustration.RepeatedInstruction)
	})
}

func TestResearchOnly(t *testing.T) {
	t.Parallel()

	res := classify.Classify("investigate the flaky test before changing anything", "")
	assert.Equal(t, classify.KindTask, res.Kind)
	assert.True(t, res.ResearchOnly)
}

func TestBareLoopStartIsTask(t *testing.T) {
	t.Parallel()

	res := classify.Classify("start the loop", "")
	assert.Equal(t, classify.KindTask, res.Kind)
	assert.Contains(t, res.Requirements, classify.RequirementLoop)
	assert.True(t, res.FreshStart)
}
