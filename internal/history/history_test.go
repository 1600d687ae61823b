// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package history_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hookguard-dev/hookguard/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func appendScores(t *testing.T, store *history.Store, scores ...int) {
	t.Helper()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Duration(len(scores)) * time.Hour)
	for i, score := range scores {
		err := store.Append(ctx, &history.Summary{
			SessionID: "s",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			EndedAt:   base.Add(time.Duration(i)*time.Hour + 30*time.Minute),
			Score:     score,
		})
		require.NoError(t, err)
	}
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	appendScores(t, store, 100, 90, 75)

	recent, err := store.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Newest first.
	assert.Equal(t, 75, recent[0].Score)
	assert.Equal(t, 90, recent[1].Score)
}

func TestDetectIdenticalRun(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	appendScores(t, store, 90, 90, 90, 90, 90)

	anomalies, err := store.DetectRatingAnomalies(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
	assert.Equal(t, "identical_run", anomalies[0].Kind)
}

func TestDetectLowVariance(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	appendScores(t, store, 90, 91, 90, 91, 90, 91, 90, 91, 90, 91)

	anomalies, err := store.DetectRatingAnomalies(context.Background())
	require.NoError(t, err)

	found := false
	for _, a := range anomalies {
		if a.Kind == "low_variance" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestVariedScoresAreClean(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	appendScores(t, store, 100, 75, 90, 50, 100, 25, 90, 75, 100, 50)

	anomalies, err := store.DetectRatingAnomalies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}
