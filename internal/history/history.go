// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

// Package history keeps long-horizon, cross-session aggregates: one row per
// completed session. It backs the self-rating anomaly detection — a run of
// identical scores or implausibly low variance across sessions is a gaming
// signal, and it can only be seen across session boundaries.
package history

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
)

// Summary is one completed session.
type Summary struct {
	ID               string
	SessionID        string
	StartedAt        time.Time
	EndedAt          time.Time
	Score            int
	UniqueViolations int
	Flags            string
}

// Store persists session summaries in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, hgerr.Wrapf(err, hgerr.CodeHistoryOpenFailure, "opening history db %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, hgerr.Wrap(err, hgerr.CodeHistoryOpenFailure, "pinging history db")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, hgerr.Wrap(err, hgerr.CodeHistoryOpenFailure, "migrating history db")
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS session_summaries (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	started_at        TEXT NOT NULL,
	ended_at          TEXT NOT NULL,
	score             INTEGER NOT NULL,
	unique_violations INTEGER NOT NULL,
	flags             TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_session_summaries_ended
	ON session_summaries(ended_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Append records one session summary.
func (s *Store) Append(ctx context.Context, sum *Summary) error {
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}

	const q = `INSERT INTO session_summaries
		(id, session_id, started_at, ended_at, score, unique_violations, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		sum.ID, sum.SessionID,
		sum.StartedAt.UTC().Format(time.RFC3339Nano),
		sum.EndedAt.UTC().Format(time.RFC3339Nano),
		sum.Score, sum.UniqueViolations, sum.Flags,
	)
	if err != nil {
		return hgerr.Wrap(err, hgerr.CodeHistoryWriteFailure, "inserting session summary")
	}
	return nil
}

// Recent returns the latest n summaries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]*Summary, error) {
	const q = `SELECT id, session_id, started_at, ended_at, score, unique_violations, flags
		FROM session_summaries ORDER BY ended_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, hgerr.Wrap(err, hgerr.CodeHistoryQueryFailure, "querying session summaries")
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var sum Summary
		var started, ended string
		if err := rows.Scan(&sum.ID, &sum.SessionID, &started, &ended,
			&sum.Score, &sum.UniqueViolations, &sum.Flags); err != nil {
			return nil, hgerr.Wrap(err, hgerr.CodeHistoryQueryFailure, "scanning session summary")
		}
		sum.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		sum.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
		out = append(out, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, hgerr.Wrap(err, hgerr.CodeHistoryQueryFailure, "iterating session summaries")
	}
	return out, nil
}

// RatingAnomaly describes a suspicious cross-session score pattern.
type RatingAnomaly struct {
	Kind   string // "identical_run" or "low_variance"
	Detail string
}

// identicalRunThreshold and varianceWindow bound the anomaly scan. These work
// on derived scores, so a legitimate streak of clean sessions can trigger the
// identical-run flag; it is a flag for review, not a block.
const (
	identicalRunThreshold = 5
	varianceWindow        = 10
	minStdDev             = 2.0
)

// DetectRatingAnomalies scans recent summaries for suspiciously uniform
// scores.
func (s *Store) DetectRatingAnomalies(ctx context.Context) ([]RatingAnomaly, error) {
	recent, err := s.Recent(ctx, varianceWindow)
	if err != nil {
		return nil, err
	}

	var anomalies []RatingAnomaly

	run := 1
	for i := 1; i < len(recent); i++ {
		if recent[i].Score == recent[i-1].Score {
			run++
			if run == identicalRunThreshold {
				anomalies = append(anomalies, RatingAnomaly{
					Kind:   "identical_run",
					Detail: "5 or more consecutive sessions share one score",
				})
				break
			}
		} else {
			run = 1
		}
	}

	if len(recent) == varianceWindow {
		if stddev(recent) < minStdDev {
			anomalies = append(anomalies, RatingAnomaly{
				Kind:   "low_variance",
				Detail: "score variance across recent sessions is implausibly low",
			})
		}
	}

	return anomalies, nil
}

func stddev(sums []*Summary) float64 {
	if len(sums) == 0 {
		return 0
	}
	var mean float64
	for _, s := range sums {
		mean += float64(s.Score)
	}
	mean /= float64(len(sums))

	var variance float64
	for _, s := range sums {
		d := float64(s.Score) - mean
		variance += d * d
	}
	variance /= float64(len(sums))
	return math.Sqrt(variance)
}
