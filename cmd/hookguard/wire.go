// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/hookguard-dev/hookguard/internal/config"
	"github.com/hookguard-dev/hookguard/internal/gate"
	"github.com/hookguard-dev/hookguard/internal/history"
	"github.com/hookguard-dev/hookguard/internal/hooks"
	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/session"
	"github.com/hookguard-dev/hookguard/internal/state"
	"github.com/hookguard-dev/hookguard/internal/track"
	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
)

// runtime bundles the wired enforcement components behind one constructor so
// every subcommand assembles them the same way.
type runtime struct {
	cfg     *config.Config
	store   *state.Store
	journal *journal.Journal
	runner  *hooks.Runner
	history *history.Store
}

// buildRuntime assembles the enforcement stack from the resolved viper
// configuration. The history db is optional: a failure to open it degrades
// cross-session analytics, not enforcement.
func buildRuntime() (*runtime, error) {
	setupLogging()

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, hgerr.Join(errs...)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, hgerr.Wrapf(err, hgerr.CodeConfigLoadReadFailure, "creating data dir %s", cfg.DataDir)
	}
	config.WarnInsecurePermissions(cfg.DataDir)

	store := state.NewFromConfig(cfg, state.NewKeyProvider())
	jnl := journal.New(cfg.JournalFile())
	store.OnTamper = func(detail string) {
		if err := jnl.Append(journal.Entry{Kind: journal.KindTamper, Rule: "state_integrity", Detail: detail}); err != nil {
			slog.Error("journaling tamper event failed", "error", err)
		}
	}

	var hist *history.Store
	var histIface session.HistoryStore
	if h, err := history.Open(cfg.HistoryDB()); err != nil {
		slog.Warn("history db unavailable, cross-session analytics disabled", "error", err)
	} else {
		hist = h
		histIface = h
	}

	g := gate.New(cfg, store, jnl)
	tr := track.New(cfg, store, jnl)
	sm := session.New(cfg, store, jnl, histIface)

	return &runtime{
		cfg:     cfg,
		store:   store,
		journal: jnl,
		runner:  hooks.NewRunner(cfg, store, jnl, g, tr, sm),
		history: hist,
	}, nil
}

func (r *runtime) close() {
	if r.history != nil {
		_ = r.history.Close()
	}
}

// setupLogging routes slog to stderr: stdout belongs to the hook protocol.
func setupLogging() {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
