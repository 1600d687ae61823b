// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hookguard-dev/hookguard/internal/config"
	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	return cfg
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	assert.Empty(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, cfg.Lock.Timeout())
	assert.Equal(t, 3, cfg.Breaker.ConsecutiveFailures)
	assert.Equal(t, []string{"local", "web"}, cfg.Research.Enabled())
}

func TestDerivedPaths(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.DataDir = "/data/hg"
	assert.Equal(t, "/data/hg/state.json", cfg.StateFile())
	assert.Equal(t, "/data/hg/state.lock", cfg.LockFile())
	assert.Equal(t, "/data/hg/journal.jsonl", cfg.JournalFile())
	assert.Equal(t, "/data/hg/history.db", cfg.HistoryDB())
	assert.Equal(t, "/data/hg/pending-note.json", cfg.PendingNoteFile())
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "hookguard.yaml")
	body := []byte("data_dir: /tmp/hg\nbreaker:\n  consecutive_failures: 5\nresearch:\n  categories:\n    local: true\n    docs: true\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/hg", cfg.DataDir)
	assert.Equal(t, 5, cfg.Breaker.ConsecutiveFailures)
	assert.Equal(t, []string{"local", "docs"}, cfg.Research.Enabled())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, hgerr.CodeConfigLoadReadFailure, hgerr.CodeOf(err))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty data dir", func(c *config.Config) { c.DataDir = "" }, "data_dir"},
		{"zero lock timeout", func(c *config.Config) { c.Lock.TimeoutMS = 0 }, "lock.timeout_ms"},
		{"zero retry", func(c *config.Config) { c.Lock.RetryMS = 0 }, "lock.retry_ms"},
		{"breaker below one", func(c *config.Config) { c.Breaker.ConsecutiveFailures = 0 }, "breaker.consecutive_failures"},
		{"signature below one", func(c *config.Config) { c.Breaker.SignatureFailures = 0 }, "breaker.signature_failures"},
		{"soft above hard", func(c *config.Config) { c.Limits.SoftLines = 5000 }, "soft_lines"},
		{"zero edit attempts", func(c *config.Config) { c.Limits.EditAttempts = 0 }, "edit_attempts"},
		{"halt below reminder", func(c *config.Config) { c.Refusal.HaltAt = 1; c.Refusal.ReminderAt = 2 }, "refusal"},
		{"history below halt run", func(c *config.Config) { c.Refusal.BlockHistory = 2 }, "block_history"},
		{"bad burst ratio", func(c *config.Config) { c.Gaming.BurstFailureRatio = 1.5 }, "burst_failure_ratio"},
		{"unknown category", func(c *config.Config) { c.Research.Categories["psychic"] = true }, "unknown category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0].Error(), tt.want)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HOOKGUARD_LOCK_TIMEOUT_MS", "500")

	v := viper.New()
	config.SetDefaults(v)
	config.SetupEnv(v)
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Lock.Timeout())
}
