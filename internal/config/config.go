// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level hookguard configuration.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Lock     LockConfig     `mapstructure:"lock"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Refusal  RefusalConfig  `mapstructure:"refusal"`
	Gaming   GamingConfig   `mapstructure:"gaming"`
	Research ResearchConfig `mapstructure:"research"`
	Session  SessionConfig  `mapstructure:"session"`
}

// LockConfig bounds the wait on the state-file advisory lock. On timeout the
// caller fails open rather than hanging the host agent.
type LockConfig struct {
	TimeoutMS int `mapstructure:"timeout_ms"`
	RetryMS   int `mapstructure:"retry_ms"`
}

// Timeout returns the bounded lock wait as a duration.
func (l LockConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutMS) * time.Millisecond
}

// Retry returns the poll interval between lock attempts.
func (l LockConfig) Retry() time.Duration {
	return time.Duration(l.RetryMS) * time.Millisecond
}

// BreakerConfig sets the circuit-breaker trip thresholds.
type BreakerConfig struct {
	ConsecutiveFailures int `mapstructure:"consecutive_failures"`
	SignatureFailures   int `mapstructure:"signature_failures"`
}

// LimitsConfig sets file-size projection limits, the edit-attempt cap, and
// the structured-loop iteration ceiling.
type LimitsConfig struct {
	SoftLines         int `mapstructure:"soft_lines"`
	HardLines         int `mapstructure:"hard_lines"`
	MarkdownHardLines int `mapstructure:"markdown_hard_lines"`
	EditAttempts      int `mapstructure:"edit_attempts"`
	LoopIterations    int `mapstructure:"loop_iterations"`
}

// RefusalConfig controls repeated-identical-block escalation.
type RefusalConfig struct {
	ReminderAt   int `mapstructure:"reminder_at"`
	HaltAt       int `mapstructure:"halt_at"`
	BlockHistory int `mapstructure:"block_history"`
}

// GamingConfig tunes the research-gaming heuristics. These are deliberately
// configuration, not constants: false positives on genuinely fast research
// are an accepted trade-off, and operators tune rather than patch.
type GamingConfig struct {
	MinResearchWindowSec  int     `mapstructure:"min_research_window_sec"`
	IdenticalTimestampMax int     `mapstructure:"identical_timestamp_max"`
	BurstWindow           int     `mapstructure:"burst_window"`
	BurstFailureRatio     float64 `mapstructure:"burst_failure_ratio"`
}

// MinResearchWindow returns the minimum plausible span between the first and
// last research-category completion.
func (g GamingConfig) MinResearchWindow() time.Duration {
	return time.Duration(g.MinResearchWindowSec) * time.Second
}

// ResearchConfig declares which research categories the environment supports.
// A category whose capability is absent is never required by the gate.
type ResearchConfig struct {
	Categories map[string]bool `mapstructure:"categories"`
}

// Enabled returns the sorted-stable list of categories required in this
// environment.
func (r ResearchConfig) Enabled() []string {
	out := make([]string, 0, len(r.Categories))
	for _, name := range CategoryOrder {
		if r.Categories[name] {
			out = append(out, name)
		}
	}
	return out
}

// CategoryOrder fixes the reporting order of research categories.
var CategoryOrder = []string{"local", "web", "docs", "github", "memory"}

// SessionConfig controls session lifecycle behavior.
type SessionConfig struct {
	StaleLoopAgeHours int `mapstructure:"stale_loop_age_hours"`
}

// StaleLoopAge returns the age past which an active big-task loop is archived
// as abandoned at session start.
func (s SessionConfig) StaleLoopAge() time.Duration {
	return time.Duration(s.StaleLoopAgeHours) * time.Hour
}

// SetDefaults installs hookguard defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", ".hookguard")
	v.SetDefault("lock.timeout_ms", 2000)
	v.SetDefault("lock.retry_ms", 25)
	v.SetDefault("breaker.consecutive_failures", 3)
	v.SetDefault("breaker.signature_failures", 3)
	v.SetDefault("limits.soft_lines", 500)
	v.SetDefault("limits.hard_lines", 1000)
	v.SetDefault("limits.markdown_hard_lines", 2000)
	v.SetDefault("limits.edit_attempts", 3)
	v.SetDefault("limits.loop_iterations", 10)
	v.SetDefault("refusal.reminder_at", 2)
	v.SetDefault("refusal.halt_at", 3)
	v.SetDefault("refusal.block_history", 10)
	v.SetDefault("gaming.min_research_window_sec", 60)
	v.SetDefault("gaming.identical_timestamp_max", 1)
	v.SetDefault("gaming.burst_window", 10)
	v.SetDefault("gaming.burst_failure_ratio", 0.8)
	v.SetDefault("research.categories", map[string]bool{
		"local": true,
		"web":   true,
	})
	v.SetDefault("session.stale_loop_age_hours", 24)
}

// SetupEnv binds HOOKGUARD_* environment variables.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("HOOKGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper unmarshals and validates a Config from an initialized viper.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, hgerr.Errorf(hgerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Load reads configuration from the given file path (or defaults only when
// path is empty) with HOOKGUARD_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, hgerr.Errorf(hgerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found, not just the first.
func (c *Config) Validate() []error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, hgerr.New(hgerr.CodeConfigValidateInvalidValue, "config: data_dir must not be empty"))
	}
	if c.Lock.TimeoutMS <= 0 {
		errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
			"config: lock.timeout_ms must be greater than 0, got %d", c.Lock.TimeoutMS))
	}
	if c.Lock.RetryMS <= 0 {
		errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
			"config: lock.retry_ms must be greater than 0, got %d", c.Lock.RetryMS))
	}
	if c.Breaker.ConsecutiveFailures < 1 {
		errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
			"config: breaker.consecutive_failures must be at least 1, got %d", c.Breaker.ConsecutiveFailures))
	}
	if c.Breaker.SignatureFailures < 1 {
		errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
			"config: breaker.signature_failures must be at least 1, got %d", c.Breaker.SignatureFailures))
	}
	if c.Limits.SoftLines <= 0 || c.Limits.HardLines <= 0 || c.Limits.MarkdownHardLines <= 0 {
		errs = append(errs, hgerr.New(hgerr.CodeConfigValidateInvalidValue,
			"config: limits.soft_lines, limits.hard_lines, and limits.markdown_hard_lines must be greater than 0"))
	}
	if c.Limits.SoftLines > c.Limits.HardLines {
		errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
			"config: limits.soft_lines (%d) must not exceed limits.hard_lines (%d)",
			c.Limits.SoftLines, c.Limits.HardLines))
	}
	if c.Limits.EditAttempts < 1 {
		errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
			"config: limits.edit_attempts must be at least 1, got %d", c.Limits.EditAttempts))
	}
	if c.Limits.LoopIterations < 1 {
		errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
			"config: limits.loop_iterations must be at least 1, got %d", c.Limits.LoopIterations))
	}
	if c.Refusal.ReminderAt < 1 || c.Refusal.HaltAt < c.Refusal.ReminderAt {
		errs = append(errs, hgerr.New(hgerr.CodeConfigValidateInvalidValue,
			"config: refusal.reminder_at must be at least 1 and refusal.halt_at must not be below it"))
	}
	if c.Refusal.BlockHistory < c.Refusal.HaltAt {
		errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
			"config: refusal.block_history (%d) must hold at least refusal.halt_at (%d) entries",
			c.Refusal.BlockHistory, c.Refusal.HaltAt))
	}
	if c.Gaming.BurstFailureRatio <= 0 || c.Gaming.BurstFailureRatio > 1 {
		errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
			"config: gaming.burst_failure_ratio must be in (0, 1], got %g", c.Gaming.BurstFailureRatio))
	}
	for name := range c.Research.Categories {
		if !knownCategory(name) {
			errs = append(errs, hgerr.Errorf(hgerr.CodeConfigValidateInvalidValue,
				"config: research.categories contains unknown category %q", name))
		}
	}

	return errs
}

func knownCategory(name string) bool {
	for _, c := range CategoryOrder {
		if c == name {
			return true
		}
	}
	return false
}

// StateFile returns the path of the signed state record.
func (c *Config) StateFile() string { return filepath.Join(c.DataDir, "state.json") }

// LockFile returns the path of the sibling advisory lock file.
func (c *Config) LockFile() string { return filepath.Join(c.DataDir, "state.lock") }

// JournalFile returns the path of the append-only violation/audit journal.
func (c *Config) JournalFile() string { return filepath.Join(c.DataDir, "journal.jsonl") }

// HistoryDB returns the path of the cross-session history database.
func (c *Config) HistoryDB() string { return filepath.Join(c.DataDir, "history.db") }

// PendingNoteFile returns the path of the deferred cross-session note.
func (c *Config) PendingNoteFile() string { return filepath.Join(c.DataDir, "pending-note.json") }
