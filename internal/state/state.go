// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

// Package state owns the single persisted enforcement record: a signed JSON
// document read-modify-written under an advisory file lock by every hook
// process. No in-memory singleton exists — each hook run is a fresh process
// that re-acquires state from disk.
package state

import (
	"slices"
	"time"
)

// Section names the independently resettable parts of SessionState.
type Section string

const (
	SectionCircuitBreaker     Section = "circuit_breaker"
	SectionRequirements       Section = "requirements"
	SectionResearch           Section = "research"
	SectionEdits              Section = "edits"
	SectionSaneLoop           Section = "saneloop"
	SectionEnforcement        Section = "enforcement"
	SectionEditAttempts       Section = "edit_attempts"
	SectionSensitiveApprovals Section = "sensitive_approvals"
	SectionRefusalTracking    Section = "refusal_tracking"
	SectionMCPHealth          Section = "mcp_health"
	SectionBypass             Section = "bypass"
	SectionPatterns           Section = "patterns"
)

// Sections lists every resettable section in a fixed order.
var Sections = []Section{
	SectionCircuitBreaker,
	SectionRequirements,
	SectionResearch,
	SectionEdits,
	SectionSaneLoop,
	SectionEnforcement,
	SectionEditAttempts,
	SectionSensitiveApprovals,
	SectionRefusalTracking,
	SectionMCPHealth,
	SectionBypass,
	SectionPatterns,
}

// SessionState is the whole persisted record.
type SessionState struct {
	CircuitBreaker     CircuitBreaker               `json:"circuit_breaker"`
	Requirements       Requirements                 `json:"requirements"`
	Research           map[string]*ResearchRecord   `json:"research"`
	Edits              Edits                        `json:"edits"`
	SaneLoop           SaneLoop                     `json:"saneloop"`
	Enforcement        Enforcement                  `json:"enforcement"`
	EditAttempts       EditAttempts                 `json:"edit_attempts"`
	SensitiveApprovals map[string]bool              `json:"sensitive_approvals"`
	RefusalTracking    map[string]*RefusalRecord    `json:"refusal_tracking"`
	MCPHealth          map[string]*CapabilityHealth `json:"mcp_health"`
	Bypass             Bypass                       `json:"bypass"`
	Patterns           Patterns                     `json:"patterns"`
	LastPrompt         string                       `json:"last_prompt"`
}

// CircuitBreaker latches after repeated tool failures. Tripped transitions to
// false only via an explicit user reset — never automatically, and never by
// starting a new session.
type CircuitBreaker struct {
	FailureCount    uint            `json:"failure_count"`
	Tripped         bool            `json:"tripped"`
	TrippedAt       *time.Time      `json:"tripped_at,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	ErrorSignatures map[string]uint `json:"error_signatures"`
}

// Requirements tracks what the user asked for and what has been satisfied.
type Requirements struct {
	Requested      []string `json:"requested"`
	Satisfied      []string `json:"satisfied"`
	IsTask         bool     `json:"is_task"`
	IsBigTask      bool     `json:"is_big_task"`
	IsResearchOnly bool     `json:"is_research_only"`
}

// AddRequested inserts a requirement keeping Requested sorted and unique.
func (r *Requirements) AddRequested(name string) {
	if idx, found := slices.BinarySearch(r.Requested, name); !found {
		r.Requested = slices.Insert(r.Requested, idx, name)
	}
}

// MarkSatisfied records a requirement as satisfied.
func (r *Requirements) MarkSatisfied(name string) {
	if idx, found := slices.BinarySearch(r.Satisfied, name); !found {
		r.Satisfied = slices.Insert(r.Satisfied, idx, name)
	}
}

// Outstanding returns requested requirements not yet satisfied.
func (r *Requirements) Outstanding() []string {
	var out []string
	for _, name := range r.Requested {
		if !slices.Contains(r.Satisfied, name) {
			out = append(out, name)
		}
	}
	return out
}

// ResearchRecord marks one category as genuinely completed. Absence of a
// category key means incomplete.
type ResearchRecord struct {
	Tool        string    `json:"tool"`
	CompletedAt time.Time `json:"completed_at"`
	ViaTask     bool      `json:"via_task"`
}

// Edits counts mutations performed this task.
type Edits struct {
	Count       uint     `json:"count"`
	UniqueFiles []string `json:"unique_files"`
	LastFile    string   `json:"last_file,omitempty"`
}

// RecordEdit increments the count and tracks the target path, preserving
// first-seen order of unique files.
func (e *Edits) RecordEdit(path string) {
	e.Count++
	e.LastFile = path
	if path != "" && !slices.Contains(e.UniqueFiles, path) {
		e.UniqueFiles = append(e.UniqueFiles, path)
	}
}

// Criterion is one acceptance criterion of a big-task loop.
type Criterion struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

// SaneLoop tracks a structured big-task iteration loop.
type SaneLoop struct {
	Active             bool        `json:"active"`
	Task               string      `json:"task,omitempty"`
	Iteration          uint        `json:"iteration"`
	MaxIterations      uint        `json:"max_iterations"`
	AcceptanceCriteria []Criterion `json:"acceptance_criteria"`
	StartedAt          *time.Time  `json:"started_at,omitempty"`
}

// BlockEvent is one entry of the bounded enforcement-block history.
type BlockEvent struct {
	Signature string    `json:"signature"`
	At        time.Time `json:"at"`
}

// Enforcement holds the bounded block history and the halted latch that
// downgrades further blocks to warnings once an identical-block loop is
// detected.
type Enforcement struct {
	Blocks       []BlockEvent `json:"blocks"`
	Halted       bool         `json:"halted"`
	HaltedAt     *time.Time   `json:"halted_at,omitempty"`
	HaltedReason string       `json:"halted_reason,omitempty"`
}

// RecordBlock appends a block signature, trimming history to limit.
func (e *Enforcement) RecordBlock(signature string, at time.Time, limit int) {
	e.Blocks = append(e.Blocks, BlockEvent{Signature: signature, At: at})
	if limit > 0 && len(e.Blocks) > limit {
		e.Blocks = e.Blocks[len(e.Blocks)-limit:]
	}
}

// TrailingIdenticalRun returns the length of the run of identical signatures
// at the end of the block history.
func (e *Enforcement) TrailingIdenticalRun() int {
	n := len(e.Blocks)
	if n == 0 {
		return 0
	}
	last := e.Blocks[n-1].Signature
	run := 0
	for i := n - 1; i >= 0 && e.Blocks[i].Signature == last; i-- {
		run++
	}
	return run
}

// EditAttempts counts consecutive edit attempts with no intervening
// successful verification.
type EditAttempts struct {
	Count       uint       `json:"count"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	ResetAt     *time.Time `json:"reset_at,omitempty"`
}

// RefusalRecord tracks repeated identical blocks per block category.
type RefusalRecord struct {
	Count    uint      `json:"count"`
	LastTool string    `json:"last_tool"`
	LastAt   time.Time `json:"last_at"`
}

// CapabilityHealth tracks an external capability (MCP server or similar).
type CapabilityHealth struct {
	Verified     bool       `json:"verified"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	FailureCount uint       `json:"failure_count"`
}

// OutcomeEvent is one completed tool invocation observed by the tracker.
type OutcomeEvent struct {
	Tool    string    `json:"tool"`
	Failure bool      `json:"failure"`
	At      time.Time `json:"at"`
}

// Patterns holds the bounded recent-outcome window the gaming check reads:
// a burst of failures immediately followed by a claimed success points at
// fabricated completion rather than genuine investigation.
type Patterns struct {
	RecentOutcomes []OutcomeEvent `json:"recent_outcomes"`
}

// RecordOutcome appends an outcome, trimming the window to limit.
func (p *Patterns) RecordOutcome(ev OutcomeEvent, limit int) {
	p.RecentOutcomes = append(p.RecentOutcomes, ev)
	if limit > 0 && len(p.RecentOutcomes) > limit {
		p.RecentOutcomes = p.RecentOutcomes[len(p.RecentOutcomes)-limit:]
	}
}

// Bypass is the explicit user-enabled blanket bypass. While active, the gate
// skips all checks.
type Bypass struct {
	Active    bool       `json:"active"`
	Reason    string     `json:"reason,omitempty"`
	EnabledAt *time.Time `json:"enabled_at,omitempty"`
}

// Default returns a fresh SessionState with every section at its default.
func Default() *SessionState {
	return &SessionState{
		CircuitBreaker:     CircuitBreaker{ErrorSignatures: map[string]uint{}},
		Research:           map[string]*ResearchRecord{},
		SensitiveApprovals: map[string]bool{},
		RefusalTracking:    map[string]*RefusalRecord{},
		MCPHealth:          map[string]*CapabilityHealth{},
	}
}

// ResetSection restores one section to its default value. Unknown sections
// are a no-op returning false, so a bad reset command cannot corrupt state.
func (s *SessionState) ResetSection(section Section) bool {
	switch section {
	case SectionCircuitBreaker:
		s.CircuitBreaker = CircuitBreaker{ErrorSignatures: map[string]uint{}}
	case SectionRequirements:
		s.Requirements = Requirements{}
	case SectionResearch:
		s.Research = map[string]*ResearchRecord{}
	case SectionEdits:
		s.Edits = Edits{}
	case SectionSaneLoop:
		s.SaneLoop = SaneLoop{}
	case SectionEnforcement:
		s.Enforcement = Enforcement{}
	case SectionEditAttempts:
		s.EditAttempts = EditAttempts{}
	case SectionSensitiveApprovals:
		s.SensitiveApprovals = map[string]bool{}
	case SectionRefusalTracking:
		s.RefusalTracking = map[string]*RefusalRecord{}
	case SectionMCPHealth:
		s.MCPHealth = map[string]*CapabilityHealth{}
	case SectionBypass:
		s.Bypass = Bypass{}
	case SectionPatterns:
		s.Patterns = Patterns{}
	default:
		return false
	}
	return true
}

// normalize ensures maps are non-nil after JSON decoding so callers can
// mutate without nil checks.
func (s *SessionState) normalize() {
	if s.CircuitBreaker.ErrorSignatures == nil {
		s.CircuitBreaker.ErrorSignatures = map[string]uint{}
	}
	if s.Research == nil {
		s.Research = map[string]*ResearchRecord{}
	}
	if s.SensitiveApprovals == nil {
		s.SensitiveApprovals = map[string]bool{}
	}
	if s.RefusalTracking == nil {
		s.RefusalTracking = map[string]*RefusalRecord{}
	}
	if s.MCPHealth == nil {
		s.MCPHealth = map[string]*CapabilityHealth{}
	}
}
