// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

// Package classify decides what kind of instruction a user prompt is and
// extracts enforcement-relevant signals from it. Classification is an ordered
// decision table: passthrough patterns win over question patterns, which win
// over task patterns. The order is a contract — "could you maybe update the
// code?" classifies as a question even though it embeds an action verb, and
// changing that is a behavior change, not a fix.
package classify

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
)

// Kind is the instruction category.
type Kind string

const (
	KindPassthrough Kind = "passthrough"
	KindQuestion    Kind = "question"
	KindTask        Kind = "task"
	KindBigTask     Kind = "big_task"
)

// TriggerHit is a detected trigger word historically correlated with rule
// violations, with the rule it cites and the warning to surface.
type TriggerHit struct {
	Word    string
	Rule    string
	Warning string
}

// Frustration aggregates signals that the user is repeating themselves or
// correcting the agent.
type Frustration struct {
	AllCaps             bool
	Correction          bool
	RepeatedInstruction bool
}

// Any reports whether any frustration signal fired.
func (f Frustration) Any() bool {
	return f.AllCaps || f.Correction || f.RepeatedInstruction
}

// Result is the full classification of one prompt.
type Result struct {
	Kind         Kind
	Requirements []string
	FreshStart   bool
	Triggers     []TriggerHit
	Frustration  Frustration
	ResearchOnly bool
}

var (
	passthroughPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*$`),
		regexp.MustCompile(`^[[:punct:]\s]+$`),
		regexp.MustCompile(`(?i)^\s*(ok(ay)?|yes|no|yep|nope|thanks?|thank you|ty|k|sure|got it|sounds good|lgtm|go ahead|continue|proceed|y|n)[.!]?\s*$`),
		regexp.MustCompile(`^\s*/\S+`), // slash commands pass through untouched
	}

	questionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\?\s*$`),
		regexp.MustCompile(`(?i)^\s*(what|why|how|when|where|which|who|whose|is|are|was|were|does|do|did|can|could|should|would|will|shall|may|might|have|has|had)\b`),
		regexp.MustCompile(`(?i)^\s*(tell me|explain|describe|help me understand)\b`),
	}

	taskPattern = regexp.MustCompile(`(?i)\b(fix|add|implement|create|write|update|change|modify|refactor|remove|delete|rename|move|build|make|install|setup|set up|configure|debug|optimize|improve|clean|convert|migrate|replace|extend|investigate|research|start)\b`)

	bigTaskPattern = regexp.MustCompile(`(?i)\b(everything|entire|whole|all (the )?(files|modules|packages|tests)|rewrite|overhaul|architecture|redesign|from scratch|end.to.end|across the (codebase|project|repo))\b`)

	researchOnlyPattern = regexp.MustCompile(`(?i)^\s*(research|investigate|explore|study|look into)\b`)

	correctionPattern = regexp.MustCompile(`(?i)^\s*(no[,.!]|that'?s (wrong|not right|not it)|i (said|told you)|wrong[,.!]|not what i|again[,.!]|stop\b)`)
)

// Classify runs the full decision table on prompt. lastPrompt is the previous
// user instruction (for repeated-instruction detection); empty disables it.
// On any internal error classification defaults to passthrough so a
// classifier bug can never keep a message from reaching the agent.
func Classify(prompt, lastPrompt string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("classifier panic, defaulting to passthrough", "panic", r)
			res = Result{Kind: KindPassthrough}
		}
	}()

	res.Kind = classifyKind(prompt)

	// Requirement, trigger, and frustration extraction run independently of
	// the kind decision, but only task-like inputs act on them.
	if res.Kind == KindTask || res.Kind == KindBigTask {
		res.Requirements, res.FreshStart = extractRequirements(prompt)
		res.Triggers = detectTriggers(prompt)
		res.ResearchOnly = researchOnlyPattern.MatchString(prompt)
	}
	res.Frustration = detectFrustration(prompt, lastPrompt)

	return res
}

func classifyKind(prompt string) Kind {
	for _, p := range passthroughPatterns {
		if p.MatchString(prompt) {
			return KindPassthrough
		}
	}

	for _, p := range questionPatterns {
		if p.MatchString(prompt) {
			return KindQuestion
		}
	}

	if taskPattern.MatchString(prompt) {
		if bigTaskPattern.MatchString(prompt) {
			return KindBigTask
		}
		return KindTask
	}

	return KindPassthrough
}

func detectFrustration(prompt, lastPrompt string) Frustration {
	var f Frustration

	words := strings.Fields(prompt)
	if len(words) >= 3 {
		caps := 0
		letters := 0
		for _, r := range prompt {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					caps++
				}
			}
		}
		if letters > 0 && float64(caps)/float64(letters) >= 0.6 {
			f.AllCaps = true
		}
	}

	f.Correction = correctionPattern.MatchString(prompt)

	if lastPrompt != "" && normalizePrompt(prompt) == normalizePrompt(lastPrompt) {
		f.RepeatedInstruction = true
	}

	return f
}

func normalizePrompt(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!?")
	return strings.Join(strings.Fields(s), " ")
}
