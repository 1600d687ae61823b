// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package classify

import "regexp"

// Requirement names used across the gate and tracker.
const (
	RequirementResearch = "research"
	RequirementPlan     = "plan"
	RequirementTest     = "test"
	RequirementCommit   = "commit"
	RequirementLoop     = "loop"
)

// requirementRule maps a prompt pattern to a requirement name. FreshStart
// requirements replace the requested set (the user is starting a new unit of
// work); additive ones merge into it.
type requirementRule struct {
	pattern    *regexp.Regexp
	name       string
	freshStart bool
}

var requirementRules = []requirementRule{
	{regexp.MustCompile(`(?i)\bresearch\s+(it\s+)?first\b|\bdo\s+(the\s+)?research\b|\balso\s+research\b`), RequirementResearch, false},
	{regexp.MustCompile(`(?i)\b(make|write|create)\s+a\s+plan\b|\bplan\s+(it\s+)?first\b`), RequirementPlan, false},
	{regexp.MustCompile(`(?i)\b(write|add|run)\s+(the\s+)?tests?\b|\btest\s+(it|this|everything)\b`), RequirementTest, false},
	{regexp.MustCompile(`(?i)\bcommit\b`), RequirementCommit, true},
	{regexp.MustCompile(`(?i)\bstart\s+(the\s+)?(structured\s+)?loop\b`), RequirementLoop, true},
}

// extractRequirements scans prompt for requirement keywords. The second
// return value reports whether any matched rule is a fresh-start trigger, in
// which case the caller replaces rather than merges the requested set.
func extractRequirements(prompt string) ([]string, bool) {
	var names []string
	fresh := false
	for _, rule := range requirementRules {
		if rule.pattern.MatchString(prompt) {
			names = append(names, rule.name)
			if rule.freshStart {
				fresh = true
			}
		}
	}
	return names, fresh
}
