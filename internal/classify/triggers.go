// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package classify

import "regexp"

// triggerRule ties a word historically correlated with rule violations to
// the rule it tends to precede and the warning string surfaced to the user.
type triggerRule struct {
	pattern *regexp.Regexp
	word    string
	rule    string
	warning string
}

var triggerRules = []triggerRule{
	{
		pattern: regexp.MustCompile(`(?i)\bquick(ly)?\b`),
		word:    "quick",
		rule:    "research_first",
		warning: "\"quick\" fixes tend to skip research; research requirements still apply",
	},
	{
		pattern: regexp.MustCompile(`(?i)\bjust\b`),
		word:    "just",
		rule:    "research_first",
		warning: "\"just do X\" often hides complexity; the change is gated on completed research",
	},
	{
		pattern: regexp.MustCompile(`(?i)\bsimple\b`),
		word:    "simple",
		rule:    "file_size_limit",
		warning: "\"simple\" changes have a record of ballooning; size limits remain enforced",
	},
	{
		pattern: regexp.MustCompile(`(?i)\bskip\b`),
		word:    "skip",
		rule:    "outstanding_requirements",
		warning: "skipping steps does not clear requested requirements",
	},
	{
		pattern: regexp.MustCompile(`(?i)\bwithout\s+test(s|ing)?\b|\bno\s+tests?\b`),
		word:    "without testing",
		rule:    "test_required",
		warning: "shipping without tests is flagged; a test requirement, once requested, must be satisfied",
	},
}

// detectTriggers scans prompt for violation-correlated wording.
func detectTriggers(prompt string) []TriggerHit {
	var hits []TriggerHit
	for _, rule := range triggerRules {
		if rule.pattern.MatchString(prompt) {
			hits = append(hits, TriggerHit{Word: rule.word, Rule: rule.rule, Warning: rule.warning})
		}
	}
	return hits
}
