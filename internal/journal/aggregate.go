// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package journal

import "sort"

// UniqueViolationRules extracts the sorted set of distinct rules violated in
// the given entries. Only violation and block entries count; warnings are
// advisory and do not lower a score.
func UniqueViolationRules(entries []Entry) []string {
	seen := map[string]bool{}
	for _, e := range entries {
		if e.Kind != KindViolation && e.Kind != KindBlock {
			continue
		}
		if e.Rule != "" {
			seen[e.Rule] = true
		}
	}

	rules := make([]string, 0, len(seen))
	for rule := range seen {
		rules = append(rules, rule)
	}
	sort.Strings(rules)
	return rules
}

// ComplianceScore maps a unique-violation count to a score via a fixed
// monotonic banding. The score is derived here and only here; a self-reported
// score that disagrees with this mapping is flagged, never accepted.
func ComplianceScore(uniqueViolations int) int {
	switch {
	case uniqueViolations <= 0:
		return 100
	case uniqueViolations == 1:
		return 90
	case uniqueViolations == 2:
		return 75
	case uniqueViolations <= 4:
		return 50
	default:
		return 25
	}
}
