// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package track

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hookguard-dev/hookguard/internal/gate"
)

// outcome is the tracker's view of a tool result.
type outcome struct {
	failed   bool
	class    string
	empty    bool
	errText  string
	exitCode int
}

func (o outcome) summary() string {
	if o.errText != "" {
		text := o.errText
		if idx := strings.IndexByte(text, '\n'); idx > 0 {
			text = text[:idx]
		}
		if len(text) > 200 {
			text = text[:200]
		}
		return text
	}
	return o.class
}

// noResults recognizes explicit empty-result phrasing. Research completion
// requires a result with substance; "no matches" is a signal the category
// was not genuinely investigated.
var noResults = regexp.MustCompile(`(?i)^\s*(?:no (?:results|matches|files|entries)(?: found)?|nothing found|not found)\.?\s*$`)

// parseOutcome extracts failure and emptiness from a tool_response payload,
// which may be a bare string, an object, or absent. Failure comes only from
// explicit error fields and exit status — never from the word "error"
// appearing in content, which would misfire on files that discuss errors.
func parseOutcome(raw json.RawMessage) outcome {
	var out outcome
	if len(raw) == 0 {
		out.empty = true
		return out
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		out.empty = strings.TrimSpace(text) == "" || noResults.MatchString(text)
		return out
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		out.empty = true
		return out
	}

	if v, ok := obj["is_error"].(bool); ok && v {
		out.failed = true
	}
	if v, ok := obj["isError"].(bool); ok && v {
		out.failed = true
	}
	for _, key := range []string{"error", "stderr"} {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			out.failed = true
			out.errText = v
		}
	}
	for _, key := range []string{"exit_code", "exitCode", "status"} {
		if v, ok := obj[key].(float64); ok && v != 0 {
			out.failed = true
			out.exitCode = int(v)
		}
	}

	var content string
	for _, key := range []string{"content", "stdout", "output", "result", "file"} {
		switch v := obj[key].(type) {
		case string:
			content += v
		case map[string]any:
			if s, ok := v["content"].(string); ok {
				content += s
			}
		}
	}
	out.empty = !out.failed && (strings.TrimSpace(content) == "" || noResults.MatchString(content))
	out.class = classifyError(out.errText, out.exitCode)
	return out
}

// classifyError maps raw error text and exit status onto the coarse classes
// used for breaker signatures. Coarse on purpose: "the same kind of failure
// three times" matters, the exact message does not.
func classifyError(errText string, exitCode int) string {
	lower := strings.ToLower(errText)
	switch {
	case exitCode == 127 || strings.Contains(lower, "no such file") ||
		strings.Contains(lower, "command not found") || strings.Contains(lower, "enoent") ||
		strings.Contains(lower, "does not exist"):
		return "not_found"
	case exitCode == 126 || strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "operation not permitted") || strings.Contains(lower, "eacces"):
		return "permission"
	case strings.Contains(lower, "syntax error") || strings.Contains(lower, "parse error") ||
		strings.Contains(lower, "unexpected token") || strings.Contains(lower, "undefined:") ||
		strings.Contains(lower, "cannot find") || strings.Contains(lower, "undeclared"):
		return "syntax"
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "econnrefused") ||
		strings.Contains(lower, "no route to host") || strings.Contains(lower, "tls") ||
		strings.Contains(lower, "dns") || strings.Contains(lower, "network is unreachable"):
		return "network"
	default:
		return "other"
	}
}

// Research verbs a delegated subagent description must carry for its result
// to count as research.
var taskResearch = regexp.MustCompile(`(?i)\b(research|investigate|explore|find|search|survey|study)\b`)

// categoryOf attributes a tool to a research category. The second return is
// true when the research came via a delegated Task subagent.
func categoryOf(req *gate.Request) (string, bool) {
	switch req.ToolName {
	case "Read", "Grep", "Glob", "LS":
		return "local", false
	case "WebSearch", "WebFetch":
		return "web", false
	case "Task":
		desc := req.Input["description"]
		prompt := req.Input["prompt"]
		text, _ := desc.(string)
		if p, ok := prompt.(string); ok {
			text += " " + p
		}
		if taskResearch.MatchString(text) {
			return "local", true
		}
		return "", false
	}

	if strings.HasPrefix(req.ToolName, "mcp__") {
		rest := strings.TrimPrefix(req.ToolName, "mcp__")
		server, _, _ := strings.Cut(rest, "__")
		switch {
		case strings.Contains(server, "github") || strings.Contains(server, "gitlab"):
			return "github", false
		case strings.Contains(server, "memory") || strings.Contains(server, "knowledge"):
			return "memory", false
		case strings.Contains(server, "context7") || strings.Contains(server, "docs") ||
			strings.Contains(server, "ref"):
			return "docs", false
		}
	}
	return "", false
}

func isTestFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.HasSuffix(base, "_test.go") || strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") || strings.HasPrefix(base, "test_")
}

// scanTestQuality returns an advisory warning when new test content contains
// assertions that cannot fail.
func scanTestQuality(req *gate.Request) string {
	if !req.Capability().Mutating() {
		return ""
	}
	path := req.FilePath()
	if path == "" || !isTestFile(path) {
		return ""
	}

	content := req.Content()
	if content == "" {
		content = req.NewString()
	}
	if content == "" {
		return ""
	}

	if hit := findTautology(content); hit != "" {
		return "new test content contains an assertion that can never fail (" + hit + "). " +
			"This is advisory only, but a test that cannot fail verifies nothing."
	}
	return ""
}

func findTautology(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		for _, re := range literalAssertions {
			if re.MatchString(trimmed) {
				return strings.TrimSpace(trimmed)
			}
		}
		if m := comparisonOperands.FindStringSubmatch(trimmed); m != nil && m[1] == m[2] {
			return strings.TrimSpace(trimmed)
		}
	}
	return ""
}

// literalAssertions match assertions whose outcome is fixed at write time.
var literalAssertions = []*regexp.Regexp{
	regexp.MustCompile(`assert\.(?:True|False)\(\s*t\s*,\s*(?:true|false)\s*\)`),
	regexp.MustCompile(`require\.(?:True|False)\(\s*t\s*,\s*(?:true|false)\s*\)`),
	regexp.MustCompile(`assert(?:True|False)?\(\s*(?:true|false)\s*[),]`),
	regexp.MustCompile(`expect\(\s*(?:true|false)\s*\)`),
	regexp.MustCompile(`\|\|\s*true\s*[),]`),
}

// comparisonOperands captures both sides of an equality inside an assertion
// so self-comparisons (x == x) can be flagged.
var comparisonOperands = regexp.MustCompile(`\b([A-Za-z_][\w.\[\]]*)\s*==\s*([A-Za-z_][\w.\[\]]*)\b`)
