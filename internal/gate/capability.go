// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package gate

import "strings"

// Capability is the closed set of tool capability categories. Checks reason
// about categories, never about raw tool-name prefixes.
type Capability string

const (
	CapReadOnly         Capability = "read_only"
	CapLocalMutation    Capability = "local_mutation"
	CapShellExecution   Capability = "shell_execution"
	CapExternalMutation Capability = "external_mutation"
)

// Mutating reports whether the capability changes anything outside the
// agent's context window.
func (c Capability) Mutating() bool {
	return c == CapLocalMutation || c == CapShellExecution || c == CapExternalMutation
}

// toolCapabilities maps concrete tool identifiers to their category. This is
// ordinary data, kept in one place; loose pattern matching scattered through
// checks is exactly what this table replaces.
var toolCapabilities = map[string]Capability{
	"Read":            CapReadOnly,
	"Glob":            CapReadOnly,
	"Grep":            CapReadOnly,
	"LS":              CapReadOnly,
	"WebSearch":       CapReadOnly,
	"WebFetch":        CapReadOnly,
	"TodoWrite":       CapReadOnly,
	"Task":            CapReadOnly,
	"AskUserQuestion": CapReadOnly,

	"Edit":         CapLocalMutation,
	"MultiEdit":    CapLocalMutation,
	"Write":        CapLocalMutation,
	"NotebookEdit": CapLocalMutation,

	"Bash":       CapShellExecution,
	"BashOutput": CapReadOnly,
	"KillShell":  CapShellExecution,

	"mcp__github__create_issue":        CapExternalMutation,
	"mcp__github__create_pull_request": CapExternalMutation,
	"mcp__github__push_files":          CapExternalMutation,
	"mcp__github__merge_pull_request":  CapExternalMutation,
}

// mcpReadOnlyPrefixes classify MCP tools whose names declare a read
// operation; anything else from an MCP server is treated as external
// mutation.
var mcpReadOnlyPrefixes = []string{
	"get_", "list_", "search_", "read_", "fetch_", "query_", "lookup_", "resolve_",
}

// CapabilityOf returns the capability category for a tool name. Unknown
// tools default to read-only: enforcement fails open on tools it has never
// heard of rather than blocking them.
func CapabilityOf(tool string) Capability {
	if cap, ok := toolCapabilities[tool]; ok {
		return cap
	}

	if strings.HasPrefix(tool, "mcp__") {
		parts := strings.SplitN(tool, "__", 3)
		if len(parts) == 3 {
			for _, prefix := range mcpReadOnlyPrefixes {
				if strings.HasPrefix(parts[2], prefix) {
					return CapReadOnly
				}
			}
			return CapExternalMutation
		}
	}

	return CapReadOnly
}
