// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package gate

import "encoding/json"

// Request describes an about-to-run tool invocation.
type Request struct {
	SessionID string
	ToolName  string
	Input     map[string]any
}

// ParseRequest builds a Request from the raw tool_input payload. A nil or
// unparseable input yields an empty argument map, never an error — malformed
// payloads must not block anything.
func ParseRequest(sessionID, toolName string, rawInput json.RawMessage) Request {
	req := Request{
		SessionID: sessionID,
		ToolName:  toolName,
		Input:     map[string]any{},
	}
	if len(rawInput) > 0 {
		_ = json.Unmarshal(rawInput, &req.Input)
	}
	return req
}

// Capability returns the request's tool capability category.
func (r Request) Capability() Capability {
	return CapabilityOf(r.ToolName)
}

func (r Request) stringArg(keys ...string) string {
	for _, key := range keys {
		if v, ok := r.Input[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// FilePath returns the target path for file-oriented tools.
func (r Request) FilePath() string {
	return r.stringArg("file_path", "path", "notebook_path")
}

// Command returns the shell command for execution tools.
func (r Request) Command() string {
	return r.stringArg("command")
}

// Content returns the full new content for write-style tools.
func (r Request) Content() string {
	return r.stringArg("content", "new_source")
}

// OldString and NewString return the edit delta for edit-style tools.
func (r Request) OldString() string { return r.stringArg("old_string") }

func (r Request) NewString() string { return r.stringArg("new_string") }
