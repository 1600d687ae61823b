// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package gate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hookguard-dev/hookguard/internal/state"
)

// Shell constructs that write files. File mutation is supposed to flow
// through the edit tools, where size limits and path rules apply; a shell
// redirection is the cheapest way around every one of them.
var (
	redirectTarget = regexp.MustCompile(`(?:^|[^0-9&<>])(?:\d?>>?|&>>?)[ \t]*([^\s;|&)]+)`)
	teeCommand     = regexp.MustCompile(`(?:^|[;&|]\s*|\|\s*)tee\b[ \t]*(-a[ \t]+)?([^\s;|&)]+)`)
	sedInPlace     = regexp.MustCompile(`\bsed\b[^;|&]*\s-[a-zA-Z]*i`)
	ddOutFile      = regexp.MustCompile(`\bdd\b[^;|&]*\bof=([^\s;|&]+)`)
	curlOutput     = regexp.MustCompile(`\bcurl\b[^;|&]*\s(?:-[a-zA-Z]*o|--output)[ \t=]+([^\s;|&]+)`)
	wgetOutput     = regexp.MustCompile(`\bwget\b[^;|&]*\s(?:-O|--output-document)[ \t=]+([^\s;|&]+)`)
	copyMove       = regexp.MustCompile(`(?:^|[;&|]\s*)(?:cp|mv)\b((?:[ \t]+[^\s;|&]+)+)`)
)

// checkShellBypass blocks shell commands that write files outside scratch
// and build locations, and any shell write whose target hits the path deny
// list.
func (g *Gate) checkShellBypass(req *Request, _ *state.SessionState) *Decision {
	if req.Capability() != CapShellExecution {
		return nil
	}
	cmd := req.Command()
	if cmd == "" {
		return nil
	}

	for _, target := range shellWriteTargets(cmd) {
		if rule, denied := g.paths.Denied(target); denied {
			return &Decision{
				Action: ActionBlock,
				Rule:   "blocked_path",
				Message: fmt.Sprintf("this command writes to %q, which matches protected location %q. "+
					"Credentials and system files are off limits.", target, rule),
			}
		}
		if !exemptShellTarget(target) {
			return &Decision{
				Action: ActionBlock,
				Message: fmt.Sprintf("this command writes %q through the shell, sidestepping file tracking. "+
					"Use the Edit or Write tool for file changes; shell output belongs in /tmp or /dev/null.", target),
			}
		}
	}

	if sedInPlace.MatchString(cmd) {
		return &Decision{
			Action: ActionBlock,
			Message: "sed -i edits files in place through the shell, sidestepping file tracking. " +
				"Use the Edit tool so the change is sized and recorded.",
		}
	}
	return nil
}

// shellWriteTargets extracts every file a command would write to.
func shellWriteTargets(cmd string) []string {
	var targets []string
	add := func(t string) {
		t = strings.Trim(t, `"'`)
		if t != "" {
			targets = append(targets, t)
		}
	}

	for _, m := range redirectTarget.FindAllStringSubmatch(cmd, -1) {
		add(m[1])
	}
	for _, m := range teeCommand.FindAllStringSubmatch(cmd, -1) {
		add(m[2])
	}
	for _, m := range ddOutFile.FindAllStringSubmatch(cmd, -1) {
		add(m[1])
	}
	for _, m := range curlOutput.FindAllStringSubmatch(cmd, -1) {
		add(m[1])
	}
	for _, m := range wgetOutput.FindAllStringSubmatch(cmd, -1) {
		add(m[1])
	}
	for _, m := range copyMove.FindAllStringSubmatch(cmd, -1) {
		args := strings.Fields(m[1])
		// Destination is the final non-flag argument.
		for i := len(args) - 1; i >= 0; i-- {
			if !strings.HasPrefix(args[i], "-") {
				add(args[i])
				break
			}
		}
	}
	return targets
}

// exemptShellTarget reports whether a shell write target is scratch space or
// build output, where shell writes are normal.
func exemptShellTarget(target string) bool {
	switch target {
	case "/dev/null", "/dev/stdout", "/dev/stderr", "&1", "&2":
		return true
	}
	for _, prefix := range []string{"/tmp/", "$TMPDIR", "${TMPDIR", "/dev/null"} {
		if strings.HasPrefix(target, prefix) {
			return true
		}
	}
	cleaned := strings.TrimPrefix(target, "./")
	for _, dir := range []string{"build/", "dist/", "out/", "target/", "tmp/", ".cache/"} {
		if strings.HasPrefix(cleaned, dir) {
			return true
		}
	}
	return false
}
