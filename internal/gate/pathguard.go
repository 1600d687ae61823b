// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package gate

import (
	_ "embed"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// PathGuard rejects tool targets inside credential stores, system
// directories, and hookguard's own secret material. Matching is always on
// path segments, never bare substrings: /tmp/my_aws_backup.txt is fine,
// ~/.aws/credentials is not.
type PathGuard struct {
	home      string
	configDir string
	rules     pathDB
}

// NewPathGuard builds a guard anchored at the current user's home and config
// directories. Resolution failures leave the corresponding rules inert
// rather than failing the guard.
func NewPathGuard() *PathGuard {
	g := &PathGuard{rules: loadPathRules()}
	if home, err := os.UserHomeDir(); err == nil {
		g.home = home
	}
	if dir, err := os.UserConfigDir(); err == nil {
		g.configDir = dir
	}
	return g
}

//go:embed rules/paths.yml
var pathRulesYAML []byte

// pathDB is the top-level structure of rules/paths.yml.
type pathDB struct {
	HomeDeny     []string `yaml:"home_deny"`
	AbsDenyFiles []string `yaml:"abs_deny_files"`
	AbsDenyDirs  []string `yaml:"abs_deny_dirs"`
	Sensitive    struct {
		Names          []string `yaml:"names"`
		ExemptSuffixes []string `yaml:"exempt_suffixes"`
	} `yaml:"sensitive"`
}

var (
	pathDBOnce     sync.Once
	pathRules      pathDB
	sensitiveNames []*regexp.Regexp
)

// loadPathRules parses the embedded deny-rule database once. The file is a
// build artifact; a parse failure is a packaging bug, logged loudly and
// leaving the guard with whatever rules did load.
func loadPathRules() pathDB {
	pathDBOnce.Do(func() {
		if err := yaml.Unmarshal(pathRulesYAML, &pathRules); err != nil {
			slog.Error("embedded path rules unparseable", "error", err)
			return
		}
		for _, expr := range pathRules.Sensitive.Names {
			re, err := regexp.Compile(expr)
			if err != nil {
				slog.Error("invalid sensitive-name pattern", "pattern", expr, "error", err)
				continue
			}
			sensitiveNames = append(sensitiveNames, re)
		}
	})
	return pathRules
}

// decodeIterations bounds the repeated URL-decode that defeats
// double-encoding tricks like %252e%252e.
const decodeIterations = 3

// Denied reports whether path (or any partially-decoded variant of it)
// resolves into a denied location, with the matched location for the block
// message.
func (g *PathGuard) Denied(path string) (string, bool) {
	for _, variant := range g.variants(path) {
		if hit, ok := g.deniedResolved(variant); ok {
			return hit, true
		}
	}
	return "", false
}

// Sensitive reports whether path needs an explicit per-session user
// confirmation before mutation (secrets-adjacent but legitimately editable
// files, e.g. .env). Template and example files are exempt.
func (g *PathGuard) Sensitive(path string) bool {
	for _, variant := range g.variants(path) {
		base := filepath.Base(g.resolve(variant))
		if g.exemptName(base) {
			continue
		}
		for _, re := range sensitiveNames {
			if re.MatchString(base) {
				return true
			}
		}
	}
	return false
}

func (g *PathGuard) exemptName(base string) bool {
	for _, suffix := range g.rules.Sensitive.ExemptSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// variants returns the progressively URL-decoded forms of path, NUL bytes
// stripped. Every variant is checked: a path that only matches after partial
// decoding is still a match.
func (g *PathGuard) variants(path string) []string {
	cur := strings.ReplaceAll(path, "\x00", "")
	out := []string{cur}
	for i := 0; i < decodeIterations; i++ {
		decoded, err := url.PathUnescape(cur)
		if err != nil || decoded == cur {
			break
		}
		decoded = strings.ReplaceAll(decoded, "\x00", "")
		out = append(out, decoded)
		cur = decoded
	}
	return out
}

// resolve expands ~, collapses ".." segments, and anchors the result. A
// relative path that climbs out of the working tree is re-rooted at "/" so
// traversal like ../../../etc/passwd resolves to /etc/passwd regardless of
// how deep the working directory happens to be.
func (g *PathGuard) resolve(path string) string {
	p := path
	if p == "~" || strings.HasPrefix(p, "~/") {
		p = filepath.Join(g.home, strings.TrimPrefix(p, "~"))
	}
	p = filepath.ToSlash(filepath.Clean(p))

	if !filepath.IsAbs(p) {
		if rest, climbed := stripLeadingClimbs(p); climbed {
			return filepath.ToSlash(filepath.Join("/", rest))
		}
		if abs, err := filepath.Abs(p); err == nil {
			return filepath.ToSlash(abs)
		}
	}
	return p
}

func stripLeadingClimbs(p string) (string, bool) {
	climbed := false
	for p == ".." || strings.HasPrefix(p, "../") {
		climbed = true
		p = strings.TrimPrefix(strings.TrimPrefix(p, ".."), "/")
	}
	return p, climbed
}

func (g *PathGuard) deniedResolved(variant string) (string, bool) {
	p := g.resolve(variant)

	for _, f := range g.rules.AbsDenyFiles {
		if p == f {
			return f, true
		}
	}
	for _, d := range g.rules.AbsDenyDirs {
		if underDir(p, d) {
			return d, true
		}
	}

	if g.home != "" {
		for _, rel := range g.rules.HomeDeny {
			full := filepath.ToSlash(filepath.Join(g.home, rel))
			if p == full || underDir(p, full) {
				return "~/" + rel, true
			}
		}
	}

	if g.configDir != "" {
		own := filepath.ToSlash(filepath.Join(g.configDir, "hookguard"))
		if p == own || underDir(p, own) {
			return "hookguard key material", true
		}
	}

	return "", false
}

// underDir reports whether p is dir or inside it, on segment boundaries.
func underDir(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, dir+"/")
}
