// Package pathguard confines caller-supplied paths to a workspace root and
// applies the fixed exclusion policy used by listing and serving.
package pathguard

import (
	"path/filepath"
	"strings"

	"github.com/ajaxzhan/shellbridge/pkg/types"
)

// defaultExcluded mirrors the distillation's EXCLUDED_PATTERNS: root-level
// names that must never be listed or served, regardless of path form.
var defaultExcluded = []string{
	"bash_server.py",
	"lsp.py",
	".codesandbox",
	".devcontainer",
	"__pycache__",
	"README",
	"README.md",
	"README.txt",
	"README.rst",
}

// Guard confines paths to a workspace root.
type Guard struct {
	root     string
	excluded map[string]struct{}
}

// New builds a Guard for the given workspace root. extraExcluded appends
// additional root-level names to the default exclusion list.
func New(root string, extraExcluded ...string) *Guard {
	root = filepath.Clean(root)
	excluded := make(map[string]struct{}, len(defaultExcluded)+len(extraExcluded))
	for _, p := range defaultExcluded {
		excluded[p] = struct{}{}
	}
	for _, p := range extraExcluded {
		excluded[p] = struct{}{}
	}
	return &Guard{root: root, excluded: excluded}
}

// Root returns the workspace root this guard confines paths to.
func (g *Guard) Root() string {
	return g.root
}

// Resolve resolves path against the workspace root (absolute paths are
// used as-is) and rejects any result that escapes the root.
func (g *Guard) Resolve(path string) (string, error) {
	var full string
	if filepath.IsAbs(path) {
		full = filepath.Clean(path)
	} else {
		full = filepath.Clean(filepath.Join(g.root, path))
	}

	if full != g.root && !strings.HasPrefix(full, g.root+string(filepath.Separator)) {
		return "", types.NewToolError(types.ErrInvalidPath, "resolve", path, nil)
	}
	return full, nil
}

// IsExcluded reports whether the resolved path's first segment relative
// to the workspace root matches the exclusion policy: an exact name match
// or any root-level name starting with '.'.
func (g *Guard) IsExcluded(resolvedPath string) bool {
	rel, err := filepath.Rel(g.root, resolvedPath)
	if err != nil || rel == "." {
		return false
	}

	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if strings.HasPrefix(first, ".") {
		return true
	}
	_, excluded := g.excluded[first]
	return excluded
}
