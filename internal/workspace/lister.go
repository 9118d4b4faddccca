// Package workspace lists the files and directories under a workspace
// root, preferring an external recursive file lister and falling back to
// an in-process walk when that tool is unavailable.
package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ajaxzhan/shellbridge/internal/logging"
	"github.com/ajaxzhan/shellbridge/internal/pathguard"
	"github.com/ajaxzhan/shellbridge/pkg/types"
)

// rgTimeout bounds how long the ripgrep fast path is given before falling
// back to the in-process walk.
const rgTimeout = 5 * time.Second

// Lister enumerates the workspace, honoring the path guard's exclusion
// policy and sorting results by workspace-relative path.
type Lister struct {
	guard *pathguard.Guard
}

// New builds a Lister rooted at guard's workspace.
func New(guard *pathguard.Guard) *Lister {
	return &Lister{guard: guard}
}

// List returns every non-excluded file under the workspace root, plus
// every directory when the in-process walk is used (`rg --files` prints
// files only, so the ripgrep path yields no directory entries).
// honorGitignore controls whether rg's own .gitignore
// handling is left enabled (true) or disabled with --no-ignore (false).
func (l *Lister) List(ctx context.Context, honorGitignore bool) (types.WorkspaceListing, error) {
	root := l.guard.Root()

	paths, err := l.listViaRipgrep(ctx, honorGitignore)
	if err != nil {
		logging.Debug("ripgrep file listing unavailable, falling back to walk", logging.Err(err))
		paths, err = l.listViaWalk()
		if err != nil {
			return types.WorkspaceListing{}, types.NewToolError(types.ErrIOError, "list-files", root, err)
		}
	}

	entries := make([]types.WorkspaceEntry, 0, len(paths))
	for _, p := range paths {
		if l.guard.IsExcluded(p) {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		kind := "file"
		if info.IsDir() {
			kind = "directory"
		}
		entries = append(entries, types.WorkspaceEntry{
			Name:         filepath.Base(p),
			Path:         p,
			RelativePath: filepath.ToSlash(rel),
			Type:         kind,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })

	return types.WorkspaceListing{
		WorkspacePath: root,
		TotalItems:    len(entries),
		Items:         entries,
	}, nil
}

// listViaRipgrep shells out to `rg --files` and resolves the printed
// relative paths against the workspace root. It returns an error if rg
// isn't installed or exits non-zero, so the caller can fall back.
func (l *Lister) listViaRipgrep(ctx context.Context, honorGitignore bool) ([]string, error) {
	runCtx, cancel := context.WithTimeout(ctx, rgTimeout)
	defer cancel()

	args := []string{"--files", "--hidden", "--color", "never"}
	if !honorGitignore {
		args = append(args, "--no-ignore")
	}

	cmd := exec.CommandContext(runCtx, "rg", args...)
	cmd.Dir = l.guard.Root()
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paths = append(paths, filepath.Join(l.guard.Root(), line))
	}
	return paths, nil
}

// listViaWalk recursively walks the workspace root with filepath.WalkDir,
// used when the ripgrep fast path is unavailable.
func (l *Lister) listViaWalk() ([]string, error) {
	root := l.guard.Root()
	var paths []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p == root {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	return paths, err
}
