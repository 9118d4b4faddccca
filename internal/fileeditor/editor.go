// Package fileeditor implements the seventeen file operations exposed over
// the /file endpoint: reads, writes, directory management, and the small
// line-oriented text editing surface (replace/insert/delete_lines/undo)
// with a bounded per-path undo history.
package fileeditor

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ajaxzhan/shellbridge/internal/logging"
	"github.com/ajaxzhan/shellbridge/internal/pathguard"
	"github.com/ajaxzhan/shellbridge/pkg/types"
)

// historyLimit bounds the per-path undo stack; the oldest snapshot is
// evicted once a third is pushed.
const historyLimit = 2

// Editor implements the file operations, confining every path through a
// pathguard.Guard and tracking a small undo history for text edits.
type Editor struct {
	guard *pathguard.Guard

	mu      sync.Mutex
	history map[string][]string
}

// New builds an Editor rooted at guard's workspace.
func New(guard *pathguard.Guard) *Editor {
	return &Editor{guard: guard, history: make(map[string][]string)}
}

func (e *Editor) resolve(path string) (string, error) {
	full, err := e.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	return full, nil
}

func (e *Editor) pushHistory(full, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := append(e.history[full], content)
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}
	e.history[full] = h
}

// Read returns a file's content, numbered with a right-aligned 1-based
// line prefix when requested, or base64 when mode is binary.
func (e *Editor) Read(path string, mode types.FileMode, lineNumbers bool) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return types.Result{}, types.NewToolError(types.ErrNotFile, "read", path, err)
	}

	switch mode {
	case types.ModeBinary:
		data, err := os.ReadFile(full)
		if err != nil {
			return types.Result{}, types.NewToolError(types.ErrIOError, "read", path, err)
		}
		return types.Result{Output: base64.StdEncoding.EncodeToString(data), System: "binary"}, nil
	default:
		data, err := os.ReadFile(full)
		if err != nil {
			return types.Result{}, types.NewToolError(types.ErrIOError, "read", path, err)
		}
		content := string(data)
		if lineNumbers {
			return types.Result{Output: numberLines(content, 1)}, nil
		}
		return types.Result{Output: content}, nil
	}
}

// Write creates parent directories and overwrites path with content. No
// undo entry is pushed.
func (e *Editor) Write(path, content string, mode types.FileMode) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "write", path, err)
	}
	data, err := decodeIfBinary(content, mode)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrInvalidMode, "write", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "write", path, err)
	}
	return types.Result{Output: fmt.Sprintf("File written to %s", path)}, nil
}

// Append writes content to the end of path, creating it if absent. No
// undo entry is pushed.
func (e *Editor) Append(path, content string, mode types.FileMode) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "append", path, err)
	}
	data, err := decodeIfBinary(content, mode)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrInvalidMode, "append", path, err)
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "append", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "append", path, err)
	}
	return types.Result{Output: fmt.Sprintf("Appended to file %s", path)}, nil
}

// Create writes content to a new path, failing if it already exists.
func (e *Editor) Create(path, content string, mode types.FileMode) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	if _, err := os.Stat(full); err == nil {
		return types.Result{}, types.NewToolError(types.ErrAlreadyExist, "create", path, nil)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "create", path, err)
	}
	data, err := decodeIfBinary(content, mode)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrInvalidMode, "create", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "create", path, err)
	}
	return types.Result{Output: fmt.Sprintf("File created: %s", path)}, nil
}

// Delete removes a file or, when recursive is set, a non-empty directory.
// Clears any undo history for the path.
func (e *Editor) Delete(path string, recursive bool) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrNotFound, "delete", path, err)
	}

	if info.IsDir() {
		if recursive {
			if err := os.RemoveAll(full); err != nil {
				return types.Result{}, types.NewToolError(types.ErrIOError, "delete", path, err)
			}
		} else if err := os.Remove(full); err != nil {
			return types.Result{}, types.NewToolError(types.ErrNotEmpty, "delete", path, err)
		}
	} else if err := os.Remove(full); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "delete", path, err)
	}

	e.mu.Lock()
	delete(e.history, full)
	e.mu.Unlock()

	return types.Result{Output: fmt.Sprintf("Deleted %s", path)}, nil
}

// Exists reports whether path exists, as the literal text "true"/"false".
func (e *Editor) Exists(path string) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	_, statErr := os.Stat(full)
	return types.Result{Output: strconv.FormatBool(statErr == nil)}, nil
}

// List returns one entry per line for a directory's immediate children,
// sorted lexicographically, directories suffixed "/".
func (e *Editor) List(path string) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrNotDirectory, "list", path, err)
	}
	names := make([]string, len(entries))
	for i, ent := range entries {
		if ent.IsDir() {
			names[i] = ent.Name() + "/"
		} else {
			names[i] = ent.Name()
		}
	}
	sort.Strings(names)
	return types.Result{Output: strings.Join(names, "\n")}, nil
}

// Mkdir creates path and any missing parents; idempotent.
func (e *Editor) Mkdir(path string) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "mkdir", path, err)
	}
	return types.Result{Output: fmt.Sprintf("Directory created: %s", path)}, nil
}

// Rmdir removes an empty directory.
func (e *Editor) Rmdir(path string) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return types.Result{}, types.NewToolError(types.ErrIOError, "rmdir", path, err)
		}
		return types.Result{}, types.NewToolError(types.ErrNotEmpty, "rmdir", path, err)
	}
	return types.Result{Output: fmt.Sprintf("Directory removed: %s", path)}, nil
}

// Move renames src to dst, creating dst's parents, and transfers any undo
// history to the new path.
func (e *Editor) Move(src, dst string) (types.Result, error) {
	fullSrc, err := e.resolve(src)
	if err != nil {
		return types.Result{}, err
	}
	fullDst, err := e.resolve(dst)
	if err != nil {
		return types.Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(fullDst), 0o755); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "move", dst, err)
	}
	if err := os.Rename(fullSrc, fullDst); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "move", src, err)
	}

	e.mu.Lock()
	if h, ok := e.history[fullSrc]; ok {
		e.history[fullDst] = h
		delete(e.history, fullSrc)
	}
	e.mu.Unlock()

	return types.Result{Output: fmt.Sprintf("Moved %s to %s", src, dst)}, nil
}

// Copy duplicates src to dst: a plain file copy for files, recursive for
// directories.
func (e *Editor) Copy(src, dst string) (types.Result, error) {
	fullSrc, err := e.resolve(src)
	if err != nil {
		return types.Result{}, err
	}
	fullDst, err := e.resolve(dst)
	if err != nil {
		return types.Result{}, err
	}
	info, err := os.Stat(fullSrc)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrNotFound, "copy", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(fullDst), 0o755); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "copy", dst, err)
	}

	if info.IsDir() {
		err = copyDir(fullSrc, fullDst)
	} else {
		err = copyFile(fullSrc, fullDst, info.Mode())
	}
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "copy", src, err)
	}
	return types.Result{Output: fmt.Sprintf("Copied %s to %s", src, dst)}, nil
}

// View renders a directory listing (2-space indent) or a file's content,
// optionally restricted to a 1-based inclusive line range where negative
// indices count from the end.
func (e *Editor) View(path string, rangeStart, rangeEnd *int, lineNumbers bool) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "view", path, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(full)
		if err != nil {
			return types.Result{}, types.NewToolError(types.ErrIOError, "view", path, err)
		}
		names := make([]string, len(entries))
		for i, ent := range entries {
			if ent.IsDir() {
				names[i] = "  " + ent.Name() + "/"
			} else {
				names[i] = "  " + ent.Name()
			}
		}
		sort.Strings(names)
		out := fmt.Sprintf("Directory contents of %s:\n%s", path, strings.Join(names, "\n"))
		return types.Result{Output: out}, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "view", path, err)
	}
	content := string(data)
	startNum := 1

	if rangeStart != nil && rangeEnd != nil {
		lines := splitLines(content)
		start, end := *rangeStart, *rangeEnd
		if start < 0 {
			start = len(lines) + start + 1
		}
		if end < 0 {
			end = len(lines) + end + 1
		}
		if start < 1 || start > len(lines) || end < start || end > len(lines) {
			return types.Result{}, types.NewToolError(types.ErrOutOfRange, "view", path,
				fmt.Errorf("file has %d lines, requested range [%d, %d]", len(lines), start, end))
		}
		content = strings.Join(lines[start-1:end], "\n")
		startNum = start
	}

	if lineNumbers {
		return types.Result{Output: numberLines(content, startNum)}, nil
	}
	return types.Result{Output: content}, nil
}

// Replace substitutes old for new in path's content: an exact match is
// tried first, then a CRLF-normalized retry, preserving the file's
// dominant line-ending style on write. With all=false, more than one
// match is an Ambiguous error rather than a guess.
func (e *Editor) Replace(path, oldStr, newStr string, all bool) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrNotFound, "replace", path, err)
	}
	content := string(data)

	var newContent string
	if strings.Contains(content, oldStr) {
		count := strings.Count(content, oldStr)
		if !all && count > 1 {
			return types.Result{}, types.NewToolError(types.ErrAmbiguous, "replace", path, nil)
		}
		if all {
			newContent = strings.ReplaceAll(content, oldStr, newStr)
		} else {
			newContent = strings.Replace(content, oldStr, newStr, 1)
		}
	} else {
		normContent := strings.ReplaceAll(content, "\r\n", "\n")
		normOld := strings.ReplaceAll(oldStr, "\r\n", "\n")
		if !strings.Contains(normContent, normOld) {
			return types.Result{}, types.NewToolError(types.ErrNotFound, "replace", path, nil)
		}
		count := strings.Count(normContent, normOld)
		if !all && count > 1 {
			return types.Result{}, types.NewToolError(types.ErrAmbiguous, "replace", path, nil)
		}
		normNew := strings.ReplaceAll(newStr, "\r\n", "\n")
		var normNewContent string
		if all {
			normNewContent = strings.ReplaceAll(normContent, normOld, normNew)
		} else {
			normNewContent = strings.Replace(normContent, normOld, normNew, 1)
		}
		if strings.Contains(content, "\r\n") {
			newContent = strings.ReplaceAll(normNewContent, "\n", "\r\n")
		} else {
			newContent = normNewContent
		}
	}

	if newContent == content {
		// old == new (or the replacement is otherwise a no-op): leave the
		// file and undo history untouched.
		return types.Result{Output: fmt.Sprintf("Replaced %q with %q", shorten(oldStr), shorten(newStr))}, nil
	}

	e.pushHistory(full, content)
	if err := os.WriteFile(full, []byte(newContent), 0o644); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "replace", path, err)
	}
	return types.Result{Output: fmt.Sprintf("Replaced %q with %q", shorten(oldStr), shorten(newStr))}, nil
}

// Insert places text before the 1-based line number, which may equal
// nlines+1 to append a new final line.
func (e *Editor) Insert(path string, line int, text string) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrNotFound, "insert", path, err)
	}
	content := string(data)
	lines := splitLines(content)
	if line < 1 || line > len(lines)+1 {
		return types.Result{}, types.NewToolError(types.ErrOutOfRange, "insert", path,
			fmt.Errorf("line %d out of range", line))
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:line-1]...)
	out = append(out, text)
	out = append(out, lines[line-1:]...)
	newContent := strings.Join(out, "\n")

	e.pushHistory(full, content)
	if err := os.WriteFile(full, []byte(newContent), 0o644); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "insert", path, err)
	}
	return types.Result{Output: fmt.Sprintf("Inserted %q at line %d", shorten(text), line)}, nil
}

// DeleteLines removes every 1-based line number in lines from path.
func (e *Editor) DeleteLines(path string, lines []int) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrNotFound, "delete_lines", path, err)
	}
	content := string(data)
	fileLines := splitLines(content)

	toDelete := make(map[int]struct{}, len(lines))
	for _, l := range lines {
		toDelete[l] = struct{}{}
	}
	kept := make([]string, 0, len(fileLines))
	for i, l := range fileLines {
		if _, drop := toDelete[i+1]; !drop {
			kept = append(kept, l)
		}
	}
	newContent := strings.Join(kept, "\n")

	e.pushHistory(full, content)
	if err := os.WriteFile(full, []byte(newContent), 0o644); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "delete_lines", path, err)
	}
	return types.Result{Output: fmt.Sprintf("Deleted lines %v", lines)}, nil
}

// Undo pops the newest snapshot for path and writes it back.
func (e *Editor) Undo(path string) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}
	if _, err := os.Stat(full); err != nil {
		return types.Result{}, types.NewToolError(types.ErrNotFound, "undo", path, err)
	}

	e.mu.Lock()
	h := e.history[full]
	if len(h) == 0 {
		e.mu.Unlock()
		return types.Result{}, types.NewToolError(types.ErrNoHistory, "undo", path, nil)
	}
	previous := h[len(h)-1]
	e.history[full] = h[:len(h)-1]
	e.mu.Unlock()

	if err := os.WriteFile(full, []byte(previous), 0o644); err != nil {
		return types.Result{}, types.NewToolError(types.ErrIOError, "undo", path, err)
	}
	return types.Result{Output: fmt.Sprintf("Undid last edit on %s", path)}, nil
}

// Grep searches for pattern in a file, or recursively under a directory
// when recursive is set. Binary or unreadable files are skipped silently.
func (e *Editor) Grep(pattern, path string, caseSensitive, recursive, lineNumbers bool) (types.Result, error) {
	full, err := e.resolve(path)
	if err != nil {
		return types.Result{}, err
	}

	exprSrc := pattern
	if !caseSensitive {
		exprSrc = "(?i)" + pattern
	}
	re, err := regexp.Compile(exprSrc)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrInvalidArguments, "grep", path, err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return types.Result{}, types.NewToolError(types.ErrNotFound, "grep", path, err)
	}

	var lines []string
	search := func(filePath string) {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return
		}
		if !isLikelyText(data) {
			return
		}
		rel, err := filepath.Rel(e.guard.Root(), filePath)
		if err != nil {
			rel = filePath
		}
		for i, line := range splitLines(string(data)) {
			if re.MatchString(line) {
				if lineNumbers {
					lines = append(lines, fmt.Sprintf("%s:%d:%s", filepath.ToSlash(rel), i+1, line))
				} else {
					lines = append(lines, fmt.Sprintf("%s:%s", filepath.ToSlash(rel), line))
				}
			}
		}
	}

	if info.IsDir() {
		if !recursive {
			return types.Result{}, types.NewToolError(types.ErrInvalidArguments, "grep", path,
				fmt.Errorf("recursive search must be enabled for directories"))
		}
		err = filepath.WalkDir(full, func(p string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			search(p)
			return nil
		})
		if err != nil {
			logging.Warn("grep walk error", logging.Err(err))
		}
	} else {
		search(full)
	}

	if len(lines) == 0 {
		return types.Result{Output: "No matches found"}, nil
	}
	return types.Result{Output: strings.Join(lines, "\n")}, nil
}

func numberLines(content string, startAt int) string {
	lines := splitLines(content)
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = fmt.Sprintf("%6s\t%s", strconv.Itoa(startAt+i), line)
	}
	return strings.Join(out, "\n")
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

func shorten(text string) string {
	const limit = 120
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

func decodeIfBinary(content string, mode types.FileMode) ([]byte, error) {
	if mode == types.ModeBinary {
		return base64.StdEncoding.DecodeString(content)
	}
	return []byte(content), nil
}

func isLikelyText(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(p, target, info.Mode())
	})
}
