package fileeditor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ajaxzhan/shellbridge/internal/pathguard"
	"github.com/ajaxzhan/shellbridge/pkg/types"
)

func newTestEditor(t *testing.T) (*Editor, string) {
	t.Helper()
	root := t.TempDir()
	guard := pathguard.New(root)
	return New(guard), root
}

func TestEditor_WriteReadRoundTrip(t *testing.T) {
	e, _ := newTestEditor(t)

	if _, err := e.Write("a/b.txt", "hello\nworld", types.ModeText); err != nil {
		t.Fatalf("Write: %v", err)
	}
	result, err := e.Read("a/b.txt", types.ModeText, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Output != "hello\nworld" {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestEditor_Read_LineNumbers(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "one\ntwo", types.ModeText)

	result, err := e.Read("f.txt", types.ModeText, true)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(result.Output, "1\tone") || !strings.Contains(result.Output, "2\ttwo") {
		t.Errorf("expected numbered lines, got %q", result.Output)
	}
}

func TestEditor_Create_FailsIfExists(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "x", types.ModeText)

	_, err := e.Create("f.txt", "y", types.ModeText)
	toolErr, ok := err.(*types.ToolError)
	if !ok || toolErr.Kind != types.ErrAlreadyExist {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestEditor_Delete_File(t *testing.T) {
	e, root := newTestEditor(t)
	e.Write("f.txt", "x", types.ModeText)

	if _, err := e.Delete("f.txt", false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "f.txt")); !os.IsNotExist(err) {
		t.Error("expected file removed")
	}
}

func TestEditor_List_SortedWithDirSuffix(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Mkdir("zdir")
	e.Write("afile.txt", "x", types.ModeText)

	result, err := e.List(".")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	lines := strings.Split(result.Output, "\n")
	if len(lines) != 2 || lines[0] != "afile.txt" || lines[1] != "zdir/" {
		t.Errorf("List output = %v", lines)
	}
}

func TestEditor_Replace_Simple(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "hello world", types.ModeText)

	result, err := e.Replace("f.txt", "world", "there", false)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if !strings.Contains(result.Output, "Replaced") {
		t.Errorf("Output = %q", result.Output)
	}
	read, _ := e.Read("f.txt", types.ModeText, false)
	if read.Output != "hello there" {
		t.Errorf("content after replace = %q", read.Output)
	}
}

func TestEditor_Replace_NoOpWhenOldEqualsNewSkipsHistory(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "hello world", types.ModeText)
	// Build up an undo entry first, so we can tell a no-op replace didn't
	// push a second one.
	if _, err := e.Replace("f.txt", "world", "there", false); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if _, err := e.Replace("f.txt", "there", "there", false); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	read, _ := e.Read("f.txt", types.ModeText, false)
	if read.Output != "hello there" {
		t.Errorf("content after no-op replace = %q", read.Output)
	}

	// First undo should restore "hello world" (the state before the first
	// replace), not get stuck on a redundant no-op snapshot.
	if _, err := e.Undo("f.txt"); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	read, _ = e.Read("f.txt", types.ModeText, false)
	if read.Output != "hello world" {
		t.Errorf("content after undo = %q, want %q", read.Output, "hello world")
	}
	if _, err := e.Undo("f.txt"); err == nil {
		t.Error("expected second undo to fail: no-op replace should not have pushed history")
	}
}

func TestEditor_Replace_AmbiguousWithoutAll(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "a a a", types.ModeText)

	_, err := e.Replace("f.txt", "a", "b", false)
	toolErr, ok := err.(*types.ToolError)
	if !ok || toolErr.Kind != types.ErrAmbiguous {
		t.Fatalf("expected Ambiguous, got %v", err)
	}
}

func TestEditor_Replace_AllOccurrences(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "a a a", types.ModeText)

	if _, err := e.Replace("f.txt", "a", "b", true); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	read, _ := e.Read("f.txt", types.ModeText, false)
	if read.Output != "b b b" {
		t.Errorf("content = %q", read.Output)
	}
}

func TestEditor_Replace_CRLFTolerant(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "line1\r\nline2\r\n", types.ModeText)

	// old_str given with plain LF should still match via the normalized retry.
	if _, err := e.Replace("f.txt", "line1\nline2", "replaced", false); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	read, _ := e.Read("f.txt", types.ModeText, false)
	if !strings.Contains(read.Output, "replaced\r\n") {
		t.Errorf("expected CRLF preserved, got %q", read.Output)
	}
}

func TestEditor_Insert_AppendsAtEnd(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "a\nb", types.ModeText)

	if _, err := e.Insert("f.txt", 3, "c"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	read, _ := e.Read("f.txt", types.ModeText, false)
	if read.Output != "a\nb\nc" {
		t.Errorf("content = %q", read.Output)
	}
}

func TestEditor_Insert_OutOfRange(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "a\nb", types.ModeText)

	_, err := e.Insert("f.txt", 10, "x")
	toolErr, ok := err.(*types.ToolError)
	if !ok || toolErr.Kind != types.ErrOutOfRange {
		t.Fatalf("expected OutOfRange, got %v", err)
	}
}

func TestEditor_DeleteLines(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "a\nb\nc", types.ModeText)

	if _, err := e.DeleteLines("f.txt", []int{2}); err != nil {
		t.Fatalf("DeleteLines: %v", err)
	}
	read, _ := e.Read("f.txt", types.ModeText, false)
	if read.Output != "a\nc" {
		t.Errorf("content = %q", read.Output)
	}
}

func TestEditor_Undo(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "original", types.ModeText)
	e.Replace("f.txt", "original", "changed", false)

	if _, err := e.Undo("f.txt"); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	read, _ := e.Read("f.txt", types.ModeText, false)
	if read.Output != "original" {
		t.Errorf("content after undo = %q", read.Output)
	}
}

func TestEditor_Undo_NoHistory(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "x", types.ModeText)

	_, err := e.Undo("f.txt")
	toolErr, ok := err.(*types.ToolError)
	if !ok || toolErr.Kind != types.ErrNoHistory {
		t.Fatalf("expected NoHistory, got %v", err)
	}
}

func TestEditor_Undo_HistoryCappedAtTwo(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "v0", types.ModeText)
	e.Replace("f.txt", "v0", "v1", false)
	e.Replace("f.txt", "v1", "v2", false)
	e.Replace("f.txt", "v2", "v3", false)

	e.Undo("f.txt") // back to v2
	e.Undo("f.txt") // back to v1
	_, err := e.Undo("f.txt")
	if err == nil {
		t.Fatal("expected undo history exhausted after two pops (v0 evicted)")
	}
}

func TestEditor_View_NegativeRange(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "a\nb\nc\nd", types.ModeText)

	start, end := -2, -1
	result, err := e.View("f.txt", &start, &end, false)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if result.Output != "c\nd" {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestEditor_Grep_FindsMatchesWithLineNumbers(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("f.txt", "alpha\nbeta\nalphabet", types.ModeText)

	result, err := e.Grep("alpha", "f.txt", true, false, true)
	if err != nil {
		t.Fatalf("Grep: %v", err)
	}
	lines := strings.Split(result.Output, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 matches, got %v", lines)
	}
	if !strings.HasPrefix(lines[0], "f.txt:1:") {
		t.Errorf("line 0 = %q", lines[0])
	}
}

func TestEditor_Grep_DirectoryRequiresRecursive(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("sub/f.txt", "match", types.ModeText)

	_, err := e.Grep("match", "sub", true, false, true)
	if err == nil {
		t.Fatal("expected error when recursive not set for a directory")
	}
}

func TestEditor_Dispatch_FiltersUnknownParams(t *testing.T) {
	e, _ := newTestEditor(t)
	result, err := e.Dispatch("write", map[string]any{
		"path":    "f.txt",
		"content": "hi",
		"bogus":   "ignored",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(result.Output, "f.txt") {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestEditor_Move_TransfersUndoHistory(t *testing.T) {
	e, _ := newTestEditor(t)
	e.Write("old.txt", "v0", types.ModeText)
	e.Replace("old.txt", "v0", "v1", false)

	if _, err := e.Move("old.txt", "new.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := e.Undo("new.txt"); err != nil {
		t.Fatalf("expected undo history to follow the rename: %v", err)
	}
}
