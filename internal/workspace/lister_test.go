package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ajaxzhan/shellbridge/internal/pathguard"
)

func TestLister_List_ExcludesAndSorts(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "b.txt"), "b")
	mustWrite(t, filepath.Join(root, "a.txt"), "a")
	mustWrite(t, filepath.Join(root, "README.md"), "readme")
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	mustWrite(t, filepath.Join(root, "sub", "c.txt"), "c")

	guard := pathguard.New(root)
	lister := New(guard)

	listing, err := lister.List(context.Background(), false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	var relPaths []string
	for _, item := range listing.Items {
		relPaths = append(relPaths, item.RelativePath)
	}

	for _, p := range relPaths {
		if p == "README.md" {
			t.Errorf("expected README.md excluded, got entries %v", relPaths)
		}
	}

	for i := 1; i < len(relPaths); i++ {
		if relPaths[i-1] > relPaths[i] {
			t.Errorf("entries not sorted: %v", relPaths)
			break
		}
	}

	if listing.WorkspacePath != root {
		t.Errorf("WorkspacePath = %q, want %q", listing.WorkspacePath, root)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
