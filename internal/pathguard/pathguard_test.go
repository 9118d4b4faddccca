package pathguard

import (
	"path/filepath"
	"testing"
)

func TestResolve_WithinRoot(t *testing.T) {
	root := t.TempDir()
	g := New(root)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative child", "sub/file.txt", false},
		{"absolute within root", filepath.Join(root, "a", "b.txt"), false},
		{"relative escape", "../evil", true},
		{"absolute escape", "/etc/passwd", true},
		{"root itself", ".", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Resolve(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("Resolve(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestIsExcluded(t *testing.T) {
	root := t.TempDir()
	g := New(root)

	tests := []struct {
		path     string
		excluded bool
	}{
		{filepath.Join(root, "README.md"), true},
		{filepath.Join(root, ".git", "config"), true},
		{filepath.Join(root, "__pycache__", "x.pyc"), true},
		{filepath.Join(root, "src", "main.go"), false},
		{root, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := g.IsExcluded(tt.path); got != tt.excluded {
				t.Errorf("IsExcluded(%q) = %v, want %v", tt.path, got, tt.excluded)
			}
		})
	}
}

func TestIsExcluded_InvariantUnderPathForm(t *testing.T) {
	root := t.TempDir()
	g := New(root)

	abs, err := g.Resolve("README.md")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	relResolved, err := g.Resolve("./README.md")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if g.IsExcluded(abs) != g.IsExcluded(relResolved) {
		t.Error("exclusion classification differs between absolute and relative forms of the same path")
	}
}
