package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/emberrun/sandbox/internal/domain"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.js"), []byte("module.exports = 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestResolveConfinesEscapes(t *testing.T) {
	fs := newTestFS(t)

	cases := []struct {
		name      string
		path      string
		wantError bool
	}{
		{"root file", "/index.js", false},
		{"nested", "/sub/../index.js", false},
		{"dotdot escape", "/../../../etc/passwd", true},
		{"deep dotdot escape", "/sub/../../outside", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fs.Resolve(tc.path)
			if tc.wantError && !errors.Is(err, domain.ErrPermissionDenied) {
				t.Fatalf("Resolve(%q) error = %v, want PermissionDenied", tc.path, err)
			}
			if !tc.wantError && err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tc.path, err)
			}
		})
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.WriteFile("/out.txt", []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := fs.ReadFile("/out.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("ReadFile = %q, want %q", data, "hello")
	}
}

func TestChownAlwaysDenied(t *testing.T) {
	fs := newTestFS(t)
	err := fs.Chown("/index.js", 1000, 1000)
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("Chown error = %v, want PermissionDenied", err)
	}
}

func TestStatNotFound(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.Stat("/missing.js")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Stat error = %v, want NotFound", err)
	}
}
