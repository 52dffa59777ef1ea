package moduleloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/vfs"
)

func writePackage(t *testing.T, files map[string]string) *vfs.FS {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	fs, err := vfs.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestCyclicRequireReturnsPartialExports(t *testing.T) {
	fs := writePackage(t, map[string]string{
		"index.js": `module.exports = require('./a');`,
		"a.js":     `module.exports.a = 1; require('./b');`,
		"b.js":     `const a = require('./a'); module.exports = a;`,
	})

	vm := goja.New()
	cache := NewScriptCache(10, true)
	l := New(vm, fs, cache, nil, "fn1", "digest1")

	exports, err := l.LoadEntry()
	if err != nil {
		t.Fatalf("LoadEntry: %v", err)
	}
	obj := exports.ToObject(vm)
	got := obj.Get("a").ToInteger()
	if got != 1 {
		t.Fatalf("exports.a = %v, want 1", got)
	}
}

func TestBareSpecifierDenied(t *testing.T) {
	fs := writePackage(t, map[string]string{"index.js": `module.exports = require('child_process');`})
	vm := goja.New()
	cache := NewScriptCache(10, true)
	l := New(vm, fs, cache, nil, "fn1", "digest1")

	_, err := l.LoadEntry()
	if err == nil {
		t.Fatal("expected ModuleDenied error")
	}
}

func TestCompiledScriptReusedAcrossLoaders(t *testing.T) {
	fs := writePackage(t, map[string]string{"index.js": `module.exports = 42;`})
	cache := NewScriptCache(10, true)

	vm1 := goja.New()
	l1 := New(vm1, fs, cache, nil, "fn1", "digestA")
	if _, err := l1.LoadEntry(); err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 1 {
		t.Fatalf("cache.Len() = %d, want 1", cache.Len())
	}

	vm2 := goja.New()
	l2 := New(vm2, fs, cache, nil, "fn1", "digestA")
	if _, err := l2.LoadEntry(); err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 1 {
		t.Fatalf("cache.Len() after second loader = %d, want 1 (cache hit)", cache.Len())
	}
}
