// Copyright © 2024 The ELPS authors

package compilertest

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree writes files, keyed by slash separated relative path, below a
// fresh temporary directory and returns the directory's absolute path.
func WriteTree(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	// TempDir may sit below a symlink, e.g. /var on macOS.
	abs, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("resolve %s: %v", dir, err)
	}
	return abs
}
