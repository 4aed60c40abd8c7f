// Copyright © 2024 The ELPS authors

package cmd

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthersystems/e2ec/compilertest"
)

func TestExpandArgs(t *testing.T) {
	dir := compilertest.WriteTree(t, map[string]string{
		"login.lisp":           `(fixture "Login")`,
		"smoke.e2e":            "fixtures: []",
		"helpers/util.lisp":    `(defun util () 1)`,
		"helpers/notes.txt":    "not a source",
		"legacy/old.test.lisp": `(define-fixture "Old")`,
	})
	paths, err := expandArgs([]string{dir + "/...", "extra.lisp"}, []string{".lisp", ".e2e"}, nil)
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{
		"extra.lisp",
		filepath.Join(dir, "helpers", "util.lisp"),
		filepath.Join(dir, "legacy", "old.test.lisp"),
		filepath.Join(dir, "login.lisp"),
		filepath.Join(dir, "smoke.e2e"),
	}, paths)

	paths, err = expandArgs([]string{dir + "/..."}, []string{".lisp"}, []string{"helpers", "*.test.lisp"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "login.lisp")}, paths)

	_, err = expandArgs([]string{filepath.Join(dir, "missing") + "/..."}, []string{".lisp"}, nil)
	assert.Error(t, err)
}

func TestFilterExcludes_ByName(t *testing.T) {
	paths := []string{
		"src/main.lisp",
		"src/vendored.lisp",
		"lib/utils.lisp",
	}
	result := filterExcludes(paths, []string{"vendored.lisp"})
	assert.Equal(t, []string{"src/main.lisp", "lib/utils.lisp"}, result)
}

func TestFilterExcludes_ByDirectory(t *testing.T) {
	paths := []string{
		"src/main.lisp",
		"build/output.lisp",
		"build/sub/deep.lisp",
		"lib/utils.lisp",
	}
	result := filterExcludes(paths, []string{"build"})
	assert.Equal(t, []string{"src/main.lisp", "lib/utils.lisp"}, result)
}

func TestFilterExcludes_GlobPattern(t *testing.T) {
	paths := []string{
		"src/main.lisp",
		"src/generated_foo.lisp",
		"src/generated_bar.lisp",
		"lib/utils.lisp",
	}
	result := filterExcludes(paths, []string{"generated_*"})
	assert.Equal(t, []string{"src/main.lisp", "lib/utils.lisp"}, result)
}

func TestFilterExcludes_MultiplePatterns(t *testing.T) {
	paths := []string{
		"src/main.lisp",
		"build/output.lisp",
		"src/vendored.lisp",
		"lib/utils.lisp",
	}
	result := filterExcludes(paths, []string{"build", "vendored.lisp"})
	assert.Equal(t, []string{"src/main.lisp", "lib/utils.lisp"}, result)
}

func TestFilterExcludes_NoMatches(t *testing.T) {
	paths := []string{
		"src/main.lisp",
		"lib/utils.lisp",
	}
	result := filterExcludes(paths, []string{"nonexistent"})
	assert.Equal(t, []string{"src/main.lisp", "lib/utils.lisp"}, result)
}

func TestFilterExcludes_EmptyExcludes(t *testing.T) {
	paths := []string{"src/main.lisp"}
	result := filterExcludes(paths, nil)
	assert.Equal(t, []string{"src/main.lisp"}, result)
}

func TestMatchesAny_FullPath(t *testing.T) {
	// filepath.Match on the full path
	assert.True(t, matchesAny("src/main.lisp", []string{"src/*.lisp"}))
	assert.False(t, matchesAny("lib/main.lisp", []string{"src/*.lisp"}))
}

func TestMatchesAny_BaseName(t *testing.T) {
	assert.True(t, matchesAny("deep/nested/vendored.lisp", []string{"vendored.lisp"}))
}

func TestMatchesAny_Component(t *testing.T) {
	assert.True(t, matchesAny("project/build/output.lisp", []string{"build"}))
	assert.False(t, matchesAny("project/src/output.lisp", []string{"build"}))
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c.lisp"}, splitPath("a/b/c.lisp"))
	assert.Equal(t, []string{"a", "c.lisp"}, splitPath("./a//c.lisp"))
}

func TestHasSuffix(t *testing.T) {
	assert.True(t, hasSuffix("tests/smoke.E2E", []string{".e2e"}))
	assert.True(t, hasSuffix("tests/smoke.json.e2e", []string{".e2e"}))
	assert.False(t, hasSuffix("tests/smoke.e2e.bak", []string{".e2e"}))
	assert.False(t, hasSuffix("tests/smoke.e2e", []string{""}))
}
