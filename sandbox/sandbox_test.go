// Copyright © 2024 The ELPS authors

package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/luthersystems/elps/lisp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthersystems/e2ec/compilertest"
	"github.com/luthersystems/e2ec/diagnostic"
)

type recorder struct {
	vals []*lisp.LVal
}

func (r *recorder) builtin() lisp.LBuiltinDef {
	return Function("record", lisp.Formals("value"), func(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
		r.vals = append(r.vals, args.Cells[0])
		return lisp.Nil()
	})
}

type result struct {
	sb   *Sandbox
	rec  *recorder
	dir  string
	path string
	err  error
}

func run(t *testing.T, files map[string]string, entry string, cfg Config) *result {
	t.Helper()
	dir := compilertest.WriteTree(t, files)
	path := filepath.Join(dir, filepath.FromSlash(entry))
	src, err := os.ReadFile(path)
	require.NoError(t, err)
	if cfg.Logger == nil {
		cfg.Logger = compilertest.NewEntry(t)
	}
	sb, err := New(cfg)
	require.NoError(t, err)
	rec := &recorder{}
	err = sb.Run(context.Background(), path, src, rec.builtin())
	return &result{sb: sb, rec: rec, dir: dir, path: path, err: err}
}

func diagError(t *testing.T, err error) *diagnostic.Error {
	t.Helper()
	var derr *diagnostic.Error
	require.ErrorAs(t, err, &derr)
	return derr
}

func frameFiles(frames []diagnostic.Frame) []string {
	var files []string
	for _, f := range frames {
		files = append(files, f.File)
	}
	return files
}

func TestRunRequire(t *testing.T) {
	r := run(t, map[string]string{
		"dep.lisp": `
(defun greet (name) (concat 'string "hello " name))
(export 'greet)
`,
		"test.lisp": `
(set 'dep (require "./dep"))
(record (funcall (get dep "greet") "world"))
`,
	}, "test.lisp", Config{})
	require.NoError(t, r.err)
	require.Len(t, r.rec.vals, 1)
	assert.Equal(t, "hello world", r.rec.vals[0].Str)
	assert.Equal(t, []string{filepath.Join(r.dir, "dep.lisp"), r.path}, r.sb.Modules())

	src, ok := r.sb.Source(filepath.Join(r.dir, "dep.lisp"))
	assert.True(t, ok)
	assert.Contains(t, string(src), "defun greet")
}

func TestRunResolution(t *testing.T) {
	dir := compilertest.WriteTree(t, map[string]string{
		"lib/helpers/index.lisp": `(defun one () 1) (export 'one)`,
		"lib/abs.lisp":           `(defun two () 2) (export 'two)`,
		"suite/nested/three":     `(defun three () 3) (export 'three)`,
	})
	path := filepath.Join(dir, "suite", "test.lisp")
	src := []byte(`
(record (funcall (get (require "../lib/helpers") "one")))
(record (funcall (get (require "` + filepath.ToSlash(filepath.Join(dir, "lib", "abs")) + `") "two")))
(record (funcall (get (require "./nested/three") "three")))
`)
	require.NoError(t, os.WriteFile(path, src, 0o600))

	sb, err := New(Config{Logger: compilertest.NewEntry(t)})
	require.NoError(t, err)
	rec := &recorder{}
	require.NoError(t, sb.Run(context.Background(), path, src, rec.builtin()))
	require.Len(t, rec.vals, 3)
	assert.Equal(t, 1, rec.vals[0].Int)
	assert.Equal(t, 2, rec.vals[1].Int)
	assert.Equal(t, 3, rec.vals[2].Int)
	assert.Contains(t, sb.Modules(), filepath.Join(dir, "lib", "helpers", "index.lisp"))
}

func TestRunBareSpecifierWithoutModulePaths(t *testing.T) {
	r := run(t, map[string]string{
		"util.lisp": `(defun two () 2) (export 'two)`,
		"test.lisp": `(require "util")`,
	}, "test.lisp", Config{})
	derr := diagError(t, r.err)
	assert.Equal(t, diagnostic.KindModuleResolution, derr.Kind)
	assert.Contains(t, derr.Error(), "Cannot find module 'util'")
}

func TestRunModulePaths(t *testing.T) {
	files := map[string]string{
		"shared/util.lisp": `(defun two () 2) (export 'two)`,
		"suite/test.lisp":  `(record (funcall (get (require "util") "two")))`,
	}
	dir := compilertest.WriteTree(t, files)
	path := filepath.Join(dir, "suite", "test.lisp")
	src, err := os.ReadFile(path)
	require.NoError(t, err)

	sb, err := New(Config{
		ModulePaths: []string{filepath.Join(dir, "missing"), filepath.Join(dir, "shared")},
		Logger:      compilertest.NewEntry(t),
	})
	require.NoError(t, err)
	rec := &recorder{}
	require.NoError(t, sb.Run(context.Background(), path, src, rec.builtin()))
	require.Len(t, rec.vals, 1)
	assert.Equal(t, 2, rec.vals[0].Int)
}

func TestRunDependencyGlobalsDoNotLeak(t *testing.T) {
	r := run(t, map[string]string{
		"dep.lisp":  `(set 'dep-secret 42)`,
		"test.lisp": "(require \"./dep\")\n(record dep-secret)\n",
	}, "test.lisp", Config{})
	require.Error(t, r.err)
	derr := diagError(t, r.err)
	assert.Equal(t, diagnostic.KindRuntime, derr.Kind)
	assert.Contains(t, derr.Message, "unbound symbol: dep-secret")
}

func TestRunDependencyCannotSeeDeclarationFunctions(t *testing.T) {
	r := run(t, map[string]string{
		"dep.lisp":  `(record 1)`,
		"test.lisp": `(require "./dep")`,
	}, "test.lisp", Config{})
	require.Error(t, r.err)
	assert.Contains(t, r.err.Error(), "unbound symbol: record")
	assert.Empty(t, r.rec.vals)
}

func TestCallBodyGlobalsInvisibleToDependencies(t *testing.T) {
	r := run(t, map[string]string{
		"dep.lisp": `(defun peek () user-secret) (export 'peek)`,
		"test.lisp": `
(set 'dep (require "./dep"))
(record (lambda ()
          (set 'user-secret 1)
          (funcall (get dep "peek"))))
`,
	}, "test.lisp", Config{})
	require.NoError(t, r.err)
	require.Len(t, r.rec.vals, 1)

	_, err := r.sb.Call(context.Background(), r.rec.vals[0])
	require.Error(t, err)
	var serr *ScriptError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Message, "unbound symbol: user-secret")
}

func TestRunSeparateSandboxesAreIsolated(t *testing.T) {
	files := map[string]string{
		"a.lisp": `(set 'shared-name "from a")`,
		"b.lisp": `(record shared-name)`,
	}
	dir := compilertest.WriteTree(t, files)
	for _, name := range []string{"a.lisp", "b.lisp"} {
		path := filepath.Join(dir, name)
		src, err := os.ReadFile(path)
		require.NoError(t, err)
		sb, err := New(Config{Logger: compilertest.NewEntry(t)})
		require.NoError(t, err)
		rec := &recorder{}
		err = sb.Run(context.Background(), path, src, rec.builtin())
		if name == "a.lisp" {
			require.NoError(t, err)
			continue
		}
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unbound symbol: shared-name")
	}
}

func TestRunSyntaxErrorInEntry(t *testing.T) {
	r := run(t, map[string]string{
		"test.lisp": "(record 1)\n(record (concat 'string \"a\"\n",
	}, "test.lisp", Config{})
	derr := diagError(t, r.err)
	assert.Equal(t, diagnostic.KindSyntax, derr.Kind)
	assert.True(t, strings.HasPrefix(derr.Error(),
		"Cannot prepare tests due to an error.\n\n SyntaxError: "+r.path+": "), derr.Error())
	assert.Regexp(t, `\(\d+:\d+\)$`, derr.Message)
	assert.Empty(t, derr.Frames)
	assert.Empty(t, r.rec.vals)
}

func TestRunSyntaxErrorInDependency(t *testing.T) {
	r := run(t, map[string]string{
		"dep.lisp":  "(defun broken (\n",
		"test.lisp": "(record 1)\n(require \"./dep\")\n",
	}, "test.lisp", Config{})
	derr := diagError(t, r.err)
	assert.Equal(t, diagnostic.KindSyntax, derr.Kind)
	assert.Contains(t, derr.Error(), "SyntaxError: "+filepath.Join(r.dir, "dep.lisp")+": ")
	assert.Equal(t, []string{r.path}, frameFiles(derr.Frames))
	assert.Equal(t, 2, derr.Frames[0].Line)
}

func TestRunRuntimeErrorInDependency(t *testing.T) {
	r := run(t, map[string]string{
		"dep.lisp":  "(error 'my-error \"Hey ya!\")\n",
		"test.lisp": "(require \"./dep\")\n",
	}, "test.lisp", Config{})
	derr := diagError(t, r.err)
	assert.Equal(t, diagnostic.KindRuntime, derr.Kind)
	assert.Equal(t, "Cannot prepare tests due to an error.\n\n Error: Hey ya!", derr.Error())
	assert.Equal(t, []string{filepath.Join(r.dir, "dep.lisp"), r.path}, frameFiles(derr.Frames))
	assert.Equal(t, "require", derr.Frames[1].Func)
}

func TestRunMissingModule(t *testing.T) {
	r := run(t, map[string]string{
		"dep.lisp":  "(require \"./yo\")\n",
		"test.lisp": "(require \"./dep\")\n",
	}, "test.lisp", Config{})
	derr := diagError(t, r.err)
	assert.Equal(t, diagnostic.KindModuleResolution, derr.Kind)
	assert.Equal(t, "Cannot prepare tests due to an error.\n\n Error: Cannot find module './yo'", derr.Error())
	assert.Equal(t, []string{filepath.Join(r.dir, "dep.lisp"), r.path}, frameFiles(derr.Frames))
}

func TestRunCircularDependency(t *testing.T) {
	r := run(t, map[string]string{
		"a.lisp":    "(require \"./b\")\n",
		"b.lisp":    "(require \"./a\")\n",
		"test.lisp": "(require \"./a\")\n",
	}, "test.lisp", Config{})
	derr := diagError(t, r.err)
	assert.Equal(t, diagnostic.KindRuntime, derr.Kind)
	assert.Contains(t, derr.Message, "Circular dependency")
	assert.Len(t, derr.Frames, 3)
}

func TestRunModuleEvaluatedOnce(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := run(t, map[string]string{
		"dep.lisp":   "(debug-print \"loading dep\")\n(defun f () 1)\n(export 'f)\n",
		"other.lisp": "(set 'dep (require \"./dep\"))\n(export 'dep)\n",
		"test.lisp": `
(set 'a (require "./dep"))
(set 'b (get (require "./other") "dep"))
(record a)
(record b)
`,
	}, "test.lisp", Config{Logger: logrus.NewEntry(logger)})
	require.NoError(t, r.err)

	var loads int
	for _, entry := range hook.AllEntries() {
		if strings.Contains(entry.Message, "loading dep") {
			loads++
		}
	}
	assert.Equal(t, 1, loads)
	require.Len(t, r.rec.vals, 2)
	assert.Same(t, r.rec.vals[0], r.rec.vals[1])
}

func TestRunOnlyOnce(t *testing.T) {
	r := run(t, map[string]string{"test.lisp": "(record 1)\n"}, "test.lisp", Config{})
	require.NoError(t, r.err)
	err := r.sb.Run(context.Background(), r.path, []byte("(record 2)"))
	assert.Error(t, err)
}

func TestRunCanceled(t *testing.T) {
	dir := compilertest.WriteTree(t, map[string]string{"test.lisp": "(record 1)\n"})
	path := filepath.Join(dir, "test.lisp")
	sb, err := New(Config{Logger: compilertest.NewEntry(t)})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}
	err = sb.Run(ctx, path, []byte("(record 1)\n"), rec.builtin())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.vals)
}

func TestRunBuiltinCollision(t *testing.T) {
	dir := compilertest.WriteTree(t, map[string]string{"test.lisp": "1\n"})
	path := filepath.Join(dir, "test.lisp")
	sb, err := New(Config{Logger: compilertest.NewEntry(t)})
	require.NoError(t, err)
	err = sb.Run(context.Background(), path, []byte("1\n"),
		Function("map", lisp.Formals(), func(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal { return lisp.Nil() }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol already defined")
}

func TestCallConvertsValues(t *testing.T) {
	r := run(t, map[string]string{
		"test.lisp": `
(record (lambda () true))
(record (lambda () false))
(record (lambda () "text"))
(record (lambda () 42))
(record (lambda () ()))
(record (lambda () (list 1 2)))
`,
	}, "test.lisp", Config{})
	require.NoError(t, r.err)
	want := []interface{}{true, false, "text", 42, nil, []interface{}{1, 2}}
	require.Len(t, r.rec.vals, len(want))
	for i, fn := range r.rec.vals {
		v, err := r.sb.Call(context.Background(), fn)
		require.NoError(t, err)
		assert.Equal(t, want[i], v, "value %d", i)
	}
}

func TestCallNotAFunction(t *testing.T) {
	r := run(t, map[string]string{"test.lisp": "(record 1)\n"}, "test.lisp", Config{})
	require.NoError(t, r.err)
	_, err := r.sb.Call(context.Background(), r.rec.vals[0])
	assert.Error(t, err)
}

func TestCallScriptError(t *testing.T) {
	r := run(t, map[string]string{
		"test.lisp": "(record (lambda ()\n  (error 'boom \"nope\")))\n",
	}, "test.lisp", Config{})
	require.NoError(t, r.err)
	_, err := r.sb.Call(context.Background(), r.rec.vals[0])
	var serr *ScriptError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "nope", serr.Error())
	assert.Equal(t, "boom", serr.Condition)
	require.NotEmpty(t, serr.Frames)
	assert.Equal(t, r.path, serr.Frames[0].File)
	assert.Equal(t, 2, serr.Frames[0].Line)
}

type role struct{ name string }

func TestCapabilities(t *testing.T) {
	admin := &role{name: "admin"}
	r := run(t, map[string]string{
		"test.lisp": `
(set 'e2e (require "e2e"))
(record (lambda () (get e2e "Role")))
(record (lambda (run)
          (funcall (get e2e "execute-command") run (sorted-map "type" "click" "selector" "#go"))
          (e2e:execute-command run (sorted-map "type" "wait" "timeout" 10))
          "done"))
`,
	}, "test.lisp", Config{Capabilities: map[string]interface{}{"Role": admin}})
	require.NoError(t, r.err)
	require.Len(t, r.rec.vals, 2)

	v, err := r.sb.Call(context.Background(), r.rec.vals[0])
	require.NoError(t, err)
	assert.Same(t, admin, v)

	tr := compilertest.NewTestRun()
	v, err = r.sb.Call(context.Background(), r.rec.vals[1], lisp.Native(tr))
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	cmds := tr.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "click", cmds[0].Type())
	assert.Equal(t, "#go", cmds[0]["selector"])
	assert.Equal(t, "wait", cmds[1].Type())
	assert.Equal(t, 10, cmds[1]["timeout"])

	failing := compilertest.NewFailingTestRun("test-error")
	_, err = r.sb.Call(context.Background(), r.rec.vals[1], lisp.Native(failing))
	require.Error(t, err)
	assert.Equal(t, "test-error", err.Error())
	assert.Len(t, failing.Commands(), 1)
}

func TestCapabilityModuleName(t *testing.T) {
	r := run(t, map[string]string{
		"test.lisp": `(record (get (require "harness") "Hybrid"))`,
	}, "test.lisp", Config{CapabilityModule: "harness", Capabilities: map[string]interface{}{"Hybrid": "hybrid"}})
	require.NoError(t, r.err)
	require.Len(t, r.rec.vals, 1)
	assert.Equal(t, "hybrid", r.rec.vals[0].Native)

	_, err := New(Config{CapabilityModule: "string"})
	assert.Error(t, err)
}

func TestExecuteCommandValidation(t *testing.T) {
	r := run(t, map[string]string{
		"test.lisp": `
(record (lambda () (e2e:execute-command "not a run" (sorted-map "type" "x"))))
(record (lambda (run) (e2e:execute-command run "not a map")))
`,
	}, "test.lisp", Config{})
	require.NoError(t, r.err)
	_, err := r.sb.Call(context.Background(), r.rec.vals[0])
	assert.ErrorContains(t, err, "expected to be a test run")
	_, err = r.sb.Call(context.Background(), r.rec.vals[1], lisp.Native(compilertest.NewTestRun()))
	assert.ErrorContains(t, err, "expected to be a sorted-map")
}

func TestPackageName(t *testing.T) {
	sb, err := New(Config{Logger: compilertest.NewEntry(t)})
	require.NoError(t, err)
	assert.Equal(t, "helpers", sb.packageName("/a/helpers.lisp"))
	assert.Equal(t, "helpers-2", sb.packageName("/b/helpers.lisp"))
	assert.Equal(t, "lib", sb.packageName("/a/lib/index.lisp"))
	assert.Equal(t, "my-page-objects", sb.packageName("/a/My Page:Objects.lisp"))
	assert.Equal(t, "string-2", sb.packageName("/a/string.lisp"))
	assert.Equal(t, "e2e-2", sb.packageName("/a/e2e.lisp"))
}
