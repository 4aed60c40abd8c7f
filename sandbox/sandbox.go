// Copyright © 2024 The ELPS authors

// Package sandbox evaluates a test source file and its dependency graph in a
// private interpreter runtime.
//
// Every entry file gets its own runtime so that nothing one file defines is
// visible while compiling another.  Inside a runtime each dependency is
// evaluated in a package of its own, so the entry file's package, where the
// test declaration functions live, is not reachable from dependency code and
// definitions made by dependencies do not leak into the entry file.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/luthersystems/elps/lisp"
	"github.com/luthersystems/elps/lisp/lisplib"
	"github.com/luthersystems/elps/parser"
	"github.com/sirupsen/logrus"

	"github.com/luthersystems/e2ec/diagnostic"
)

// DefaultCapabilityModule is the module name resolving to the embedder's
// capability objects.
const DefaultCapabilityModule = "e2e"

// DefaultMaxStackHeight bounds the logical call stack of sandboxed code.
const DefaultMaxStackHeight = 25000

// Config configures a Sandbox.
type Config struct {
	// ModulePaths are searched, in order, for module names that are neither
	// relative nor absolute.
	ModulePaths []string

	// CapabilityModule is the name resolving to the capability module.
	// Empty means DefaultCapabilityModule.
	CapabilityModule string

	// Capabilities are exposed unchanged, as native values, by the
	// capability module.
	Capabilities map[string]interface{}

	// MaxStackHeight bounds the logical call stack.  Zero means
	// DefaultMaxStackHeight.
	MaxStackHeight int

	// StackFilter removes internal frames from errors.  Nil selects the
	// default filter.
	StackFilter *diagnostic.StackFilter

	// ContextLines is passed to the code-frame renderer.
	ContextLines int

	// ReadFile reads module sources.  If nil, os.ReadFile is used.
	ReadFile func(string) ([]byte, error)

	Logger *logrus.Entry
}

// Sandbox is a runtime for one entry file.  Evaluation is serialized; a
// Sandbox may be shared by the tests it produced.
type Sandbox struct {
	cfg      Config
	log      *logrus.Entry
	filter   *diagnostic.StackFilter
	renderer *diagnostic.Renderer
	stderr   *logWriter

	mu       sync.Mutex
	ctx      context.Context
	env      *lisp.LEnv
	user     *lisp.Package
	modules  map[string]*module
	sources  map[string][]byte
	entry    string
	capMod   *lisp.LVal
	pkgNames map[string]bool
}

type module struct {
	path    string
	pkg     string
	exports *lisp.LVal
	loading bool
}

// New initializes a runtime with the standard library loaded.
func New(cfg Config) (*Sandbox, error) {
	if cfg.CapabilityModule == "" {
		cfg.CapabilityModule = DefaultCapabilityModule
	}
	if cfg.MaxStackHeight == 0 {
		cfg.MaxStackHeight = DefaultMaxStackHeight
	}
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	filter := cfg.StackFilter
	if filter == nil {
		var err error
		filter, err = diagnostic.NewStackFilter(nil)
		if err != nil {
			return nil, err
		}
	}
	s := &Sandbox{
		cfg:      cfg,
		log:      cfg.Logger,
		filter:   filter,
		stderr:   newLogWriter(cfg.Logger),
		ctx:      context.Background(),
		modules:  make(map[string]*module),
		sources:  make(map[string][]byte),
		pkgNames: make(map[string]bool),
	}
	s.renderer = &diagnostic.Renderer{
		Color:        diagnostic.ColorNever,
		ContextLines: cfg.ContextLines,
		SourceReader: s.readLoaded,
	}

	runtime := &lisp.Runtime{
		Registry: lisp.NewRegistry(),
		Stack:    &lisp.CallStack{},
		Reader:   parser.NewReader(),
		Stderr:   s.stderr,
	}
	env := lisp.NewEnvRuntime(runtime)
	err := lisp.GoError(lisp.InitializeUserEnv(env, lisp.WithMaximumLogicalStackHeight(cfg.MaxStackHeight)))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lisp environment: %w", err)
	}
	err = lisp.GoError(lisplib.LoadLibrary(env))
	if err != nil {
		return nil, fmt.Errorf("failed to load package library: %w", err)
	}
	for name := range runtime.Registry.Packages {
		s.pkgNames[name] = true
	}
	if err := s.defineCapabilities(env); err != nil {
		return nil, err
	}
	err = lisp.GoError(env.InPackage(lisp.Symbol(lisp.DefaultUserPackage)))
	if err != nil {
		return nil, fmt.Errorf("failed to switch into user package: %w", err)
	}
	s.env = env
	s.user = runtime.Registry.Packages[lisp.DefaultUserPackage]
	return s, nil
}

// Run evaluates the entry file at path, whose contents are src, with builtins
// bound in its package.  Run may be called once per Sandbox.
func (s *Sandbox) Run(ctx context.Context, path string, src []byte, builtins ...lisp.LBuiltinDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry != "" {
		return fmt.Errorf("sandbox already ran %s", s.entry)
	}
	s.entry = path
	s.ctx = ctx
	defer func() { s.ctx = context.Background() }()

	log := s.log.WithField("path", path)
	exprs, err := s.parse(path, src)
	if err != nil {
		return err
	}

	rt := s.env.Runtime
	rt.Package = s.user
	defs := append([]lisp.LBuiltinDef{s.requireBuiltin()}, builtins...)
	if err := addBuiltins(s.env, defs); err != nil {
		return err
	}

	m := &module{path: path, pkg: s.user.Name, loading: true}
	s.modules[path] = m
	lerr := s.eval(lisp.NewEnv(s.env), exprs)
	m.loading = false
	m.exports = exportsOf(rt.Registry.Packages[m.pkg])
	rt.Package = s.user
	if lerr != nil {
		return s.normalize(lerr)
	}
	log.WithField("modules", len(s.modules)).Debug("evaluated entry file")
	return nil
}

// Call invokes fun with args and converts the result to a Go value.  An
// error raised by fun is returned as a *ScriptError.
func (s *Sandbox) Call(ctx context.Context, fun *lisp.LVal, args ...*lisp.LVal) (interface{}, error) {
	if fun == nil || fun.Type != lisp.LFun {
		return nil, fmt.Errorf("not a function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	defer func() { s.ctx = context.Background() }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rt := s.env.Runtime
	outer := rt.Package
	rt.Package = s.user
	defer func() { rt.Package = outer }()

	env := lisp.NewEnv(s.env)
	v := env.FunCall(fun, lisp.SExpr(args))
	if v.Type == lisp.LError {
		return nil, s.scriptError(v)
	}
	return goValue(v), nil
}

// Source returns the contents of a file loaded by the sandbox.
func (s *Sandbox) Source(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[path]
	return src, ok
}

// Modules returns the absolute paths of every file evaluated so far, sorted.
func (s *Sandbox) Modules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.modules))
	for path := range s.modules {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (s *Sandbox) readLoaded(path string) ([]byte, error) {
	src, ok := s.sources[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return src, nil
}

// parse reads the expressions in src.  Syntax errors are returned as
// *diagnostic.Error.
func (s *Sandbox) parse(path string, src []byte) ([]*lisp.LVal, error) {
	s.sources[path] = src
	reader, ok := s.env.Runtime.Reader.(lisp.LocationReader)
	var exprs []*lisp.LVal
	var err error
	if ok {
		exprs, err = reader.ReadLocation(path, path, bytes.NewReader(src))
	} else {
		exprs, err = s.env.Runtime.Reader.Read(path, bytes.NewReader(src))
	}
	if err != nil {
		return nil, syntaxError(path, err)
	}
	return exprs, nil
}

func syntaxError(path string, err error) *diagnostic.Error {
	var line, col int
	msg := err.Error()
	if lerr, ok := err.(*lisp.ErrorVal); ok {
		msg = lerr.ErrorMessage()
		if lerr.Source != nil {
			line, col = lerr.Source.Line, lerr.Source.Col
		}
	}
	return diagnostic.Syntax(path, line, col, msg, err)
}

// eval evaluates exprs in env and returns the first error.
func (s *Sandbox) eval(env *lisp.LEnv, exprs []*lisp.LVal) *lisp.LVal {
	for _, expr := range exprs {
		if err := s.ctx.Err(); err != nil {
			return env.Error(err)
		}
		v := env.Eval(expr)
		if v.Type == lisp.LError {
			return v
		}
	}
	return nil
}

// packageName returns an unused package name derived from path.
func (s *Sandbox) packageName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if base == "index" {
		base = filepath.Base(filepath.Dir(path))
	}
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	name := b.String()
	if name == "" {
		name = "module"
	}
	candidate := name
	for i := 2; s.pkgNames[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d", name, i)
	}
	s.pkgNames[candidate] = true
	return candidate
}

// exportsOf returns a sorted-map of the symbols pkg exports.
func exportsOf(pkg *lisp.Package) *lisp.LVal {
	m := lisp.SortedMap()
	if pkg == nil {
		return m
	}
	for _, name := range pkg.Externals {
		v, ok := pkg.Symbols[name]
		if !ok {
			continue
		}
		m.MapSet(name, v)
	}
	return m
}

// goValue converts a value returned by sandboxed code.  The symbols true and
// false become booleans and native values are returned as is.
func goValue(v *lisp.LVal) interface{} {
	if v.Type == lisp.LSymbol {
		switch v.Str {
		case lisp.TrueSymbol:
			return true
		case lisp.FalseSymbol:
			return false
		}
	}
	return lisp.GoValue(v)
}
