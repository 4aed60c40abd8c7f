// Copyright © 2024 The ELPS authors

// Package dsl implements the functions test files use to declare fixtures and
// tests.  Two dialects exist.  The standard dialect passes fixture handles
// around explicitly:
//
//	(set 'app (fixture "App"))
//	(page app "example.org")
//	(test "Login" (lambda (run) ...))
//
// The legacy dialect, used by files matching the legacy pattern, keeps an
// implicit current fixture:
//
//	(define-fixture "App")
//	(define-page "example.org")
//	(define-test "Login" (lambda (run) ...))
//
// Calls are recorded by a Collector.  Arguments are validated as the calls
// are made and misuse is reported as a diagnostic.KindAPIValidation error
// located at the offending call.
package dsl

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/luthersystems/elps/lisp"
	"github.com/luthersystems/elps/parser/token"

	"github.com/luthersystems/e2ec/diagnostic"
	"github.com/luthersystems/e2ec/suite"
)

// DefaultLegacyPattern matches the base names of legacy test files.
const DefaultLegacyPattern = "*.test.lisp"

// Dialect is a flavor of the declaration functions.
type Dialect interface {
	// Name identifies the dialect in logs.
	Name() string

	// Legacy reports whether tests declared in the dialect are legacy tests.
	Legacy() bool

	// Declares reports whether src declares a fixture.  Files that do not
	// are not test files.
	Declares(src []byte) bool

	// Builtins returns the declaration functions, recording into c.
	Builtins(c *Collector) []lisp.LBuiltinDef
}

// Select returns the dialect for the file at path.  An empty pattern means
// DefaultLegacyPattern.
func Select(path, legacyPattern string) (Dialect, error) {
	if legacyPattern == "" {
		legacyPattern = DefaultLegacyPattern
	}
	ok, err := filepath.Match(legacyPattern, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("invalid legacy pattern %q: %w", legacyPattern, err)
	}
	if ok {
		return Legacy, nil
	}
	return Standard, nil
}

// Invoker calls functions defined by a test file after it was evaluated.
// *sandbox.Sandbox is an Invoker.
type Invoker interface {
	Call(ctx context.Context, fun *lisp.LVal, args ...*lisp.LVal) (interface{}, error)
}

// Collector records the fixtures and tests declared by one file.
type Collector struct {
	path    string
	invoker Invoker
	legacy  bool
	pkg     string
	sealed  bool

	current  *suite.Fixture
	fixtures []*suite.Fixture
	attached map[*suite.Fixture]bool
	tests    []*suite.Test
}

// NewCollector returns a Collector for the file at path.  Test bodies are
// run through invoker.
func NewCollector(path string, invoker Invoker, dialect Dialect) *Collector {
	return &Collector{
		path:     path,
		invoker:  invoker,
		legacy:   dialect.Legacy(),
		pkg:      lisp.DefaultUserPackage,
		attached: make(map[*suite.Fixture]bool),
	}
}

// Tests returns the tests in declaration order.
func (c *Collector) Tests() []*suite.Test {
	return c.tests
}

// Fixtures returns the fixtures in declaration order, including fixtures
// without tests.
func (c *Collector) Fixtures() []*suite.Fixture {
	return c.fixtures
}

// Seal rejects any later declaration.  It is called once the file has been
// evaluated, after which test bodies may still reach the declaration
// functions.
func (c *Collector) Seal() {
	c.sealed = true
}

// guard rejects calls to the declaration function fun made after c was
// sealed or from outside the file's own package.
func (c *Collector) guard(env *lisp.LEnv, fun string) *lisp.LVal {
	if c.sealed {
		return apiError(env, `The function "%s" cannot be called after the test file was evaluated.`, fun)
	}
	if pkg := env.Runtime.Package; pkg == nil || pkg.Name != c.pkg {
		return apiError(env, `The function "%s" can only be called by the test file.`, fun)
	}
	return nil
}

func (c *Collector) declareFixture(env *lisp.LEnv, name *lisp.LVal) (*suite.Fixture, *lisp.LVal) {
	if name.Type != lisp.LString {
		return nil, apiError(env, `The fixture name is expected to be a string, but it was "%s".`, typeOf(name))
	}
	f := suite.NewFixture(name.Str, c.path)
	c.fixtures = append(c.fixtures, f)
	c.current = f
	return f, nil
}

func (c *Collector) setPage(env *lisp.LEnv, f *suite.Fixture, url *lisp.LVal) *lisp.LVal {
	if url.Type != lisp.LString {
		return apiError(env, `The page URL is expected to be a string, but it was "%s".`, typeOf(url))
	}
	if c.attached[f] {
		return apiError(env, `The page URL of the fixture "%s" cannot be changed after tests are declared.`, f.Name)
	}
	f.SetPage(url.Str)
	return nil
}

func (c *Collector) declareTest(env *lisp.LEnv, name, body *lisp.LVal) *lisp.LVal {
	if name.Type != lisp.LString {
		return apiError(env, `The test name is expected to be a string, but it was "%s".`, typeOf(name))
	}
	if body.Type != lisp.LFun || body.IsSpecialFun() {
		return apiError(env, `The test body is expected to be a function, but it was "%s".`, typeOf(body))
	}
	if c.current == nil {
		return apiError(env, `Cannot declare the test "%s" before any fixture is declared.`, name.Str)
	}
	t := &suite.Test{
		Name:    name.Str,
		Fixture: c.current,
		Fn:      c.testFunc(body),
	}
	if c.legacy {
		legacy := true
		t.IsLegacy = &legacy
	}
	c.attached[c.current] = true
	c.tests = append(c.tests, t)
	return nil
}

// testFunc returns a TestFunc calling body.  The test run is passed only when
// body takes arguments.
func (c *Collector) testFunc(body *lisp.LVal) suite.TestFunc {
	takesRun := len(body.Cells) > 0 && len(body.Cells[0].Cells) > 0
	return func(ctx context.Context, run suite.TestRun) (interface{}, error) {
		if !takesRun {
			return c.invoker.Call(ctx, body)
		}
		return c.invoker.Call(ctx, body, lisp.Native(run))
	}
}

// apiError returns an error located at the call being evaluated.
func apiError(env *lisp.LEnv, format string, v ...interface{}) *lisp.LVal {
	var file string
	var line, col int
	if loc := callSite(env); loc != nil {
		file, line, col = loc.Path, loc.Line, loc.Col
		if file == "" {
			file = loc.File
		}
	}
	return env.Error(diagnostic.APIValidation(fmt.Sprintf(format, v...), file, line, col))
}

// callSite returns the location of the builtin call being evaluated.
func callSite(env *lisp.LEnv) *token.Location {
	if top := env.Runtime.Stack.Top(); top != nil && top.Source != nil {
		return top.Source
	}
	return env.Loc
}

// typeOf names the type of v the way error messages present it to test
// authors.
func typeOf(v *lisp.LVal) string {
	switch v.Type {
	case lisp.LString:
		return "string"
	case lisp.LInt, lisp.LFloat:
		return "number"
	case lisp.LSymbol, lisp.LQSymbol:
		if v.Str == lisp.TrueSymbol || v.Str == lisp.FalseSymbol {
			return "boolean"
		}
		return "symbol"
	case lisp.LFun:
		if v.IsSpecialFun() {
			return "macro"
		}
		return "function"
	case lisp.LSExpr:
		if v.IsNil() {
			return "undefined"
		}
		return "object"
	default:
		return "object"
	}
}

var (
	standardDecl = regexp.MustCompile(`\(\s*fixture\s+"`)
	legacyDecl   = regexp.MustCompile(`\(\s*define-fixture\s+"`)
)
