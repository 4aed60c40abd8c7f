// Copyright © 2024 The ELPS authors

package dsl

import (
	"github.com/luthersystems/elps/lisp"

	"github.com/luthersystems/e2ec/sandbox"
	"github.com/luthersystems/e2ec/suite"
)

// Standard is the dialect of fixture, page and test.
var Standard Dialect = standard{}

type standard struct{}

func (standard) Name() string { return "standard" }

func (standard) Legacy() bool { return false }

func (standard) Declares(src []byte) bool {
	return standardDecl.Match(src)
}

func (standard) Builtins(c *Collector) []lisp.LBuiltinDef {
	return []lisp.LBuiltinDef{
		sandbox.Function("fixture", lisp.Formals("name"), c.builtinFixture).
			WithDocs(`Declares a fixture called name and returns its handle.  Tests
declared after it belong to the fixture.`),
		sandbox.Function("page", lisp.Formals("fixture", "url"), c.builtinPage).
			WithDocs(`Sets the page url opened before each test of fixture and
returns fixture.  A url without a scheme is given "http://".`),
		sandbox.Function("test", lisp.Formals("name", "body"), c.builtinTest).
			WithDocs(`Declares a test called name in the most recently declared
fixture.  body is called with the test run if it takes an argument.`),
	}
}

func (c *Collector) builtinFixture(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
	if lerr := c.guard(env, "fixture"); lerr != nil {
		return lerr
	}
	f, lerr := c.declareFixture(env, args.Cells[0])
	if lerr != nil {
		return lerr
	}
	return lisp.Native(f)
}

func (c *Collector) builtinPage(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
	if lerr := c.guard(env, "page"); lerr != nil {
		return lerr
	}
	handle, url := args.Cells[0], args.Cells[1]
	f, ok := handle.Native.(*suite.Fixture)
	if handle.Type != lisp.LNative || !ok {
		return apiError(env, `The page function expects a fixture, but it was "%s".`, typeOf(handle))
	}
	if lerr := c.setPage(env, f, url); lerr != nil {
		return lerr
	}
	return handle
}

func (c *Collector) builtinTest(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
	if lerr := c.guard(env, "test"); lerr != nil {
		return lerr
	}
	if lerr := c.declareTest(env, args.Cells[0], args.Cells[1]); lerr != nil {
		return lerr
	}
	return lisp.Nil()
}
