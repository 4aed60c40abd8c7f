// Copyright © 2024 The ELPS authors

package dsl

import (
	"github.com/luthersystems/elps/lisp"

	"github.com/luthersystems/e2ec/sandbox"
)

// Legacy is the dialect of define-fixture, define-page and define-test.
// Tests declared with it are marked as legacy tests.
var Legacy Dialect = legacy{}

type legacy struct{}

func (legacy) Name() string { return "legacy" }

func (legacy) Legacy() bool { return true }

func (legacy) Declares(src []byte) bool {
	return legacyDecl.Match(src)
}

func (legacy) Builtins(c *Collector) []lisp.LBuiltinDef {
	return []lisp.LBuiltinDef{
		sandbox.Function("define-fixture", lisp.Formals("name"), c.builtinDefineFixture).
			WithDocs(`Declares a fixture called name and makes it the current fixture.`),
		sandbox.Function("define-page", lisp.Formals("url"), c.builtinDefinePage).
			WithDocs(`Sets the page url of the current fixture.`),
		sandbox.Function("define-test", lisp.Formals("name", "body"), c.builtinDefineTest).
			WithDocs(`Declares a test called name in the current fixture.`),
	}
}

func (c *Collector) builtinDefineFixture(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
	if lerr := c.guard(env, "define-fixture"); lerr != nil {
		return lerr
	}
	if _, lerr := c.declareFixture(env, args.Cells[0]); lerr != nil {
		return lerr
	}
	return lisp.Nil()
}

func (c *Collector) builtinDefinePage(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
	if lerr := c.guard(env, "define-page"); lerr != nil {
		return lerr
	}
	if c.current == nil {
		return apiError(env, `The page function expects a fixture, but it was "%s".`, "undefined")
	}
	if lerr := c.setPage(env, c.current, args.Cells[0]); lerr != nil {
		return lerr
	}
	return lisp.Nil()
}

func (c *Collector) builtinDefineTest(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
	if lerr := c.guard(env, "define-test"); lerr != nil {
		return lerr
	}
	if lerr := c.declareTest(env, args.Cells[0], args.Cells[1]); lerr != nil {
		return lerr
	}
	return lisp.Nil()
}
