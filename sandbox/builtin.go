// Copyright © 2018 The ELPS authors

package sandbox

import (
	"fmt"

	"github.com/luthersystems/elps/lisp"
)

// Function is a helper to construct builtins.
func Function(name string, formals *lisp.LVal, fun lisp.LBuiltin) *Builtin {
	return &Builtin{formals: formals, fun: fun, name: name}
}

// Builtin captures Go functions that are callable from sandboxed code.
type Builtin struct {
	formals *lisp.LVal
	fun     lisp.LBuiltin
	name    string
	docs    string
}

var _ lisp.LBuiltinDef = (*Builtin)(nil)

// WithDocs sets the docstring shown by the interpreter's help functions.
func (fun *Builtin) WithDocs(docs string) *Builtin {
	fun.docs = docs
	return fun
}

// Name returns the name of a function.
func (fun *Builtin) Name() string {
	return fun.name
}

// Formals returns the formal arguments of a function.
func (fun *Builtin) Formals() *lisp.LVal {
	return fun.formals
}

// Eval evaluates a function on an environment.
func (fun *Builtin) Eval(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
	return fun.fun(env, args)
}

// Docstring returns the function's documentation.
func (fun *Builtin) Docstring() string {
	return fun.docs
}

// addBuiltins binds defs in the runtime's current package.  Unlike
// LEnv.AddBuiltins it reports a name collision as an error.
func addBuiltins(env *lisp.LEnv, defs []lisp.LBuiltinDef) error {
	pkg := env.Runtime.Package
	for _, def := range defs {
		if _, ok := pkg.Symbols[def.Name()]; ok {
			return fmt.Errorf("symbol already defined in package %s: %s", pkg.Name, def.Name())
		}
	}
	if len(defs) == 0 {
		return nil
	}
	env.AddBuiltins(false, defs...)
	return nil
}
