// Copyright © 2024 The ELPS authors

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/luthersystems/elps/lisp"
	"github.com/sirupsen/logrus"

	"github.com/luthersystems/e2ec/diagnostic"
)

// ModuleExtension is appended to module names that do not name a file.
const ModuleExtension = ".lisp"

const requireDocs = `Loads the module named by specifier and returns a sorted-map of
the symbols it exports.  Relative specifiers are resolved against the file
containing the call.  A module is evaluated at most once; later calls
return the same exports.`

func (s *Sandbox) requireBuiltin() lisp.LBuiltinDef {
	return Function("require", lisp.Formals("specifier"), s.builtinRequire).WithDocs(requireDocs)
}

func (s *Sandbox) builtinRequire(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
	spec, ok := lisp.GoString(args.Cells[0])
	if !ok {
		return env.Errorf("require: the module specifier is expected to be a string: %v", args.Cells[0].Type)
	}
	if err := s.ctx.Err(); err != nil {
		return env.Error(err)
	}
	if spec == s.cfg.CapabilityModule {
		return s.capMod
	}
	from := callerFile(env)
	path, ok := s.resolve(spec, from)
	if !ok {
		return env.Error(diagnostic.ModuleResolution(spec, from))
	}
	return s.load(env, path, from)
}

// callerFile returns the file containing the expression being evaluated.
func callerFile(env *lisp.LEnv) string {
	if env.Loc != nil && filepath.IsAbs(env.Loc.Path) {
		return env.Loc.Path
	}
	if top := env.Runtime.Stack.Top(); top != nil && top.Source != nil {
		return top.Source.Path
	}
	return ""
}

// resolve maps a specifier to an existing file.
func (s *Sandbox) resolve(spec, from string) (string, bool) {
	var bases []string
	switch {
	case spec == "":
		return "", false
	case filepath.IsAbs(spec):
		bases = []string{spec}
	case isRelative(spec):
		dir := "."
		if from != "" {
			dir = filepath.Dir(from)
		}
		bases = []string{filepath.Join(dir, spec)}
	default:
		for _, root := range s.cfg.ModulePaths {
			bases = append(bases, filepath.Join(root, spec))
		}
	}
	for _, base := range bases {
		base, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		for _, candidate := range []string{base, base + ModuleExtension, filepath.Join(base, "index"+ModuleExtension)} {
			if isFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." ||
		strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// load evaluates the module at path in a package of its own and returns its
// exports.
func (s *Sandbox) load(env *lisp.LEnv, path, from string) *lisp.LVal {
	if m, ok := s.modules[path]; ok {
		if m.loading {
			return env.Error(diagnostic.Runtime(
				fmt.Sprintf("Circular dependency: %s requires %s which is still loading", from, path), nil))
		}
		return m.exports
	}
	src, err := s.cfg.ReadFile(path)
	if err != nil {
		return env.Error(diagnostic.ModuleResolution(path, from))
	}
	exprs, err := s.parse(path, src)
	if err != nil {
		return env.Error(err)
	}

	rt := env.Runtime
	// Module code shares the stack with the caller.  Blocking tail-recursion
	// optimization keeps the require frame in error stacks.
	if top := rt.Stack.Top(); top != nil {
		top.TROBlock = true
	}
	outer := rt.Package
	defer func() { rt.Package = outer }()

	m := &module{path: path, pkg: s.packageName(path), loading: true}
	s.modules[path] = m
	rt.Registry.DefinePackage(m.pkg)
	rt.Package = rt.Registry.Packages[m.pkg]
	lerr := env.UsePackage(lisp.Symbol(rt.Registry.Lang))
	if lerr.Type == lisp.LError {
		return lerr
	}
	if err := addBuiltins(env, []lisp.LBuiltinDef{s.requireBuiltin()}); err != nil {
		return env.Error(err)
	}

	s.log.WithFields(logrus.Fields{
		"module":  path,
		"package": m.pkg,
	}).Debug("loading module")
	if lerr := s.eval(lisp.NewEnv(s.env), exprs); lerr != nil {
		return lerr
	}
	// The module may have switched into a package of its own.
	m.exports = exportsOf(rt.Package)
	m.loading = false
	return m.exports
}
