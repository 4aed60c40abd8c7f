// Copyright © 2024 The ELPS authors

package sandbox

import (
	"fmt"
	"sort"

	"github.com/luthersystems/elps/lisp"

	"github.com/luthersystems/e2ec/suite"
)

const executeCommandDocs = `Sends command, a sorted-map with a "type" key, to the test run
given to the test body and waits for it to complete.  A failed command
raises an error.`

// defineCapabilities defines the capability package and builds the value
// returned by requiring the capability module.
func (s *Sandbox) defineCapabilities(env *lisp.LEnv) error {
	name := s.cfg.CapabilityModule
	if s.pkgNames[name] {
		return fmt.Errorf("capability module name is a library package: %s", name)
	}
	s.pkgNames[name] = true
	rt := env.Runtime
	rt.Registry.DefinePackage(name)
	rt.Package = rt.Registry.Packages[name]
	lerr := env.UsePackage(lisp.Symbol(rt.Registry.Lang))
	if lerr.Type == lisp.LError {
		return lisp.GoError(lerr)
	}
	env.AddBuiltins(true,
		Function("execute-command", lisp.Formals("run", "command"), s.builtinExecuteCommand).WithDocs(executeCommandDocs),
	)

	mod := lisp.SortedMap()
	keys := make([]string, 0, len(s.cfg.Capabilities))
	for k := range s.cfg.Capabilities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		mod.MapSet(k, lisp.Native(s.cfg.Capabilities[k]))
	}
	pkg := rt.Package
	for _, sym := range pkg.Externals {
		mod.MapSet(sym, pkg.Get(lisp.Symbol(sym)))
	}
	s.capMod = mod
	return nil
}

func (s *Sandbox) builtinExecuteCommand(env *lisp.LEnv, args *lisp.LVal) *lisp.LVal {
	runv, cmdv := args.Cells[0], args.Cells[1]
	run, ok := runv.Native.(suite.TestRun)
	if runv.Type != lisp.LNative || !ok {
		return env.Errorf("execute-command: the first argument is expected to be a test run: %v", runv.Type)
	}
	cmd, err := toCommand(cmdv)
	if err != nil {
		return env.Errorf("execute-command: %v", err)
	}
	if err := run.ExecuteCommand(s.ctx, cmd); err != nil {
		return env.Error(err)
	}
	return lisp.Nil()
}

// toCommand converts a sorted-map to a command document.
func toCommand(v *lisp.LVal) (suite.Command, error) {
	m, ok := lisp.GoMap(v)
	if !ok {
		return nil, fmt.Errorf("the command is expected to be a sorted-map: %v", v.Type)
	}
	if m == nil {
		return nil, fmt.Errorf("the command has keys that cannot be converted")
	}
	cmd := make(suite.Command, len(m))
	for k, val := range m {
		cmd[fmt.Sprint(k)] = normalizeValue(val)
	}
	return cmd, nil
}

// normalizeValue converts nested maps to map[string]interface{} so that
// command documents are uniform regardless of their source format.
func normalizeValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []interface{}:
		for i := range v {
			v[i] = normalizeValue(v[i])
		}
		return v
	default:
		return v
	}
}
