// Copyright © 2024 The ELPS authors

package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luthersystems/e2ec/compiler"
	"github.com/luthersystems/e2ec/suite"
)

var (
	compileJSON     bool
	compileExcludes []string
)

var compileCmd = &cobra.Command{
	Use:   "compile [flags] files...",
	Short: "Compile test sources and print the tests they declare",
	Long: `Compile test sources and print the tests they declare.

Every argument must name an existing file.  An argument ending in "/..."
expands to all .lisp and raw files below the directory.  Code files that do
not declare a fixture are helpers and contribute no tests.

If any source fails to compile, the error and its stack are printed and
nothing else is.

Exit codes:
  0  All sources compiled
  1  A source failed to compile or the invocation was invalid

Examples:
  e2ec compile tests/login.lisp tests/smoke.e2e
  e2ec compile --json tests/...
  e2ec compile --exclude=helpers tests/...`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := compileArgs(cmd, args)
		if err != nil {
			return err
		}
		if compileJSON {
			return writeJSON(cmd.OutOrStdout(), res.Tests)
		}
		return writeTests(cmd.OutOrStdout(), res.Tests)
	},
}

// compileArgs expands args and compiles them with the configured compiler.
func compileArgs(cmd *cobra.Command, args []string) (*compiler.Result, error) {
	log := logrus.NewEntry(logrus.StandardLogger())
	cfg := compilerConfig(viper.GetViper(), log)
	exts := append([]string{".lisp"}, cfg.RawExtensions...)
	paths, err := expandArgs(args, exts, compileExcludes)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no test sources found")
	}
	c, err := compiler.New(cfg)
	if err != nil {
		return nil, err
	}
	return c.Compile(cmd.Context(), paths)
}

func writeJSON(w io.Writer, tests []*suite.Test) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if tests == nil {
		tests = []*suite.Test{}
	}
	return enc.Encode(tests)
}

func writeTests(w io.Writer, tests []*suite.Test) error {
	configureColor(w)
	name := color.New(color.Bold)
	faint := color.New(color.FgHiBlack)
	legacy := color.New(color.FgYellow)
	var fixture *suite.Fixture
	for _, t := range tests {
		if t.Fixture != fixture {
			fixture = t.Fixture
			if _, err := fmt.Fprintf(w, "%s %s\n", name.Sprint(fixture.Name), faint.Sprintf("(%s)", fixture.PageURL)); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "  %s\n", faint.Sprint(fixture.Path)); err != nil {
				return err
			}
		}
		line := "  - " + t.Name
		if t.Legacy() {
			line += " " + legacy.Sprint("[legacy]")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().BoolVar(&compileJSON, "json", false,
		"Output the compiled tests as JSON.")
	compileCmd.Flags().StringArrayVar(&compileExcludes, "exclude", nil,
		"Glob pattern for files to exclude (may be repeated).")
}
