// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/luthersystems/e2ec/suite"
)

var listCmd = &cobra.Command{
	Use:   "list [flags] files...",
	Short: "List the fixtures and tests declared by test sources",
	Long: `List the fixtures and tests declared by test sources, one test per
line in the form "fixture > test".  Arguments are expanded as for compile.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := compileArgs(cmd, args)
		if err != nil {
			return err
		}
		return writeList(cmd.OutOrStdout(), res.Tests)
	},
}

func writeList(w io.Writer, tests []*suite.Test) error {
	for _, t := range tests {
		if _, err := fmt.Fprintf(w, "%s > %s\n", t.Fixture.Name, t.Name); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringArrayVar(&compileExcludes, "exclude", nil,
		"Glob pattern for files to exclude (may be repeated).")
}
