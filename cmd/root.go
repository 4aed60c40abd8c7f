// Copyright © 2018 The ELPS authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	colorFlag string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "e2ec",
	Short: "e2ec compiles end-to-end test sources",
	Long: `e2ec compiles end-to-end test sources into fixtures and tests.

Test files are ELPS Lisp files that declare fixtures and tests:

  (set 'login (require "./login"))

  (thread-first (fixture "Account")
                (page "example.org/account"))

  (test "Sign in" (lambda (run)
    (funcall (get login "sign-in") run)))

Files named like *.test.lisp use the legacy functions define-fixture,
define-page and define-test.  Files ending in .e2e are raw documents
listing fixtures, tests and commands in YAML or JSON.

Getting started:
  e2ec compile tests/...           Compile every test below tests/
  e2ec compile --json a.lisp       Print the compiled tests as JSON
  e2ec list tests/...              List fixtures and tests

Configuration is read from $HOME/.e2ec.yaml (or --config), from a .env file
in the working directory and from E2EC_* environment variables, for example
E2EC_RAW_EXTENSIONS=".e2e .yaml".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		renderError(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.e2ec.yaml)")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "auto",
		`Control colored output: "auto", "always", or "never".`)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log compilation progress to stderr.")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".e2ec" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".e2ec")
	}

	setDefaults(viper.GetViper())
	viper.SetEnvPrefix("e2ec")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logrus.WithField("config", viper.ConfigFileUsed()).Debug("using config file")
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
