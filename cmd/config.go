// Copyright © 2024 The ELPS authors

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/luthersystems/e2ec/compiler"
)

// Configuration keys.  Each may also be set through E2EC_<KEY>.
const (
	keyRawExtensions    = "raw_extensions"
	keyLegacyPattern    = "legacy_pattern"
	keyModulePaths      = "module_paths"
	keyStackExclude     = "stack_exclude"
	keyConcurrency      = "concurrency"
	keyMaxStackHeight   = "max_stack_height"
	keyContextLines     = "context_lines"
	keyCapabilityModule = "capability_module"
)

func setDefaults(v *viper.Viper) {
	def := compiler.DefaultConfig()
	v.SetDefault(keyRawExtensions, def.RawExtensions)
	v.SetDefault(keyLegacyPattern, def.LegacyPattern)
	v.SetDefault(keyModulePaths, []string{})
	v.SetDefault(keyStackExclude, def.StackExclude)
	v.SetDefault(keyConcurrency, 0)
	v.SetDefault(keyMaxStackHeight, def.MaxStackHeight)
	v.SetDefault(keyContextLines, def.ContextLines)
	v.SetDefault(keyCapabilityModule, def.CapabilityModule)
}

// compilerConfig builds the compiler configuration from v.
func compilerConfig(v *viper.Viper, log *logrus.Entry) compiler.Config {
	cfg := compiler.DefaultConfig()
	cfg.RawExtensions = v.GetStringSlice(keyRawExtensions)
	cfg.LegacyPattern = v.GetString(keyLegacyPattern)
	cfg.ModulePaths = v.GetStringSlice(keyModulePaths)
	cfg.StackExclude = v.GetStringSlice(keyStackExclude)
	cfg.Concurrency = v.GetInt(keyConcurrency)
	cfg.MaxStackHeight = v.GetInt(keyMaxStackHeight)
	cfg.ContextLines = v.GetInt(keyContextLines)
	cfg.CapabilityModule = v.GetString(keyCapabilityModule)
	cfg.Logger = log
	return cfg
}
