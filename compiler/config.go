// Copyright © 2024 The ELPS authors

package compiler

import (
	"github.com/sirupsen/logrus"

	"github.com/luthersystems/e2ec/diagnostic"
	"github.com/luthersystems/e2ec/dsl"
	"github.com/luthersystems/e2ec/rawformat"
	"github.com/luthersystems/e2ec/sandbox"
)

// DefaultSourceCacheSize bounds the number of files a single Compile call
// keeps in memory.
const DefaultSourceCacheSize = 1024

// Config controls how sources are classified and compiled.
type Config struct {
	// RawExtensions are file name suffixes compiled as raw documents.
	RawExtensions []string

	// LegacyPattern matches the base names of files written in the legacy
	// dialect.
	LegacyPattern string

	// StackExclude are regular expressions matched against the file of each
	// stack frame.  Matching frames are removed from errors.
	StackExclude []string

	// ModulePaths are searched for bare module names.
	ModulePaths []string

	// CapabilityModule is the module name under which Capabilities are
	// exposed to test files.
	CapabilityModule string

	// Capabilities are handed to test files unchanged.
	Capabilities map[string]interface{}

	// Concurrency bounds the number of sources compiled at once.  Zero or
	// less means GOMAXPROCS.
	Concurrency int

	MaxStackHeight  int
	ContextLines    int
	SourceCacheSize int

	Logger *logrus.Entry
}

// DefaultConfig returns the configuration used by the package level Compile.
func DefaultConfig() Config {
	return Config{
		RawExtensions:    append([]string(nil), rawformat.DefaultExtensions...),
		LegacyPattern:    dsl.DefaultLegacyPattern,
		StackExclude:     append([]string(nil), diagnostic.DefaultStackExclude...),
		CapabilityModule: sandbox.DefaultCapabilityModule,
		MaxStackHeight:   sandbox.DefaultMaxStackHeight,
		ContextLines:     diagnostic.DefaultContextLines,
		SourceCacheSize:  DefaultSourceCacheSize,
	}
}
