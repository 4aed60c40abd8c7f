// Copyright © 2024 The ELPS authors

// Package compiler turns test source files into test descriptors.
//
// Files with a raw extension are decoded as declarative documents.  Other
// files are code: those declaring a fixture are evaluated, together with the
// modules they require, in a sandbox of their own and the fixtures and tests
// they declare are collected.  Code files that declare no fixture are
// helpers and contribute nothing.
//
// Any failure aborts the compilation and is reported as a single
// *diagnostic.Error.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/luthersystems/e2ec/diagnostic"
	"github.com/luthersystems/e2ec/dsl"
	"github.com/luthersystems/e2ec/rawformat"
	"github.com/luthersystems/e2ec/sandbox"
	"github.com/luthersystems/e2ec/suite"
)

const tracerName = "github.com/luthersystems/e2ec/compiler"

// Compiler compiles test sources.  A Compiler may be used concurrently.
type Compiler struct {
	cfg    Config
	log    *logrus.Entry
	filter *diagnostic.StackFilter
	tracer trace.Tracer
}

// New validates cfg and returns a Compiler.
func New(cfg Config) (*Compiler, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.LegacyPattern == "" {
		cfg.LegacyPattern = dsl.DefaultLegacyPattern
	}
	if _, err := filepath.Match(cfg.LegacyPattern, ""); err != nil {
		return nil, fmt.Errorf("invalid legacy pattern %q: %w", cfg.LegacyPattern, err)
	}
	filter, err := diagnostic.NewStackFilter(cfg.StackExclude)
	if err != nil {
		return nil, err
	}
	return &Compiler{
		cfg:    cfg,
		log:    cfg.Logger,
		filter: filter,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Compile compiles the sources at paths with DefaultConfig.
func Compile(ctx context.Context, paths []string) (*Result, error) {
	c, err := New(DefaultConfig())
	if err != nil {
		return nil, err
	}
	return c.Compile(ctx, paths)
}

// Result holds the tests of every compiled source in input order.
type Result struct {
	Sources []*suite.Source
	Tests   []*suite.Test
}

// Fixtures returns the distinct fixtures of r's tests in the order they are
// first referenced.
func (r *Result) Fixtures() []*suite.Fixture {
	var fixtures []*suite.Fixture
	seen := make(map[*suite.Fixture]bool)
	for _, t := range r.Tests {
		if seen[t.Fixture] {
			continue
		}
		seen[t.Fixture] = true
		fixtures = append(fixtures, t.Fixture)
	}
	return fixtures
}

// Classify returns the format path is compiled in.
func (c *Compiler) Classify(path string) suite.Format {
	base := strings.ToLower(filepath.Base(path))
	for _, ext := range c.cfg.RawExtensions {
		if ext != "" && strings.HasSuffix(base, strings.ToLower(ext)) {
			return suite.FormatRaw
		}
	}
	return suite.FormatCode
}

// Compile compiles the sources at paths.  Relative paths are resolved
// against the working directory.  Every path must exist.
func (c *Compiler) Compile(ctx context.Context, paths []string) (res *Result, err error) {
	ctx, span := c.tracer.Start(ctx, "compile", trace.WithAttributes(
		attribute.Int("e2ec.sources", len(paths)),
	))
	defer func() { endSpan(span, err) }()

	abs, err := c.locate(paths)
	if err != nil {
		return nil, err
	}
	cache, err := newSourceCache(c.cfg.SourceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create source cache: %w", err)
	}
	c.log.WithField("sources", len(abs)).Debug("compiling")

	limit := c.cfg.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	// Every error is kept at its input index and the first one by index is
	// reported.  Sources after a failed one are skipped.
	var (
		mu     sync.Mutex
		failed = len(abs)
	)
	sources := make([]*suite.Source, len(abs))
	errs := make([]error, len(abs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, path := range abs {
		i, path := i, path
		g.Go(func() error {
			mu.Lock()
			skip := failed < i
			mu.Unlock()
			if skip {
				return nil
			}
			src, err := c.compileSource(ctx, path, cache)
			if err == nil {
				sources[i] = src
				return nil
			}
			errs[i] = err
			mu.Lock()
			if i < failed {
				failed = i
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	res = &Result{Sources: sources}
	for _, src := range sources {
		res.Tests = append(res.Tests, src.Tests...)
	}
	span.SetAttributes(attribute.Int("e2ec.tests", len(res.Tests)))
	c.log.WithField("tests", len(res.Tests)).Debug("compiled")
	return res, nil
}

// locate makes paths absolute and checks that they exist.
func (c *Compiler) locate(paths []string) ([]string, error) {
	abs := make([]string, len(paths))
	for i, path := range paths {
		p, err := filepath.Abs(path)
		if err != nil {
			return nil, diagnostic.MissingSourceFile(path, err)
		}
		if _, err := os.Stat(p); err != nil {
			return nil, diagnostic.MissingSourceFile(p, err)
		}
		abs[i] = p
	}
	return abs, nil
}

func (c *Compiler) compileSource(ctx context.Context, path string, cache *sourceCache) (s *suite.Source, err error) {
	format := c.Classify(path)
	ctx, span := c.tracer.Start(ctx, "compile source", trace.WithAttributes(
		semconv.CodeFilepath(path),
		attribute.String("e2ec.format", format.String()),
	))
	defer func() { endSpan(span, err) }()
	log := c.log.WithFields(logrus.Fields{
		"path":   path,
		"format": format,
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := cache.ReadFile(path)
	if err != nil {
		return nil, diagnostic.MissingSourceFile(path, err)
	}
	s = &suite.Source{Path: path, Format: format}
	switch format {
	case suite.FormatRaw:
		s.Tests, err = rawformat.Parse(path, src)
	default:
		s.Tests, err = c.compileCode(ctx, log, path, src, cache)
	}
	if err != nil {
		var derr *diagnostic.Error
		if errors.As(err, &derr) {
			c.filter.Apply(derr)
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("e2ec.tests", len(s.Tests)))
	log.WithField("tests", len(s.Tests)).Debug("compiled source")
	return s, nil
}

func (c *Compiler) compileCode(ctx context.Context, log *logrus.Entry, path string, src []byte, cache *sourceCache) ([]*suite.Test, error) {
	dialect, err := dsl.Select(path, c.cfg.LegacyPattern)
	if err != nil {
		return nil, err
	}
	if !dialect.Declares(src) {
		log.Debug("skipping file without fixtures")
		return nil, nil
	}
	sb, err := sandbox.New(sandbox.Config{
		ModulePaths:      c.cfg.ModulePaths,
		CapabilityModule: c.cfg.CapabilityModule,
		Capabilities:     c.cfg.Capabilities,
		MaxStackHeight:   c.cfg.MaxStackHeight,
		StackFilter:      c.filter,
		ContextLines:     c.cfg.ContextLines,
		ReadFile:         cache.ReadFile,
		Logger:           log.WithField("dialect", dialect.Name()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox for %s: %w", path, err)
	}
	col := dsl.NewCollector(path, sb, dialect)
	err = sb.Run(ctx, path, src, dialect.Builtins(col)...)
	col.Seal()
	if err != nil {
		return nil, err
	}
	return col.Tests(), nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
