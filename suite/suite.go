// Copyright © 2024 The ELPS authors

// Package suite defines the descriptors produced by compiling test sources:
// fixtures, tests and the commands raw tests issue to a test run.
package suite

import (
	"context"
	"regexp"
)

// DefaultPageURL is the page a fixture opens when none is declared.
const DefaultPageURL = "about:blank"

var schemeRegexp = regexp.MustCompile(`^[\w-]+:`)

// NormalizePageURL returns the URL a fixture should navigate to.  An empty
// url yields DefaultPageURL and a url without a scheme gets "http://".
func NormalizePageURL(url string) string {
	if url == "" {
		return DefaultPageURL
	}
	if !schemeRegexp.MatchString(url) {
		return "http://" + url
	}
	return url
}

// Fixture is a named group of tests sharing a page.  Tests declared under
// the same fixture point at the same *Fixture.
type Fixture struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	PageURL string `json:"pageUrl"`
}

// NewFixture returns a fixture declared in the file at path.
func NewFixture(name, path string) *Fixture {
	return &Fixture{
		Name:    name,
		Path:    path,
		PageURL: DefaultPageURL,
	}
}

// SetPage assigns the normalized page URL.
func (f *Fixture) SetPage(url string) {
	f.PageURL = NormalizePageURL(url)
}

// TestRun is the execution context the engine hands to a test function.
type TestRun interface {
	ExecuteCommand(ctx context.Context, cmd Command) error
}

// TestFunc is the entry point of a compiled test.
type TestFunc func(ctx context.Context, run TestRun) (interface{}, error)

// Test is one compiled test.
type Test struct {
	Name    string   `json:"name"`
	Fixture *Fixture `json:"fixture"`
	Fn      TestFunc `json:"-"`

	// IsLegacy is set only for tests written in the legacy dialect.
	IsLegacy *bool `json:"isLegacy,omitempty"`
}

// Legacy reports whether t was written in the legacy dialect.
func (t *Test) Legacy() bool {
	return t.IsLegacy != nil && *t.IsLegacy
}

// Format identifies how a source file is written.
type Format int

const (
	FormatCode Format = iota
	FormatRaw
)

func (f Format) String() string {
	switch f {
	case FormatCode:
		return "code"
	case FormatRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Source is the result of compiling a single file.
type Source struct {
	Path   string
	Format Format
	Tests  []*Test
}
