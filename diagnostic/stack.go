// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// DefaultStackExclude matches pseudo files such as "<native code>".
var DefaultStackExclude = []string{`^<.*>$`}

// StackFilter removes frames that do not point into user source files.
// Frames without an absolute file are always removed.
type StackFilter struct {
	exclude []*regexp.Regexp
}

// NewStackFilter compiles the exclusion patterns.  A nil slice selects
// DefaultStackExclude.
func NewStackFilter(patterns []string) (*StackFilter, error) {
	if patterns == nil {
		patterns = DefaultStackExclude
	}
	f := &StackFilter{}
	for _, pat := range patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("invalid stack exclusion %q: %w", pat, err)
		}
		f.exclude = append(f.exclude, re)
	}
	return f, nil
}

// Keep reports whether a frame located in file belongs in a rendered stack.
func (f *StackFilter) Keep(file string) bool {
	if file == "" || !filepath.IsAbs(file) {
		return false
	}
	if f == nil {
		return true
	}
	for _, re := range f.exclude {
		if re.MatchString(file) {
			return false
		}
	}
	return true
}

// Filter returns the frames that Keep accepts, preserving order.
func (f *StackFilter) Filter(frames []Frame) []Frame {
	var kept []Frame
	for _, fr := range frames {
		if f.Keep(fr.File) {
			kept = append(kept, fr)
		}
	}
	return kept
}

// Apply filters the frames of e in place.
func (f *StackFilter) Apply(e *Error) {
	e.Frames = f.Filter(e.Frames)
}
