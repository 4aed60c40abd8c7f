// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"io"
	"os"
	"regexp"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorMode controls when ANSI color codes are used.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // detect based on terminal and NO_COLOR
	ColorAlways                  // always use colors
	ColorNever                   // never use colors
)

// ParseColorMode maps a flag value to a ColorMode.  Unknown values select
// ColorAuto.
func ParseColorMode(s string) ColorMode {
	switch s {
	case "always":
		return ColorAlways
	case "never":
		return ColorNever
	default:
		return ColorAuto
	}
}

// palette holds the styles used for code-frames.  Every style is forced on
// so that colored output does not depend on the process's terminal.
type palette struct {
	marker *color.Color
	gutter *color.Color
	line   *color.Color
	header *color.Color
}

func newPalette() palette {
	p := palette{
		marker: color.New(color.FgRed, color.Bold),
		gutter: color.New(color.FgHiBlack),
		line:   color.New(color.Bold),
		header: color.New(color.FgRed, color.Bold),
	}
	p.marker.EnableColor()
	p.gutter.EnableColor()
	p.line.EnableColor()
	p.header.EnableColor()
	return p
}

var ansiPalette = newPalette()

// useColor decides whether output to w should be colored.
func useColor(mode ColorMode, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default: // ColorAuto
		if os.Getenv("NO_COLOR") != "" {
			return false
		}
		f, ok := w.(*os.File)
		if !ok {
			return false
		}
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
}

var ansiRegexp = regexp.MustCompile("\x1b\\[[0-9;]*m")

// StripANSI removes ANSI color escape sequences from s.
func StripANSI(s string) string {
	return ansiRegexp.ReplaceAllString(s, "")
}
