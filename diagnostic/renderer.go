// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultContextLines is the number of lines shown on each side of the
// marked line in a code-frame.
const DefaultContextLines = 5

// Renderer builds code-frames and writes errors for display.
type Renderer struct {
	// Color controls ANSI color output. Default is ColorAuto.
	Color ColorMode

	// ContextLines is the number of lines around the marked line.  Zero
	// means DefaultContextLines and a negative value shows only the marked
	// line.
	ContextLines int

	// SourceReader reads source file contents. If nil, os.ReadFile is used.
	SourceReader func(string) ([]byte, error)
}

// Render writes err to w.  A *Error is written as its stack, colored when
// the renderer's color mode allows it.  Other errors are written with a
// plain header.
func (r *Renderer) Render(w io.Writer, err error) error {
	bw := bufio.NewWriter(w)
	ew := &errWriter{w: bw}
	colored := useColor(r.Color, w)

	derr, ok := err.(*Error)
	switch {
	case !ok && colored:
		ew.printf("%s %s\n", ansiPalette.header.Sprint("error:"), err)
	case !ok:
		ew.printf("error: %s\n", err)
	case colored:
		ew.print(derr.ColoredStack())
		ew.print("\n")
	default:
		ew.print(derr.Stack())
		ew.print("\n")
	}

	if ew.err != nil {
		return ew.err
	}
	return bw.Flush()
}

// Colored reports whether output written to w is colored.
func (r *Renderer) Colored(w io.Writer) bool {
	return useColor(r.Color, w)
}

// Attach reads the source of e.File and fills in both code-frames.  Errors
// without a position or with an unreadable file are left untouched.
func (r *Renderer) Attach(e *Error) {
	if e.File == "" || e.Line <= 0 {
		return
	}
	src, err := r.readSource(e.File)
	if err != nil {
		return
	}
	e.CodeFrame, e.ColoredCodeFrame = r.CodeFrame(src, e.Line)
}

// CodeFrame renders the lines of src around line.  Line numbers are right
// aligned to the widest number shown and the marked line is prefixed with
// " > ".  The plain and colored renderings differ only by escape sequences.
func (r *Renderer) CodeFrame(src []byte, line int) (plain, colored string) {
	lines := strings.Split(string(src), "\n")
	if line <= 0 || line > len(lines) {
		return "", ""
	}
	context := r.ContextLines
	if context == 0 {
		context = DefaultContextLines
	}
	if context < 0 {
		context = 0
	}
	first := line - context
	if first < 1 {
		first = 1
	}
	last := line + context
	if last > len(lines) {
		last = len(lines)
	}
	width := len(strconv.Itoa(last))

	var pb, cb strings.Builder
	p := ansiPalette
	for n := first; n <= last; n++ {
		if n > first {
			pb.WriteString("\n")
			cb.WriteString("\n")
		}
		text := strings.TrimSuffix(lines[n-1], "\r")
		num := fmt.Sprintf("%*d", width, n)
		gutter := num + " |"
		if n == line {
			pb.WriteString(" > " + gutter + text)
			cb.WriteString(p.marker.Sprint(" > ") + p.gutter.Sprint(gutter) + p.line.Sprint(text))
			continue
		}
		pb.WriteString("   " + gutter + text)
		cb.WriteString("   " + p.gutter.Sprint(gutter) + text)
	}
	return pb.String(), cb.String()
}

func (r *Renderer) readSource(file string) ([]byte, error) {
	reader := r.SourceReader
	if reader == nil {
		reader = func(name string) ([]byte, error) {
			return os.ReadFile(name) //nolint:gosec // reads user-specified source files for display
		}
	}
	return reader(file)
}

// errWriter wraps a writer and captures the first error, short-circuiting
// subsequent writes. This avoids checking every fmt.Fprintf return value.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, a ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, a...)
}

func (ew *errWriter) print(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = io.WriteString(ew.w, s)
}
