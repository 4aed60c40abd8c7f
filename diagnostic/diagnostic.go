// Copyright © 2024 The ELPS authors

// Package diagnostic normalizes every failure the compiler can produce into
// a single error shape carrying a message, a source position, a filtered
// call stack and an optional code-frame.  It does not depend on the
// interpreter.
package diagnostic

import (
	"bytes"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	KindMissingSourceFile Kind = iota
	KindSyntax
	KindModuleResolution
	KindRuntime
	KindAPIValidation
	KindRawFormatParse
)

func (k Kind) String() string {
	switch k {
	case KindMissingSourceFile:
		return "MissingSourceFile"
	case KindSyntax:
		return "SyntaxError"
	case KindModuleResolution:
		return "ModuleResolutionError"
	case KindRuntime:
		return "RuntimeError"
	case KindAPIValidation:
		return "ApiValidationError"
	case KindRawFormatParse:
		return "RawFormatParseError"
	default:
		return "unknown"
	}
}

// Classification names used in rendered messages.
const (
	ClassSyntax = "SyntaxError"
	ClassError  = "Error"
)

// Frame is one entry of a rendered call stack.
type Frame struct {
	Func string `json:"func"`
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

func (f Frame) String() string {
	name := f.Func
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("%s (%s:%d:%d)", name, f.File, f.Line, f.Col)
}

// Error is the single error type returned by a compilation.
type Error struct {
	Kind Kind

	// Path is the file the error is about.  For a missing source file it is
	// the absolute path that could not be found.
	Path string

	// Message is the kind-specific message without any preamble.
	Message string

	// Class overrides the classification rendered after the preamble.
	Class string

	File string
	Line int
	Col  int

	// Frames are ordered innermost first.
	Frames []Frame

	CodeFrame        string
	ColoredCodeFrame string

	Err error
}

var renderers = map[Kind]func(e *Error) string{
	KindMissingSourceFile: renderMissingSourceFile,
	KindSyntax:            renderPrepare,
	KindModuleResolution:  renderPrepare,
	KindRuntime:           renderPrepare,
	KindAPIValidation:     renderAPIValidation,
	KindRawFormatParse:    renderRawFormatParse,
}

// Error implements the error interface.
func (e *Error) Error() string {
	render, ok := renderers[e.Kind]
	if !ok {
		return e.Message
	}
	return render(e)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classification returns the name printed before the message.
func (e *Error) Classification() string {
	if e.Class != "" {
		return e.Class
	}
	if e.Kind == KindSyntax || e.Kind == KindRawFormatParse {
		return ClassSyntax
	}
	return ClassError
}

// Stack returns the rendered message followed by the code-frame, when one
// exists, and one line per frame.
func (e *Error) Stack() string {
	return e.stack(e.CodeFrame)
}

// ColoredStack is Stack with a colorized code-frame.  Stripping its escape
// sequences yields Stack.
func (e *Error) ColoredStack() string {
	frame := e.ColoredCodeFrame
	if frame == "" {
		frame = e.CodeFrame
	}
	return e.stack(frame)
}

func (e *Error) stack(codeFrame string) string {
	var buf bytes.Buffer
	buf.WriteString(e.Error())
	if codeFrame != "" {
		buf.WriteString("\n\n")
		buf.WriteString(codeFrame)
	}
	for _, f := range e.Frames {
		buf.WriteString("\n    at ")
		buf.WriteString(f.String())
	}
	return buf.String()
}

func renderMissingSourceFile(e *Error) string {
	return `Cannot find a test source file at "` + e.Path + `".`
}

func renderPrepare(e *Error) string {
	return "Cannot prepare tests due to an error.\n\n " + e.Classification() + ": " + e.Message
}

func renderAPIValidation(e *Error) string {
	return e.Message
}

func renderRawFormatParse(e *Error) string {
	return `Cannot parse a test source file in the raw format at "` + e.Path + `" due to an error.` +
		"\n\n " + e.Classification() + ": " + e.Message
}

// MissingSourceFile returns the error for a source path that does not exist.
func MissingSourceFile(abs string, err error) *Error {
	return &Error{Kind: KindMissingSourceFile, Path: abs, Err: err}
}

// Syntax returns the error for a code source that failed to parse.  The
// message embeds the path and, when known, the position.
func Syntax(path string, line, col int, msg string, err error) *Error {
	message := path + ": " + msg
	if line > 0 {
		message += fmt.Sprintf(" (%d:%d)", line, col)
	}
	return &Error{
		Kind:    KindSyntax,
		Path:    path,
		File:    path,
		Line:    line,
		Col:     col,
		Message: message,
		Err:     err,
	}
}

// ModuleResolution returns the error for a dependency that cannot be found.
func ModuleResolution(specifier, from string) *Error {
	return &Error{
		Kind:    KindModuleResolution,
		Path:    from,
		Message: fmt.Sprintf("Cannot find module '%s'", specifier),
	}
}

// Runtime returns the error for a failure raised while evaluating a module.
func Runtime(msg string, err error) *Error {
	return &Error{Kind: KindRuntime, Message: msg, Err: err}
}

// APIValidation returns the error for a misuse of the test declaration API
// at file:line:col.
func APIValidation(msg, file string, line, col int) *Error {
	return &Error{
		Kind:    KindAPIValidation,
		Path:    file,
		File:    file,
		Line:    line,
		Col:     col,
		Message: msg,
	}
}

// RawFormatParse returns the error for a raw source that failed to decode.
// class is ClassSyntax for malformed documents and ClassError for documents
// of the wrong shape.
func RawFormatParse(path, class, msg string, err error) *Error {
	return &Error{
		Kind:    KindRawFormatParse,
		Path:    path,
		Class:   class,
		Message: msg,
		Err:     err,
	}
}
