// Copyright © 2024 The ELPS authors

package sandbox

import (
	"errors"
	"path/filepath"

	"github.com/luthersystems/elps/lisp"

	"github.com/luthersystems/e2ec/diagnostic"
)

// ScriptError is an error raised by sandboxed code while a test runs.
type ScriptError struct {
	Condition string
	Message   string
	Frames    []diagnostic.Frame
	Err       error
}

func (e *ScriptError) Error() string {
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// nativeError returns the Go error carried by lerr, if any.
func nativeError(lerr *lisp.LVal) error {
	if len(lerr.Cells) == 0 {
		return nil
	}
	err, _ := lerr.Cells[0].Native.(error)
	return err
}

// normalize converts an interpreter error raised while compiling into a
// *diagnostic.Error with a filtered stack.
func (s *Sandbox) normalize(lerr *lisp.LVal) *diagnostic.Error {
	ev := (*lisp.ErrorVal)(lerr)
	var derr *diagnostic.Error
	cause := nativeError(lerr)
	if cause == nil || !errors.As(cause, &derr) {
		if cause == nil {
			cause = lisp.GoError(lerr)
		}
		derr = diagnostic.Runtime(ev.ErrorMessage(), cause)
		if src := lerr.Source; src != nil && filepath.IsAbs(src.Path) {
			derr.File, derr.Line, derr.Col = src.Path, src.Line, src.Col
		}
	}
	if len(derr.Frames) == 0 {
		derr.Frames = frames(lerr.CallStack())
	}
	s.filter.Apply(derr)
	if derr.Kind == diagnostic.KindAPIValidation && derr.CodeFrame == "" {
		s.renderer.Attach(derr)
	}
	return derr
}

func (s *Sandbox) scriptError(lerr *lisp.LVal) *ScriptError {
	ev := (*lisp.ErrorVal)(lerr)
	err := nativeError(lerr)
	if err == nil {
		err = lisp.GoError(lerr)
	}
	return &ScriptError{
		Condition: lerr.Str,
		Message:   ev.ErrorMessage(),
		Frames:    s.filter.Filter(frames(lerr.CallStack())),
		Err:       err,
	}
}

// frames converts stack to innermost-first frames.  Each frame is located at
// the call site of the function it names.
func frames(stack *lisp.CallStack) []diagnostic.Frame {
	if stack == nil {
		return nil
	}
	out := make([]diagnostic.Frame, 0, len(stack.Frames))
	for i := len(stack.Frames) - 1; i >= 0; i-- {
		f := stack.Frames[i]
		if f.Source == nil {
			continue
		}
		file := f.Source.Path
		if file == "" {
			file = f.Source.File
		}
		out = append(out, diagnostic.Frame{
			Func: f.QualifiedFunName(lisp.DefaultUserPackage),
			File: file,
			Line: f.Source.Line,
			Col:  f.Source.Col,
		})
	}
	return out
}
