// Copyright © 2024 The ELPS authors

package cmd

import (
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/luthersystems/e2ec/diagnostic"
)

func newRenderer() *diagnostic.Renderer {
	return &diagnostic.Renderer{Color: diagnostic.ParseColorMode(colorFlag)}
}

// configureColor turns fatih/color output on or off for w according to the
// --color flag.
func configureColor(w io.Writer) {
	color.NoColor = !newRenderer().Colored(w)
}

// renderError writes err, with its stack when it is a compilation error, to
// stderr.
func renderError(err error) {
	_ = newRenderer().Render(os.Stderr, err)
}
