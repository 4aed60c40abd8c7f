// Copyright © 2024 The ELPS authors

package suite

import "fmt"

// Command is an opaque command document understood by the execution engine.
type Command map[string]interface{}

// Type returns the command's "type" entry or the empty string.
func (c Command) Type() string {
	s, _ := c["type"].(string)
	return s
}

// String returns a short description for logs.
func (c Command) String() string {
	if t := c.Type(); t != "" {
		return fmt.Sprintf("command(%s)", t)
	}
	return "command"
}
