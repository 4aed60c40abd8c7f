// Copyright © 2024 The ELPS authors

// Package compilertest contains helpers for testing the compiler and the
// tests it produces.
package compilertest

import (
	"context"
	"errors"
	"sync"

	"github.com/luthersystems/e2ec/suite"
)

// TestRun records the commands it executes.  When Fail is non-empty every
// command is recorded and then rejected with an error carrying Fail.
type TestRun struct {
	Fail string

	mu       sync.Mutex
	commands []suite.Command
}

var _ suite.TestRun = (*TestRun)(nil)

// NewTestRun returns a TestRun whose commands succeed.
func NewTestRun() *TestRun {
	return &TestRun{}
}

// NewFailingTestRun returns a TestRun whose commands fail with msg.
func NewFailingTestRun(msg string) *TestRun {
	return &TestRun{Fail: msg}
}

// ExecuteCommand implements suite.TestRun.
func (r *TestRun) ExecuteCommand(ctx context.Context, cmd suite.Command) error {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
	if r.Fail != "" {
		return errors.New(r.Fail)
	}
	return ctx.Err()
}

// Commands returns the commands executed so far.
func (r *TestRun) Commands() []suite.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]suite.Command, len(r.commands))
	copy(cp, r.commands)
	return cp
}
