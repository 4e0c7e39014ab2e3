// Package execx runs external management tools through structured command
// descriptors. Device addresses and names are peer-influenced input, so
// commands are never assembled as shell strings.
package execx

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout applies when a Command carries no explicit timeout.
const DefaultTimeout = 10 * time.Second

// Command describes one external tool invocation.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
	Env     []string // extra KEY=VALUE entries appended to the environment
}

// String renders the command for logging.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner abstracts command execution so the Bluetooth stack can be tested
// against canned tool output.
type Runner interface {
	// Run executes the command and returns its combined, trimmed output.
	// Output is returned even when the command exits non-zero; failure
	// classification happens on the text, not the exit code.
	Run(ctx context.Context, cmd Command) (string, error)

	// Start launches the command detached. Output is discarded and the
	// process is not waited on.
	Start(cmd Command) error
}

// ExecRunner is the os/exec backed Runner used in production.
type ExecRunner struct{}

// NewRunner returns a Runner backed by os/exec.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (string, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	out, err := c.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (r *ExecRunner) Start(cmd Command) error {
	c := exec.Command(cmd.Path, cmd.Args...)
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdout = nil
	c.Stderr = nil
	if err := c.Start(); err != nil {
		return err
	}
	// Detach; the child is timed or long-lived and reaps on its own.
	return c.Process.Release()
}
