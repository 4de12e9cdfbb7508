// Package cli holds the visionchat command tree. cmd/visionchat only calls Main.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Options are the persistent flags shared by every subcommand.
type Options struct {
	ConfigPath string
	LogLevel   string
	Backend    string
	Model      string
	BaseURL    string
}

// streams are the process stdio, replaced in tests.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// Execute runs the command tree with explicit stdio and returns the error, if any.
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	root := buildRootCmd(&Options{}, streams{in: in, out: out, err: errOut})
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

// MainWithArgs is a testable variant of Main that accepts args explicitly.
// It returns an exit code (0 for success, non-zero on error).
func MainWithArgs(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := Execute(ctx, args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != errUsage {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return exitCode(err)
}

// Main returns an exit code for use by cmd/visionchat.
func Main() int { return MainWithArgs(os.Args[1:]) }
