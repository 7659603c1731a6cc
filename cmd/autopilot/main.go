// File: cmd/autopilot/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/autopilot/cmd"
	"github.com/xkilldash9x/autopilot/internal/observability"
)

const (
	panicLogFile = "panic.log"
	prompt       = "autopilot > "
)

// Replaceable in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			// Ctrl+C during a run is a clean exit.
			if errors.Is(err, context.Canceled) {
				osExit(0)
				return
			}
			osExit(1)
		}
		return
	}

	if err := runShell(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// runShell reads commands line by line until EOF, "exit" or "quit".
func runShell(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "autopilot %s. Type a command, or \"exit\" to leave.\n", cmd.Version)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeInteractiveCommand(ctx, line, out)
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Fprintln(out, "Exiting autopilot.")
	return scanner.Err()
}

// executeInteractiveCommand runs one shell line on a fresh command tree.
// Errors are printed by cobra; panics are reported and swallowed so the
// shell survives.
func executeInteractiveCommand(ctx context.Context, line string, out io.Writer) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))
	rootCmd.SetOut(out)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Error: command panicked: %v\n", r)
		}
	}()
	_ = rootCmd.ExecuteContext(ctx)
}

// handlePanic records a crash of a non-interactive invocation to panic.log.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(msg), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to write panic log: %v\n%s\n", err, msg)
		osExit(2)
		return
	}
	fmt.Fprintf(os.Stderr, "autopilot crashed; details written to %s\n", panicLogFile)
	osExit(2)
}
