package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"wsprobe/cmd/probe/command"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and maps the outcome to an exit code. A cancelled ctx
// (interrupt) is a normal way to end a run.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := command.Execute(ctx, args, stdout, stderr)
	if ctx.Err() != nil {
		fmt.Fprintln(stdout, "\nExiting...")
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
