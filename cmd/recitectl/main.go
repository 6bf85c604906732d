// Command recitectl inspects the chapter catalog, assembles segments and
// manages the local unit cache without running the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmdCtx := newCommandContext(nil)
	err := newRootCommand(cmdCtx).ExecuteContext(ctx)
	stop()
	cmdCtx.close(context.Background())

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
