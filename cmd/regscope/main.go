package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/scottbass3/regscope/internal/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	err := newRootCmd(a).ExecuteContext(ctx)
	if closeErr := a.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	if errors.Is(err, registry.ErrCanceled) {
		os.Exit(130)
	}
	os.Exit(1)
}
