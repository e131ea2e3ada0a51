package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pdf-ocr-batch/internal/bootstrap"
	"pdf-ocr-batch/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts, err := bootstrap.ParseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return domain.ExitOK
		}
		return domain.ExitSetupFailed
	}

	app, err := bootstrap.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ocrbatch: %v\n", err)
		return domain.ExitSetupFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}
