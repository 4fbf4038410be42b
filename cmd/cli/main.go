package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophdrop/internal/client/cli"
	"github.com/dmitrijs2005/gophdrop/internal/client/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer app.Close()

	if err := app.Run(ctx, config.CommandArgs()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if cli.IsUsage(err) {
			return 2
		}
		return 1
	}
	return 0
}
