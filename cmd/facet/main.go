package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/facetui/facet/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "override facet config path (optional)")
	debug := flag.Bool("debug", false, "force debug logging")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{ConfigPath: *configPath, Debug: *debug}
	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "facet: %v\n", err)
		return 1
	}
	return 0
}
