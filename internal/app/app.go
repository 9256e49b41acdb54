package app

import (
	"context"
	"fmt"

	"github.com/facetui/facet/internal/config"
	"github.com/facetui/facet/internal/device"
	"github.com/facetui/facet/internal/engine"
	"github.com/facetui/facet/internal/logging"
)

// Options configure the Facet application.
type Options struct {
	ConfigPath string
	Debug      bool
}

// Run boots the sync engine against the configured printer and blocks
// until the context is cancelled. The UI layers subscribe to the engine
// from their own packages; headless runs log each published view instead.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Debug: opts.Debug}, nil)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	client, err := device.NewClient(cfg.APIBind, logger)
	if err != nil {
		return fmt.Errorf("init device client: %w", err)
	}

	engOpts := engine.Options{
		API:           client,
		Logger:        logger,
		ThumbnailSize: cfg.ThumbnailSize,
	}
	if cfg.Stream {
		engOpts.Dialer = client
	}

	eng, err := engine.New(engOpts)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	// Stand-in for the UI: log every published view transition.
	viewLog := logger.With().Str("component", "view").Logger()
	unsubscribe := eng.Subscribe(func(v engine.View) {
		evt := viewLog.Debug().
			Stringer("connection", v.Connection).
			Bool("pausing", v.Pausing).
			Bool("canceling", v.Canceling).
			Bool("awaiting_session", v.AwaitingSession)
		if v.Snapshot != nil {
			evt = evt.
				Stringer("status", v.Snapshot.Status).
				Float64("progress", v.Snapshot.Progress)
		}
		evt.Msg("view published")
	})
	defer unsubscribe()

	eng.Start(ctx)

	<-ctx.Done()
	return nil
}
