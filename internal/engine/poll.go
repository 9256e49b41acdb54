package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// pollLoop drives the pull channel. The cadence is a discrete two-level
// policy: back to the minimum interval after a successful fetch, straight
// to the maximum after a failure. The in-flight guard lives in the refresh
// function itself, shared with explicit caller refreshes.
type pollLoop struct {
	refresh func(context.Context) error
	min     time.Duration
	max     time.Duration
	log     zerolog.Logger
}

// run polls until the context is canceled. The first fetch happens
// immediately.
func (p *pollLoop) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := p.min
		if err := p.refresh(ctx); err != nil {
			next = p.max
			p.log.Debug().Err(err).Dur("retry_in", next).Msg("poll failed, backing off")
		}
		timer.Reset(next)
	}
}
