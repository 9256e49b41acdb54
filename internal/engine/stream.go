package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/facetui/facet/internal/device"
)

// streamSubscriber consumes the push channel. Each event is decoded and
// reconciled; events that fail to decode are logged and skipped without
// tearing the subscription down.
type streamSubscriber struct {
	dialer device.StreamDialer
	eng    *Engine
	log    zerolog.Logger
}

// subscribe dials the stream and, on success, reads events until the
// connection fails or is closed. onConnect runs once after a successful
// dial, before the first event, so the channel manager can register the
// connection and suspend polling. The returned error is the dial error or
// the read error that ended the subscription.
func (s *streamSubscriber) subscribe(ctx context.Context, onConnect func(device.StreamConn)) error {
	conn, err := s.dialer.DialStream(ctx)
	if err != nil {
		return err
	}
	onConnect(conn)

	for {
		raw, err := conn.Next()
		if err != nil {
			var perr *device.ParseError
			if errors.As(err, &perr) {
				s.log.Warn().Err(perr).Msg("skipping undecodable stream event")
				continue
			}
			_ = conn.Close()
			return err
		}
		snap, err := device.ParseSnapshot(raw)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable stream event")
			continue
		}
		s.eng.apply(snap, Streaming)
	}
}
