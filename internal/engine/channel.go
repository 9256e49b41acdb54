package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"

	"github.com/facetui/facet/internal/device"
)

const (
	reconnectBase   = 3 * time.Second
	reconnectJitter = 2 * time.Second
)

// channelManager owns channel selection. A streaming-capable backend is
// subscribed first; on subscription loss the manager falls back to polling
// and schedules a jittered reconnect. At most one channel actively drives
// updates at any time. Backends without streaming support (a static
// capability, expressed as a nil dialer) poll forever.
type channelManager struct {
	eng     *Engine
	sub     *streamSubscriber // nil when the backend is polling-only
	poll    *pollLoop
	backoff *backoff.ExponentialBackOff
	log     zerolog.Logger

	mu             sync.Mutex
	ctx            context.Context
	stopped        bool
	pollCancel     context.CancelFunc
	conn           device.StreamConn
	reconnectTimer *time.Timer
}

func newChannelManager(eng *Engine, dialer device.StreamDialer, pollMin, pollMax time.Duration, log zerolog.Logger) *channelManager {
	m := &channelManager{
		eng:     eng,
		backoff: newReconnectBackoff(),
		log:     log.With().Str("component", "channel").Logger(),
	}
	if dialer != nil {
		m.sub = &streamSubscriber{dialer: dialer, eng: eng, log: m.log}
	}
	m.poll = &pollLoop{
		refresh: eng.Refresh,
		min:     pollMin,
		max:     pollMax,
		log:     m.log,
	}
	return m
}

// newReconnectBackoff yields a constant delay uniformly jittered within
// [reconnectBase, reconnectBase+reconnectJitter].
func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectBase + reconnectJitter/2
	b.RandomizationFactor = 0.25
	b.Multiplier = 1
	b.MaxInterval = reconnectBase + reconnectJitter
	b.MaxElapsedTime = 0 // reconnect attempts never give up
	b.Reset()
	return b
}

// start selects the initial channel.
func (m *channelManager) start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if m.sub == nil {
		m.startPolling()
		return
	}
	go m.runStream()
}

// stop tears everything down: the poll loop, any pending reconnect, and an
// open subscription.
func (m *channelManager) stop() {
	m.mu.Lock()
	m.stopped = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.pollCancel != nil {
		m.pollCancel()
		m.pollCancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// runStream performs one subscription attempt and consumes events until the
// stream fails, then falls back to polling.
func (m *channelManager) runStream() {
	ctx := m.context()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	err := m.sub.subscribe(ctx, m.onStreamUp)
	if ctx.Err() != nil || m.isStopped() {
		return
	}
	m.onStreamDown(err)
}

func (m *channelManager) onStreamUp(conn device.StreamConn) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	if m.pollCancel != nil {
		m.pollCancel()
		m.pollCancel = nil
	}
	m.backoff.Reset()
	m.mu.Unlock()

	m.log.Info().Msg("status stream active, polling suspended")
	m.eng.setStreaming(true)
}

func (m *channelManager) onStreamDown(err error) {
	m.log.Warn().Err(err).Msg("status stream lost, falling back to polling")

	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	m.eng.setStreaming(false)
	m.startPolling()
	m.scheduleReconnect()
}

func (m *channelManager) startPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.ctx == nil || m.pollCancel != nil {
		return
	}
	pollCtx, cancel := context.WithCancel(m.ctx)
	m.pollCancel = cancel
	go m.poll.run(pollCtx)
}

func (m *channelManager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	delay := m.backoff.NextBackOff()
	m.log.Debug().Dur("delay", delay).Msg("stream reconnect scheduled")
	m.reconnectTimer = time.AfterFunc(delay, m.runStream)
}

func (m *channelManager) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func (m *channelManager) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
