package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/facetui/facet/internal/device"
)

// ConnectionState reports which transport currently feeds the engine.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Streaming
	Polling
)

// String returns a human-readable connection state name.
func (c ConnectionState) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case Streaming:
		return "streaming"
	case Polling:
		return "polling"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(c))
	}
}

const (
	defaultPollMin       = time.Second
	defaultPollMax       = 15 * time.Second
	defaultThumbnailSize = 400
	awaitSessionTimeout  = 12 * time.Second
	thumbnailTimeout     = 10 * time.Second
)

// View is the read-only merged state published to observers after each
// reconciliation. All reference fields are defensive copies.
type View struct {
	Snapshot        *device.Snapshot
	Connection      ConnectionState
	Pausing         bool
	Canceling       bool
	AwaitingSession bool
	SessionID       uuid.UUID
	PendingJob      *device.Job // seeded hint, shown until real data arrives
	Thumbnail       []byte
	ThumbnailReady  bool
}

// SessionHints seed a freshly reset session so a caller can display the
// upcoming job before the first snapshot arrives.
type SessionHints struct {
	Job       *device.Job
	Thumbnail []byte
}

// Options configure an Engine.
type Options struct {
	API           device.API
	Dialer        device.StreamDialer // nil means the backend is polling-only
	Logger        zerolog.Logger
	ThumbnailSize int           // zero uses the default
	PollMin       time.Duration // zero uses 1s
	PollMax       time.Duration // zero uses 15s
}

type thumbState int

const (
	thumbUnresolved thumbState = iota
	thumbResolving
	thumbReady
)

// Engine is the single point of truth for remote printer state. Snapshots
// from either channel funnel through apply; commands and observers attach
// here. All mutation happens under mu; observer callbacks run outside it,
// serialized by notifyMu so views are delivered in reconciliation order.
type Engine struct {
	api       device.API
	log       zerolog.Logger
	thumbSize int

	// now and awaitTimeout are swappable for tests.
	now          func() time.Time
	awaitTimeout time.Duration

	refreshing atomic.Bool

	channel *channelManager

	mu        sync.Mutex
	notifyMu  sync.Mutex
	disposed  bool
	runCtx    context.Context
	cancelRun context.CancelFunc

	snapshot *device.Snapshot
	conn     ConnectionState
	streamUp bool

	pauseTarget *device.Status // intended outcome of an in-flight pause/resume
	canceling   bool

	sessionID     uuid.UUID
	awaiting      bool
	awaitingSince time.Time
	awaitTimer    *time.Timer
	pendingJob    *device.Job

	thumb     thumbState
	thumbKey  string
	thumbData []byte

	observers    map[int]func(View)
	nextObserver int
}

// New builds an Engine. Start must be called before any updates flow.
func New(opts Options) (*Engine, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("engine: API client required")
	}
	thumbSize := opts.ThumbnailSize
	if thumbSize <= 0 {
		thumbSize = defaultThumbnailSize
	}
	pollMin := opts.PollMin
	if pollMin <= 0 {
		pollMin = defaultPollMin
	}
	pollMax := opts.PollMax
	if pollMax <= 0 {
		pollMax = defaultPollMax
	}

	e := &Engine{
		api:          opts.API,
		log:          opts.Logger.With().Str("component", "engine").Logger(),
		thumbSize:    thumbSize,
		now:          time.Now,
		awaitTimeout: awaitSessionTimeout,
		runCtx:       context.Background(),
		sessionID:    uuid.New(),
		observers:    make(map[int]func(View)),
	}
	e.channel = newChannelManager(e, opts.Dialer, pollMin, pollMax, e.log)
	return e, nil
}

// Start begins feeding the engine from the backend: streaming when the
// backend supports it, polling otherwise. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		cancel()
		return
	}
	e.runCtx = runCtx
	e.cancelRun = cancel
	e.mu.Unlock()
	e.channel.start(runCtx)
}

// Close disposes the engine: every timer, the poll loop, and any open
// subscription are canceled. Late asynchronous callbacks observe the
// disposed flag and become no-ops.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	if e.awaitTimer != nil {
		e.awaitTimer.Stop()
		e.awaitTimer = nil
	}
	cancel := e.cancelRun
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.channel.stop()
}

// Subscribe registers an observer called synchronously after each
// reconciliation. The returned function unsubscribes it. Observers must
// not call back into the engine from the callback.
func (e *Engine) Subscribe(fn func(View)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextObserver
	e.nextObserver++
	e.observers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers, id)
	}
}

// Current returns the latest published view.
func (e *Engine) Current() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// Refresh fetches one snapshot through the pull path and reconciles it.
// A call arriving while a previous one is still resolving is dropped, not
// queued. The returned error reports fetch failures only; malformed
// payloads are logged and dropped while the previous snapshot stays
// authoritative.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.refreshing.CompareAndSwap(false, true) {
		return nil
	}
	defer e.refreshing.Store(false)

	raw, err := e.api.FetchStatus(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("status fetch failed")
		return err
	}
	snap, err := device.ParseSnapshot(raw)
	if err != nil {
		e.log.Warn().Err(err).Msg("dropping malformed status payload")
		return nil
	}
	e.apply(snap, Polling)
	return nil
}

// PauseOrResume issues a resume when the current status is Paused and a
// pause otherwise. The transitional intent is set optimistically and
// reverted if the command fails; a reconciliation refresh always follows.
func (e *Engine) PauseOrResume(ctx context.Context) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return fmt.Errorf("engine closed")
	}
	paused := e.snapshot != nil && e.snapshot.IsPaused
	target := device.StatusPaused
	call := e.api.Pause
	name := "pause"
	if paused {
		target = device.StatusPrinting
		call = e.api.Resume
		name = "resume"
	}
	e.pauseTarget = &target
	e.publishLocked()

	err := call(ctx)
	if err != nil {
		e.log.Warn().Err(err).Str("command", name).Msg("command rejected")
		e.mu.Lock()
		if !e.disposed && e.pauseTarget != nil && *e.pauseTarget == target {
			e.pauseTarget = nil
			e.publishLocked()
		} else {
			e.mu.Unlock()
		}
	}
	_ = e.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("%s command: %w", name, err)
	}
	return nil
}

// Cancel issues a cancel command. The canceling intent is retained even
// when the command fails, and cleared only once a snapshot confirms the
// Canceled status or the session is reset.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return fmt.Errorf("engine closed")
	}
	e.canceling = true
	e.publishLocked()

	err := e.api.Cancel(ctx)
	if err != nil {
		e.log.Warn().Err(err).Str("command", "cancel").Msg("command rejected")
	}
	_ = e.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("cancel command: %w", err)
	}
	return nil
}

// ResetForNewSession clears the snapshot, thumbnail, and transitional
// intents, then installs a fresh readiness barrier. Hints seed the view
// until the first fresh snapshot arrives. The barrier resolves once the
// latest snapshot shows an active job with metadata and a resolved
// thumbnail, or after the session timeout, whichever comes first.
func (e *Engine) ResetForNewSession(ctx context.Context, hints SessionHints) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	if e.awaitTimer != nil {
		e.awaitTimer.Stop()
	}
	e.sessionID = uuid.New()
	e.snapshot = nil
	e.pauseTarget = nil
	e.canceling = false
	e.thumb = thumbUnresolved
	e.thumbKey = ""
	e.thumbData = nil
	e.awaiting = true
	e.awaitingSince = e.now()
	e.pendingJob = cloneJob(hints.Job)
	if len(hints.Thumbnail) > 0 {
		e.thumb = thumbReady
		e.thumbData = cloneBytes(hints.Thumbnail)
		if hints.Job != nil {
			e.thumbKey = thumbnailKey(*hints.Job)
		}
	}
	session := e.sessionID
	e.awaitTimer = time.AfterFunc(e.awaitTimeout, func() {
		e.expireSession(session)
	})
	e.publishLocked()

	_ = e.Refresh(ctx)
}

// apply merges one parsed snapshot into the store and publishes the result.
// Both channels funnel through here.
func (e *Engine) apply(snap device.Snapshot, src ConnectionState) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}

	// Transitional intents clear once the backend confirms the outcome.
	if e.pauseTarget != nil && snap.Status == *e.pauseTarget {
		e.pauseTarget = nil
	}
	if e.canceling && snap.IsCanceled {
		e.canceling = false
	}

	// Readiness barrier: active job with metadata and a resolved
	// thumbnail, or the timeout handled by the session timer.
	if e.awaiting {
		active := snap.Job != nil && (snap.IsPrinting || snap.IsPaused)
		if (active && e.thumb == thumbReady) || e.now().Sub(e.awaitingSince) >= e.awaitTimeout {
			e.clearAwaitingLocked()
		}
	}

	// Thumbnail resolution: at most once per session, only while the job
	// is actively printing. Ready is terminal even when the fetch failed.
	if snap.IsPrinting && snap.Job != nil && e.thumb == thumbUnresolved {
		e.thumb = thumbResolving
		e.thumbKey = thumbnailKey(*snap.Job)
		go e.resolveThumbnail(e.runCtx, e.sessionID, *snap.Job)
	}

	if snap.Job != nil {
		e.pendingJob = nil
	}

	stored := snap
	e.snapshot = &stored
	switch {
	case src == Streaming:
		e.conn = Streaming
	case e.streamUp:
		// A manual refresh while the stream is up must not flap the
		// connection state back to polling.
	default:
		e.conn = Polling
	}
	e.publishLocked()
}

// setStreaming records channel transitions reported by the manager.
func (e *Engine) setStreaming(up bool) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.streamUp = up
	if up {
		e.conn = Streaming
	} else if e.conn == Streaming {
		e.conn = Polling
	}
	e.publishLocked()
}

func (e *Engine) expireSession(session uuid.UUID) {
	e.mu.Lock()
	if e.disposed || session != e.sessionID || !e.awaiting {
		e.mu.Unlock()
		return
	}
	e.log.Debug().Str("session", session.String()).Msg("session readiness timed out")
	e.clearAwaitingLocked()
	e.publishLocked()
}

func (e *Engine) clearAwaitingLocked() {
	e.awaiting = false
	e.pendingJob = nil
	if e.awaitTimer != nil {
		e.awaitTimer.Stop()
		e.awaitTimer = nil
	}
}

// publishLocked builds the view and notifies observers. The caller must
// hold e.mu; it is released here. notifyMu is acquired before mu is
// released so observers see views in reconciliation order.
func (e *Engine) publishLocked() {
	view := e.viewLocked()
	obs := make([]func(View), 0, len(e.observers))
	for _, fn := range e.observers {
		obs = append(obs, fn)
	}
	e.notifyMu.Lock()
	e.mu.Unlock()
	for _, fn := range obs {
		fn(view)
	}
	e.notifyMu.Unlock()
}

func (e *Engine) viewLocked() View {
	view := View{
		Connection:      e.conn,
		Pausing:         e.pauseTarget != nil,
		Canceling:       e.canceling,
		AwaitingSession: e.awaiting,
		SessionID:       e.sessionID,
		Thumbnail:       cloneBytes(e.thumbData),
		ThumbnailReady:  e.thumb == thumbReady,
	}
	if e.snapshot != nil {
		snap := e.snapshot.Clone()
		view.Snapshot = &snap
	}
	if e.awaiting {
		view.PendingJob = cloneJob(e.pendingJob)
	}
	return view
}

func thumbnailKey(job device.Job) string {
	return job.LocationCategory + ":" + job.Path
}

func cloneJob(job *device.Job) *device.Job {
	if job == nil {
		return nil
	}
	dup := *job
	return &dup
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	dup := make([]byte, len(b))
	copy(dup, b)
	return dup
}
