package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facetui/facet/internal/device"
)

// fakeAPI is a scriptable in-process device.API.
type fakeAPI struct {
	mu         sync.Mutex
	status     device.RawStatus
	statusErr  error
	statusHold chan struct{} // when non-nil, FetchStatus blocks until closed
	fetches    int
	pauseErr   error
	resumeErr  error
	cancelErr  error
	commands   []string
	thumbData  []byte
	thumbErr   error
	thumbHold  chan struct{}
	thumbCalls int
}

var _ device.API = (*fakeAPI)(nil)

func (f *fakeAPI) FetchStatus(ctx context.Context) (device.RawStatus, error) {
	f.mu.Lock()
	f.fetches++
	hold := f.statusHold
	status, err := f.status, f.statusErr
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return status, err
}

func (f *fakeAPI) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "pause")
	return f.pauseErr
}

func (f *fakeAPI) Resume(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "resume")
	return f.resumeErr
}

func (f *fakeAPI) Cancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "cancel")
	return f.cancelErr
}

func (f *fakeAPI) FetchThumbnail(ctx context.Context, q device.ThumbnailQuery) ([]byte, error) {
	f.mu.Lock()
	f.thumbCalls++
	hold := f.thumbHold
	data, err := f.thumbData, f.thumbErr
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return data, err
}

func (f *fakeAPI) setStatus(raw device.RawStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = raw
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeAPI) thumbCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.thumbCalls
}

func (f *fakeAPI) commandLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.commands))
	copy(out, f.commands)
	return out
}

// viewRecorder collects published views in order.
type viewRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *viewRecorder) record(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) all() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]View, len(r.views))
	copy(out, r.views)
	return out
}

func newTestEngine(t *testing.T, api *fakeAPI) *Engine {
	t.Helper()
	eng, err := New(Options{API: api, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

func mustParse(t *testing.T, raw device.RawStatus) device.Snapshot {
	t.Helper()
	snap, err := device.ParseSnapshot(raw)
	require.NoError(t, err)
	return snap
}

func printingWithJob(t *testing.T) device.Snapshot {
	t.Helper()
	layer := 5
	count := 100
	return mustParse(t, device.RawStatus{
		Status: "Printing",
		Layer:  &layer,
		PrintData: &device.PrintData{
			LayerCount: &count,
			FileData:   &device.FileData{Name: "part.sl1", Path: "/a/part.sl1", LocationCategory: "local"},
		},
	})
}

func TestNew_RequiresAPI(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestRefresh_DropsConcurrentCalls(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Idle"}}
	hold := make(chan struct{})
	api.statusHold = hold
	eng := newTestEngine(t, api)

	done := make(chan error, 1)
	go func() {
		done <- eng.Refresh(context.Background())
	}()

	require.Eventually(t, func() bool {
		return api.fetchCount() == 1
	}, 2*time.Second, time.Millisecond)

	// Racing second call: exactly one network fetch, second is a no-op.
	require.NoError(t, eng.Refresh(context.Background()))
	assert.Equal(t, 1, api.fetchCount())

	close(hold)
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.fetchCount())
}

func TestRefresh_MalformedPayloadKeepsPreviousSnapshot(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Printing"}}
	eng := newTestEngine(t, api)

	require.NoError(t, eng.Refresh(context.Background()))
	require.NotNil(t, eng.Current().Snapshot)

	api.setStatus(device.RawStatus{Status: "warp-core-breach"})
	require.NoError(t, eng.Refresh(context.Background()))

	view := eng.Current()
	require.NotNil(t, view.Snapshot)
	assert.Equal(t, device.StatusPrinting, view.Snapshot.Status)
}

func TestRefresh_FetchErrorSurfacesAndKeepsSnapshot(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Paused"}}
	eng := newTestEngine(t, api)
	require.NoError(t, eng.Refresh(context.Background()))

	api.mu.Lock()
	api.statusErr = errors.New("link down")
	api.mu.Unlock()

	require.Error(t, eng.Refresh(context.Background()))
	view := eng.Current()
	require.NotNil(t, view.Snapshot)
	assert.True(t, view.Snapshot.IsPaused)
}

func TestPauseOrResume_SetsIntentUntilConfirmed(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Printing"}}
	eng := newTestEngine(t, api)
	require.NoError(t, eng.Refresh(context.Background()))

	require.NoError(t, eng.PauseOrResume(context.Background()))
	assert.Equal(t, []string{"pause"}, api.commandLog())

	// Backend has not acknowledged yet: intent stays up across refreshes.
	view := eng.Current()
	assert.True(t, view.Pausing)

	// Confirmation clears the intent within one reconciliation cycle.
	rec := &viewRecorder{}
	unsub := eng.Subscribe(rec.record)
	defer unsub()

	eng.apply(mustParse(t, device.RawStatus{Status: "Paused"}), Polling)

	views := rec.all()
	require.Len(t, views, 1)
	assert.False(t, views[0].Pausing)
	assert.True(t, views[0].Snapshot.IsPaused)
}

func TestPauseOrResume_IssuesResumeWhenPaused(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Paused"}}
	eng := newTestEngine(t, api)
	require.NoError(t, eng.Refresh(context.Background()))

	require.NoError(t, eng.PauseOrResume(context.Background()))
	assert.Equal(t, []string{"resume"}, api.commandLog())

	// Resume intent clears once the job is printing again.
	eng.apply(mustParse(t, device.RawStatus{Status: "Printing"}), Polling)
	assert.False(t, eng.Current().Pausing)
}

func TestPauseOrResume_RevertsIntentOnCommandFailure(t *testing.T) {
	api := &fakeAPI{
		status:   device.RawStatus{Status: "Printing"},
		pauseErr: errors.New("backend said no"),
	}
	eng := newTestEngine(t, api)
	require.NoError(t, eng.Refresh(context.Background()))

	err := eng.PauseOrResume(context.Background())
	require.Error(t, err)
	assert.False(t, eng.Current().Pausing)

	// The reconciliation refresh still ran.
	assert.GreaterOrEqual(t, api.fetchCount(), 2)
}

func TestCancel_RetainsIntentOnCommandFailure(t *testing.T) {
	api := &fakeAPI{
		status:    device.RawStatus{Status: "Printing"},
		cancelErr: errors.New("busy"),
	}
	eng := newTestEngine(t, api)
	require.NoError(t, eng.Refresh(context.Background()))

	err := eng.Cancel(context.Background())
	require.Error(t, err)
	// Still treated as canceling, to avoid flicker.
	assert.True(t, eng.Current().Canceling)

	// Confirmation clears it.
	eng.apply(mustParse(t, device.RawStatus{Status: "Canceled"}), Polling)
	assert.False(t, eng.Current().Canceling)
}

func TestCancel_ClearsOnConfirmation(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Printing"}}
	eng := newTestEngine(t, api)

	require.NoError(t, eng.Cancel(context.Background()))
	assert.True(t, eng.Current().Canceling)

	api.setStatus(device.RawStatus{Status: "Canceled"})
	require.NoError(t, eng.Refresh(context.Background()))
	assert.False(t, eng.Current().Canceling)
}

func TestResetForNewSession_HintsSeedView(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Idle"}}
	eng := newTestEngine(t, api)

	hints := SessionHints{
		Job:       &device.Job{Name: "next.sl1", Path: "/a/next.sl1", LocationCategory: "local"},
		Thumbnail: []byte("seeded"),
	}
	eng.ResetForNewSession(context.Background(), hints)

	view := eng.Current()
	assert.True(t, view.AwaitingSession)
	require.NotNil(t, view.PendingJob)
	assert.Equal(t, "next.sl1", view.PendingJob.Name)
	assert.True(t, view.ThumbnailReady)
	assert.Equal(t, []byte("seeded"), view.Thumbnail)
}

func TestResetForNewSession_ClearsPreviousState(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Printing"}}
	eng := newTestEngine(t, api)
	require.NoError(t, eng.Refresh(context.Background()))
	require.NoError(t, eng.Cancel(context.Background()))
	require.True(t, eng.Current().Canceling)

	before := eng.Current().SessionID
	api.setStatus(device.RawStatus{Status: "Idle"})
	eng.ResetForNewSession(context.Background(), SessionHints{})

	view := eng.Current()
	assert.False(t, view.Canceling)
	assert.False(t, view.Pausing)
	assert.NotEqual(t, before, view.SessionID)
	assert.False(t, view.ThumbnailReady)
}

func TestResetForNewSession_TimeoutResolvesBarrier(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Idle"}}
	eng := newTestEngine(t, api)
	eng.awaitTimeout = 40 * time.Millisecond

	eng.ResetForNewSession(context.Background(), SessionHints{})
	require.True(t, eng.Current().AwaitingSession)

	// Snapshots keep lacking job metadata; the barrier resolves by
	// timeout even without a thumbnail.
	require.Eventually(t, func() bool {
		return !eng.Current().AwaitingSession
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, eng.Current().ThumbnailReady)
}

func TestResetForNewSession_ReadyOnlyAfterThumbnailResolves(t *testing.T) {
	api := &fakeAPI{thumbData: []byte("img")}
	hold := make(chan struct{})
	api.thumbHold = hold
	api.setStatus(device.RawStatus{Status: "Idle"})
	eng := newTestEngine(t, api)

	eng.ResetForNewSession(context.Background(), SessionHints{})
	require.True(t, eng.Current().AwaitingSession)

	// Snapshot with an active job arrives; readiness must NOT flip yet
	// because the thumbnail is still resolving.
	eng.apply(printingWithJob(t), Polling)
	view := eng.Current()
	assert.True(t, view.AwaitingSession)
	assert.False(t, view.ThumbnailReady)

	close(hold)
	require.Eventually(t, func() bool {
		v := eng.Current()
		return v.ThumbnailReady && !v.AwaitingSession
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("img"), eng.Current().Thumbnail)
}

func TestThumbnail_FailureIsTerminalForSession(t *testing.T) {
	api := &fakeAPI{thumbErr: errors.New("no preview")}
	eng := newTestEngine(t, api)

	eng.apply(printingWithJob(t), Polling)
	require.Eventually(t, func() bool {
		return eng.Current().ThumbnailReady
	}, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, eng.Current().Thumbnail)

	// Further printing snapshots must not trigger another fetch.
	eng.apply(printingWithJob(t), Polling)
	eng.apply(printingWithJob(t), Polling)
	assert.Equal(t, 1, api.thumbCount())
}

func TestThumbnail_NotTriggeredWhilePaused(t *testing.T) {
	api := &fakeAPI{thumbData: []byte("img")}
	eng := newTestEngine(t, api)

	count := 100
	paused := mustParse(t, device.RawStatus{
		Status: "Paused",
		PrintData: &device.PrintData{
			LayerCount: &count,
			FileData:   &device.FileData{Name: "part.sl1", Path: "/a/part.sl1"},
		},
	})
	eng.apply(paused, Polling)
	assert.Equal(t, 0, api.thumbCount())
	assert.False(t, eng.Current().ThumbnailReady)
}

func TestApply_ConnectionStateFollowsSource(t *testing.T) {
	api := &fakeAPI{}
	eng := newTestEngine(t, api)

	assert.Equal(t, Disconnected, eng.Current().Connection)

	eng.apply(mustParse(t, device.RawStatus{Status: "Idle"}), Polling)
	assert.Equal(t, Polling, eng.Current().Connection)

	eng.setStreaming(true)
	assert.Equal(t, Streaming, eng.Current().Connection)

	// A manual pull refresh while the stream is up must not flap back.
	eng.apply(mustParse(t, device.RawStatus{Status: "Idle"}), Polling)
	assert.Equal(t, Streaming, eng.Current().Connection)

	eng.setStreaming(false)
	assert.Equal(t, Polling, eng.Current().Connection)
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	api := &fakeAPI{}
	eng := newTestEngine(t, api)

	rec := &viewRecorder{}
	unsub := eng.Subscribe(rec.record)

	eng.apply(mustParse(t, device.RawStatus{Status: "Printing"}), Polling)
	eng.apply(mustParse(t, device.RawStatus{Status: "Paused"}), Polling)

	views := rec.all()
	require.Len(t, views, 2)
	assert.True(t, views[0].Snapshot.IsPrinting)
	assert.True(t, views[1].Snapshot.IsPaused)

	unsub()
	eng.apply(mustParse(t, device.RawStatus{Status: "Idle"}), Polling)
	assert.Len(t, rec.all(), 2)
}

func TestClose_SilencesLateCallbacks(t *testing.T) {
	api := &fakeAPI{status: device.RawStatus{Status: "Printing"}}
	eng := newTestEngine(t, api)
	require.NoError(t, eng.Refresh(context.Background()))

	rec := &viewRecorder{}
	eng.Subscribe(rec.record)
	seen := len(rec.all())

	eng.Close()

	eng.apply(mustParse(t, device.RawStatus{Status: "Paused"}), Polling)
	eng.setStreaming(true)
	assert.Len(t, rec.all(), seen)

	require.Error(t, eng.PauseOrResume(context.Background()))
	require.Error(t, eng.Cancel(context.Background()))
}
