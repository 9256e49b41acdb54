package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/facetui/facet/internal/device"
)

// resolveThumbnail fetches the preview image for the active job. It runs in
// its own goroutine; at most one fetch is in flight per session. A failed
// fetch still marks the thumbnail Ready (with no image) so the readiness
// barrier and any waiting caller are never stuck on retries.
func (e *Engine) resolveThumbnail(ctx context.Context, session uuid.UUID, job device.Job) {
	fetchCtx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()

	data, err := e.api.FetchThumbnail(fetchCtx, device.ThumbnailQuery{
		Location: job.LocationCategory,
		Path:     job.Path,
		Size:     e.thumbSize,
	})

	e.mu.Lock()
	// The result only counts for the session and job identity that
	// triggered the fetch; a reset in between discards it.
	if e.disposed || session != e.sessionID || e.thumbKey != thumbnailKey(job) {
		e.mu.Unlock()
		return
	}
	e.thumb = thumbReady
	if err != nil {
		e.log.Warn().Err(err).Str("path", job.Path).Msg("thumbnail fetch failed, marking ready without image")
		e.thumbData = nil
	} else {
		e.thumbData = data
	}

	// The barrier may be waiting on exactly this resolution.
	if e.awaiting && e.snapshot != nil && e.snapshot.Job != nil &&
		(e.snapshot.IsPrinting || e.snapshot.IsPaused) {
		e.clearAwaitingLocked()
	}
	e.publishLocked()
}
