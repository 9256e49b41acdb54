// Package engine keeps a client-side view of a remote resin printer's job
// state consistent with the device.
//
// # Overview
//
// The engine is the only part of Facet with real protocol and concurrency
// work: channel selection with automatic fallback, jittered reconnects,
// re-entrancy-guarded refreshes, transitional-state smoothing, lazy
// thumbnail resolution, and a bounded new-session readiness barrier. UI
// screens are thin consumers of the views it publishes.
//
// # Architecture
//
//	                 ┌─────────────────┐
//	   websocket ───→│ streamSubscriber│──┐
//	                 └─────────────────┘  │  parsed snapshots
//	                 ┌─────────────────┐  ├───→ Engine.apply ───→ observers
//	   GET /status ─→│    pollLoop     │──┘        (merge + publish)
//	                 └─────────────────┘
//	                          ▲
//	                 ┌────────┴────────┐
//	                 │ channelManager  │  picks exactly one active channel
//	                 └─────────────────┘
//
// # Channel Selection
//
// A streaming-capable backend (non-nil dialer) is subscribed first. On
// subscription error or remote close the manager immediately starts the
// poll loop and schedules a reconnect attempt after a delay jittered
// within [3s, 5s]. When a reconnect succeeds the poll loop is stopped
// again. Polling-only backends never get a dial attempt; that capability
// is static configuration, not probed at runtime. At most one channel
// drives updates at any moment.
//
// # Poll Cadence
//
// The poll loop uses a discrete two-level cadence: 1s after a successful
// fetch, 15s after a failure. This is deliberately not an exponential
// backoff.
//
// # Reconciliation
//
// Every snapshot, from either channel, funnels through apply:
//
//  1. Transitional intents (pause/resume target, canceling flag) clear
//     when the incoming status confirms the intended outcome.
//  2. The readiness barrier clears when the snapshot shows an active job
//     with metadata and a resolved thumbnail, or when 12s elapse.
//  3. The thumbnail fetch is triggered at most once per session, only
//     while the job is Printing. A failed fetch marks the thumbnail Ready
//     with no image; it is never retried within the session.
//  4. The snapshot is stored, the connection state updated, and the
//     merged view published to every observer.
//
// Observers registered through Subscribe are called synchronously after
// each reconciliation, in reconciliation order, and never see a partially
// merged view.
//
// # Transitional Intents
//
// Commands are optimistic. PauseOrResume records the intended outcome
// before issuing the request and reverts it if the request fails. Cancel
// keeps its intent on failure, treating the job as still canceling, and
// clears it only once a snapshot confirms or the session is reset. Both
// asymmetries mirror the device's observed behavior. Every command is
// followed by a reconciliation refresh regardless of its outcome, so the
// store always ends in a well-defined state.
//
// # Concurrency
//
// All mutation happens under a single mutex; Refresh carries an atomic
// drop-don't-queue guard, so two racing refreshes perform exactly one
// network fetch. The only blocking operations are the status fetch, the
// stream dial/read, and the thumbnail fetch. Close cancels every timer
// and subscription; asynchronous callbacks check the disposed flag before
// touching state, since they may fire after disposal has begun.
//
// Nothing in this package is fatal to the process. The worst outcome of
// sustained failure is an extended polling-only degraded mode.
package engine
