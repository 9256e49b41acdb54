// Package device implements the HTTP/websocket client for the printer's
// remote API and the codec that turns raw payloads into typed snapshots.
//
// # Overview
//
// A resin printer exposes a small JSON API:
//
//	GET  /status         one status payload (polling path)
//	GET  /status/stream  websocket pushing the same payload per event
//	POST /pause          pause the active job
//	POST /resume         resume a paused job
//	POST /cancel         abort the active job
//	GET  /thumbnail      binary preview image for a job file
//
// This package owns the transport plumbing and nothing else: base URL
// normalization, request construction, response decoding, and the
// RawStatus -> Snapshot conversion. Channel selection, retry policy, and
// state reconciliation live in the engine package.
//
// # Core Types
//
// Client:
//   - Thin HTTP client over the API above
//   - Implements the API and StreamDialer interfaces
//   - Safe for concurrent use (stateless apart from its http.Client)
//
// RawStatus:
//   - Wire-shape mirror of the /status JSON document
//   - Optional sections are pointers; extras are ignored by the decoder
//
// Snapshot:
//   - Immutable typed observation produced by ParseSnapshot
//   - Derived booleans (IsPrinting, IsPaused, IsCanceled, IsIdle) are
//     computed exactly once at parse time
//   - Progress is clamped to [0, 1] regardless of raw input
//
// # Parse Semantics
//
// ParseSnapshot requires only the status field. A payload with a missing
// or unknown status yields a *ParseError; callers treat that as "drop this
// update and keep the previous snapshot". Every other field falls back to
// nil or zero when absent. Parsing has no side effects.
//
// # Streaming
//
// DialStream upgrades GET /status/stream to a websocket. Whether a backend
// supports streaming at all is static per-backend configuration; the
// engine never discovers it by probing failed dials.
//
// # Testing
//
// The devicetest subpackage provides a scriptable fake printer server that
// serves all six endpoints, for use by this package's tests and the
// engine's.
package device
