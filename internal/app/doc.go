// Package app provides the orchestration layer for the Facet application.
//
// # Overview
//
// This package wires together configuration, logging, the device client,
// and the sync engine. It serves as the composition root where all
// dependencies are initialized and connected.
//
// # Architecture
//
// The app package follows a simple initialization pattern:
//
//  1. Load Facet configuration from ~/.config/facet/config.toml
//  2. Build the zerolog logger
//  3. Initialize the HTTP/websocket client for the printer API
//  4. Construct the engine, passing the client as stream dialer only when
//     the backend's static capability flag allows streaming
//  5. Start the engine and block until the context cancels
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │ Initialize everything
//	└──────┬───────┘
//	       │
//	       ├─────> config.Load()      Read Facet config
//	       ├─────> logging.New()      Build the logger
//	       ├─────> device.NewClient() Create API client
//	       ├─────> engine.New()       Build the sync engine
//	       ├─────> eng.Subscribe()    Attach the view observer
//	       └─────> eng.Start()        Begin channel selection (non-blocking)
//
// UI screens (settings, file browsers, job view) are external
// collaborators: they subscribe to the engine and issue its command
// operations but are not part of this repository. In their absence Run
// attaches a logging observer so a headless deployment still surfaces
// every published view.
package app
