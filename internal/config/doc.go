// Package config handles loading and parsing Facet configuration files.
//
// # Overview
//
// Facet reads a small TOML file describing the printer it fronts: where
// the device API listens, whether the backend supports the push status
// stream, the log level, and the requested thumbnail size.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/facet/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// # Default Values
//
//   - Config file: ~/.config/facet/config.toml
//   - API endpoint: 127.0.0.1:8080
//   - Streaming capability: enabled
//   - Log level: info
//   - Thumbnail size: 400
//
// # TOML Format
//
// Example config.toml:
//
//	api_bind = "192.168.1.40:8080"
//	stream = false
//	log_level = "debug"
//	thumbnail_size = 320
//
// All fields are optional. Tilde expansion is performed on the config path.
//
// # The stream Flag
//
// Whether a backend supports /status/stream is a static property of its
// firmware, not something discovered by probing failed requests. The flag
// is therefore plain configuration, injected into the engine at
// construction. Backends marked stream = false are polled forever.
//
// # Error Handling
//
// Load returns errors for path expansion failures, file read errors
// (except os.ErrNotExist, which triggers defaults), and TOML parsing
// errors. A missing config file is NOT an error - Facet works
// out-of-the-box against a printer on the default bind.
//
// The package is read-only and stateless: configuration is loaded once at
// startup into an immutable Config struct. No global state or singletons.
package config
