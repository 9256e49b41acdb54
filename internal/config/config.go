package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures the fields Facet needs to reach and drive a printer.
type Config struct {
	APIBind       string // printer API endpoint, host:port
	Stream        bool   // backend supports /status/stream (static capability)
	LogLevel      string // zerolog level name
	ThumbnailSize int    // requested preview edge length in pixels
}

const (
	defaultConfigPath    = "~/.config/facet/config.toml"
	defaultAPIBind       = "127.0.0.1:8080"
	defaultLogLevel      = "info"
	defaultThumbnailSize = 400
)

// Load locates and parses the Facet config, falling back to defaults when
// the file is missing. Streaming defaults to on; polling-only backends set
// stream = false explicitly.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIBind:       defaultAPIBind,
		Stream:        true,
		LogLevel:      defaultLogLevel,
		ThumbnailSize: defaultThumbnailSize,
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIBind       string `toml:"api_bind"`
		Stream        *bool  `toml:"stream"`
		LogLevel      string `toml:"log_level"`
		ThumbnailSize int    `toml:"thumbnail_size"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if bind := strings.TrimSpace(raw.APIBind); bind != "" {
		cfg.APIBind = bind
	}
	if raw.Stream != nil {
		cfg.Stream = *raw.Stream
	}
	if level := strings.TrimSpace(raw.LogLevel); level != "" {
		cfg.LogLevel = level
	}
	if raw.ThumbnailSize > 0 {
		cfg.ThumbnailSize = raw.ThumbnailSize
	}

	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
