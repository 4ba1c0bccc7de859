// Package config provides configuration types and defaults for brandgate services
// Centralized management of all constants and default values

package config

import (
	"os"
	"path/filepath"
)

// ===== Ports =====

const (
	// DefaultPort is the standard port for the brandgate API
	DefaultPort = 8712
)

// ===== Loop/Budget =====

const (
	// DefaultMaxIterations bounds tool-call rounds per request
	DefaultMaxIterations = 10

	// DefaultMaxTokens caps completion length per turn
	DefaultMaxTokens = 4096

	// DefaultContextTokens guards total history size
	DefaultContextTokens = 128000

	// DefaultResultBudget is the tool result truncation budget in characters
	DefaultResultBudget = 5000

	// DefaultEventQueueSize bounds the stream event queue between loop and transport
	DefaultEventQueueSize = 64
)

// ===== Paths =====

// DefaultDataDir returns the default data directory
func DefaultDataDir() string {
	if d := os.Getenv("BRANDGATE_DATA_DIR"); d != "" {
		return d
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "data")
}

// DefaultDBPath returns the default SQLite database path
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "brandgate.db")
}
