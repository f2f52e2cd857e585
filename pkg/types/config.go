package types

import "errors"

// Config holds the parameters for attaching the local store.
type Config struct {
	// DataDir is the directory holding oilsync.db. Required unless InMemory.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// InMemory opens a private in-memory database. Used by tests and
	// throwaway CLI sessions.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// BusyTimeoutMillis is applied as PRAGMA busy_timeout. Zero keeps the
	// default of 5000.
	BusyTimeoutMillis int `json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// StoreFileName is the database file created inside DataDir.
const StoreFileName = "oilsync.db"

// DefaultBusyTimeoutMillis is used when Config.BusyTimeoutMillis is zero.
const DefaultBusyTimeoutMillis = 5000

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid store config")

// Validate checks that the Config is well-formed.
func (c Config) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return ErrInvalidConfig
	}
	if c.BusyTimeoutMillis < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// GetBusyTimeoutMillis returns the effective busy timeout.
func (c Config) GetBusyTimeoutMillis() int {
	if c.BusyTimeoutMillis == 0 {
		return DefaultBusyTimeoutMillis
	}
	return c.BusyTimeoutMillis
}
