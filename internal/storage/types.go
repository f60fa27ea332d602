package storage

import (
	"context"
	"errors"
	"time"

	"reportd/internal/schedule"
)

var (
	ErrClosed = errors.New("storage closed")
	// ErrCorrupt wraps decode failures of a persisted document.
	ErrCorrupt = errors.New("stored document is corrupt")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Document is the persisted report config.
type Document struct {
	MonitoredFiles []string          `json:"monitored_files"`
	Schedules      []schedule.Record `json:"schedules"`
}

// Store loads and saves the whole document.
type Store interface {
	// Load returns the stored document. ok is false when nothing has been
	// stored yet. Decode failures are reported wrapping ErrCorrupt.
	Load(ctx context.Context) (doc Document, ok bool, err error)
	Save(ctx context.Context, doc Document) error
	// Path is the location being persisted to (for watching and logs).
	Path() string
	Close() error
}
