package db

import "time"

// Schema defines the SQLite schema of the boot history.
// Timestamps are UTC text in timeLayout so they compare lexically.
const Schema = `
CREATE TABLE IF NOT EXISTS boot_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target TEXT NOT NULL,
    baud INTEGER NOT NULL,
    server_address TEXT NOT NULL,
    kernel_prefix TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'failed')),
    stage TEXT,
    reason TEXT,
    transcript_path TEXT,
    archive_key TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_boot_runs_status ON boot_runs(status);
CREATE INDEX IF NOT EXISTS idx_boot_runs_started_at ON boot_runs(started_at);
`

// Status constants
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Run is one boot attempt.
type Run struct {
	ID             int64     `yaml:"id"`
	Target         string    `yaml:"target"`
	Baud           int       `yaml:"baud"`
	ServerAddress  string    `yaml:"server_address"`
	KernelPrefix   string    `yaml:"kernel_prefix"`
	Status         string    `yaml:"status"`
	Stage          string    `yaml:"stage,omitempty"`
	Reason         string    `yaml:"reason,omitempty"`
	TranscriptPath string    `yaml:"transcript_path,omitempty"`
	ArchiveKey     string    `yaml:"archive_key,omitempty"`
	StartedAt      time.Time `yaml:"started_at"`
	FinishedAt     time.Time `yaml:"finished_at,omitempty"`
}
