package backup

import "time"

// FormatVersion is the backup format version. Increment major on breaking changes.
const FormatVersion = "1.0"

// Archive member names.
const (
	manifestFile  = "manifest.json"
	progressFile  = "progress.jsonl"
	narrationFile = "narration.jsonl"
)

// Manifest describes backup contents and metadata.
type Manifest struct {
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	HushVersion string    `json:"hush_version"`

	// Content summary
	Counts EntityCounts `json:"counts"`
}

// EntityCounts tracks record counts for validation and progress reporting.
type EntityCounts struct {
	Progress  int `json:"progress"`
	Narration int `json:"narration"`
}
