package backup

import "time"

// RestoreOptions configures restoration.
type RestoreOptions struct {
	Mode          RestoreMode
	MergeStrategy MergeStrategy
	DryRun        bool // Validate without writing
}

// RestoreMode determines how to handle existing data.
type RestoreMode string

const (
	// RestoreModeFull wipes existing progress and restores from backup.
	RestoreModeFull RestoreMode = "full"

	// RestoreModeMerge adds backup records to existing ones.
	RestoreModeMerge RestoreMode = "merge"
)

// Valid returns true if the restore mode is recognized.
func (m RestoreMode) Valid() bool {
	switch m {
	case RestoreModeFull, RestoreModeMerge:
		return true
	default:
		return false
	}
}

// MergeStrategy determines conflict resolution in merge mode.
type MergeStrategy string

const (
	// MergeKeepLocal keeps the local record on conflict.
	MergeKeepLocal MergeStrategy = "keep_local"

	// MergeKeepBackup uses the backup record on conflict.
	MergeKeepBackup MergeStrategy = "keep_backup"

	// MergeNewest uses whichever record was written last.
	MergeNewest MergeStrategy = "newest"
)

// Valid returns true if the merge strategy is recognized.
func (s MergeStrategy) Valid() bool {
	switch s {
	case MergeKeepLocal, MergeKeepBackup, MergeNewest:
		return true
	case "": // Empty is valid (not needed for full restores)
		return true
	default:
		return false
	}
}

// BackupResult contains the outcome of a backup operation.
type BackupResult struct {
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Counts   EntityCounts  `json:"counts"`
	Duration time.Duration `json:"duration"`
	Checksum string        `json:"checksum"`
}

// BackupInfo describes an existing backup.
type BackupInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// RestoreResult contains the outcome of a restore operation.
type RestoreResult struct {
	Imported EntityCounts   `json:"imported"`
	Skipped  EntityCounts   `json:"skipped"`
	Errors   []RestoreError `json:"errors,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// RestoreError describes a non-fatal error during restore.
type RestoreError struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	Error      string `json:"error"`
}

// ValidationResult describes backup validity.
type ValidationResult struct {
	Valid    bool      `json:"valid"`
	Manifest *Manifest `json:"manifest,omitempty"`
	Errors   []string  `json:"errors,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
}
