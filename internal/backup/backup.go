package backup

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hushapp/hush/internal/store"
)

// archiveExt is the file name suffix of backup archives.
const archiveExt = ".hush.zip"

// BackupService creates, lists and restores backups of the badger store.
type BackupService struct {
	store     *store.Store
	backupDir string
	version   string
	logger    *slog.Logger
}

// NewBackupService creates a BackupService.
func NewBackupService(s *store.Store, backupDir, version string, logger *slog.Logger) *BackupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupService{
		store:     s,
		backupDir: backupDir,
		version:   version,
		logger:    logger,
	}
}

// Create writes a new backup. An empty outputPath creates a timestamped
// archive in the backup directory.
func (s *BackupService) Create(ctx context.Context, outputPath string) (*BackupResult, error) {
	start := time.Now()

	if outputPath == "" {
		if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
			return nil, fmt.Errorf("create backup dir: %w", err)
		}
		timestamp := start.Format("2006-01-02-150405")
		outputPath = filepath.Join(s.backupDir, "backup-"+timestamp+archiveExt)
	}

	s.logger.Info("creating backup", "output", outputPath)

	// Write to temp file, rename on success.
	tmpPath := outputPath + ".tmp"
	f, err := os.Create(tmpPath) //#nosec G304 -- backup path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	hash := sha256.New()
	zw := zip.NewWriter(io.MultiWriter(f, hash))

	manifest := &Manifest{
		Version:     FormatVersion,
		CreatedAt:   start.UTC(),
		HushVersion: s.version,
	}

	if manifest.Counts.Progress, err = s.exportProgress(ctx, zw); err != nil {
		return nil, fmt.Errorf("export progress: %w", err)
	}
	if manifest.Counts.Narration, err = s.exportNarration(ctx, zw); err != nil {
		return nil, fmt.Errorf("export narration: %w", err)
	}

	mw, err := zw.Create(manifestFile)
	if err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}
	if err := json.NewEncoder(mw).Encode(manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, fmt.Errorf("rename backup: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	result := &BackupResult{
		Path:     outputPath,
		Size:     info.Size(),
		Counts:   manifest.Counts,
		Duration: time.Since(start),
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}

	s.logger.Info("backup complete",
		"path", result.Path,
		"size", result.Size,
		"progress", result.Counts.Progress,
		"narration", result.Counts.Narration,
		"duration", result.Duration)

	return result, nil
}

func (s *BackupService) exportProgress(ctx context.Context, zw *zip.Writer) (int, error) {
	w, err := newJSONLWriter(zw, progressFile)
	if err != nil {
		return 0, err
	}
	for p, err := range s.store.StreamProgress(ctx) {
		if err != nil {
			return w.count, err
		}
		if err := w.Write(p); err != nil {
			return w.count, err
		}
	}
	return w.count, nil
}

func (s *BackupService) exportNarration(ctx context.Context, zw *zip.Writer) (int, error) {
	w, err := newJSONLWriter(zw, narrationFile)
	if err != nil {
		return 0, err
	}
	for p, err := range s.store.StreamNarrationPreferences(ctx) {
		if err != nil {
			return w.count, err
		}
		if err := w.Write(p); err != nil {
			return w.count, err
		}
	}
	return w.count, nil
}

// List returns all available backups, newest first.
func (s *BackupService) List(_ context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), archiveExt) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			ID:        strings.TrimSuffix(entry.Name(), archiveExt),
			Path:      filepath.Join(s.backupDir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	slices.SortFunc(backups, func(a, b BackupInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return backups, nil
}

// Get returns a backup by ID.
func (s *BackupService) Get(_ context.Context, id string) (*BackupInfo, error) {
	path := s.GetPath(id)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}

	return &BackupInfo{
		ID:        id,
		Path:      path,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

// Delete removes a backup.
func (s *BackupService) Delete(ctx context.Context, id string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return os.Remove(b.Path)
}

// GetPath returns the file path for a backup ID.
func (s *BackupService) GetPath(id string) string {
	return filepath.Join(s.backupDir, filepath.Base(id)+archiveExt)
}
