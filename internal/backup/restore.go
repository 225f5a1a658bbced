package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/store"
)

// batchSize is how many records are written per badger batch on restore.
const batchSize = 500

// Validate checks a backup without importing.
func (s *BackupService) Validate(_ context.Context, path string) (*ValidationResult, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("failed to open backup: %v", err)},
		}, nil
	}
	defer zr.Close()

	result := &ValidationResult{Valid: true}

	manifest, err := readManifest(&zr.Reader)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	result.Manifest = manifest

	if manifest.Version != FormatVersion {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("unsupported version %s (want %s)", manifest.Version, FormatVersion))
	}

	for _, name := range []string{progressFile, narrationFile} {
		rc, err := openFile(&zr.Reader, name)
		if err != nil {
			result.Warnings = append(result.Warnings, "missing file: "+name)
			continue
		}
		rc.Close()
	}

	return result, nil
}

func readManifest(zr *zip.Reader) (*Manifest, error) {
	rc, err := openFile(zr, manifestFile)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidManifest, manifestFile)
	}
	defer rc.Close()

	var m Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &m, nil
}

// Restore imports a backup. A full restore clears existing progress and
// narration preferences first; flags are kept. A merge restore resolves
// conflicts with opts.MergeStrategy.
func (s *BackupService) Restore(ctx context.Context, path string, opts RestoreOptions) (*RestoreResult, error) {
	start := time.Now()

	if !opts.Mode.Valid() || !opts.MergeStrategy.Valid() {
		return nil, fmt.Errorf("%w: mode %q, strategy %q", ErrInvalidOptions, opts.Mode, opts.MergeStrategy)
	}
	if opts.Mode == RestoreModeMerge && opts.MergeStrategy == "" {
		opts.MergeStrategy = MergeNewest
	}

	s.logger.Info("starting restore",
		"path", path,
		"mode", opts.Mode,
		"merge_strategy", opts.MergeStrategy,
		"dry_run", opts.DryRun)

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
	}
	defer zr.Close()

	manifest, err := readManifest(&zr.Reader)
	if err != nil {
		return nil, err
	}
	if manifest.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %s", ErrVersionMismatch, manifest.Version)
	}

	if opts.Mode == RestoreModeFull && !opts.DryRun {
		if err := s.store.ClearAllProgress(ctx); err != nil {
			return nil, fmt.Errorf("clear progress: %w", err)
		}
	}

	result := &RestoreResult{}
	batch := s.store.NewBatchWriter(batchSize)

	if err := s.restoreProgress(ctx, &zr.Reader, batch, opts, result); err != nil {
		batch.Cancel()
		return nil, err
	}
	if err := s.restoreNarration(ctx, &zr.Reader, batch, opts, result); err != nil {
		batch.Cancel()
		return nil, err
	}

	if opts.DryRun {
		batch.Cancel()
	} else if err := batch.Flush(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)

	s.logger.Info("restore complete",
		"imported_progress", result.Imported.Progress,
		"imported_narration", result.Imported.Narration,
		"skipped", result.Skipped.Progress+result.Skipped.Narration,
		"errors", len(result.Errors),
		"duration", result.Duration)

	return result, nil
}

func (s *BackupService) restoreProgress(ctx context.Context, zr *zip.Reader, batch *store.BatchWriter, opts RestoreOptions, result *RestoreResult) error {
	rc, err := openFile(zr, progressFile)
	if errors.Is(err, ErrFileNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for p, err := range readJSONL[domain.ReadingProgress](rc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			result.Errors = append(result.Errors, RestoreError{EntityType: "progress", Error: err.Error()})
			continue
		}

		if opts.Mode == RestoreModeMerge {
			local, err := s.store.LoadProgress(ctx, p.StoryID)
			if err == nil && !takeBackup(opts.MergeStrategy, local.Timestamp, p.Timestamp) {
				result.Skipped.Progress++
				continue
			}
		}

		if err := batch.SaveProgress(ctx, p); err != nil {
			result.Errors = append(result.Errors, RestoreError{EntityType: "progress", EntityID: p.StoryID, Error: err.Error()})
			continue
		}
		result.Imported.Progress++
	}
	return nil
}

func (s *BackupService) restoreNarration(ctx context.Context, zr *zip.Reader, batch *store.BatchWriter, opts RestoreOptions, result *RestoreResult) error {
	rc, err := openFile(zr, narrationFile)
	if errors.Is(err, ErrFileNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for p, err := range readJSONL[domain.NarrationPreference](rc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			result.Errors = append(result.Errors, RestoreError{EntityType: "narration", Error: err.Error()})
			continue
		}

		if opts.Mode == RestoreModeMerge {
			local, err := s.store.LoadNarrationPreference(ctx, p.StoryID)
			if err == nil && !takeBackup(opts.MergeStrategy, local.UpdatedAt, p.UpdatedAt) {
				result.Skipped.Narration++
				continue
			}
		}

		if err := batch.SaveNarrationPreference(ctx, p); err != nil {
			result.Errors = append(result.Errors, RestoreError{EntityType: "narration", EntityID: p.StoryID, Error: err.Error()})
			continue
		}
		result.Imported.Narration++
	}
	return nil
}

// takeBackup decides a merge conflict between a local and a backup record.
func takeBackup(strategy MergeStrategy, local, backup time.Time) bool {
	switch strategy {
	case MergeKeepLocal:
		return false
	case MergeKeepBackup:
		return true
	default:
		return backup.After(local)
	}
}
