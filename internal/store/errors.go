package store

import "github.com/hushapp/hush/internal/errors"

// Sentinel errors. They share codes with internal/errors so callers can match
// either the specific value or the general code with errors.Is.
var (
	ErrNotFound     = errors.ErrNotFound
	ErrInvalidInput = errors.ErrValidation

	ErrProgressNotFound   = ErrNotFound.WithMessage("reading progress not found")
	ErrPreferenceNotFound = ErrNotFound.WithMessage("narration preference not found")
)
