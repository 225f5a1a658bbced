// Package validation checks story documents with the validator/v10 library and
// converts failures into domain errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hushapp/hush/internal/domain"
	domainerrors "github.com/hushapp/hush/internal/errors"
)

// tagForbidden marks a payload field that does not belong to the block's kind.
const tagForbidden = "forbidden"

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator configured for story documents.
func New() *Validator {
	v := validator.New()

	// Use JSON tag names in error messages, they match the story document keys.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	v.RegisterStructValidation(blockPayload, domain.Block{})

	return &Validator{v: v}
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err, domainerrors.ErrValidation)
	}
	return nil
}

// ValidateStory checks story-level fields. Blocks are validated one by one with
// ValidateBlock so a single bad block does not reject the whole story.
func (v *Validator) ValidateStory(s *domain.Story) error {
	if s == nil {
		return domainerrors.Validation("story is nil")
	}
	return v.Validate(s)
}

// ValidateBlock checks that the block carries exactly the payload its kind needs.
// Failures are reported as INVALID_BLOCK errors.
func (v *Validator) ValidateBlock(b domain.Block) error {
	if err := v.v.Struct(b); err != nil {
		return v.formatError(err, domainerrors.ErrInvalidBlock)
	}
	return nil
}

// blockPayload enforces the one-payload-shape-per-kind rule.
//
//nolint:gocyclo // One case per block kind.
func blockPayload(sl validator.StructLevel) {
	b, ok := sl.Current().Interface().(domain.Block)
	if !ok {
		return
	}

	require := func(value any, empty bool, field, name string) {
		if empty {
			sl.ReportError(value, field, name, "required", "")
		}
	}
	forbid := func(value any, set bool, field, name string) {
		if set {
			sl.ReportError(value, field, name, tagForbidden, string(b.Kind))
		}
	}

	switch {
	case b.Kind.IsText():
		require(b.Text, strings.TrimSpace(b.Text) == "", "text", "Text")
		forbid(b.Src, b.Src != "", "src", "Src")
		forbid(b.Code, b.Code != "", "code", "Code")
		forbid(b.URL, b.URL != "", "url", "URL")
		forbid(b.Nodes, len(b.Nodes) > 0, "nodes", "Nodes")
		if b.Kind != domain.KindQuote {
			forbid(b.Author, b.Author != "", "author", "Author")
		}
	case b.Kind == domain.KindImage, b.Kind == domain.KindVideo:
		require(b.Src, b.Src == "", "src", "Src")
		forbid(b.Text, b.Text != "", "text", "Text")
		forbid(b.Code, b.Code != "", "code", "Code")
	case b.Kind == domain.KindEmbed:
		if b.URL == "" && b.Src == "" {
			sl.ReportError(b.URL, "url", "URL", "required_without", "src")
		}
		forbid(b.Text, b.Text != "", "text", "Text")
	case b.Kind == domain.KindCode:
		require(b.Code, strings.TrimSpace(b.Code) == "", "code", "Code")
		forbid(b.Text, b.Text != "", "text", "Text")
		forbid(b.Src, b.Src != "", "src", "Src")
	case b.Kind == domain.KindDiagram:
		require(b.Code, strings.TrimSpace(b.Code) == "", "code", "Code")
		forbid(b.Text, b.Text != "", "text", "Text")
	case b.Kind == domain.KindInteractiveGraph:
		require(b.Nodes, len(b.Nodes) == 0, "nodes", "Nodes")
		forbid(b.Text, b.Text != "", "text", "Text")
	case b.Kind == domain.KindScene:
		require(b.SceneID, b.SceneID == "", "sceneId", "SceneID")
		forbid(b.Text, b.Text != "", "text", "Text")
	}
}

// formatError converts validator errors to domain errors with per-field details.
func (v *Validator) formatError(err error, base *domainerrors.Error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return base.WithCause(err)
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = v.friendlyMessage(e)
	}

	return base.WithDetails(fieldErrors)
}

// Summary flattens the field details of a validation error into one line,
// e.g. "src is required; text must not be set for image blocks".
func Summary(err error) string {
	var domainErr *domainerrors.Error
	if !errors.As(err, &domainErr) {
		return err.Error()
	}
	details, ok := domainErr.Details.(map[string]string)
	if !ok || len(details) == 0 {
		return domainErr.Message
	}
	parts := make([]string, 0, len(details))
	for field, msg := range details {
		parts = append(parts, field+" "+msg)
	}
	slices.Sort(parts)
	return strings.Join(parts, "; ")
}

func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when " + e.Param() + " is empty"
	case tagForbidden:
		return fmt.Sprintf("must not be set for %s blocks", e.Param())
	case "min":
		return "must have at least " + e.Param() + " entries"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}
