// Package render draws story blocks. The playback core decides which block is
// active and how much of its text is revealed; renderers only paint.
package render

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hushapp/hush/internal/domain"
)

// Frame is everything a renderer is given for one block.
type Frame struct {
	Block     domain.Block
	Active    bool
	Narration domain.NarrationMode
	// Revealed is the number of runes of narration text shown so far while
	// typing reveal runs. Negative means the whole text.
	Revealed int
	// Width is the available column count. Zero means no wrapping.
	Width int
}

// Renderer paints one block.
type Renderer interface {
	Render(w io.Writer, f Frame) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(w io.Writer, f Frame) error

// Render calls fn.
func (fn RendererFunc) Render(w io.Writer, f Frame) error {
	return fn(w, f)
}

// Registry maps block kinds to renderers. Kinds without a renderer, and
// renderers that fail, are drawn with the placeholder instead.
type Registry struct {
	logger *slog.Logger

	mu          sync.RWMutex
	renderers   map[domain.BlockKind]Renderer
	placeholder Renderer
}

// NewRegistry creates an empty registry whose placeholder is Placeholder.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:      logger,
		renderers:   make(map[domain.BlockKind]Renderer),
		placeholder: RendererFunc(Placeholder),
	}
}

// Register sets the renderer for kind, replacing any previous one.
func (r *Registry) Register(kind domain.BlockKind, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[kind] = renderer
}

// SetPlaceholder replaces the renderer used for unknown kinds and failures.
func (r *Registry) SetPlaceholder(renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placeholder = renderer
}

// Has reports whether kind has a registered renderer.
func (r *Registry) Has(kind domain.BlockKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.renderers[kind]
	return ok
}

// Render draws f with the renderer registered for its kind. A renderer that
// returns an error or panics is replaced by the placeholder for this frame;
// only a failing placeholder returns an error.
func (r *Registry) Render(w io.Writer, f Frame) error {
	r.mu.RLock()
	renderer, ok := r.renderers[f.Block.Kind]
	placeholder := r.placeholder
	r.mu.RUnlock()

	if !ok {
		return placeholder.Render(w, unsupportedFrame(f, "no renderer for this kind"))
	}

	if err := safeRender(renderer, w, f); err != nil {
		r.logger.Warn("block renderer failed", "kind", f.Block.Kind, "error", err)
		return placeholder.Render(w, unsupportedFrame(f, err.Error()))
	}
	return nil
}

func safeRender(renderer Renderer, w io.Writer, f Frame) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("renderer panic: %v", p)
		}
	}()
	return renderer.Render(w, f)
}

// unsupportedFrame turns f into a frame for the placeholder, keeping the
// original kind in the caption.
func unsupportedFrame(f Frame, reason string) Frame {
	if f.Block.Kind == domain.KindUnsupported {
		return f
	}
	f.Block = domain.Unsupported(f.Block.Kind, reason)
	return f
}

// Placeholder draws an explicit "unsupported content" line.
func Placeholder(w io.Writer, f Frame) error {
	kind := f.Block.Caption
	if kind == "" {
		kind = string(f.Block.Kind)
	}
	line := fmt.Sprintf("[unsupported content: %s]", kind)
	if f.Block.Reason != "" {
		line += " " + f.Block.Reason
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
