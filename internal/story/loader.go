// Package story reads story documents from a directory.
//
// A story is one YAML or JSON file. The file name, slugified, is the story id;
// a document id that disagrees is replaced. Block kinds written with legacy names
// (mermaid, reactflow, three-scene) are normalised on load.
package story

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/errors"
)

// Extensions accepted as story documents, in lookup order.
var extensions = []string{".yaml", ".yml", ".json"}

// Loader loads stories from a directory and caches parsed documents.
// It satisfies playback.StoryLoader.
type Loader struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*domain.Story // id -> parsed story
}

// NewLoader creates a loader for the stories in dir.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		dir:    dir,
		logger: logger,
		cache:  make(map[string]*domain.Story),
	}
}

// Dir returns the directory the loader reads from.
func (l *Loader) Dir() string {
	return l.dir
}

// Load returns the story with the given id. Unknown ids, ids that are not
// slugs, and unreadable documents all return a NOT_FOUND error.
func (l *Loader) Load(ctx context.Context, id string) (*domain.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !slug.IsSlug(id) {
		return nil, errors.NotFoundf("story %q not found", id)
	}

	l.mu.RLock()
	cached, ok := l.cache[id]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	path, ok := l.find(id)
	if !ok {
		return nil, errors.NotFoundf("story %q not found", id)
	}

	s, err := ParseFile(path)
	if err != nil {
		l.logger.Warn("failed to parse story", "id", id, "path", path, "error", err)
		return nil, errors.NotFoundf("story %q could not be read", id).WithCause(err)
	}

	l.mu.Lock()
	l.cache[id] = s
	l.mu.Unlock()

	l.logger.Debug("story loaded", "id", id, "blocks", s.Len())
	return s, nil
}

// find locates the document for id. A document whose file name slugifies to
// id is accepted when no exact match exists.
func (l *Loader) find(id string) (string, bool) {
	for _, ext := range extensions {
		path := filepath.Join(l.dir, id+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() || !IsStoryFile(e.Name()) {
			continue
		}
		if idFromPath(e.Name()) == id {
			return filepath.Join(l.dir, e.Name()), true
		}
	}
	return "", false
}

// Invalidate drops the cached story parsed from path. An empty path clears
// the whole cache.
func (l *Loader) Invalidate(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if path == "" {
		clear(l.cache)
		return
	}
	delete(l.cache, idFromPath(path))
}

// IsStoryFile reports whether name has a story document extension and is
// not hidden.
func IsStoryFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func idFromPath(path string) string {
	base := filepath.Base(path)
	return slug.Make(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ParseFile reads and parses one story document.
func ParseFile(path string) (*domain.Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story: %w", err)
	}

	s, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	s.ID = idFromPath(path)
	return s, nil
}

// Parse decodes a story document. ext selects the format (".json" or YAML
// otherwise). Block kinds are normalised; the story is not validated.
func Parse(data []byte, ext string) (*domain.Story, error) {
	var s domain.Story

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	for i := range s.Blocks {
		s.Blocks[i].Kind = domain.ParseBlockKind(string(s.Blocks[i].Kind))
	}
	return &s, nil
}
