package story

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/maruel/natural"
	"golang.org/x/sync/errgroup"

	"github.com/hushapp/hush/internal/domain"
)

// Defaults applied to index entries when a document leaves them out.
const (
	DefaultCoverImage  = "/assets/default-cover.jpg"
	DefaultReadingTime = "5 min"
)

// Entry is one record of the story index.
type Entry struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Excerpt     string   `json:"excerpt"`
	Categories  []string `json:"categories"`
	Keywords    []string `json:"keywords"`
	Slug        string   `json:"slug"`
	PublishedAt string   `json:"publishedAt"`
	CoverImage  string   `json:"coverImage"`
	ReadingTime string   `json:"readingTime"`
	BlockCount  int      `json:"blockCount"`
}

// Catalog parses every story document in the directory and returns one entry
// per readable story, newest first. Documents that fail to parse or lack an
// id, title or author are logged and left out. A missing directory yields an
// empty catalog.
func (l *Loader) Catalog(ctx context.Context) ([]Entry, error) {
	dirEntries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Info("stories directory does not exist", "path", l.dir)
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read stories directory: %w", err)
	}

	var paths []string
	for _, e := range dirEntries {
		if !e.IsDir() && IsStoryFile(e.Name()) {
			paths = append(paths, filepath.Join(l.dir, e.Name()))
		}
	}

	today := time.Now().UTC().Format(time.DateOnly)

	var (
		mu      sync.Mutex
		entries = make([]Entry, 0, len(paths))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			s, err := ParseFile(path)
			if err != nil {
				l.logger.Warn("skipping story", "path", path, "error", err)
				return nil
			}
			if s.Title == "" || s.Author == "" {
				l.logger.Warn("story is missing required fields", "path", path)
				return nil
			}

			entry := entryFor(s, today)

			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortEntries(entries)
	l.logger.Debug("catalog scanned", "files", len(paths), "stories", len(entries))
	return entries, nil
}

func entryFor(s *domain.Story, today string) Entry {
	sum := s.Summary()
	e := Entry{
		ID:          sum.ID,
		Title:       sum.Title,
		Author:      sum.Author,
		Excerpt:     sum.Excerpt,
		Categories:  sum.Categories,
		Keywords:    sum.Keywords,
		Slug:        sum.ID,
		PublishedAt: cmp.Or(sum.PublishedAt, today),
		CoverImage:  cmp.Or(sum.CoverImage, DefaultCoverImage),
		ReadingTime: cmp.Or(sum.ReadingTime, DefaultReadingTime),
		BlockCount:  sum.BlockCount,
	}
	if e.Categories == nil {
		e.Categories = []string{}
	}
	if e.Keywords == nil {
		e.Keywords = []string{}
	}
	return e
}

// SortEntries orders entries by publication date, newest first. Entries
// published on the same day are ordered naturally by id.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.PublishedAt, a.PublishedAt); c != 0 {
			return c
		}
		switch {
		case natural.Less(a.ID, b.ID):
			return -1
		case natural.Less(b.ID, a.ID):
			return 1
		default:
			return 0
		}
	})
}

// WriteIndex scans the catalog and writes it to path as indented JSON.
// It returns the entries written.
func (l *Loader) WriteIndex(ctx context.Context, path string) ([]Entry, error) {
	entries, err := l.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("replace index: %w", err)
	}

	l.logger.Info("index written", "path", path, "stories", len(entries))
	return entries, nil
}
