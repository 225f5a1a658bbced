package story

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/errors"
)

const cellarYAML = `
title: The Cellar
author: A. Writer
publishedAt: "2024-03-01"
blocks:
  - type: heading
    text: The Cellar
  - type: paragraph
    text: Nobody goes down there after dark.
  - type: mermaid
    code: "graph TD; A-->B"
  - type: reactflow
    nodes:
      - id: a
    edges: []
  - type: three-scene
    sceneId: stairs
`

const attic = `{
  "id": "ignored-id",
  "title": "The Attic",
  "author": "B. Writer",
  "publishedAt": "2024-04-01",
  "blocks": [
    {"type": "paragraph", "text": "Dust everywhere."},
    {"type": "image", "src": "/a.jpg", "caption": "The window"}
  ]
}`

func writeStory(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "the-cellar.yaml", cellarYAML)

	l := NewLoader(dir, nil)
	s, err := l.Load(context.Background(), "the-cellar")
	require.NoError(t, err)

	assert.Equal(t, "the-cellar", s.ID)
	assert.Equal(t, "The Cellar", s.Title)
	require.Equal(t, 5, s.Len())
	assert.Equal(t, domain.KindHeading, s.Blocks[0].Kind)
	assert.Equal(t, domain.KindDiagram, s.Blocks[2].Kind)
	assert.Equal(t, domain.KindInteractiveGraph, s.Blocks[3].Kind)
	assert.Equal(t, domain.KindScene, s.Blocks[4].Kind)
	assert.Equal(t, "stairs", s.Blocks[4].SceneID)
	assert.Len(t, s.Blocks[3].Nodes, 1)
}

func TestLoader_LoadJSON(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "attic.json", attic)

	l := NewLoader(dir, nil)
	s, err := l.Load(context.Background(), "attic")
	require.NoError(t, err)

	// The file name wins over the document id.
	assert.Equal(t, "attic", s.ID)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "/a.jpg", s.Blocks[1].Src)
}

func TestLoader_FileNameIsSlugified(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "The Cellar.yml", cellarYAML)

	l := NewLoader(dir, nil)
	s, err := l.Load(context.Background(), "the-cellar")
	require.NoError(t, err)
	assert.Equal(t, "the-cellar", s.ID)
}

func TestLoader_NotFound(t *testing.T) {
	dir := t.TempDir()
	writeStory(t, dir, "broken.yaml", "blocks: [unterminated")

	l := NewLoader(dir, nil)

	tests := []struct {
		name string
		id   string
	}{
		{name: "missing", id: "nope"},
		{name: "not a slug", id: "../etc/passwd"},
		{name: "empty", id: ""},
		{name: "unparseable", id: "broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), tt.id)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrNotFound)
		})
	}
}

func TestLoader_CachesUntilInvalidated(t *testing.T) {
	dir := t.TempDir()
	path := writeStory(t, dir, "attic.json", attic)

	l := NewLoader(dir, nil)
	first, err := l.Load(context.Background(), "attic")
	require.NoError(t, err)

	writeStory(t, dir, "attic.json", `{"title":"Rewritten","author":"C","blocks":[{"type":"paragraph","text":"x"}]}`)

	again, err := l.Load(context.Background(), "attic")
	require.NoError(t, err)
	assert.Same(t, first, again)

	l.Invalidate(path)

	fresh, err := l.Load(context.Background(), "attic")
	require.NoError(t, err)
	assert.Equal(t, "Rewritten", fresh.Title)
}

func TestLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(t.TempDir(), nil).Load(ctx, "attic")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsStoryFile(t *testing.T) {
	tests := map[string]bool{
		"a.yaml":       true,
		"a.YML":        true,
		"dir/a.json":   true,
		".hidden.yaml": false,
		"notes.md":     false,
		"a.yaml.tmp":   false,
		"no-extension": false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsStoryFile(name), name)
	}
}

func TestParse_UnknownKindKept(t *testing.T) {
	s, err := Parse([]byte("title: x\nblocks:\n  - type: hologram\n"), ".yaml")
	require.NoError(t, err)
	assert.Equal(t, domain.BlockKind("hologram"), s.Blocks[0].Kind)
}
