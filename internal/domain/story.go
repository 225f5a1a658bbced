// Package domain contains the data model of the Hush reader: stories, blocks,
// reading progress, and playback state snapshots.
package domain

import (
	"fmt"
	"math"
)

// wordsPerMinute is the reading speed used for catalog reading-time estimates.
const wordsPerMinute = 200

// Story is an ordered, immutable list of blocks plus catalog metadata.
type Story struct {
	ID          string   `json:"id" yaml:"id" validate:"required"`
	Title       string   `json:"title" yaml:"title" validate:"required"`
	Author      string   `json:"author" yaml:"author" validate:"required"`
	CoverImage  string   `json:"coverImage,omitempty" yaml:"coverImage,omitempty"`
	PublishedAt string   `json:"publishedAt,omitempty" yaml:"publishedAt,omitempty"`
	Categories  []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Excerpt     string   `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
	ReadingTime string   `json:"readingTime,omitempty" yaml:"readingTime,omitempty"`
	Blocks      []Block  `json:"blocks" yaml:"blocks" validate:"required,min=1"`
}

// Len returns the number of blocks.
func (s *Story) Len() int {
	return len(s.Blocks)
}

// Block returns the block at index i, or false when i is out of range.
func (s *Story) Block(i int) (Block, bool) {
	if i < 0 || i >= len(s.Blocks) {
		return Block{}, false
	}
	return s.Blocks[i], true
}

// Clamp pulls i into [0, Len()-1].
func (s *Story) Clamp(i int) int {
	if i < 0 || len(s.Blocks) == 0 {
		return 0
	}
	if i >= len(s.Blocks) {
		return len(s.Blocks) - 1
	}
	return i
}

// Summary returns the catalog record for the story.
func (s *Story) Summary() StorySummary {
	readingTime := s.ReadingTime
	if readingTime == "" {
		readingTime = ReadingTime(s.Blocks)
	}
	return StorySummary{
		ID:          s.ID,
		Title:       s.Title,
		Author:      s.Author,
		Excerpt:     s.Excerpt,
		Categories:  s.Categories,
		Keywords:    s.Keywords,
		CoverImage:  s.CoverImage,
		PublishedAt: s.PublishedAt,
		ReadingTime: readingTime,
		BlockCount:  len(s.Blocks),
	}
}

// StorySummary is the catalog/index view of a story without its blocks.
type StorySummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Excerpt     string   `json:"excerpt"`
	Categories  []string `json:"categories"`
	Keywords    []string `json:"keywords"`
	CoverImage  string   `json:"coverImage"`
	PublishedAt string   `json:"publishedAt"`
	ReadingTime string   `json:"readingTime"`
	BlockCount  int      `json:"blockCount"`
}

// ReadingTime estimates reading time over headings, subheadings and paragraphs
// at 200 words per minute, rounded up, e.g. "4 min".
func ReadingTime(blocks []Block) string {
	words := 0
	for _, b := range blocks {
		switch b.Kind {
		case KindHeading, KindSubheading, KindParagraph:
			words += b.WordCount()
		}
	}
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	return fmt.Sprintf("%d min", minutes)
}
