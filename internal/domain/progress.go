package domain

import "time"

// ReadingProgress is the persisted position of a reader within a story.
// It is overwritten on every committed transition.
type ReadingProgress struct {
	StoryID    string    `json:"story_id"`
	BlockIndex int       `json:"block_index"`
	Scroll     float64   `json:"scroll"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewReadingProgress records a position at the given time.
func NewReadingProgress(storyID string, blockIndex int, at time.Time) *ReadingProgress {
	return &ReadingProgress{
		StoryID:    storyID,
		BlockIndex: blockIndex,
		Timestamp:  at.UTC(),
	}
}

// NarrationPreference remembers which narration mode a reader used for a story.
type NarrationPreference struct {
	StoryID    string        `json:"story_id"`
	Mode       NarrationMode `json:"mode"`
	BlockIndex int           `json:"block_index"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Enabled reports whether narration should be restored on open.
func (p *NarrationPreference) Enabled() bool {
	return p != nil && p.Mode != "" && p.Mode != NarrationNone
}

// Flag names persisted alongside progress.
const (
	FlagOnboardingSeen = "storyOnboardingSeen"
)
