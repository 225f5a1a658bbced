package playback

import (
	"time"

	"github.com/hushapp/hush/internal/domain"
)

// DurationTable holds the base dwell time of each block kind at normal speed.
type DurationTable struct {
	Heading    time.Duration
	Subheading time.Duration
	// Paragraphs dwell PerWord for every word, but never less than ParagraphFloor.
	ParagraphFloor time.Duration
	PerWord        time.Duration
	Quote          time.Duration
	Code           time.Duration
	Media          time.Duration
	Default        time.Duration
}

// DefaultDurations returns the stock dwell times.
func DefaultDurations() DurationTable {
	return DurationTable{
		Heading:        4000 * time.Millisecond,
		Subheading:     3500 * time.Millisecond,
		ParagraphFloor: 3000 * time.Millisecond,
		PerWord:        150 * time.Millisecond,
		Quote:          4000 * time.Millisecond,
		Code:           5000 * time.Millisecond,
		Media:          6000 * time.Millisecond,
		Default:        3000 * time.Millisecond,
	}
}

// speedPerMille is the pacing multiplier of each mode in thousandths.
// Integer arithmetic keeps the rounding exact.
var speedPerMille = map[domain.AutoplayMode]int64{
	domain.AutoplaySlow:   1500,
	domain.AutoplayNormal: 1000,
	domain.AutoplayFast:   700,
}

// Estimate returns how long autoplay dwells on b with the stock table.
func Estimate(b domain.Block, mode domain.AutoplayMode) time.Duration {
	return DefaultDurations().Estimate(b, mode)
}

// Estimate returns how long autoplay dwells on b in the given mode, rounded up
// to a whole millisecond. Disabled estimates at normal speed. The result is
// always positive.
func (t DurationTable) Estimate(b domain.Block, mode domain.AutoplayMode) time.Duration {
	base := t.base(b)

	perMille, ok := speedPerMille[mode]
	if !ok {
		perMille = 1000
	}

	ms := (base.Milliseconds()*perMille + 999) / 1000
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

func (t DurationTable) base(b domain.Block) time.Duration {
	switch {
	case b.Kind == domain.KindHeading:
		return t.Heading
	case b.Kind == domain.KindSubheading:
		return t.Subheading
	case b.Kind == domain.KindParagraph:
		return max(t.ParagraphFloor, time.Duration(b.WordCount())*t.PerWord)
	case b.Kind == domain.KindQuote:
		return t.Quote
	case b.Kind == domain.KindCode:
		return t.Code
	case b.Kind.IsMedia():
		return t.Media
	default:
		return t.Default
	}
}
