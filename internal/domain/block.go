package domain

import (
	"strings"
	"unicode"
)

// BlockKind identifies the payload shape of a Block.
type BlockKind string

// Block kinds a story may contain.
const (
	KindHeading          BlockKind = "heading"
	KindSubheading       BlockKind = "subheading"
	KindParagraph        BlockKind = "paragraph"
	KindQuote            BlockKind = "quote"
	KindImage            BlockKind = "image"
	KindVideo            BlockKind = "video"
	KindEmbed            BlockKind = "embed"
	KindCode             BlockKind = "code"
	KindDiagram          BlockKind = "diagram"
	KindInteractiveGraph BlockKind = "interactiveGraph"
	KindScene            BlockKind = "scene"

	// KindUnsupported is never authored. The loader substitutes it for blocks
	// that fail validation so the rest of the story stays readable.
	KindUnsupported BlockKind = "unsupported"
)

// kindAliases maps names used by older story documents to current kinds.
var kindAliases = map[string]BlockKind{
	"mermaid":     KindDiagram,
	"reactflow":   KindInteractiveGraph,
	"three-scene": KindScene,
}

// ParseBlockKind resolves a kind name, accepting legacy aliases.
// Unknown names are returned unchanged so validation can report them.
func ParseBlockKind(s string) BlockKind {
	if k, ok := kindAliases[s]; ok {
		return k
	}
	return BlockKind(s)
}

// IsText reports whether the kind carries prose in Text.
func (k BlockKind) IsText() bool {
	switch k {
	case KindHeading, KindSubheading, KindParagraph, KindQuote:
		return true
	default:
		return false
	}
}

// IsMedia reports whether the kind is visual content with an optional caption.
func (k BlockKind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindEmbed, KindDiagram, KindInteractiveGraph, KindScene:
		return true
	default:
		return false
	}
}

// Block is one unit of story content. Only the fields required by Kind are set.
type Block struct {
	Kind     BlockKind        `json:"type" yaml:"type" validate:"required,oneof=heading subheading paragraph quote image video embed code diagram interactiveGraph scene"`
	Text     string           `json:"text,omitempty" yaml:"text,omitempty"`
	Author   string           `json:"author,omitempty" yaml:"author,omitempty"`
	Src      string           `json:"src,omitempty" yaml:"src,omitempty"`
	URL      string           `json:"url,omitempty" yaml:"url,omitempty"`
	Caption  string           `json:"caption,omitempty" yaml:"caption,omitempty"`
	Code     string           `json:"code,omitempty" yaml:"code,omitempty"`
	Language string           `json:"language,omitempty" yaml:"language,omitempty"`
	Nodes    []map[string]any `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Edges    []map[string]any `json:"edges,omitempty" yaml:"edges,omitempty"`
	SceneID  string           `json:"sceneId,omitempty" yaml:"sceneId,omitempty"`
	Props    map[string]any   `json:"props,omitempty" yaml:"props,omitempty"`

	// Reason is set on unsupported placeholders only.
	Reason string `json:"reason,omitempty" yaml:"-"`
}

// Unsupported returns a placeholder standing in for a block that failed validation.
func Unsupported(original BlockKind, reason string) Block {
	return Block{
		Kind:    KindUnsupported,
		Caption: string(original),
		Reason:  reason,
	}
}

// NarrationText returns the text a narrator should speak or reveal for the block.
func (b Block) NarrationText() string {
	switch {
	case b.Kind.IsText():
		return b.Text
	case b.Kind == KindCode:
		return b.Code
	case b.Kind.IsMedia():
		return b.Caption
	default:
		return ""
	}
}

// WordCount counts whitespace-separated words in the block's Text.
// Missing text counts as zero words.
func (b Block) WordCount() int {
	return CountWords(b.Text)
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.FieldsFunc(s, unicode.IsSpace))
}
