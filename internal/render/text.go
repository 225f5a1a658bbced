package render

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/hushapp/hush/internal/domain"
)

// ANSI escape codes for terminal styling.
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiItalic = "\033[3m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[37m"
)

// Text renders blocks as plain terminal text.
type Text struct {
	// Color enables ANSI styling.
	Color bool
}

// NewTextRegistry returns a registry with Text renderers for every authored
// block kind.
func NewTextRegistry(logger *slog.Logger, color bool) *Registry {
	t := Text{Color: color}
	r := NewRegistry(logger)

	r.Register(domain.KindHeading, RendererFunc(t.Heading))
	r.Register(domain.KindSubheading, RendererFunc(t.Subheading))
	r.Register(domain.KindParagraph, RendererFunc(t.Paragraph))
	r.Register(domain.KindQuote, RendererFunc(t.Quote))
	r.Register(domain.KindCode, RendererFunc(t.Code))
	r.Register(domain.KindDiagram, RendererFunc(t.Diagram))
	r.Register(domain.KindImage, RendererFunc(t.Media))
	r.Register(domain.KindVideo, RendererFunc(t.Media))
	r.Register(domain.KindEmbed, RendererFunc(t.Media))
	r.Register(domain.KindScene, RendererFunc(t.Media))
	r.Register(domain.KindInteractiveGraph, RendererFunc(t.Graph))
	return r
}

func (t Text) style(code, s string) string {
	if !t.Color || s == "" {
		return s
	}
	return code + s + ansiReset
}

// Heading renders a heading in upper case.
func (t Text) Heading(w io.Writer, f Frame) error {
	text := strings.ToUpper(revealed(f))
	return writeLines(w, wrap(text, f.Width), func(s string) string { return t.style(ansiBold, s) })
}

// Subheading renders a subheading.
func (t Text) Subheading(w io.Writer, f Frame) error {
	return writeLines(w, wrap(revealed(f), f.Width), func(s string) string { return t.style(ansiBold+ansiCyan, s) })
}

// Paragraph renders wrapped prose. Inactive paragraphs are dimmed.
func (t Text) Paragraph(w io.Writer, f Frame) error {
	var style func(string) string
	if !f.Active {
		style = func(s string) string { return t.style(ansiDim, s) }
	}
	return writeLines(w, wrap(revealed(f), f.Width), style)
}

// Quote renders quoted text with its attribution once fully revealed.
func (t Text) Quote(w io.Writer, f Frame) error {
	const bar = "| "
	lines := wrap(revealed(f), width(f.Width, len(bar)))
	if err := writeLines(w, lines, func(s string) string { return t.style(ansiItalic, bar+s) }); err != nil {
		return err
	}
	if f.Block.Author == "" || !fullyRevealed(f) {
		return nil
	}
	_, err := fmt.Fprintln(w, t.style(ansiDim, "  - "+f.Block.Author))
	return err
}

// Code renders source lines indented, with the language as a header.
func (t Text) Code(w io.Writer, f Frame) error {
	if f.Block.Language != "" {
		if _, err := fmt.Fprintln(w, t.style(ansiDim, "["+f.Block.Language+"]")); err != nil {
			return err
		}
	}
	source := f.Block.Code
	if f.Block.Kind == domain.KindCode {
		source = revealed(f)
	}
	for line := range strings.SplitSeq(strings.TrimRight(source, "\n"), "\n") {
		if _, err := fmt.Fprintln(w, t.style(ansiGray, "    "+line)); err != nil {
			return err
		}
	}
	return nil
}

// Diagram renders the diagram source as code under a label, then its caption.
func (t Text) Diagram(w io.Writer, f Frame) error {
	if _, err := fmt.Fprintln(w, t.style(ansiDim, "[diagram]")); err != nil {
		return err
	}
	code := f
	code.Block.Language = ""
	if err := t.Code(w, code); err != nil {
		return err
	}
	return writeLines(w, wrap(revealed(f), f.Width), func(s string) string { return t.style(ansiItalic, s) })
}

// Media renders a label for visual content and its caption.
func (t Text) Media(w io.Writer, f Frame) error {
	b := f.Block
	label := "[" + string(b.Kind)
	switch {
	case b.Src != "":
		label += " " + b.Src
	case b.URL != "":
		label += " " + b.URL
	case b.SceneID != "":
		label += " " + b.SceneID
	}
	label += "]"

	if f.Width > 0 {
		label = runewidth.Truncate(label, f.Width, "...]")
	}
	if _, err := fmt.Fprintln(w, t.style(ansiDim, label)); err != nil {
		return err
	}
	if b.Caption == "" {
		return nil
	}
	return writeLines(w, wrap(revealed(f), f.Width), func(s string) string { return t.style(ansiItalic, s) })
}

// Graph renders a summary of an interactive graph.
func (t Text) Graph(w io.Writer, f Frame) error {
	b := f.Block
	line := fmt.Sprintf("[interactive graph: %d nodes, %d edges]", len(b.Nodes), len(b.Edges))
	if _, err := fmt.Fprintln(w, t.style(ansiDim, line)); err != nil {
		return err
	}
	if b.Caption == "" {
		return nil
	}
	return writeLines(w, wrap(revealed(f), f.Width), nil)
}

// revealed returns the portion of the block's narration text to show.
func revealed(f Frame) string {
	text := f.Block.NarrationText()
	if f.Narration != domain.NarrationTyping || f.Revealed < 0 {
		return text
	}
	runes := []rune(text)
	if f.Revealed >= len(runes) {
		return text
	}
	return string(runes[:f.Revealed])
}

func fullyRevealed(f Frame) bool {
	return f.Narration != domain.NarrationTyping || f.Revealed < 0 ||
		f.Revealed >= len([]rune(f.Block.NarrationText()))
}

// width returns the columns left after indent, or zero for no wrapping.
func width(total, indent int) int {
	if total <= 0 {
		return 0
	}
	return max(total-indent, 1)
}

// wrap breaks s into lines no wider than cols display columns. Words longer
// than a line are placed on their own line. cols <= 0 disables wrapping.
func wrap(s string, cols int) []string {
	if s == "" {
		return nil
	}
	if cols <= 0 {
		return strings.Split(s, "\n")
	}

	var lines []string
	for para := range strings.SplitSeq(s, "\n") {
		var (
			line  strings.Builder
			lineW int
		)
		for _, word := range strings.Fields(para) {
			ww := runewidth.StringWidth(word)
			switch {
			case lineW == 0:
				line.WriteString(word)
				lineW = ww
			case lineW+1+ww <= cols:
				line.WriteByte(' ')
				line.WriteString(word)
				lineW += 1 + ww
			default:
				lines = append(lines, line.String())
				line.Reset()
				line.WriteString(word)
				lineW = ww
			}
		}
		lines = append(lines, line.String())
	}
	return lines
}

func writeLines(w io.Writer, lines []string, style func(string) string) error {
	for _, line := range lines {
		if style != nil {
			line = style(line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
