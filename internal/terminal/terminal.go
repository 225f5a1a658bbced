package terminal

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 80

// Terminal holds the raw-mode state of an input terminal.
type Terminal struct {
	in    *os.File
	out   *os.File
	state *term.State
}

// Open puts in into raw mode when it is a terminal. Close restores it.
func Open(in, out *os.File) (*Terminal, error) {
	t := &Terminal{in: in, out: out}
	if !IsTerminal(in) {
		return t, nil
	}

	state, err := term.MakeRaw(int(in.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}
	t.state = state
	return t, nil
}

// Interactive reports whether input is a raw terminal.
func (t *Terminal) Interactive() bool {
	return t.state != nil
}

// Width returns the output width in columns.
func (t *Terminal) Width() int {
	if t.out == nil || !IsTerminal(t.out) {
		return DefaultWidth
	}
	w, _, err := term.GetSize(int(t.out.Fd()))
	if err != nil || w <= 0 {
		return DefaultWidth
	}
	return w
}

// Color reports whether ANSI styling should be used on the output.
func (t *Terminal) Color() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return t.out != nil && IsTerminal(t.out)
}

// Clear erases the screen and moves the cursor home.
func (t *Terminal) Clear() {
	if t.out != nil && IsTerminal(t.out) {
		fmt.Fprint(t.out, "\033[2J\033[H")
	}
}

// Writer returns the output. In raw mode line feeds no longer return the
// cursor, so the writer adds a carriage return to each one.
func (t *Terminal) Writer() io.Writer {
	if t.Interactive() {
		return crlfWriter{t.out}
	}
	return t.out
}

type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close restores the terminal state.
func (t *Terminal) Close() error {
	if t.state == nil {
		return nil
	}
	err := term.Restore(int(t.in.Fd()), t.state)
	t.state = nil
	return err
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}
