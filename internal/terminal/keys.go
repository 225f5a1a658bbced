// Package terminal adapts an interactive terminal to the reader: raw key
// input decoded into playback key events and the screen width for wrapping.
package terminal

import (
	"bufio"
	"io"
	"time"
	"unicode/utf8"

	"github.com/hushapp/hush/internal/playback"
)

// Keys the terminal produces that the playback router does not bind.
const (
	KeyEscape    = "Escape"
	KeyEnter     = "Enter"
	KeyInterrupt = "Interrupt" // Ctrl+C
	KeyEOF       = "EOF"       // Ctrl+D
	KeyUnknown   = ""
)

// DefaultRepeatWindow is the gap under which a second press of the same key
// is reported as auto-repeat.
const DefaultRepeatWindow = 60 * time.Millisecond

// Decoder reads raw terminal bytes and produces key events.
type Decoder struct {
	r   *bufio.Reader
	now func() time.Time

	repeatWindow time.Duration
	lastKey      string
	lastAt       time.Time
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:            bufio.NewReaderSize(r, 64),
		now:          time.Now,
		repeatWindow: DefaultRepeatWindow,
	}
}

// ReadKey blocks until one key is decoded. Unrecognised escape sequences
// return KeyUnknown.
func (d *Decoder) ReadKey() (playback.KeyEvent, error) {
	key, err := d.readKey()
	if err != nil {
		return playback.KeyEvent{}, err
	}

	at := d.now()
	ev := playback.KeyEvent{
		Key:    key,
		Repeat: key != KeyUnknown && key == d.lastKey && at.Sub(d.lastAt) < d.repeatWindow,
	}
	d.lastKey, d.lastAt = key, at
	return ev, nil
}

func (d *Decoder) readKey() (string, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return "", err
	}

	switch b {
	case 0x03:
		return KeyInterrupt, nil
	case 0x04:
		return KeyEOF, nil
	case '\r', '\n':
		return KeyEnter, nil
	case 0x1b:
		return d.readEscape()
	}

	if b < utf8.RuneSelf {
		return string(rune(b)), nil
	}

	// Multi-byte UTF-8 rune.
	if err := d.r.UnreadByte(); err != nil {
		return "", err
	}
	r, _, err := d.r.ReadRune()
	if err != nil {
		return "", err
	}
	return string(r), nil
}

// readEscape decodes the rest of an escape sequence. A lone ESC with nothing
// buffered behind it is the Escape key.
func (d *Decoder) readEscape() (string, error) {
	if d.r.Buffered() == 0 {
		return KeyEscape, nil
	}

	intro, err := d.r.ReadByte()
	if err != nil {
		return "", err
	}
	if intro != '[' && intro != 'O' {
		return KeyUnknown, nil
	}

	// Parameters, then one final byte in 0x40-0x7e.
	var params []byte
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			return "", err
		}
		if c >= 0x40 && c <= 0x7e {
			return escapeKey(string(params), c), nil
		}
		params = append(params, c)
	}
}

func escapeKey(params string, final byte) string {
	switch final {
	case 'C':
		return playback.KeyArrowRight
	case 'D':
		return playback.KeyArrowLeft
	case 'H':
		return playback.KeyHome
	case '~':
		if params == "1" || params == "7" {
			return playback.KeyHome
		}
	}
	return KeyUnknown
}
