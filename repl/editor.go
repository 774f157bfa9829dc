package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// Editor reads multi-line prompts. A line ending in a backslash continues
// the prompt on the next line; the backslash is dropped and a newline kept.
// Input comes from /dev/tty so stdout can be redirected.
type Editor struct {
	in       io.Reader
	out      io.Writer
	tty      *os.File
	oldState *term.State
	line     lineBuffer
}

// NewEditor opens /dev/tty and switches it to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}
	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}
	e := newEditor(tty, tty)
	e.tty = tty
	e.oldState = old
	return e, nil
}

func newEditor(in io.Reader, out io.Writer) *Editor {
	return &Editor{in: in, out: out}
}

// Close restores the terminal.
func (e *Editor) Close() {
	if e.tty == nil {
		return
	}
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Tty returns where prompts and notices are drawn.
func (e *Editor) Tty() io.Writer {
	return e.out
}

// ReadPrompt reads one prompt, showing first before the first line and
// more before each continuation line. Ctrl-D on an empty first line
// returns io.EOF; on an empty continuation line it submits what was typed.
func (e *Editor) ReadPrompt(first, more string) (string, error) {
	var lines []string
	label := first
	for {
		text, err := e.readLine(label)
		if err == io.EOF && len(lines) > 0 {
			return strings.Join(lines, "\n"), nil
		}
		if err != nil {
			return "", err
		}
		if body, ok := strings.CutSuffix(text, `\`); ok {
			lines = append(lines, body)
			label = more
			continue
		}
		lines = append(lines, text)
		return strings.Join(lines, "\n"), nil
	}
}

func (e *Editor) readLine(label string) (string, error) {
	e.line.reset()
	e.redraw(label)

	for {
		b, err := e.readByte()
		if err != nil {
			return "", err
		}

		switch b {
		case 3: // Ctrl-C
			fmt.Fprint(e.out, "\r\n")
			return "", ErrInterrupt
		case 4: // Ctrl-D
			if e.line.empty() {
				fmt.Fprint(e.out, "\r\n")
				return "", io.EOF
			}
			e.line.deleteForward()
		case 13, 10: // Enter
			fmt.Fprint(e.out, "\r\n")
			return e.line.String(), nil
		case 127, 8:
			e.line.backspace()
		case 1: // Ctrl-A
			e.line.home()
		case 5: // Ctrl-E
			e.line.end()
		case 21: // Ctrl-U
			e.line.reset()
		case 27:
			if err := e.escape(); err != nil {
				return "", err
			}
		default:
			if b < 32 {
				break
			}
			ch := []byte{b}
			if b >= 0xC0 {
				rest := make([]byte, utf8RuneLen(b)-1)
				if _, err := io.ReadFull(e.in, rest); err != nil {
					return "", err
				}
				ch = append(ch, rest...)
			}
			e.line.insert(ch)
		}

		e.redraw(label)
	}
}

// escape handles the CSI sequences for arrows, Home, End and Delete.
func (e *Editor) escape() error {
	b, err := e.readByte()
	if err != nil || b != '[' {
		return err
	}
	b, err = e.readByte()
	if err != nil {
		return err
	}
	switch b {
	case 'D':
		e.line.left()
	case 'C':
		e.line.right()
	case 'H':
		e.line.home()
	case 'F':
		e.line.end()
	case '1', '3', '4':
		if _, err := e.readByte(); err != nil { // trailing '~'
			return err
		}
		switch b {
		case '1':
			e.line.home()
		case '3':
			e.line.deleteForward()
		case '4':
			e.line.end()
		}
	}
	return nil
}

func (e *Editor) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(e.in, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (e *Editor) redraw(label string) {
	fmt.Fprintf(e.out, "\r\x1b[K%s%s", label, e.line.String())
	if tail := e.line.tail(); tail > 0 {
		fmt.Fprintf(e.out, "\x1b[%dD", tail)
	}
}

// lineBuffer is one line of UTF-8 input with a byte-offset cursor.
type lineBuffer struct {
	buf []byte
	pos int
}

func (l *lineBuffer) reset()         { l.buf, l.pos = l.buf[:0], 0 }
func (l *lineBuffer) empty() bool    { return len(l.buf) == 0 }
func (l *lineBuffer) home()          { l.pos = 0 }
func (l *lineBuffer) end()           { l.pos = len(l.buf) }
func (l *lineBuffer) String() string { return string(l.buf) }

// tail is the number of runes right of the cursor.
func (l *lineBuffer) tail() int { return utf8.RuneCount(l.buf[l.pos:]) }

func (l *lineBuffer) insert(ch []byte) {
	l.buf = append(l.buf[:l.pos], append(ch, l.buf[l.pos:]...)...)
	l.pos += len(ch)
}

func (l *lineBuffer) backspace() {
	if l.pos == 0 {
		return
	}
	_, size := utf8.DecodeLastRune(l.buf[:l.pos])
	l.buf = append(l.buf[:l.pos-size], l.buf[l.pos:]...)
	l.pos -= size
}

func (l *lineBuffer) deleteForward() {
	if l.pos == len(l.buf) {
		return
	}
	_, size := utf8.DecodeRune(l.buf[l.pos:])
	l.buf = append(l.buf[:l.pos], l.buf[l.pos+size:]...)
}

func (l *lineBuffer) left() {
	if l.pos > 0 {
		_, size := utf8.DecodeLastRune(l.buf[:l.pos])
		l.pos -= size
	}
}

func (l *lineBuffer) right() {
	if l.pos < len(l.buf) {
		_, size := utf8.DecodeRune(l.buf[l.pos:])
		l.pos += size
	}
}

// utf8RuneLen returns the byte length of a UTF-8 sequence from its lead byte.
func utf8RuneLen(lead byte) int {
	switch {
	case lead < 0xC0:
		return 1
	case lead < 0xE0:
		return 2
	case lead < 0xF0:
		return 3
	}
	return 4
}
