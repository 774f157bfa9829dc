package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	genform "github.com/Paranoid-AF/genform"
	"github.com/Paranoid-AF/genform/generate"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// ttyNotifier prints notices on the terminal, one per line.
type ttyNotifier struct {
	w io.Writer
}

func (t ttyNotifier) Info(text string)    { t.print(genform.LevelInfo, text) }
func (t ttyNotifier) Success(text string) { t.print(genform.LevelSuccess, text) }
func (t ttyNotifier) Error(text string)   { t.print(genform.LevelError, text) }

func (t ttyNotifier) print(level genform.Level, text string) {
	fmt.Fprintf(t.w, "[%s] %s\r\n", level, crlf(text))
}

type entry struct {
	Request  requestRecord  `toml:"request"`
	Notices  []noticeRecord `toml:"notices,omitempty"`
	Response responseRecord `toml:"response"`
	Error    *errorRecord   `toml:"error,omitempty"`
}

type requestRecord struct {
	Timestamp time.Time `toml:"timestamp"`
	Model     string    `toml:"model"`
	Prompt    string    `toml:"prompt"`
}

type noticeRecord struct {
	Level string `toml:"level"`
	Text  string `toml:"text"`
}

type responseRecord struct {
	Text           string  `toml:"text"`
	ElapsedSeconds float64 `toml:"elapsed_seconds"`
}

type errorRecord struct {
	Code    string `toml:"code"`
	Message string `toml:"message"`
}

func newEntry(ts time.Time, model, prompt string, out generate.Outcome, notices []genform.Notice) entry {
	text, secs := out.Pair()
	e := entry{
		Request:  requestRecord{Timestamp: ts.Truncate(time.Second), Model: model, Prompt: prompt},
		Response: responseRecord{Text: text, ElapsedSeconds: secs},
	}
	for _, n := range notices {
		e.Notices = append(e.Notices, noticeRecord{Level: string(n.Level), Text: n.Text})
	}
	if out.Failure != nil {
		e.Error = &errorRecord{Code: string(out.Failure.Kind), Message: out.Failure.Detail}
	}
	return e
}

// writeEntry writes a single TOML-formatted entry to w.
func writeEntry(w io.Writer, e entry) error {
	if _, err := fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60)); err != nil {
		return err
	}
	if err := toml.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
