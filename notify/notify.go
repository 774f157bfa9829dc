// Package notify delivers user-facing status notices.
package notify

import (
	"log/slog"
	"sync"

	genform "github.com/Paranoid-AF/genform"
)

// Notifier receives info, success and error notices.
type Notifier interface {
	Info(text string)
	Success(text string)
	Error(text string)
}

// Recorder collects notices for rendering on a page or in a JSON response.
// It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []genform.Notice
}

func (r *Recorder) Info(text string)    { r.add(genform.LevelInfo, text) }
func (r *Recorder) Success(text string) { r.add(genform.LevelSuccess, text) }
func (r *Recorder) Error(text string)   { r.add(genform.LevelError, text) }

func (r *Recorder) add(level genform.Level, text string) {
	r.mu.Lock()
	r.notices = append(r.notices, genform.Notice{Level: level, Text: text})
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices, never nil.
func (r *Recorder) Notices() []genform.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]genform.Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Count returns how many notices of the given level were recorded.
func (r *Recorder) Count(level genform.Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, nt := range r.notices {
		if nt.Level == level {
			n++
		}
	}
	return n
}

// Log mirrors notices to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l Log) Info(text string)    { l.logger().Info(text, "notice", genform.LevelInfo) }
func (l Log) Success(text string) { l.logger().Info(text, "notice", genform.LevelSuccess) }
func (l Log) Error(text string)   { l.logger().Error(text, "notice", genform.LevelError) }

// Multi fans every notice out to each notifier in order.
type Multi []Notifier

func (m Multi) Info(text string) {
	for _, n := range m {
		n.Info(text)
	}
}

func (m Multi) Success(text string) {
	for _, n := range m {
		n.Success(text)
	}
}

func (m Multi) Error(text string) {
	for _, n := range m {
		n.Error(text)
	}
}

// Redacting scrubs secrets from every notice before passing it on.
type Redacting struct {
	Next    Notifier
	Secrets []string
}

func (r Redacting) Info(text string)    { r.Next.Info(Redact(text, r.Secrets...)) }
func (r Redacting) Success(text string) { r.Next.Success(Redact(text, r.Secrets...)) }
func (r Redacting) Error(text string)   { r.Next.Error(Redact(text, r.Secrets...)) }
