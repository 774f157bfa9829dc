package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	genform "github.com/Paranoid-AF/genform"
	"github.com/Paranoid-AF/genform/inference"
	"github.com/Paranoid-AF/genform/metrics"
	"github.com/Paranoid-AF/genform/notify"
)

// NotLoadedMessage is returned when no model handle is available.
const NotLoadedMessage = "The model is not loaded, so no response can be generated."

// ErrorPrefix starts the message returned when generation fails.
const ErrorPrefix = "An error occurred: "

// FailureKind classifies why an Outcome carries no generated text.
type FailureKind string

const (
	NotLoaded       FailureKind = "not_loaded"
	GenerationError FailureKind = "generation_error"
)

// Failure is the structured reason behind a failed Outcome.
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (f *Failure) Error() string { return string(f.Kind) + ": " + f.Detail }

// Outcome is the result of one Respond call. Text is always user-presentable;
// Elapsed is zero whenever Failure is set.
type Outcome struct {
	Text    string
	Elapsed time.Duration
	Failure *Failure
}

// OK reports whether Text is generated output.
func (o Outcome) OK() bool { return o.Failure == nil }

// Pair returns the response text and elapsed seconds.
func (o Outcome) Pair() (string, float64) { return o.Text, o.Elapsed.Seconds() }

var errNoCandidates = errors.New("no generated text in response")

// Responder invokes a handle with fixed generation parameters.
type Responder struct {
	Params  inference.Params
	Logger  *slog.Logger
	Metrics metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewResponder returns a Responder using the configured max_length. Exactly
// one sequence is always requested.
func NewResponder(cfg *genform.Config, m metrics.Metrics) *Responder {
	p := inference.Params{MaxLength: genform.DefaultMaxLength, NumReturnSequences: 1}
	if cfg != nil && cfg.Generation.MaxLength > 0 {
		p.MaxLength = cfg.Generation.MaxLength
	}
	return &Responder{Params: p, Metrics: m}
}

// Respond generates a response with the default parameters
// (max_length 200, one returned sequence).
func Respond(ctx context.Context, h inference.Handle, prompt string, n notify.Notifier) Outcome {
	return NewResponder(nil, nil).Respond(ctx, h, prompt, n)
}

// Respond invokes h with prompt and returns the trimmed first candidate and
// the elapsed wall-clock time. A nil handle yields NotLoadedMessage. Any
// error or panic from the handle is reported through n, traced once to the
// log, and returned as an ErrorPrefix message with zero elapsed time.
func (r *Responder) Respond(ctx context.Context, h inference.Handle, prompt string, n notify.Notifier) (out Outcome) {
	m := r.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	if n == nil {
		n = notify.Log{Logger: r.Logger}
	}
	if h == nil {
		m.ObserveGeneration(string(NotLoaded), 0)
		return Outcome{
			Text:    NotLoadedMessage,
			Failure: &Failure{Kind: NotLoaded, Detail: "model handle is nil"},
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = r.fail(n, fmt.Errorf("%v", rec), debug.Stack())
			m.ObserveGeneration(string(GenerationError), 0)
		}
	}()

	now := r.Now
	if now == nil {
		now = time.Now
	}

	start := now()
	text, err := r.invoke(ctx, h, prompt)
	if err != nil {
		m.ObserveGeneration(string(GenerationError), 0)
		return r.fail(n, err, debug.Stack())
	}
	elapsed := now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	r.logger().Info(fmt.Sprintf("Generated response in %.2fs", elapsed.Seconds()))
	m.ObserveGeneration(metrics.StatusOK, elapsed.Seconds())
	return Outcome{Text: text, Elapsed: elapsed}
}

func (r *Responder) invoke(ctx context.Context, h inference.Handle, prompt string) (string, error) {
	results, err := h.Generate(ctx, prompt, r.Params)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", errNoCandidates
	}
	return strings.TrimSpace(results[0].GeneratedText), nil
}

func (r *Responder) fail(n notify.Notifier, err error, trace []byte) Outcome {
	detail := err.Error()
	n.Error(fmt.Sprintf("Error while generating a response: %s", detail))
	r.logger().Error("generation failed", "error", detail, "trace", string(trace))
	return Outcome{
		Text:    ErrorPrefix + detail,
		Failure: &Failure{Kind: GenerationError, Detail: detail},
	}
}

func (r *Responder) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
