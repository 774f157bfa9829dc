package generate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	genform "github.com/Paranoid-AF/genform"
	"github.com/Paranoid-AF/genform/inference"
	"github.com/Paranoid-AF/genform/notify"
)

// stubHandle returns fixed results or a fixed error.
type stubHandle struct {
	results []inference.Result
	err     error
	panicV  any
	delay   time.Duration
	calls   int
	params  inference.Params
	prompt  string
}

func (s *stubHandle) Generate(_ context.Context, prompt string, p inference.Params) ([]inference.Result, error) {
	s.calls++
	s.prompt = prompt
	s.params = p
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.panicV != nil {
		panic(s.panicV)
	}
	return s.results, s.err
}

func newTestResponder(buf *bytes.Buffer) *Responder {
	r := NewResponder(nil, nil)
	r.Logger = slog.New(slog.NewTextHandler(buf, nil))
	return r
}

func TestRespondNilHandle(t *testing.T) {
	for _, prompt := range []string{"Hello", "", "   ", "multi\nline"} {
		var rec notify.Recorder
		out := Respond(context.Background(), nil, prompt, &rec)

		text, secs := out.Pair()
		assert.Equal(t, NotLoadedMessage, text)
		assert.Equal(t, float64(0), secs)
		require.NotNil(t, out.Failure)
		assert.Equal(t, NotLoaded, out.Failure.Kind)
		assert.Empty(t, rec.Notices(), "degraded mode emits no notices")
	}
}

func TestRespondTrimsFirstCandidate(t *testing.T) {
	h := &stubHandle{results: []inference.Result{
		{GeneratedText: "  Hello world  "},
		{GeneratedText: "second"},
	}}
	var buf bytes.Buffer
	var rec notify.Recorder

	out := newTestResponder(&buf).Respond(context.Background(), h, "Hello", &rec)

	text, secs := out.Pair()
	assert.True(t, out.OK())
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, strings.TrimSpace(text), text)
	assert.GreaterOrEqual(t, secs, float64(0))
	assert.Equal(t, "Hello", h.prompt)
	assert.Contains(t, buf.String(), "Generated response in")
	assert.Empty(t, rec.Notices())
}

func TestRespondUsesFixedParameters(t *testing.T) {
	h := &stubHandle{results: []inference.Result{{GeneratedText: "x"}}}
	Respond(context.Background(), h, "p", &notify.Recorder{})
	assert.Equal(t, inference.Params{MaxLength: 200, NumReturnSequences: 1}, h.params)

	cfg := genform.DefaultConfig()
	cfg.Generation.MaxLength = 64
	NewResponder(cfg, nil).Respond(context.Background(), h, "p", &notify.Recorder{})
	assert.Equal(t, inference.Params{MaxLength: 64, NumReturnSequences: 1}, h.params)
}

func TestNewResponderIgnoresSequenceCountInConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[generation]\nmax_length = 50\nnum_return_sequences = 4\n"), 0o600))

	cfg, err := genform.LoadConfigFile(path)
	require.NoError(t, err)

	r := NewResponder(cfg, nil)
	assert.Equal(t, inference.Params{MaxLength: 50, NumReturnSequences: 1}, r.Params)
}

func TestRespondElapsedMatchesClock(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(1500 * time.Millisecond)}
	var buf bytes.Buffer
	r := newTestResponder(&buf)
	r.Now = func() time.Time {
		tick := ticks[0]
		ticks = ticks[1:]
		return tick
	}

	out := r.Respond(context.Background(), &stubHandle{results: []inference.Result{{GeneratedText: "ok"}}}, "p", &notify.Recorder{})
	assert.Equal(t, 1500*time.Millisecond, out.Elapsed)
	assert.Contains(t, buf.String(), "Generated response in 1.50s")
}

func TestRespondElapsedNeverNegative(t *testing.T) {
	base := time.Now()
	ticks := []time.Time{base, base.Add(-time.Second)}
	r := newTestResponder(&bytes.Buffer{})
	r.Now = func() time.Time {
		tick := ticks[0]
		ticks = ticks[1:]
		return tick
	}
	out := r.Respond(context.Background(), &stubHandle{results: []inference.Result{{GeneratedText: "ok"}}}, "p", &notify.Recorder{})
	assert.Equal(t, time.Duration(0), out.Elapsed)
}

func TestRespondElapsedApproximatesWallClock(t *testing.T) {
	h := &stubHandle{results: []inference.Result{{GeneratedText: "ok"}}, delay: 20 * time.Millisecond}
	start := time.Now()
	out := Respond(context.Background(), h, "p", &notify.Recorder{})
	measured := time.Since(start)

	assert.GreaterOrEqual(t, out.Elapsed, 20*time.Millisecond)
	assert.LessOrEqual(t, out.Elapsed, measured)
}

func TestRespondHandleError(t *testing.T) {
	h := &stubHandle{err: errors.New("OOM")}
	var buf bytes.Buffer
	var rec notify.Recorder

	out := newTestResponder(&buf).Respond(context.Background(), h, "Hello", &rec)

	text, secs := out.Pair()
	assert.Equal(t, "An error occurred: OOM", text)
	assert.Equal(t, float64(0), secs)
	require.NotNil(t, out.Failure)
	assert.Equal(t, GenerationError, out.Failure.Kind)
	assert.Equal(t, "OOM", out.Failure.Detail)

	assert.Equal(t, 1, rec.Count(genform.LevelError))
	assert.Len(t, rec.Notices(), 1)
	assert.Contains(t, rec.Notices()[0].Text, "OOM")
	assert.Equal(t, 1, strings.Count(buf.String(), "trace="))
}

func TestRespondHandlePanic(t *testing.T) {
	h := &stubHandle{panicV: "RuntimeError: OOM"}
	var buf bytes.Buffer
	var rec notify.Recorder

	out := newTestResponder(&buf).Respond(context.Background(), h, "Hello", &rec)

	text, secs := out.Pair()
	assert.Equal(t, "An error occurred: RuntimeError: OOM", text)
	assert.Equal(t, float64(0), secs)
	assert.Equal(t, 1, rec.Count(genform.LevelError))
	assert.Equal(t, 1, strings.Count(buf.String(), "trace="))
	assert.Contains(t, buf.String(), "stubHandle")
}

func TestRespondEmptyCandidates(t *testing.T) {
	var rec notify.Recorder
	out := Respond(context.Background(), &stubHandle{results: []inference.Result{}}, "Hello", &rec)

	assert.False(t, out.OK())
	assert.True(t, strings.HasPrefix(out.Text, ErrorPrefix))
	assert.Contains(t, out.Text, errNoCandidates.Error())
	assert.Equal(t, time.Duration(0), out.Elapsed)
	assert.Equal(t, 1, rec.Count(genform.LevelError))
}

func TestTrimIsIdempotent(t *testing.T) {
	for _, s := range []string{"  a  ", "\n\tb\n", "c", "", "  "} {
		h := &stubHandle{results: []inference.Result{{GeneratedText: s}}}
		out := Respond(context.Background(), h, "p", &notify.Recorder{})
		assert.Equal(t, strings.TrimSpace(out.Text), out.Text)
	}
}
