// Package generate loads the text-generation model and produces responses.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	genform "github.com/Paranoid-AF/genform"
	"github.com/Paranoid-AF/genform/device"
	"github.com/Paranoid-AF/genform/inference"
	"github.com/Paranoid-AF/genform/metrics"
	"github.com/Paranoid-AF/genform/notify"
)

// MemoryHint is the second error notice emitted when a load fails.
const MemoryHint = "The accelerator may have run out of memory. Stop processes you don't need, or consider a smaller model."

// Loaded is the memoized result of a load attempt. Handle is nil when the
// load failed.
type Loaded struct {
	Model  string
	Device device.Selector
	Handle inference.Handle
}

// SecretSource supplies the access token.
type SecretSource interface {
	Token() (string, error)
}

// Factory constructs a handle for task bound to model, tokenizer and device.
type Factory func(ctx context.Context, task, model, tokenizer string, dev device.Selector, token string) (inference.Handle, error)

// Loader builds model handles. It keeps no state between calls.
type Loader struct {
	Model   string
	Secrets SecretSource
	Probe   device.Probe
	Factory Factory
	Metrics metrics.Metrics
}

// NewLoader wires a Loader to the configured backend, secrets and device probe.
func NewLoader(cfg *genform.Config, m metrics.Metrics) *Loader {
	apiURL := genform.ResolveAPIBaseURL(cfg)
	hubURL := genform.ResolveHubBaseURL(cfg)
	return &Loader{
		Model:   genform.ResolveModel(cfg),
		Secrets: genform.DefaultSecretStore(),
		Probe:   device.NewProbe(genform.ResolveDevice(cfg), cfg.Device.ProbeCommand),
		Factory: HTTPFactory(apiURL, hubURL),
		Metrics: m,
	}
}

// HTTPFactory returns a Factory building inference.Pipeline handles.
func HTTPFactory(apiURL, hubURL string) Factory {
	return func(ctx context.Context, task, model, tokenizer string, dev device.Selector, token string) (inference.Handle, error) {
		p, err := inference.NewPipeline(ctx, task, model, tokenizer, dev, inference.Options{
			APIBaseURL: apiURL,
			HubBaseURL: hubURL,
			Token:      token,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Load obtains the credential, selects the device and constructs the handle.
// Failures are reported through n and yield a Loaded with a nil Handle.
func (l *Loader) Load(ctx context.Context, n notify.Notifier) (loaded *Loaded) {
	loaded = &Loaded{Model: l.Model, Device: device.CPU}
	m := l.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	if n == nil {
		n = notify.Log{}
	}

	var token string
	defer func() {
		if r := recover(); r != nil {
			slog.Error("model load panicked", "model", l.Model, "panic", notify.Redact(fmt.Sprint(r), token), "trace", string(debug.Stack()))
			loaded.Handle = nil
			l.reportFailure(n, token, fmt.Errorf("%v", r))
			m.IncModelLoads("error")
		}
	}()

	handle, err := l.load(ctx, n, loaded, &token)
	if err != nil {
		slog.Error("model load failed", "model", l.Model, "error", notify.Redact(err.Error(), token))
		l.reportFailure(n, token, err)
		m.IncModelLoads("error")
		return loaded
	}

	loaded.Handle = handle
	n.Success(fmt.Sprintf("Model '%s' loaded successfully.", l.Model))
	slog.Info("model loaded", "model", l.Model, "device", loaded.Device.String())
	m.IncModelLoads(metrics.StatusOK)
	return loaded
}

func (l *Loader) load(ctx context.Context, n notify.Notifier, loaded *Loaded, token *string) (inference.Handle, error) {
	if l.Secrets == nil {
		return nil, genform.ErrNoCredential
	}
	tok, err := l.Secrets.Token()
	if err != nil {
		return nil, err
	}
	*token = tok

	available := false
	if l.Probe != nil {
		available = l.Probe.Available(ctx)
	}
	loaded.Device = device.Select(available)
	n.Info(fmt.Sprintf("Using device: %s", loaded.Device))

	if l.Factory == nil {
		return nil, fmt.Errorf("no inference backend configured")
	}
	return l.Factory(ctx, inference.TaskTextGeneration, l.Model, l.Model, loaded.Device, tok)
}

func (l *Loader) reportFailure(n notify.Notifier, token string, err error) {
	rn := notify.Redacting{Next: n, Secrets: []string{token}}
	rn.Error(fmt.Sprintf("Failed to load model '%s': %v", l.Model, err))
	rn.Error(MemoryHint)
}
