// Package device chooses the compute device the model is bound to.
package device

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Selector is the compute device a model handle runs on.
type Selector int

const (
	CPU Selector = iota
	Accelerator
)

const probeTimeout = 5 * time.Second

// Index returns the pipeline device index: 0 for the accelerator, -1 for CPU.
func (s Selector) Index() int {
	if s == Accelerator {
		return 0
	}
	return -1
}

func (s Selector) String() string {
	if s == Accelerator {
		return "cuda"
	}
	return "cpu"
}

// Select maps accelerator availability to a device.
func Select(available bool) Selector {
	if available {
		return Accelerator
	}
	return CPU
}

// Parse maps "cuda"/"gpu" and "cpu" to a Selector.
func Parse(name string) (Selector, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cuda", "gpu":
		return Accelerator, true
	case "cpu":
		return CPU, true
	}
	return CPU, false
}

// Probe reports whether an accelerator is available.
type Probe interface {
	Available(ctx context.Context) bool
}

// Static is a Probe with a fixed answer.
type Static bool

func (s Static) Available(context.Context) bool { return bool(s) }

// ShellProbe runs Command in an embedded POSIX shell and reports
// availability when it exits 0.
type ShellProbe struct {
	Command string
}

func (p ShellProbe) Available(ctx context.Context) bool {
	if strings.TrimSpace(p.Command) == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	prog, err := syntax.NewParser().Parse(strings.NewReader(p.Command), "")
	if err != nil {
		slog.Warn("invalid device probe command", "command", RedactCommand(p.Command), "error", err)
		return false
	}
	runner, err := interp.New(interp.StdIO(nil, io.Discard, io.Discard))
	if err != nil {
		slog.Warn("failed to create probe shell", "error", err)
		return false
	}
	err = runner.Run(ctx, prog)
	if err == nil {
		return true
	}
	if status, ok := interp.IsExitStatus(err); ok {
		slog.Debug("device probe exited", "command", RedactCommand(p.Command), "status", status)
		return false
	}
	slog.Debug("device probe failed", "command", RedactCommand(p.Command), "error", err)
	return false
}

// NewProbe returns a Static probe when force names a device, otherwise a
// ShellProbe running command.
func NewProbe(force, command string) Probe {
	if sel, ok := Parse(force); ok {
		return Static(sel == Accelerator)
	}
	return ShellProbe{Command: command}
}
