package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectIsDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		assert.Equal(t, Accelerator, Select(true))
		assert.Equal(t, CPU, Select(false))
	}
	assert.Equal(t, 0, Select(true).Index())
	assert.Equal(t, -1, Select(false).Index())
}

func TestSelectorString(t *testing.T) {
	assert.Equal(t, "cuda", Accelerator.String())
	assert.Equal(t, "cpu", CPU.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Selector
		ok   bool
	}{
		{"cuda", Accelerator, true},
		{" GPU ", Accelerator, true},
		{"cpu", CPU, true},
		{"", CPU, false},
		{"tpu", CPU, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestShellProbe(t *testing.T) {
	ctx := context.Background()
	assert.True(t, ShellProbe{Command: "exit 0"}.Available(ctx))
	assert.False(t, ShellProbe{Command: "exit 1"}.Available(ctx))
	assert.False(t, ShellProbe{Command: "test 1 -eq 2"}.Available(ctx))
	assert.False(t, ShellProbe{Command: ""}.Available(ctx))
	assert.False(t, ShellProbe{Command: "if then"}.Available(ctx))
}

func TestNewProbeForced(t *testing.T) {
	ctx := context.Background()
	assert.True(t, NewProbe("cuda", "exit 1").Available(ctx))
	assert.False(t, NewProbe("cpu", "exit 0").Available(ctx))
	assert.True(t, NewProbe("", "exit 0").Available(ctx))
}
