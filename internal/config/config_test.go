package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/udptrain/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "udptrain.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9876, cfg.Ports.Probe)
	assert.Equal(t, 9877, cfg.Ports.High)
	assert.Equal(t, 9878, cfg.Ports.Low)
	assert.Equal(t, 9876, cfg.Receiver.Port)
	assert.Equal(t, "./temp", cfg.Receiver.OutputDir)
	assert.Equal(t, "0.0.0.0", cfg.Receiver.PlaceholderAddress)
	assert.Equal(t, ".raw", cfg.Receiver.Extension)
	assert.Equal(t, time.Millisecond, cfg.Receiver.PollInterval)
	assert.Equal(t, 1, cfg.Receiver.Rounds)
	assert.True(t, cfg.Receiver.Tagged)
	assert.False(t, cfg.Receiver.FlushOnInterrupt)
	assert.Equal(t, "*", cfg.Receiver.Delimiter)
	assert.Equal(t, core.PolicyDualTOS, cfg.Sender.Policy)
	assert.Equal(t, cfg.Ports.Probe, cfg.Receiver.Port, "default sender and receiver share ports.probe")
	assert.Equal(t, core.PriorityHigh, cfg.Sender.Priority)
	assert.Equal(t, core.EntropyLow, cfg.Sender.Entropy)
	assert.Equal(t, 0x10, cfg.Sender.HighTOS)
	assert.Equal(t, 0, cfg.Sender.LowTOS)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
udptrain:
  ports:
    probe: 7000
  receiver:
    output_dir: /tmp/captures
    rounds: 3
    later_run_time: 4s
    buffer_capacity: 300000
    flush_on_interrupt: true
  sender:
    policy: dual-tos
    priority: l
    entropy: H
    pause: 5s
  metrics:
    enabled: true
    listen: ":9200"
  log:
    level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Ports.Probe)
	assert.Equal(t, 7000, cfg.Receiver.Port)
	assert.Equal(t, "/tmp/captures", cfg.Receiver.OutputDir)
	assert.Equal(t, 3, cfg.Receiver.Rounds)
	assert.Equal(t, 4*time.Second, cfg.Receiver.LaterRunTime)
	assert.Equal(t, 300000, cfg.Receiver.BufferCapacity)
	assert.True(t, cfg.Receiver.FlushOnInterrupt)
	assert.Equal(t, core.PolicyDualTOS, cfg.Sender.Policy)
	assert.Equal(t, core.PriorityLow, cfg.Sender.Priority)
	assert.Equal(t, core.EntropyHigh, cfg.Sender.Entropy)
	assert.Equal(t, 5*time.Second, cfg.Sender.Pause)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9200", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("UDPTRAIN_RECEIVER_ROUNDS", "4")
	t.Setenv("UDPTRAIN_SENDER_ENTROPY", "H")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Receiver.Rounds)
	assert.Equal(t, core.EntropyHigh, cfg.Sender.Entropy)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	assert.Equal(t, core.ExitConfigInvalid, core.ExitCode(err))
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"port range", "udptrain:\n  ports:\n    high: 70000\n", core.ErrInvalidPort},
		{"rounds", "udptrain:\n  receiver:\n    rounds: 0\n", core.ErrConfigInvalid},
		{"poll", "udptrain:\n  receiver:\n    poll_interval: 0s\n", core.ErrConfigInvalid},
		{"delimiter", "udptrain:\n  receiver:\n    delimiter: \"a\\tb\"\n", core.ErrConfigInvalid},
		{"listen address", "udptrain:\n  receiver:\n    listen_address: example.com\n", core.ErrInvalidAddress},
		{"priority", "udptrain:\n  sender:\n    priority: X\n", core.ErrConfigInvalid},
		{"policy", "udptrain:\n  sender:\n    policy: zigzag\n", core.ErrConfigInvalid},
		{"tos", "udptrain:\n  sender:\n    high_tos: 300\n", core.ErrConfigInvalid},
		{"metrics path", "udptrain:\n  metrics:\n    enabled: true\n    path: metrics\n", core.ErrConfigInvalid},
		{"log level", "udptrain:\n  log:\n    level: loud\n", core.ErrConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
