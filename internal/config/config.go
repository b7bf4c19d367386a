// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/log"
)

// rootKey wraps every setting in YAML and prefixes every env var.
const rootKey = "udptrain"

// Config is the process configuration. It maps to the `udptrain:` root key.
type Config struct {
	Ports    PortsConfig    `mapstructure:"ports" yaml:"ports"`
	Receiver ReceiverConfig `mapstructure:"receiver" yaml:"receiver"`
	Sender   SenderConfig   `mapstructure:"sender" yaml:"sender"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log      log.Config     `mapstructure:"log" yaml:"log"`
}

// PortsConfig holds the well-known probe ports shared by both ends.
type PortsConfig struct {
	Probe int `mapstructure:"probe" yaml:"probe"`
	High  int `mapstructure:"high" yaml:"high"`
	Low   int `mapstructure:"low" yaml:"low"`
}

// ReceiverConfig configures the collector.
type ReceiverConfig struct {
	ListenAddress      string        `mapstructure:"listen_address" yaml:"listen_address"`
	Port               int           `mapstructure:"port" yaml:"port"` // 0 = ports.probe
	OutputDir          string        `mapstructure:"output_dir" yaml:"output_dir"`
	PlaceholderAddress string        `mapstructure:"placeholder_address" yaml:"placeholder_address"`
	Extension          string        `mapstructure:"extension" yaml:"extension"`
	TimestampLayout    string        `mapstructure:"timestamp_layout" yaml:"timestamp_layout"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BufferCapacity     int           `mapstructure:"buffer_capacity" yaml:"buffer_capacity"` // 0 = unbounded
	Rounds             int           `mapstructure:"rounds" yaml:"rounds"`
	LaterRunTime       time.Duration `mapstructure:"later_run_time" yaml:"later_run_time"` // 0 = half the first run
	FlushOnInterrupt   bool          `mapstructure:"flush_on_interrupt" yaml:"flush_on_interrupt"`
	Tagged             bool          `mapstructure:"tagged" yaml:"tagged"`
	Delimiter          string        `mapstructure:"delimiter" yaml:"delimiter"`
	ReadBuffer         int           `mapstructure:"read_buffer" yaml:"read_buffer"` // SO_RCVBUF, 0 = OS default
}

// SenderConfig configures the prober.
type SenderConfig struct {
	Policy   core.Policy   `mapstructure:"policy" yaml:"policy"`
	Priority core.Priority `mapstructure:"priority" yaml:"priority"`
	Entropy  core.Entropy  `mapstructure:"entropy" yaml:"entropy"`
	HighTOS  int           `mapstructure:"high_tos" yaml:"high_tos"`
	LowTOS   int           `mapstructure:"low_tos" yaml:"low_tos"`
	// Pause separates the L and H runs of a paired experiment.
	Pause time.Duration `mapstructure:"pause" yaml:"pause"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type configRoot struct {
	Udptrain Config `mapstructure:"udptrain"`
}

// Load reads the YAML file at path, applies env overrides and defaults,
// then validates. An empty path yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", core.ErrConfigInvalid, path, err)
		}
	}

	// key "udptrain.receiver.rounds" -> env UDPTRAIN_RECEIVER_ROUNDS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&root, hook); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", core.ErrConfigInvalid, err)
	}
	cfg := root.Udptrain

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := func(key string, value interface{}) { v.SetDefault(rootKey+"."+key, value) }

	def("ports.probe", 9876)
	def("ports.high", 9877)
	def("ports.low", 9878)

	def("receiver.listen_address", "0.0.0.0")
	def("receiver.port", 0)
	def("receiver.output_dir", "./temp")
	def("receiver.placeholder_address", "0.0.0.0")
	def("receiver.extension", ".raw")
	def("receiver.timestamp_layout", "2006-01-02_15:04:05")
	def("receiver.poll_interval", "1ms")
	def("receiver.buffer_capacity", 0)
	def("receiver.rounds", 1)
	def("receiver.later_run_time", "0s")
	def("receiver.flush_on_interrupt", false)
	def("receiver.tagged", true)
	def("receiver.delimiter", "*")
	def("receiver.read_buffer", 0)

	def("sender.policy", "dual-tos")
	def("sender.priority", "H")
	def("sender.entropy", "L")
	def("sender.high_tos", 0x10) // IPTOS_LOWDELAY
	def("sender.low_tos", 0)
	def("sender.pause", "60s")

	def("metrics.enabled", false)
	def("metrics.listen", "127.0.0.1:9100")
	def("metrics.path", "/metrics")

	def("log.level", "info")
	def("log.pattern", log.DefaultPattern)
	def("log.time", log.DefaultTime)
	def("log.file.enabled", false)
	def("log.file.filename", "udptrain.log")
	def("log.file.max_size", 100)
	def("log.file.max_backups", 5)
	def("log.file.max_age", 30)
	def("log.file.compress", true)
}

// ValidateAndApplyDefaults checks ranges and fills derived values.
func (cfg *Config) ValidateAndApplyDefaults() error {
	for name, port := range map[string]int{"ports.probe": cfg.Ports.Probe, "ports.high": cfg.Ports.High, "ports.low": cfg.Ports.Low} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%w: %s=%d", core.ErrInvalidPort, name, port)
		}
	}

	r := &cfg.Receiver
	if r.Port == 0 {
		r.Port = cfg.Ports.Probe
	}
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("%w: receiver.port=%d", core.ErrInvalidPort, r.Port)
	}
	if r.ListenAddress != "" && net.ParseIP(r.ListenAddress).To4() == nil {
		return fmt.Errorf("%w: receiver.listen_address %q is not an IPv4 address", core.ErrInvalidAddress, r.ListenAddress)
	}
	if r.PollInterval <= 0 {
		return fmt.Errorf("%w: receiver.poll_interval must be positive", core.ErrConfigInvalid)
	}
	if r.BufferCapacity < 0 || r.ReadBuffer < 0 {
		return fmt.Errorf("%w: receiver buffer sizes must not be negative", core.ErrConfigInvalid)
	}
	if r.Rounds < 1 {
		return fmt.Errorf("%w: receiver.rounds=%d (must be >= 1)", core.ErrConfigInvalid, r.Rounds)
	}
	if r.LaterRunTime < 0 {
		return fmt.Errorf("%w: receiver.later_run_time must not be negative", core.ErrConfigInvalid)
	}
	if r.Delimiter == "" || strings.ContainsAny(r.Delimiter, "\t\n") {
		return fmt.Errorf("%w: receiver.delimiter %q must be a non-empty single-line token", core.ErrConfigInvalid, r.Delimiter)
	}
	if r.TimestampLayout == "" {
		return fmt.Errorf("%w: receiver.timestamp_layout is required", core.ErrConfigInvalid)
	}

	s := &cfg.Sender
	if !s.Policy.Valid() {
		return fmt.Errorf("%w: sender.policy %d", core.ErrConfigInvalid, s.Policy)
	}
	if !s.Priority.Valid() {
		return fmt.Errorf("%w: sender.priority", core.ErrInvalidPriority)
	}
	if s.Entropy != core.EntropyHigh && s.Entropy != core.EntropyLow {
		return fmt.Errorf("%w: sender.entropy", core.ErrInvalidPriority)
	}
	for name, tos := range map[string]int{"sender.high_tos": s.HighTOS, "sender.low_tos": s.LowTOS} {
		if tos < 0 || tos > 0xff {
			return fmt.Errorf("%w: %s=%d out of byte range", core.ErrConfigInvalid, name, tos)
		}
	}
	if s.Pause < 0 {
		return fmt.Errorf("%w: sender.pause must not be negative", core.ErrConfigInvalid)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("%w: metrics.path %q must start with /", core.ErrConfigInvalid, cfg.Metrics.Path)
		}
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level %q", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Filename == "" {
		return fmt.Errorf("%w: log.file.filename is required when log.file.enabled=true", core.ErrConfigInvalid)
	}
	return nil
}
