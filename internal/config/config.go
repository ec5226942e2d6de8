// Package config loads audiocore's configuration from a vibe document:
// jitter sizing, heartbeat pacing, the RPC control listener, and one
// block per source/sink pipeline.
//
// Generalized from the teacher's mount-keyed config.go: one Icecast
// mount block becomes one pipeline block, and the global server/limits
// blocks become jitter/heartbeat/rpc blocks.
package config

import (
	"fmt"
	"time"

	"github.com/audiocore/audiocore/pkg/vibe"
)

// Config is the complete audiocore configuration.
type Config struct {
	Jitter    JitterConfig
	Heartbeat HeartbeatConfig
	RPC       RPCConfig
	Sched     SchedConfig
	Logging   LoggingConfig
	Pipelines map[string]*PipelineConfig
	MDNS      MDNSConfig
}

// JitterConfig sizes the per-ES ring buffers (spec §4.1).
type JitterConfig struct {
	Depth          int
	BlockSize      int
	ThresholdLow   int
	ThresholdHigh  int
}

// HeartbeatConfig paces sink output (spec §4.2).
type HeartbeatConfig struct {
	PulseMS int
}

// RPCConfig configures the JSON-RPC control listener (spec §4.11).
type RPCConfig struct {
	ListenAddress string // "unix:///path" or "tcp://host:port"
	AuthToken     string // empty disables auth (internal/auth.New)
	TLSEnabled    bool
	TLSHostname   string
	TLSEmail      string
	TLSCacheDir   string
}

// SchedConfig configures the optional realtime scheduling hook
// (spec §5).
type SchedConfig struct {
	Enabled  bool
	Policy   string // "fifo", "rr", or "other"
	Priority int
}

// LoggingConfig controls the structured logger and its ring buffer.
type LoggingConfig struct {
	Level      string
	LogBufSize int
}

// MDNSConfig controls the optional RTP sink service advertisement
// (spec §4.9 RTP variant).
type MDNSConfig struct {
	Enabled bool
}

// PipelineConfig is one source→sink pipeline (spec §4.3/§4.9: a source
// URL feeds a set of sink URLs through the decode/encode stages).
type PipelineConfig struct {
	Name       string
	SourceURL  string
	SinkURLs   []string
	AutoStart  bool
	Loop       bool
	Random     bool
	MediaSeed  string // path to a YAML seed file for the media catalog
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Jitter: JitterConfig{
			Depth:         32,
			BlockSize:     4096,
			ThresholdLow:  4,
			ThresholdHigh: 28,
		},
		Heartbeat: HeartbeatConfig{PulseMS: 20},
		RPC: RPCConfig{
			ListenAddress: "unix:///var/run/audiocore/rpc.sock",
			TLSCacheDir:   "/var/lib/audiocore/tls",
		},
		Sched: SchedConfig{Enabled: false, Policy: "fifo", Priority: 10},
		Logging: LoggingConfig{
			Level:      "info",
			LogBufSize: 1000,
		},
		Pipelines: make(map[string]*PipelineConfig),
		MDNS:      MDNSConfig{Enabled: true},
	}
}

// Load parses a vibe document at filename into a Config.
func Load(filename string) (*Config, error) {
	v, err := vibe.ParseFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	cfg := DefaultConfig()

	if jitterObj := v.GetObject("jitter"); jitterObj != nil {
		cfg.Jitter.Depth = int(v.GetIntDefault("jitter.depth", int64(cfg.Jitter.Depth)))
		cfg.Jitter.BlockSize = int(v.GetIntDefault("jitter.block_size", int64(cfg.Jitter.BlockSize)))
		cfg.Jitter.ThresholdLow = int(v.GetIntDefault("jitter.threshold_low", int64(cfg.Jitter.ThresholdLow)))
		cfg.Jitter.ThresholdHigh = int(v.GetIntDefault("jitter.threshold_high", int64(cfg.Jitter.ThresholdHigh)))
	}

	if hbObj := v.GetObject("heartbeat"); hbObj != nil {
		cfg.Heartbeat.PulseMS = int(v.GetIntDefault("heartbeat.pulse_ms", int64(cfg.Heartbeat.PulseMS)))
	}

	if rpcObj := v.GetObject("rpc"); rpcObj != nil {
		cfg.RPC.ListenAddress = v.GetStringDefault("rpc.listen", cfg.RPC.ListenAddress)
		cfg.RPC.AuthToken = v.GetStringDefault("rpc.auth_token", cfg.RPC.AuthToken)
		cfg.RPC.TLSEnabled = v.GetBoolDefault("rpc.tls.enabled", cfg.RPC.TLSEnabled)
		cfg.RPC.TLSHostname = v.GetStringDefault("rpc.tls.hostname", cfg.RPC.TLSHostname)
		cfg.RPC.TLSEmail = v.GetStringDefault("rpc.tls.email", cfg.RPC.TLSEmail)
		cfg.RPC.TLSCacheDir = v.GetStringDefault("rpc.tls.cache_dir", cfg.RPC.TLSCacheDir)
	}

	if schedObj := v.GetObject("sched"); schedObj != nil {
		cfg.Sched.Enabled = v.GetBoolDefault("sched.enabled", cfg.Sched.Enabled)
		cfg.Sched.Policy = v.GetStringDefault("sched.policy", cfg.Sched.Policy)
		cfg.Sched.Priority = int(v.GetIntDefault("sched.priority", int64(cfg.Sched.Priority)))
	}

	if logObj := v.GetObject("logging"); logObj != nil {
		cfg.Logging.Level = v.GetStringDefault("logging.level", cfg.Logging.Level)
		cfg.Logging.LogBufSize = int(v.GetIntDefault("logging.log_buf_size", int64(cfg.Logging.LogBufSize)))
	}

	if mdnsObj := v.GetObject("mdns"); mdnsObj != nil {
		cfg.MDNS.Enabled = v.GetBoolDefault("mdns.enabled", cfg.MDNS.Enabled)
	}

	if pipelines := v.GetObject("pipelines"); pipelines != nil {
		for _, key := range pipelines.Keys {
			path := "pipelines." + key
			if v.GetObject(path) == nil {
				continue
			}
			cfg.Pipelines[key] = &PipelineConfig{
				Name:      key,
				SourceURL: v.GetStringDefault(path+".source", ""),
				SinkURLs:  v.GetStringArray(path + ".sinks"),
				AutoStart: v.GetBoolDefault(path+".autostart", false),
				Loop:      v.GetBoolDefault(path+".loop", true),
				Random:    v.GetBoolDefault(path+".random", false),
				MediaSeed: v.GetStringDefault(path+".media_seed", ""),
			}
		}
	}

	return cfg, nil
}

// Validate sanity-checks the configuration.
func (c *Config) Validate() error {
	if c.Jitter.Depth <= 0 {
		return fmt.Errorf("config: jitter.depth must be positive")
	}
	if c.Jitter.ThresholdLow >= c.Jitter.ThresholdHigh {
		return fmt.Errorf("config: jitter.threshold_low must be below threshold_high")
	}
	if c.Heartbeat.PulseMS <= 0 {
		return fmt.Errorf("config: heartbeat.pulse_ms must be positive")
	}
	if c.RPC.TLSEnabled && (c.RPC.TLSHostname == "" || c.RPC.TLSEmail == "") {
		return fmt.Errorf("config: rpc.tls enabled but hostname/email not set")
	}
	for name, p := range c.Pipelines {
		if p.SourceURL == "" {
			return fmt.Errorf("config: pipeline %q missing source", name)
		}
	}
	return nil
}

// PulseInterval is the heartbeat pulse as a time.Duration.
func (h HeartbeatConfig) PulseInterval() time.Duration {
	return time.Duration(h.PulseMS) * time.Millisecond
}
