package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/localchain-dev/localchain/internal/domain"
)

// SetupViper creates and configures a viper instance. Values resolve in
// the usual order: flags bound by the CLI, then LOCALCHAIN_* environment
// variables, then localchain.yaml, then defaults.
func SetupViper() *viper.Viper {
	// Load .env if present; real env wins over file entries
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("localchain")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".localchain"))
	}

	v.SetEnvPrefix("LOCALCHAIN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("listen_addr", "127.0.0.1:3000")
	v.SetDefault("data_root", ".localchain")
	v.SetDefault("port_range_start", 30000)
	v.SetDefault("port_range_end", 40000)
	v.SetDefault("probe_interval", "2s")
	v.SetDefault("probe_timeout", "2s")
	v.SetDefault("failure_threshold", 3)
	v.SetDefault("start_timeout", "30s")
	v.SetDefault("stop_timeout", "10s")
	v.SetDefault("log_buffer_lines", 1000)
	v.SetDefault("rpc_handshake", true)
	v.SetDefault("use_pty", false)
	v.SetDefault("debug", false)

	// Missing config file is fine; defaults and env cover everything
	_ = v.ReadInConfig()

	return v
}

// Provider builds the RuntimeConfig from a configured viper instance.
func Provider(v *viper.Viper) (*RuntimeConfig, error) {
	cfg := &RuntimeConfig{
		ListenAddr:       v.GetString("listen_addr"),
		DataRoot:         v.GetString("data_root"),
		PortRangeStart:   v.GetInt("port_range_start"),
		PortRangeEnd:     v.GetInt("port_range_end"),
		ProbeInterval:    v.GetDuration("probe_interval"),
		ProbeTimeout:     v.GetDuration("probe_timeout"),
		FailureThreshold: v.GetInt("failure_threshold"),
		StartTimeout:     v.GetDuration("start_timeout"),
		StopTimeout:      v.GetDuration("stop_timeout"),
		LogBufferLines:   v.GetInt("log_buffer_lines"),
		RPCHandshake:     v.GetBool("rpc_handshake"),
		UsePTY:           v.GetBool("use_pty"),
		Manifest:         v.GetString("manifest"),
		Debug:            v.GetBool("debug"),
		Binaries:         map[domain.ChainKind]string{},
	}

	for kind, bin := range v.GetStringMapString("binaries") {
		cfg.Binaries[domain.ChainKind(kind)] = bin
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(cfg.DataRoot) {
		abs, err := filepath.Abs(cfg.DataRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data root: %w", err)
		}
		cfg.DataRoot = abs
	}

	return cfg, nil
}

func (c *RuntimeConfig) validate() error {
	if c.PortRangeStart <= 0 || c.PortRangeEnd > 65535 || c.PortRangeStart > c.PortRangeEnd {
		return fmt.Errorf("invalid port range %d-%d", c.PortRangeStart, c.PortRangeEnd)
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1, got %d", c.FailureThreshold)
	}
	if c.ProbeInterval <= 0 || c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_interval and probe_timeout must be positive")
	}
	if c.LogBufferLines < 1 {
		return fmt.Errorf("log_buffer_lines must be at least 1, got %d", c.LogBufferLines)
	}
	return nil
}
