package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/localchain-dev/localchain/internal/domain"
)

// ManifestChain declares one chain to create when the daemon boots.
type ManifestChain struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Port      int      `yaml:"port,omitempty"`
	ChainID   uint64   `yaml:"chain_id,omitempty"`
	BlockTime uint64   `yaml:"block_time,omitempty"`
	ForkURL   string   `yaml:"fork_url,omitempty"`
	ExtraArgs []string `yaml:"extra_args,omitempty"`
	AutoStart bool     `yaml:"auto_start,omitempty"`
}

// Manifest is the boot manifest: chains pre-created (and optionally
// started) before the Control API accepts requests.
type Manifest struct {
	Chains []ManifestChain `yaml:"chains"`
}

// LoadManifest reads and validates a YAML boot manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	for i := range m.Chains {
		cfg := m.Chains[i].ChainConfig()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("manifest chain %q: %w", m.Chains[i].Name, err)
		}
	}
	return &m, nil
}

// ChainConfig converts the manifest entry to a domain config.
func (mc *ManifestChain) ChainConfig() domain.ChainConfig {
	return domain.ChainConfig{
		Kind:      domain.ChainKind(mc.Kind),
		Name:      mc.Name,
		Port:      mc.Port,
		ChainID:   mc.ChainID,
		BlockTime: mc.BlockTime,
		ForkURL:   mc.ForkURL,
		ExtraArgs: mc.ExtraArgs,
	}
}
