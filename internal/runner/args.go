package runner

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/localchain-dev/localchain/internal/domain"
)

// BuildArgs derives the command line for a chain kind. The node binary
// is opaque to the orchestrator beyond these launch flags; anything else
// goes through ExtraArgs.
func BuildArgs(cfg domain.ChainConfig, port int, dataDir string) ([]string, error) {
	switch cfg.Kind {
	case domain.KindAnvil:
		return buildAnvilArgs(cfg, port, dataDir), nil
	case domain.KindGethDev:
		return buildGethDevArgs(cfg, port, dataDir), nil
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidConfig, cfg.Kind)
	}
}

// buildAnvilArgs builds flags for anvil. State persistence uses anvil's
// --state flag, its equivalent of a data directory.
func buildAnvilArgs(cfg domain.ChainConfig, port int, dataDir string) []string {
	args := []string{
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
	}
	if cfg.ChainID != 0 {
		args = append(args, "--chain-id", strconv.FormatUint(cfg.ChainID, 10))
	}
	if cfg.BlockTime != 0 {
		args = append(args, "--block-time", strconv.FormatUint(cfg.BlockTime, 10))
	}
	if cfg.ForkURL != "" {
		args = append(args, "--fork-url", cfg.ForkURL)
	}
	if dataDir != "" {
		args = append(args, "--state", filepath.Join(dataDir, "state.json"))
	}
	args = append(args, cfg.ExtraArgs...)
	return args
}

// buildGethDevArgs builds flags for geth in dev mode. Only the HTTP
// endpoint is bound to the assigned port; geth cannot multiplex ws onto
// the same listener, so block streaming falls back to polling.
func buildGethDevArgs(cfg domain.ChainConfig, port int, dataDir string) []string {
	args := []string{
		"--dev",
		"--http",
		"--http.addr", "127.0.0.1",
		"--http.port", strconv.Itoa(port),
		"--http.api", "eth,net,web3",
	}
	if cfg.BlockTime != 0 {
		args = append(args, "--dev.period", strconv.FormatUint(cfg.BlockTime, 10))
	}
	if dataDir != "" {
		args = append(args, "--datadir", dataDir)
	}
	args = append(args, cfg.ExtraArgs...)
	return args
}
