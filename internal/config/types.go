package config

import (
	"time"

	"github.com/localchain-dev/localchain/internal/domain"
)

// RuntimeConfig is the resolved daemon configuration, built once per
// process by Provider and shared read-only by all components.
type RuntimeConfig struct {
	// ListenAddr is the Control API bind address
	ListenAddr string

	// DataRoot holds per-chain data directories and daemon state
	DataRoot string

	// PortRangeStart/End bound the ephemeral range the allocator scans
	// when a chain does not request an explicit port
	PortRangeStart int
	PortRangeEnd   int

	// ProbeInterval is the period between health probes per chain
	ProbeInterval time.Duration

	// ProbeTimeout bounds a single TCP connect / RPC handshake attempt
	ProbeTimeout time.Duration

	// FailureThreshold is the number of consecutive probe failures that
	// crash a Running chain
	FailureThreshold int

	// StartTimeout bounds how long a chain may sit in Starting before it
	// is terminated and marked Crashed
	StartTimeout time.Duration

	// StopTimeout is the grace period between SIGTERM and SIGKILL
	StopTimeout time.Duration

	// LogBufferLines is the capacity of each chain's log ring buffer
	LogBufferLines int

	// RPCHandshake enables the eth_blockNumber handshake after the TCP
	// connect in health probes
	RPCHandshake bool

	// UsePTY launches node processes under a pseudo-terminal so binaries
	// that only line-buffer or colorize on a TTY keep their output
	UsePTY bool

	// Binaries maps chain kinds to executable paths, overriding the
	// defaults looked up on PATH
	Binaries map[domain.ChainKind]string

	// Manifest is an optional YAML file of chains to create at boot
	Manifest string

	// Debug enables debug logging
	Debug bool
}

// Binary returns the executable to launch for a chain kind.
func (c *RuntimeConfig) Binary(kind domain.ChainKind) string {
	if bin, ok := c.Binaries[kind]; ok && bin != "" {
		return bin
	}
	switch kind {
	case domain.KindGethDev:
		return "geth"
	default:
		return string(kind)
	}
}
