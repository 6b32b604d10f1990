package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChainKind identifies which node binary backs a chain.
type ChainKind string

const (
	KindAnvil   ChainKind = "anvil"
	KindGethDev ChainKind = "geth-dev"
)

// SupportedKinds lists the chain kinds the orchestrator knows how to launch.
var SupportedKinds = []ChainKind{KindAnvil, KindGethDev}

// Valid reports whether the kind is one of the supported node binaries.
func (k ChainKind) Valid() bool {
	for _, s := range SupportedKinds {
		if k == s {
			return true
		}
	}
	return false
}

// ChainStatus is the lifecycle state of a managed chain.
type ChainStatus string

const (
	StatusCreated  ChainStatus = "created"
	StatusStarting ChainStatus = "starting"
	StatusRunning  ChainStatus = "running"
	StatusStopping ChainStatus = "stopping"
	StatusStopped  ChainStatus = "stopped"
	StatusCrashed  ChainStatus = "crashed"
)

// HasProcess reports whether a chain in this status owns a live process
// handle. The registry enforces handle != nil exactly for these states.
func (s ChainStatus) HasProcess() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusStopping
}

// Startable reports whether a start command is accepted in this status.
func (s ChainStatus) Startable() bool {
	return s == StatusCreated || s == StatusStopped
}

// Deletable reports whether a delete command is accepted in this status.
// A chain that never started holds no process or port, so Created is
// deletable alongside the terminal states.
func (s ChainStatus) Deletable() bool {
	return s == StatusCreated || s == StatusStopped || s == StatusCrashed
}

// ChainConfig is the immutable, user-supplied definition of a chain.
// Changing a config requires delete + recreate.
type ChainConfig struct {
	Kind      ChainKind `json:"kind"`
	Name      string    `json:"name"`
	Port      int       `json:"port,omitempty"`      // requested port; 0 = auto-assign
	ChainID   uint64    `json:"chainId,omitempty"`   // 0 = binary default
	BlockTime uint64    `json:"blockTime,omitempty"` // seconds between blocks; 0 = on-demand mining
	ForkURL   string    `json:"forkUrl,omitempty"`
	ExtraArgs []string  `json:"extraArgs,omitempty"`
	DataDir   string    `json:"dataDir,omitempty"` // derived from the data root when empty
}

// Validate checks the config at create time. All failures wrap
// ErrInvalidConfig so the API layer can map them uniformly.
func (c *ChainConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidConfig, c.Kind)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	for _, arg := range c.ExtraArgs {
		if strings.TrimSpace(arg) == "" {
			return fmt.Errorf("%w: empty extra argument", ErrInvalidConfig)
		}
	}
	return nil
}

// HealthCheck records the outcome of the most recent probe.
type HealthCheck struct {
	Time    time.Time `json:"time"`
	Healthy bool      `json:"healthy"`
}

// ChainState is the mutable runtime view of a chain, owned by the
// registry. Snapshots handed out by the registry are copies; mutating
// one has no effect on the source of truth.
type ChainState struct {
	ID         string       `json:"id"`
	Config     ChainConfig  `json:"config"`
	Status     ChainStatus  `json:"status"`
	Port       int          `json:"port,omitempty"` // assigned port; 0 when none held
	PID        int          `json:"pid,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	StartedAt  *time.Time   `json:"startedAt,omitempty"`
	LastHealth *HealthCheck `json:"lastHealth,omitempty"`
	LastError  string       `json:"lastError,omitempty"`
}

// RPCURL returns the HTTP endpoint of the chain's node, or an empty
// string when no port is assigned.
func (s *ChainState) RPCURL() string {
	if s.Port == 0 {
		return ""
	}
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port)
}

// WSURL returns the websocket endpoint of the chain's node, or an empty
// string when no port is assigned. Anvil serves ws on the same port as
// http; geth in dev mode does not, so ws consumers must tolerate a
// failed dial.
func (s *ChainState) WSURL() string {
	if s.Port == 0 {
		return ""
	}
	return fmt.Sprintf("ws://127.0.0.1:%d", s.Port)
}
