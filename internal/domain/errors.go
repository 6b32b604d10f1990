package domain

import "errors"

// Sentinel errors for orchestrator operations
var (
	// ErrNotFound is returned when no chain exists for the given id
	ErrNotFound = errors.New("chain not found")

	// ErrAlreadyExists is returned when a chain name collides at create time
	ErrAlreadyExists = errors.New("chain already exists")

	// ErrBusy is returned when a command arrives while another command is
	// still in flight for the same chain. Safe to retry.
	ErrBusy = errors.New("chain busy")

	// ErrInvalidConfig is returned when a chain config fails validation
	ErrInvalidConfig = errors.New("invalid chain config")

	// ErrInvalidTransition is returned when a command is not valid from
	// the chain's current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNoPortAvailable is returned when the allocator's ephemeral range
	// is exhausted
	ErrNoPortAvailable = errors.New("no port available")

	// ErrSpawnFailed is returned when the node binary could not be launched
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrKillFailed is returned when the OS refused even forced
	// termination. The chain is left Crashed and the process may leak.
	ErrKillFailed = errors.New("kill failed")

	// ErrShuttingDown is returned for commands issued while the
	// orchestrator is draining
	ErrShuttingDown = errors.New("orchestrator shutting down")
)
