package domain

import (
	"context"
	"time"
)

// ProcessHandle is the exclusively-owned reference to one spawned node
// process. It is present on a chain exactly while the chain's status is
// Starting, Running or Stopping.
type ProcessHandle interface {
	// PID returns the OS process id.
	PID() int

	// Done is closed once the process has exited and been reaped; no
	// zombie remains after it closes.
	Done() <-chan struct{}

	// ExitErr returns the process exit error, valid after Done closes.
	ExitErr() error

	// Terminate sends a graceful stop signal and force-kills after
	// grace. It returns once the process is confirmed reaped, or
	// ErrKillFailed if the OS refuses even forced termination.
	Terminate(ctx context.Context, grace time.Duration) error
}
