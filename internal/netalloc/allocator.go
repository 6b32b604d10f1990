// Package netalloc hands out free local TCP ports from a configured
// ephemeral range and tracks reservations across chains.
package netalloc

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/localchain-dev/localchain/internal/config"
	"github.com/localchain-dev/localchain/internal/domain"
)

// Allocator tracks port reservations. Candidates are verified by a local
// bind probe so ports taken by processes outside the orchestrator's
// knowledge are skipped. The probe is not atomic with the reservation
// under adversarial external use; a bind failure at launch is treated as
// a recoverable crash by the runner, not as a bug here.
type Allocator struct {
	mu       sync.Mutex
	reserved map[int]struct{}
	start    int
	end      int
	next     int // scan cursor, spreads allocations across the range
	log      *slog.Logger
}

// NewAllocator creates an allocator over the configured ephemeral range.
func NewAllocator(cfg *config.RuntimeConfig, log *slog.Logger) *Allocator {
	return &Allocator{
		reserved: make(map[int]struct{}),
		start:    cfg.PortRangeStart,
		end:      cfg.PortRangeEnd,
		next:     cfg.PortRangeStart,
		log:      log.With("component", "netalloc"),
	}
}

// Reserve returns a free port. If preferred is non-zero and free it is
// used; otherwise the ephemeral range is scanned for the first port that
// passes a bind probe. The lock is held only around reservation-set
// mutation, never across the probe.
func (a *Allocator) Reserve(preferred int) (int, error) {
	if preferred != 0 {
		if a.tryReserve(preferred) {
			return preferred, nil
		}
		a.log.Debug("preferred port unavailable, scanning range", "port", preferred)
	}

	size := a.end - a.start + 1
	for i := 0; i < size; i++ {
		candidate := a.nextCandidate()
		if candidate == 0 {
			break
		}
		if a.tryReserve(candidate) {
			return candidate, nil
		}
	}

	return 0, fmt.Errorf("%w: range %d-%d exhausted", domain.ErrNoPortAvailable, a.start, a.end)
}

// Release frees a port. Idempotent: releasing an unreserved port is a
// no-op, never an error.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved, port)
}

// Reserved reports whether a port is currently held.
func (a *Allocator) Reserved(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.reserved[port]
	return ok
}

// tryReserve marks the port tentatively, probes it without holding the
// lock, and rolls the reservation back if the probe fails.
func (a *Allocator) tryReserve(port int) bool {
	a.mu.Lock()
	if _, taken := a.reserved[port]; taken {
		a.mu.Unlock()
		return false
	}
	a.reserved[port] = struct{}{}
	a.mu.Unlock()

	if bindProbe(port) {
		return true
	}

	a.mu.Lock()
	delete(a.reserved, port)
	a.mu.Unlock()
	return false
}

// nextCandidate advances the scan cursor, skipping already-reserved
// ports, wrapping at the end of the range.
func (a *Allocator) nextCandidate() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.end - a.start + 1
	for i := 0; i < size; i++ {
		candidate := a.next
		a.next++
		if a.next > a.end {
			a.next = a.start
		}
		if _, taken := a.reserved[candidate]; !taken {
			return candidate
		}
	}
	return 0
}

// bindProbe verifies the port is actually bindable on the loopback
// interface right now.
func bindProbe(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
