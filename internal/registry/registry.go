// Package registry is the in-memory source of truth for managed chains:
// id to configuration, runtime state, and owned resources.
package registry

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/localchain-dev/localchain/internal/config"
	"github.com/localchain-dev/localchain/internal/domain"
	"github.com/localchain-dev/localchain/internal/logbuf"
)

// Entry is one chain's registry record. State mutations go through the
// Mark* methods, which keep the handle/status invariant: a process
// handle is held exactly while status is Starting, Running or Stopping.
type Entry struct {
	id   string
	logs *logbuf.Buffer

	// cmdMu is the per-chain execution token. Commands TryLock it;
	// holding it serializes all cross-component calls for this chain
	// without blocking other chains.
	cmdMu sync.Mutex

	mu       sync.Mutex
	state    domain.ChainState
	handle   domain.ProcessHandle
	lastPort int
}

// ID returns the chain's stable identifier.
func (e *Entry) ID() string { return e.id }

// Logs returns the chain's log ring buffer.
func (e *Entry) Logs() *logbuf.Buffer { return e.logs }

// TryBegin attempts to acquire the chain's execution token. It returns
// false when another command is in flight; callers surface ErrBusy.
func (e *Entry) TryBegin() bool { return e.cmdMu.TryLock() }

// Begin blocks until the execution token is free. Used by the monitor
// goroutine, which must not drop crash handling on a Busy window.
func (e *Entry) Begin() { e.cmdMu.Lock() }

// End releases the execution token.
func (e *Entry) End() { e.cmdMu.Unlock() }

// Snapshot returns a copy of the chain state. Mutating it has no effect
// on the registry.
func (e *Entry) Snapshot() domain.ChainState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the current lifecycle status.
func (e *Entry) Status() domain.ChainStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status
}

// Handle returns the live process handle, nil outside
// Starting/Running/Stopping.
func (e *Entry) Handle() domain.ProcessHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

// Port returns the currently assigned port, 0 when none is held.
func (e *Entry) Port() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Port
}

// PreferredPort returns the port to request on the next start: the
// config's explicit port if any, else the last port this chain used.
func (e *Entry) PreferredPort() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Config.Port != 0 {
		return e.state.Config.Port
	}
	return e.lastPort
}

// MarkStarting records a successful spawn: assigned port, process
// handle, transition to Starting.
func (e *Entry) MarkStarting(port int, h domain.ProcessHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.state.Status = domain.StatusStarting
	e.state.Port = port
	e.state.PID = h.PID()
	e.state.StartedAt = &now
	e.state.LastError = ""
	e.state.LastHealth = nil
	e.handle = h
	e.lastPort = port
}

// MarkRunning records the first successful health probe.
func (e *Entry) MarkRunning() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = domain.StatusRunning
}

// MarkStopping records an accepted stop command.
func (e *Entry) MarkStopping() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = domain.StatusStopping
}

// MarkStopped releases the process handle and port. errMsg is retained
// for the UI when the stop was the fallout of a failed start.
func (e *Entry) MarkStopped(errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = domain.StatusStopped
	e.state.Port = 0
	e.state.PID = 0
	e.state.LastError = errMsg
	e.handle = nil
}

// MarkCrashed releases the process handle and port and records the
// failure reason.
func (e *Entry) MarkCrashed(errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = domain.StatusCrashed
	e.state.Port = 0
	e.state.PID = 0
	e.state.LastError = errMsg
	e.handle = nil
}

// SetError records a failure without changing status, e.g. a failed
// background restart.
func (e *Entry) SetError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.LastError = msg
}

// RecordHealth stores the outcome of the latest probe.
func (e *Entry) RecordHealth(healthy bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.LastHealth = &domain.HealthCheck{Time: time.Now(), Healthy: healthy}
}

// checkInvariant verifies handle presence matches status.
func (e *Entry) checkInvariant() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	hasHandle := e.handle != nil
	if hasHandle != e.state.Status.HasProcess() {
		return fmt.Errorf("chain %s: status %s with handle=%v", e.id, e.state.Status, hasHandle)
	}
	return nil
}

// Registry maps chain ids to entries. Identifiers are uuids and never
// reused, even after deletion.
type Registry struct {
	cfg *config.RuntimeConfig

	mu     sync.RWMutex
	chains map[string]*Entry
}

// NewRegistry creates an empty registry. State is rebuilt fresh on every
// daemon start; chains from a previous session are not re-adopted.
func NewRegistry(cfg *config.RuntimeConfig) *Registry {
	return &Registry{
		cfg:    cfg,
		chains: make(map[string]*Entry),
	}
}

// Create validates the config, allocates an id, and registers the chain
// in Created status. Names must be unique among live chains.
func (r *Registry) Create(cfg domain.ChainConfig) (*Entry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.chains {
		if e.Snapshot().Config.Name == cfg.Name {
			return nil, fmt.Errorf("%w: name %q", domain.ErrAlreadyExists, cfg.Name)
		}
	}

	id := uuid.NewString()
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(r.cfg.DataRoot, "chains", id)
	}

	e := &Entry{
		id:   id,
		logs: logbuf.New(r.cfg.LogBufferLines),
		state: domain.ChainState{
			ID:        id,
			Config:    cfg,
			Status:    domain.StatusCreated,
			CreatedAt: time.Now(),
		},
	}
	r.chains[id] = e
	return e, nil
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.chains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return e, nil
}

// Remove drops the entry and closes its log buffer. Status validation is
// the caller's job; the id is never handed out again.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.chains[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	e.logs.Close()
	delete(r.chains, id)
	return nil
}

// List returns snapshots of all chains, oldest first.
func (r *Registry) List() []domain.ChainState {
	r.mu.RLock()
	entries := lo.Values(r.chains)
	r.mu.RUnlock()

	states := lo.Map(entries, func(e *Entry, _ int) domain.ChainState {
		return e.Snapshot()
	})
	sort.Slice(states, func(i, j int) bool {
		if states[i].CreatedAt.Equal(states[j].CreatedAt) {
			return states[i].ID < states[j].ID
		}
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	return states
}

// CheckInvariants verifies the handle/status invariant for every chain
// and that no two process-owning chains share a port. Used by tests
// after every transition.
func (r *Registry) CheckInvariants() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[int]string{}
	for _, e := range r.chains {
		if err := e.checkInvariant(); err != nil {
			return err
		}
		snap := e.Snapshot()
		if snap.Port == 0 || !snap.Status.HasProcess() {
			continue
		}
		if other, dup := seen[snap.Port]; dup {
			return fmt.Errorf("port %d held by both %s and %s", snap.Port, other, snap.ID)
		}
		seen[snap.Port] = snap.ID
	}
	return nil
}
