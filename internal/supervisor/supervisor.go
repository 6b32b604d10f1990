// Package supervisor is the orchestrator's control plane: it accepts
// lifecycle commands, serializes them per chain, and coordinates the
// registry, port allocator, process runner and health prober. Failures
// are chain-scoped; no chain's control loop can affect another's.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/localchain-dev/localchain/internal/config"
	"github.com/localchain-dev/localchain/internal/domain"
	"github.com/localchain-dev/localchain/internal/eventbus"
	"github.com/localchain-dev/localchain/internal/logbuf"
	"github.com/localchain-dev/localchain/internal/netalloc"
	"github.com/localchain-dev/localchain/internal/registry"
)

// Supervisor coordinates all chain lifecycles. Commands on one chain are
// serialized by that chain's execution token; different chains proceed
// fully in parallel.
type Supervisor struct {
	cfg    *config.RuntimeConfig
	log    *slog.Logger
	reg    *registry.Registry
	ports  *netalloc.Allocator
	runner ProcessRunner
	prober HealthProber

	events *eventbus.Bus[domain.ChainEvent]

	quit    chan struct{}
	closing atomic.Bool
	wg      sync.WaitGroup
}

// NewSupervisor creates the orchestrator control plane.
func NewSupervisor(
	cfg *config.RuntimeConfig,
	log *slog.Logger,
	reg *registry.Registry,
	ports *netalloc.Allocator,
	run ProcessRunner,
	prober HealthProber,
) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		log:    log.With("component", "supervisor"),
		reg:    reg,
		ports:  ports,
		runner: run,
		prober: prober,
		events: eventbus.New[domain.ChainEvent](),
		quit:   make(chan struct{}),
	}
}

// SubscribeEvents registers a consumer of chain lifecycle events. The
// bus never blocks commands on a slow consumer; one that falls behind
// misses events and should resynchronize from chain snapshots.
func (s *Supervisor) SubscribeEvents() (<-chan domain.ChainEvent, func()) {
	return s.events.Subscribe()
}

// Create validates and registers a new chain in Created status.
func (s *Supervisor) Create(cfg domain.ChainConfig) (domain.ChainState, error) {
	if s.closing.Load() {
		return domain.ChainState{}, domain.ErrShuttingDown
	}

	e, err := s.reg.Create(cfg)
	if err != nil {
		return domain.ChainState{}, err
	}

	snap := e.Snapshot()
	s.log.Info("chain created", "chain", snap.ID, "name", cfg.Name, "kind", cfg.Kind)
	s.publish(domain.ChainEvent{Type: domain.EventChainCreated, ChainID: snap.ID, Status: snap.Status})
	return snap, nil
}

// List returns snapshots of all chains.
func (s *Supervisor) List() []domain.ChainState {
	return s.reg.List()
}

// Get returns the snapshot for one chain.
func (s *Supervisor) Get(id string) (domain.ChainState, error) {
	e, err := s.reg.Get(id)
	if err != nil {
		return domain.ChainState{}, err
	}
	return e.Snapshot(), nil
}

// Logs returns the chain's log ring buffer.
func (s *Supervisor) Logs(id string) (*logbuf.Buffer, error) {
	e, err := s.reg.Get(id)
	if err != nil {
		return nil, err
	}
	return e.Logs(), nil
}

// Start reserves a port, spawns the node process, and transitions the
// chain to Starting. Progression to Running is driven by the health
// prober and observed via reads or the event feed. The spawn itself is
// synchronous so SpawnFailed surfaces to the caller; a concurrent
// command during that window gets ErrBusy.
func (s *Supervisor) Start(ctx context.Context, id string) error {
	e, err := s.reg.Get(id)
	if err != nil {
		return err
	}
	if !e.TryBegin() {
		return fmt.Errorf("%w: %s", domain.ErrBusy, id)
	}
	defer e.End()

	if s.closing.Load() {
		return domain.ErrShuttingDown
	}

	snap := e.Snapshot()
	if !snap.Status.Startable() {
		return fmt.Errorf("%w: cannot start from %s", domain.ErrInvalidTransition, snap.Status)
	}

	port, err := s.ports.Reserve(e.PreferredPort())
	if err != nil {
		return err
	}

	h, err := s.runner.Spawn(ctx, snap.Config, port, snap.Config.DataDir, e.Logs())
	if err != nil {
		// No resources leak on a failed spawn; the chain keeps its
		// previous status so the caller may retry.
		s.ports.Release(port)
		return err
	}

	e.MarkStarting(port, h)

	// Shutdown may have begun after the check above but before the spawn
	// landed in the registry; its drain pass would then miss this chain.
	// Re-checking after MarkStarting closes that window: either Shutdown
	// sees the Starting chain and stops it, or we see closing and settle
	// the process ourselves.
	if s.closing.Load() {
		s.terminateAndSettle(e, h, port, "")
		return domain.ErrShuttingDown
	}

	s.log.Info("chain starting", "chain", id, "port", port, "pid", h.PID())
	s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: domain.StatusStarting})

	s.wg.Add(1)
	go s.monitor(e, h, port)
	return nil
}

// Stop transitions a Starting or Running chain to Stopping and
// terminates the process in the background; completion (Stopped) is
// observed via reads or the event feed.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	e, err := s.reg.Get(id)
	if err != nil {
		return err
	}
	if !e.TryBegin() {
		return fmt.Errorf("%w: %s", domain.ErrBusy, id)
	}

	status := e.Status()
	if status != domain.StatusRunning && status != domain.StatusStarting {
		e.End()
		return fmt.Errorf("%w: cannot stop from %s", domain.ErrInvalidTransition, status)
	}

	h := e.Handle()
	port := e.Port()
	e.MarkStopping()
	s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: domain.StatusStopping})

	go func() {
		defer e.End()
		s.terminateAndSettle(e, h, port, "")
	}()
	return nil
}

// Restart stops the chain if it has a process, then starts it again
// preferring the previously used port. The stop/start sequence runs in
// the background under the chain's execution token; failures surface on
// the chain state and the event feed.
func (s *Supervisor) Restart(ctx context.Context, id string) error {
	e, err := s.reg.Get(id)
	if err != nil {
		return err
	}
	if !e.TryBegin() {
		return fmt.Errorf("%w: %s", domain.ErrBusy, id)
	}

	if s.closing.Load() {
		e.End()
		return domain.ErrShuttingDown
	}

	status := e.Status()
	if status == domain.StatusCrashed {
		e.End()
		return fmt.Errorf("%w: cannot restart from %s, delete and recreate", domain.ErrInvalidTransition, status)
	}

	go func() {
		defer e.End()

		if st := e.Status(); st.HasProcess() {
			h := e.Handle()
			port := e.Port()
			e.MarkStopping()
			s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: domain.StatusStopping})
			if !s.terminateAndSettle(e, h, port, "") {
				return
			}
		}

		snap := e.Snapshot()
		port, err := s.ports.Reserve(e.PreferredPort())
		if err != nil {
			e.SetError(err.Error())
			s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: e.Status(), Error: err.Error()})
			return
		}

		h, err := s.runner.Spawn(context.Background(), snap.Config, port, snap.Config.DataDir, e.Logs())
		if err != nil {
			s.ports.Release(port)
			e.SetError(err.Error())
			s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: e.Status(), Error: err.Error()})
			return
		}

		e.MarkStarting(port, h)

		// Same shutdown window as in Start: settle the fresh process if
		// the drain pass could no longer see it.
		if s.closing.Load() {
			s.terminateAndSettle(e, h, port, "")
			return
		}

		s.log.Info("chain restarting", "chain", id, "port", port, "pid", h.PID())
		s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: domain.StatusStarting})

		s.wg.Add(1)
		go s.monitor(e, h, port)
	}()
	return nil
}

// Delete removes a chain and releases any held resources. Only valid
// once the chain no longer owns a process (Created, Stopped, Crashed).
func (s *Supervisor) Delete(ctx context.Context, id string) error {
	e, err := s.reg.Get(id)
	if err != nil {
		return err
	}
	if !e.TryBegin() {
		return fmt.Errorf("%w: %s", domain.ErrBusy, id)
	}
	defer e.End()

	snap := e.Snapshot()
	if !snap.Status.Deletable() {
		return fmt.Errorf("%w: cannot delete from %s", domain.ErrInvalidTransition, snap.Status)
	}

	if snap.Port != 0 {
		s.ports.Release(snap.Port)
	}
	if err := s.reg.Remove(id); err != nil {
		return err
	}

	// Remove the data directory only when the orchestrator derived it;
	// user-supplied paths are left alone.
	if dir := snap.Config.DataDir; dir != "" && strings.HasPrefix(dir, filepath.Join(s.cfg.DataRoot, "chains")) {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("failed to remove chain data dir", "chain", id, "dir", dir, "err", err)
		}
	}

	s.log.Info("chain deleted", "chain", id)
	s.publish(domain.ChainEvent{Type: domain.EventChainDeleted, ChainID: id})
	return nil
}

// Shutdown terminates all process-owning chains in parallel, then stops
// the monitor loops. New commands are rejected while draining.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	g, _ := errgroup.WithContext(ctx)
	for _, snap := range s.reg.List() {
		if !snap.Status.HasProcess() {
			continue
		}
		id := snap.ID
		g.Go(func() error {
			e, err := s.reg.Get(id)
			if err != nil {
				return nil
			}
			e.Begin()
			defer e.End()
			if st := e.Status(); !st.HasProcess() {
				return nil
			}
			h := e.Handle()
			port := e.Port()
			e.MarkStopping()
			s.terminateAndSettle(e, h, port, "")
			return nil
		})
	}
	err := g.Wait()

	close(s.quit)
	s.wg.Wait()
	return err
}

// terminateAndSettle terminates the process and finalizes the chain as
// Stopped (or Crashed on ErrKillFailed). Callers hold the execution
// token. Returns true when the chain settled in Stopped.
func (s *Supervisor) terminateAndSettle(e *registry.Entry, h domain.ProcessHandle, port int, errMsg string) bool {
	id := e.ID()
	if err := h.Terminate(context.Background(), s.cfg.StopTimeout); err != nil {
		// The process may leak; flag for operator attention.
		s.log.Error("termination failed, process may leak", "chain", id, "pid", h.PID(), "err", err)
		e.MarkCrashed(err.Error())
		s.ports.Release(port)
		s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: domain.StatusCrashed, Error: err.Error()})
		return false
	}

	e.MarkStopped(errMsg)
	s.ports.Release(port)
	s.log.Info("chain stopped", "chain", id)
	s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: domain.StatusStopped, Error: errMsg})
	return true
}

// crash finalizes a chain as Crashed from the monitor: terminate
// whatever is left of the process, release the port, publish the event.
// Acquires the execution token and rechecks status, so it never races a
// concurrent stop.
func (s *Supervisor) crash(e *registry.Entry, h domain.ProcessHandle, port int, reason string) {
	e.Begin()
	defer e.End()

	status := e.Status()
	if status != domain.StatusStarting && status != domain.StatusRunning {
		// A stop or shutdown settled the chain first
		return
	}
	if e.Handle() != h {
		// A restart replaced the process while we waited for the token
		return
	}

	id := e.ID()
	select {
	case <-h.Done():
		// Already exited; nothing to terminate
	default:
		if err := h.Terminate(context.Background(), s.cfg.StopTimeout); err != nil {
			s.log.Error("termination failed during crash cleanup, process may leak", "chain", id, "pid", h.PID(), "err", err)
			reason = reason + "; " + err.Error()
		}
	}

	e.MarkCrashed(reason)
	s.ports.Release(port)
	s.log.Warn("chain crashed", "chain", id, "reason", reason)
	s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: domain.StatusCrashed, Error: reason})
}

func (s *Supervisor) publish(ev domain.ChainEvent) {
	ev.Time = time.Now()
	s.events.Publish(ev)
}

// exitReason renders the process exit error for state and events.
func exitReason(h domain.ProcessHandle) string {
	if err := h.ExitErr(); err != nil {
		return fmt.Sprintf("process exited unexpectedly: %v", err)
	}
	return "process exited unexpectedly"
}
