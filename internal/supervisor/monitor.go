package supervisor

import (
	"context"
	"time"

	"github.com/localchain-dev/localchain/internal/domain"
	"github.com/localchain-dev/localchain/internal/registry"
)

// monitor is the per-process watchdog. Exactly one runs per spawned
// process and it owns two responsibilities: detecting out-of-band exits
// via the handle's done channel, and driving health probes that promote
// Starting to Running or demote an unresponsive chain to Crashed.
// It exits when the process exits, when the chain settles through a
// command, or on orchestrator shutdown.
func (s *Supervisor) monitor(e *registry.Entry, h domain.ProcessHandle, port int) {
	defer s.wg.Done()

	id := e.ID()
	startedAt := time.Now()
	fails := 0
	lastHealthy := false
	sawProbe := false

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.Done():
			s.handleExit(e, h, port)
			return

		case <-s.quit:
			return

		case <-ticker.C:
		}

		status := e.Status()
		switch status {
		case domain.StatusStarting, domain.StatusRunning:
		default:
			// A command settled the chain; this process is no longer ours
			// to watch for health. Exit detection is already covered by
			// whoever settled it.
			return
		}
		if e.Handle() != h {
			// A restart replaced the process; the new monitor owns it.
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ProbeTimeout)
		err := s.prober.Probe(ctx, port)
		cancel()

		healthy := err == nil
		e.RecordHealth(healthy)
		if !sawProbe || healthy != lastHealthy {
			sawProbe = true
			lastHealthy = healthy
			ev := domain.ChainEvent{Type: domain.EventHealthChanged, ChainID: id, Healthy: healthy}
			if err != nil {
				ev.Error = err.Error()
			}
			s.publish(ev)
		}

		if healthy {
			fails = 0
			if status == domain.StatusStarting {
				s.promote(e)
			}
			continue
		}

		fails++
		switch status {
		case domain.StatusStarting:
			if time.Since(startedAt) > s.cfg.StartTimeout {
				s.log.Warn("chain failed to become healthy before start timeout", "chain", id, "timeout", s.cfg.StartTimeout)
				s.crash(e, h, port, "start timeout: node never became healthy")
				return
			}
		case domain.StatusRunning:
			if fails >= s.cfg.FailureThreshold {
				s.log.Warn("chain failed consecutive health probes", "chain", id, "fails", fails)
				s.crash(e, h, port, "health probes failed repeatedly")
				return
			}
		}
	}
}

// promote moves a Starting chain to Running under the execution token.
// A concurrent stop may have won the token first, so the status is
// rechecked after acquisition.
func (s *Supervisor) promote(e *registry.Entry) {
	e.Begin()
	defer e.End()

	if e.Status() != domain.StatusStarting {
		return
	}
	e.MarkRunning()
	s.log.Info("chain running", "chain", e.ID())
	s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: e.ID(), Status: domain.StatusRunning})
}

// handleExit finalizes a process that exited on its own. If a stop or
// shutdown is already settling the chain, that command owns the
// transition and this is a no-op.
func (s *Supervisor) handleExit(e *registry.Entry, h domain.ProcessHandle, port int) {
	e.Begin()
	defer e.End()

	status := e.Status()
	if status != domain.StatusStarting && status != domain.StatusRunning {
		return
	}
	if e.Handle() != h {
		// A restart already replaced this process; its exit is old news.
		return
	}

	id := e.ID()
	reason := exitReason(h)
	e.MarkCrashed(reason)
	s.ports.Release(port)
	s.log.Warn("chain process exited", "chain", id, "reason", reason)
	s.publish(domain.ChainEvent{Type: domain.EventStatusChanged, ChainID: id, Status: domain.StatusCrashed, Error: reason})
}
