// Package runner launches, signals, and reaps external node processes.
// Each Handle owns exactly one process; output is pumped into the
// chain's log buffer until the process exits.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/localchain-dev/localchain/internal/config"
	"github.com/localchain-dev/localchain/internal/domain"
)

// killGrace bounds how long Terminate waits for the kernel to deliver a
// SIGKILL before reporting ErrKillFailed.
const killGrace = 5 * time.Second

// LineSink receives captured output lines. *logbuf.Buffer satisfies it.
type LineSink interface {
	Append(source domain.LogSource, text string)
}

// Handle implements domain.ProcessHandle for one spawned process.
type Handle struct {
	pid  int
	cmd  *exec.Cmd
	tty  *os.File // non-nil in PTY mode
	done chan struct{}
	log  *slog.Logger

	mu      sync.Mutex
	exitErr error
}

// PID returns the OS process id.
func (h *Handle) PID() int { return h.pid }

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitErr returns the process exit error, valid after Done is closed.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Terminate sends SIGTERM and escalates to SIGKILL after grace. Always
// returns once the process is confirmed reaped, or ErrKillFailed if the
// OS refuses even forced termination.
func (h *Handle) Terminate(ctx context.Context, grace time.Duration) error {
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.log.Warn("SIGTERM failed, escalating to SIGKILL", "pid", h.pid, "err", err)
		return h.forceKill()
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return h.forceKill()
	case <-time.After(grace):
		h.log.Warn("process ignored SIGTERM, force killing", "pid", h.pid, "grace", grace)
		return h.forceKill()
	}
}

func (h *Handle) forceKill() error {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("%w: pid %d: %v", domain.ErrKillFailed, h.pid, err)
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(killGrace):
		return fmt.Errorf("%w: pid %d did not exit after SIGKILL", domain.ErrKillFailed, h.pid)
	}
}

// Runner spawns node processes per the runtime configuration.
type Runner struct {
	cfg *config.RuntimeConfig
	log *slog.Logger
}

// NewRunner creates a process runner.
func NewRunner(cfg *config.RuntimeConfig, log *slog.Logger) *Runner {
	return &Runner{cfg: cfg, log: log.With("component", "runner")}
}

// Spawn launches the node binary for the chain with its derived
// arguments, wires output capture into sink, and returns without
// blocking on process exit. The reader pump and the reaper run until
// the process dies.
func (r *Runner) Spawn(ctx context.Context, chainCfg domain.ChainConfig, port int, dataDir string, sink LineSink) (domain.ProcessHandle, error) {
	args, err := BuildArgs(chainCfg, port, dataDir)
	if err != nil {
		return nil, err
	}

	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %v", domain.ErrSpawnFailed, err)
		}
	}

	bin := r.cfg.Binary(chainCfg.Kind)
	cmd := exec.Command(bin, args...)
	// Own process group so signals never propagate to the daemon
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	h := &Handle{cmd: cmd, done: make(chan struct{}), log: r.log}
	var pumps sync.WaitGroup

	if r.cfg.UsePTY {
		// A pseudo-terminal keeps binaries like anvil line-buffered and
		// colorized; stdout and stderr arrive interleaved on one stream.
		tty, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
		}
		h.tty = tty
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			pump(tty, domain.LogStdout, sink)
		}()
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSpawnFailed, err)
		}
		pumps.Add(2)
		go func() {
			defer pumps.Done()
			pump(stdout, domain.LogStdout, sink)
		}()
		go func() {
			defer pumps.Done()
			pump(stderr, domain.LogStderr, sink)
		}()
	}

	h.pid = cmd.Process.Pid
	r.log.Debug("spawned node process", "binary", bin, "pid", h.pid, "port", port)

	// Reaper: wait for the pumps to hit EOF, then collect the exit
	// status so no zombie is left behind.
	go func() {
		pumps.Wait()
		err := cmd.Wait()
		if h.tty != nil {
			_ = h.tty.Close()
		}
		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

// pump copies one output stream into the sink line by line until EOF.
// PTY reads end with EIO when the child exits; that is a normal EOF.
func pump(rd io.Reader, source domain.LogSource, sink LineSink) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink.Append(source, scanner.Text())
	}
}
