package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localchain-dev/localchain/internal/config"
	"github.com/localchain-dev/localchain/internal/domain"
	"github.com/localchain-dev/localchain/internal/netalloc"
	"github.com/localchain-dev/localchain/internal/registry"
	"github.com/localchain-dev/localchain/internal/runner"
)

type fakeHandle struct {
	pid  int
	done chan struct{}

	mu      sync.Mutex
	exitErr error
	exited  bool
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, done: make(chan struct{})}
}

func (h *fakeHandle) PID() int              { return h.pid }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *fakeHandle) Terminate(ctx context.Context, grace time.Duration) error {
	h.exit(nil)
	return nil
}

func (h *fakeHandle) exit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return
	}
	h.exited = true
	h.exitErr = err
	close(h.done)
}

type fakeRunner struct {
	mu      sync.Mutex
	spawns  int
	ports   []int
	handles []*fakeHandle
	fail    error
	gate    chan struct{} // when set, Spawn blocks here until closed
}

func (r *fakeRunner) Spawn(ctx context.Context, cfg domain.ChainConfig, port int, dataDir string, sink runner.LineSink) (domain.ProcessHandle, error) {
	r.mu.Lock()
	r.spawns++
	if r.fail != nil {
		r.mu.Unlock()
		return nil, r.fail
	}
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	h := newFakeHandle(1000 + r.spawns)
	r.ports = append(r.ports, port)
	r.handles = append(r.handles, h)
	return h, nil
}

func (r *fakeRunner) spawnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawns
}

func (r *fakeRunner) lastHandle() *fakeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handles) == 0 {
		return nil
	}
	return r.handles[len(r.handles)-1]
}

func (r *fakeRunner) lastPort() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ports) == 0 {
		return 0
	}
	return r.ports[len(r.ports)-1]
}

type fakeProber struct {
	healthy atomic.Bool
}

func (p *fakeProber) Probe(ctx context.Context, port int) error {
	if p.healthy.Load() {
		return nil
	}
	return errors.New("connection refused")
}

type harness struct {
	sup    *Supervisor
	reg    *registry.Registry
	ports  *netalloc.Allocator
	runner *fakeRunner
	prober *fakeProber
	cfg    *config.RuntimeConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.RuntimeConfig{
		DataRoot:         t.TempDir(),
		PortRangeStart:   34100,
		PortRangeEnd:     34199,
		ProbeInterval:    5 * time.Millisecond,
		ProbeTimeout:     50 * time.Millisecond,
		FailureThreshold: 3,
		StartTimeout:     500 * time.Millisecond,
		StopTimeout:      time.Second,
		LogBufferLines:   100,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.NewRegistry(cfg)
	ports := netalloc.NewAllocator(cfg, log)
	run := &fakeRunner{}
	prober := &fakeProber{}
	return &harness{
		sup:    NewSupervisor(cfg, log, reg, ports, run, prober),
		reg:    reg,
		ports:  ports,
		runner: run,
		prober: prober,
		cfg:    cfg,
	}
}

func (h *harness) create(t *testing.T, name string) string {
	t.Helper()
	st, err := h.sup.Create(domain.ChainConfig{Kind: domain.KindAnvil, Name: name})
	require.NoError(t, err)
	return st.ID
}

func (h *harness) status(t *testing.T, id string) domain.ChainStatus {
	t.Helper()
	st, err := h.sup.Get(id)
	require.NoError(t, err)
	return st.Status
}

func (h *harness) waitStatus(t *testing.T, id string, want domain.ChainStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.status(t, id) == want
	}, 2*time.Second, time.Millisecond, "chain %s never reached %s", id, want)
}

func TestStartProgressesToRunning(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	require.Equal(t, domain.StatusCreated, h.status(t, id))

	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	st, err := h.sup.Get(id)
	require.NoError(t, err)
	assert.NotZero(t, st.Port)
	assert.True(t, h.ports.Reserved(st.Port))
	assert.NotNil(t, st.LastHealth)
}

func TestStartEmitsEvents(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")

	events, cancel := h.sup.SubscribeEvents()
	defer cancel()

	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	var statuses []domain.ChainStatus
	deadline := time.After(2 * time.Second)
	for len(statuses) < 2 {
		select {
		case ev := <-events:
			if ev.Type == domain.EventStatusChanged {
				require.Equal(t, id, ev.ChainID)
				statuses = append(statuses, ev.Status)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status events, got %v", statuses)
		}
	}
	assert.Equal(t, []domain.ChainStatus{domain.StatusStarting, domain.StatusRunning}, statuses)
}

func TestStartSpawnFailureReleasesPort(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.runner.fail = fmt.Errorf("%w: no such binary", domain.ErrSpawnFailed)

	err := h.sup.Start(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrSpawnFailed)
	require.Equal(t, domain.StatusCreated, h.status(t, id))

	// The reserved port must be returned to the pool.
	assert.False(t, h.ports.Reserved(h.cfg.PortRangeStart))

	// The chain stays startable once the failure is corrected.
	h.runner.fail = nil
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)
}

func TestStopReleasesPortAndAllowsDelete(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	st, err := h.sup.Get(id)
	require.NoError(t, err)
	port := st.Port

	require.NoError(t, h.sup.Stop(context.Background(), id))
	h.waitStatus(t, id, domain.StatusStopped)
	assert.False(t, h.ports.Reserved(port))

	require.NoError(t, h.sup.Delete(context.Background(), id))
	_, err = h.sup.Get(id)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStopFromStoppedIsInvalid(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)
	require.NoError(t, h.sup.Stop(context.Background(), id))
	h.waitStatus(t, id, domain.StatusStopped)

	err := h.sup.Stop(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestStartWhileRunningIsInvalid(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	err := h.sup.Start(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 1, h.runner.spawnCount())
}

func TestOutOfBandExitMarksCrashed(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	st, err := h.sup.Get(id)
	require.NoError(t, err)
	port := st.Port

	h.runner.lastHandle().exit(errors.New("exit status 137"))
	h.waitStatus(t, id, domain.StatusCrashed)

	st, err = h.sup.Get(id)
	require.NoError(t, err)
	assert.Contains(t, st.LastError, "exit status 137")
	assert.False(t, h.ports.Reserved(port))
}

func TestHealthFailureBelowThresholdTolerated(t *testing.T) {
	h := newHarness(t)
	h.cfg.FailureThreshold = 50
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	// A bounded run of failed probes must not crash the chain while the
	// threshold is not reached.
	h.prober.healthy.Store(false)
	time.Sleep(5 * h.cfg.ProbeInterval)
	h.prober.healthy.Store(true)

	time.Sleep(5 * h.cfg.ProbeInterval)
	assert.Equal(t, domain.StatusRunning, h.status(t, id))
}

func TestHealthFailureAtThresholdCrashes(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	h.prober.healthy.Store(false)
	h.waitStatus(t, id, domain.StatusCrashed)
}

func TestStartTimeoutCrashes(t *testing.T) {
	h := newHarness(t)
	h.cfg.StartTimeout = 30 * time.Millisecond
	id := h.create(t, "dev")

	// Prober never succeeds; the chain must not stay Starting forever.
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusCrashed)
}

func TestCrashedChainOnlyDeletable(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)
	h.runner.lastHandle().exit(errors.New("boom"))
	h.waitStatus(t, id, domain.StatusCrashed)

	require.ErrorIs(t, h.sup.Start(context.Background(), id), domain.ErrInvalidTransition)
	require.ErrorIs(t, h.sup.Stop(context.Background(), id), domain.ErrInvalidTransition)
	require.ErrorIs(t, h.sup.Restart(context.Background(), id), domain.ErrInvalidTransition)
	require.NoError(t, h.sup.Delete(context.Background(), id))
}

func TestConcurrentStartsGetUniquePorts(t *testing.T) {
	h := newHarness(t)
	h.prober.healthy.Store(true)

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = h.create(t, fmt.Sprintf("chain-%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = h.sup.Start(context.Background(), id)
		}(i, id)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "start %s", ids[i])
	}

	seen := make(map[int]bool)
	for _, id := range ids {
		h.waitStatus(t, id, domain.StatusRunning)
		st, err := h.sup.Get(id)
		require.NoError(t, err)
		require.False(t, seen[st.Port], "port %d assigned twice", st.Port)
		seen[st.Port] = true
	}
	require.NoError(t, h.reg.CheckInvariants())
}

func TestRestartKeepsPort(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	st, err := h.sup.Get(id)
	require.NoError(t, err)
	firstPort := st.Port
	firstPID := st.PID

	require.NoError(t, h.sup.Restart(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	require.Eventually(t, func() bool {
		st, err := h.sup.Get(id)
		return err == nil && st.PID != firstPID
	}, 2*time.Second, time.Millisecond)

	st, err = h.sup.Get(id)
	require.NoError(t, err)
	assert.Equal(t, firstPort, st.Port)
	assert.Equal(t, 2, h.runner.spawnCount())
}

func TestRestartFromStoppedStarts(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)
	require.NoError(t, h.sup.Stop(context.Background(), id))
	h.waitStatus(t, id, domain.StatusStopped)

	require.NoError(t, h.sup.Restart(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)
}

func TestDeleteRunningChainRejected(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	err := h.sup.Delete(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestShutdownStopsAllChains(t *testing.T) {
	h := newHarness(t)
	h.prober.healthy.Store(true)

	var ids []string
	for i := 0; i < 3; i++ {
		id := h.create(t, fmt.Sprintf("chain-%d", i))
		require.NoError(t, h.sup.Start(context.Background(), id))
		ids = append(ids, id)
	}
	for _, id := range ids {
		h.waitStatus(t, id, domain.StatusRunning)
	}

	require.NoError(t, h.sup.Shutdown(context.Background()))
	for _, id := range ids {
		assert.Equal(t, domain.StatusStopped, h.status(t, id))
	}

	_, err := h.sup.Create(domain.ChainConfig{Kind: domain.KindAnvil, Name: "late"})
	require.ErrorIs(t, err, domain.ErrShuttingDown)
	require.ErrorIs(t, h.sup.Start(context.Background(), ids[0]), domain.ErrShuttingDown)
}

func TestHealthEventPublishedOnTransition(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")

	events, cancel := h.sup.SubscribeEvents()
	defer cancel()

	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)

	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-events:
				if ev.Type == domain.EventHealthChanged && ev.Healthy {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, time.Millisecond)
}

func TestCommandsDuringSpawnWindowAreBusy(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)

	gate := make(chan struct{})
	h.runner.gate = gate

	startErr := make(chan error, 1)
	go func() {
		startErr <- h.sup.Start(context.Background(), id)
	}()
	require.Eventually(t, func() bool {
		return h.runner.spawnCount() == 1
	}, 2*time.Second, time.Millisecond, "first start never reached the runner")

	// The first start holds the execution token inside Spawn; a second
	// command must fail fast instead of queueing a double spawn.
	require.ErrorIs(t, h.sup.Start(context.Background(), id), domain.ErrBusy)
	require.ErrorIs(t, h.sup.Stop(context.Background(), id), domain.ErrBusy)
	require.ErrorIs(t, h.sup.Restart(context.Background(), id), domain.ErrBusy)

	close(gate)
	require.NoError(t, <-startErr)
	h.waitStatus(t, id, domain.StatusRunning)
	assert.Equal(t, 1, h.runner.spawnCount())
}

func TestStopWhileStartingStopsChain(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")

	// Prober never succeeds, so the chain holds in Starting.
	require.NoError(t, h.sup.Start(context.Background(), id))
	require.Equal(t, domain.StatusStarting, h.status(t, id))

	require.NoError(t, h.sup.Stop(context.Background(), id))
	h.waitStatus(t, id, domain.StatusStopped)
	assert.Equal(t, 1, h.runner.spawnCount())
	assert.False(t, h.ports.Reserved(h.cfg.PortRangeStart))
}

func TestStalledEventSubscriberDoesNotBlockCommands(t *testing.T) {
	h := newHarness(t)

	// Subscribe but never read; far more events than the subscriber
	// backlog holds must not stall a single command.
	_, cancel := h.sup.SubscribeEvents()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 400; i++ {
			_, err := h.sup.Create(domain.ChainConfig{Kind: domain.KindAnvil, Name: fmt.Sprintf("chain-%d", i)})
			assert.NoError(t, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("commands stalled behind an unread event subscription")
	}

	// The full lifecycle keeps working with the subscriber backlog full.
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)
	require.NoError(t, h.sup.Start(context.Background(), id))
	h.waitStatus(t, id, domain.StatusRunning)
	require.NoError(t, h.sup.Stop(context.Background(), id))
	h.waitStatus(t, id, domain.StatusStopped)
}

func TestStartRacingShutdownLeavesNoProcess(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, "dev")
	h.prober.healthy.Store(true)

	gate := make(chan struct{})
	h.runner.gate = gate

	startErr := make(chan error, 1)
	go func() {
		startErr <- h.sup.Start(context.Background(), id)
	}()
	require.Eventually(t, func() bool {
		return h.runner.spawnCount() == 1
	}, 2*time.Second, time.Millisecond, "start never reached the runner")

	// Shutdown drains while the spawn is still in flight, so its snapshot
	// cannot see the new process.
	shutErr := make(chan error, 1)
	go func() {
		shutErr <- h.sup.Shutdown(context.Background())
	}()
	require.Eventually(t, func() bool {
		_, err := h.sup.Create(domain.ChainConfig{Kind: domain.KindAnvil, Name: "late"})
		return errors.Is(err, domain.ErrShuttingDown)
	}, 2*time.Second, time.Millisecond, "shutdown never began draining")

	close(gate)
	require.ErrorIs(t, <-startErr, domain.ErrShuttingDown)
	require.NoError(t, <-shutErr)

	// The late process must be settled, not leaked past the drain.
	require.Equal(t, domain.StatusStopped, h.status(t, id))
	assert.False(t, h.ports.Reserved(h.cfg.PortRangeStart))
	handle := h.runner.lastHandle()
	require.NotNil(t, handle)
	select {
	case <-handle.Done():
	default:
		t.Fatal("process spawned during shutdown was left running")
	}
}
