package runner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localchain-dev/localchain/internal/config"
	"github.com/localchain-dev/localchain/internal/domain"
)

// testSink collects captured lines for assertions.
type testSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *testSink) Append(_ domain.LogSource, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *testSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// fakeNode writes a shell script standing in for a node binary. The
// runner launches whatever the config maps the chain kind to, so tests
// point the anvil kind at the script.
func fakeNode(t *testing.T, script string) *config.RuntimeConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakenode")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return &config.RuntimeConfig{
		Binaries: map[domain.ChainKind]string{domain.KindAnvil: path},
	}
}

func spawn(t *testing.T, cfg *config.RuntimeConfig, sink LineSink) domain.ProcessHandle {
	t.Helper()
	r := NewRunner(cfg, slog.Default())
	h, err := r.Spawn(context.Background(), domain.ChainConfig{Kind: domain.KindAnvil, Name: "t"}, 12345, "", sink)
	require.NoError(t, err)
	return h
}

func waitDone(t *testing.T, h domain.ProcessHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process was not reaped in time")
	}
}

func TestSpawn_CapturesOutputAndReaps(t *testing.T) {
	cfg := fakeNode(t, `echo hello; echo world >&2`)
	sink := &testSink{}

	h := spawn(t, cfg, sink)
	require.NotZero(t, h.PID())
	waitDone(t, h)

	assert.NoError(t, h.ExitErr())
	assert.ElementsMatch(t, []string{"hello", "world"}, sink.snapshot())
}

func TestSpawn_MissingBinary(t *testing.T) {
	cfg := &config.RuntimeConfig{
		Binaries: map[domain.ChainKind]string{domain.KindAnvil: "/nonexistent/definitely-not-a-node"},
	}
	r := NewRunner(cfg, slog.Default())

	_, err := r.Spawn(context.Background(), domain.ChainConfig{Kind: domain.KindAnvil, Name: "t"}, 12345, "", &testSink{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSpawnFailed)
}

func TestSpawn_UnexpectedExitCode(t *testing.T) {
	cfg := fakeNode(t, `exit 3`)
	h := spawn(t, cfg, &testSink{})
	waitDone(t, h)
	require.Error(t, h.ExitErr())
}

func TestTerminate_Graceful(t *testing.T) {
	cfg := fakeNode(t, `exec sleep 60`)
	h := spawn(t, cfg, &testSink{})

	start := time.Now()
	err := h.Terminate(context.Background(), 10*time.Second)
	require.NoError(t, err)

	// SIGTERM alone must have sufficed, well before the grace deadline
	assert.Less(t, time.Since(start), 5*time.Second)
	waitDone(t, h)
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	cfg := fakeNode(t, `trap '' TERM; while true; do sleep 1; done`)
	h := spawn(t, cfg, &testSink{})

	err := h.Terminate(context.Background(), 500*time.Millisecond)
	require.NoError(t, err)
	waitDone(t, h)
}

func TestTerminate_AlreadyExited(t *testing.T) {
	cfg := fakeNode(t, `true`)
	h := spawn(t, cfg, &testSink{})
	waitDone(t, h)

	assert.NoError(t, h.Terminate(context.Background(), time.Second))
}

func TestSpawn_CreatesDataDir(t *testing.T) {
	cfg := fakeNode(t, `true`)
	dataDir := filepath.Join(t.TempDir(), "chains", "t")

	r := NewRunner(cfg, slog.Default())
	h, err := r.Spawn(context.Background(), domain.ChainConfig{Kind: domain.KindAnvil, Name: "t"}, 12345, dataDir, &testSink{})
	require.NoError(t, err)
	waitDone(t, h)

	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
