package supervisor

import (
	"context"

	"github.com/localchain-dev/localchain/internal/domain"
	"github.com/localchain-dev/localchain/internal/runner"
)

// ProcessRunner launches node processes. *runner.Runner is the real
// implementation; tests substitute fakes.
type ProcessRunner interface {
	Spawn(ctx context.Context, cfg domain.ChainConfig, port int, dataDir string, sink runner.LineSink) (domain.ProcessHandle, error)
}

// HealthProber verifies a node is accepting RPC connections on a port.
type HealthProber interface {
	Probe(ctx context.Context, port int) error
}
