// Package health verifies that a running node is accepting RPC
// connections on its assigned port.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/localchain-dev/localchain/internal/config"
)

// Prober performs one lightweight check per call: a TCP connect to the
// chain's loopback endpoint, optionally followed by a minimal JSON-RPC
// handshake. A single failure is expected noise; escalation on repeated
// failures is the supervisor's job.
type Prober struct {
	timeout   time.Duration
	handshake bool
	log       *slog.Logger
}

// NewProber creates a prober from the runtime configuration.
func NewProber(cfg *config.RuntimeConfig, log *slog.Logger) *Prober {
	return &Prober{
		timeout:   cfg.ProbeTimeout,
		handshake: cfg.RPCHandshake,
		log:       log.With("component", "health"),
	}
}

// Probe checks the node listening on 127.0.0.1:port. It returns nil on
// success and the connect/handshake error otherwise.
func (p *Prober) Probe(ctx context.Context, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp connect %s: %w", addr, err)
	}
	_ = conn.Close()

	if !p.handshake {
		return nil
	}
	return p.rpcHandshake(ctx, addr)
}

// rpcHandshake issues eth_blockNumber, the cheapest call every dev node
// kind answers, to confirm the endpoint speaks JSON-RPC rather than
// merely accepting connections.
func (p *Prober) rpcHandshake(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := rpc.DialContext(ctx, "http://"+addr)
	if err != nil {
		return fmt.Errorf("rpc dial %s: %w", addr, err)
	}
	defer client.Close()

	var blockNumber string
	if err := client.CallContext(ctx, &blockNumber, "eth_blockNumber"); err != nil {
		return fmt.Errorf("eth_blockNumber %s: %w", addr, err)
	}
	return nil
}
