// Package server exposes the orchestrator over HTTP: a JSON control
// surface for chain lifecycle plus SSE streams for logs, blocks and
// status events. The browser UI and the CLI client are both consumers.
package server

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/localchain-dev/localchain/internal/config"
	"github.com/localchain-dev/localchain/internal/domain"
	"github.com/localchain-dev/localchain/internal/logbuf"
)

// Orchestrator is the control-plane surface the API exposes.
type Orchestrator interface {
	Create(cfg domain.ChainConfig) (domain.ChainState, error)
	List() []domain.ChainState
	Get(id string) (domain.ChainState, error)
	Logs(id string) (*logbuf.Buffer, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	SubscribeEvents() (<-chan domain.ChainEvent, func())
}

// BlockSource serves mined-block streams and single-block queries.
type BlockSource interface {
	SubscribeBlocks() (<-chan domain.BlockEvent, func())
	GetBlock(ctx context.Context, chainID string, number *big.Int) (domain.BlockDetail, error)
}

// Server is the Control API.
type Server struct {
	cfg    *config.RuntimeConfig
	log    *slog.Logger
	orch   Orchestrator
	blocks BlockSource
}

// NewServer wires the Control API to the orchestrator and block source.
func NewServer(cfg *config.RuntimeConfig, log *slog.Logger, orch Orchestrator, blocks BlockSource) *Server {
	return &Server{
		cfg:    cfg,
		log:    log.With("component", "server"),
		orch:   orch,
		blocks: blocks,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/chains", s.handleListChains)
	mux.HandleFunc("POST /api/chains", s.handleCreateChain)
	mux.HandleFunc("GET /api/chains/{id}", s.handleGetChain)
	mux.HandleFunc("POST /api/chains/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/chains/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /api/chains/{id}/restart", s.handleRestart)
	mux.HandleFunc("DELETE /api/chains/{id}", s.handleDeleteChain)
	mux.HandleFunc("GET /api/chains/{id}/logs", s.handleLogs)
	mux.HandleFunc("GET /api/chains/{id}/logstream", s.handleLogStream)
	mux.HandleFunc("GET /api/chains/{id}/blockstream", s.handleBlockStream)
	mux.HandleFunc("GET /api/chains/{id}/blocks/{number}", s.handleGetBlock)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	return mux
}

// Run serves the API until ctx is canceled, then drains in-flight
// requests. SSE streams observe the shutdown through the base context.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("control api listening", "addr", s.cfg.ListenAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
