package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/localchain-dev/localchain/internal/domain"
)

// createChainRequest is the POST /api/chains payload.
type createChainRequest struct {
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Port      int      `json:"port,omitempty"`
	ChainID   uint64   `json:"chainId,omitempty"`
	BlockTime uint64   `json:"blockTime,omitempty"`
	ForkURL   string   `json:"forkUrl,omitempty"`
	ExtraArgs []string `json:"extraArgs,omitempty"`
	DataDir   string   `json:"dataDir,omitempty"`
}

func (r createChainRequest) toConfig() domain.ChainConfig {
	kind := domain.ChainKind(r.Kind)
	if r.Kind == "" {
		kind = domain.KindAnvil
	}
	return domain.ChainConfig{
		Kind:      kind,
		Name:      r.Name,
		Port:      r.Port,
		ChainID:   r.ChainID,
		BlockTime: r.BlockTime,
		ForkURL:   r.ForkURL,
		ExtraArgs: r.ExtraArgs,
		DataDir:   r.DataDir,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"chains": s.orch.List()})
}

func (s *Server) handleCreateChain(w http.ResponseWriter, r *http.Request) {
	var req createChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidConfig, err))
		return
	}

	st, err := s.orch.Create(req.toConfig())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	st, err := s.orch.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleCommand(w, r, s.orch.Start)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.handleCommand(w, r, s.orch.Stop)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.handleCommand(w, r, s.orch.Restart)
}

// handleCommand runs a lifecycle command and answers 202 with the chain
// snapshot; completion is observed through reads or the event stream.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, cmd func(ctx context.Context, id string) error) {
	id := r.PathValue("id")
	if err := cmd(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.orch.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleDeleteChain(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	buf, err := s.orch.Logs(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	lines := buf.Lines()
	if tail := r.URL.Query().Get("tail"); tail != "" {
		n, err := strconv.Atoi(tail)
		if err != nil || n < 0 {
			s.writeError(w, fmt.Errorf("%w: invalid tail %q", domain.ErrInvalidConfig, tail))
			return
		}
		if n < len(lines) {
			lines = lines[len(lines)-n:]
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	var number *big.Int
	if raw := r.PathValue("number"); raw != "latest" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: invalid block number %q", domain.ErrInvalidConfig, raw))
			return
		}
		number = new(big.Int).SetUint64(n)
	}

	detail, err := s.blocks.GetBlock(r.Context(), r.PathValue("id"), number)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to encode response", "err", err)
	}
}

// apiError is the typed error payload of every non-2xx response.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidConfig):
		status, code = http.StatusBadRequest, "invalid_config"
	case errors.Is(err, domain.ErrBusy):
		status, code = http.StatusConflict, "busy"
	case errors.Is(err, domain.ErrAlreadyExists):
		status, code = http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrNoPortAvailable):
		status, code = http.StatusServiceUnavailable, "no_port_available"
	case errors.Is(err, domain.ErrShuttingDown):
		status, code = http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, domain.ErrSpawnFailed):
		status, code = http.StatusBadGateway, "spawn_failed"
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, apiError{Error: err.Error(), Code: code})
}
