package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleLogStream replays the chain's buffered log lines, then follows
// live output until the client disconnects or the chain is deleted.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	buf, err := s.orch.Logs(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	replay, ch, cancel := buf.Subscribe()
	defer cancel()

	for _, line := range replay {
		writeSSE(w, "log", line)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-ch:
			if !ok {
				// Chain deleted; the stream ends with it.
				return
			}
			writeSSE(w, "log", line)
			flusher.Flush()
		}
	}
}

// handleBlockStream follows mined blocks for one chain.
func (s *Server) handleBlockStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.orch.Get(id); err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	blocks, cancel := s.blocks.SubscribeBlocks()
	defer cancel()
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-blocks:
			if !ok {
				return
			}
			if ev.ChainID != id {
				continue
			}
			writeSSE(w, "block", ev.Block)
			flusher.Flush()
		}
	}
}

// handleEvents streams all chain lifecycle events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := beginSSE(w)
	if !ok {
		return
	}

	events, cancel := s.orch.SubscribeEvents()
	defer cancel()
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, string(ev.Type), ev)
			flusher.Flush()
		}
	}
}

func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return flusher, true
}

func writeSSE(w http.ResponseWriter, eventName string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, data)
}
