// Package client is the Go consumer of the Control API, used by the
// CLI subcommands that talk to a running daemon.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/localchain-dev/localchain/internal/domain"
)

// APIError is a non-2xx response decoded from the daemon's typed error
// payload.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon error (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// CreateChainRequest mirrors POST /api/chains.
type CreateChainRequest struct {
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Port      int      `json:"port,omitempty"`
	ChainID   uint64   `json:"chainId,omitempty"`
	BlockTime uint64   `json:"blockTime,omitempty"`
	ForkURL   string   `json:"forkUrl,omitempty"`
	ExtraArgs []string `json:"extraArgs,omitempty"`
	DataDir   string   `json:"dataDir,omitempty"`
}

// Client talks to one daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the daemon at baseURL, e.g.
// "http://127.0.0.1:3000".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Ping checks that the daemon is up.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// CreateChain registers a new chain.
func (c *Client) CreateChain(ctx context.Context, req CreateChainRequest) (domain.ChainState, error) {
	var st domain.ChainState
	err := c.do(ctx, http.MethodPost, "/api/chains", req, &st)
	return st, err
}

// ListChains returns all chains.
func (c *Client) ListChains(ctx context.Context) ([]domain.ChainState, error) {
	var payload struct {
		Chains []domain.ChainState `json:"chains"`
	}
	err := c.do(ctx, http.MethodGet, "/api/chains", nil, &payload)
	return payload.Chains, err
}

// GetChain returns one chain.
func (c *Client) GetChain(ctx context.Context, id string) (domain.ChainState, error) {
	var st domain.ChainState
	err := c.do(ctx, http.MethodGet, "/api/chains/"+id, nil, &st)
	return st, err
}

// Start asks the daemon to start the chain.
func (c *Client) Start(ctx context.Context, id string) (domain.ChainState, error) {
	var st domain.ChainState
	err := c.do(ctx, http.MethodPost, "/api/chains/"+id+"/start", nil, &st)
	return st, err
}

// Stop asks the daemon to stop the chain.
func (c *Client) Stop(ctx context.Context, id string) (domain.ChainState, error) {
	var st domain.ChainState
	err := c.do(ctx, http.MethodPost, "/api/chains/"+id+"/stop", nil, &st)
	return st, err
}

// Restart asks the daemon to restart the chain.
func (c *Client) Restart(ctx context.Context, id string) (domain.ChainState, error) {
	var st domain.ChainState
	err := c.do(ctx, http.MethodPost, "/api/chains/"+id+"/restart", nil, &st)
	return st, err
}

// DeleteChain removes the chain.
func (c *Client) DeleteChain(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/chains/"+id, nil, nil)
}

// Logs fetches buffered log lines; tail limits to the last n lines when
// positive.
func (c *Client) Logs(ctx context.Context, id string, tail int) ([]domain.LogLine, error) {
	path := "/api/chains/" + id + "/logs"
	if tail > 0 {
		path += fmt.Sprintf("?tail=%d", tail)
	}
	var payload struct {
		Lines []domain.LogLine `json:"lines"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &payload)
	return payload.Lines, err
}

// GetBlock fetches one block; number is a decimal string or "latest".
func (c *Client) GetBlock(ctx context.Context, id, number string) (domain.BlockDetail, error) {
	var detail domain.BlockDetail
	err := c.do(ctx, http.MethodGet, "/api/chains/"+id+"/blocks/"+number, nil, &detail)
	return detail, err
}

// WaitForStatus polls until the chain reaches want. It fails fast when
// the chain lands in Crashed while waiting for anything else.
func (c *Client) WaitForStatus(ctx context.Context, id string, want domain.ChainStatus, timeout time.Duration) (domain.ChainState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last domain.ChainState
	err := retry.Do(
		func() error {
			st, err := c.GetChain(ctx, id)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			last = st
			if st.Status == want {
				return nil
			}
			if st.Status == domain.StatusCrashed {
				return retry.Unrecoverable(fmt.Errorf("chain crashed: %s", st.LastError))
			}
			return fmt.Errorf("chain is %s, waiting for %s", st.Status, want)
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	return last, err
}

// StreamLogs follows the chain's log stream, invoking fn per line until
// fn errors, the stream ends, or ctx is canceled.
func (c *Client) StreamLogs(ctx context.Context, id string, fn func(domain.LogLine) error) error {
	return c.stream(ctx, "/api/chains/"+id+"/logstream", func(eventName string, data []byte) error {
		if eventName != "log" {
			return nil
		}
		var line domain.LogLine
		if err := json.Unmarshal(data, &line); err != nil {
			return fmt.Errorf("decoding log line: %w", err)
		}
		return fn(line)
	})
}

// StreamBlocks follows the chain's mined blocks.
func (c *Client) StreamBlocks(ctx context.Context, id string, fn func(domain.BlockSummary) error) error {
	return c.stream(ctx, "/api/chains/"+id+"/blockstream", func(eventName string, data []byte) error {
		if eventName != "block" {
			return nil
		}
		var sum domain.BlockSummary
		if err := json.Unmarshal(data, &sum); err != nil {
			return fmt.Errorf("decoding block: %w", err)
		}
		return fn(sum)
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reaching daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// stream opens an SSE endpoint and dispatches events to handle. The
// request bypasses the client timeout; lifetime is bound to ctx.
func (c *Client) stream(ctx context.Context, path string, handle func(eventName string, data []byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	streamClient := &http.Client{Transport: c.http.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("reaching daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	var eventName string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := handle(eventName, []byte(strings.TrimPrefix(line, "data: "))); err != nil {
				return err
			}
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: "internal"}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = resp.Status
	}
	return apiErr
}
