// Package blockwatch follows mined blocks on running chains and fans
// them out on a feed for stream subscribers. It prefers a websocket
// head subscription and falls back to polling when the node serves
// HTTP only.
package blockwatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/localchain-dev/localchain/internal/domain"
	"github.com/localchain-dev/localchain/internal/eventbus"
)

// ChainSource is the view of the orchestrator the block watcher needs:
// chain lookups and the lifecycle event bus that tells it when nodes
// come and go.
type ChainSource interface {
	Get(id string) (domain.ChainState, error)
	List() []domain.ChainState
	SubscribeEvents() (<-chan domain.ChainEvent, func())
}

// Service owns one watcher goroutine per running chain.
type Service struct {
	log    *slog.Logger
	source ChainSource

	blocks *eventbus.Bus[domain.BlockEvent]

	mu       sync.Mutex
	watchers map[string]chan struct{}
	wg       sync.WaitGroup
}

// NewService creates a block watcher fed by the given chain source.
func NewService(log *slog.Logger, source ChainSource) *Service {
	return &Service{
		log:      log.With("component", "blockwatch"),
		source:   source,
		blocks:   eventbus.New[domain.BlockEvent](),
		watchers: make(map[string]chan struct{}),
	}
}

// SubscribeBlocks registers a consumer of block events. Slow consumers
// miss events rather than stall the watchers.
func (s *Service) SubscribeBlocks() (<-chan domain.BlockEvent, func()) {
	return s.blocks.Subscribe()
}

// Run reacts to chain lifecycle events, spawning and stopping watchers
// as chains reach and leave Running. It blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	events, cancel := s.source.SubscribeEvents()
	defer cancel()

	// Chains that were already running before we subscribed.
	for _, st := range s.source.List() {
		if st.Status == domain.StatusRunning {
			s.ensureWatcher(st)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return nil
		case ev, ok := <-events:
			if !ok {
				s.stopAll()
				return nil
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Service) handleEvent(ev domain.ChainEvent) {
	switch ev.Type {
	case domain.EventStatusChanged:
		switch ev.Status {
		case domain.StatusRunning:
			st, err := s.source.Get(ev.ChainID)
			if err == nil {
				s.ensureWatcher(st)
			}
		case domain.StatusStopping, domain.StatusStopped, domain.StatusCrashed:
			s.stopWatcher(ev.ChainID)
		}
	case domain.EventChainDeleted:
		s.stopWatcher(ev.ChainID)
	}
}

func (s *Service) ensureWatcher(st domain.ChainState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watchers[st.ID]; ok {
		return
	}
	stop := make(chan struct{})
	s.watchers[st.ID] = stop
	s.wg.Add(1)
	go s.watch(st, stop)
}

func (s *Service) stopWatcher(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.watchers[id]; ok {
		close(stop)
		delete(s.watchers, id)
	}
}

func (s *Service) stopAll() {
	s.mu.Lock()
	for id, stop := range s.watchers {
		close(stop)
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// GetBlock fetches one block from the chain's node. Pass nil for the
// latest block.
func (s *Service) GetBlock(ctx context.Context, chainID string, number *big.Int) (domain.BlockDetail, error) {
	st, err := s.source.Get(chainID)
	if err != nil {
		return domain.BlockDetail{}, err
	}
	url := st.RPCURL()
	if url == "" {
		return domain.BlockDetail{}, fmt.Errorf("%w: chain %s has no running node", domain.ErrInvalidTransition, chainID)
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return domain.BlockDetail{}, fmt.Errorf("dialing node: %w", err)
	}
	defer client.Close()

	block, err := client.BlockByNumber(ctx, number)
	if err != nil {
		return domain.BlockDetail{}, fmt.Errorf("%w: block %v: %v", domain.ErrNotFound, number, err)
	}
	return detailFromBlock(block), nil
}

func summaryFromBlock(b *types.Block) domain.BlockSummary {
	return domain.BlockSummary{
		Number:   b.NumberU64(),
		Hash:     b.Hash().Hex(),
		Time:     b.Time(),
		GasUsed:  b.GasUsed(),
		GasLimit: b.GasLimit(),
		Miner:    b.Coinbase().Hex(),
		TxCount:  len(b.Transactions()),
	}
}

func detailFromBlock(b *types.Block) domain.BlockDetail {
	d := domain.BlockDetail{BlockSummary: summaryFromBlock(b)}
	for _, tx := range b.Transactions() {
		d.Transactions = append(d.Transactions, tx.Hash().Hex())
	}
	return d
}
