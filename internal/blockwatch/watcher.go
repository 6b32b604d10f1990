package blockwatch

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/localchain-dev/localchain/internal/domain"
)

// pollInterval paces the HTTP fallback. Dev nodes mine instantly or on
// a block-time cadence, so sub-second polling buys nothing.
const pollInterval = time.Second

// watch follows new blocks for one chain until stop closes. It tries a
// websocket head subscription first; geth in dev mode serves HTTP only
// on the allocated port, so a failed dial degrades to polling.
func (s *Service) watch(st domain.ChainState, stop chan struct{}) {
	defer s.wg.Done()

	log := s.log.With("chain", st.ID)
	if err := s.subscribeHeads(st, stop, log); err != nil {
		select {
		case <-stop:
			return
		default:
		}
		log.Debug("head subscription unavailable, polling instead", "err", err)
		s.pollHeads(st, stop, log)
	}
}

// subscribeHeads streams heads over websocket. Any error, at dial time
// or mid-stream, is returned so the caller can fall back.
func (s *Service) subscribeHeads(st domain.ChainState, stop chan struct{}, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	client, err := ethclient.DialContext(ctx, st.WSURL())
	if err != nil {
		return err
	}
	defer client.Close()

	heads := make(chan *types.Header, 16)
	sub, err := client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-stop:
			return nil
		case err := <-sub.Err():
			return err
		case head := <-heads:
			s.emitByNumber(ctx, client, st.ID, head.Number, log)
		}
	}
}

// pollHeads polls the HTTP endpoint for new heads until stop closes.
func (s *Service) pollHeads(st domain.ChainState, stop chan struct{}, log *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	client, err := ethclient.DialContext(ctx, st.RPCURL())
	if err != nil {
		log.Debug("block polling unavailable", "err", err)
		return
	}
	defer client.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last uint64
	seeded := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		n, err := client.BlockNumber(ctx)
		if err != nil {
			continue
		}
		if !seeded {
			// First observation seeds the cursor; only blocks mined from
			// now on are streamed.
			seeded = true
			last = n
			continue
		}
		for last < n {
			last++
			s.emitByNumber(ctx, client, st.ID, new(big.Int).SetUint64(last), log)
		}
	}
}

func (s *Service) emitByNumber(ctx context.Context, client *ethclient.Client, chainID string, number *big.Int, log *slog.Logger) {
	block, err := client.BlockByNumber(ctx, number)
	if err != nil {
		log.Debug("failed to fetch block", "number", number, "err", err)
		return
	}
	s.blocks.Publish(domain.BlockEvent{ChainID: chainID, Block: summaryFromBlock(block)})
}
