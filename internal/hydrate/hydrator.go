package hydrate

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/RedBird96/detect-amm-imbalance/internal/arberr"
	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
	"github.com/RedBird96/detect-amm-imbalance/internal/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethlog "github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Caller is the subset of *ethclient.Client the Hydrator needs. A
// narrow interface keeps the Hydrator testable against a simulated or
// mocked backend (accounts/abi/bind/backends) without a live node.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Hydrator performs the one-shot batched reserve hydration that runs
// once at startup before the Subscriber begins streaming Sync events.
type Hydrator struct {
	client      Caller
	viewerAddr  common.Address
	batchSize   int
	concurrency int
	log         gethlog.Logger
	metrics     *metrics.Metrics
}

// New builds a Hydrator. concurrency bounds how many batches are
// in flight at once (independent reads, no shared mutable state until
// each batch's results are applied). m may be nil, in which case batch
// outcomes are not recorded.
func New(client Caller, viewerAddr common.Address, batchSize, concurrency int, logger gethlog.Logger, m *metrics.Metrics) *Hydrator {
	if batchSize <= 0 {
		batchSize = 800
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Hydrator{
		client:      client,
		viewerAddr:  viewerAddr,
		batchSize:   batchSize,
		concurrency: concurrency,
		log:         logger,
		metrics:     m,
	}
}

// Hydrate partitions idx's pools into fixed-size batches and invokes one
// aggregator call per batch. A failed batch is logged and skipped (its
// pools retain reserve 0); Hydrate never aborts on a single batch
// failure.
func (h *Hydrator) Hydrate(ctx context.Context, idx *domain.Index) error {
	addrs := idx.PoolAddresses()
	batches := chunk(addrs, h.batchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			if err := h.hydrateBatch(gctx, idx, batch); err != nil {
				var batchErr *arberr.HydrationBatchError
				if errors.As(err, &batchErr) {
					batchErr.BatchIndex = i
				}
				if h.log != nil {
					h.log.Warn("hydration batch failed, pools retain zero reserves",
						"batch", i, "size", len(batch), "err", err)
				}
				if h.metrics != nil {
					h.metrics.HydrationBatchesTotal.WithLabelValues("failure").Inc()
				}
				return nil
			}
			if h.metrics != nil {
				h.metrics.HydrationBatchesTotal.WithLabelValues("success").Inc()
				h.metrics.HydrationPoolsHydrated.Add(float64(len(batch)))
			}
			return nil // batch failures never abort hydration
		})
	}
	// errgroup.Wait only returns non-nil if a Go func returned an error,
	// which never happens above — batch failures are absorbed locally.
	return g.Wait()
}

func (h *Hydrator) hydrateBatch(ctx context.Context, idx *domain.Index, batch []domain.Address) error {
	data, err := viewerABI.Pack("viewPair", batch)
	if err != nil {
		return &arberr.HydrationBatchError{Cause: fmt.Errorf("pack viewPair: %w", err)}
	}

	out, err := h.client.CallContract(ctx, ethereum.CallMsg{
		To:   &h.viewerAddr,
		Data: data,
	}, nil)
	if err != nil {
		return &arberr.HydrationBatchError{Cause: fmt.Errorf("call viewPair: %w", err)}
	}

	var reserves []*big.Int
	if err := viewerABI.UnpackIntoInterface(&reserves, "viewPair", out); err != nil {
		return &arberr.HydrationBatchError{Cause: fmt.Errorf("unpack viewPair: %w", err)}
	}
	if len(reserves) != 2*len(batch) {
		return &arberr.HydrationBatchError{
			Cause: fmt.Errorf("viewPair returned %d reserves for %d pools", len(reserves), len(batch)),
		}
	}

	for i, addr := range batch {
		pool, ok := idx.Pool(addr)
		if !ok {
			continue
		}
		r0, r1 := new(domain.Uint256), new(domain.Uint256)
		if overflow := r0.SetFromBig(reserves[2*i]); overflow {
			return &arberr.HydrationBatchError{Cause: fmt.Errorf("reserve0 for pool %s overflows uint256", domain.AddressString(addr))}
		}
		if overflow := r1.SetFromBig(reserves[2*i+1]); overflow {
			return &arberr.HydrationBatchError{Cause: fmt.Errorf("reserve1 for pool %s overflows uint256", domain.AddressString(addr))}
		}
		pool.Reserve1 = r0
		pool.Reserve2 = r1
	}
	return nil
}

func chunk(addrs []domain.Address, size int) [][]domain.Address {
	var batches [][]domain.Address
	for i := 0; i < len(addrs); i += size {
		end := i + size
		if end > len(addrs) {
			end = len(addrs)
		}
		batches = append(batches, addrs[i:end])
	}
	return batches
}
