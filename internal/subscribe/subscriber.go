package subscribe

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/RedBird96/detect-amm-imbalance/internal/arberr"
	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
	"github.com/RedBird96/detect-amm-imbalance/internal/metrics"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethlog "github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// LogSubscriber is the subset of *ethclient.Client the Subscriber needs
// to open a filtered log subscription over a long-lived WSS connection.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Dialer builds a fresh LogSubscriber connection, used on initial
// subscribe and on every reconnect; the prior connection is discarded.
type Dialer func(ctx context.Context) (LogSubscriber, error)

// Handler is invoked once per deduplicated Sync event.
type Handler func(pool domain.Address, r0, r1 *domain.Uint256)

// Options configures a Subscriber, defaulting to the bounds from spec
// §5.
type Options struct {
	BatchSize         int
	InterBatchDelay   time.Duration
	ReconnectInterval time.Duration
	DispatchLimit     int
	DedupCapacity     int
	DedupTTL          time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 800
	}
	if o.InterBatchDelay <= 0 {
		o.InterBatchDelay = 100 * time.Millisecond
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = 5000 * time.Millisecond
	}
	if o.DispatchLimit <= 0 {
		o.DispatchLimit = 5
	}
	if o.DedupCapacity <= 0 {
		o.DedupCapacity = 100_000
	}
	if o.DedupTTL <= 0 {
		o.DedupTTL = 300_000 * time.Millisecond
	}
	return o
}

// Subscriber fans out Sync-event subscriptions across one connection
// per pool-address batch, deduplicates by transaction hash, and
// dispatches decoded events to Handler with bounded concurrency (spec
// §4.3).
type Subscriber struct {
	dial    Dialer
	handler Handler
	opts    Options
	log     gethlog.Logger

	dedup   *DedupCache
	metrics *metrics.Metrics

	mu      sync.Mutex
	batches []*batchConn
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	dispatch *errgroup.Group
}

type batchConn struct {
	index int
	pools []domain.Address
	sub   ethereum.Subscription
	logCh chan types.Log
}

// New builds a Subscriber. dial opens a fresh connection each time it
// is called (initial subscribe and every reconnect). m may be nil.
func New(dial Dialer, handler Handler, opts Options, logger gethlog.Logger, m *metrics.Metrics) *Subscriber {
	opts = opts.withDefaults()
	return &Subscriber{
		dial:    dial,
		handler: handler,
		opts:    opts,
		log:     logger,
		dedup:   NewDedupCache(opts.DedupCapacity, opts.DedupTTL),
		metrics: m,
	}
}

// SubscribeAll partitions pools into batches and opens one long-lived
// connection per batch, pacing batch setup by InterBatchDelay (spec
// §4.3.1). It returns once every batch's initial connection attempt has
// been started; reconnection continues in the background until Stop is
// called.
func (s *Subscriber) SubscribeAll(ctx context.Context, pools []domain.Address) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	dg := &errgroup.Group{}
	dg.SetLimit(s.opts.DispatchLimit)
	s.dispatch = dg

	limiter := rate.NewLimiter(rate.Every(s.opts.InterBatchDelay), 1)

	batches := chunkAddrs(pools, s.opts.BatchSize)
	for i, batch := range batches {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		bc := &batchConn{index: i, pools: batch}
		s.mu.Lock()
		s.batches = append(s.batches, bc)
		s.mu.Unlock()

		s.wg.Add(1)
		go s.runBatch(ctx, bc)
	}
	return nil
}

// runBatch owns the lifecycle of one batch's connection: connect,
// stream logs until the connection closes or errors, then reconnect
// after ReconnectInterval. Reconnection is unbounded and per-batch:
// other batches are unaffected by this batch's failures.
func (s *Subscriber) runBatch(ctx context.Context, bc *batchConn) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connectAndStream(ctx, bc); err != nil {
			if s.log != nil {
				s.log.Warn("subscription batch disconnected, reconnecting",
					"batch", bc.index, "reconnectMs", s.opts.ReconnectInterval.Milliseconds(), "err", err)
			}
			if s.metrics != nil {
				label := strconv.Itoa(bc.index)
				s.metrics.SubscriptionReconnects.WithLabelValues(label).Inc()
				s.metrics.SubscriptionActive.WithLabelValues(label).Set(0)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.ReconnectInterval):
		}
	}
}

func (s *Subscriber) connectAndStream(ctx context.Context, bc *batchConn) error {
	client, err := s.dial(ctx)
	if err != nil {
		return &arberr.SubscriptionError{BatchIndex: bc.index, Cause: err}
	}

	logCh := make(chan types.Log, 256)
	q := ethereum.FilterQuery{
		Addresses: bc.pools,
		Topics:    [][]common.Hash{{SyncTopic}},
	}
	sub, err := client.SubscribeFilterLogs(ctx, q, logCh)
	if err != nil {
		return &arberr.SubscriptionError{BatchIndex: bc.index, Cause: err}
	}

	s.mu.Lock()
	bc.sub = sub
	bc.logCh = logCh
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SubscriptionActive.WithLabelValues(strconv.Itoa(bc.index)).Set(1)
	}
	defer sub.Unsubscribe()
	defer func() {
		if s.metrics != nil {
			s.metrics.SubscriptionActive.WithLabelValues(strconv.Itoa(bc.index)).Set(0)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return &arberr.SubscriptionError{BatchIndex: bc.index, Cause: err}
		case lg, ok := <-logCh:
			if !ok {
				return &arberr.SubscriptionError{BatchIndex: bc.index, Cause: errLogChannelClosed}
			}
			s.dispatchLog(lg)
		}
	}
}

var errLogChannelClosed = errors.New("log channel closed")

// dispatchLog decodes and deduplicates lg, enqueuing it to the bounded
// dispatch pool on a cache miss. A duplicate transaction hash is
// suppressed entirely: zero dispatches.
func (s *Subscriber) dispatchLog(lg types.Log) {
	if s.dedup.SeenOrRecord(lg.TxHash) {
		if s.metrics != nil {
			s.metrics.DedupSuppressedTotal.Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.DedupForwardedTotal.Inc()
	}
	event, err := DecodeSync(lg)
	if err != nil {
		if s.log != nil {
			s.log.Warn("undecodable Sync log, skipping", "err", err)
		}
		if s.metrics != nil {
			s.metrics.DecodeErrorsTotal.Inc()
		}
		return
	}
	s.dispatch.Go(func() error {
		s.handler(event.Pool, event.Reserve0, event.Reserve1)
		return nil
	})
}

// Stop cancels all reconnect timers and tears down every open
// connection. It waits for in-flight batch goroutines to exit and for
// the dispatch pool to drain.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	batches := append([]*batchConn(nil), s.batches...)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, bc := range batches {
		s.mu.Lock()
		sub := bc.sub
		s.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
	}

	s.wg.Wait()
	if s.dispatch != nil {
		_ = s.dispatch.Wait()
	}
}

func chunkAddrs(addrs []domain.Address, size int) [][]domain.Address {
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
