// Package supervisor owns process lifecycle: the strict startup
// sequence (Store -> Hydrator -> Evaluator -> Broadcaster ->
// Subscriber) and the strict shutdown sequence run on interrupt
// regardless of how far startup got.
package supervisor

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/RedBird96/detect-amm-imbalance/internal/arberr"
	"github.com/RedBird96/detect-amm-imbalance/internal/broadcast"
	"github.com/RedBird96/detect-amm-imbalance/internal/config"
	"github.com/RedBird96/detect-amm-imbalance/internal/evaluate"
	"github.com/RedBird96/detect-amm-imbalance/internal/hydrate"
	"github.com/RedBird96/detect-amm-imbalance/internal/metrics"
	"github.com/RedBird96/detect-amm-imbalance/internal/store"
	"github.com/RedBird96/detect-amm-imbalance/internal/subscribe"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethlog "github.com/ethereum/go-ethereum/log"
)

// Supervisor wires every component together and owns their combined
// lifecycle.
type Supervisor struct {
	cfg config.Config
	log gethlog.Logger

	metrics     *metrics.Metrics
	store       *store.Store
	hydrator    *hydrate.Hydrator
	evaluator   *evaluate.Evaluator
	broadcaster *broadcast.Broadcaster
	subscriber  *subscribe.Subscriber

	ready atomic.Bool
}

// New builds a Supervisor from a validated Config. No component is
// constructed until Run is called.
func New(cfg config.Config, logger gethlog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, log: logger}
}

// Run executes the startup sequence, blocks until ctx is cancelled
// (normally by the process's signal context), then executes the
// shutdown sequence. A startup failure is returned immediately as a
// FatalError without attempting to run; shutdown still attempts to
// unwind whatever was constructed so far.
func (sv *Supervisor) Run(ctx context.Context) error {
	sv.metrics = metrics.New()

	startErr := sv.startup(ctx)

	if startErr == nil {
		<-ctx.Done()
	}

	sv.shutdown()

	if startErr != nil {
		return &arberr.FatalError{Cause: startErr}
	}
	return nil
}

// startup runs Store -> Hydrator -> Evaluator -> Broadcaster ->
// Subscriber, in that order. Any failure aborts the remaining steps;
// components already constructed are still torn down by shutdown.
func (sv *Supervisor) startup(ctx context.Context) error {
	st, err := store.Load(sv.cfg.DBName)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	sv.store = st

	httpsClient, err := ethclient.DialContext(ctx, sv.cfg.HTTPSEndpoint())
	if err != nil {
		return fmt.Errorf("dial hydration endpoint: %w", err)
	}
	viewerAddr := common.HexToAddress(sv.cfg.ViewerAddress)
	sv.hydrator = hydrate.New(httpsClient, viewerAddr, sv.cfg.BatchSize, sv.cfg.HydrationWorkers, sv.log, sv.metrics)

	if err := sv.hydrator.Hydrate(ctx, sv.store.Index()); err != nil {
		return fmt.Errorf("initial hydration: %w", err)
	}

	startAmount, ok := new(big.Int).SetString(sv.cfg.StartAmount, 10)
	if !ok {
		return fmt.Errorf("start-amount %q is not a valid integer", sv.cfg.StartAmount)
	}
	sv.evaluator = evaluate.New(
		sv.store.Index(),
		startAmount,
		sv.cfg.FeePercent,
		sv.cfg.StartCurrency,
		0,
		sv.log,
		evaluate.WithMetrics(sv.metrics),
	)

	sv.broadcaster = broadcast.New(sv.cfg.WebServerPort, sv.isReady, sv.metrics, sv.log)
	if err := sv.broadcaster.ListenAndServe(); err != nil {
		return fmt.Errorf("bind broadcaster port %d: %w", sv.cfg.WebServerPort, err)
	}
	go sv.broadcaster.Run(ctx, sv.evaluator.Events())

	sv.subscriber = subscribe.New(
		sv.wssDialer,
		sv.evaluator.UpdateAndEvaluate,
		subscribe.Options{
			BatchSize:         sv.cfg.BatchSize,
			InterBatchDelay:   time.Duration(sv.cfg.InterBatchDelayMs) * time.Millisecond,
			ReconnectInterval: time.Duration(sv.cfg.ReconnectInterval) * time.Millisecond,
			DispatchLimit:     sv.cfg.DispatchLimit,
			DedupCapacity:     sv.cfg.DedupCapacity,
			DedupTTL:          time.Duration(sv.cfg.DedupTTLMillis) * time.Millisecond,
		},
		sv.log,
		sv.metrics,
	)
	if err := sv.subscriber.SubscribeAll(ctx, sv.store.Pools()); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	sv.ready.Store(true)
	sv.log.Info("engine ready", "pools", len(sv.store.Pools()))
	return nil
}

// wssDialer opens a fresh streaming connection, used on initial
// subscribe and on every per-batch reconnect.
func (sv *Supervisor) wssDialer(ctx context.Context) (subscribe.LogSubscriber, error) {
	return ethclient.DialContext(ctx, sv.cfg.WSSEndpoint())
}

func (sv *Supervisor) isReady() bool {
	return sv.ready.Load()
}

// shutdown runs Subscriber -> Evaluator -> Broadcaster teardown in that
// order, skipping any component that was never constructed. It never
// returns an error: teardown is best-effort.
func (sv *Supervisor) shutdown() {
	sv.ready.Store(false)

	if sv.subscriber != nil {
		sv.subscriber.Stop()
	}
	if sv.evaluator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		sv.evaluator.Quiesce(ctx)
		cancel()
	}
	if sv.broadcaster != nil {
		if err := sv.broadcaster.Close(); err != nil && sv.log != nil {
			sv.log.Warn("broadcaster shutdown error", "err", err)
		}
	}
}
