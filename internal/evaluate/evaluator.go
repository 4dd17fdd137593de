package evaluate

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
	"github.com/RedBird96/detect-amm-imbalance/internal/metrics"
	gethlog "github.com/ethereum/go-ethereum/log"
)

// RateUpdate is the event emitted for every evaluated cycle. It is
// emitted unconditionally, including for rate <= 0, so observers can
// tell a quiescent pool from a missing cycle.
type RateUpdate struct {
	PathID          string  `json:"pathId"`
	PathDescription string  `json:"pathDescription"`
	Rate            float64 `json:"rate"`
}

// Evaluator applies reserve updates to the Store atomically and reprices
// every cycle touching the updated pool.
type Evaluator struct {
	mu  sync.Mutex
	idx *domain.Index

	startAmountWei *big.Int
	feePercent     float64
	startCurrency  string

	events chan RateUpdate
	log    gethlog.Logger

	metrics       *metrics.Metrics
	eventsDropped func() // metrics hook, called when the handoff channel is full
}

// Option configures an Evaluator at construction time.
type Option func(*Evaluator)

// WithEventsDropped registers a callback invoked each time an emitted
// RateUpdate is dropped because the handoff channel is full.
func WithEventsDropped(f func()) Option {
	return func(e *Evaluator) { e.eventsDropped = f }
}

// WithMetrics attaches a Metrics bundle for per-evaluation instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// New builds an Evaluator over idx. eventsCap bounds the non-blocking
// handoff channel to the Broadcaster: events are handed off without
// suspending, so a slow consumer can't stall evaluation.
func New(idx *domain.Index, startAmount *big.Int, feePercent float64, startCurrency string, eventsCap int, logger gethlog.Logger, opts ...Option) *Evaluator {
	if eventsCap <= 0 {
		eventsCap = 4096
	}
	e := &Evaluator{
		idx:            idx,
		startAmountWei: StartAmountWei(startAmount),
		feePercent:     feePercent,
		startCurrency:  startCurrency,
		events:         make(chan RateUpdate, eventsCap),
		log:            logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events returns the read side of the handoff channel; the Broadcaster
// drains it.
func (e *Evaluator) Events() <-chan RateUpdate {
	return e.events
}

// UpdateAndEvaluate writes the given reserves into the pool at poolAddr
// and reprices every cycle touching it, all under a single exclusive
// critical section. An unknown pool is a no-op: no error, no events.
func (e *Evaluator) UpdateAndEvaluate(poolAddr domain.Address, r0, r1 *domain.Uint256) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, ok := e.idx.Pool(poolAddr)
	if !ok {
		return
	}
	pool.Reserve1 = r0
	pool.Reserve2 = r1

	for _, cycleID := range e.idx.CyclesTouching(poolAddr) {
		cycle, ok := e.idx.Cycle(cycleID)
		if !ok {
			continue
		}
		e.evaluateCycleLocked(cycle)
	}
}

// evaluateCycleLocked must be called with mu held. It performs O(L)
// arithmetic only: no I/O, no suspension.
func (e *Evaluator) evaluateCycleLocked(cycle domain.Cycle) {
	start := time.Now()
	final := PriceCycle(e.idx, cycle, e.startAmountWei, e.feePercent)
	if e.metrics != nil {
		e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
		e.metrics.EvaluationsTotal.Inc()
	}

	profit := new(big.Int).Sub(final, e.startAmountWei)
	rate := RateFromProfit(profit)

	update := RateUpdate{
		PathID:          cycle.ID,
		PathDescription: e.pathDescription(cycle),
		Rate:            rate,
	}

	select {
	case e.events <- update:
	default:
		if e.eventsDropped != nil {
			e.eventsDropped()
		}
		if e.metrics != nil {
			e.metrics.EventsDroppedTotal.Inc()
		}
		if e.log != nil {
			e.log.Warn("dropping rate update, handoff channel full", "pathId", update.PathID)
		}
	}
}

// pathDescription renders "base -> t1 -> t2 -> ... -> base" using the
// target symbol of each step. Unknown tokens render as UNKNOWN rather
// than failing the cycle.
func (e *Evaluator) pathDescription(cycle domain.Cycle) string {
	parts := make([]string, 0, len(cycle.Steps)+1)
	parts = append(parts, e.startCurrency)
	for _, step := range cycle.Steps {
		parts = append(parts, e.idx.TokenSymbol(step.Target))
	}
	return strings.Join(parts, " -> ")
}

// Quiesce waits until any in-flight critical section has completed. It
// is used by the Supervisor during shutdown to guarantee no evaluation
// is interrupted mid-cycle.
func (e *Evaluator) Quiesce(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		e.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
