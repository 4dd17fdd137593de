package evaluate

import (
	"math/big"
	"testing"

	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
	"github.com/stretchr/testify/require"
)

func newEvalFixture(t *testing.T, eventsCap int) (*Evaluator, domain.Address, domain.Address) {
	t.Helper()
	idx, _, usdc, lp := newTwoHopIndex(t)
	pool, _ := idx.Pool(lp)
	setReserves(t, pool, 10_000000000000000000, 20000_000000)
	require.NoError(t, idx.AddCycle(domain.Cycle{ID: "c1", Steps: []domain.RouteStep{{Target: usdc, LP: lp}}}))

	e := New(idx, big.NewInt(1), 0, "WETH", eventsCap, nil)
	return e, lp, usdc
}

func TestUpdateAndEvaluateEmitsRateUpdate(t *testing.T) {
	e, lp, _ := newEvalFixture(t, 4)

	r0 := new(domain.Uint256).SetUint64(10_000000000000000000)
	r1 := new(domain.Uint256).SetUint64(20000_000000)
	e.UpdateAndEvaluate(lp, r0, r1)

	select {
	case update := <-e.Events():
		require.Equal(t, "c1", update.PathID)
		require.Equal(t, "WETH -> USDC", update.PathDescription)
	default:
		t.Fatal("expected a RateUpdate to be emitted")
	}
}

func TestUpdateAndEvaluateUnknownPoolIsNoop(t *testing.T) {
	e, _, _ := newEvalFixture(t, 4)
	unknown, err := domain.ParseAddress("0x5555555555555555555555555555555555555555")
	require.NoError(t, err)

	e.UpdateAndEvaluate(unknown, domain.ZeroUint256(), domain.ZeroUint256())

	select {
	case <-e.Events():
		t.Fatal("an unknown pool must not emit any events")
	default:
	}
}

func TestUpdateAndEvaluateDropsWhenChannelFull(t *testing.T) {
	var dropped int
	idx, _, usdc, lp := newTwoHopIndex(t)
	pool, _ := idx.Pool(lp)
	setReserves(t, pool, 10_000000000000000000, 20000_000000)
	require.NoError(t, idx.AddCycle(domain.Cycle{ID: "c1", Steps: []domain.RouteStep{{Target: usdc, LP: lp}}}))

	e := New(idx, big.NewInt(1), 0, "WETH", 1, nil, WithEventsDropped(func() { dropped++ }))

	r0 := new(domain.Uint256).SetUint64(10_000000000000000000)
	r1 := new(domain.Uint256).SetUint64(20000_000000)
	e.UpdateAndEvaluate(lp, r0, r1) // fills the capacity-1 channel
	e.UpdateAndEvaluate(lp, r0, r1) // must be dropped, not block

	require.Equal(t, 1, dropped)
}
