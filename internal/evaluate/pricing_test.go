package evaluate

import (
	"math/big"
	"testing"

	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
	"github.com/stretchr/testify/require"
)

func mustAddr(t *testing.T, s string) domain.Address {
	t.Helper()
	a, err := domain.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func setReserves(t *testing.T, pool *domain.Pool, r1, r2 uint64) {
	t.Helper()
	pool.Reserve1 = new(domain.Uint256).SetUint64(r1)
	pool.Reserve2 = new(domain.Uint256).SetUint64(r2)
}

// newTwoHopIndex builds an index holding WETH (18 decimals), USDC (6
// decimals) and one WETH/USDC pool with zero reserves. It registers no
// cycle; each test builds its own and sets the reserves it needs.
func newTwoHopIndex(t *testing.T) (*domain.Index, domain.Address, domain.Address, domain.Address) {
	idx := domain.NewIndex()
	weth := mustAddr(t, "0x1111111111111111111111111111111111111111")
	usdc := mustAddr(t, "0x2222222222222222222222222222222222222222")
	lp := mustAddr(t, "0x3333333333333333333333333333333333333333")

	idx.Tokens[weth] = domain.Token{Address: weth, Symbol: "WETH", Decimals: 18}
	idx.Tokens[usdc] = domain.Token{Address: usdc, Symbol: "USDC", Decimals: 6}
	idx.Pools[lp] = &domain.Pool{Address: lp, Token1: weth, Token2: usdc, Reserve1: domain.ZeroUint256(), Reserve2: domain.ZeroUint256()}

	return idx, weth, usdc, lp
}

// WETH[18]/USDC[6], reserve1=10e18, reserve2=20000e6, FEE_PERCENT=0, one
// hop WETH -> USDC. Expected output 1,818,181,818 raw USDC units for a
// 1-WETH (1e18 wei) input.
func TestPriceCycleScenarioC(t *testing.T) {
	idx, _, usdc, lp := newTwoHopIndex(t)
	pool, _ := idx.Pool(lp)
	setReserves(t, pool, 10_000000000000000000, 20000_000000)

	cycle := domain.Cycle{ID: "c", Steps: []domain.RouteStep{{Target: usdc, LP: lp}}}
	start := StartAmountWei(big.NewInt(1))

	final := PriceCycle(idx, cycle, start, 0)
	require.Equal(t, big.NewInt(1818181818), final)
}

// A pool with a zero reserve on the relevant side must price the whole
// cycle to zero, yielding rate -1.0 (full loss of the start amount).
func TestPriceCycleScenarioBZeroReserve(t *testing.T) {
	idx, _, usdc, lp := newTwoHopIndex(t)
	pool, _ := idx.Pool(lp)
	setReserves(t, pool, 0, 20000_000000)

	cycle := domain.Cycle{ID: "c", Steps: []domain.RouteStep{{Target: usdc, LP: lp}}}
	start := StartAmountWei(big.NewInt(1))

	final := PriceCycle(idx, cycle, start, 0)
	require.Equal(t, big.NewInt(0), final)

	profit := new(big.Int).Sub(final, start)
	require.Equal(t, -1.0, RateFromProfit(profit))
}

// dIn == dOut must skip rescaling entirely, i.e. act as an identity on
// the amount before the fee step.
func TestRescaleIdentityWhenDecimalsMatch(t *testing.T) {
	amount := big.NewInt(123456789)
	require.Equal(t, amount, rescale(amount, 18, 18))
}

// A fee multiplier of exactly 1 (FEE_PERCENT 0) must be an exact integer
// copy, never routed through float64.
func TestApplyFeeExactWhenFeePercentZero(t *testing.T) {
	amount := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil) // beyond float64 exact-integer range
	result := applyFee(amount, 1.0)
	require.Equal(t, amount, result)
}

func TestPriceCycleUnknownPoolPricesToZero(t *testing.T) {
	idx, _, usdc, _ := newTwoHopIndex(t)
	missingLP := mustAddr(t, "0x4444444444444444444444444444444444444444")
	cycle := domain.Cycle{ID: "c", Steps: []domain.RouteStep{{Target: usdc, LP: missingLP}}}

	final := PriceCycle(idx, cycle, StartAmountWei(big.NewInt(1)), 0)
	require.Equal(t, big.NewInt(0), final)
}

func TestRateFromProfitPositiveAndNegative(t *testing.T) {
	oneWei := StartAmountWei(big.NewInt(1))
	half := new(big.Int).Div(oneWei, big.NewInt(2))
	quarter := new(big.Int).Div(oneWei, big.NewInt(4))

	require.InDelta(t, 0.5, RateFromProfit(half), 1e-9)
	require.InDelta(t, -0.25, RateFromProfit(new(big.Int).Neg(quarter)), 1e-9)
}
