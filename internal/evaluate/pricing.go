// Package evaluate implements the per-cycle constant-product pricing
// algorithm and the Evaluator component that applies reserve updates
// and reprices affected cycles under a single process-wide lock.
package evaluate

import (
	"math"
	"math/big"

	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
)

// BaseDecimals is the base currency's (WETH's) decimal count.
const BaseDecimals = 18

var (
	pow18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(BaseDecimals), nil)
	ten   = big.NewInt(10)
)

// pow10 returns 10^n as a fresh big.Int.
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// PriceCycle walks cycle's hops against idx (which must already reflect
// the reserves to price against — the caller holds the Store lock for
// the duration of this call) and returns the final amount reached after
// all hops, in base-currency wei. Callers derive profit as
// finalAmount - startAmountWei.
//
// feePercent is applied per hop via a floating-point step:
// xFee = floor(x' * (1 - feePercent/100)). This is a known, intentional
// source of small non-monotonicity at very large intermediate amounts,
// kept deliberately instead of a pure-integer rounding.
func PriceCycle(idx *domain.Index, cycle domain.Cycle, startAmountWei *big.Int, feePercent float64) *big.Int {
	x := new(big.Int).Set(startAmountWei)
	feeMultiplier := 1 - feePercent/100

	for _, step := range cycle.Steps {
		pool, ok := idx.Pool(step.LP)
		if !ok {
			return big.NewInt(0)
		}

		var inToken, outToken domain.Address
		var reserveIn, reserveOut *big.Int
		if step.Target == pool.Token1 {
			inToken, outToken = pool.Token2, pool.Token1
			reserveIn, reserveOut = pool.Reserve2.ToBig(), pool.Reserve1.ToBig()
		} else {
			inToken, outToken = pool.Token1, pool.Token2
			reserveIn, reserveOut = pool.Reserve1.ToBig(), pool.Reserve2.ToBig()
		}

		if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
			x = big.NewInt(0)
			continue
		}

		dIn := idx.TokenDecimals(inToken)
		dOut := idx.TokenDecimals(outToken)

		xPrime := rescale(x, dIn, dOut)
		reserveInPrime := rescale(reserveIn, dIn, dOut)
		reserveOutPrime := reserveOut

		xFee := applyFee(xPrime, feeMultiplier)

		denom := new(big.Int).Add(reserveInPrime, xFee)
		if denom.Sign() == 0 {
			x = big.NewInt(0)
			continue
		}
		numer := new(big.Int).Mul(xFee, reserveOutPrime)
		x = new(big.Int).Div(numer, denom)
	}

	return x
}

// rescale converts an amount denominated in dIn-decimal units to
// dOut-decimal units via integer truncating division. When dIn == dOut
// no scaling factor is applied.
func rescale(amount *big.Int, dIn, dOut uint8) *big.Int {
	if dIn == dOut {
		return new(big.Int).Set(amount)
	}
	scaled := new(big.Int).Mul(amount, pow10(dOut))
	return scaled.Div(scaled, pow10(dIn))
}

// applyFee computes floor(x * (1 - feePercent/100)). x is converted to
// float64 (lossily, for very large magnitudes) via IEEE-754 double
// arithmetic, then floored back to a big.Int.
func applyFee(x *big.Int, feeMultiplier float64) *big.Int {
	if feeMultiplier == 1 {
		return new(big.Int).Set(x)
	}
	xFloat := new(big.Float).SetInt(x)
	xF, _ := xFloat.Float64()
	feed := math.Floor(xF * feeMultiplier)
	if math.IsInf(feed, 0) || math.IsNaN(feed) {
		return new(big.Int).Set(x)
	}
	result, _ := big.NewFloat(feed).Int(nil)
	return result
}

// RateFromProfit converts a signed profit in base-currency wei to the
// published rate: profit / 10^18, rendered as a double-precision float.
func RateFromProfit(profit *big.Int) float64 {
	f := new(big.Float).SetInt(profit)
	f.Quo(f, new(big.Float).SetInt(pow18))
	rate, _ := f.Float64()
	return rate
}

// StartAmountWei converts the configured START_AMOUNT (an integer
// number of base-currency units, default "1") to wei.
func StartAmountWei(startAmount *big.Int) *big.Int {
	return new(big.Int).Mul(startAmount, pow18)
}
