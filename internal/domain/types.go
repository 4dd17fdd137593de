// Package domain holds the data model shared by every component of the
// arbitrage engine: tokens, pools, cycles and the indexes that tie them
// together. Nothing in this package performs I/O.
package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is the 20-byte identifier used for tokens and pools. Equality
// is byte-wise, which makes it case-insensitive by construction: hex
// decoding already folds case before the bytes are compared or hashed.
type Address = common.Address

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// ParseAddress trims and lowercases s, validates it against the
// lowercase-hex address grammar and returns the decoded Address. Mixed-case
// input is accepted after folding; anything that is not 0x followed by 40
// hex digits is rejected, so malformed catalog rows are caught at load
// time instead of silently accepted.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !addressPattern.MatchString(s) {
		return Address{}, fmt.Errorf("invalid address %q: must match %s", s, addressPattern.String())
	}
	return common.HexToAddress(s), nil
}

// AddressString renders a as lowercase hex with 0x prefix, overriding
// common.Address's default EIP-55 checksum casing.
func AddressString(a Address) string {
	return strings.ToLower(a.Hex())
}

// UnknownSymbol and UnknownDecimals are rendered for tokens the Store
// has no record of.
const (
	UnknownSymbol   = "UNKNOWN"
	UnknownDecimals = 0
)

// Token is immutable after Store.Load.
type Token struct {
	Address  Address
	Symbol   string
	Name     string
	Decimals uint8
}

// Pool is a constant-product AMM pair. Token1/Token2 are immutable after
// load; Reserve1/Reserve2 are set once by the Hydrator at startup and
// afterwards mutate only through the Evaluator's UpdateAndEvaluate path.
type Pool struct {
	Address  Address
	Token1   Address
	Token2   Address
	Reserve1 *Uint256
	Reserve2 *Uint256
}

// RouteStep is one hop of a Cycle: Target is the token produced by
// swapping through LP. Target is expected to be one of LP's two tokens;
// neither Store.Load nor evaluation checks this, and PriceCycle treats
// any Target other than the pool's Token1 as its Token2.
type RouteStep struct {
	Target Address
	LP     Address
}

// Cycle is an ordered sequence of 2-5 hops that is economically
// meaningful only when it starts and ends at the base currency. The
// engine does not enforce that; a malformed cycle is priced by the same
// algorithm and its rate carries no economic meaning.
type Cycle struct {
	ID    string
	Steps []RouteStep
}
