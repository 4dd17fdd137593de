package domain

import "github.com/holiman/uint256"

// Uint256 is the 256-bit unsigned integer type used for reserves and
// intermediate swap amounts. holiman/uint256 avoids the allocation
// overhead of math/big for values that never exceed 256 bits.
type Uint256 = uint256.Int

// ZeroUint256 returns a fresh zero-valued Uint256. uint256.NewInt(0)
// would work too; this name reads better at call sites that just need
// "the zero reserve".
func ZeroUint256() *Uint256 {
	return uint256.NewInt(0)
}
