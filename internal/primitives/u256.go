package primitives

import "github.com/holiman/uint256"

// U256 is the 256-bit unsigned integer type used throughout account
// balances, EVM stack words, and gas price/limit fields. It is a thin
// alias over uint256.Int so the EVM interpreter can use its arithmetic
// directly without a conversion at every opcode.
type U256 = uint256.Int

func NewU256(v uint64) *U256 { return uint256.NewInt(v) }

func U256FromBig(b []byte) *U256 {
	var u uint256.Int
	u.SetBytes(b)
	return &u
}
