package types

import "math/big"

// The engine uses three fixed-point scales that are never mixed implicitly:
// Wad (1e18) for token quantities, Ray (1e27) for rates and prices, and
// Rad (1e45, Wad*Ray) for debt and stablecoin values.
var (
	Wad = mustBigInt("1000000000000000000")
	Ray = mustBigInt("1000000000000000000000000000")
	Rad = mustBigInt("1000000000000000000000000000000000000000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// CopyBig returns an owned copy of v, treating nil as zero. Records loaded
// from state share no memory with the values handed to callers.
func CopyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// NonNil returns v itself when non-nil and a fresh zero otherwise.
func NonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
