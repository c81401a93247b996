package accrual

import (
	"math/big"

	coretypes "vaultcore/core/types"
)

var ray = coretypes.Ray

// Rpow raises a base-scaled fixed-point x to the integer power n using
// exponentiation by squaring, truncating toward zero after every
// multiplication so cumulative rounding always favors the protocol. The loop
// runs in O(log n) multiplications, which keeps a multi-year catch-up (n in
// the hundreds of millions) cheap.
//
// Conventions: x^0 == base for every x, including zero; 0^n == 0 for n > 0.
func Rpow(x *big.Int, n uint64, base *big.Int) *big.Int {
	if n == 0 {
		return new(big.Int).Set(base)
	}
	if x == nil || x.Sign() == 0 {
		return new(big.Int)
	}
	z := new(big.Int)
	if n%2 == 1 {
		z.Set(x)
	} else {
		z.Set(base)
	}
	b := new(big.Int).Set(x)
	for n /= 2; n > 0; n /= 2 {
		b.Mul(b, b)
		b.Quo(b, base)
		if n%2 == 1 {
			z.Mul(z, b)
			z.Quo(z, base)
		}
	}
	return z
}

func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return new(big.Int)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, ray)
}
