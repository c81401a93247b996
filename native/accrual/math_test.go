package accrual

import (
	"math/big"
	"testing"
)

func rayScaled(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), ray)
}

func TestRpowZeroExponentIsBase(t *testing.T) {
	for _, x := range []*big.Int{nil, new(big.Int), rayScaled(1), rayScaled(7)} {
		got := Rpow(x, 0, ray)
		if got.Cmp(ray) != 0 {
			t.Fatalf("rpow(%v, 0) = %s, want %s", x, got, ray)
		}
	}
}

func TestRpowZeroBaseIsZero(t *testing.T) {
	for _, n := range []uint64{1, 2, 5, 100} {
		got := Rpow(new(big.Int), n, ray)
		if got.Sign() != 0 {
			t.Fatalf("rpow(0, %d) = %s, want 0", n, got)
		}
	}
}

func TestRpowMatchesRepeatedMultiplicationExact(t *testing.T) {
	// whole-ray inputs stay exact under truncation, so square-and-multiply
	// and the naive left fold must agree bit for bit
	for _, x := range []*big.Int{rayScaled(1), rayScaled(2), rayScaled(3)} {
		naive := new(big.Int).Set(ray)
		for n := uint64(1); n <= 10; n++ {
			naive.Mul(naive, x)
			naive.Quo(naive, ray)
			got := Rpow(x, n, ray)
			if got.Cmp(naive) != 0 {
				t.Fatalf("rpow(%s, %d) = %s, want %s", x, n, got, naive)
			}
		}
	}
}

func TestRpowSmallExponentsOnRealisticDuty(t *testing.T) {
	// 1.000000001 ray per second, a realistic per-second duty
	duty := new(big.Int).Add(rayScaled(1), big.NewInt(1_000_000_000_000_000_000))

	square := new(big.Int).Mul(duty, duty)
	square.Quo(square, ray)
	if got := Rpow(duty, 2, ray); got.Cmp(square) != 0 {
		t.Fatalf("rpow(duty, 2) = %s, want %s", got, square)
	}

	cube := new(big.Int).Mul(duty, square)
	cube.Quo(cube, ray)
	if got := Rpow(duty, 3, ray); got.Cmp(cube) != 0 {
		t.Fatalf("rpow(duty, 3) = %s, want %s", got, cube)
	}
}

func TestRpowMonotonicInExponent(t *testing.T) {
	duty := new(big.Int).Add(rayScaled(1), big.NewInt(1_000_000_000))
	prev := Rpow(duty, 1, ray)
	for _, n := range []uint64{10, 100, 10_000, 31_536_000} {
		next := Rpow(duty, n, ray)
		if next.Cmp(prev) < 0 {
			t.Fatalf("rpow decreased from %s to %s at n=%d", prev, next, n)
		}
		prev = next
	}
}
