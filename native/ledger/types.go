package ledger

import (
	"math/big"

	"vaultcore/crypto"
)

// CollateralClass holds the per-class risk and accounting parameters. Rate and
// Spot are Ray-scaled, Line and Dust are Rad-scaled, TotalNormalizedDebt is
// Wad-scaled.
type CollateralClass struct {
	// Rate is the cumulative interest multiplier applied to normalized debt.
	// It starts at 1 Ray and only the Accrue operation may change it.
	Rate *big.Int
	// Spot is the maximum Rad of debt one Wad of collateral may safely back,
	// already risk-adjusted by the price feed.
	Spot *big.Int
	// Line is the per-class debt ceiling.
	Line *big.Int
	// Dust is the minimum non-zero debt value a position may carry.
	Dust *big.Int
	// TotalNormalizedDebt sums the normalized debt of every position in the
	// class.
	TotalNormalizedDebt *big.Int
}

// Clone returns a deep copy of the class record.
func (c *CollateralClass) Clone() *CollateralClass {
	if c == nil {
		return nil
	}
	return &CollateralClass{
		Rate:                copyBig(c.Rate),
		Spot:                copyBig(c.Spot),
		Line:                copyBig(c.Line),
		Dust:                copyBig(c.Dust),
		TotalNormalizedDebt: copyBig(c.TotalNormalizedDebt),
	}
}

// Position is one account's locked collateral (Wad) and normalized debt (Wad)
// within one collateral class. The owed value is NormalizedDebt * Rate.
type Position struct {
	LockedCollateral *big.Int
	NormalizedDebt   *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{
		LockedCollateral: copyBig(p.LockedCollateral),
		NormalizedDebt:   copyBig(p.NormalizedDebt),
	}
}

// Totals carries the global accounting aggregates: TotalDebt and TotalBadDebt
// are Rad-scaled, GlobalCeiling bounds TotalDebt.
type Totals struct {
	TotalDebt     *big.Int
	TotalBadDebt  *big.Int
	GlobalCeiling *big.Int
}

// Clone returns a deep copy of the totals record.
func (t *Totals) Clone() *Totals {
	if t == nil {
		return nil
	}
	return &Totals{
		TotalDebt:     copyBig(t.TotalDebt),
		TotalBadDebt:  copyBig(t.TotalBadDebt),
		GlobalCeiling: copyBig(t.GlobalCeiling),
	}
}

// ledgerState is the narrow persistence surface the engine operates against.
// Lookups return nil (not an error) when no record exists; records are created
// implicitly on first write.
type ledgerState interface {
	GetClass(symbol string) (*CollateralClass, error)
	PutClass(symbol string, class *CollateralClass) error
	GetPosition(symbol string, owner crypto.Address) (*Position, error)
	PutPosition(symbol string, owner crypto.Address, position *Position) error
	GetFreeCollateral(symbol string, addr crypto.Address) (*big.Int, error)
	PutFreeCollateral(symbol string, addr crypto.Address, amount *big.Int) error
	GetStable(addr crypto.Address) (*big.Int, error)
	PutStable(addr crypto.Address, amount *big.Int) error
	GetBadDebt(addr crypto.Address) (*big.Int, error)
	PutBadDebt(addr crypto.Address, amount *big.Int) error
	GetTotals() (*Totals, error)
	PutTotals(totals *Totals) error
	IsAuthorized(addr crypto.Address) (bool, error)
	SetAuthorized(addr crypto.Address, authorized bool) error
	IsOperator(owner, operator crypto.Address) (bool, error)
	SetOperator(owner, operator crypto.Address, approved bool) error
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
