package liquidation

import (
	"math/big"

	"vaultcore/crypto"
)

// LiquidationParams configures how a class's unsafe positions are unwound.
// PenaltyFactor is Wad-scaled (>= 1), StartPriceBuffer Ray-scaled (>= 1).
type LiquidationParams struct {
	PenaltyFactor    *big.Int
	StartPriceBuffer *big.Int
}

// Clone returns a deep copy of the params record.
func (p *LiquidationParams) Clone() *LiquidationParams {
	if p == nil {
		return nil
	}
	clone := &LiquidationParams{}
	if p.PenaltyFactor != nil {
		clone.PenaltyFactor = new(big.Int).Set(p.PenaltyFactor)
	}
	if p.StartPriceBuffer != nil {
		clone.StartPriceBuffer = new(big.Int).Set(p.StartPriceBuffer)
	}
	return clone
}

// Auction is one active Dutch sale of seized collateral. Tab is the Rad debt
// still owed, Lot the Wad collateral left to sell, StartPrice the Ray price
// the linear decay starts from.
type Auction struct {
	ID         uint64
	Symbol     string
	Tab        *big.Int
	Lot        *big.Int
	Owner      crypto.Address
	StartTime  uint64
	StartPrice *big.Int
}

// Clone returns a deep copy of the auction record.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := &Auction{
		ID:        a.ID,
		Symbol:    a.Symbol,
		Owner:     a.Owner,
		StartTime: a.StartTime,
	}
	if a.Tab != nil {
		clone.Tab = new(big.Int).Set(a.Tab)
	}
	if a.Lot != nil {
		clone.Lot = new(big.Int).Set(a.Lot)
	}
	if a.StartPrice != nil {
		clone.StartPrice = new(big.Int).Set(a.StartPrice)
	}
	return clone
}

type liquidationState interface {
	GetLiquidationParams(symbol string) (*LiquidationParams, error)
	PutLiquidationParams(symbol string, params *LiquidationParams) error
	GetAuction(id uint64) (*Auction, error)
	PutAuction(auction *Auction) error
	DeleteAuction(id uint64) error
	ListAuctions() ([]*Auction, error)
	NextAuctionID() (uint64, error)
}
