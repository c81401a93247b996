package liquidation

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"vaultcore/core/events"
	coretypes "vaultcore/core/types"
	"vaultcore/crypto"
	"vaultcore/native/ledger"
	nativecommon "vaultcore/native/common"
)

const moduleName = "liquidation"

var (
	ErrNilState        = errors.New("liquidation: state not configured")
	ErrNilLedger       = errors.New("liquidation: ledger not configured")
	ErrParamsNotSet    = errors.New("liquidation: class parameters not configured")
	ErrVaultIsSafe     = errors.New("liquidation: position satisfies the safety condition")
	ErrNothingToSeize  = errors.New("liquidation: position has no collateral or debt")
	ErrAuctionNotFound = errors.New("liquidation: auction not found")
	ErrAuctionExpired  = errors.New("liquidation: auction past its duration")
	ErrPriceTooHigh    = errors.New("liquidation: current price above caller limit")
	ErrInvalidAmount   = errors.New("liquidation: amount must be positive")
	ErrSpotUnset       = errors.New("liquidation: class has no spot price")
)

// ledgerAPI is the slice of the ledger the liquidation engine drives. Seizure
// and payment settle through it so the ledger remains the only place balances
// change.
type ledgerAPI interface {
	Class(symbol string) (*ledger.CollateralClass, error)
	Position(symbol string, owner crypto.Address) (*ledger.Position, error)
	Seize(caller crypto.Address, symbol string, owner, collateralDst, debtDst crypto.Address, dInk, dArt *big.Int) error
	Transfer(caller, from, to crypto.Address, amount *big.Int) error
	MoveFreeCollateral(caller crypto.Address, symbol string, from, to crypto.Address, amount *big.Int) error
}

// Engine seizes unsafe positions and resells the collateral through falling
// price auctions, refunding any excess collateral to the original owner.
type Engine struct {
	state           liquidationState
	ledger          ledgerAPI
	moduleAddress   crypto.Address
	revenue         crypto.Address
	auctionDuration uint64
	now             func() uint64
	emitter         events.Emitter
	pauses          nativecommon.PauseView
}

// NewEngine constructs a liquidation engine. moduleAddr holds seized
// collateral between Bark and Take; revenue receives auction payments and the
// recognized bad debt.
func NewEngine(moduleAddr, revenue crypto.Address, auctionDuration uint64) *Engine {
	return &Engine{
		moduleAddress:   moduleAddr,
		revenue:         revenue,
		auctionDuration: auctionDuration,
		now:             func() uint64 { return uint64(time.Now().Unix()) },
		emitter:         events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state liquidationState) { e.state = state }

// SetLedger wires the ledger used for seizure and settlement.
func (e *Engine) SetLedger(l ledgerAPI) { e.ledger = l }

// SetPauses installs the breaker view consulted before Bark and Take.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetTimeSource overrides the wall clock, mainly for tests.
func (e *Engine) SetTimeSource(now func() uint64) {
	if now != nil {
		e.now = now
	}
}

// ModuleAddress returns the account the engine acts as against the ledger.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// AuctionDuration returns the global auction window in seconds.
func (e *Engine) AuctionDuration() uint64 { return e.auctionDuration }

// SetClassParams configures penalty and start-price buffer for a class. Both
// are multipliers of at least one.
func (e *Engine) SetClassParams(symbol string, penaltyFactor, startPriceBuffer *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if penaltyFactor == nil || penaltyFactor.Cmp(coretypes.Wad) < 0 {
		return fmt.Errorf("liquidation: penalty factor must be at least 1 wad")
	}
	if startPriceBuffer == nil || startPriceBuffer.Cmp(coretypes.Ray) < 0 {
		return fmt.Errorf("liquidation: start price buffer must be at least 1 ray")
	}
	return e.state.PutLiquidationParams(symbol, &LiquidationParams{
		PenaltyFactor:    new(big.Int).Set(penaltyFactor),
		StartPriceBuffer: new(big.Int).Set(startPriceBuffer),
	})
}

// ClassParams returns a copy of the class liquidation parameters.
func (e *Engine) ClassParams(symbol string) (*LiquidationParams, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadParams(symbol)
}

// Bark seizes the whole of an unsafe position and opens a Dutch auction over
// its collateral. The debt put up for recovery carries the class's
// liquidation penalty. Returns the new auction id.
func (e *Engine) Bark(symbol string, owner crypto.Address) (uint64, error) {
	if e.state == nil {
		return 0, ErrNilState
	}
	if e.ledger == nil {
		return 0, ErrNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	params, err := e.loadParams(symbol)
	if err != nil {
		return 0, err
	}
	class, err := e.ledger.Class(symbol)
	if err != nil {
		return 0, err
	}
	if class.Spot == nil || class.Spot.Sign() == 0 {
		return 0, ErrSpotUnset
	}
	position, err := e.ledger.Position(symbol, owner)
	if err != nil {
		return 0, err
	}
	ink := position.LockedCollateral
	art := position.NormalizedDebt
	if ink.Sign() == 0 && art.Sign() == 0 {
		return 0, ErrNothingToSeize
	}

	value := new(big.Int).Mul(ink, class.Spot)
	owed := new(big.Int).Mul(art, class.Rate)
	if value.Cmp(owed) >= 0 {
		return 0, fmt.Errorf("%w: collateral value %s covers debt %s", ErrVaultIsSafe, value, owed)
	}

	// tab = art * rate * penalty, Rad-scaled.
	tab := new(big.Int).Mul(owed, params.PenaltyFactor)
	tab.Quo(tab, coretypes.Wad)

	dInk := new(big.Int).Neg(ink)
	dArt := new(big.Int).Neg(art)
	if err := e.ledger.Seize(e.moduleAddress, symbol, owner, e.moduleAddress, e.revenue, dInk, dArt); err != nil {
		return 0, err
	}

	id, err := e.state.NextAuctionID()
	if err != nil {
		return 0, err
	}
	top := new(big.Int).Mul(class.Spot, params.StartPriceBuffer)
	top.Quo(top, coretypes.Ray)
	auction := &Auction{
		ID:         id,
		Symbol:     symbol,
		Tab:        tab,
		Lot:        new(big.Int).Set(ink),
		Owner:      owner,
		StartTime:  e.now(),
		StartPrice: top,
	}
	if err := e.state.PutAuction(auction); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.AuctionStarted{
		ID:         id,
		Symbol:     symbol,
		Owner:      owner.Bytes(),
		Tab:        new(big.Int).Set(tab),
		Lot:        new(big.Int).Set(auction.Lot),
		StartPrice: new(big.Int).Set(top),
	})
	return id, nil
}

// CurrentPrice returns the linearly decaying price for an auction at the
// given time: top at the start, zero at and beyond the duration.
func (e *Engine) CurrentPrice(auction *Auction, now uint64) *big.Int {
	if auction == nil || now < auction.StartTime {
		return new(big.Int)
	}
	elapsed := now - auction.StartTime
	if elapsed >= e.auctionDuration {
		return new(big.Int)
	}
	remaining := new(big.Int).SetUint64(e.auctionDuration - elapsed)
	price := new(big.Int).Mul(auction.StartPrice, remaining)
	return price.Quo(price, new(big.Int).SetUint64(e.auctionDuration))
}

// Take purchases up to maxLot collateral from an active auction at the
// current price, provided it does not exceed maxPrice. Payment is capped by
// the auction's remaining tab so a buyer never pays more than the outstanding
// debt; when the tab is cleared, leftover collateral is refunded to the
// original owner and the auction is deleted.
//
// The buyer pays through the ledger, so they must hold sufficient stablecoin
// and have approved this engine as an operator.
func (e *Engine) Take(buyer crypto.Address, id uint64, maxLot, maxPrice *big.Int) (*big.Int, *big.Int, error) {
	if e.state == nil {
		return nil, nil, ErrNilState
	}
	if e.ledger == nil {
		return nil, nil, ErrNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if maxLot == nil || maxLot.Sign() <= 0 || maxPrice == nil || maxPrice.Sign() < 0 {
		return nil, nil, ErrInvalidAmount
	}
	auction, err := e.state.GetAuction(id)
	if err != nil {
		return nil, nil, err
	}
	if auction == nil {
		return nil, nil, fmt.Errorf("%w: id %d", ErrAuctionNotFound, id)
	}

	now := e.now()
	if now >= auction.StartTime+e.auctionDuration {
		return nil, nil, fmt.Errorf("%w: id %d started at %d", ErrAuctionExpired, id, auction.StartTime)
	}
	price := e.CurrentPrice(auction, now)
	if price.Cmp(maxPrice) > 0 {
		return nil, nil, fmt.Errorf("%w: price %s, limit %s", ErrPriceTooHigh, price, maxPrice)
	}

	requested := new(big.Int).Set(maxLot)
	if requested.Cmp(auction.Lot) > 0 {
		requested.Set(auction.Lot)
	}
	// owe is Wad * Ray = Rad.
	owe := new(big.Int).Mul(requested, price)
	if owe.Cmp(auction.Tab) > 0 {
		// Cap the payment at the remaining debt and recompute the collateral
		// quantity from the capped value.
		owe.Set(auction.Tab)
		requested.Quo(owe, price)
	}

	if err := e.ledger.Transfer(e.moduleAddress, buyer, e.revenue, owe); err != nil {
		return nil, nil, err
	}
	if err := e.ledger.MoveFreeCollateral(e.moduleAddress, auction.Symbol, e.moduleAddress, buyer, requested); err != nil {
		return nil, nil, err
	}

	auction.Tab = new(big.Int).Sub(auction.Tab, owe)
	auction.Lot = new(big.Int).Sub(auction.Lot, requested)

	e.emitter.Emit(events.AuctionFilled{
		ID:           id,
		Buyer:        buyer.Bytes(),
		Paid:         new(big.Int).Set(owe),
		Sold:         new(big.Int).Set(requested),
		TabRemaining: new(big.Int).Set(auction.Tab),
		LotRemaining: new(big.Int).Set(auction.Lot),
	})

	switch {
	case auction.Lot.Sign() == 0:
		// Collateral exhausted; any uncovered tab stays recognized as bad
		// debt at the revenue account and is unwound via reconciliation.
		if err := e.state.DeleteAuction(id); err != nil {
			return nil, nil, err
		}
		e.emitter.Emit(events.AuctionClosed{ID: id, Refunded: new(big.Int)})
	case auction.Tab.Sign() == 0:
		refund := new(big.Int).Set(auction.Lot)
		if err := e.ledger.MoveFreeCollateral(e.moduleAddress, auction.Symbol, e.moduleAddress, auction.Owner, refund); err != nil {
			return nil, nil, err
		}
		if err := e.state.DeleteAuction(id); err != nil {
			return nil, nil, err
		}
		e.emitter.Emit(events.AuctionClosed{ID: id, Refunded: refund})
	default:
		if err := e.state.PutAuction(auction); err != nil {
			return nil, nil, err
		}
	}

	return requested, owe, nil
}

// AuctionInfo returns a copy of an active auction, or ErrAuctionNotFound.
func (e *Engine) AuctionInfo(id uint64) (*Auction, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	auction, err := e.state.GetAuction(id)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, fmt.Errorf("%w: id %d", ErrAuctionNotFound, id)
	}
	return auction.Clone(), nil
}

// ActiveAuctions lists every auction still in storage, expired ones included.
func (e *Engine) ActiveAuctions() ([]*Auction, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.state.ListAuctions()
}

func (e *Engine) loadParams(symbol string) (*LiquidationParams, error) {
	params, err := e.state.GetLiquidationParams(symbol)
	if err != nil {
		return nil, err
	}
	if params == nil || params.PenaltyFactor == nil || params.StartPriceBuffer == nil {
		return nil, fmt.Errorf("%w: %s", ErrParamsNotSet, symbol)
	}
	return params.Clone(), nil
}
