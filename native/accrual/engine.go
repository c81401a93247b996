package accrual

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

const moduleName = "accrual"

var (
	ErrNilState      = errors.New("accrual: state not configured")
	ErrNilLedger     = errors.New("accrual: ledger not configured")
	ErrClassExists   = errors.New("accrual: class already initialized")
	ErrClassNotFound = errors.New("accrual: class not initialized")
	ErrInvalidDuty   = errors.New("accrual: duty must be at least 1 ray")
	ErrClockDrift    = errors.New("accrual: last accrual is in the future")
)

// FeeClass holds the per-class compounding parameters: DutyPerSecond is the
// Ray-scaled one-second factor (1 Ray means no fee), LastAccrual the unix time
// of the last fold.
type FeeClass struct {
	DutyPerSecond *big.Int
	LastAccrual   uint64
}

// Clone returns a deep copy of the fee class record.
func (c *FeeClass) Clone() *FeeClass {
	if c == nil {
		return nil
	}
	clone := &FeeClass{LastAccrual: c.LastAccrual}
	if c.DutyPerSecond != nil {
		clone.DutyPerSecond = new(big.Int).Set(c.DutyPerSecond)
	}
	return clone
}

type accrualState interface {
	GetFeeClass(symbol string) (*FeeClass, error)
	PutFeeClass(symbol string, class *FeeClass) error
}

// ledgerAPI is the slice of the ledger the accrual module drives.
type ledgerAPI interface {
	Class(symbol string) (*ledger.CollateralClass, error)
	Accrue(caller crypto.Address, symbol string, beneficiary crypto.Address, dRate *big.Int) error
}

// Engine compounds each class's per-second duty into the ledger's rate
// accumulator, minting the accrued interest to the revenue account. Anyone may
// drive it; calling is economically neutral and idempotent within one second.
type Engine struct {
	state         accrualState
	ledger        ledgerAPI
	moduleAddress crypto.Address
	revenue       crypto.Address
	baseRate      *big.Int
	now           func() uint64
	emitter       events.Emitter
	pauses        nativecommon.PauseView
}

// NewEngine constructs an accrual engine. moduleAddr is the authorized account
// the engine uses when calling the ledger; revenue receives minted fees.
func NewEngine(moduleAddr, revenue crypto.Address) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		revenue:       revenue,
		baseRate:      new(big.Int),
		now:           func() uint64 { return uint64(time.Now().Unix()) },
		emitter:       events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state accrualState) { e.state = state }

// SetLedger wires the ledger the engine folds rates into.
func (e *Engine) SetLedger(l ledgerAPI) { e.ledger = l }

// SetPauses installs the breaker view consulted before accruing.
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

// SetBaseRate configures the global per-second rate added to every class duty
// before compounding. Zero disables it.
func (e *Engine) SetBaseRate(rate *big.Int) {
	if rate == nil {
		e.baseRate = new(big.Int)
		return
	}
	e.baseRate = new(big.Int).Set(rate)
}

// ModuleAddress returns the account the engine acts as against the ledger.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// InitClass registers a class for fee accrual with a neutral duty and
// LastAccrual at the current time.
func (e *Engine) InitClass(symbol string) error {
	if e.state == nil {
		return ErrNilState
	}
	existing, err := e.state.GetFeeClass(symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrClassExists, symbol)
	}
	class := &FeeClass{
		DutyPerSecond: new(big.Int).Set(coretypes.Ray),
		LastAccrual:   e.now(),
	}
	return e.state.PutFeeClass(symbol, class)
}

// SetDuty updates the per-second compounding factor for a class. The pending
// period must be accrued first so the old duty cannot be applied
// retroactively; callers are expected to Accrue before SetDuty.
func (e *Engine) SetDuty(symbol string, duty *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if duty == nil || duty.Cmp(coretypes.Ray) < 0 {
		return ErrInvalidDuty
	}
	class, err := e.loadFeeClass(symbol)
	if err != nil {
		return err
	}
	class.DutyPerSecond = new(big.Int).Set(duty)
	return e.state.PutFeeClass(symbol, class)
}

// FeeClassInfo returns a copy of the per-class accrual record.
func (e *Engine) FeeClassInfo(symbol string) (*FeeClass, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadFeeClass(symbol)
}

// Accrue compounds the class duty over the elapsed seconds since the last
// accrual and folds the resulting rate delta into the ledger, minting the
// accrued interest to the revenue account. Zero elapsed time is a no-op.
func (e *Engine) Accrue(symbol string) (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if e.ledger == nil {
		return nil, ErrNilLedger
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	class, err := e.loadFeeClass(symbol)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if now < class.LastAccrual {
		return nil, fmt.Errorf("%w: last %d, now %d", ErrClockDrift, class.LastAccrual, now)
	}
	elapsed := now - class.LastAccrual
	if elapsed == 0 {
		return new(big.Int), nil
	}

	ledgerClass, err := e.ledger.Class(symbol)
	if err != nil {
		return nil, err
	}

	factor := new(big.Int).Add(e.baseRate, class.DutyPerSecond)
	multiplier := Rpow(factor, elapsed, ray)
	newRate := rayMul(ledgerClass.Rate, multiplier)
	dRate := new(big.Int).Sub(newRate, ledgerClass.Rate)

	if err := e.ledger.Accrue(e.moduleAddress, symbol, e.revenue, dRate); err != nil {
		return nil, err
	}

	class.LastAccrual = now
	if err := e.state.PutFeeClass(symbol, class); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ClassAccrued{
		Symbol:    symbol,
		Elapsed:   elapsed,
		RateDelta: new(big.Int).Set(dRate),
	})
	return dRate, nil
}

func (e *Engine) loadFeeClass(symbol string) (*FeeClass, error) {
	class, err := e.state.GetFeeClass(symbol)
	if err != nil {
		return nil, err
	}
	if class == nil {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, symbol)
	}
	if class.DutyPerSecond == nil {
		class.DutyPerSecond = new(big.Int).Set(coretypes.Ray)
	} else {
		class.DutyPerSecond = new(big.Int).Set(class.DutyPerSecond)
	}
	return class, nil
}
