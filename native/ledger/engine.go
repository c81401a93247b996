package ledger

import (
	"fmt"
	"math/big"

	"vaultcore/core/events"
	coretypes "vaultcore/core/types"
	"vaultcore/crypto"
)

// Engine is the system of record: collateral classes, positions, free
// collateral, internal stablecoin balances, and the global debt aggregates.
// Every other component mutates state exclusively through this operation set,
// so the safety and ceiling checks live here and nowhere else.
//
// Operations validate fully before the first persistence write, so a failed
// call leaves no partial state behind.
type Engine struct {
	state   ledgerState
	owner   crypto.Address
	emitter events.Emitter
}

// NewEngine constructs a ledger engine owned by the given account. The owner
// is implicitly authorized for privileged operations and may authorize others.
func NewEngine(owner crypto.Address) *Engine {
	return &Engine{
		owner:   owner,
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state ledgerState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

func (e *Engine) requireAuth(caller crypto.Address) error {
	if e.state == nil {
		return ErrNilState
	}
	if caller.Equal(e.owner) {
		return nil
	}
	ok, err := e.state.IsAuthorized(caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, caller)
	}
	return nil
}

// Authorize grants an account the privileged operation set. Only privileged
// accounts may extend the set.
func (e *Engine) Authorize(caller, account crypto.Address) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	return e.state.SetAuthorized(account, true)
}

// Deauthorize removes an account from the privileged set.
func (e *Engine) Deauthorize(caller, account crypto.Address) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	return e.state.SetAuthorized(account, false)
}

// InitClass creates a collateral class with its rate accumulator at 1 Ray.
func (e *Engine) InitClass(caller crypto.Address, symbol string) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	existing, err := e.state.GetClass(symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrClassExists, symbol)
	}
	class := &CollateralClass{
		Rate:                new(big.Int).Set(coretypes.Ray),
		Spot:                new(big.Int),
		Line:                new(big.Int),
		Dust:                new(big.Int),
		TotalNormalizedDebt: new(big.Int),
	}
	if err := e.state.PutClass(symbol, class); err != nil {
		return err
	}
	e.emit(events.ClassInitialized{Symbol: symbol})
	return nil
}

// SetClassParam updates one named per-class field.
func (e *Engine) SetClassParam(caller crypto.Address, symbol string, param ClassParam, value *big.Int) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	if value == nil || value.Sign() < 0 {
		return ErrInvalidAmount
	}
	class, err := e.loadClass(symbol)
	if err != nil {
		return err
	}
	switch param {
	case ClassParamSpot:
		class.Spot = new(big.Int).Set(value)
	case ClassParamLine:
		class.Line = new(big.Int).Set(value)
	case ClassParamDust:
		class.Dust = new(big.Int).Set(value)
	case ClassParamRate:
		class.Rate = new(big.Int).Set(value)
	default:
		return fmt.Errorf("ledger: unknown class parameter %d", param)
	}
	if err := e.state.PutClass(symbol, class); err != nil {
		return err
	}
	e.emit(events.ClassParamUpdated{Symbol: symbol, Param: param.String(), Value: new(big.Int).Set(value)})
	return nil
}

// SetGlobalParam updates one named global field.
func (e *Engine) SetGlobalParam(caller crypto.Address, param GlobalParam, value *big.Int) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	if value == nil || value.Sign() < 0 {
		return ErrInvalidAmount
	}
	totals, err := e.loadTotals()
	if err != nil {
		return err
	}
	switch param {
	case GlobalParamCeiling:
		totals.GlobalCeiling = new(big.Int).Set(value)
	default:
		return fmt.Errorf("ledger: unknown global parameter %d", param)
	}
	return e.state.PutTotals(totals)
}

// AdjustFreeCollateral credits (or, for a negative delta, debits) unlocked
// collateral. Deposit and withdraw adapters call this around external token
// movements; it is privileged.
func (e *Engine) AdjustFreeCollateral(caller crypto.Address, symbol string, account crypto.Address, delta *big.Int) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	if delta == nil {
		return ErrInvalidAmount
	}
	balance, err := e.loadWad(e.state.GetFreeCollateral, symbol, account)
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(balance, delta)
	if updated.Sign() < 0 {
		return fmt.Errorf("%w: free collateral required %s, available %s", ErrInsufficientBalance, new(big.Int).Neg(delta), balance)
	}
	return e.state.PutFreeCollateral(symbol, account, updated)
}

// MoveFreeCollateral transfers unlocked collateral between accounts. Permitted
// when the caller is the source account or an approved operator for it.
func (e *Engine) MoveFreeCollateral(caller crypto.Address, symbol string, from, to crypto.Address, amount *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.requireConsent(from, caller); err != nil {
		return err
	}
	fromBalance, err := e.loadWad(e.state.GetFreeCollateral, symbol, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: free collateral required %s, available %s", ErrInsufficientBalance, amount, fromBalance)
	}
	toBalance, err := e.loadWad(e.state.GetFreeCollateral, symbol, to)
	if err != nil {
		return err
	}
	if err := e.state.PutFreeCollateral(symbol, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return e.state.PutFreeCollateral(symbol, to, new(big.Int).Add(toBalance, amount))
}

// AdjustPosition applies signed collateral and normalized-debt deltas to the
// caller's own position, moving collateral between the free balance and the
// position and minting or burning dArt*rate stablecoin against the caller.
// All checks are evaluated against the post-delta state.
func (e *Engine) AdjustPosition(owner crypto.Address, symbol string, dInk, dArt *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if dInk == nil || dArt == nil {
		return ErrInvalidAmount
	}
	class, err := e.loadClass(symbol)
	if err != nil {
		return err
	}
	position, err := e.loadPosition(symbol, owner)
	if err != nil {
		return err
	}
	free, err := e.loadWad(e.state.GetFreeCollateral, symbol, owner)
	if err != nil {
		return err
	}
	stable, err := e.loadRad(e.state.GetStable, owner)
	if err != nil {
		return err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return err
	}

	ink := new(big.Int).Add(position.LockedCollateral, dInk)
	art := new(big.Int).Add(position.NormalizedDebt, dArt)
	classArt := new(big.Int).Add(class.TotalNormalizedDebt, dArt)
	if ink.Sign() < 0 || art.Sign() < 0 || classArt.Sign() < 0 {
		return ErrNegativeResult
	}

	// dTab is the signed Rad of stablecoin minted (positive) or burned
	// (negative) by this adjustment.
	dTab := new(big.Int).Mul(class.Rate, dArt)
	tab := new(big.Int).Mul(art, class.Rate)

	freeAfter := new(big.Int).Sub(free, dInk)
	if freeAfter.Sign() < 0 {
		return fmt.Errorf("%w: free collateral required %s, available %s", ErrInsufficientBalance, dInk, free)
	}
	stableAfter := new(big.Int).Add(stable, dTab)
	if stableAfter.Sign() < 0 {
		return fmt.Errorf("%w: stablecoin required %s, available %s", ErrInsufficientBalance, new(big.Int).Neg(dTab), stable)
	}
	debtAfter := new(big.Int).Add(totals.TotalDebt, dTab)

	// Ceilings only constrain debt growth; repayment stays possible even when
	// accrued interest has pushed a class over its line.
	if dArt.Sign() > 0 {
		classDebt := new(big.Int).Mul(classArt, class.Rate)
		if classDebt.Cmp(class.Line) > 0 {
			return fmt.Errorf("%w: class debt %s, line %s", ErrCeilingExceeded, classDebt, class.Line)
		}
		if debtAfter.Cmp(totals.GlobalCeiling) > 0 {
			return fmt.Errorf("%w: total debt %s, ceiling %s", ErrGlobalCeilingExceeded, debtAfter, totals.GlobalCeiling)
		}
	}

	if art.Sign() != 0 && tab.Cmp(class.Dust) < 0 {
		return fmt.Errorf("%w: debt %s, dust %s", ErrDustViolation, tab, class.Dust)
	}

	// Risk-reducing adjustments bypass the safety check so an under-water
	// owner can always repay or unlock.
	riskReducing := dInk.Sign() <= 0 && dArt.Sign() <= 0
	if !riskReducing {
		limit := new(big.Int).Mul(ink, class.Spot)
		if tab.Cmp(limit) > 0 {
			return fmt.Errorf("%w: debt %s, collateral value %s", ErrUnsafe, tab, limit)
		}
	}

	position.LockedCollateral = ink
	position.NormalizedDebt = art
	class.TotalNormalizedDebt = classArt
	totals.TotalDebt = debtAfter

	if err := e.state.PutFreeCollateral(symbol, owner, freeAfter); err != nil {
		return err
	}
	if err := e.state.PutPosition(symbol, owner, position); err != nil {
		return err
	}
	if err := e.state.PutClass(symbol, class); err != nil {
		return err
	}
	if err := e.state.PutStable(owner, stableAfter); err != nil {
		return err
	}
	if err := e.state.PutTotals(totals); err != nil {
		return err
	}
	e.emit(events.PositionAdjusted{
		Symbol:          symbol,
		Owner:           owner.Bytes(),
		CollateralDelta: new(big.Int).Set(dInk),
		DebtDelta:       new(big.Int).Set(dArt),
	})
	return nil
}

// Accrue folds dRate into the class rate accumulator and mints the accrued
// interest, Art*dRate, to the beneficiary. This is the only place the rate
// changes after initialization; the fee accrual module drives it.
func (e *Engine) Accrue(caller crypto.Address, symbol string, beneficiary crypto.Address, dRate *big.Int) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	if dRate == nil {
		return ErrInvalidAmount
	}
	class, err := e.loadClass(symbol)
	if err != nil {
		return err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return err
	}
	stable, err := e.loadRad(e.state.GetStable, beneficiary)
	if err != nil {
		return err
	}

	minted := new(big.Int).Mul(class.TotalNormalizedDebt, dRate)
	stableAfter := new(big.Int).Add(stable, minted)
	if stableAfter.Sign() < 0 {
		return fmt.Errorf("%w: stablecoin required %s, available %s", ErrInsufficientBalance, new(big.Int).Neg(minted), stable)
	}
	rateAfter := new(big.Int).Add(class.Rate, dRate)
	if rateAfter.Sign() < 0 {
		return ErrNegativeResult
	}

	class.Rate = rateAfter
	totals.TotalDebt = new(big.Int).Add(totals.TotalDebt, minted)

	if err := e.state.PutClass(symbol, class); err != nil {
		return err
	}
	if err := e.state.PutStable(beneficiary, stableAfter); err != nil {
		return err
	}
	if err := e.state.PutTotals(totals); err != nil {
		return err
	}
	e.emit(events.FeeAccrued{
		Symbol:      symbol,
		Beneficiary: beneficiary.Bytes(),
		RateDelta:   new(big.Int).Set(dRate),
		Minted:      minted,
	})
	return nil
}

// Seize forcibly applies dInk/dArt to an unsafe position without a safety
// check, crediting the removed collateral to collateralDst as a free balance
// and recognizing -dArt*rate as bad debt against debtDst.
func (e *Engine) Seize(caller crypto.Address, symbol string, owner, collateralDst, debtDst crypto.Address, dInk, dArt *big.Int) error {
	if err := e.requireAuth(caller); err != nil {
		return err
	}
	if dInk == nil || dArt == nil {
		return ErrInvalidAmount
	}
	class, err := e.loadClass(symbol)
	if err != nil {
		return err
	}
	position, err := e.loadPosition(symbol, owner)
	if err != nil {
		return err
	}
	collateral, err := e.loadWad(e.state.GetFreeCollateral, symbol, collateralDst)
	if err != nil {
		return err
	}
	badDebt, err := e.loadRad(e.state.GetBadDebt, debtDst)
	if err != nil {
		return err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return err
	}

	ink := new(big.Int).Add(position.LockedCollateral, dInk)
	art := new(big.Int).Add(position.NormalizedDebt, dArt)
	classArt := new(big.Int).Add(class.TotalNormalizedDebt, dArt)
	if ink.Sign() < 0 || art.Sign() < 0 || classArt.Sign() < 0 {
		return ErrNegativeResult
	}

	dTab := new(big.Int).Mul(class.Rate, dArt)
	collateralAfter := new(big.Int).Sub(collateral, dInk)
	badDebtAfter := new(big.Int).Sub(badDebt, dTab)
	badDebtTotal := new(big.Int).Sub(totals.TotalBadDebt, dTab)
	if collateralAfter.Sign() < 0 || badDebtAfter.Sign() < 0 || badDebtTotal.Sign() < 0 {
		return ErrNegativeResult
	}

	position.LockedCollateral = ink
	position.NormalizedDebt = art
	class.TotalNormalizedDebt = classArt
	totals.TotalBadDebt = badDebtTotal

	if err := e.state.PutPosition(symbol, owner, position); err != nil {
		return err
	}
	if err := e.state.PutClass(symbol, class); err != nil {
		return err
	}
	if err := e.state.PutFreeCollateral(symbol, collateralDst, collateralAfter); err != nil {
		return err
	}
	if err := e.state.PutBadDebt(debtDst, badDebtAfter); err != nil {
		return err
	}
	if err := e.state.PutTotals(totals); err != nil {
		return err
	}
	e.emit(events.PositionSeized{
		Symbol:          symbol,
		Owner:           owner.Bytes(),
		CollateralDelta: new(big.Int).Set(dInk),
		DebtDelta:       new(big.Int).Set(dArt),
	})
	return nil
}

// Reconcile cancels an equal amount of the caller's stablecoin balance and
// recognized bad debt, shrinking both global aggregates.
func (e *Engine) Reconcile(caller crypto.Address, amount *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	stable, err := e.loadRad(e.state.GetStable, caller)
	if err != nil {
		return err
	}
	badDebt, err := e.loadRad(e.state.GetBadDebt, caller)
	if err != nil {
		return err
	}
	totals, err := e.loadTotals()
	if err != nil {
		return err
	}
	if stable.Cmp(amount) < 0 {
		return fmt.Errorf("%w: stablecoin required %s, available %s", ErrInsufficientBalance, amount, stable)
	}
	if badDebt.Cmp(amount) < 0 {
		return fmt.Errorf("%w: bad debt required %s, available %s", ErrInsufficientBalance, amount, badDebt)
	}

	totals.TotalDebt = new(big.Int).Sub(totals.TotalDebt, amount)
	totals.TotalBadDebt = new(big.Int).Sub(totals.TotalBadDebt, amount)
	if totals.TotalDebt.Sign() < 0 || totals.TotalBadDebt.Sign() < 0 {
		return ErrNegativeResult
	}

	if err := e.state.PutStable(caller, new(big.Int).Sub(stable, amount)); err != nil {
		return err
	}
	if err := e.state.PutBadDebt(caller, new(big.Int).Sub(badDebt, amount)); err != nil {
		return err
	}
	if err := e.state.PutTotals(totals); err != nil {
		return err
	}
	e.emit(events.DebtReconciled{Account: caller.Bytes(), Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves internal stablecoin between accounts. Permitted when the
// caller is the source account or an approved operator for it.
func (e *Engine) Transfer(caller, from, to crypto.Address, amount *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.requireConsent(from, caller); err != nil {
		return err
	}
	fromBalance, err := e.loadRad(e.state.GetStable, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: stablecoin required %s, available %s", ErrInsufficientBalance, amount, fromBalance)
	}
	toBalance, err := e.loadRad(e.state.GetStable, to)
	if err != nil {
		return err
	}
	if err := e.state.PutStable(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return e.state.PutStable(to, new(big.Int).Add(toBalance, amount))
}

// ApproveOperator lets the operator move the caller's balances on their
// behalf.
func (e *Engine) ApproveOperator(caller, operator crypto.Address) error {
	if e.state == nil {
		return ErrNilState
	}
	return e.state.SetOperator(caller, operator, true)
}

// RevokeOperator withdraws a previously granted approval.
func (e *Engine) RevokeOperator(caller, operator crypto.Address) error {
	if e.state == nil {
		return ErrNilState
	}
	return e.state.SetOperator(caller, operator, false)
}

// --- read-only queries ---

// Class returns a copy of the class record, or ErrClassNotFound.
func (e *Engine) Class(symbol string) (*CollateralClass, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	class, err := e.loadClass(symbol)
	if err != nil {
		return nil, err
	}
	return class, nil
}

// Position returns a copy of the owner's position; a never-touched position
// reads as (0, 0).
func (e *Engine) Position(symbol string, owner crypto.Address) (*Position, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadPosition(symbol, owner)
}

// FreeCollateral returns the unlocked collateral balance for the account.
func (e *Engine) FreeCollateral(symbol string, addr crypto.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadWad(e.state.GetFreeCollateral, symbol, addr)
}

// StableBalance returns the internal stablecoin balance for the account.
func (e *Engine) StableBalance(addr crypto.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadRad(e.state.GetStable, addr)
}

// BadDebt returns the recognized bad debt held by the account.
func (e *Engine) BadDebt(addr crypto.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadRad(e.state.GetBadDebt, addr)
}

// GlobalTotals returns a copy of the global aggregates.
func (e *Engine) GlobalTotals() (*Totals, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadTotals()
}

// IsSafe reports whether a position satisfies the safety condition
// ink*spot >= art*rate (trivially true with no debt).
func (e *Engine) IsSafe(symbol string, owner crypto.Address) (bool, error) {
	if e.state == nil {
		return false, ErrNilState
	}
	class, err := e.loadClass(symbol)
	if err != nil {
		return false, err
	}
	position, err := e.loadPosition(symbol, owner)
	if err != nil {
		return false, err
	}
	if position.NormalizedDebt.Sign() == 0 {
		return true, nil
	}
	tab := new(big.Int).Mul(position.NormalizedDebt, class.Rate)
	limit := new(big.Int).Mul(position.LockedCollateral, class.Spot)
	return limit.Cmp(tab) >= 0, nil
}

// --- loaders ---

func (e *Engine) loadClass(symbol string) (*CollateralClass, error) {
	class, err := e.state.GetClass(symbol)
	if err != nil {
		return nil, err
	}
	if class == nil {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, symbol)
	}
	class.Rate = copyBig(class.Rate)
	class.Spot = copyBig(class.Spot)
	class.Line = copyBig(class.Line)
	class.Dust = copyBig(class.Dust)
	class.TotalNormalizedDebt = copyBig(class.TotalNormalizedDebt)
	if class.Rate.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, symbol)
	}
	return class, nil
}

func (e *Engine) loadPosition(symbol string, owner crypto.Address) (*Position, error) {
	position, err := e.state.GetPosition(symbol, owner)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{}
	}
	position.LockedCollateral = copyBig(position.LockedCollateral)
	position.NormalizedDebt = copyBig(position.NormalizedDebt)
	return position, nil
}

func (e *Engine) loadWad(get func(string, crypto.Address) (*big.Int, error), symbol string, addr crypto.Address) (*big.Int, error) {
	balance, err := get(symbol, addr)
	if err != nil {
		return nil, err
	}
	return copyBig(balance), nil
}

func (e *Engine) loadRad(get func(crypto.Address) (*big.Int, error), addr crypto.Address) (*big.Int, error) {
	balance, err := get(addr)
	if err != nil {
		return nil, err
	}
	return copyBig(balance), nil
}

func (e *Engine) loadTotals() (*Totals, error) {
	totals, err := e.state.GetTotals()
	if err != nil {
		return nil, err
	}
	if totals == nil {
		totals = &Totals{}
	}
	totals.TotalDebt = copyBig(totals.TotalDebt)
	totals.TotalBadDebt = copyBig(totals.TotalBadDebt)
	totals.GlobalCeiling = copyBig(totals.GlobalCeiling)
	return totals, nil
}

func (e *Engine) requireConsent(owner, caller crypto.Address) error {
	if owner.Equal(caller) {
		return nil
	}
	ok, err := e.state.IsOperator(owner, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not an operator for %s", ErrNotOperator, caller, owner)
	}
	return nil
}
