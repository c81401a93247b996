package events

import (
	"math/big"

	"vaultcore/core/types"
	"vaultcore/crypto"
)

const (
	TypeClassInitialized = "ledger.class.initialized"
	TypeClassParam       = "ledger.class.param"
	TypePositionAdjusted = "ledger.position.adjusted"
	TypeFeeAccrued       = "ledger.fee.accrued"
	TypePositionSeized   = "ledger.position.seized"
	TypeDebtReconciled   = "ledger.debt.reconciled"
)

// ClassInitialized marks the creation of a collateral class.
type ClassInitialized struct {
	Symbol string
}

func (ClassInitialized) EventType() string { return TypeClassInitialized }

func (e ClassInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeClassInitialized,
		Attributes: map[string]string{
			"symbol": e.Symbol,
		},
	}
}

// ClassParamUpdated records an owner parameter change on a class.
type ClassParamUpdated struct {
	Symbol string
	Param  string
	Value  *big.Int
}

func (ClassParamUpdated) EventType() string { return TypeClassParam }

func (e ClassParamUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeClassParam,
		Attributes: map[string]string{
			"symbol": e.Symbol,
			"param":  e.Param,
			"value":  formatAmount(e.Value),
		},
	}
}

// PositionAdjusted records an owner-driven position change.
type PositionAdjusted struct {
	Symbol          string
	Owner           []byte
	CollateralDelta *big.Int
	DebtDelta       *big.Int
}

func (PositionAdjusted) EventType() string { return TypePositionAdjusted }

func (e PositionAdjusted) Event() *types.Event {
	return &types.Event{
		Type: TypePositionAdjusted,
		Attributes: map[string]string{
			"symbol": e.Symbol,
			"owner":  formatAddress(e.Owner),
			"dInk":   formatAmount(e.CollateralDelta),
			"dArt":   formatAmount(e.DebtDelta),
		},
	}
}

// FeeAccrued records a rate-accumulator fold and the revenue it minted.
type FeeAccrued struct {
	Symbol      string
	Beneficiary []byte
	RateDelta   *big.Int
	Minted      *big.Int
}

func (FeeAccrued) EventType() string { return TypeFeeAccrued }

func (e FeeAccrued) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeAccrued,
		Attributes: map[string]string{
			"symbol":      e.Symbol,
			"beneficiary": formatAddress(e.Beneficiary),
			"dRate":       formatAmount(e.RateDelta),
			"minted":      formatAmount(e.Minted),
		},
	}
}

// PositionSeized records a forced removal of collateral and debt from a
// position.
type PositionSeized struct {
	Symbol          string
	Owner           []byte
	CollateralDelta *big.Int
	DebtDelta       *big.Int
}

func (PositionSeized) EventType() string { return TypePositionSeized }

func (e PositionSeized) Event() *types.Event {
	return &types.Event{
		Type: TypePositionSeized,
		Attributes: map[string]string{
			"symbol": e.Symbol,
			"owner":  formatAddress(e.Owner),
			"dInk":   formatAmount(e.CollateralDelta),
			"dArt":   formatAmount(e.DebtDelta),
		},
	}
}

// DebtReconciled records a cancellation of stablecoin against bad debt.
type DebtReconciled struct {
	Account []byte
	Amount  *big.Int
}

func (DebtReconciled) EventType() string { return TypeDebtReconciled }

func (e DebtReconciled) Event() *types.Event {
	return &types.Event{
		Type: TypeDebtReconciled,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"amount":  formatAmount(e.Amount),
		},
	}
}

func formatAddress(raw []byte) string {
	if len(raw) != 20 {
		return ""
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
