package events

import (
	"math/big"
	"strconv"

	"vaultcore/core/types"
)

const TypeClassAccrued = "accrual.class.accrued"

// ClassAccrued records a stability-fee compounding pass over a class.
type ClassAccrued struct {
	Symbol    string
	Elapsed   uint64
	RateDelta *big.Int
}

func (ClassAccrued) EventType() string { return TypeClassAccrued }

func (e ClassAccrued) Event() *types.Event {
	return &types.Event{
		Type: TypeClassAccrued,
		Attributes: map[string]string{
			"symbol":  e.Symbol,
			"elapsed": strconv.FormatUint(e.Elapsed, 10),
			"dRate":   formatAmount(e.RateDelta),
		},
	}
}
