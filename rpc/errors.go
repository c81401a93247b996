package rpc

import (
	"errors"
	"net/http"

	"vaultcore/native/accrual"
	"vaultcore/native/common"
	"vaultcore/native/ledger"
	"vaultcore/native/liquidation"
)

// writeEngineError maps engine sentinel errors onto JSON-RPC error codes so
// clients can distinguish authorization failures, missing records and rule
// rejections without string matching.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotAuthorized),
		errors.Is(err, ledger.ErrNotOperator),
		errors.Is(err, common.ErrModulePaused):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, ledger.ErrClassNotFound),
		errors.Is(err, accrual.ErrClassNotFound),
		errors.Is(err, liquidation.ErrParamsNotSet),
		errors.Is(err, liquidation.ErrAuctionNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, liquidation.ErrInvalidAmount),
		errors.Is(err, accrual.ErrInvalidDuty):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, ledger.ErrClassExists),
		errors.Is(err, accrual.ErrClassExists),
		errors.Is(err, ledger.ErrUnsafe),
		errors.Is(err, ledger.ErrCeilingExceeded),
		errors.Is(err, ledger.ErrGlobalCeilingExceeded),
		errors.Is(err, ledger.ErrDustViolation),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrNegativeResult),
		errors.Is(err, liquidation.ErrVaultIsSafe),
		errors.Is(err, liquidation.ErrNothingToSeize),
		errors.Is(err, liquidation.ErrAuctionExpired),
		errors.Is(err, liquidation.ErrPriceTooHigh),
		errors.Is(err, liquidation.ErrSpotUnset),
		errors.Is(err, accrual.ErrClockDrift):
		writeError(w, http.StatusConflict, id, codeEngineReject, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}
