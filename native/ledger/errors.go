package ledger

import "errors"

var (
	ErrNilState              = errors.New("ledger: state not configured")
	ErrNotAuthorized         = errors.New("ledger: caller not authorized")
	ErrNotOperator           = errors.New("ledger: caller not approved as operator")
	ErrClassExists           = errors.New("ledger: collateral class already initialized")
	ErrClassNotFound         = errors.New("ledger: collateral class not initialized")
	ErrUnsafe                = errors.New("ledger: position would be unsafe")
	ErrCeilingExceeded       = errors.New("ledger: class debt ceiling exceeded")
	ErrGlobalCeilingExceeded = errors.New("ledger: global debt ceiling exceeded")
	ErrDustViolation         = errors.New("ledger: non-zero debt below dust threshold")
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInvalidAmount         = errors.New("ledger: amount must be positive")
	ErrNegativeResult        = errors.New("ledger: adjustment would drive a balance negative")
)
