package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"vaultcore/crypto"
	"vaultcore/native/ledger"
)

type classParams struct {
	Caller string `json:"caller"`
	Symbol string `json:"symbol"`
}

type setClassParamParams struct {
	Caller string `json:"caller"`
	Symbol string `json:"symbol"`
	Param  string `json:"param"`
	Value  string `json:"value"`
}

type setGlobalParamParams struct {
	Caller string `json:"caller"`
	Param  string `json:"param"`
	Value  string `json:"value"`
}

type accountParams struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
}

type adjustFreeCollateralParams struct {
	Caller  string `json:"caller"`
	Symbol  string `json:"symbol"`
	Account string `json:"account"`
	Delta   string `json:"delta"`
}

type moveFreeCollateralParams struct {
	Caller    string `json:"caller"`
	Symbol    string `json:"symbol"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

type adjustPositionParams struct {
	Owner           string `json:"owner"`
	Symbol          string `json:"symbol"`
	CollateralDelta string `json:"collateralDelta"`
	DebtDelta       string `json:"debtDelta"`
	Signature       string `json:"signature"`
}

type transferStableParams struct {
	Caller    string `json:"caller"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

type operatorParams struct {
	Caller    string `json:"caller"`
	Operator  string `json:"operator"`
	Signature string `json:"signature"`
}

type reconcileParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type positionQueryParams struct {
	Symbol string `json:"symbol"`
	Owner  string `json:"owner"`
}

type balanceQueryParams struct {
	Symbol  string `json:"symbol,omitempty"`
	Address string `json:"address"`
}

type classResult struct {
	Symbol              string `json:"symbol"`
	Rate                string `json:"rate"`
	Spot                string `json:"spot"`
	Line                string `json:"line"`
	Dust                string `json:"dust"`
	TotalNormalizedDebt string `json:"totalNormalizedDebt"`
}

type positionResult struct {
	Symbol           string `json:"symbol"`
	Owner            string `json:"owner"`
	LockedCollateral string `json:"lockedCollateral"`
	NormalizedDebt   string `json:"normalizedDebt"`
}

type balanceResult struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type totalsResult struct {
	TotalDebt     string `json:"totalDebt"`
	TotalBadDebt  string `json:"totalBadDebt"`
	GlobalCeiling string `json:"globalCeiling"`
}

type safetyResult struct {
	Symbol string `json:"symbol"`
	Owner  string `json:"owner"`
	Safe   bool   `json:"safe"`
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func (s *Server) handleLedgerInitClass(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input classParams
	if !decodeParams(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.ledger.InitClass(caller, input.Symbol); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"symbol": input.Symbol})
}

func classParamFromString(name string) (ledger.ClassParam, bool) {
	switch strings.TrimSpace(name) {
	case "spot":
		return ledger.ClassParamSpot, true
	case "line":
		return ledger.ClassParamLine, true
	case "dust":
		return ledger.ClassParamDust, true
	case "rate":
		return ledger.ClassParamRate, true
	}
	return 0, false
}

func (s *Server) handleLedgerSetClassParam(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input setClassParamParams
	if !decodeParams(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	param, ok := classParamFromString(input.Param)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "param must be spot, line, dust or rate", input.Param)
		return
	}
	value, err := parseUnsignedAmount(input.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid value", err.Error())
		return
	}
	if err := s.ledger.SetClassParam(caller, input.Symbol, param, value); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"symbol": input.Symbol, "param": param.String(), "value": value.String()})
}

func (s *Server) handleLedgerSetGlobalParam(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input setGlobalParamParams
	if !decodeParams(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if strings.TrimSpace(input.Param) != "globalCeiling" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "param must be globalCeiling", input.Param)
		return
	}
	value, err := parseUnsignedAmount(input.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid value", err.Error())
		return
	}
	if err := s.ledger.SetGlobalParam(caller, ledger.GlobalParamCeiling, value); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"param": "globalCeiling", "value": value.String()})
}

func (s *Server) handleLedgerAuthorize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleAuthChange(w, req, s.ledger.Authorize)
}

func (s *Server) handleLedgerDeauthorize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleAuthChange(w, req, s.ledger.Deauthorize)
}

func (s *Server) handleAuthChange(w http.ResponseWriter, req *RPCRequest, change func(caller, account crypto.Address) error) {
	var input accountParams
	if !decodeParams(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	account, err := decodeBech32(input.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account", err.Error())
		return
	}
	if err := change(caller, account); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"account": account.String()})
}

func (s *Server) handleLedgerAdjustFreeCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input adjustFreeCollateralParams
	if !decodeParams(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	account, err := decodeBech32(input.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account", err.Error())
		return
	}
	delta, err := parseAmount(input.Delta)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid delta", err.Error())
		return
	}
	if err := s.ledger.AdjustFreeCollateral(caller, input.Symbol, account, delta); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	balance, err := s.ledger.FreeCollateral(input.Symbol, account)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: account.String(), Amount: bigString(balance)})
}

func (s *Server) handleLedgerMoveFreeCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input moveFreeCollateralParams
	if !decodeParams(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	from, err := decodeBech32(input.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from address", err.Error())
		return
	}
	to, err := decodeBech32(input.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", err.Error())
		return
	}
	amount, err := parseUnsignedAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	digest := SigningDigest(req.Method, input.Caller, input.Symbol, input.From, input.To, input.Amount)
	if !requireSignature(w, req, caller, input.Signature, digest) {
		return
	}
	if err := s.ledger.MoveFreeCollateral(caller, input.Symbol, from, to, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"from": from.String(), "to": to.String(), "amount": amount.String()})
}

func (s *Server) handleLedgerAdjustPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input adjustPositionParams
	if !decodeParams(w, req, &input) {
		return
	}
	owner, err := decodeBech32(input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	dInk, err := parseAmount(input.CollateralDelta)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid collateralDelta", err.Error())
		return
	}
	dArt, err := parseAmount(input.DebtDelta)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid debtDelta", err.Error())
		return
	}
	digest := SigningDigest(req.Method, input.Owner, input.Symbol, input.CollateralDelta, input.DebtDelta)
	if !requireSignature(w, req, owner, input.Signature, digest) {
		return
	}
	if err := s.ledger.AdjustPosition(owner, input.Symbol, dInk, dArt); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	position, err := s.ledger.Position(input.Symbol, owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionResult{
		Symbol:           input.Symbol,
		Owner:            owner.String(),
		LockedCollateral: bigString(position.LockedCollateral),
		NormalizedDebt:   bigString(position.NormalizedDebt),
	})
}

func (s *Server) handleLedgerTransferStable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input transferStableParams
	if !decodeParams(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	from, err := decodeBech32(input.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from address", err.Error())
		return
	}
	to, err := decodeBech32(input.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", err.Error())
		return
	}
	amount, err := parseUnsignedAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	digest := SigningDigest(req.Method, input.Caller, input.From, input.To, input.Amount)
	if !requireSignature(w, req, caller, input.Signature, digest) {
		return
	}
	if err := s.ledger.Transfer(caller, from, to, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"from": from.String(), "to": to.String(), "amount": amount.String()})
}

func (s *Server) handleLedgerApproveOperator(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleOperatorChange(w, req, s.ledger.ApproveOperator, true)
}

func (s *Server) handleLedgerRevokeOperator(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleOperatorChange(w, req, s.ledger.RevokeOperator, false)
}

func (s *Server) handleOperatorChange(w http.ResponseWriter, req *RPCRequest, change func(caller, operator crypto.Address) error, approved bool) {
	var input operatorParams
	if !decodeParams(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	operator, err := decodeBech32(input.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid operator", err.Error())
		return
	}
	digest := SigningDigest(req.Method, input.Caller, input.Operator)
	if !requireSignature(w, req, caller, input.Signature, digest) {
		return
	}
	if err := change(caller, operator); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"operator": operator.String(), "approved": approved})
}

func (s *Server) handleLedgerReconcile(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input reconcileParams
	if !decodeParams(w, req, &input) {
		return
	}
	caller, err := decodeBech32(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	amount, err := parseUnsignedAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.ledger.Reconcile(caller, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	totals, err := s.ledger.GlobalTotals()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, totalsResult{
		TotalDebt:     bigString(totals.TotalDebt),
		TotalBadDebt:  bigString(totals.TotalBadDebt),
		GlobalCeiling: bigString(totals.GlobalCeiling),
	})
}

func (s *Server) handleLedgerGetClass(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input classParams
	if !decodeParams(w, req, &input) {
		return
	}
	class, err := s.ledger.Class(input.Symbol)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, classResult{
		Symbol:              input.Symbol,
		Rate:                bigString(class.Rate),
		Spot:                bigString(class.Spot),
		Line:                bigString(class.Line),
		Dust:                bigString(class.Dust),
		TotalNormalizedDebt: bigString(class.TotalNormalizedDebt),
	})
}

func (s *Server) handleLedgerGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input positionQueryParams
	if !decodeParams(w, req, &input) {
		return
	}
	owner, err := decodeBech32(input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	position, err := s.ledger.Position(input.Symbol, owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, positionResult{
		Symbol:           input.Symbol,
		Owner:            owner.String(),
		LockedCollateral: bigString(position.LockedCollateral),
		NormalizedDebt:   bigString(position.NormalizedDebt),
	})
}

func (s *Server) handleLedgerGetFreeCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input balanceQueryParams
	if !decodeParams(w, req, &input) {
		return
	}
	addr, err := decodeBech32(input.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.ledger.FreeCollateral(input.Symbol, addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Amount: bigString(balance)})
}

func (s *Server) handleLedgerGetStableBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleRadBalance(w, req, s.ledger.StableBalance)
}

func (s *Server) handleLedgerGetBadDebt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleRadBalance(w, req, s.ledger.BadDebt)
}

func (s *Server) handleRadBalance(w http.ResponseWriter, req *RPCRequest, load func(crypto.Address) (*big.Int, error)) {
	var input balanceQueryParams
	if !decodeParams(w, req, &input) {
		return
	}
	addr, err := decodeBech32(input.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := load(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Amount: bigString(balance)})
}

func (s *Server) handleLedgerGetTotals(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	totals, err := s.ledger.GlobalTotals()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, totalsResult{
		TotalDebt:     bigString(totals.TotalDebt),
		TotalBadDebt:  bigString(totals.TotalBadDebt),
		GlobalCeiling: bigString(totals.GlobalCeiling),
	})
}

func (s *Server) handleLedgerIsSafe(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input positionQueryParams
	if !decodeParams(w, req, &input) {
		return
	}
	owner, err := decodeBech32(input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	safe, err := s.ledger.IsSafe(input.Symbol, owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, safetyResult{Symbol: input.Symbol, Owner: owner.String(), Safe: safe})
}
