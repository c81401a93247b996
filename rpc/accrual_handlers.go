package rpc

import (
	"net/http"
)

type accrualClassParams struct {
	Symbol string `json:"symbol"`
}

type setDutyParams struct {
	Symbol        string `json:"symbol"`
	DutyPerSecond string `json:"dutyPerSecond"`
}

type feeClassResult struct {
	Symbol        string `json:"symbol"`
	DutyPerSecond string `json:"dutyPerSecond"`
	LastAccrual   uint64 `json:"lastAccrual"`
}

type accrueResult struct {
	Symbol    string `json:"symbol"`
	RateDelta string `json:"rateDelta"`
}

func (s *Server) handleAccrualInitClass(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input accrualClassParams
	if !decodeParams(w, req, &input) {
		return
	}
	if err := s.accrual.InitClass(input.Symbol); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"symbol": input.Symbol})
}

func (s *Server) handleAccrualSetDuty(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input setDutyParams
	if !decodeParams(w, req, &input) {
		return
	}
	duty, err := parseUnsignedAmount(input.DutyPerSecond)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid dutyPerSecond", err.Error())
		return
	}
	if err := s.accrual.SetDuty(input.Symbol, duty); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"symbol": input.Symbol, "dutyPerSecond": duty.String()})
}

func (s *Server) handleAccrualGetClass(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input accrualClassParams
	if !decodeParams(w, req, &input) {
		return
	}
	class, err := s.accrual.FeeClassInfo(input.Symbol)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feeClassResult{
		Symbol:        input.Symbol,
		DutyPerSecond: bigString(class.DutyPerSecond),
		LastAccrual:   class.LastAccrual,
	})
}

func (s *Server) handleAccrualAccrue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input accrualClassParams
	if !decodeParams(w, req, &input) {
		return
	}
	rateDelta, err := s.accrual.Accrue(input.Symbol)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, accrueResult{Symbol: input.Symbol, RateDelta: bigString(rateDelta)})
}
