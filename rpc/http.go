package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vaultcore/native/accrual"
	"vaultcore/native/common"
	"vaultcore/native/ledger"
	"vaultcore/native/liquidation"
	"vaultcore/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	// Mutating requests per second tolerated from a single source before
	// the limiter rejects with codeRateLimited.
	mutationRatePerSecond = 5
	mutationBurst         = 10
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeEngineReject   = -32030
)

// Server exposes the vault engines over JSON-RPC 2.0. Administrative methods
// require a bearer token; mutating user methods are rate limited per source
// and carry an operator-key signature binding the caller address.
type Server struct {
	ledger      *ledger.Engine
	accrual     *accrual.Engine
	liquidation *liquidation.Engine
	switchboard *common.Switchboard

	// stateMu serializes every engine operation. The engines are
	// load-validate-persist over shared state, so each dispatch must run
	// as one indivisible step.
	stateMu sync.Mutex

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	authToken string
}

// NewServer wires the engines into an RPC server. The admin bearer token is
// read from the VAULTCORE_RPC_TOKEN environment variable; when unset every
// admin method is rejected.
func NewServer(ledgerEngine *ledger.Engine, accrualEngine *accrual.Engine, liquidationEngine *liquidation.Engine, switchboard *common.Switchboard) *Server {
	token := strings.TrimSpace(os.Getenv("VAULTCORE_RPC_TOKEN"))
	return &Server{
		ledger:      ledgerEngine,
		accrual:     accrualEngine,
		liquidation: liquidationEngine,
		switchboard: switchboard,
		limiters:    make(map[string]*rate.Limiter),
		authToken:   token,
	}
}

// Handler returns the HTTP handler for the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// FoldFees runs a fee accrual for one class under the same lock that
// serializes RPC traffic. The keeper loop calls this rather than touching the
// engine directly so it never interleaves with an in-flight request.
func (s *Server) FoldFees(symbol string) (*big.Int, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.accrual.Accrue(symbol)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	recorder := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	w = recorder
	w.Header().Set("Content-Type", "application/json")
	started := time.Now()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	defer func() {
		observability.ModuleMetrics().Observe(moduleOf(req.Method), req.Method, recorder.status, time.Since(started))
	}()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch req.Method {
	case "ledger_initClass":
		s.adminHandler(w, r, req, s.handleLedgerInitClass)
	case "ledger_setClassParam":
		s.adminHandler(w, r, req, s.handleLedgerSetClassParam)
	case "ledger_setGlobalParam":
		s.adminHandler(w, r, req, s.handleLedgerSetGlobalParam)
	case "ledger_authorize":
		s.adminHandler(w, r, req, s.handleLedgerAuthorize)
	case "ledger_deauthorize":
		s.adminHandler(w, r, req, s.handleLedgerDeauthorize)
	case "ledger_adjustFreeCollateral":
		s.adminHandler(w, r, req, s.handleLedgerAdjustFreeCollateral)
	case "ledger_reconcile":
		s.adminHandler(w, r, req, s.handleLedgerReconcile)
	case "ledger_adjustPosition":
		s.mutationHandler(w, r, req, s.handleLedgerAdjustPosition)
	case "ledger_moveFreeCollateral":
		s.mutationHandler(w, r, req, s.handleLedgerMoveFreeCollateral)
	case "ledger_transferStable":
		s.mutationHandler(w, r, req, s.handleLedgerTransferStable)
	case "ledger_approveOperator":
		s.mutationHandler(w, r, req, s.handleLedgerApproveOperator)
	case "ledger_revokeOperator":
		s.mutationHandler(w, r, req, s.handleLedgerRevokeOperator)
	case "ledger_getClass":
		s.handleLedgerGetClass(w, r, req)
	case "ledger_getPosition":
		s.handleLedgerGetPosition(w, r, req)
	case "ledger_getFreeCollateral":
		s.handleLedgerGetFreeCollateral(w, r, req)
	case "ledger_getStableBalance":
		s.handleLedgerGetStableBalance(w, r, req)
	case "ledger_getBadDebt":
		s.handleLedgerGetBadDebt(w, r, req)
	case "ledger_getTotals":
		s.handleLedgerGetTotals(w, r, req)
	case "ledger_isSafe":
		s.handleLedgerIsSafe(w, r, req)
	case "accrual_initClass":
		s.adminHandler(w, r, req, s.handleAccrualInitClass)
	case "accrual_setDuty":
		s.adminHandler(w, r, req, s.handleAccrualSetDuty)
	case "accrual_getClass":
		s.handleAccrualGetClass(w, r, req)
	case "accrual_accrue":
		s.mutationHandler(w, r, req, s.handleAccrualAccrue)
	case "liquidation_setClassParams":
		s.adminHandler(w, r, req, s.handleLiquidationSetClassParams)
	case "liquidation_getClassParams":
		s.handleLiquidationGetClassParams(w, r, req)
	case "liquidation_bark":
		s.mutationHandler(w, r, req, s.handleLiquidationBark)
	case "liquidation_take":
		s.mutationHandler(w, r, req, s.handleLiquidationTake)
	case "liquidation_getAuction":
		s.handleLiquidationGetAuction(w, r, req)
	case "liquidation_listAuctions":
		s.handleLiquidationListAuctions(w, r, req)
	case "vault_setPaused":
		s.adminHandler(w, r, req, s.handleSetPaused)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) adminHandler(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, r, req)
}

func (s *Server) mutationHandler(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	source := clientSource(r)
	if !s.allowSource(source) {
		observability.ModuleMetrics().RecordThrottle(moduleOf(req.Method), "rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "request rate limit exceeded", source)
		return
	}
	next(w, r, req)
}

func moduleOf(method string) string {
	if idx := strings.Index(method, "_"); idx > 0 {
		return method[:idx]
	}
	return method
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(mutationRatePerSecond), mutationBurst)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type setPausedParams struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return
	}
	var input setPausedParams
	if err := json.Unmarshal(req.Params[0], &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	module := strings.TrimSpace(input.Module)
	switch module {
	case "accrual", "liquidation":
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "module must be accrual or liquidation", input.Module)
		return
	}
	if s.switchboard == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "pause switchboard unavailable", nil)
		return
	}
	s.switchboard.SetPaused(module, input.Paused)
	writeResult(w, req.ID, map[string]interface{}{"module": module, "paused": input.Paused})
}
