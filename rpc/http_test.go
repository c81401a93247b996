package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"vaultcore/crypto"
	"vaultcore/native/accrual"
	"vaultcore/native/common"
	"vaultcore/native/ledger"
	"vaultcore/native/liquidation"
	"vaultcore/state"
	"vaultcore/storage"
)

const testToken = "unit-test-token"

// scaled returns n * 10^exp.
func scaled(n int64, exp uint) *big.Int {
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	return base.Mul(base, big.NewInt(n))
}

type testServer struct {
	*Server
	admin   crypto.Address
	mgr     *state.Manager
	ledgerE *ledger.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("VAULTCORE_RPC_TOKEN", testToken)

	manager := state.NewManager(storage.NewMemDB())
	admin := crypto.ModuleAddress("admin")

	ledgerEngine := ledger.NewEngine(admin)
	ledgerEngine.SetState(manager)

	accrualEngine := accrual.NewEngine(crypto.ModuleAddress("accrual"), crypto.ModuleAddress("revenue"))
	accrualEngine.SetState(manager)
	accrualEngine.SetLedger(ledgerEngine)

	liquidationEngine := liquidation.NewEngine(crypto.ModuleAddress("liquidation"), crypto.ModuleAddress("revenue"), 3600)
	liquidationEngine.SetState(manager)
	liquidationEngine.SetLedger(ledgerEngine)

	if err := ledgerEngine.Authorize(admin, accrualEngine.ModuleAddress()); err != nil {
		t.Fatalf("authorize accrual module: %v", err)
	}
	if err := ledgerEngine.Authorize(admin, liquidationEngine.ModuleAddress()); err != nil {
		t.Fatalf("authorize liquidation module: %v", err)
	}

	server := NewServer(ledgerEngine, accrualEngine, liquidationEngine, common.NewSwitchboard())
	return &testServer{Server: server, admin: admin, mgr: manager, ledgerE: ledgerEngine}
}

// initETHClass gives the server a usable collateral class with generous limits.
func (ts *testServer) initETHClass(t *testing.T) {
	t.Helper()
	if err := ts.ledgerE.InitClass(ts.admin, "ETH"); err != nil {
		t.Fatalf("init class: %v", err)
	}
	if err := ts.ledgerE.SetClassParam(ts.admin, "ETH", ledger.ClassParamSpot, scaled(1000, 27)); err != nil {
		t.Fatalf("set spot: %v", err)
	}
	if err := ts.ledgerE.SetClassParam(ts.admin, "ETH", ledger.ClassParamLine, scaled(1, 50)); err != nil {
		t.Fatalf("set line: %v", err)
	}
	if err := ts.ledgerE.SetGlobalParam(ts.admin, ledger.GlobalParamCeiling, scaled(1, 50)); err != nil {
		t.Fatalf("set ceiling: %v", err)
	}
}

type callOption func(*http.Request)

func withBearer(token string) callOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withSource(source string) callOption {
	return func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", source)
	}
}

func (ts *testServer) call(t *testing.T, method string, params interface{}, opts ...callOption) (int, *RPCResponse) {
	t.Helper()

	payload := map[string]interface{}{"jsonrpc": jsonRPCVersion, "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	for _, opt := range opts {
		opt(req)
	}
	recorder := httptest.NewRecorder()
	ts.Handler().ServeHTTP(recorder, req)

	resp := &RPCResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, recorder.Body.String())
	}
	return recorder.Code, resp
}

func signHex(t *testing.T, key *crypto.PrivateKey, digest []byte) string {
	t.Helper()
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign digest: %v", err)
	}
	return hex.EncodeToString(sig)
}

func TestAdminMethodsRequireBearerToken(t *testing.T) {
	ts := newTestServer(t)
	params := map[string]string{"caller": ts.admin.String(), "symbol": "ETH"}

	status, resp := ts.call(t, "ledger_initClass", params)
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized without token, got status %d resp %+v", status, resp.Error)
	}

	status, resp = ts.call(t, "ledger_initClass", params, withBearer("wrong-token"))
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized with bad token, got status %d resp %+v", status, resp.Error)
	}

	status, resp = ts.call(t, "ledger_initClass", params, withBearer(testToken))
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("expected success with valid token, got status %d error %+v", status, resp.Error)
	}

	class, err := ts.ledgerE.Class("ETH")
	if err != nil {
		t.Fatalf("class after init: %v", err)
	}
	if class.Rate.Cmp(scaled(1, 27)) != 0 {
		t.Fatalf("unexpected initial rate: %s", class.Rate)
	}
}

func TestAdminRejectedWhenTokenUnconfigured(t *testing.T) {
	t.Setenv("VAULTCORE_RPC_TOKEN", "")
	manager := state.NewManager(storage.NewMemDB())
	admin := crypto.ModuleAddress("admin")
	ledgerEngine := ledger.NewEngine(admin)
	ledgerEngine.SetState(manager)
	server := NewServer(ledgerEngine, nil, nil, common.NewSwitchboard())

	body := []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"ledger_initClass","params":[{"caller":%q,"symbol":"ETH"}]}`, admin.String()))
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer anything")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no token configured, got %d", recorder.Code)
	}
}

func TestMutationRateLimitingPerSource(t *testing.T) {
	ts := newTestServer(t)
	params := map[string]string{"symbol": "ETH"}

	for i := 0; i < mutationBurst; i++ {
		_, resp := ts.call(t, "accrual_accrue", params, withSource("203.0.113.7"))
		if resp.Error != nil && resp.Error.Code == codeRateLimited {
			t.Fatalf("request %d rate limited inside burst", i)
		}
	}

	status, resp := ts.call(t, "accrual_accrue", params, withSource("203.0.113.7"))
	if status != http.StatusTooManyRequests || resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("expected rate limit after burst, got status %d resp %+v", status, resp.Error)
	}

	// A different source keeps its own budget.
	_, resp = ts.call(t, "accrual_accrue", params, withSource("203.0.113.8"))
	if resp.Error != nil && resp.Error.Code == codeRateLimited {
		t.Fatalf("fresh source should not be limited, got %+v", resp.Error)
	}
}

func TestEngineErrorCodeMapping(t *testing.T) {
	ts := newTestServer(t)

	status, resp := ts.call(t, "ledger_getClass", map[string]string{"symbol": "DOGE"})
	if status != http.StatusNotFound || resp.Error == nil || resp.Error.Code != codeNotFound {
		t.Fatalf("missing class: got status %d resp %+v", status, resp.Error)
	}

	status, resp = ts.call(t, "liquidation_getAuction", map[string]interface{}{"auctionId": 42})
	if status != http.StatusNotFound || resp.Error == nil || resp.Error.Code != codeNotFound {
		t.Fatalf("missing auction: got status %d resp %+v", status, resp.Error)
	}

	adminParams := map[string]string{"caller": ts.admin.String(), "symbol": "ETH"}
	if _, resp := ts.call(t, "ledger_initClass", adminParams, withBearer(testToken)); resp.Error != nil {
		t.Fatalf("first init failed: %+v", resp.Error)
	}
	status, resp = ts.call(t, "ledger_initClass", adminParams, withBearer(testToken))
	if status != http.StatusConflict || resp.Error == nil || resp.Error.Code != codeEngineReject {
		t.Fatalf("duplicate init: got status %d resp %+v", status, resp.Error)
	}

	intruder := crypto.ModuleAddress("intruder")
	status, resp = ts.call(t, "ledger_initClass", map[string]string{"caller": intruder.String(), "symbol": "BTC"}, withBearer(testToken))
	if status != http.StatusForbidden || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unauthorized caller: got status %d resp %+v", status, resp.Error)
	}

	status, resp = ts.call(t, "vault_unknownMethod", nil)
	if status != http.StatusNotFound || resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("unknown method: got status %d resp %+v", status, resp.Error)
	}
}

func TestTransferStableRequiresOwnerSignature(t *testing.T) {
	ts := newTestServer(t)
	ts.initETHClass(t)

	ownerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate owner key: %v", err)
	}
	owner := ownerKey.PubKey().Address()
	sink := crypto.ModuleAddress("sink")

	// Give the owner stablecoin: lock collateral and draw debt.
	if err := ts.ledgerE.AdjustFreeCollateral(ts.admin, "ETH", owner, scaled(10, 18)); err != nil {
		t.Fatalf("fund owner: %v", err)
	}
	if err := ts.ledgerE.AdjustPosition(owner, "ETH", scaled(10, 18), scaled(1000, 18)); err != nil {
		t.Fatalf("open position: %v", err)
	}

	amount := scaled(100, 45).String()
	params := map[string]string{
		"caller": owner.String(),
		"from":   owner.String(),
		"to":     sink.String(),
		"amount": amount,
	}
	digest := SigningDigest("ledger_transferStable", owner.String(), owner.String(), sink.String(), amount)

	// No signature at all.
	status, resp := ts.call(t, "ledger_transferStable", params)
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unsigned transfer: got status %d resp %+v", status, resp.Error)
	}

	// Signed by a different key claiming the owner's address.
	attackerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate attacker key: %v", err)
	}
	params["signature"] = signHex(t, attackerKey, digest)
	status, resp = ts.call(t, "ledger_transferStable", params)
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("forged transfer: got status %d resp %+v", status, resp.Error)
	}
	balance, err := ts.ledgerE.StableBalance(owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(scaled(1000, 45)) != 0 {
		t.Fatalf("owner balance changed by rejected transfer: %s", balance)
	}

	// Signed by the owner's own key.
	params["signature"] = signHex(t, ownerKey, digest)
	status, resp = ts.call(t, "ledger_transferStable", params)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("signed transfer failed: status %d resp %+v", status, resp.Error)
	}
	balance, err = ts.ledgerE.StableBalance(sink)
	if err != nil {
		t.Fatalf("sink balance: %v", err)
	}
	if balance.Cmp(scaled(100, 45)) != 0 {
		t.Fatalf("unexpected sink balance: %s", balance)
	}
}

func TestSignatureIsMethodBound(t *testing.T) {
	ts := newTestServer(t)
	ts.initETHClass(t)

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	caller := key.PubKey().Address()
	operator := crypto.ModuleAddress("operator")

	// A digest signed for revoke must not authorize approve.
	revokeDigest := SigningDigest("ledger_revokeOperator", caller.String(), operator.String())
	params := map[string]string{
		"caller":    caller.String(),
		"operator":  operator.String(),
		"signature": signHex(t, key, revokeDigest),
	}
	status, resp := ts.call(t, "ledger_approveOperator", params)
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("cross-method signature accepted: status %d resp %+v", status, resp.Error)
	}

	params["signature"] = signHex(t, key, SigningDigest("ledger_approveOperator", caller.String(), operator.String()))
	status, resp = ts.call(t, "ledger_approveOperator", params)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("properly signed approval failed: status %d resp %+v", status, resp.Error)
	}
}

func TestTakeRequiresBuyerSignature(t *testing.T) {
	ts := newTestServer(t)

	buyerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate buyer key: %v", err)
	}
	otherKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate other key: %v", err)
	}

	digest := SigningDigest("liquidation_take", buyerKey.PubKey().Address().String(), "1", "1000", "1000")
	params := map[string]interface{}{
		"buyer":     buyerKey.PubKey().Address().String(),
		"auctionId": 1,
		"maxLot":    "1000",
		"maxPrice":  "1000",
		"signature": signHex(t, otherKey, digest),
	}
	status, resp := ts.call(t, "liquidation_take", params)
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("take with foreign signature: status %d resp %+v", status, resp.Error)
	}
}

func TestConcurrentAdjustmentsAreSerialized(t *testing.T) {
	ts := newTestServer(t)
	ts.initETHClass(t)
	account := crypto.ModuleAddress("depositor")

	const workers = 8
	const perWorker = 250

	body := []byte(fmt.Sprintf(
		`{"jsonrpc":"2.0","id":1,"method":"ledger_adjustFreeCollateral","params":[{"caller":%q,"symbol":"ETH","account":%q,"delta":"1"}]}`,
		ts.admin.String(), account.String()))

	var wg sync.WaitGroup
	failures := make(chan string, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
				req.Header.Set("Authorization", "Bearer "+testToken)
				recorder := httptest.NewRecorder()
				ts.Handler().ServeHTTP(recorder, req)
				if recorder.Code != http.StatusOK {
					failures <- recorder.Body.String()
				}
			}
		}()
	}
	wg.Wait()
	close(failures)
	for failure := range failures {
		t.Fatalf("request failed: %s", failure)
	}

	balance, err := ts.ledgerE.FreeCollateral("ETH", account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	want := big.NewInt(workers * perWorker)
	if balance.Cmp(want) != 0 {
		t.Fatalf("lost updates: final balance %s, want %s", balance, want)
	}
}

func TestFoldFeesRunsAccrual(t *testing.T) {
	ts := newTestServer(t)
	ts.initETHClass(t)
	if err := ts.accrual.InitClass("ETH"); err != nil {
		t.Fatalf("init fee class: %v", err)
	}

	delta, err := ts.FoldFees("ETH")
	if err != nil {
		t.Fatalf("fold fees: %v", err)
	}
	if delta == nil || delta.Sign() != 0 {
		t.Fatalf("neutral duty should accrue nothing, got %v", delta)
	}
}
