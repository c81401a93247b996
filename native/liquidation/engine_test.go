package liquidation_test

import (
	"errors"
	"math/big"
	"testing"

	"vaultcore/crypto"
	"vaultcore/native/common"
	"vaultcore/native/ledger"
	"vaultcore/native/liquidation"
	"vaultcore/state"
	"vaultcore/storage"
)

const (
	testSymbol      = "ETH"
	auctionDuration = uint64(3600)
)

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

// scaled returns n * 10^exp.
func scaled(n int64, exp uint) *big.Int {
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
	return base.Mul(base, big.NewInt(n))
}

type fixture struct {
	admin   crypto.Address
	owner   crypto.Address
	buyer   crypto.Address
	revenue crypto.Address

	ledgerEngine *ledger.Engine
	engine       *liquidation.Engine
	clock        uint64
}

// newFixture builds both engines over one in-memory state, opens an unsafe
// 10 collateral / 10000 debt position for owner and a funded buyer holding
// 11000 rad of stablecoin with the engine approved as operator.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		admin:   makeAddress(0x01),
		owner:   makeAddress(0x02),
		buyer:   makeAddress(0x03),
		revenue: makeAddress(0x04),
		clock:   1_000_000,
	}

	manager := state.NewManager(storage.NewMemDB())

	f.ledgerEngine = ledger.NewEngine(f.admin)
	f.ledgerEngine.SetState(manager)

	module := crypto.ModuleAddress("liquidation")
	f.engine = liquidation.NewEngine(module, f.revenue, auctionDuration)
	f.engine.SetState(manager)
	f.engine.SetLedger(f.ledgerEngine)
	f.engine.SetTimeSource(func() uint64 { return f.clock })

	if err := f.ledgerEngine.Authorize(f.admin, module); err != nil {
		t.Fatalf("authorize module: %v", err)
	}

	if err := f.ledgerEngine.InitClass(f.admin, testSymbol); err != nil {
		t.Fatalf("init class: %v", err)
	}
	if err := f.ledgerEngine.SetClassParam(f.admin, testSymbol, ledger.ClassParamSpot, scaled(133333, 25)); err != nil {
		t.Fatalf("set spot: %v", err)
	}
	if err := f.ledgerEngine.SetClassParam(f.admin, testSymbol, ledger.ClassParamLine, scaled(1, 50)); err != nil {
		t.Fatalf("set line: %v", err)
	}
	if err := f.ledgerEngine.SetClassParam(f.admin, testSymbol, ledger.ClassParamDust, scaled(100, 45)); err != nil {
		t.Fatalf("set dust: %v", err)
	}
	if err := f.ledgerEngine.SetGlobalParam(f.admin, ledger.GlobalParamCeiling, scaled(1, 50)); err != nil {
		t.Fatalf("set ceiling: %v", err)
	}

	// 8% penalty, 2x start price buffer
	if err := f.engine.SetClassParams(testSymbol, scaled(108, 16), scaled(2, 27)); err != nil {
		t.Fatalf("set liquidation params: %v", err)
	}

	if err := f.ledgerEngine.AdjustFreeCollateral(f.admin, testSymbol, f.owner, scaled(10, 18)); err != nil {
		t.Fatalf("fund owner: %v", err)
	}
	if err := f.ledgerEngine.AdjustPosition(f.owner, testSymbol, scaled(10, 18), scaled(10000, 18)); err != nil {
		t.Fatalf("open owner position: %v", err)
	}

	if err := f.ledgerEngine.AdjustFreeCollateral(f.admin, testSymbol, f.buyer, scaled(20, 18)); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	if err := f.ledgerEngine.AdjustPosition(f.buyer, testSymbol, scaled(20, 18), scaled(11000, 18)); err != nil {
		t.Fatalf("open buyer position: %v", err)
	}
	if err := f.ledgerEngine.ApproveOperator(f.buyer, module); err != nil {
		t.Fatalf("approve operator: %v", err)
	}

	return f
}

func (f *fixture) crashSpot(t *testing.T) {
	t.Helper()
	if err := f.ledgerEngine.SetClassParam(f.admin, testSymbol, ledger.ClassParamSpot, scaled(900, 27)); err != nil {
		t.Fatalf("crash spot: %v", err)
	}
}

func TestBarkRejectsSafePosition(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Bark(testSymbol, f.owner); !errors.Is(err, liquidation.ErrVaultIsSafe) {
		t.Fatalf("expected ErrVaultIsSafe, got %v", err)
	}
}

func TestBarkSeizesAndOpensAuction(t *testing.T) {
	f := newFixture(t)
	f.crashSpot(t)

	id, err := f.engine.Bark(testSymbol, f.owner)
	if err != nil {
		t.Fatalf("bark: %v", err)
	}
	if id != 1 {
		t.Fatalf("unexpected auction id: %d", id)
	}

	auction, err := f.engine.AuctionInfo(id)
	if err != nil {
		t.Fatalf("auction info: %v", err)
	}
	if auction.Tab.Cmp(scaled(10800, 45)) != 0 {
		t.Fatalf("unexpected tab: %s", auction.Tab)
	}
	if auction.Lot.Cmp(scaled(10, 18)) != 0 {
		t.Fatalf("unexpected lot: %s", auction.Lot)
	}
	if auction.StartPrice.Cmp(scaled(1800, 27)) != 0 {
		t.Fatalf("unexpected start price: %s", auction.StartPrice)
	}

	position, err := f.ledgerEngine.Position(testSymbol, f.owner)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if position.LockedCollateral.Sign() != 0 || position.NormalizedDebt.Sign() != 0 {
		t.Fatalf("expected emptied position, got ink=%s art=%s", position.LockedCollateral, position.NormalizedDebt)
	}

	badDebt, err := f.ledgerEngine.BadDebt(f.revenue)
	if err != nil {
		t.Fatalf("bad debt: %v", err)
	}
	if badDebt.Cmp(scaled(10000, 45)) != 0 {
		t.Fatalf("unexpected bad debt: %s", badDebt)
	}

	if _, err := f.engine.Bark(testSymbol, f.owner); !errors.Is(err, liquidation.ErrNothingToSeize) {
		t.Fatalf("expected ErrNothingToSeize on empty position, got %v", err)
	}
}

func TestTakeCapsPaymentAtTabAndRefundsOwner(t *testing.T) {
	f := newFixture(t)
	f.crashSpot(t)

	id, err := f.engine.Bark(testSymbol, f.owner)
	if err != nil {
		t.Fatalf("bark: %v", err)
	}

	sold, paid, err := f.engine.Take(f.buyer, id, scaled(10, 18), scaled(1800, 27))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if paid.Cmp(scaled(10800, 45)) != 0 {
		t.Fatalf("unexpected payment: %s", paid)
	}
	if sold.Cmp(scaled(6, 18)) != 0 {
		t.Fatalf("unexpected collateral sold: %s", sold)
	}

	buyerCollateral, err := f.ledgerEngine.FreeCollateral(testSymbol, f.buyer)
	if err != nil {
		t.Fatalf("buyer collateral: %v", err)
	}
	if buyerCollateral.Cmp(scaled(6, 18)) != 0 {
		t.Fatalf("unexpected buyer collateral: %s", buyerCollateral)
	}

	ownerRefund, err := f.ledgerEngine.FreeCollateral(testSymbol, f.owner)
	if err != nil {
		t.Fatalf("owner refund: %v", err)
	}
	if ownerRefund.Cmp(scaled(4, 18)) != 0 {
		t.Fatalf("unexpected owner refund: %s", ownerRefund)
	}

	revenueStable, err := f.ledgerEngine.StableBalance(f.revenue)
	if err != nil {
		t.Fatalf("revenue stable: %v", err)
	}
	if revenueStable.Cmp(scaled(10800, 45)) != 0 {
		t.Fatalf("unexpected revenue stable: %s", revenueStable)
	}

	if _, err := f.engine.AuctionInfo(id); !errors.Is(err, liquidation.ErrAuctionNotFound) {
		t.Fatalf("expected settled auction to be deleted, got %v", err)
	}
}

func TestTakePartialAtHalfDecay(t *testing.T) {
	f := newFixture(t)
	f.crashSpot(t)

	id, err := f.engine.Bark(testSymbol, f.owner)
	if err != nil {
		t.Fatalf("bark: %v", err)
	}

	f.clock += auctionDuration / 2
	halfPrice := scaled(900, 27)

	sold, paid, err := f.engine.Take(f.buyer, id, scaled(5, 18), halfPrice)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if sold.Cmp(scaled(5, 18)) != 0 {
		t.Fatalf("unexpected collateral sold: %s", sold)
	}
	if paid.Cmp(scaled(4500, 45)) != 0 {
		t.Fatalf("unexpected payment: %s", paid)
	}

	auction, err := f.engine.AuctionInfo(id)
	if err != nil {
		t.Fatalf("auction info: %v", err)
	}
	if auction.Lot.Cmp(scaled(5, 18)) != 0 {
		t.Fatalf("unexpected remaining lot: %s", auction.Lot)
	}
	if auction.Tab.Cmp(scaled(6300, 45)) != 0 {
		t.Fatalf("unexpected remaining tab: %s", auction.Tab)
	}
}

func TestTakeRejectsPriceAboveLimit(t *testing.T) {
	f := newFixture(t)
	f.crashSpot(t)

	id, err := f.engine.Bark(testSymbol, f.owner)
	if err != nil {
		t.Fatalf("bark: %v", err)
	}

	_, _, err = f.engine.Take(f.buyer, id, scaled(1, 18), scaled(1000, 27))
	if !errors.Is(err, liquidation.ErrPriceTooHigh) {
		t.Fatalf("expected ErrPriceTooHigh, got %v", err)
	}
}

func TestTakeRejectsExpiredAuction(t *testing.T) {
	f := newFixture(t)
	f.crashSpot(t)

	id, err := f.engine.Bark(testSymbol, f.owner)
	if err != nil {
		t.Fatalf("bark: %v", err)
	}

	f.clock += auctionDuration
	_, _, err = f.engine.Take(f.buyer, id, scaled(1, 18), scaled(1800, 27))
	if !errors.Is(err, liquidation.ErrAuctionExpired) {
		t.Fatalf("expected ErrAuctionExpired, got %v", err)
	}
}

func TestCurrentPriceDecaysLinearlyToZero(t *testing.T) {
	f := newFixture(t)
	f.crashSpot(t)

	id, err := f.engine.Bark(testSymbol, f.owner)
	if err != nil {
		t.Fatalf("bark: %v", err)
	}
	auction, err := f.engine.AuctionInfo(id)
	if err != nil {
		t.Fatalf("auction info: %v", err)
	}

	start := auction.StartTime
	prev := f.engine.CurrentPrice(auction, start)
	if prev.Cmp(scaled(1800, 27)) != 0 {
		t.Fatalf("unexpected opening price: %s", prev)
	}
	for _, elapsed := range []uint64{1, 600, 1800, 3000, 3599} {
		price := f.engine.CurrentPrice(auction, start+elapsed)
		if price.Cmp(prev) > 0 {
			t.Fatalf("price increased from %s to %s at elapsed %d", prev, price, elapsed)
		}
		prev = price
	}
	if price := f.engine.CurrentPrice(auction, start+auctionDuration); price.Sign() != 0 {
		t.Fatalf("expected zero price at expiry, got %s", price)
	}
	half := f.engine.CurrentPrice(auction, start+auctionDuration/2)
	if half.Cmp(scaled(900, 27)) != 0 {
		t.Fatalf("expected half price at half duration, got %s", half)
	}
}

func TestBarkHonorsPause(t *testing.T) {
	f := newFixture(t)
	f.crashSpot(t)

	switchboard := common.NewSwitchboard()
	f.engine.SetPauses(switchboard)
	switchboard.SetPaused("liquidation", true)

	if _, err := f.engine.Bark(testSymbol, f.owner); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}

	switchboard.SetPaused("liquidation", false)
	if _, err := f.engine.Bark(testSymbol, f.owner); err != nil {
		t.Fatalf("bark after unpause: %v", err)
	}
}
