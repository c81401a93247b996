package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"vaultcore/crypto"
	"vaultcore/native/accrual"
	"vaultcore/native/ledger"
	"vaultcore/native/liquidation"
	"vaultcore/storage"
)

// Key namespaces. Account-scoped keys append the raw 20-byte address so the
// prefix walk over auctions and balances stays cheap.
const (
	prefixClass         = "ledger/class/"
	prefixPosition      = "ledger/urn/"
	prefixFreeColl      = "ledger/gem/"
	prefixStable        = "ledger/coin/"
	prefixBadDebt       = "ledger/sin/"
	keyTotals           = "ledger/totals"
	prefixAuthorized    = "ledger/auth/"
	prefixOperator      = "ledger/operator/"
	prefixFeeClass      = "accrual/class/"
	prefixLiqParams     = "liquidation/class/"
	prefixAuction       = "liquidation/auction/"
	keyNextAuction      = "liquidation/nextid"
	auctionIDByteLength = 8
)

// Manager persists every engine record as an RLP-encoded value in the
// underlying key-value store. It implements the state interfaces of the
// ledger, accrual, and liquidation engines.
type Manager struct {
	db storage.Database
}

// NewManager wraps a database in a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type classRecord struct {
	Rate                *big.Int
	Spot                *big.Int
	Line                *big.Int
	Dust                *big.Int
	TotalNormalizedDebt *big.Int
}

type positionRecord struct {
	LockedCollateral *big.Int
	NormalizedDebt   *big.Int
}

type totalsRecord struct {
	TotalDebt     *big.Int
	TotalBadDebt  *big.Int
	GlobalCeiling *big.Int
}

type feeClassRecord struct {
	DutyPerSecond *big.Int
	LastAccrual   uint64
}

type liqParamsRecord struct {
	PenaltyFactor    *big.Int
	StartPriceBuffer *big.Int
}

type auctionRecord struct {
	ID         uint64
	Symbol     string
	Tab        *big.Int
	Lot        *big.Int
	Owner      []byte
	StartTime  uint64
	StartPrice *big.Int
}

// --- ledger state ---

func (m *Manager) GetClass(symbol string) (*ledger.CollateralClass, error) {
	record := &classRecord{}
	found, err := m.load(classKey(symbol), record)
	if err != nil || !found {
		return nil, err
	}
	return &ledger.CollateralClass{
		Rate:                record.Rate,
		Spot:                record.Spot,
		Line:                record.Line,
		Dust:                record.Dust,
		TotalNormalizedDebt: record.TotalNormalizedDebt,
	}, nil
}

func (m *Manager) PutClass(symbol string, class *ledger.CollateralClass) error {
	if class == nil {
		return errors.New("state: nil class")
	}
	return m.store(classKey(symbol), &classRecord{
		Rate:                nonNil(class.Rate),
		Spot:                nonNil(class.Spot),
		Line:                nonNil(class.Line),
		Dust:                nonNil(class.Dust),
		TotalNormalizedDebt: nonNil(class.TotalNormalizedDebt),
	})
}

func (m *Manager) GetPosition(symbol string, owner crypto.Address) (*ledger.Position, error) {
	record := &positionRecord{}
	found, err := m.load(positionKey(symbol, owner), record)
	if err != nil || !found {
		return nil, err
	}
	return &ledger.Position{
		LockedCollateral: record.LockedCollateral,
		NormalizedDebt:   record.NormalizedDebt,
	}, nil
}

func (m *Manager) PutPosition(symbol string, owner crypto.Address, position *ledger.Position) error {
	if position == nil {
		return errors.New("state: nil position")
	}
	return m.store(positionKey(symbol, owner), &positionRecord{
		LockedCollateral: nonNil(position.LockedCollateral),
		NormalizedDebt:   nonNil(position.NormalizedDebt),
	})
}

func (m *Manager) GetFreeCollateral(symbol string, addr crypto.Address) (*big.Int, error) {
	return m.loadBig(freeCollateralKey(symbol, addr))
}

func (m *Manager) PutFreeCollateral(symbol string, addr crypto.Address, amount *big.Int) error {
	return m.storeBig(freeCollateralKey(symbol, addr), amount)
}

func (m *Manager) GetStable(addr crypto.Address) (*big.Int, error) {
	return m.loadBig(stableKey(addr))
}

func (m *Manager) PutStable(addr crypto.Address, amount *big.Int) error {
	return m.storeBig(stableKey(addr), amount)
}

func (m *Manager) GetBadDebt(addr crypto.Address) (*big.Int, error) {
	return m.loadBig(badDebtKey(addr))
}

func (m *Manager) PutBadDebt(addr crypto.Address, amount *big.Int) error {
	return m.storeBig(badDebtKey(addr), amount)
}

func (m *Manager) GetTotals() (*ledger.Totals, error) {
	record := &totalsRecord{}
	found, err := m.load([]byte(keyTotals), record)
	if err != nil || !found {
		return nil, err
	}
	return &ledger.Totals{
		TotalDebt:     record.TotalDebt,
		TotalBadDebt:  record.TotalBadDebt,
		GlobalCeiling: record.GlobalCeiling,
	}, nil
}

func (m *Manager) PutTotals(totals *ledger.Totals) error {
	if totals == nil {
		return errors.New("state: nil totals")
	}
	return m.store([]byte(keyTotals), &totalsRecord{
		TotalDebt:     nonNil(totals.TotalDebt),
		TotalBadDebt:  nonNil(totals.TotalBadDebt),
		GlobalCeiling: nonNil(totals.GlobalCeiling),
	})
}

func (m *Manager) IsAuthorized(addr crypto.Address) (bool, error) {
	return m.flag(append([]byte(prefixAuthorized), addr.Bytes()...))
}

func (m *Manager) SetAuthorized(addr crypto.Address, authorized bool) error {
	return m.setFlag(append([]byte(prefixAuthorized), addr.Bytes()...), authorized)
}

func (m *Manager) IsOperator(owner, operator crypto.Address) (bool, error) {
	return m.flag(operatorKey(owner, operator))
}

func (m *Manager) SetOperator(owner, operator crypto.Address, approved bool) error {
	return m.setFlag(operatorKey(owner, operator), approved)
}

// --- accrual state ---

func (m *Manager) GetFeeClass(symbol string) (*accrual.FeeClass, error) {
	record := &feeClassRecord{}
	found, err := m.load([]byte(prefixFeeClass+symbol), record)
	if err != nil || !found {
		return nil, err
	}
	return &accrual.FeeClass{
		DutyPerSecond: record.DutyPerSecond,
		LastAccrual:   record.LastAccrual,
	}, nil
}

func (m *Manager) PutFeeClass(symbol string, class *accrual.FeeClass) error {
	if class == nil {
		return errors.New("state: nil fee class")
	}
	return m.store([]byte(prefixFeeClass+symbol), &feeClassRecord{
		DutyPerSecond: nonNil(class.DutyPerSecond),
		LastAccrual:   class.LastAccrual,
	})
}

// --- liquidation state ---

func (m *Manager) GetLiquidationParams(symbol string) (*liquidation.LiquidationParams, error) {
	record := &liqParamsRecord{}
	found, err := m.load([]byte(prefixLiqParams+symbol), record)
	if err != nil || !found {
		return nil, err
	}
	return &liquidation.LiquidationParams{
		PenaltyFactor:    record.PenaltyFactor,
		StartPriceBuffer: record.StartPriceBuffer,
	}, nil
}

func (m *Manager) PutLiquidationParams(symbol string, params *liquidation.LiquidationParams) error {
	if params == nil {
		return errors.New("state: nil liquidation params")
	}
	return m.store([]byte(prefixLiqParams+symbol), &liqParamsRecord{
		PenaltyFactor:    nonNil(params.PenaltyFactor),
		StartPriceBuffer: nonNil(params.StartPriceBuffer),
	})
}

func (m *Manager) GetAuction(id uint64) (*liquidation.Auction, error) {
	record := &auctionRecord{}
	found, err := m.load(auctionKey(id), record)
	if err != nil || !found {
		return nil, err
	}
	return decodeAuction(record)
}

func (m *Manager) PutAuction(auction *liquidation.Auction) error {
	if auction == nil {
		return errors.New("state: nil auction")
	}
	return m.store(auctionKey(auction.ID), &auctionRecord{
		ID:         auction.ID,
		Symbol:     auction.Symbol,
		Tab:        nonNil(auction.Tab),
		Lot:        nonNil(auction.Lot),
		Owner:      auction.Owner.Bytes(),
		StartTime:  auction.StartTime,
		StartPrice: nonNil(auction.StartPrice),
	})
}

func (m *Manager) DeleteAuction(id uint64) error {
	return m.db.Delete(auctionKey(id))
}

func (m *Manager) ListAuctions() ([]*liquidation.Auction, error) {
	var auctions []*liquidation.Auction
	err := m.db.Iterate([]byte(prefixAuction), func(_, value []byte) error {
		record := &auctionRecord{}
		if err := rlp.DecodeBytes(value, record); err != nil {
			return fmt.Errorf("state: corrupt auction record: %w", err)
		}
		auction, err := decodeAuction(record)
		if err != nil {
			return err
		}
		auctions = append(auctions, auction)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

// NextAuctionID increments and returns the auction id counter, starting at 1.
func (m *Manager) NextAuctionID() (uint64, error) {
	var current uint64
	raw, err := m.db.Get([]byte(keyNextAuction))
	switch {
	case err == nil:
		if len(raw) != auctionIDByteLength {
			return 0, errors.New("state: corrupt auction id counter")
		}
		current = binary.BigEndian.Uint64(raw)
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return 0, err
	}
	next := current + 1
	buf := make([]byte, auctionIDByteLength)
	binary.BigEndian.PutUint64(buf, next)
	if err := m.db.Put([]byte(keyNextAuction), buf); err != nil {
		return 0, err
	}
	return next, nil
}

// --- helpers ---

func (m *Manager) load(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: corrupt record at %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) store(key []byte, record interface{}) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

func (m *Manager) loadBig(key []byte) (*big.Int, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(raw, value); err != nil {
		return nil, fmt.Errorf("state: corrupt balance at %q: %w", key, err)
	}
	return value, nil
}

func (m *Manager) storeBig(key []byte, amount *big.Int) error {
	encoded, err := rlp.EncodeToBytes(nonNil(amount))
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

func (m *Manager) flag(key []byte) (bool, error) {
	_, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) setFlag(key []byte, on bool) error {
	if on {
		return m.db.Put(key, []byte{1})
	}
	return m.db.Delete(key)
}

func decodeAuction(record *auctionRecord) (*liquidation.Auction, error) {
	if len(record.Owner) != 20 {
		return nil, errors.New("state: corrupt auction owner address")
	}
	return &liquidation.Auction{
		ID:         record.ID,
		Symbol:     record.Symbol,
		Tab:        record.Tab,
		Lot:        record.Lot,
		Owner:      crypto.NewAddress(crypto.AccountPrefix, record.Owner),
		StartTime:  record.StartTime,
		StartPrice: record.StartPrice,
	}, nil
}

func classKey(symbol string) []byte {
	return []byte(prefixClass + symbol)
}

func positionKey(symbol string, owner crypto.Address) []byte {
	return append([]byte(prefixPosition+symbol+"/"), owner.Bytes()...)
}

func freeCollateralKey(symbol string, addr crypto.Address) []byte {
	return append([]byte(prefixFreeColl+symbol+"/"), addr.Bytes()...)
}

func stableKey(addr crypto.Address) []byte {
	return append([]byte(prefixStable), addr.Bytes()...)
}

func badDebtKey(addr crypto.Address) []byte {
	return append([]byte(prefixBadDebt), addr.Bytes()...)
}

func operatorKey(owner, operator crypto.Address) []byte {
	key := append([]byte(prefixOperator), owner.Bytes()...)
	key = append(key, '/')
	return append(key, operator.Bytes()...)
}

func auctionKey(id uint64) []byte {
	buf := make([]byte, auctionIDByteLength)
	binary.BigEndian.PutUint64(buf, id)
	return append([]byte(prefixAuction), buf...)
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
