package events

import (
	"math/big"
	"strconv"

	"vaultcore/core/types"
)

const (
	TypeAuctionStarted = "liquidation.auction.started"
	TypeAuctionFilled  = "liquidation.auction.filled"
	TypeAuctionClosed  = "liquidation.auction.closed"
)

// AuctionStarted marks a seizure and the opening of a Dutch auction.
type AuctionStarted struct {
	ID         uint64
	Symbol     string
	Owner      []byte
	Tab        *big.Int
	Lot        *big.Int
	StartPrice *big.Int
}

func (AuctionStarted) EventType() string { return TypeAuctionStarted }

func (e AuctionStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionStarted,
		Attributes: map[string]string{
			"id":     strconv.FormatUint(e.ID, 10),
			"symbol": e.Symbol,
			"owner":  formatAddress(e.Owner),
			"tab":    formatAmount(e.Tab),
			"lot":    formatAmount(e.Lot),
			"top":    formatAmount(e.StartPrice),
		},
	}
}

// AuctionFilled records a partial or final purchase from an auction.
type AuctionFilled struct {
	ID           uint64
	Buyer        []byte
	Paid         *big.Int
	Sold         *big.Int
	TabRemaining *big.Int
	LotRemaining *big.Int
}

func (AuctionFilled) EventType() string { return TypeAuctionFilled }

func (e AuctionFilled) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionFilled,
		Attributes: map[string]string{
			"id":    strconv.FormatUint(e.ID, 10),
			"buyer": formatAddress(e.Buyer),
			"paid":  formatAmount(e.Paid),
			"sold":  formatAmount(e.Sold),
			"tab":   formatAmount(e.TabRemaining),
			"lot":   formatAmount(e.LotRemaining),
		},
	}
}

// AuctionClosed records auction deletion, with any collateral refunded to the
// original owner.
type AuctionClosed struct {
	ID       uint64
	Refunded *big.Int
}

func (AuctionClosed) EventType() string { return TypeAuctionClosed }

func (e AuctionClosed) Event() *types.Event {
	return &types.Event{
		Type: TypeAuctionClosed,
		Attributes: map[string]string{
			"id":       strconv.FormatUint(e.ID, 10),
			"refunded": formatAmount(e.Refunded),
		},
	}
}
