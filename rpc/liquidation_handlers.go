package rpc

import (
	"net/http"
	"strconv"
	"time"

	"vaultcore/native/liquidation"
)

type liquidationClassParams struct {
	Symbol string `json:"symbol"`
}

type setLiquidationParams struct {
	Symbol           string `json:"symbol"`
	PenaltyFactor    string `json:"penaltyFactor"`
	StartPriceBuffer string `json:"startPriceBuffer"`
}

type barkParams struct {
	Symbol string `json:"symbol"`
	Owner  string `json:"owner"`
}

type takeParams struct {
	Buyer     string `json:"buyer"`
	AuctionID uint64 `json:"auctionId"`
	MaxLot    string `json:"maxLot"`
	MaxPrice  string `json:"maxPrice"`
	Signature string `json:"signature"`
}

type auctionQueryParams struct {
	AuctionID uint64 `json:"auctionId"`
}

type liquidationParamsResult struct {
	Symbol           string `json:"symbol"`
	PenaltyFactor    string `json:"penaltyFactor"`
	StartPriceBuffer string `json:"startPriceBuffer"`
}

type auctionResult struct {
	ID           uint64 `json:"id"`
	Symbol       string `json:"symbol"`
	Owner        string `json:"owner"`
	Tab          string `json:"tab"`
	Lot          string `json:"lot"`
	StartTime    uint64 `json:"startTime"`
	StartPrice   string `json:"startPrice"`
	CurrentPrice string `json:"currentPrice"`
}

type barkResult struct {
	AuctionID uint64 `json:"auctionId"`
}

type takeResult struct {
	AuctionID uint64 `json:"auctionId"`
	Sold      string `json:"sold"`
	Paid      string `json:"paid"`
}

func (s *Server) handleLiquidationSetClassParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input setLiquidationParams
	if !decodeParams(w, req, &input) {
		return
	}
	penalty, err := parseUnsignedAmount(input.PenaltyFactor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid penaltyFactor", err.Error())
		return
	}
	buffer, err := parseUnsignedAmount(input.StartPriceBuffer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid startPriceBuffer", err.Error())
		return
	}
	if err := s.liquidation.SetClassParams(input.Symbol, penalty, buffer); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, liquidationParamsResult{
		Symbol:           input.Symbol,
		PenaltyFactor:    penalty.String(),
		StartPriceBuffer: buffer.String(),
	})
}

func (s *Server) handleLiquidationGetClassParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input liquidationClassParams
	if !decodeParams(w, req, &input) {
		return
	}
	params, err := s.liquidation.ClassParams(input.Symbol)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, liquidationParamsResult{
		Symbol:           input.Symbol,
		PenaltyFactor:    bigString(params.PenaltyFactor),
		StartPriceBuffer: bigString(params.StartPriceBuffer),
	})
}

func (s *Server) handleLiquidationBark(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input barkParams
	if !decodeParams(w, req, &input) {
		return
	}
	owner, err := decodeBech32(input.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	id, err := s.liquidation.Bark(input.Symbol, owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, barkResult{AuctionID: id})
}

func (s *Server) handleLiquidationTake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input takeParams
	if !decodeParams(w, req, &input) {
		return
	}
	buyer, err := decodeBech32(input.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer", err.Error())
		return
	}
	maxLot, err := parseUnsignedAmount(input.MaxLot)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid maxLot", err.Error())
		return
	}
	maxPrice, err := parseUnsignedAmount(input.MaxPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid maxPrice", err.Error())
		return
	}
	digest := SigningDigest(req.Method, input.Buyer, strconv.FormatUint(input.AuctionID, 10), input.MaxLot, input.MaxPrice)
	if !requireSignature(w, req, buyer, input.Signature, digest) {
		return
	}
	sold, paid, err := s.liquidation.Take(buyer, input.AuctionID, maxLot, maxPrice)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, takeResult{AuctionID: input.AuctionID, Sold: bigString(sold), Paid: bigString(paid)})
}

func (s *Server) auctionToResult(auction *liquidation.Auction) auctionResult {
	now := uint64(time.Now().Unix())
	return auctionResult{
		ID:           auction.ID,
		Symbol:       auction.Symbol,
		Owner:        auction.Owner.String(),
		Tab:          bigString(auction.Tab),
		Lot:          bigString(auction.Lot),
		StartTime:    auction.StartTime,
		StartPrice:   bigString(auction.StartPrice),
		CurrentPrice: bigString(s.liquidation.CurrentPrice(auction, now)),
	}
}

func (s *Server) handleLiquidationGetAuction(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input auctionQueryParams
	if !decodeParams(w, req, &input) {
		return
	}
	auction, err := s.liquidation.AuctionInfo(input.AuctionID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, s.auctionToResult(auction))
}

func (s *Server) handleLiquidationListAuctions(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	auctions, err := s.liquidation.ActiveAuctions()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	results := make([]auctionResult, 0, len(auctions))
	for _, auction := range auctions {
		results = append(results, s.auctionToResult(auction))
	}
	writeResult(w, req.ID, results)
}
