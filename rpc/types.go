package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	coretypes "tokenmart/core/types"
	"tokenmart/native/market"
)

// callerRequest is the shared identity block every mutating request carries.
// The kind defaults to a direct account; stored contract callers must say so
// and are rejected by the state-changing entry points.
type callerRequest struct {
	Caller     string `json:"caller"`
	CallerKind string `json:"callerKind,omitempty"`
}

func (c callerRequest) resolve() (market.Caller, error) {
	addr, err := parseAddress(c.Caller)
	if err != nil {
		return market.Caller{}, fmt.Errorf("caller: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.CallerKind)) {
	case "", "account":
		return market.DirectAccount(addr), nil
	case "contract":
		return market.Caller{Kind: market.CallerContractPackage, Address: addr}, nil
	default:
		return market.Caller{}, fmt.Errorf("callerKind: unknown value %q", c.CallerKind)
	}
}

type orderRequest struct {
	callerRequest
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Price      string `json:"price,omitempty"`
	Amount     string `json:"amount,omitempty"`
}

type offerRequest struct {
	callerRequest
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Amount     string `json:"amount,omitempty"`
	BidPos     *int   `json:"bidPos,omitempty"`
}

type auctionRequest struct {
	callerRequest
	Collection   string `json:"collection"`
	TokenID      string `json:"tokenId"`
	AuctionType  string `json:"auctionType"`
	ReservePrice string `json:"reservePrice,omitempty"`
	StartTime    int64  `json:"startTime"`
	EndTime      *int64 `json:"endTime,omitempty"`
}

type feeRequest struct {
	callerRequest
	Fee string `json:"fee"`
}

type walletRequest struct {
	callerRequest
	Wallet string `json:"wallet"`
}

type ownerRequest struct {
	callerRequest
	NewOwner string `json:"newOwner"`
}

type mintRequest struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Owner      string `json:"owner"`
}

type approveRequest struct {
	callerRequest
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Spender    string `json:"spender,omitempty"`
}

type fundsRequest struct {
	callerRequest
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount"`
}

type eventResult struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// invocationResult is the common success envelope for mutating endpoints.
type invocationResult struct {
	Events []eventResult `json:"events,omitempty"`
	// Record is the hex-encoded stored result record, when the operation
	// produced one.
	Record string `json:"record,omitempty"`
}

type orderResult struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Maker      string `json:"maker"`
	Price      string `json:"price"`
	Active     bool   `json:"active"`
}

type bidResult struct {
	Bidder  string `json:"bidder"`
	Price   string `json:"price"`
	BidTime int64  `json:"bidTime"`
	Status  uint8  `json:"status"`
}

type offerResult struct {
	Collection string      `json:"collection"`
	TokenID    string      `json:"tokenId"`
	Bids       []bidResult `json:"bids"`
	Active     bool        `json:"active"`
}

type orderKeyResult struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
}

type offerKeyResult struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Bidder     string `json:"bidder"`
}

type accountResult struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
	Balance string `json:"balance"`
}

func newOrderResult(o *market.Order) orderResult {
	return orderResult{
		Collection: encodeAddress(o.Collection),
		TokenID:    o.TokenID.String(),
		Maker:      encodeAddress(o.Maker),
		Price:      o.Price.String(),
		Active:     o.Active,
	}
}

func newOfferResult(o *market.Offer) offerResult {
	out := offerResult{
		Collection: encodeAddress(o.Collection),
		TokenID:    o.TokenID.String(),
		Active:     o.Active,
		Bids:       make([]bidResult, 0, len(o.Bids)),
	}
	for _, bid := range o.Bids {
		out.Bids = append(out.Bids, bidResult{
			Bidder:  encodeAddress(bid.Bidder),
			Price:   bid.Price.String(),
			BidTime: bid.BidTime,
			Status:  uint8(bid.Status),
		})
	}
	return out
}

func newAccountResult(addr [20]byte, acc *coretypes.Account) accountResult {
	return accountResult{
		Address: encodeAddress(addr),
		Nonce:   acc.Nonce,
		Balance: acc.Balance.String(),
	}
}

func newEventResults(evts []*coretypes.Event) []eventResult {
	out := make([]eventResult, 0, len(evts))
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		out = append(out, eventResult{Type: evt.Type, Attributes: evt.Attributes})
	}
	return out
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("address is required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address: %w", err)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes, got %d", len(addr), len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func encodeAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}

func parseTokenID(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("tokenId is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid tokenId %q", raw)
	}
	return value, nil
}
