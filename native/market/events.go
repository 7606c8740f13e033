package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"tokenmart/core/types"
)

const (
	EventTypeOrderCreated    = "market.order.created"
	EventTypeOrderCanceled   = "market.order.canceled"
	EventTypeOrderBought     = "market.order.bought"
	EventTypeOfferCreated    = "market.offer.created"
	EventTypeOfferCanceled   = "market.offer.canceled"
	EventTypeOfferAccepted   = "market.offer.accepted"
	EventTypeAuctionCreated  = "market.auction.created"
	EventTypeFeeChanged      = "market.fee.changed"
	EventTypeTreasuryChanged = "market.treasury.changed"
	EventTypeOwnerChanged    = "market.owner.changed"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

func newOrderEvent(eventType string, maker [20]byte, collection [20]byte, tokenID, price *big.Int) *types.Event {
	attrs := map[string]string{
		"maker":      hex.EncodeToString(maker[:]),
		"collection": hex.EncodeToString(collection[:]),
		"tokenId":    cloneBigInt(tokenID).String(),
	}
	if price != nil {
		attrs["price"] = price.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newOfferEvent(eventType string, bidder [20]byte, collection [20]byte, tokenID, price *big.Int) *types.Event {
	attrs := map[string]string{
		"bidder":     hex.EncodeToString(bidder[:]),
		"collection": hex.EncodeToString(collection[:]),
		"tokenId":    cloneBigInt(tokenID).String(),
	}
	if price != nil {
		attrs["price"] = price.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newAuctionEvent(a *Auction) *types.Event {
	if a == nil {
		return &types.Event{Type: EventTypeAuctionCreated, Attributes: map[string]string{}}
	}
	attrs := map[string]string{
		"maker":       hex.EncodeToString(a.Maker[:]),
		"collection":  hex.EncodeToString(a.Collection[:]),
		"tokenId":     cloneBigInt(a.TokenID).String(),
		"auctionType": strconv.FormatUint(uint64(a.Type), 10),
		"startTime":   strconv.FormatInt(a.StartTime, 10),
	}
	if a.ReservePrice != nil {
		attrs["reservePrice"] = a.ReservePrice.String()
	}
	if a.EndTime != nil {
		attrs["endTime"] = strconv.FormatInt(*a.EndTime, 10)
	}
	return &types.Event{Type: EventTypeAuctionCreated, Attributes: attrs}
}

func newFeeChangedEvent(fee *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFeeChanged, Attributes: map[string]string{
		"fee": cloneBigInt(fee).String(),
	}}
}

func newTreasuryChangedEvent(wallet [20]byte) *types.Event {
	return &types.Event{Type: EventTypeTreasuryChanged, Attributes: map[string]string{
		"treasuryWallet": hex.EncodeToString(wallet[:]),
	}}
}

func newOwnerChangedEvent(owner [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnerChanged, Attributes: map[string]string{
		"owner": hex.EncodeToString(owner[:]),
	}}
}
