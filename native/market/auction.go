package market

import (
	"math/big"
)

// AuctionType distinguishes the auction variants the scaffold records.
type AuctionType uint8

const (
	AuctionEnglish AuctionType = iota
	AuctionDutch
)

// Valid reports whether the auction type is within the supported range.
func (t AuctionType) Valid() bool {
	switch t {
	case AuctionEnglish, AuctionDutch:
		return true
	default:
		return false
	}
}

// Auction is a stored auction definition. Creation is the only lifecycle
// operation; bidding and settlement entry points are not defined for it.
type Auction struct {
	Maker        [20]byte
	Collection   [20]byte
	TokenID      *big.Int
	Type         AuctionType
	ReservePrice *big.Int
	StartTime    int64
	EndTime      *int64
	Bids         []Bid
}

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := &Auction{
		Maker:      a.Maker,
		Collection: a.Collection,
		TokenID:    cloneBigInt(a.TokenID),
		Type:       a.Type,
		StartTime:  a.StartTime,
	}
	if a.ReservePrice != nil {
		clone.ReservePrice = new(big.Int).Set(a.ReservePrice)
	}
	if a.EndTime != nil {
		end := *a.EndTime
		clone.EndTime = &end
	}
	if len(a.Bids) > 0 {
		clone.Bids = make([]Bid, len(a.Bids))
		for i, bid := range a.Bids {
			clone.Bids[i] = bid.Clone()
		}
	}
	return clone
}

// CreateAuction validates and persists an auction definition. The record is
// stored and surfaced through the result slot but carries no further
// lifecycle.
func (e *Engine) CreateAuction(caller Caller, collection [20]byte, tokenID *big.Int, auctionType AuctionType, reservePrice *big.Int, startTime int64, endTime *int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := requireDirectAccount(caller); err != nil {
		return err
	}
	if !auctionType.Valid() {
		return ErrNotValidAmount
	}
	if reservePrice != nil {
		if err := checkAmount(reservePrice); err != nil {
			return err
		}
	}
	auction := &Auction{
		Maker:      caller.Address,
		Collection: collection,
		TokenID:    cloneBigInt(tokenID),
		Type:       auctionType,
		StartTime:  startTime,
	}
	if reservePrice != nil {
		auction.ReservePrice = new(big.Int).Set(reservePrice)
	}
	if endTime != nil {
		end := *endTime
		auction.EndTime = &end
	}
	if err := e.state.AuctionPut(auction); err != nil {
		return err
	}
	if err := e.state.ResultPut(auction); err != nil {
		return err
	}
	e.emit(newAuctionEvent(auction))
	return nil
}
