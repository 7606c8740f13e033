package market

import (
	"math/big"
)

// CallerKind tags how an invocation reached the marketplace. The surrounding
// harness resolves the identity once and passes it in explicitly; operations
// never infer it from ambient execution context.
type CallerKind uint8

const (
	// CallerDirectAccount marks session code acting for an external account.
	CallerDirectAccount CallerKind = iota
	// CallerContractPackage marks an invocation originating from stored
	// contract code, identified by its package address.
	CallerContractPackage
)

// Caller identifies the principal invoking an operation.
type Caller struct {
	Kind    CallerKind
	Address [20]byte
}

// DirectAccount builds the common session-caller value.
func DirectAccount(addr [20]byte) Caller {
	return Caller{Kind: CallerDirectAccount, Address: addr}
}

// Order is a fixed-price single-token listing. An active order implies the
// marketplace holds the referenced token in escrow. Records are deactivated,
// never deleted, so the history stays retrievable.
type Order struct {
	Collection [20]byte
	TokenID    *big.Int
	Maker      [20]byte
	Price      *big.Int
	Active     bool
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.TokenID = cloneBigInt(o.TokenID)
	clone.Price = cloneBigInt(o.Price)
	return &clone
}

// BidStatus tracks a bid through the offer lifecycle.
type BidStatus uint8

const (
	BidPending BidStatus = iota
	BidAccepted
	BidNotAccepted
	BidCanceled
)

// Valid reports whether the status value is within the supported range.
func (s BidStatus) Valid() bool {
	switch s {
	case BidPending, BidAccepted, BidNotAccepted, BidCanceled:
		return true
	default:
		return false
	}
}

// Bid is a single funded offer on a token. The price is already escrowed in
// the marketplace purse while the bid is pending.
type Bid struct {
	Bidder  [20]byte
	Price   *big.Int
	BidTime int64
	Status  BidStatus
}

// Clone returns a deep copy of the bid.
func (b Bid) Clone() Bid {
	b.Price = cloneBigInt(b.Price)
	return b
}

// Offer collects the bids outstanding against one (collection, token) pair.
// At most one bid per distinct bidder exists at any time.
type Offer struct {
	Collection [20]byte
	TokenID    *big.Int
	Bids       []Bid
	Active     bool
}

// Clone returns a deep copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := &Offer{
		Collection: o.Collection,
		TokenID:    cloneBigInt(o.TokenID),
		Active:     o.Active,
	}
	if len(o.Bids) > 0 {
		clone.Bids = make([]Bid, len(o.Bids))
		for i, bid := range o.Bids {
			clone.Bids[i] = bid.Clone()
		}
	}
	return clone
}

// BidIndexByBidder returns the position of the bidder's bid, if any.
func (o *Offer) BidIndexByBidder(bidder [20]byte) (int, bool) {
	if o == nil {
		return 0, false
	}
	for i, bid := range o.Bids {
		if bid.Bidder == bidder {
			return i, true
		}
	}
	return 0, false
}

// OrderKey identifies an order in the enumerable on-orders index.
type OrderKey struct {
	Collection [20]byte
	TokenID    *big.Int
}

// OfferKey identifies one bidder's bid in the enumerable on-offers index.
type OfferKey struct {
	Collection [20]byte
	TokenID    *big.Int
	Bidder     [20]byte
}

func (k OrderKey) matches(collection [20]byte, tokenID *big.Int) bool {
	return k.Collection == collection && bigIntEqual(k.TokenID, tokenID)
}

func (k OfferKey) matches(collection [20]byte, tokenID *big.Int, bidder [20]byte) bool {
	return k.Collection == collection && k.Bidder == bidder && bigIntEqual(k.TokenID, tokenID)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func bigIntEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}
