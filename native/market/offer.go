package market

import (
	"math/big"
)

// CreateOffer places a funded bid on a token. The bid amount must already be
// escrowed in the purse via the funding step. A bidder holds at most one bid
// per token: placing a second bid replaces the first, and the replaced bid's
// funds are returned.
func (e *Engine) CreateOffer(caller Caller, collection [20]byte, tokenID, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requireDirectAccount(caller); err != nil {
		return err
	}
	if _, err := e.checkedBalance(amount); err != nil {
		return err
	}
	offer, ok, err := e.state.OfferGet(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok || !offer.Active {
		// No live offer on this token. A settled record may linger with its
		// bid history retained; those bids are already paid out, so bidding
		// starts from a fresh record rather than matching against them.
		offer = &Offer{
			Collection: collection,
			TokenID:    cloneBigInt(tokenID),
			Active:     true,
		}
	}
	bid := Bid{
		Bidder:  caller.Address,
		Price:   cloneBigInt(amount),
		BidTime: e.now(),
		Status:  BidPending,
	}
	onOffers, err := e.state.OnOffers()
	if err != nil {
		return err
	}
	if idx, exists := offer.BidIndexByBidder(caller.Address); exists {
		prior := offer.Bids[idx]
		if bigIntEqual(prior.Price, bid.Price) && prior.BidTime == bid.BidTime {
			return ErrBidExist
		}
		// Replace semantics: refund the superseded bid before recording
		// the new one.
		if err := e.transfer(prior.Bidder, prior.Price); err != nil {
			return err
		}
		offer.Bids = append(offer.Bids[:idx:idx], offer.Bids[idx+1:]...)
	} else {
		onOffers = append(onOffers, OfferKey{
			Collection: collection,
			TokenID:    cloneBigInt(tokenID),
			Bidder:     caller.Address,
		})
	}
	offer.Bids = append(offer.Bids, bid)
	if err := e.state.ResultPut(offer); err != nil {
		return err
	}
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	if err := e.state.SetOnOffers(onOffers); err != nil {
		return err
	}
	e.emit(newOfferEvent(EventTypeOfferCreated, caller.Address, collection, tokenID, amount))
	return nil
}

// CancelOffer withdraws the caller's bid, refunding its escrowed price.
func (e *Engine) CancelOffer(caller Caller, collection [20]byte, tokenID *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requireDirectAccount(caller); err != nil {
		return err
	}
	onOffers, err := e.state.OnOffers()
	if err != nil {
		return err
	}
	pos, ok := findOfferKey(onOffers, collection, tokenID, caller.Address)
	if !ok {
		return ErrOfferNotExist
	}
	offer, ok, err := e.state.OfferGet(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	idx, ok := offer.BidIndexByBidder(caller.Address)
	if !ok {
		return ErrPermissionDenied
	}
	bid := offer.Bids[idx]
	if err := e.transfer(bid.Bidder, bid.Price); err != nil {
		return err
	}
	offer.Bids = append(offer.Bids[:idx:idx], offer.Bids[idx+1:]...)
	if err := e.state.ResultPut(offer); err != nil {
		return err
	}
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	if err := e.state.SetOnOffers(removeOfferKey(onOffers, pos)); err != nil {
		return err
	}
	e.emit(newOfferEvent(EventTypeOfferCanceled, caller.Address, collection, tokenID, nil))
	return nil
}

// AcceptOffer settles the bid at bidPos in favour of the caller, who must be
// the token's registry-recorded owner. The accepted price is paid out with
// the fee split, the token moves to the winning bidder, every other bid is
// refunded in full, and the offer is deactivated.
func (e *Engine) AcceptOffer(caller Caller, collection [20]byte, tokenID *big.Int, bidPos int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requireDirectAccount(caller); err != nil {
		return err
	}
	owner, ok, err := e.registry.OwnerOf(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok || owner != caller.Address {
		return ErrPermissionDenied
	}
	offer, ok, err := e.state.OfferGet(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOfferNotExist
	}
	if bidPos < 0 || bidPos >= len(offer.Bids) {
		return ErrKeyMismatch
	}
	accepted := offer.Bids[bidPos].Clone()

	if err := e.transferWithFee(caller.Address, accepted.Price); err != nil {
		return err
	}
	if err := e.registry.Transfer(collection, caller.Address, accepted.Bidder, tokenID); err != nil {
		return err
	}

	// Refund every losing bid so no funds stay escrowed against a token
	// that has changed hands.
	onOffers, err := e.state.OnOffers()
	if err != nil {
		return err
	}
	for i := range offer.Bids {
		if i == bidPos {
			offer.Bids[i].Status = BidAccepted
			continue
		}
		if err := e.transfer(offer.Bids[i].Bidder, offer.Bids[i].Price); err != nil {
			return err
		}
		offer.Bids[i].Status = BidNotAccepted
	}
	onOffers = removeOfferKeysForToken(onOffers, collection, tokenID)
	offer.Active = false
	if err := e.state.ResultPut(offer); err != nil {
		return err
	}
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	if err := e.state.SetOnOffers(onOffers); err != nil {
		return err
	}
	e.emit(newOfferEvent(EventTypeOfferAccepted, caller.Address, collection, tokenID, accepted.Price))
	return nil
}

func findOfferKey(keys []OfferKey, collection [20]byte, tokenID *big.Int, bidder [20]byte) (int, bool) {
	for i, key := range keys {
		if key.matches(collection, tokenID, bidder) {
			return i, true
		}
	}
	return 0, false
}

// removeOfferKey deletes the entry at pos while preserving the order of the
// remaining entries.
func removeOfferKey(keys []OfferKey, pos int) []OfferKey {
	return append(keys[:pos:pos], keys[pos+1:]...)
}

func removeOfferKeysForToken(keys []OfferKey, collection [20]byte, tokenID *big.Int) []OfferKey {
	kept := keys[:0:0]
	for _, key := range keys {
		if key.Collection == collection && bigIntEqual(key.TokenID, tokenID) {
			continue
		}
		kept = append(kept, key)
	}
	return kept
}
