package state

import (
	"fmt"
	"math/big"

	"tokenmart/native/market"
)

type storedOrder struct {
	Collection [20]byte
	TokenID    *big.Int
	Maker      [20]byte
	Price      *big.Int
	Active     bool
}

func newStoredOrder(o *market.Order) *storedOrder {
	return &storedOrder{
		Collection: o.Collection,
		TokenID:    nonNil(o.TokenID),
		Maker:      o.Maker,
		Price:      nonNil(o.Price),
		Active:     o.Active,
	}
}

func (s *storedOrder) toOrder() *market.Order {
	return &market.Order{
		Collection: s.Collection,
		TokenID:    nonNil(s.TokenID),
		Maker:      s.Maker,
		Price:      nonNil(s.Price),
		Active:     s.Active,
	}
}

type storedBid struct {
	Bidder  [20]byte
	Price   *big.Int
	BidTime uint64
	Status  uint8
}

type storedOffer struct {
	Collection [20]byte
	TokenID    *big.Int
	Bids       []storedBid
	Active     bool
}

func newStoredOffer(o *market.Offer) *storedOffer {
	stored := &storedOffer{
		Collection: o.Collection,
		TokenID:    nonNil(o.TokenID),
		Active:     o.Active,
	}
	for _, bid := range o.Bids {
		stored.Bids = append(stored.Bids, storedBid{
			Bidder:  bid.Bidder,
			Price:   nonNil(bid.Price),
			BidTime: uint64(bid.BidTime),
			Status:  uint8(bid.Status),
		})
	}
	return stored
}

func (s *storedOffer) toOffer() (*market.Offer, error) {
	offer := &market.Offer{
		Collection: s.Collection,
		TokenID:    nonNil(s.TokenID),
		Active:     s.Active,
	}
	for _, bid := range s.Bids {
		status := market.BidStatus(bid.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("market state: invalid bid status %d", bid.Status)
		}
		offer.Bids = append(offer.Bids, market.Bid{
			Bidder:  bid.Bidder,
			Price:   nonNil(bid.Price),
			BidTime: int64(bid.BidTime),
			Status:  status,
		})
	}
	return offer, nil
}

type storedAuction struct {
	Maker        [20]byte
	Collection   [20]byte
	TokenID      *big.Int
	Type         uint8
	ReservePrice *big.Int
	HasReserve   bool
	StartTime    uint64
	EndTime      uint64
	HasEnd       bool
	Bids         []storedBid
}

type storedOrderKey struct {
	Collection [20]byte
	TokenID    *big.Int
}

type storedOfferKey struct {
	Collection [20]byte
	TokenID    *big.Int
	Bidder     [20]byte
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// OrderPut writes the order record under its dictionary key.
func (m *Manager) OrderPut(o *market.Order) error {
	if o == nil {
		return fmt.Errorf("market state: nil order")
	}
	return m.write(tokenKey(orderRecordPrefix, o.Collection, o.TokenID), newStoredOrder(o))
}

// OrderGet reads the order record for a (collection, token) pair.
func (m *Manager) OrderGet(collection [20]byte, tokenID *big.Int) (*market.Order, bool, error) {
	stored := new(storedOrder)
	ok, err := m.read(tokenKey(orderRecordPrefix, collection, tokenID), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toOrder(), true, nil
}

// OfferPut writes the offer record under its dictionary key.
func (m *Manager) OfferPut(o *market.Offer) error {
	if o == nil {
		return fmt.Errorf("market state: nil offer")
	}
	return m.write(tokenKey(offerRecordPrefix, o.Collection, o.TokenID), newStoredOffer(o))
}

// OfferGet reads the offer record for a (collection, token) pair. A missing
// record is the valid "no offer yet" state.
func (m *Manager) OfferGet(collection [20]byte, tokenID *big.Int) (*market.Offer, bool, error) {
	stored := new(storedOffer)
	ok, err := m.read(tokenKey(offerRecordPrefix, collection, tokenID), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	offer, err := stored.toOffer()
	if err != nil {
		return nil, false, err
	}
	return offer, true, nil
}

// AuctionPut persists an auction definition.
func (m *Manager) AuctionPut(a *market.Auction) error {
	if a == nil {
		return fmt.Errorf("market state: nil auction")
	}
	return m.write(tokenKey(auctionPrefix, a.Collection, a.TokenID), newStoredAuction(a))
}

func newStoredAuction(a *market.Auction) *storedAuction {
	stored := &storedAuction{
		Maker:      a.Maker,
		Collection: a.Collection,
		TokenID:    nonNil(a.TokenID),
		Type:       uint8(a.Type),
		StartTime:  uint64(a.StartTime),
	}
	if a.ReservePrice != nil {
		stored.ReservePrice = new(big.Int).Set(a.ReservePrice)
		stored.HasReserve = true
	} else {
		stored.ReservePrice = big.NewInt(0)
	}
	if a.EndTime != nil {
		stored.EndTime = uint64(*a.EndTime)
		stored.HasEnd = true
	}
	for _, bid := range a.Bids {
		stored.Bids = append(stored.Bids, storedBid{
			Bidder:  bid.Bidder,
			Price:   nonNil(bid.Price),
			BidTime: uint64(bid.BidTime),
			Status:  uint8(bid.Status),
		})
	}
	return stored
}

// OnOrders returns the enumerable on-orders index.
func (m *Manager) OnOrders() ([]market.OrderKey, error) {
	var stored []storedOrderKey
	if _, err := m.read(onOrdersKey, &stored); err != nil {
		return nil, err
	}
	keys := make([]market.OrderKey, 0, len(stored))
	for _, key := range stored {
		keys = append(keys, market.OrderKey{Collection: key.Collection, TokenID: nonNil(key.TokenID)})
	}
	return keys, nil
}

// SetOnOrders replaces the enumerable on-orders index.
func (m *Manager) SetOnOrders(keys []market.OrderKey) error {
	stored := make([]storedOrderKey, 0, len(keys))
	for _, key := range keys {
		stored = append(stored, storedOrderKey{Collection: key.Collection, TokenID: nonNil(key.TokenID)})
	}
	return m.write(onOrdersKey, stored)
}

// OnOffers returns the enumerable on-offers index.
func (m *Manager) OnOffers() ([]market.OfferKey, error) {
	var stored []storedOfferKey
	if _, err := m.read(onOffersKey, &stored); err != nil {
		return nil, err
	}
	keys := make([]market.OfferKey, 0, len(stored))
	for _, key := range stored {
		keys = append(keys, market.OfferKey{Collection: key.Collection, TokenID: nonNil(key.TokenID), Bidder: key.Bidder})
	}
	return keys, nil
}

// SetOnOffers replaces the enumerable on-offers index.
func (m *Manager) SetOnOffers(keys []market.OfferKey) error {
	stored := make([]storedOfferKey, 0, len(keys))
	for _, key := range keys {
		stored = append(stored, storedOfferKey{Collection: key.Collection, TokenID: nonNil(key.TokenID), Bidder: key.Bidder})
	}
	return m.write(onOffersKey, stored)
}

// FeeRate reads the parts-per-1000 platform fee.
func (m *Manager) FeeRate() (*big.Int, error) {
	return m.loadBigInt(feeKey)
}

// SetFeeRate stores the parts-per-1000 platform fee.
func (m *Manager) SetFeeRate(fee *big.Int) error {
	return m.write(feeKey, nonNil(fee))
}

// TreasuryWallet reads the fee recipient account.
func (m *Manager) TreasuryWallet() ([20]byte, error) {
	var wallet [20]byte
	if _, err := m.read(treasuryKey, &wallet); err != nil {
		return [20]byte{}, err
	}
	return wallet, nil
}

// SetTreasuryWallet stores the fee recipient account.
func (m *Manager) SetTreasuryWallet(wallet [20]byte) error {
	return m.write(treasuryKey, wallet)
}

// PurseAddress reads the escrow purse account, failing when the instance was
// never installed.
func (m *Manager) PurseAddress() ([20]byte, error) {
	var purse [20]byte
	ok, err := m.read(purseKey, &purse)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, errPurseNotConfigured
	}
	return purse, nil
}

// SetPurseAddress stores the escrow purse account.
func (m *Manager) SetPurseAddress(purse [20]byte) error {
	return m.write(purseKey, purse)
}

// PurseBalanceSnapshot reads the cached purse balance used to detect
// externally deposited funds.
func (m *Manager) PurseBalanceSnapshot() (*big.Int, error) {
	return m.loadBigInt(purseBalanceKey)
}

// SetPurseBalanceSnapshot stores the cached purse balance.
func (m *Manager) SetPurseBalanceSnapshot(balance *big.Int) error {
	return m.write(purseBalanceKey, nonNil(balance))
}

// AccessOwner reads the owner-policy principal.
func (m *Manager) AccessOwner() ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := m.read(accessOwnerKey, &owner)
	if err != nil {
		return [20]byte{}, false, err
	}
	return owner, ok, nil
}

// SetAccessOwner stores the owner-policy principal.
func (m *Manager) SetAccessOwner(owner [20]byte) error {
	return m.write(accessOwnerKey, owner)
}

// AccessHandle reads the capability handle issued to addr, if any.
func (m *Manager) AccessHandle(addr [20]byte) ([32]byte, bool, error) {
	var handle [32]byte
	ok, err := m.read(addrKey(accessHandlePrefix, addr), &handle)
	if err != nil {
		return [32]byte{}, false, err
	}
	return handle, ok, nil
}

// SetAccessHandle stores the capability handle for addr.
func (m *Manager) SetAccessHandle(addr [20]byte, handle [32]byte) error {
	return m.write(addrKey(accessHandlePrefix, addr), handle)
}

// ResultPut overwrites the single last-result slot with the outcome record of
// an operation.
func (m *Manager) ResultPut(record any) error {
	switch v := record.(type) {
	case *market.Order:
		return m.write(resultKey, newStoredOrder(v))
	case *market.Offer:
		return m.write(resultKey, newStoredOffer(v))
	case *market.Auction:
		return m.write(resultKey, newStoredAuction(v))
	default:
		return fmt.Errorf("market state: unsupported result record %T", record)
	}
}

// LastResult returns the raw encoded last-result slot.
func (m *Manager) LastResult() ([]byte, bool) {
	data, err := m.kv.Get(resultKey)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}
