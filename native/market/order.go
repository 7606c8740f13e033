package market

import (
	"math/big"
)

// CreateOrder lists a token at a fixed price. The caller must have approved
// this marketplace as spender in the token registry; the token is pulled into
// escrow before the order record is written. At most one active order exists
// per (collection, token).
func (e *Engine) CreateOrder(caller Caller, collection [20]byte, tokenID, price *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requireDirectAccount(caller); err != nil {
		return err
	}
	if err := checkAmount(price); err != nil {
		return err
	}
	onOrders, err := e.state.OnOrders()
	if err != nil {
		return err
	}
	if _, ok := findOrderKey(onOrders, collection, tokenID); ok {
		return ErrOrderExist
	}
	onOrders = append(onOrders, OrderKey{Collection: collection, TokenID: cloneBigInt(tokenID)})
	if err := e.state.SetOnOrders(onOrders); err != nil {
		return err
	}

	approved, ok, err := e.registry.Approved(collection, caller.Address, tokenID)
	if err != nil {
		return err
	}
	if !ok || approved != e.self {
		return ErrNotApproved
	}
	if err := e.registry.Transfer(collection, caller.Address, e.self, tokenID); err != nil {
		return err
	}
	// The registry could silently no-op the transfer; require that custody
	// actually moved.
	owner, ok, err := e.registry.OwnerOf(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok || owner != e.self {
		return ErrNotOwner
	}

	order := &Order{
		Collection: collection,
		TokenID:    cloneBigInt(tokenID),
		Maker:      caller.Address,
		Price:      cloneBigInt(price),
		Active:     true,
	}
	if err := e.state.OrderPut(order); err != nil {
		return err
	}
	e.emit(newOrderEvent(EventTypeOrderCreated, caller.Address, collection, tokenID, price))
	return nil
}

// CancelOrder returns the escrowed token to the maker and deactivates the
// listing. Only the maker may cancel.
func (e *Engine) CancelOrder(caller Caller, collection [20]byte, tokenID *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requireDirectAccount(caller); err != nil {
		return err
	}
	onOrders, err := e.state.OnOrders()
	if err != nil {
		return err
	}
	pos, ok := findOrderKey(onOrders, collection, tokenID)
	if !ok {
		return ErrOrderNotExist
	}
	order, ok, err := e.state.OrderGet(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrKeyMismatch
	}
	if caller.Address != order.Maker {
		return ErrNotOrderMaker
	}
	if err := e.registry.Transfer(order.Collection, e.self, order.Maker, order.TokenID); err != nil {
		return err
	}
	order.Active = false
	if err := e.state.OrderPut(order); err != nil {
		return err
	}
	if err := e.state.SetOnOrders(removeOrderKey(onOrders, pos)); err != nil {
		return err
	}
	if err := e.state.ResultPut(order); err != nil {
		return err
	}
	e.emit(newOrderEvent(EventTypeOrderCanceled, caller.Address, collection, tokenID, nil))
	return nil
}

// BuyOrder settles a listing: the deposited amount must match the price
// exactly, the token moves to the buyer, and the maker is paid the price
// minus the platform fee share.
func (e *Engine) BuyOrder(caller Caller, collection [20]byte, tokenID, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requireDirectAccount(caller); err != nil {
		return err
	}
	onOrders, err := e.state.OnOrders()
	if err != nil {
		return err
	}
	pos, ok := findOrderKey(onOrders, collection, tokenID)
	if !ok {
		return ErrOrderNotExist
	}
	if _, err := e.checkedBalance(amount); err != nil {
		return err
	}
	order, ok, err := e.state.OrderGet(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrKeyMismatch
	}
	if !bigIntEqual(amount, order.Price) {
		return ErrNotValidAmount
	}
	if err := e.registry.Transfer(order.Collection, e.self, caller.Address, order.TokenID); err != nil {
		return err
	}
	if err := e.transferWithFee(order.Maker, order.Price); err != nil {
		return err
	}
	order.Active = false
	if err := e.state.SetOnOrders(removeOrderKey(onOrders, pos)); err != nil {
		return err
	}
	if err := e.state.OrderPut(order); err != nil {
		return err
	}
	e.emit(newOrderEvent(EventTypeOrderBought, caller.Address, collection, tokenID, order.Price))
	return nil
}

func findOrderKey(keys []OrderKey, collection [20]byte, tokenID *big.Int) (int, bool) {
	for i, key := range keys {
		if key.matches(collection, tokenID) {
			return i, true
		}
	}
	return 0, false
}

// removeOrderKey deletes the entry at pos while preserving the order of the
// remaining entries.
func removeOrderKey(keys []OrderKey, pos int) []OrderKey {
	return append(keys[:pos:pos], keys[pos+1:]...)
}
