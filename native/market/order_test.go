package market

import (
	"math/big"
	"testing"
)

func TestCreateOrderHappyPath(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	engine, emitter := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)
	registry.approve(collection, tokenID, engine.self)

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(1000)); err != nil {
		t.Fatalf("create order: %v", err)
	}

	order, ok, err := state.OrderGet(collection, tokenID)
	if err != nil || !ok {
		t.Fatalf("order record missing: ok=%v err=%v", ok, err)
	}
	if !order.Active || order.Maker != seller || order.Price.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected order record: %+v", order)
	}
	if len(state.onOrders) != 1 || !state.onOrders[0].matches(collection, tokenID) {
		t.Fatalf("order index not updated: %+v", state.onOrders)
	}
	custodian, _, _ := registry.OwnerOf(collection, tokenID)
	if custodian != engine.self {
		t.Fatalf("token should be in marketplace escrow, owned by %x", custodian)
	}
	if got := emitter.eventTypes(); len(got) != 1 || got[0] != EventTypeOrderCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestCreateOrderRejectsDuplicateListing(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	engine, _ := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)
	registry.approve(collection, tokenID, engine.self)

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(10)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(20)); err != ErrOrderExist {
		t.Fatalf("expected ErrOrderExist, got %v", err)
	}
}

func TestCreateOrderRequiresApproval(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	engine, _ := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(10)); err != ErrNotApproved {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestCreateOrderDetectsSilentRegistry(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	registry.silent = true
	engine, _ := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)
	registry.approve(collection, tokenID, engine.self)

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(10)); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestCreateOrderRejectsContractCaller(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(t, state, newMockRegistry())
	caller := Caller{Kind: CallerContractPackage, Address: newTestAddress(0x22)}
	if err := engine.CreateOrder(caller, newTestAddress(0xC0), big.NewInt(7), big.NewInt(10)); err != ErrInvalidContext {
		t.Fatalf("expected ErrInvalidContext, got %v", err)
	}
}

func TestCancelOrderRoundTrip(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	engine, emitter := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)
	registry.approve(collection, tokenID, engine.self)

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(10)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.CancelOrder(DirectAccount(seller), collection, tokenID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	owner, _, _ := registry.OwnerOf(collection, tokenID)
	if owner != seller {
		t.Fatalf("token not returned to maker, owner %x", owner)
	}
	order, ok, _ := state.OrderGet(collection, tokenID)
	if !ok || order.Active {
		t.Fatalf("canceled order should stay retrievable and inactive: ok=%v %+v", ok, order)
	}
	if len(state.onOrders) != 0 {
		t.Fatalf("order index should be empty, got %+v", state.onOrders)
	}
	if _, ok := state.result.(*Order); !ok {
		t.Fatalf("result slot should hold the order record, got %T", state.result)
	}

	// The maker can immediately re-list the same token.
	registry.approve(collection, tokenID, engine.self)
	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(20)); err != nil {
		t.Fatalf("re-list after cancel: %v", err)
	}
	order, _, _ = state.OrderGet(collection, tokenID)
	if !order.Active || order.Price.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("re-listed order not active at new price: %+v", order)
	}
	want := []string{EventTypeOrderCreated, EventTypeOrderCanceled, EventTypeOrderCreated}
	got := emitter.eventTypes()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestCancelOrderOnlyMaker(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	engine, _ := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)
	registry.approve(collection, tokenID, engine.self)

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(10)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.CancelOrder(DirectAccount(newTestAddress(0x33)), collection, tokenID); err != ErrNotOrderMaker {
		t.Fatalf("expected ErrNotOrderMaker, got %v", err)
	}
}

func TestCancelOrderUnknownListing(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(t, state, newMockRegistry())
	if err := engine.CancelOrder(DirectAccount(newTestAddress(0x22)), newTestAddress(0xC0), big.NewInt(7)); err != ErrOrderNotExist {
		t.Fatalf("expected ErrOrderNotExist, got %v", err)
	}
}

func TestBuyOrderSettlesWithFeeSplit(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	engine, emitter := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	buyer := newTestAddress(0x33)
	treasury := newTestAddress(0x77)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)
	registry.approve(collection, tokenID, engine.self)
	state.fee = big.NewInt(25)
	state.treasury = treasury

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(1000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	state.deposit(1000)
	if err := engine.BuyOrder(DirectAccount(buyer), collection, tokenID, big.NewInt(1000)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	owner, _, _ := registry.OwnerOf(collection, tokenID)
	if owner != buyer {
		t.Fatalf("token should belong to buyer, owner %x", owner)
	}
	if got := state.balance(seller); got.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("maker payout = %s, want 975", got)
	}
	if got := state.balance(treasury); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("treasury payout = %s, want 25", got)
	}
	if got := state.balance(state.purse); got.Sign() != 0 {
		t.Fatalf("purse should be drained, holds %s", got)
	}
	order, _, _ := state.OrderGet(collection, tokenID)
	if order.Active {
		t.Fatalf("settled order should be inactive")
	}
	if len(state.onOrders) != 0 {
		t.Fatalf("order index should be empty after settlement")
	}
	got := emitter.eventTypes()
	if got[len(got)-1] != EventTypeOrderBought {
		t.Fatalf("last event = %s, want %s", got[len(got)-1], EventTypeOrderBought)
	}
}

func TestBuyOrderRejectsWrongAmount(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	engine, _ := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)
	registry.approve(collection, tokenID, engine.self)

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(1000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	state.deposit(999)
	if err := engine.BuyOrder(DirectAccount(newTestAddress(0x33)), collection, tokenID, big.NewInt(999)); err != ErrNotValidAmount {
		t.Fatalf("expected ErrNotValidAmount, got %v", err)
	}
}

func TestBuyOrderWithoutDepositFails(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	engine, _ := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)
	registry.approve(collection, tokenID, engine.self)

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(1000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.BuyOrder(DirectAccount(newTestAddress(0x33)), collection, tokenID, big.NewInt(1000)); err != ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	// The listing stays intact for the next buyer.
	if len(state.onOrders) != 1 {
		t.Fatalf("order index should be untouched")
	}
	order, _, _ := state.OrderGet(collection, tokenID)
	if !order.Active {
		t.Fatalf("order should stay active after rejected purchase")
	}
}

func TestBuyOrderMakerMayBuyBack(t *testing.T) {
	state := newMockState()
	registry := newMockRegistry()
	engine, _ := newTestEngine(t, state, registry)
	seller := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	registry.mint(collection, tokenID, seller)
	registry.approve(collection, tokenID, engine.self)

	if err := engine.CreateOrder(DirectAccount(seller), collection, tokenID, big.NewInt(100)); err != nil {
		t.Fatalf("create: %v", err)
	}
	state.deposit(100)
	if err := engine.BuyOrder(DirectAccount(seller), collection, tokenID, big.NewInt(100)); err != nil {
		t.Fatalf("maker buy-back: %v", err)
	}
	owner, _, _ := registry.OwnerOf(collection, tokenID)
	if owner != seller {
		t.Fatalf("token should return to maker, owner %x", owner)
	}
}
