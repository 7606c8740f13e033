package market

import (
	"math/big"
	"testing"
)

func TestCreateAuctionStoresRecord(t *testing.T) {
	state := newMockState()
	engine, emitter := newTestEngine(t, state, newMockRegistry())
	maker := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(7)
	end := int64(1_700_100_000)

	err := engine.CreateAuction(DirectAccount(maker), collection, tokenID, AuctionEnglish, big.NewInt(300), 1_700_000_000, &end)
	if err != nil {
		t.Fatalf("create auction: %v", err)
	}

	stored, ok := state.auctions[tokenMapKey(collection, tokenID)]
	if !ok {
		t.Fatalf("auction record missing")
	}
	if stored.Maker != maker || stored.Type != AuctionEnglish {
		t.Fatalf("unexpected auction record: %+v", stored)
	}
	if stored.ReservePrice == nil || stored.ReservePrice.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("reserve price = %v, want 300", stored.ReservePrice)
	}
	if stored.EndTime == nil || *stored.EndTime != end {
		t.Fatalf("end time = %v, want %d", stored.EndTime, end)
	}
	if _, ok := state.result.(*Auction); !ok {
		t.Fatalf("result slot should hold the auction record, got %T", state.result)
	}
	if got := emitter.eventTypes(); got[len(got)-1] != EventTypeAuctionCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestCreateAuctionOpenEnded(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(t, state, newMockRegistry())
	maker := newTestAddress(0x22)
	collection := newTestAddress(0xC0)
	tokenID := big.NewInt(9)

	if err := engine.CreateAuction(DirectAccount(maker), collection, tokenID, AuctionDutch, nil, 1_700_000_000, nil); err != nil {
		t.Fatalf("create auction: %v", err)
	}
	stored := state.auctions[tokenMapKey(collection, tokenID)]
	if stored.ReservePrice != nil || stored.EndTime != nil {
		t.Fatalf("open-ended auction should omit reserve and end time: %+v", stored)
	}
}

func TestCreateAuctionRejectsUnknownType(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(t, state, newMockRegistry())
	err := engine.CreateAuction(DirectAccount(newTestAddress(0x22)), newTestAddress(0xC0), big.NewInt(7), AuctionType(9), nil, 0, nil)
	if err != ErrNotValidAmount {
		t.Fatalf("expected ErrNotValidAmount, got %v", err)
	}
}
