package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"tokenmart/config"
	"tokenmart/core/events"
	"tokenmart/core/state"
	coretypes "tokenmart/core/types"
	"tokenmart/native/market"
	"tokenmart/native/nft"
	"tokenmart/storage"
)

// Result carries the outcome of one committed operation: the domain events it
// emitted and, when the operation produced one, the encoded result record.
type Result struct {
	Events []*coretypes.Event
	Record []byte
}

type eventBuffer struct {
	events []*coretypes.Event
}

func (b *eventBuffer) Emit(evt events.Event) {
	type carrier interface{ Event() *coretypes.Event }
	if c, ok := evt.(carrier); ok {
		b.events = append(b.events, c.Event())
	}
}

// Node executes marketplace operations against the backing store. Every
// invocation runs on a write overlay that commits only when the operation
// succeeds, so a failed call leaves no trace.
type Node struct {
	mu     sync.Mutex
	db     storage.Database
	self   [20]byte
	policy string
	logger *slog.Logger
}

// NewNode wires the backing store to the operation harness. The self address
// identifies the marketplace in the token registry; policy selects the gate
// for configuration entry points.
func NewNode(db storage.Database, self [20]byte, policy string, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{db: db, self: self, policy: policy, logger: logger}
}

// Install bootstraps a fresh marketplace instance. Calling it on an already
// installed store reports the existing purse without error.
func (n *Node) Install(cfg market.InstallConfig) ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	probe := state.NewManager(n.db)
	if purse, err := probe.PurseAddress(); err == nil {
		return purse, nil
	}
	overlay := storage.NewOverlay(n.db)
	manager := state.NewManager(overlay)
	purse, err := market.Install(manager, cfg)
	if err != nil {
		overlay.Discard()
		return [20]byte{}, err
	}
	if err := overlay.Commit(); err != nil {
		return [20]byte{}, err
	}
	n.logger.Info("marketplace installed", "purse", fmt.Sprintf("%x", purse))
	return purse, nil
}

// invoke runs fn against an overlay-backed engine and commits on success.
func (n *Node) invoke(fn func(engine *market.Engine, manager *state.Manager, registry *nft.Registry) error) (*Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	overlay := storage.NewOverlay(n.db)
	manager := state.NewManager(overlay)
	registry := nft.NewRegistry(manager)
	engine := market.NewEngine(n.self)
	engine.SetState(manager)
	engine.SetRegistry(registry)
	switch n.policy {
	case config.PolicyGroup:
		engine.SetAccess(market.NewAdminGroupPolicy(manager))
	default:
		engine.SetAccess(market.NewOwnerPolicy(manager))
	}
	buffer := &eventBuffer{}
	engine.SetEmitter(buffer)

	if err := fn(engine, manager, registry); err != nil {
		overlay.Discard()
		return nil, err
	}
	result := &Result{Events: buffer.events}
	if record, ok := manager.LastResult(); ok {
		result.Record = record
	}
	if err := overlay.Commit(); err != nil {
		return nil, err
	}
	for _, evt := range result.Events {
		n.logger.Info("event emitted", "type", evt.Type)
	}
	return result, nil
}

// view runs fn against the backing store without a write overlay.
func (n *Node) view(fn func(manager *state.Manager, registry *nft.Registry) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	manager := state.NewManager(n.db)
	return fn(manager, nft.NewRegistry(manager))
}

func (n *Node) CreateOrder(caller market.Caller, collection [20]byte, tokenID, price *big.Int) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.CreateOrder(caller, collection, tokenID, price)
	})
}

func (n *Node) CancelOrder(caller market.Caller, collection [20]byte, tokenID *big.Int) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.CancelOrder(caller, collection, tokenID)
	})
}

func (n *Node) BuyOrder(caller market.Caller, collection [20]byte, tokenID, amount *big.Int) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.BuyOrder(caller, collection, tokenID, amount)
	})
}

func (n *Node) CreateOffer(caller market.Caller, collection [20]byte, tokenID, amount *big.Int) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.CreateOffer(caller, collection, tokenID, amount)
	})
}

func (n *Node) CancelOffer(caller market.Caller, collection [20]byte, tokenID *big.Int) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.CancelOffer(caller, collection, tokenID)
	})
}

func (n *Node) AcceptOffer(caller market.Caller, collection [20]byte, tokenID *big.Int, bidPos int) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.AcceptOffer(caller, collection, tokenID, bidPos)
	})
}

func (n *Node) CreateAuction(caller market.Caller, collection [20]byte, tokenID *big.Int, auctionType market.AuctionType, reservePrice *big.Int, startTime int64, endTime *int64) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.CreateAuction(caller, collection, tokenID, auctionType, reservePrice, startTime, endTime)
	})
}

func (n *Node) SetFee(caller market.Caller, fee *big.Int) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.SetFee(caller, fee)
	})
}

func (n *Node) SetTreasuryWallet(caller market.Caller, wallet [20]byte) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.SetTreasuryWallet(caller, wallet)
	})
}

func (n *Node) TransferOwnership(caller market.Caller, newOwner [20]byte) (*Result, error) {
	return n.invoke(func(engine *market.Engine, _ *state.Manager, _ *nft.Registry) error {
		return engine.TransferOwnership(caller, newOwner)
	})
}

// Deposit moves funds from the caller's ledger account into the escrow purse.
// It is the companion funding step every paid entry point requires.
func (n *Node) Deposit(caller market.Caller, amount *big.Int) (*Result, error) {
	return n.invoke(func(engine *market.Engine, manager *state.Manager, _ *nft.Registry) error {
		if err := market.RequireDirectAccount(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return market.ErrNotValidAmount
		}
		purse, err := engine.GetPurse()
		if err != nil {
			return err
		}
		from, err := manager.GetAccount(caller.Address)
		if err != nil {
			return err
		}
		from = coretypes.EnsureAccount(from)
		if from.Balance.Cmp(amount) < 0 {
			return market.ErrInsufficientBalance
		}
		purseAcc, err := manager.GetAccount(purse)
		if err != nil {
			return err
		}
		purseAcc = coretypes.EnsureAccount(purseAcc)
		from.Balance = new(big.Int).Sub(from.Balance, amount)
		purseAcc.Balance = new(big.Int).Add(purseAcc.Balance, amount)
		if err := manager.PutAccount(caller.Address, from); err != nil {
			return err
		}
		return manager.PutAccount(purse, purseAcc)
	})
}

// Credit mints ledger funds into an account. Gated by the configuration
// policy, the same as fee changes.
func (n *Node) Credit(caller market.Caller, recipient [20]byte, amount *big.Int) (*Result, error) {
	return n.invoke(func(engine *market.Engine, manager *state.Manager, _ *nft.Registry) error {
		if err := market.RequireDirectAccount(caller); err != nil {
			return err
		}
		if err := engine.Authorize(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return market.ErrNotValidAmount
		}
		acc, err := manager.GetAccount(recipient)
		if err != nil {
			return err
		}
		acc = coretypes.EnsureAccount(acc)
		acc.Balance = new(big.Int).Add(acc.Balance, amount)
		return manager.PutAccount(recipient, acc)
	})
}

// MintToken registers a new token with its initial owner in the registry.
func (n *Node) MintToken(collection [20]byte, tokenID *big.Int, owner [20]byte) (*Result, error) {
	return n.invoke(func(_ *market.Engine, _ *state.Manager, registry *nft.Registry) error {
		return registry.Mint(collection, tokenID, owner)
	})
}

// ApproveToken lets the token owner approve a spender, typically this
// marketplace ahead of a listing.
func (n *Node) ApproveToken(caller market.Caller, collection [20]byte, tokenID *big.Int, spender [20]byte) (*Result, error) {
	return n.invoke(func(_ *market.Engine, _ *state.Manager, registry *nft.Registry) error {
		return registry.Approve(caller.Address, collection, tokenID, spender)
	})
}

// SelfAddress reports the marketplace's registry identity, the address
// sellers approve as spender.
func (n *Node) SelfAddress() [20]byte { return n.self }

// Purse reports the escrow purse address.
func (n *Node) Purse() ([20]byte, error) {
	var purse [20]byte
	err := n.view(func(manager *state.Manager, _ *nft.Registry) error {
		var err error
		purse, err = manager.PurseAddress()
		return err
	})
	return purse, err
}

// AccessHandle reports the capability handle issued to the caller.
func (n *Node) AccessHandle(caller market.Caller) ([32]byte, error) {
	var handle [32]byte
	err := n.view(func(manager *state.Manager, _ *nft.Registry) error {
		h, ok, err := manager.AccessHandle(caller.Address)
		if err != nil {
			return err
		}
		if !ok {
			return market.ErrInvalidContext
		}
		handle = h
		return nil
	})
	return handle, err
}

// Order returns the stored order record for the token, active or not.
func (n *Node) Order(collection [20]byte, tokenID *big.Int) (*market.Order, bool, error) {
	var (
		order *market.Order
		ok    bool
	)
	err := n.view(func(manager *state.Manager, _ *nft.Registry) error {
		var err error
		order, ok, err = manager.OrderGet(collection, tokenID)
		return err
	})
	return order, ok, err
}

// Offer returns the stored offer record for the token, active or not.
func (n *Node) Offer(collection [20]byte, tokenID *big.Int) (*market.Offer, bool, error) {
	var (
		offer *market.Offer
		ok    bool
	)
	err := n.view(func(manager *state.Manager, _ *nft.Registry) error {
		var err error
		offer, ok, err = manager.OfferGet(collection, tokenID)
		return err
	})
	return offer, ok, err
}

// OnOrders returns the enumerable index of active listings.
func (n *Node) OnOrders() ([]market.OrderKey, error) {
	var keys []market.OrderKey
	err := n.view(func(manager *state.Manager, _ *nft.Registry) error {
		var err error
		keys, err = manager.OnOrders()
		return err
	})
	return keys, err
}

// OnOffers returns the enumerable index of live bids.
func (n *Node) OnOffers() ([]market.OfferKey, error) {
	var keys []market.OfferKey
	err := n.view(func(manager *state.Manager, _ *nft.Registry) error {
		var err error
		keys, err = manager.OnOffers()
		return err
	})
	return keys, err
}

// FeeRate returns the stored parts-per-1000 platform fee.
func (n *Node) FeeRate() (*big.Int, error) {
	var fee *big.Int
	err := n.view(func(manager *state.Manager, _ *nft.Registry) error {
		var err error
		fee, err = manager.FeeRate()
		return err
	})
	return fee, err
}

// Account returns the ledger account for the address.
func (n *Node) Account(addr [20]byte) (*coretypes.Account, error) {
	var acc *coretypes.Account
	err := n.view(func(manager *state.Manager, _ *nft.Registry) error {
		var err error
		acc, err = manager.GetAccount(addr)
		return err
	})
	return coretypes.EnsureAccount(acc), err
}

// TokenOwner reports the registry-recorded owner of a token.
func (n *Node) TokenOwner(collection [20]byte, tokenID *big.Int) ([20]byte, bool, error) {
	var (
		owner [20]byte
		ok    bool
	)
	err := n.view(func(_ *state.Manager, registry *nft.Registry) error {
		var err error
		owner, ok, err = registry.OwnerOf(collection, tokenID)
		return err
	})
	return owner, ok, err
}
