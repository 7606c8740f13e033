package market

import (
	"errors"
	"math/big"
	"time"

	"tokenmart/core/events"
	"tokenmart/core/types"
)

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilRegistry = errors.New("market engine: token registry not configured")
)

// maxAmountBits bounds every currency amount and fee product to the ledger's
// 512-bit unsigned integer range. Exceeding it maps to ErrOverflow.
const maxAmountBits = 512

// engineState is the persistence surface the engine mutates. The state
// manager provides the production implementation; tests substitute an
// in-memory fake.
type engineState interface {
	OrderPut(*Order) error
	OrderGet(collection [20]byte, tokenID *big.Int) (*Order, bool, error)
	OnOrders() ([]OrderKey, error)
	SetOnOrders([]OrderKey) error

	OfferPut(*Offer) error
	OfferGet(collection [20]byte, tokenID *big.Int) (*Offer, bool, error)
	OnOffers() ([]OfferKey, error)
	SetOnOffers([]OfferKey) error

	AuctionPut(*Auction) error

	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error

	FeeRate() (*big.Int, error)
	SetFeeRate(*big.Int) error
	TreasuryWallet() ([20]byte, error)
	SetTreasuryWallet([20]byte) error
	PurseAddress() ([20]byte, error)
	SetPurseAddress([20]byte) error
	PurseBalanceSnapshot() (*big.Int, error)
	SetPurseBalanceSnapshot(*big.Int) error

	AccessOwner() ([20]byte, bool, error)
	SetAccessOwner([20]byte) error
	AccessHandle(addr [20]byte) ([32]byte, bool, error)
	SetAccessHandle(addr [20]byte, handle [32]byte) error

	ResultPut(record any) error
}

// TokenRegistry is the external ownership/approval/transfer registry the
// marketplace calls out to. Any returned error aborts the whole invocation;
// the registry has no partial-acceptance path.
type TokenRegistry interface {
	// OwnerOf reports the recorded owner of the token, if the token exists.
	OwnerOf(collection [20]byte, tokenID *big.Int) ([20]byte, bool, error)
	// Approved reports the spender the owner approved for the token, if any.
	Approved(collection [20]byte, owner [20]byte, tokenID *big.Int) ([20]byte, bool, error)
	// Transfer moves the token between principals. The from address must be
	// the recorded owner.
	Transfer(collection [20]byte, from, to [20]byte, tokenID *big.Int) error
}

// Engine wires the order/offer state machines with the escrow purse, the
// access policy and the external token registry. All operations run to
// completion inside one atomic invocation; the engine mutates state in place
// and relies on the surrounding harness to discard buffered writes when an
// operation returns an error.
type Engine struct {
	state    engineState
	registry TokenRegistry
	emitter  events.Emitter
	access   Authorizer
	self     [20]byte
	nowFn    func() int64
}

// NewEngine creates a marketplace engine with a no-op emitter. The self
// address identifies this marketplace instance in the token registry; it is
// what sellers approve as spender and what holds listed tokens in escrow.
func NewEngine(self [20]byte) *Engine {
	return &Engine{
		self:    self,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the external token registry.
func (e *Engine) SetRegistry(registry TokenRegistry) { e.registry = registry }

// SetAccess configures the policy gating privileged entry points.
func (e *Engine) SetAccess(access Authorizer) { e.access = access }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for bid timestamps. Primarily
// intended for tests to provide deterministic values.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	return nil
}

func (e *Engine) authorize(caller Caller) error {
	if e == nil || e.access == nil {
		return ErrPermissionDenied
	}
	return e.access.Authorize(caller)
}

// Authorize runs the configured access policy against the caller. External
// harnesses use it to gate privileged helpers with the same policy as the
// configuration entry points.
func (e *Engine) Authorize(caller Caller) error {
	return e.authorize(caller)
}

// requireDirectAccount rejects invocations whose caller identity is not an
// external account. Stored contracts cannot hold marketplace positions.
func requireDirectAccount(caller Caller) error {
	if caller.Kind != CallerDirectAccount {
		return ErrInvalidContext
	}
	return nil
}

// RequireDirectAccount applies the same caller-kind check the operations use,
// so funding helpers outside the engine gate contract callers identically.
func RequireDirectAccount(caller Caller) error {
	return requireDirectAccount(caller)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNotValidAmount
	}
	if amount.BitLen() > maxAmountBits {
		return ErrOverflow
	}
	return nil
}

// GetPurse returns the escrow purse address so external funding helpers can
// deposit into it before invoking a paid entry point.
func (e *Engine) GetPurse() ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	return e.state.PurseAddress()
}

// SetFee updates the parts-per-1000 platform fee. Gated by the active access
// policy; a rate above the full 1000 denominator is rejected.
func (e *Engine) SetFee(caller Caller, fee *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := checkAmount(fee); err != nil {
		return err
	}
	if fee.Cmp(big.NewInt(feeDenominator)) > 0 {
		return ErrNotValidAmount
	}
	if err := e.state.SetFeeRate(fee); err != nil {
		return err
	}
	e.emit(newFeeChangedEvent(fee))
	return nil
}

// SetTreasuryWallet updates the account receiving the platform fee share.
// Gated by the active access policy.
func (e *Engine) SetTreasuryWallet(caller Caller, wallet [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := e.state.SetTreasuryWallet(wallet); err != nil {
		return err
	}
	e.emit(newTreasuryChangedEvent(wallet))
	return nil
}

// feeDenominator is the implicit denominator of the parts-per-1000 fee rate;
// a stored rate of 25 means 2.5%.
const feeDenominator = 1000

// checkedBalance validates that exactly the claimed amount was deposited into
// the purse since the last snapshot. Calling a paid entry point without
// routing funds through the companion funding step makes the live balance
// disagree with snapshot+claimed and fails with ErrPermissionDenied. On
// success the snapshot is refreshed and the live balance returned.
func (e *Engine) checkedBalance(claimed *big.Int) (*big.Int, error) {
	if err := checkAmount(claimed); err != nil {
		return nil, err
	}
	purse, err := e.state.PurseAddress()
	if err != nil {
		return nil, err
	}
	acc, err := e.state.GetAccount(purse)
	if err != nil {
		return nil, err
	}
	live := types.EnsureAccount(acc).Balance
	snapshot, err := e.state.PurseBalanceSnapshot()
	if err != nil {
		return nil, err
	}
	expected := new(big.Int).Add(cloneBigInt(snapshot), claimed)
	if expected.BitLen() > maxAmountBits {
		return nil, ErrOverflow
	}
	if expected.Cmp(live) != 0 {
		return nil, ErrPermissionDenied
	}
	if err := e.state.SetPurseBalanceSnapshot(live); err != nil {
		return nil, err
	}
	return new(big.Int).Set(live), nil
}

// transfer moves amount out of the escrow purse to the recipient account and
// refreshes the cached balance snapshot.
func (e *Engine) transfer(recipient [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	purse, err := e.state.PurseAddress()
	if err != nil {
		return err
	}
	purseAcc, err := e.state.GetAccount(purse)
	if err != nil {
		return err
	}
	purseAcc = types.EnsureAccount(purseAcc)
	if purseAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	recipientAcc, err := e.state.GetAccount(recipient)
	if err != nil {
		return err
	}
	recipientAcc = types.EnsureAccount(recipientAcc)
	purseAcc.Balance = new(big.Int).Sub(purseAcc.Balance, amount)
	credited := new(big.Int).Add(recipientAcc.Balance, amount)
	if credited.BitLen() > maxAmountBits {
		return ErrOverflow
	}
	recipientAcc.Balance = credited
	if err := e.state.PutAccount(purse, purseAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(recipient, recipientAcc); err != nil {
		return err
	}
	return e.state.SetPurseBalanceSnapshot(purseAcc.Balance)
}

// transferWithFee splits amount between the recipient and the treasury wallet
// using the stored parts-per-1000 fee rate. Integer division truncates both
// shares; when amount*fee is not a multiple of 1000 the remainder stays in
// the purse.
func (e *Engine) transferWithFee(recipient [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	fee, err := e.state.FeeRate()
	if err != nil {
		return err
	}
	fee = cloneBigInt(fee)
	denominator := big.NewInt(feeDenominator)
	if fee.Sign() < 0 || fee.Cmp(denominator) > 0 {
		return ErrOverflow
	}
	sellerShare := new(big.Int).Sub(denominator, fee)
	sellerShare.Mul(sellerShare, amount)
	if sellerShare.BitLen() > maxAmountBits {
		return ErrOverflow
	}
	sellerShare.Div(sellerShare, denominator)

	treasuryShare := new(big.Int).Mul(amount, fee)
	if treasuryShare.BitLen() > maxAmountBits {
		return ErrOverflow
	}
	treasuryShare.Div(treasuryShare, denominator)

	treasury, err := e.state.TreasuryWallet()
	if err != nil {
		return err
	}
	if err := e.transfer(recipient, sellerShare); err != nil {
		return err
	}
	return e.transfer(treasury, treasuryShare)
}
