package market

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Authorizer gates the configuration entry points (fee rate, treasury wallet,
// ownership transfer). A deployment picks exactly one policy at install time.
type Authorizer interface {
	Authorize(caller Caller) error
}

// OwnerPolicy authorizes a single stored principal. Ownership can be handed
// over with TransferOwnership.
type OwnerPolicy struct {
	state engineState
}

// NewOwnerPolicy builds the single-owner gate over the shared state backend.
func NewOwnerPolicy(state engineState) *OwnerPolicy {
	return &OwnerPolicy{state: state}
}

// Authorize compares the caller against the stored owner.
func (p *OwnerPolicy) Authorize(caller Caller) error {
	if p == nil || p.state == nil {
		return ErrPermissionDenied
	}
	if err := requireDirectAccount(caller); err != nil {
		return err
	}
	owner, ok, err := p.state.AccessOwner()
	if err != nil {
		return err
	}
	if !ok || owner != caller.Address {
		return ErrPermissionDenied
	}
	return nil
}

// TransferOwnership overwrites the stored owner. Only the current owner may
// invoke it.
func (p *OwnerPolicy) TransferOwnership(caller Caller, newOwner [20]byte) error {
	if err := p.Authorize(caller); err != nil {
		return err
	}
	return p.state.SetAccessOwner(newOwner)
}

// AdminGroupPolicy authorizes holders of a capability handle issued at
// installation. Membership is fixed; there is no ownership transfer.
type AdminGroupPolicy struct {
	state engineState
}

// NewAdminGroupPolicy builds the capability-group gate over the shared state
// backend.
func NewAdminGroupPolicy(state engineState) *AdminGroupPolicy {
	return &AdminGroupPolicy{state: state}
}

// Authorize checks that a capability handle was issued to the caller.
func (p *AdminGroupPolicy) Authorize(caller Caller) error {
	if p == nil || p.state == nil {
		return ErrPermissionDenied
	}
	if err := requireDirectAccount(caller); err != nil {
		return err
	}
	_, ok, err := p.state.AccessHandle(caller.Address)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

// TransferOwnership hands the configuration gate to a new owner. Only
// deployments installed with the single-owner policy support it; the
// capability-group policy has fixed membership.
func (e *Engine) TransferOwnership(caller Caller, newOwner [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	policy, ok := e.access.(*OwnerPolicy)
	if !ok {
		return ErrInvalidContext
	}
	if err := policy.TransferOwnership(caller, newOwner); err != nil {
		return err
	}
	e.emit(newOwnerChangedEvent(newOwner))
	return nil
}

// AccessHandle returns the capability handle issued to the caller at
// installation, failing with ErrInvalidContext when none was registered.
func (e *Engine) AccessHandle(caller Caller) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, errNilState
	}
	handle, ok, err := e.state.AccessHandle(caller.Address)
	if err != nil {
		return [32]byte{}, err
	}
	if !ok {
		return [32]byte{}, ErrInvalidContext
	}
	return handle, nil
}

// InstallConfig parametrizes the one-time bootstrap of a marketplace
// instance.
type InstallConfig struct {
	Deployer [20]byte
	// Admins lists the additional principals issued capability handles.
	// The deployer always receives one.
	Admins [][20]byte
	// Fee is the initial parts-per-1000 rate; nil selects the default of 25
	// (2.5%).
	Fee *big.Int
}

// DefaultFee is the parts-per-1000 rate applied when the installer does not
// supply one.
var DefaultFee = big.NewInt(25)

// Install performs the constructor duties: derive the escrow purse address,
// zero the balance snapshot, store the initial fee and treasury wallet, and
// issue capability handles to the deployer and the supplied admins. It
// returns the derived purse address.
func Install(state engineState, cfg InstallConfig) ([20]byte, error) {
	if state == nil {
		return [20]byte{}, errNilState
	}
	if _, err := state.PurseAddress(); err == nil {
		return [20]byte{}, ErrKeyAlreadyExists
	}
	purse := derivePurseAddress(cfg.Deployer)
	if err := state.SetPurseAddress(purse); err != nil {
		return [20]byte{}, err
	}
	if err := state.SetPurseBalanceSnapshot(big.NewInt(0)); err != nil {
		return [20]byte{}, err
	}
	fee := cfg.Fee
	if fee == nil {
		fee = DefaultFee
	}
	if fee.Sign() < 0 || fee.Cmp(big.NewInt(feeDenominator)) > 0 {
		return [20]byte{}, ErrNotValidAmount
	}
	if err := state.SetFeeRate(fee); err != nil {
		return [20]byte{}, err
	}
	if err := state.SetTreasuryWallet(cfg.Deployer); err != nil {
		return [20]byte{}, err
	}
	if err := state.SetAccessOwner(cfg.Deployer); err != nil {
		return [20]byte{}, err
	}
	members := append([][20]byte{cfg.Deployer}, cfg.Admins...)
	for _, member := range members {
		handle := deriveAccessHandle(purse, member)
		if err := state.SetAccessHandle(member, handle); err != nil {
			return [20]byte{}, err
		}
	}
	return purse, nil
}

// derivePurseAddress produces the deterministic escrow purse account for a
// deployment.
func derivePurseAddress(deployer [20]byte) [20]byte {
	hash := ethcrypto.Keccak256([]byte("market/purse"), deployer[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// deriveAccessHandle issues the unforgeable capability token for a group
// member. Binding the purse address scopes handles to one instance.
func deriveAccessHandle(purse [20]byte, member [20]byte) [32]byte {
	hash := ethcrypto.Keccak256([]byte("market/access"), purse[:], member[:])
	var handle [32]byte
	copy(handle[:], hash)
	return handle
}
