package nft

import (
	"errors"
	"math/big"
)

var (
	ErrUnknownToken  = errors.New("nft: unknown token")
	ErrTokenExists   = errors.New("nft: token already minted")
	ErrNotTokenOwner = errors.New("nft: caller is not the token owner")
)

// Token is the ownership record for one minted token. Approved designates a
// spender allowed to move the token on the owner's behalf; approvals are
// cleared on transfer.
type Token struct {
	Collection  [20]byte
	TokenID     *big.Int
	Owner       [20]byte
	Approved    [20]byte
	HasApproval bool
}

// Clone returns a deep copy of the token record.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	if t.TokenID != nil {
		clone.TokenID = new(big.Int).Set(t.TokenID)
	} else {
		clone.TokenID = big.NewInt(0)
	}
	return &clone
}

type registryState interface {
	TokenPut(*Token) error
	TokenGet(collection [20]byte, tokenID *big.Int) (*Token, bool, error)
}

// Registry is a minimal in-state ownership/approval/transfer registry. It
// stands in for the external token contracts the marketplace trades against:
// the marketplace consumes it strictly through the ownership, approval and
// transfer operations.
type Registry struct {
	state registryState
}

// NewRegistry creates a registry over the provided state backend.
func NewRegistry(state registryState) *Registry {
	return &Registry{state: state}
}

// Mint records a fresh token under its owner.
func (r *Registry) Mint(collection [20]byte, tokenID *big.Int, owner [20]byte) error {
	if _, ok, err := r.state.TokenGet(collection, tokenID); err != nil {
		return err
	} else if ok {
		return ErrTokenExists
	}
	token := &Token{Collection: collection, Owner: owner}
	if tokenID != nil {
		token.TokenID = new(big.Int).Set(tokenID)
	} else {
		token.TokenID = big.NewInt(0)
	}
	return r.state.TokenPut(token)
}

// Approve lets the token owner designate a spender. Only the recorded owner
// may approve.
func (r *Registry) Approve(caller [20]byte, collection [20]byte, tokenID *big.Int, spender [20]byte) error {
	token, ok, err := r.state.TokenGet(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownToken
	}
	if token.Owner != caller {
		return ErrNotTokenOwner
	}
	token.Approved = spender
	token.HasApproval = true
	return r.state.TokenPut(token)
}

// OwnerOf reports the recorded owner of the token, if the token exists.
func (r *Registry) OwnerOf(collection [20]byte, tokenID *big.Int) ([20]byte, bool, error) {
	token, ok, err := r.state.TokenGet(collection, tokenID)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return token.Owner, true, nil
}

// Approved reports the spender the owner approved for the token, if any.
func (r *Registry) Approved(collection [20]byte, owner [20]byte, tokenID *big.Int) ([20]byte, bool, error) {
	token, ok, err := r.state.TokenGet(collection, tokenID)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	if token.Owner != owner || !token.HasApproval {
		return [20]byte{}, false, nil
	}
	return token.Approved, true, nil
}

// Transfer moves the token from its recorded owner to the recipient. The
// from address must be the owner or its approved spender acting for it; any
// violation is fatal so a calling invocation aborts as a whole. Approvals do
// not survive a transfer.
func (r *Registry) Transfer(collection [20]byte, from, to [20]byte, tokenID *big.Int) error {
	token, ok, err := r.state.TokenGet(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownToken
	}
	if token.Owner != from && !(token.HasApproval && token.Approved == from) {
		return ErrNotTokenOwner
	}
	token.Owner = to
	token.Approved = [20]byte{}
	token.HasApproval = false
	return r.state.TokenPut(token)
}
