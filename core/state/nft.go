package state

import (
	"fmt"
	"math/big"

	"tokenmart/native/nft"
)

type storedToken struct {
	Collection  [20]byte
	TokenID     *big.Int
	Owner       [20]byte
	Approved    [20]byte
	HasApproval bool
}

// TokenPut writes the ownership record under its dictionary key.
func (m *Manager) TokenPut(t *nft.Token) error {
	if t == nil {
		return fmt.Errorf("nft state: nil token")
	}
	stored := &storedToken{
		Collection:  t.Collection,
		TokenID:     nonNil(t.TokenID),
		Owner:       t.Owner,
		Approved:    t.Approved,
		HasApproval: t.HasApproval,
	}
	return m.write(tokenKey(tokenRecordPrefix, t.Collection, t.TokenID), stored)
}

// TokenGet reads the ownership record for a (collection, token) pair.
func (m *Manager) TokenGet(collection [20]byte, tokenID *big.Int) (*nft.Token, bool, error) {
	stored := new(storedToken)
	ok, err := m.read(tokenKey(tokenRecordPrefix, collection, tokenID), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &nft.Token{
		Collection:  stored.Collection,
		TokenID:     nonNil(stored.TokenID),
		Owner:       stored.Owner,
		Approved:    stored.Approved,
		HasApproval: stored.HasApproval,
	}, true, nil
}
