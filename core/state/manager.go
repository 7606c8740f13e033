package state

import (
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tokenmart/core/types"
	"tokenmart/storage"
)

// Manager provides the persistence layer for the marketplace: keccak-derived
// keys over a plain key-value store, RLP-encoded records. It implements the
// state surface the market engine and the token registry consume.
//
// Manager performs no locking; the execution model serializes invocations
// against the store, and atomicity is provided by running each invocation
// over a storage.Overlay.
type Manager struct {
	kv storage.Database
}

// NewManager creates a state manager operating on the provided key-value
// store.
func NewManager(kv storage.Database) *Manager {
	return &Manager{kv: kv}
}

var (
	accountPrefix      = []byte("account/")
	orderRecordPrefix  = []byte("market/order/")
	offerRecordPrefix  = []byte("market/offer/")
	auctionPrefix      = []byte("market/auction/")
	tokenRecordPrefix  = []byte("nft/token/")
	accessHandlePrefix = []byte("market/access/")

	onOrdersKey     = ethcrypto.Keccak256([]byte("market/on-orders"))
	onOffersKey     = ethcrypto.Keccak256([]byte("market/on-offers"))
	feeKey          = ethcrypto.Keccak256([]byte("market/fee"))
	treasuryKey     = ethcrypto.Keccak256([]byte("market/treasury-wallet"))
	purseKey        = ethcrypto.Keccak256([]byte("market/purse"))
	purseBalanceKey = ethcrypto.Keccak256([]byte("market/purse-balance"))
	accessOwnerKey  = ethcrypto.Keccak256([]byte("market/owner"))
	resultKey       = ethcrypto.Keccak256([]byte("market/result"))
)

var errPurseNotConfigured = errors.New("market state: purse not configured")

// tokenKey derives the dictionary lookup key for a (collection, token) pair:
// the canonical byte encoding of the identifying fields, hashed to a fixed
// size. Lookup stays O(1) regardless of listing count.
func tokenKey(prefix []byte, collection [20]byte, tokenID *big.Int) []byte {
	id := tokenIDBytes(tokenID)
	buf := make([]byte, 0, len(prefix)+len(collection)+len(id))
	buf = append(buf, prefix...)
	buf = append(buf, collection[:]...)
	buf = append(buf, id...)
	return ethcrypto.Keccak256(buf)
}

func addrKey(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(addr))
	buf = append(buf, prefix...)
	buf = append(buf, addr[:]...)
	return ethcrypto.Keccak256(buf)
}

// tokenIDBytes canonicalises a token identifier to 32 big-endian bytes so key
// derivation is independent of leading zeroes.
func tokenIDBytes(tokenID *big.Int) []byte {
	out := make([]byte, 32)
	if tokenID == nil || tokenID.Sign() <= 0 {
		return out
	}
	b := tokenID.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

// read fetches and decodes a record. Only a missing key or an empty value
// counts as absence; store faults propagate so they cannot masquerade as
// fresh state.
func (m *Manager) read(key []byte, out any) (bool, error) {
	data, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) write(key []byte, record any) error {
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.read(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

// GetAccount loads the account stored for addr, returning a zero-balance
// account when none exists yet.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	stored := new(storedAccount)
	ok, err := m.read(addrKey(accountPrefix, addr), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return stored.toAccount(), nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	return m.write(addrKey(accountPrefix, addr), newStoredAccount(acc))
}

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

func newStoredAccount(acc *types.Account) *storedAccount {
	acc = types.EnsureAccount(acc)
	return &storedAccount{Nonce: acc.Nonce, Balance: new(big.Int).Set(acc.Balance)}
}

func (s *storedAccount) toAccount() *types.Account {
	balance := big.NewInt(0)
	if s.Balance != nil {
		balance = new(big.Int).Set(s.Balance)
	}
	return &types.Account{Nonce: s.Nonce, Balance: balance}
}
