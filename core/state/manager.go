package state

import (
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"flexcore/native/common"
	"flexcore/storage"
)

// Manager layers RLP encoding and keccak-derived keys on top of a raw
// storage.Database, and maintains the per-(address, asset) custody balances
// that back deposits, payouts and liquidation debits.
type Manager struct {
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 so callers can build readable prefixed keys
// without worrying about collisions in the flat key space.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager not initialised")
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	ok, err := m.db.Has(hashed)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	data, err := m.db.Get(hashed)
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func balanceKey(addr [20]byte, asset string) []byte {
	return []byte(fmt.Sprintf("balance/%x/%s", addr, strings.ToUpper(strings.TrimSpace(asset))))
}

// BalanceOf returns the custody balance held for the address in the given
// asset, in minor units. Missing accounts read as zero.
func (m *Manager) BalanceOf(addr [20]byte, asset string) (uint64, error) {
	var balance uint64
	ok, err := m.KVGet(balanceKey(addr, asset), &balance)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return balance, nil
}

// Credit increases the custody balance for the address, failing closed on
// overflow.
func (m *Manager) Credit(addr [20]byte, asset string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := m.BalanceOf(addr, asset)
	if err != nil {
		return err
	}
	next, err := common.CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	return m.KVPut(balanceKey(addr, asset), next)
}

// Transfer atomically moves amount between custody accounts. The debit side is
// verified first so balances can never go negative; nothing is written when the
// source holds less than the requested amount.
func (m *Manager) Transfer(from, to [20]byte, asset string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromBalance, err := m.BalanceOf(from, asset)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("state: insufficient balance for transfer")
	}
	toBalance, err := m.BalanceOf(to, asset)
	if err != nil {
		return err
	}
	credited, err := common.CheckedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	if err := m.KVPut(balanceKey(from, asset), fromBalance-amount); err != nil {
		return err
	}
	return m.KVPut(balanceKey(to, asset), credited)
}
