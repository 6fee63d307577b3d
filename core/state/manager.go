// Package state implements the ledger's generic key-value storage layer: a
// hashed, RLP-encoded namespace over a storage.Database, plus the shared role
// registry. It deliberately knows nothing about visibilities, services, or
// executions — those live in the native/credits, native/services, and
// native/access packages as typed stores built on top of the primitives here.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"vsbld/storage"
)

var rolePrefix = []byte("role:")

func roleKey(role string) []byte {
	buf := make([]byte, len(rolePrefix)+len(role))
	copy(buf, rolePrefix)
	copy(buf[len(rolePrefix):], role)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Manager owns the backing store and hands out read-only Views and
// read/write Txns over it.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// reader is satisfied by both View and Txn so generic Get helpers work on
// either a committed snapshot or an in-flight transaction's staged writes.
type reader interface {
	rawGet(key []byte) ([]byte, bool, error)
}

// View is a read-only accessor against the manager's committed state. The
// engines' typed stores wrap a Txn, so the ledger's query operations read
// through an uncommitted Txn; View serves direct reads of committed state.
type View struct {
	mgr *Manager
}

// View returns a read-only accessor over the current committed state.
func (m *Manager) View() *View { return &View{mgr: m} }

func (v *View) rawGet(key []byte) ([]byte, bool, error) {
	data, err := v.mgr.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Txn stages writes for a single atomic commit. Every public mutating engine
// operation opens exactly one Txn, performs all of its reads and writes
// against it, and calls Commit once at the very end — matching §5's
// requirement that each operation is one atomic commit against the ledger
// and that a failure anywhere in the operation aborts with no partial
// writes, since nothing reaches the database until WriteBatch succeeds.
type Txn struct {
	mgr   *Manager
	batch storage.Batch
	cache map[string][]byte
	dels  map[string]bool
}

// Begin opens a new transaction over the manager's backing store.
func (m *Manager) Begin() *Txn {
	return &Txn{
		mgr:   m,
		batch: m.db.NewBatch(),
		cache: make(map[string][]byte),
		dels:  make(map[string]bool),
	}
}

// Commit writes every staged operation to the backing store in one batch.
func (t *Txn) Commit() error {
	return t.mgr.db.WriteBatch(t.batch)
}

// View returns a read-only accessor bound to the same manager, useful for
// comparing committed state against what a Txn is about to write.
func (t *Txn) View() *View { return t.mgr.View() }

func (t *Txn) rawGet(key []byte) ([]byte, bool, error) {
	k := string(key)
	if t.dels[k] {
		return nil, false, nil
	}
	if v, ok := t.cache[k]; ok {
		return v, true, nil
	}
	data, err := t.mgr.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (t *Txn) rawPut(key, value []byte) {
	k := string(key)
	t.cache[k] = value
	delete(t.dels, k)
	t.batch.Put(key, value)
}

func (t *Txn) rawDelete(key []byte) {
	k := string(key)
	delete(t.cache, k)
	t.dels[k] = true
	t.batch.Delete(key)
}

// KVGet retrieves the RLP-encoded value stored under key and decodes it into
// out. The boolean indicates whether the key existed.
func KVGet(r reader, key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := r.rawGet(kvKey(key))
	if err != nil || !ok {
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

// KVPut RLP-encodes value and stages it under key within the transaction.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	t.rawPut(kvKey(key), encoded)
	return nil
}

// KVAppend appends value to the RLP-encoded byte-slice list stored under
// key, ignoring duplicates to keep the index deterministic.
func (t *Txn) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, ok, err := t.rawGet(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if ok {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	found := false
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			found = true
			break
		}
	}
	if !found {
		list = append(list, append([]byte(nil), value...))
	}
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	t.rawPut(hashed, encoded)
	return nil
}

// KVGetList decodes the RLP-encoded slice stored under key into out,
// defaulting to an empty slice when the key is absent.
func KVGetList(r reader, key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := r.rawGet(kvKey(key))
	if err != nil {
		return err
	}
	if !ok {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// SetRole associates an address with the specified role. Duplicate
// assignments are ignored; the stored member list stays sorted for
// deterministic iteration (§4.3's role registry).
func (t *Txn) SetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("role must not be empty")
	}
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	key := roleKey(trimmed)
	members, err := readRoleMembers(t, key)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	return writeRoleMembers(t, key, members)
}

// RevokeRole removes an address from the specified role, if present.
func (t *Txn) RevokeRole(role string, addr []byte) error {
	key := roleKey(strings.TrimSpace(role))
	members, err := readRoleMembers(t, key)
	if err != nil {
		return err
	}
	out := members[:0]
	for _, existing := range members {
		if !bytes.Equal(existing, addr) {
			out = append(out, existing)
		}
	}
	return writeRoleMembers(t, key, out)
}

// RoleMembers returns all addresses assigned to the provided role.
func RoleMembers(r reader, role string) ([][]byte, error) {
	return readRoleMembers(r, roleKey(strings.TrimSpace(role)))
}

// HasRole reports whether addr is assigned the specified role.
func HasRole(r reader, role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := readRoleMembers(r, roleKey(strings.TrimSpace(role)))
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

func readRoleMembers(r reader, key []byte) ([][]byte, error) {
	data, ok, err := r.rawGet(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func writeRoleMembers(t *Txn, key []byte, members [][]byte) error {
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i], members[j]) < 0
	})
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	t.rawPut(key, encoded)
	return nil
}

var balancePrefix = []byte("balance:")

func balanceKey(addr []byte) []byte {
	buf := make([]byte, len(balancePrefix)+len(addr))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

// Balance returns the native-currency balance for addr (zero if unset).
func Balance(r reader, addr []byte) (*big.Int, error) {
	data, ok, err := r.rawGet(balanceKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// SetBalance stores the native-currency balance for addr.
func (t *Txn) SetBalance(addr []byte, amount *big.Int) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative balance not allowed")
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	t.rawPut(balanceKey(addr), encoded)
	return nil
}
