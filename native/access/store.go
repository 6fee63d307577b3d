package access

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vsbld/core/state"
)

var (
	adminTransferKey      = ethcrypto.Keccak256([]byte("access/admin-transfer"))
	adminDelayKey         = ethcrypto.Keccak256([]byte("access/admin-delay"))
	roleInitializedPrefix = []byte("access/role-initialized:")
	roleChangeNoncePrefix = []byte("access/role-change-nonce:")
)

func roleInitializedKey(role string) []byte {
	buf := make([]byte, len(roleInitializedPrefix)+len(role))
	copy(buf, roleInitializedPrefix)
	copy(buf[len(roleInitializedPrefix):], role)
	return buf
}

func roleChangeNonceKey(role string, addr []byte) []byte {
	buf := make([]byte, 0, len(roleChangeNoncePrefix)+len(role)+1+len(addr))
	buf = append(buf, roleChangeNoncePrefix...)
	buf = append(buf, role...)
	buf = append(buf, ':')
	buf = append(buf, addr...)
	return buf
}

// Store adapts a single ledger transaction to the engine's storage
// requirements, translating role/admin-state reads and writes into the
// generic KV and role-registry primitives in core/state.
type Store struct {
	Txn *state.Txn
}

func (s *Store) SetRole(role string, addr []byte) error    { return s.Txn.SetRole(role, addr) }
func (s *Store) RevokeRole(role string, addr []byte) error  { return s.Txn.RevokeRole(role, addr) }
func (s *Store) HasRole(role string, addr []byte) bool      { return state.HasRole(s.Txn, role, addr) }
func (s *Store) RoleMembers(role string) ([][]byte, error)  { return state.RoleMembers(s.Txn, role) }

func (s *Store) RoleInitialized(role string) (bool, error) {
	ok, err := state.KVGet(s.Txn, roleInitializedKey(role), nil)
	return ok, err
}

func (s *Store) MarkRoleInitialized(role string) error {
	return s.Txn.KVPut(roleInitializedKey(role), true)
}

// NextRoleChangeNonce loads the current roleChangeNonce for (role, addr),
// persists it incremented by one, and returns the incremented value: the
// nonce a caller reading RoleGranted/RoleRevoked events sees is always the
// one just assigned, mirroring NextServiceNonce's load-then-store shape.
func (s *Store) NextRoleChangeNonce(role string, addr []byte) (uint64, error) {
	var nonce uint64
	if _, err := state.KVGet(s.Txn, roleChangeNonceKey(role, addr), &nonce); err != nil {
		return 0, err
	}
	nonce++
	if err := s.Txn.KVPut(roleChangeNonceKey(role, addr), nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// RoleChangeNonce reports the most recently assigned roleChangeNonce for
// (role, addr) without advancing it; zero if the pair has never changed.
func (s *Store) RoleChangeNonce(role string, addr []byte) (uint64, error) {
	var nonce uint64
	_, err := state.KVGet(s.Txn, roleChangeNonceKey(role, addr), &nonce)
	return nonce, err
}

func (s *Store) GetAdminTransfer() (*AdminTransfer, bool, error) {
	var rec AdminTransfer
	ok, err := state.KVGet(s.Txn, adminTransferKey, &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *Store) PutAdminTransfer(rec *AdminTransfer) error {
	return s.Txn.KVPut(adminTransferKey, rec)
}

func (s *Store) DeleteAdminTransfer() error {
	return s.Txn.KVPut(adminTransferKey, &AdminTransfer{})
}

func (s *Store) GetAdminDelay() (*AdminDelay, bool, error) {
	var rec AdminDelay
	ok, err := state.KVGet(s.Txn, adminDelayKey, &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *Store) PutAdminDelay(rec *AdminDelay) error {
	return s.Txn.KVPut(adminDelayKey, rec)
}
