package credits

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/unicode/norm"

	"vsbld/core/state"
)

var (
	treasuryKey      = ethcrypto.Keccak256([]byte("credits/treasury"))
	visibilityDomain = []byte("credits/visibility:")
	balanceDomain    = []byte("credits/balance:")
)

// getVisibilityKey returns the domain-separated, NFC-canonicalized hash a
// visibility id resolves to in storage, per §4.1.3's public query operation
// of the same name.
func getVisibilityKey(vid string) [32]byte {
	canonical := norm.NFC.String(vid)
	buf := make([]byte, len(visibilityDomain)+len(canonical))
	copy(buf, visibilityDomain)
	copy(buf[len(visibilityDomain):], canonical)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

func creditBalanceKey(visKey [32]byte, account [20]byte) []byte {
	buf := make([]byte, len(balanceDomain)+len(visKey)+len(account))
	copy(buf, balanceDomain)
	copy(buf[len(balanceDomain):], visKey[:])
	copy(buf[len(balanceDomain)+len(visKey):], account[:])
	return ethcrypto.Keccak256(buf)
}

// Store adapts a single ledger transaction to the engine's storage
// requirements: visibility records, per-(visibility, account) credit
// balances, and the treasury address, all layered on the generic KV and
// native-balance primitives in core/state.
type Store struct {
	Txn *state.Txn
}

func (s *Store) GetVisibility(vid string) (*Visibility, [32]byte, error) {
	key := getVisibilityKey(vid)
	var rec Visibility
	ok, err := state.KVGet(s.Txn, key[:], &rec)
	if err != nil {
		return nil, key, err
	}
	if !ok {
		return ensureVisibility(nil), key, nil
	}
	return ensureVisibility(&rec), key, nil
}

func (s *Store) PutVisibility(key [32]byte, rec *Visibility) error {
	return s.Txn.KVPut(key[:], ensureVisibility(rec))
}

func (s *Store) CreditBalance(visKey [32]byte, account [20]byte) (uint64, error) {
	var balance uint64
	ok, err := state.KVGet(s.Txn, creditBalanceKey(visKey, account), &balance)
	if err != nil || !ok {
		return 0, err
	}
	return balance, nil
}

func (s *Store) SetCreditBalance(visKey [32]byte, account [20]byte, balance uint64) error {
	return s.Txn.KVPut(creditBalanceKey(visKey, account), balance)
}

func (s *Store) NativeBalance(addr []byte) (*big.Int, error) {
	return state.Balance(s.Txn, addr)
}

func (s *Store) SetNativeBalance(addr []byte, amount *big.Int) error {
	return s.Txn.SetBalance(addr, amount)
}

func (s *Store) HasRole(role string, addr []byte) bool {
	return state.HasRole(s.Txn, role, addr)
}

func (s *Store) GetTreasury() ([20]byte, bool, error) {
	var addr []byte
	ok, err := state.KVGet(s.Txn, treasuryKey, &addr)
	if err != nil || !ok || len(addr) != 20 {
		return [20]byte{}, false, err
	}
	var out [20]byte
	copy(out[:], addr)
	return out, true, nil
}

func (s *Store) PutTreasury(addr [20]byte) error {
	return s.Txn.KVPut(treasuryKey, addr[:])
}
