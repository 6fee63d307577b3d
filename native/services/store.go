package services

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vsbld/core/state"
)

var (
	serviceNonceCounterKey = ethcrypto.Keccak256([]byte("services/service-nonce-counter"))
	servicePrefix          = []byte("services/service:")
	executionPrefix        = []byte("services/execution:")
)

func serviceKey(nonce uint64) []byte {
	buf := make([]byte, len(servicePrefix)+8)
	copy(buf, servicePrefix)
	binary.BigEndian.PutUint64(buf[len(servicePrefix):], nonce)
	return buf
}

func executionKey(serviceNonce, executionNonce uint64) []byte {
	buf := make([]byte, len(executionPrefix)+16)
	copy(buf, executionPrefix)
	binary.BigEndian.PutUint64(buf[len(executionPrefix):], serviceNonce)
	binary.BigEndian.PutUint64(buf[len(executionPrefix)+8:], executionNonce)
	return buf
}

// Store adapts a single ledger transaction to the engine's storage
// requirements: the service and execution tables plus the service-nonce
// allocator, layered on the generic KV primitives in core/state.
type Store struct {
	Txn *state.Txn
}

// NextServiceNonce allocates and persists the next service nonce.
func (s *Store) NextServiceNonce() (uint64, error) {
	var current uint64
	ok, err := state.KVGet(s.Txn, serviceNonceCounterKey, &current)
	if err != nil {
		return 0, err
	}
	if !ok {
		current = 0
	}
	next := current + 1
	if err := s.Txn.KVPut(serviceNonceCounterKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) GetService(nonce uint64) (*Service, bool, error) {
	var svc Service
	ok, err := state.KVGet(s.Txn, serviceKey(nonce), &svc)
	if err != nil || !ok {
		return nil, false, err
	}
	return &svc, true, nil
}

func (s *Store) PutService(nonce uint64, svc *Service) error {
	return s.Txn.KVPut(serviceKey(nonce), svc)
}

func (s *Store) GetExecution(serviceNonce, executionNonce uint64) (*Execution, bool, error) {
	var exec Execution
	ok, err := state.KVGet(s.Txn, executionKey(serviceNonce, executionNonce), &exec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &exec, true, nil
}

func (s *Store) PutExecution(serviceNonce, executionNonce uint64, exec *Execution) error {
	return s.Txn.KVPut(executionKey(serviceNonce, executionNonce), exec)
}

func (s *Store) HasRole(role string, addr []byte) bool {
	return state.HasRole(s.Txn, role, addr)
}
