package types

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// TxType identifies which engine operation a signed transaction carries.
type TxType byte

const (
	TxTypeGrantRole            TxType = 0x01
	TxTypeRevokeRole           TxType = 0x02
	TxTypeBeginAdminTransfer   TxType = 0x03
	TxTypeCancelAdminTransfer  TxType = 0x04
	TxTypeAcceptAdminTransfer  TxType = 0x05
	TxTypeBeginDelayChange     TxType = 0x06
	TxTypeCancelDelayChange    TxType = 0x07

	TxTypeSetCreatorVisibility TxType = 0x10
	TxTypeBuyCredits           TxType = 0x11
	TxTypeSellCredits          TxType = 0x12
	TxTypeTransferCredits      TxType = 0x13
	TxTypeClaimCreatorFee      TxType = 0x14
	TxTypeUpdateTreasury       TxType = 0x15

	TxTypeCreateService             TxType = 0x20
	TxTypeUpdateService             TxType = 0x21
	TxTypeRequestServiceExecution   TxType = 0x22
	TxTypeAcceptServiceExecution    TxType = 0x23
	TxTypeCancelServiceExecution    TxType = 0x24
	TxTypeValidateServiceExecution  TxType = 0x25
	TxTypeDisputeServiceExecution   TxType = 0x26
	TxTypeResolveServiceExecution   TxType = 0x27
)

// Transaction is the signed envelope every engine operation is submitted in.
// Data carries the operation-specific, JSON-encoded payload (amounts,
// visibility ids, nonces, ...); the engines decode it after authorization.
type Transaction struct {
	Type  TxType   `json:"type"`
	Nonce uint64   `json:"nonce"`
	To    []byte   `json:"to"`
	Value *big.Int `json:"value"`
	Data  []byte   `json:"data"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from []byte
}

// Hash returns the deterministic digest signed by the caller.
func (tx *Transaction) Hash() ([]byte, error) {
	txData := struct {
		Type  TxType
		Nonce uint64
		To    []byte
		Value *big.Int
		Data  []byte
	}{tx.Type, tx.Nonce, tx.To, tx.Value, tx.Data}

	b, err := json.Marshal(txData)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

// Sign computes and attaches an ECDSA signature over Hash().
func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	return nil
}

// From recovers and caches the signer address from the attached signature.
func (tx *Transaction) From() ([]byte, error) {
	if tx.from != nil {
		return tx.from, nil
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 65)
	copy(sig[32-len(tx.R.Bytes()):32], tx.R.Bytes())
	copy(sig[64-len(tx.S.Bytes()):64], tx.S.Bytes())
	sig[64] = byte(tx.V.Uint64() - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	tx.from = crypto.PubkeyToAddress(*pubKey).Bytes()
	return tx.from, nil
}
