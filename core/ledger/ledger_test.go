package ledger

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vsbld/core/types"
	"vsbld/crypto"
	"vsbld/native/access"
	"vsbld/native/credits"
	"vsbld/storage"
)

func newTestLedger(t *testing.T, selfAddress [20]byte) *Ledger {
	t.Helper()
	return New(storage.NewMemDB(), selfAddress)
}

func signedTx(t *testing.T, key *crypto.PrivateKey, nonce uint64, txType types.TxType, payload interface{}, value *big.Int) *types.Transaction {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	tx := &types.Transaction{Type: txType, Nonce: nonce, Data: data, Value: value}
	require.NoError(t, tx.Sign(key.PrivateKey))
	return tx
}

func addressOf(t *testing.T, key *crypto.PrivateKey) [20]byte {
	t.Helper()
	var addr [20]byte
	copy(addr[:], key.PubKey().Address().Bytes())
	return addr
}

func TestApplyGrantRoleRequiresBootstrappedAdmin(t *testing.T) {
	adminKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	granteeKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	l := newTestLedger(t, [20]byte{0xEE})
	admin := addressOf(t, adminKey)
	grantee := addressOf(t, granteeKey)
	require.NoError(t, l.Bootstrap(admin))

	tx := signedTx(t, adminKey, 1, types.TxTypeGrantRole, rolePayload{
		Role:    access.CreatorsCheckerRole,
		Account: hexAddr(grantee),
	}, nil)
	_, err = l.Apply(tx, 1, 1_700_000_000)
	require.NoError(t, err)

	q := l.Query()
	require.True(t, q.HasRole(access.CreatorsCheckerRole, grantee))
}

func TestBuyThroughLedgerCreditsBuyer(t *testing.T) {
	adminKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	creatorKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	buyerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	l := newTestLedger(t, [20]byte{0xEE})
	admin := addressOf(t, adminKey)
	creator := addressOf(t, creatorKey)
	buyer := addressOf(t, buyerKey)
	require.NoError(t, l.Bootstrap(admin))

	grantTx := signedTx(t, adminKey, 1, types.TxTypeGrantRole, rolePayload{
		Role:    access.CreatorsCheckerRole,
		Account: hexAddr(admin),
	}, nil)
	_, err = l.Apply(grantTx, 1, 1)
	require.NoError(t, err)

	setCreatorTx := signedTx(t, adminKey, 2, types.TxTypeSetCreatorVisibility, setCreatorPayload{
		VisibilityID: "alice/profile",
		Creator:      hexAddr(creator),
	}, nil)
	_, err = l.Apply(setCreatorTx, 2, 2)
	require.NoError(t, err)

	quote, err := l.Query().BuyQuote("alice/profile", 3, false)
	require.NoError(t, err)

	buyTx := signedTx(t, buyerKey, 1, types.TxTypeBuyCredits, tradePayload{
		VisibilityID: "alice/profile",
		Amount:       3,
	}, quote.Total)
	receipt, err := l.Apply(buyTx, 3, 3)
	require.NoError(t, err)
	bought, ok := receipt.Result.(*credits.Quote)
	require.True(t, ok)
	require.Equal(t, quote.Total, bought.Total)

	balance, err := l.Query().CreditBalance("alice/profile", buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(3), balance)
}
