package mempool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/types"
)

func signedTx(t *testing.T, gasPrice types.Gas, expirationMs uint64) *types.Transaction {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	tx := &types.Transaction{
		Sender:       priv.PubKey().Address(),
		GasBudget:    100,
		GasPrice:     gasPrice,
		ExpirationMs: expirationMs,
	}
	tx.Sign(priv)
	return tx
}

func TestAddAndGetBatchOrdersByFeePerByte(t *testing.T) {
	p := New(Config{MaxEntries: 10, MaxPerSender: 10, TTL: time.Hour})
	now := time.Now()

	low := signedTx(t, 1, 0)
	high := signedTx(t, 100, 0)

	require.NoError(t, p.Add(low, now))
	require.NoError(t, p.Add(high, now))

	batch := p.GetBatch(10, now)
	require.Len(t, batch, 2)
	require.Equal(t, high.Digest(), batch[0].Digest(), "expected higher gas price tx first")
}

func TestAddRejectsDuplicate(t *testing.T) {
	p := New(Config{MaxEntries: 10, MaxPerSender: 10, TTL: time.Hour})
	now := time.Now()
	tx := signedTx(t, 5, 0)
	require.NoError(t, p.Add(tx, now))
	require.ErrorIs(t, p.Add(tx, now), types.ErrDuplicate)
}

func TestAddRejectsExpired(t *testing.T) {
	p := New(Config{MaxEntries: 10, MaxPerSender: 10, TTL: time.Hour})
	now := time.Now()
	tx := signedTx(t, 5, uint64(now.UnixMilli()))
	require.ErrorIs(t, p.Add(tx, now), types.ErrExpired)
}

func TestPerSenderLimit(t *testing.T) {
	p := New(Config{MaxEntries: 10, MaxPerSender: 1, TTL: time.Hour})
	now := time.Now()
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	mk := func(price types.Gas) *types.Transaction {
		tx := &types.Transaction{Sender: priv.PubKey().Address(), GasBudget: 100, GasPrice: price}
		tx.Sign(priv)
		return tx
	}

	require.NoError(t, p.Add(mk(1), now))
	require.ErrorIs(t, p.Add(mk(2), now), types.ErrPerSenderLimit)
}

func TestRemoveIsIdempotent(t *testing.T) {
	p := New(Config{MaxEntries: 10, MaxPerSender: 10, TTL: time.Hour})
	now := time.Now()
	tx := signedTx(t, 5, 0)
	require.NoError(t, p.Add(tx, now))
	p.Remove([]types.TransactionDigest{tx.Digest()})
	require.Equal(t, 0, p.Len())
	// Removing again must not panic or error.
	p.Remove([]types.TransactionDigest{tx.Digest()})
}

func TestGCExpiresOldEntries(t *testing.T) {
	p := New(Config{MaxEntries: 10, MaxPerSender: 10, TTL: time.Millisecond})
	now := time.Now()
	tx := signedTx(t, 5, 0)
	require.NoError(t, p.Add(tx, now))
	later := now.Add(time.Second)
	require.Equal(t, 1, p.GC(later))
	require.Equal(t, 0, p.Len())
}

func TestMaxEntriesEnforced(t *testing.T) {
	p := New(Config{MaxEntries: 1, MaxPerSender: 10, TTL: time.Hour})
	now := time.Now()
	require.NoError(t, p.Add(signedTx(t, 1, 0), now))
	require.ErrorIs(t, p.Add(signedTx(t, 1, 0), now), types.ErrMempoolFull)
}
