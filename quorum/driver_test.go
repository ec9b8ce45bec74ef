package quorum

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/objectledger/valcore/committee"
	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/types"
)

type driverValidator struct {
	priv *crypto.PrivateKey
	pub  *crypto.PublicKey
}

func newDriverCommittee(t *testing.T, stakes ...types.Stake) ([]driverValidator, *committee.Committee) {
	t.Helper()
	vals := make([]driverValidator, len(stakes))
	members := make([]committee.Validator, len(stakes))
	for i, stake := range stakes {
		priv, err := crypto.GeneratePrivateKey()
		require.NoError(t, err)
		pub := priv.PubKey()
		vals[i] = driverValidator{priv: priv, pub: pub}
		members[i] = committee.Validator{PublicKey: pub, Address: pub.Address(), Stake: stake}
	}
	return vals, committee.New(1, members)
}

func TestQuorumFormsOnStakeThreshold(t *testing.T) {
	vals, comm := newDriverCommittee(t, 10, 10, 10, 10)
	d := New(comm, 16, time.Second)

	digest := types.SHA256([]byte("proposal-1"))
	_, err := d.Register(digest)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		sig := vals[i].priv.Sign(digest.Bytes())
		formed, err := d.AddSignature(digest, vals[i].pub, sig)
		require.NoError(t, err)
		require.False(t, formed, "quorum formed too early at signer %d", i)
	}

	sig := vals[2].priv.Sign(digest.Bytes())
	formed, err := d.AddSignature(digest, vals[2].pub, sig)
	require.NoError(t, err)
	require.True(t, formed, "expected quorum to form at 3 of 4 equal-stake signers")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := d.Wait(ctx, digest)
	require.NoError(t, err)
	require.Len(t, result.Signers, 3)
}

func TestDuplicateSignerRejected(t *testing.T) {
	vals, comm := newDriverCommittee(t, 10, 10, 10, 10)
	d := New(comm, 16, time.Second)
	digest := types.SHA256([]byte("proposal-2"))
	d.Register(digest)

	sig := vals[0].priv.Sign(digest.Bytes())
	_, err := d.AddSignature(digest, vals[0].pub, sig)
	require.NoError(t, err)
	_, err = d.AddSignature(digest, vals[0].pub, sig)
	require.ErrorIs(t, err, types.ErrDuplicateSigner)
}

func TestUnknownSignerRejected(t *testing.T) {
	_, comm := newDriverCommittee(t, 10, 10, 10, 10)
	d := New(comm, 16, time.Second)
	digest := types.SHA256([]byte("proposal-3"))
	d.Register(digest)

	outsider, _ := crypto.GeneratePrivateKey()
	sig := outsider.Sign(digest.Bytes())
	_, err := d.AddSignature(digest, outsider.PubKey(), sig)
	require.ErrorIs(t, err, types.ErrUnknownSigner)
}

func TestEntryTimesOut(t *testing.T) {
	_, comm := newDriverCommittee(t, 10, 10, 10, 10)
	d := New(comm, 16, 20*time.Millisecond)
	digest := types.SHA256([]byte("proposal-4"))
	d.Register(digest)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := d.Wait(ctx, digest)
	require.ErrorIs(t, err, types.ErrTimeout)
	require.Zero(t, d.PendingCount())
}

// TestConcurrentQuorumAndExpireDoesNotDeadlock races AddSignature's
// quorum-reached path against expire's timeout path on the same digest.
// AddSignature must release entry.mu before taking d.mu (the opposite
// nesting deadlocks against expire, which takes them in the other order).
func TestConcurrentQuorumAndExpireDoesNotDeadlock(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		vals, comm := newDriverCommittee(t, 10, 10, 10, 10)
		d := New(comm, 16, time.Millisecond)
		digest := types.SHA256([]byte("race"))
		_, err := d.Register(digest)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			priv, pub := vals[i].priv, vals[i].pub
			wg.Add(1)
			go func() {
				defer wg.Done()
				sig := priv.Sign(digest.Bytes())
				_, _ = d.AddSignature(digest, pub, sig)
			}()
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("AddSignature deadlocked racing against the timeout expiry")
		}
	}
}

func TestMaxPendingEnforced(t *testing.T) {
	_, comm := newDriverCommittee(t, 10, 10, 10, 10)
	d := New(comm, 1, time.Second)
	d1 := types.SHA256([]byte("a"))
	d2 := types.SHA256([]byte("b"))
	_, err := d.Register(d1)
	require.NoError(t, err)
	_, err = d.Register(d2)
	require.ErrorIs(t, err, types.ErrMempoolFull)
}
