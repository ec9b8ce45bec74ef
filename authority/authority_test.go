package authority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/objectledger/valcore/checkpoint"
	"github.com/objectledger/valcore/committee"
	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/dag"
	"github.com/objectledger/valcore/executor"
	"github.com/objectledger/valcore/object"
	"github.com/objectledger/valcore/quorum"
	"github.com/objectledger/valcore/safety"
	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
)

func singleValidatorSetup(t *testing.T) (*Authority, *crypto.PrivateKey, *committee.Committee) {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey()
	comm := committee.New(1, []committee.Validator{{PublicKey: pub, Address: pub.Address(), Stake: 10}})

	db := storage.NewMemDB()
	epochs, err := committee.NewEpochManager(db, comm)
	require.NoError(t, err)
	d := dag.New(comm)
	q := quorum.New(comm, 16, time.Second)
	s, err := safety.Load(db, pub.Address().Bytes())
	require.NoError(t, err)
	store := object.NewStore(db)
	ex := executor.New(db, store, executor.NoopVM{})
	cps := checkpoint.NewStore(db)

	a := New(epochs, d, q, s, ex, cps, pub.Address())
	return a, priv, comm
}

func certAt(round types.Round, author *crypto.PrivateKey, parents []types.ProposalDigest) *types.Certificate {
	parentSet := make(map[types.ProposalDigest]struct{}, len(parents))
	for _, p := range parents {
		parentSet[p] = struct{}{}
	}
	p := &types.Proposal{Round: round, Epoch: 1, Author: author.PubKey().Address(), Parents: parentSet}
	p.Sign(author)
	digest := p.Digest()
	sig := author.Sign(digest.Bytes())
	return &types.Certificate{
		Proposal:   p,
		Signatures: []types.SignerEntry{{PublicKey: author.PubKey().Bytes(), Signature: sig}},
	}
}

func TestIngestCertificateCommitsAndFinalizes(t *testing.T) {
	a, priv, _ := singleValidatorSetup(t)

	genesis := certAt(0, priv, nil)
	require.NoError(t, a.IngestCertificate(genesis))

	round1 := certAt(1, priv, []types.ProposalDigest{genesis.Digest()})
	require.NoError(t, a.IngestCertificate(round1))

	cp, err := a.FinalizeCheckpoint(1234, nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, cp.Sequence)
	require.EqualValues(t, 1234, cp.TimestampMs)

	cp2, err := a.FinalizeCheckpoint(5678, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, cp2.Sequence)
	require.NotNil(t, cp2.PrevDigest, "second checkpoint does not chain to the first")
	require.Equal(t, cp.Digest(), *cp2.PrevDigest)
}

// TestFinalizeCheckpointHaltsWithoutDeadlock drives FinalizeCheckpoint's
// fatal path (a BadChain error from the checkpoint store) and confirms both
// that the authority halts and that doing so does not self-deadlock:
// FinalizeCheckpoint already holds a.mu when it calls the halt path.
func TestFinalizeCheckpointHaltsWithoutDeadlock(t *testing.T) {
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey()
	comm := committee.New(1, []committee.Validator{{PublicKey: pub, Address: pub.Address(), Stake: 10}})

	db := storage.NewMemDB()
	epochs, err := committee.NewEpochManager(db, comm)
	require.NoError(t, err)
	d := dag.New(comm)
	q := quorum.New(comm, 16, time.Second)
	s, err := safety.Load(db, pub.Address().Bytes())
	require.NoError(t, err)
	store := object.NewStore(db)
	ex := executor.New(db, store, executor.NoopVM{})
	cps := checkpoint.NewStore(db)
	a := New(epochs, d, q, s, ex, cps, pub.Address())

	genesis := certAt(0, priv, nil)
	require.NoError(t, a.IngestCertificate(genesis))

	_, err = a.FinalizeCheckpoint(1000, nil)
	require.NoError(t, err)

	// Delete the just-written checkpoint 0 record directly, leaving the
	// latest-sequence pointer stale: the next finalize's prev-digest chain
	// check will now fail with ErrBadChain.
	require.NoError(t, db.Delete(storage.CheckpointKey(0)))

	_, err = a.FinalizeCheckpoint(2000, nil)
	require.Error(t, err)
	require.True(t, types.IsFatal(err), "expected a fatal halt error, got %v", err)

	done := make(chan error, 1)
	go func() {
		_, err := a.FinalizeCheckpoint(3000, nil)
		done <- err
	}()
	select {
	case err := <-done:
		require.Error(t, err, "a halted authority must still reject further calls")
	case <-time.After(2 * time.Second):
		t.Fatal("FinalizeCheckpoint deadlocked after halt")
	}
}
