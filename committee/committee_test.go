package committee

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
)

func newTestValidator(t *testing.T, stake types.Stake) Validator {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey()
	return Validator{PublicKey: pub, Address: pub.Address(), Stake: stake, NetworkAddr: "127.0.0.1:9000"}
}

func TestQuorumThreshold(t *testing.T) {
	validators := []Validator{
		newTestValidator(t, 10),
		newTestValidator(t, 10),
		newTestValidator(t, 10),
		newTestValidator(t, 10),
	}
	c := New(1, validators)
	require.Equal(t, types.Stake(40), c.TotalStake)
	// floor(2*40/3)+1 = 26+1 = 27
	require.Equal(t, types.Stake(27), c.QuorumThreshold)
	require.True(t, c.HasQuorum(27))
	require.False(t, c.HasQuorum(26))
}

func TestStakeWeightOfDedups(t *testing.T) {
	v1 := newTestValidator(t, 5)
	v2 := newTestValidator(t, 7)
	c := New(1, []Validator{v1, v2})
	weight := c.StakeWeightOf([]types.Address{v1.Address, v1.Address, v2.Address})
	require.Equal(t, types.Stake(12), weight)
}

func TestSnapshotRoundTrip(t *testing.T) {
	validators := []Validator{newTestValidator(t, 3), newTestValidator(t, 9)}
	c := New(2, validators)
	snap := c.Snapshot()
	restored, err := FromSnapshot(snap)
	require.NoError(t, err)
	require.Equal(t, c.TotalStake, restored.TotalStake)
	require.Equal(t, c.QuorumThreshold, restored.QuorumThreshold)
}

func TestEpochManagerAdvance(t *testing.T) {
	db := storage.NewMemDB()
	genesis := New(1, []Validator{newTestValidator(t, 10), newTestValidator(t, 10)})
	m, err := NewEpochManager(db, genesis)
	require.NoError(t, err)
	require.EqualValues(t, 1, m.Current().Epoch)

	next := New(2, []Validator{newTestValidator(t, 20)})
	m.SetNext(next)
	require.NoError(t, m.Advance(2))
	require.EqualValues(t, 2, m.Current().Epoch)

	require.Error(t, m.Advance(3), "Advance to a non-staged epoch should fail")
}

func TestEpochManagerLoadsPersisted(t *testing.T) {
	db := storage.NewMemDB()
	genesis := New(1, []Validator{newTestValidator(t, 10)})
	_, err := NewEpochManager(db, genesis)
	require.NoError(t, err)

	// Re-opening against the same DB should load the persisted committee
	// rather than re-seeding, even if a different genesis value is passed.
	otherGenesis := New(1, []Validator{newTestValidator(t, 999)})
	m2, err := NewEpochManager(db, otherGenesis)
	require.NoError(t, err)
	require.EqualValues(t, 10, m2.Current().TotalStake, "reloaded committee should keep the persisted value")
}
