package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
)

func mustPut(t *testing.T, s *Store, cp *types.Checkpoint) {
	t.Helper()
	require.NoError(t, s.PutCheckpoint(cp, cp.Digest()))
}

func TestPutCheckpointChain(t *testing.T) {
	db := storage.NewMemDB()
	s := NewStore(db)

	cp0 := &types.Checkpoint{Sequence: 0, StateRoot: types.SHA256([]byte("root0"))}
	mustPut(t, s, cp0)

	prev := cp0.Digest()
	cp1 := &types.Checkpoint{Sequence: 1, PrevDigest: &prev, StateRoot: types.SHA256([]byte("root1"))}
	mustPut(t, s, cp1)

	latest, err := s.Latest()
	require.NoError(t, err)
	require.EqualValues(t, 1, latest.Sequence)
}

func TestPutCheckpointBadChain(t *testing.T) {
	db := storage.NewMemDB()
	s := NewStore(db)

	cp0 := &types.Checkpoint{Sequence: 0, StateRoot: types.SHA256([]byte("root0"))}
	mustPut(t, s, cp0)

	wrongPrev := types.SHA256([]byte("not the real prev"))
	cp1 := &types.Checkpoint{Sequence: 1, PrevDigest: &wrongPrev, StateRoot: types.SHA256([]byte("root1"))}
	require.ErrorIs(t, s.PutCheckpoint(cp1, cp1.Digest()), types.ErrBadChain)
}

func TestPutCheckpointInvalidDigest(t *testing.T) {
	db := storage.NewMemDB()
	s := NewStore(db)
	cp0 := &types.Checkpoint{Sequence: 0, StateRoot: types.SHA256([]byte("root0"))}
	bogus := types.SHA256([]byte("bogus"))
	require.ErrorIs(t, s.PutCheckpoint(cp0, bogus), types.ErrInvalidDigest)
}

func TestRangeAndStateAt(t *testing.T) {
	db := storage.NewMemDB()
	s := NewStore(db)

	cp0 := &types.Checkpoint{Sequence: 0, StateRoot: types.SHA256([]byte("r0"))}
	mustPut(t, s, cp0)
	d0 := cp0.Digest()
	cp1 := &types.Checkpoint{Sequence: 1, PrevDigest: &d0, StateRoot: types.SHA256([]byte("r1"))}
	mustPut(t, s, cp1)
	d1 := cp1.Digest()
	cp2 := &types.Checkpoint{Sequence: 2, PrevDigest: &d1, StateRoot: types.SHA256([]byte("r2"))}
	mustPut(t, s, cp2)

	got, err := s.Range(0, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.EqualValues(t, 0, got[0].Sequence)
	require.EqualValues(t, 2, got[2].Sequence)

	root, err := s.StateAt(1)
	require.NoError(t, err)
	require.Equal(t, cp1.StateRoot, root)
}
