package safety

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
)

func TestRecordVoteAdvancesAndRejectsReplay(t *testing.T) {
	db := storage.NewMemDB()
	r, err := Load(db, []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, r.RecordVote(5))
	require.ErrorIs(t, r.RecordVote(5), types.ErrSafetyViolation)
	require.ErrorIs(t, r.RecordVote(4), types.ErrSafetyViolation)
}

func TestRecordVoteRespectsRoundGap(t *testing.T) {
	db := storage.NewMemDB()
	r, _ := Load(db, []byte("v1"))
	require.ErrorIs(t, r.RecordVote(types.Round(MaxRoundGap)+1), types.ErrSafetyViolation)
	require.NoError(t, r.RecordVote(types.Round(MaxRoundGap)))
}

func TestLockedRoundBlocksLowerVotes(t *testing.T) {
	db := storage.NewMemDB()
	r, _ := Load(db, []byte("v1"))
	require.NoError(t, r.ObserveCertificate(10))
	require.ErrorIs(t, r.RecordVote(10), types.ErrSafetyViolation)
	require.NoError(t, r.RecordVote(11))
}

func TestPersistSurvivesReload(t *testing.T) {
	db := storage.NewMemDB()
	r, _ := Load(db, []byte("v1"))
	require.NoError(t, r.RecordVote(7))

	reloaded, err := Load(db, []byte("v1"))
	require.NoError(t, err)
	require.EqualValues(t, 7, reloaded.Snapshot().HighestVotedRound)
	// Equivocation attempt after restart must still be rejected: persisted
	// state survives the crash.
	require.ErrorIs(t, reloaded.RecordVote(7), types.ErrSafetyViolation)
}

func TestResetForEpochClearsLock(t *testing.T) {
	db := storage.NewMemDB()
	r, _ := Load(db, []byte("v1"))
	r.RecordVote(5)
	r.ObserveCertificate(5)
	require.NoError(t, r.ResetForEpoch())
	snap := r.Snapshot()
	require.Zero(t, snap.HighestVotedRound)
	require.Nil(t, snap.LockedRound)
	require.NoError(t, r.RecordVote(1))
}
