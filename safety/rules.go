// Package safety implements the persist-then-sign safety rules that
// prevent equivocation across restarts: a durable record written to the
// safety_state/ column family before any signature is emitted, in place
// of an in-memory prevote/precommit latch that a crash would lose.
package safety

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/objectledger/valcore/observability"
	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
)

// MaxRoundGap bounds how far ahead of HighestVotedRound a proposal round
// may be.
const MaxRoundGap = types.Round(50)

// State is the durable per-validator safety record.
type State struct {
	HighestVotedRound     types.Round
	HighestCertifiedRound types.Round
	LockedRound           *types.Round
}

func (s State) encode() []byte {
	buf := make([]byte, 17)
	binary.BigEndian.PutUint64(buf[0:8], uint64(s.HighestVotedRound))
	binary.BigEndian.PutUint64(buf[8:16], uint64(s.HighestCertifiedRound))
	if s.LockedRound != nil {
		buf[16] = 1
		buf = append(buf, make([]byte, 8)...)
		binary.BigEndian.PutUint64(buf[17:25], uint64(*s.LockedRound))
	}
	return buf
}

func decodeState(raw []byte) (State, error) {
	if len(raw) != 17 && len(raw) != 25 {
		return State{}, fmt.Errorf("safety: corrupt state record (len %d)", len(raw))
	}
	s := State{
		HighestVotedRound:     types.Round(binary.BigEndian.Uint64(raw[0:8])),
		HighestCertifiedRound: types.Round(binary.BigEndian.Uint64(raw[8:16])),
	}
	if raw[16] == 1 {
		locked := types.Round(binary.BigEndian.Uint64(raw[17:25]))
		s.LockedRound = &locked
	}
	return s, nil
}

// Rules is the safety-rules guard for a single validator identity. All
// mutating methods are serialized by mu since vote and lock state must
// never be read mid-update.
type Rules struct {
	mu        sync.Mutex
	db        storage.Database
	validator []byte
	state     State
}

// Load reconstructs Rules from storage, starting from the zero state if
// none was previously persisted (first boot).
func Load(db storage.Database, validator []byte) (*Rules, error) {
	r := &Rules{db: db, validator: validator}
	raw, err := db.Get(storage.SafetyStateKey(validator))
	if err != nil {
		return r, nil
	}
	state, err := decodeState(raw)
	if err != nil {
		return nil, err
	}
	r.state = state
	return r, nil
}

// CanVote reports whether round r may be signed given the current safety
// state, without mutating anything.
func (r *Rules) CanVote(round types.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canVoteLocked(round)
}

func (r *Rules) canVoteLocked(round types.Round) error {
	if round <= r.state.HighestVotedRound {
		observability.Consensus().RecordSafetyRejection("stale_round")
		return fmt.Errorf("%w: round %d not after highest_voted_round %d", types.ErrSafetyViolation, round, r.state.HighestVotedRound)
	}
	if round > r.state.HighestVotedRound+MaxRoundGap {
		observability.Consensus().RecordSafetyRejection("round_gap")
		return fmt.Errorf("%w: round %d exceeds max_round_gap past %d", types.ErrSafetyViolation, round, r.state.HighestVotedRound)
	}
	if r.state.LockedRound != nil && round <= *r.state.LockedRound {
		observability.Consensus().RecordSafetyRejection("locked_round")
		return fmt.Errorf("%w: round %d does not clear locked_round %d", types.ErrSafetyViolation, round, *r.state.LockedRound)
	}
	return nil
}

// RecordVote validates and persists the intent to vote at round before the
// caller is allowed to emit a signature (persist-then-sign). It must be
// called, and succeed, before Sign is invoked on the proposal.
func (r *Rules) RecordVote(round types.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.canVoteLocked(round); err != nil {
		return err
	}
	next := r.state
	next.HighestVotedRound = round
	if err := r.persist(next); err != nil {
		return err
	}
	r.state = next
	return nil
}

// ObserveCertificate advances HighestCertifiedRound on learning of a
// certificate at round, and advances LockedRound when a quorum of votes
// is observed at round.
func (r *Rules) ObserveCertificate(round types.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.state
	changed := false
	if round > next.HighestCertifiedRound {
		next.HighestCertifiedRound = round
		changed = true
	}
	if next.LockedRound == nil || round > *next.LockedRound {
		locked := round
		next.LockedRound = &locked
		changed = true
	}
	if !changed {
		return nil
	}
	if err := r.persist(next); err != nil {
		return err
	}
	r.state = next
	return nil
}

// ResetForEpoch discards locked_round and resets the round-gap bound for a
// new epoch, since round numbering restarts at epoch boundaries. HighestCertifiedRound is likewise reset.
func (r *Rules) ResetForEpoch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := State{}
	if err := r.persist(next); err != nil {
		return err
	}
	r.state = next
	return nil
}

// Snapshot returns a copy of the current state for diagnostics.
func (r *Rules) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Rules) persist(s State) error {
	return r.db.Put(storage.SafetyStateKey(r.validator), s.encode())
}
