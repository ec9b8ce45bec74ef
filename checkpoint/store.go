// Package checkpoint implements the append-only, hash-chained checkpoint
// log: digest-chained Checkpoint records layered over a sequential-key
// plus latest-sequence-pointer storage scheme.
package checkpoint

import (
	"fmt"

	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
	"github.com/objectledger/valcore/wire"
)

const latestKey = "checkpoint/latest_sequence"

// Store is the checkpoint store.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// PutCheckpoint appends cp. It fails with types.ErrInvalidDigest if cp's
// recomputed digest doesn't match what the caller claims to have signed
// (detected by the caller supplying a mismatching wantDigest), or with
// types.ErrBadChain if cp.PrevDigest doesn't match the previous record's
// digest.
func (s *Store) PutCheckpoint(cp *types.Checkpoint, wantDigest types.CheckpointDigest) error {
	if got := cp.Digest(); got != wantDigest {
		return fmt.Errorf("%w: checkpoint %d recomputed %s, want %s", types.ErrInvalidDigest, cp.Sequence, got, wantDigest)
	}

	if cp.Sequence == 0 {
		if cp.PrevDigest != nil {
			return fmt.Errorf("%w: checkpoint 0 must not have a prev_digest", types.ErrBadChain)
		}
	} else {
		prev, err := s.get(cp.Sequence - 1)
		if err != nil {
			return fmt.Errorf("%w: missing predecessor for checkpoint %d: %v", types.ErrBadChain, cp.Sequence, err)
		}
		prevDigest := prev.Digest()
		if cp.PrevDigest == nil || *cp.PrevDigest != prevDigest {
			return fmt.Errorf("%w: checkpoint %d prev_digest mismatch", types.ErrBadChain, cp.Sequence)
		}
	}

	raw := wire.Marshal(cp)
	batch := s.db.NewBatch()
	batch.Put(storage.CheckpointKey(uint64(cp.Sequence)), raw)
	batch.Put([]byte(latestKey), encodeSeq(uint64(cp.Sequence)))
	return s.db.WriteBatch(batch)
}

// Latest returns the highest-sequence checkpoint, or types.ErrNotFound if
// none has been written yet.
func (s *Store) Latest() (*types.Checkpoint, error) {
	raw, err := s.db.Get([]byte(latestKey))
	if err != nil {
		return nil, fmt.Errorf("%w: no checkpoints written", types.ErrNotFound)
	}
	seq := decodeSeq(raw)
	return s.get(types.SequenceNumber(seq))
}

// Range returns checkpoints [start, end] inclusive, in ascending order.
func (s *Store) Range(start, end types.SequenceNumber) ([]*types.Checkpoint, error) {
	if end < start {
		return nil, fmt.Errorf("checkpoint: range end %d precedes start %d", end, start)
	}
	out := make([]*types.Checkpoint, 0, end-start+1)
	for seq := start; seq <= end; seq++ {
		cp, err := s.get(seq)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// StateAt replays checkpoints 0..sequence and returns the state_root
// recorded at sequence. Because
// each checkpoint already carries its cumulative state_root, replay here
// is a validity walk over the hash chain rather than re-executing
// transactions — full VM replay is the executor's concern, not the
// checkpoint log's.
func (s *Store) StateAt(sequence types.SequenceNumber) (types.Digest, error) {
	var prevDigest *types.CheckpointDigest
	var root types.Digest
	for seq := types.SequenceNumber(0); seq <= sequence; seq++ {
		cp, err := s.get(seq)
		if err != nil {
			return types.Digest{}, err
		}
		if seq == 0 {
			if cp.PrevDigest != nil {
				return types.Digest{}, fmt.Errorf("%w: checkpoint 0 has a prev_digest", types.ErrBadChain)
			}
		} else {
			want := *prevDigest
			if cp.PrevDigest == nil || *cp.PrevDigest != want {
				return types.Digest{}, fmt.Errorf("%w: chain break at checkpoint %d", types.ErrBadChain, seq)
			}
		}
		digest := cp.Digest()
		prevDigest = &digest
		root = cp.StateRoot
	}
	return root, nil
}

func (s *Store) get(seq types.SequenceNumber) (*types.Checkpoint, error) {
	raw, err := s.db.Get(storage.CheckpointKey(uint64(seq)))
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint %d", types.ErrNotFound, seq)
	}
	cp := &types.Checkpoint{}
	if err := wire.Unmarshal(raw, cp); err != nil {
		return nil, fmt.Errorf("%w: checkpoint %d undecodable: %v", types.ErrCorruption, seq, err)
	}
	return cp, nil
}

func encodeSeq(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

func decodeSeq(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
