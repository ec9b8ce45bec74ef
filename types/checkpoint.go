package types

import "github.com/objectledger/valcore/wire"

// CommitteeMember is one entry in a committee's validator list, duplicated
// here (rather than importing the committee package) to avoid a cycle:
// Checkpoint.NextCommittee is a data-model value, while committee.Committee
// is the stateful component that enforces quorum rules over it.
type CommitteeMember struct {
	PublicKey   []byte
	Stake       Stake
	NetworkAddr string
}

// CommitteeSnapshot is the portion of a Committee a Checkpoint carries
// forward across an epoch boundary when finalizing with a next committee.
type CommitteeSnapshot struct {
	Epoch       Epoch
	Members     []CommitteeMember
	QuorumStake Stake
	TotalStake  Stake
}

// Checkpoint is the tamper-evident, hash-chained append-only record of
// ordered effects.
type Checkpoint struct {
	Sequence      SequenceNumber
	PrevDigest    *CheckpointDigest
	TimestampMs   uint64
	TxDigests     []TransactionDigest
	Effects       []TransactionDigest // digests of the corresponding TransactionEffects
	StateRoot     Digest
	Epoch         Epoch
	NextCommittee *CommitteeSnapshot
}

func (c *Checkpoint) EncodeCanonical(e *wire.Encoder) {
	e.WriteUint64(uint64(c.Sequence))
	if c.PrevDigest != nil {
		e.WriteUint8(1)
		e.WriteFixed(c.PrevDigest.Bytes())
	} else {
		e.WriteUint8(0)
	}
	e.WriteUint64(c.TimestampMs)

	e.WriteUint64(uint64(len(c.TxDigests)))
	for _, d := range c.TxDigests {
		e.WriteFixed(d.Bytes())
	}
	e.WriteUint64(uint64(len(c.Effects)))
	for _, d := range c.Effects {
		e.WriteFixed(d.Bytes())
	}

	e.WriteFixed(c.StateRoot.Bytes())
	e.WriteUint64(uint64(c.Epoch))

	if c.NextCommittee != nil {
		e.WriteUint8(1)
		encodeCommitteeSnapshot(e, c.NextCommittee)
	} else {
		e.WriteUint8(0)
	}
}

func (c *Checkpoint) DecodeCanonical(d *wire.Decoder) error {
	seq, err := d.ReadUint64()
	if err != nil {
		return err
	}
	c.Sequence = SequenceNumber(seq)

	hasPrev, err := d.ReadUint8()
	if err != nil {
		return err
	}
	if hasPrev == 1 {
		raw, err := d.ReadFixed(DigestSize)
		if err != nil {
			return err
		}
		prev, _ := DigestFromBytes(raw)
		c.PrevDigest = &prev
	} else {
		c.PrevDigest = nil
	}

	ts, err := d.ReadUint64()
	if err != nil {
		return err
	}
	c.TimestampMs = ts

	txCount, err := d.ReadUint64()
	if err != nil {
		return err
	}
	txDigests := make([]TransactionDigest, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		raw, err := d.ReadFixed(DigestSize)
		if err != nil {
			return err
		}
		dig, _ := DigestFromBytes(raw)
		txDigests = append(txDigests, dig)
	}
	c.TxDigests = txDigests

	effCount, err := d.ReadUint64()
	if err != nil {
		return err
	}
	effects := make([]TransactionDigest, 0, effCount)
	for i := uint64(0); i < effCount; i++ {
		raw, err := d.ReadFixed(DigestSize)
		if err != nil {
			return err
		}
		dig, _ := DigestFromBytes(raw)
		effects = append(effects, dig)
	}
	c.Effects = effects

	root, err := d.ReadFixed(DigestSize)
	if err != nil {
		return err
	}
	c.StateRoot, _ = DigestFromBytes(root)

	epoch, err := d.ReadUint64()
	if err != nil {
		return err
	}
	c.Epoch = Epoch(epoch)

	hasNext, err := d.ReadUint8()
	if err != nil {
		return err
	}
	if hasNext == 1 {
		snap, err := decodeCommitteeSnapshot(d)
		if err != nil {
			return err
		}
		c.NextCommittee = snap
	}
	return nil
}

// EncodeCanonical lets a CommitteeSnapshot be marshaled on its own (e.g. by
// the committee package when persisting the active epoch's stake table),
// not only as a nested field of a Checkpoint.
func (s *CommitteeSnapshot) EncodeCanonical(e *wire.Encoder) {
	encodeCommitteeSnapshot(e, s)
}

// DecodeCanonical is the counterpart to EncodeCanonical.
func (s *CommitteeSnapshot) DecodeCanonical(d *wire.Decoder) error {
	decoded, err := decodeCommitteeSnapshot(d)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}

func encodeCommitteeSnapshot(e *wire.Encoder, s *CommitteeSnapshot) {
	e.WriteUint64(uint64(s.Epoch))
	e.WriteUint64(uint64(len(s.Members)))
	for _, m := range s.Members {
		e.WriteBytes(m.PublicKey)
		e.WriteUint64(uint64(m.Stake))
		e.WriteString(m.NetworkAddr)
	}
	e.WriteUint64(uint64(s.QuorumStake))
	e.WriteUint64(uint64(s.TotalStake))
}

func decodeCommitteeSnapshot(d *wire.Decoder) (*CommitteeSnapshot, error) {
	epoch, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	count, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	members := make([]CommitteeMember, 0, count)
	for i := uint64(0); i < count; i++ {
		pub, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		stake, err := d.ReadUint64()
		if err != nil {
			return nil, err
		}
		addr, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		members = append(members, CommitteeMember{PublicKey: pub, Stake: Stake(stake), NetworkAddr: addr})
	}
	quorum, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	total, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &CommitteeSnapshot{
		Epoch:       Epoch(epoch),
		Members:     members,
		QuorumStake: Stake(quorum),
		TotalStake:  Stake(total),
	}, nil
}

// Digest is the SHA-256 over the checkpoint's fields in fixed order.
func (c *Checkpoint) Digest() CheckpointDigest {
	return SHA256(wire.Marshal(c))
}
