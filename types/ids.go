package types

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/objectledger/valcore/crypto"
)

// DigestSize is the fixed size of every identifier in this module unless
// stated otherwise (Address is the one exception, at 20 bytes).
const DigestSize = 32

// Digest is a 32-byte opaque identifier. ObjectID, TransactionDigest,
// ProposalDigest, and CheckpointDigest below are declared as aliases for
// Digest, purely for documentation at call sites (the field or parameter
// name says which kind of digest is expected) — the compiler does not
// enforce the distinction, so a value of one kind passes where another is
// expected without any conversion or diagnostic. Callers must not rely on
// these names to catch a wrong-kind-of-digest mistake.
type Digest [DigestSize]byte

func (d Digest) Bytes() []byte { return d[:] }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

func (d Digest) IsZero() bool { return d == Digest{} }

func DigestFromBytes(b []byte) (Digest, bool) {
	var d Digest
	if len(b) != DigestSize {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// SHA256 hashes b into a Digest, the sole hash function used across the
// core ("All digests are SHA-256").
func SHA256(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

type (
	ObjectID          = Digest
	TransactionDigest = Digest
	ProposalDigest    = Digest
	CheckpointDigest  = Digest
)

type (
	Round          uint64
	Epoch          uint64
	SequenceNumber uint64
	Stake          uint64
	Gas            uint64
)

// Address re-exports the crypto package's 20-byte validator address so the
// data model doesn't need to import crypto under a different name at every
// call site.
type Address = crypto.Address
