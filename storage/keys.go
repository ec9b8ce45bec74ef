package storage

import "encoding/binary"

// Column family prefixes for the persistent layout. Keys are big-endian
// where they carry integers, so range scans order correctly, following
// the usual heightKey/hashKey convention.
var (
	cfObjects      = []byte("objects/")
	cfObjectMeta   = []byte("object_meta/")
	cfTransactions = []byte("transactions/")
	cfEffects      = []byte("effects/")
	cfCheckpoints  = []byte("checkpoints/")
	cfCommittee    = []byte("committee/")
	cfSafetyState  = []byte("safety_state/")
)

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// DecodeUint64 exposes the big-endian decode helper to callers outside the
// package that need to interpret a raw key suffix (e.g. range scans).
func DecodeUint64(b []byte) uint64 { return decodeUint64(b) }

// ObjectKey builds the objects/ CF key: id ‖ version_be.
func ObjectKey(id []byte, version uint64) []byte {
	key := make([]byte, 0, len(cfObjects)+len(id)+8)
	key = append(key, cfObjects...)
	key = append(key, id...)
	key = append(key, encodeUint64(version)...)
	return key
}

// ObjectPrefix returns the key prefix covering every version of id, for
// range scans over an object's versions in ascending version order.
func ObjectPrefix(id []byte) []byte {
	key := make([]byte, 0, len(cfObjects)+len(id))
	key = append(key, cfObjects...)
	key = append(key, id...)
	return key
}

// ObjectMetaKey builds the object_meta/ CF key: id.
func ObjectMetaKey(id []byte) []byte {
	key := make([]byte, 0, len(cfObjectMeta)+len(id))
	key = append(key, cfObjectMeta...)
	key = append(key, id...)
	return key
}

// TransactionKey builds the transactions/ CF key: digest.
func TransactionKey(digest []byte) []byte {
	key := make([]byte, 0, len(cfTransactions)+len(digest))
	key = append(key, cfTransactions...)
	key = append(key, digest...)
	return key
}

// EffectsKey builds the effects/ CF key: digest.
func EffectsKey(digest []byte) []byte {
	key := make([]byte, 0, len(cfEffects)+len(digest))
	key = append(key, cfEffects...)
	key = append(key, digest...)
	return key
}

// CheckpointKey builds the checkpoints/ CF key: seq_be.
func CheckpointKey(seq uint64) []byte {
	key := make([]byte, 0, len(cfCheckpoints)+8)
	key = append(key, cfCheckpoints...)
	key = append(key, encodeUint64(seq)...)
	return key
}

// CheckpointPrefix returns the checkpoints/ CF prefix for range scans.
func CheckpointPrefix() []byte { return append([]byte(nil), cfCheckpoints...) }

// CommitteeKey builds the committee/ CF key: epoch_be.
func CommitteeKey(epoch uint64) []byte {
	key := make([]byte, 0, len(cfCommittee)+8)
	key = append(key, cfCommittee...)
	key = append(key, encodeUint64(epoch)...)
	return key
}

// SafetyStateKey builds the safety_state/ CF key: one key per validator.
func SafetyStateKey(validator []byte) []byte {
	key := make([]byte, 0, len(cfSafetyState)+len(validator))
	key = append(key, cfSafetyState...)
	key = append(key, validator...)
	return key
}
