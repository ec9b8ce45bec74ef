package types

import (
	"sort"

	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/wire"
)

// TxKind distinguishes the three transaction shapes the VM boundary
// accepts. The VM boundary treats all three identically (it just runs
// apply); the kind is carried for admission-layer bookkeeping and
// explorer-style tooling.
type TxKind uint8

const (
	TxTransferObject TxKind = iota
	TxPublish
	TxCall
)

// MaxEncodedTransactionSize bounds a transaction's canonical encoding.
const MaxEncodedTransactionSize = 128 * 1024

// MaxInputObjects bounds the derived input-object count.
const MaxInputObjects = 2048

// Transaction is the signed, sender-authored request a validator admits.
type Transaction struct {
	Sender         Address
	Kind           TxKind
	GasBudget      Gas
	GasPrice       Gas
	Epoch          Epoch
	ExpirationMs   uint64
	Dependencies   []TransactionDigest
	Signature      []byte
	PublicKey      []byte
}

// encodeUnsigned writes every field the sender's signature covers, i.e.
// everything except Signature and PublicKey.
func (t *Transaction) encodeUnsigned(e *wire.Encoder) {
	e.WriteFixed(t.Sender.Bytes())
	e.WriteUint8(uint8(t.Kind))
	e.WriteUint64(uint64(t.GasBudget))
	e.WriteUint64(uint64(t.GasPrice))
	e.WriteUint64(uint64(t.Epoch))
	e.WriteUint64(t.ExpirationMs)
	e.WriteUint64(uint64(len(t.Dependencies)))
	for _, dep := range sortedDigests(t.Dependencies) {
		e.WriteFixed(dep.Bytes())
	}
}

func (t *Transaction) EncodeCanonical(e *wire.Encoder) {
	t.encodeUnsigned(e)
	e.WriteBytes(t.Signature)
	e.WriteBytes(t.PublicKey)
}

func (t *Transaction) DecodeCanonical(d *wire.Decoder) error {
	sender, err := d.ReadFixed(addressLength)
	if err != nil {
		return err
	}
	addr, err := addressFromRaw(sender)
	if err != nil {
		return err
	}
	t.Sender = addr

	kind, err := d.ReadUint8()
	if err != nil {
		return err
	}
	t.Kind = TxKind(kind)

	gasBudget, err := d.ReadUint64()
	if err != nil {
		return err
	}
	t.GasBudget = Gas(gasBudget)

	gasPrice, err := d.ReadUint64()
	if err != nil {
		return err
	}
	t.GasPrice = Gas(gasPrice)

	epoch, err := d.ReadUint64()
	if err != nil {
		return err
	}
	t.Epoch = Epoch(epoch)

	expiry, err := d.ReadUint64()
	if err != nil {
		return err
	}
	t.ExpirationMs = expiry

	count, err := d.ReadUint64()
	if err != nil {
		return err
	}
	deps := make([]TransactionDigest, 0, count)
	for i := uint64(0); i < count; i++ {
		raw, err := d.ReadFixed(DigestSize)
		if err != nil {
			return err
		}
		dig, _ := DigestFromBytes(raw)
		deps = append(deps, dig)
	}
	t.Dependencies = deps

	sig, err := d.ReadBytes()
	if err != nil {
		return err
	}
	t.Signature = sig

	pub, err := d.ReadBytes()
	if err != nil {
		return err
	}
	t.PublicKey = pub
	return nil
}

// SigningDigest returns the digest the sender's Ed25519 signature is over.
func (t *Transaction) SigningDigest() Digest {
	e := wire.NewEncoder()
	t.encodeUnsigned(e)
	return SHA256(e.Bytes())
}

// Digest is the SHA-256 of the transaction's full canonical encoding.
func (t *Transaction) Digest() TransactionDigest {
	return SHA256(wire.Marshal(t))
}

// HasDistinctDependencies reports whether Dependencies contains no
// duplicates.
func (t *Transaction) HasDistinctDependencies() bool {
	seen := make(map[Digest]struct{}, len(t.Dependencies))
	for _, d := range t.Dependencies {
		if _, ok := seen[d]; ok {
			return false
		}
		seen[d] = struct{}{}
	}
	return true
}

// Sign signs the transaction's signing digest with priv and stamps the
// public key, mutating t in place.
func (t *Transaction) Sign(priv *crypto.PrivateKey) {
	digest := t.SigningDigest()
	t.Signature = priv.Sign(digest.Bytes())
	t.PublicKey = priv.PubKey().Bytes()
}

// VerifySignature checks the sender's signature against the transaction's
// signing digest and that the recovered key's address matches Sender.
func (t *Transaction) VerifySignature() bool {
	pub, err := crypto.PublicKeyFromBytes(t.PublicKey)
	if err != nil {
		return false
	}
	digest := t.SigningDigest()
	return crypto.Verify(digest.Bytes(), t.Signature, pub, t.Sender)
}

// EncodedSize returns the canonical encoding length, used to enforce the
// 128 KiB transaction size bound.
func (t *Transaction) EncodedSize() int {
	return len(wire.Marshal(t))
}

func sortedDigests(in []Digest) []Digest {
	out := append([]Digest(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		return lessBytes(out[i][:], out[j][:])
	})
	return out
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// TxStatus reports the outcome of applying a transaction.
type TxStatus uint8

const (
	TxSuccess TxStatus = iota
	TxFailure
)

// TransactionEffects is the deterministic outcome of applying a
// transaction.
type TransactionEffects struct {
	TransactionDigest TransactionDigest
	Status            TxStatus
	FailureReason     string
	GasUsed           Gas
	Created           map[ObjectID]*Object
	Modified          map[ObjectID]*Object
	Deleted           map[ObjectID]struct{}
	Events            [][]byte
	Dependencies      []TransactionDigest
	EpochChange       *Epoch
}

// Digest hashes the effects' canonical encoding (used to key the effects
// column family and for checkpoint membership).
func (e *TransactionEffects) Digest() Digest {
	return SHA256(wire.Marshal(e))
}

func (e *TransactionEffects) EncodeCanonical(enc *wire.Encoder) {
	enc.WriteFixed(e.TransactionDigest.Bytes())
	enc.WriteUint8(uint8(e.Status))
	enc.WriteString(e.FailureReason)
	enc.WriteUint64(uint64(e.GasUsed))

	writeObjectMap(enc, e.Created)
	writeObjectMap(enc, e.Modified)

	deleted := make([]ObjectID, 0, len(e.Deleted))
	for id := range e.Deleted {
		deleted = append(deleted, id)
	}
	deleted = sortedDigests(deleted)
	enc.WriteUint64(uint64(len(deleted)))
	for _, id := range deleted {
		enc.WriteFixed(id.Bytes())
	}

	enc.WriteUint64(uint64(len(e.Events)))
	for _, ev := range e.Events {
		enc.WriteBytes(ev)
	}

	deps := sortedDigests(e.Dependencies)
	enc.WriteUint64(uint64(len(deps)))
	for _, d := range deps {
		enc.WriteFixed(d.Bytes())
	}

	if e.EpochChange != nil {
		enc.WriteUint8(1)
		enc.WriteUint64(uint64(*e.EpochChange))
	} else {
		enc.WriteUint8(0)
	}
}

func (e *TransactionEffects) DecodeCanonical(d *wire.Decoder) error {
	txDigest, err := d.ReadFixed(DigestSize)
	if err != nil {
		return err
	}
	e.TransactionDigest, _ = DigestFromBytes(txDigest)

	status, err := d.ReadUint8()
	if err != nil {
		return err
	}
	e.Status = TxStatus(status)

	reason, err := d.ReadString()
	if err != nil {
		return err
	}
	e.FailureReason = reason

	gasUsed, err := d.ReadUint64()
	if err != nil {
		return err
	}
	e.GasUsed = Gas(gasUsed)

	created, err := readObjectMap(d)
	if err != nil {
		return err
	}
	e.Created = created

	modified, err := readObjectMap(d)
	if err != nil {
		return err
	}
	e.Modified = modified

	delCount, err := d.ReadUint64()
	if err != nil {
		return err
	}
	deleted := make(map[ObjectID]struct{}, delCount)
	for i := uint64(0); i < delCount; i++ {
		raw, err := d.ReadFixed(DigestSize)
		if err != nil {
			return err
		}
		id, _ := DigestFromBytes(raw)
		deleted[id] = struct{}{}
	}
	e.Deleted = deleted

	evCount, err := d.ReadUint64()
	if err != nil {
		return err
	}
	events := make([][]byte, 0, evCount)
	for i := uint64(0); i < evCount; i++ {
		ev, err := d.ReadBytes()
		if err != nil {
			return err
		}
		events = append(events, ev)
	}
	e.Events = events

	depCount, err := d.ReadUint64()
	if err != nil {
		return err
	}
	deps := make([]TransactionDigest, 0, depCount)
	for i := uint64(0); i < depCount; i++ {
		raw, err := d.ReadFixed(DigestSize)
		if err != nil {
			return err
		}
		dig, _ := DigestFromBytes(raw)
		deps = append(deps, dig)
	}
	e.Dependencies = deps

	hasEpoch, err := d.ReadUint8()
	if err != nil {
		return err
	}
	if hasEpoch == 1 {
		v, err := d.ReadUint64()
		if err != nil {
			return err
		}
		epoch := Epoch(v)
		e.EpochChange = &epoch
	}
	return nil
}

func writeObjectMap(enc *wire.Encoder, m map[ObjectID]*Object) {
	ids := make([]ObjectID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	ids = sortedDigests(ids)
	enc.WriteUint64(uint64(len(ids)))
	for _, id := range ids {
		enc.WriteFixed(id.Bytes())
		m[id].EncodeCanonical(enc)
	}
}

func readObjectMap(d *wire.Decoder) (map[ObjectID]*Object, error) {
	count, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	out := make(map[ObjectID]*Object, count)
	for i := uint64(0); i < count; i++ {
		raw, err := d.ReadFixed(DigestSize)
		if err != nil {
			return nil, err
		}
		id, _ := DigestFromBytes(raw)
		obj := &Object{}
		if err := obj.DecodeCanonical(d); err != nil {
			return nil, err
		}
		out[id] = obj
	}
	return out, nil
}

// DisjointMutations reports whether created/modified/deleted are pairwise
// disjoint on object id.
func (e *TransactionEffects) DisjointMutations() bool {
	seen := make(map[ObjectID]struct{}, len(e.Created)+len(e.Modified)+len(e.Deleted))
	for id := range e.Created {
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
	}
	for id := range e.Modified {
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
	}
	for id := range e.Deleted {
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}
