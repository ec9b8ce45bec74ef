package types

import "github.com/objectledger/valcore/wire"

// Object is the versioned unit of state the store keeps. Invariants:
// version is strictly monotone per id; Immutable objects may not be
// written after creation; Shared owner is set once; PrevTx equals the
// digest of the transaction that produced this version.
type Object struct {
	ID         ObjectID
	Version    SequenceNumber
	Owner      Owner
	TypeTag    string
	Payload    []byte
	PrevTx     TransactionDigest
	Tombstoned bool
}

func (o *Object) EncodeCanonical(e *wire.Encoder) {
	e.WriteFixed(o.ID.Bytes())
	e.WriteUint64(uint64(o.Version))
	o.Owner.EncodeCanonical(e)
	e.WriteString(o.TypeTag)
	e.WriteBytes(o.Payload)
	e.WriteFixed(o.PrevTx.Bytes())
	if o.Tombstoned {
		e.WriteUint8(1)
	} else {
		e.WriteUint8(0)
	}
}

func (o *Object) DecodeCanonical(d *wire.Decoder) error {
	id, err := d.ReadFixed(DigestSize)
	if err != nil {
		return err
	}
	o.ID, _ = DigestFromBytes(id)

	version, err := d.ReadUint64()
	if err != nil {
		return err
	}
	o.Version = SequenceNumber(version)

	if err := o.Owner.DecodeCanonical(d); err != nil {
		return err
	}

	typeTag, err := d.ReadString()
	if err != nil {
		return err
	}
	o.TypeTag = typeTag

	payload, err := d.ReadBytes()
	if err != nil {
		return err
	}
	o.Payload = payload

	prevTx, err := d.ReadFixed(DigestSize)
	if err != nil {
		return err
	}
	o.PrevTx, _ = DigestFromBytes(prevTx)

	tomb, err := d.ReadUint8()
	if err != nil {
		return err
	}
	o.Tombstoned = tomb == 1
	return nil
}

// Digest returns the content-address of the object at this version.
func (o *Object) Digest() Digest {
	return SHA256(wire.Marshal(o))
}

// Clone returns a deep copy; consumers of the store always receive
// immutable snapshots.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Payload = append([]byte(nil), o.Payload...)
	return &cp
}
