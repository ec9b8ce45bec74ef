package types

import "github.com/objectledger/valcore/wire"

// OwnerKind tags the Owner variant.
type OwnerKind uint8

const (
	OwnerKindAddress OwnerKind = iota
	OwnerKindObject
	OwnerKindShared
	OwnerKindImmutable
)

// Owner is a tagged union over the four ownership variants an object can
// have. Only the fields relevant to Kind are populated.
type Owner struct {
	Kind                  OwnerKind
	Address               Address
	Object                ObjectID
	SharedInitialVersion SequenceNumber
}

func AddressOwner(addr Address) Owner {
	return Owner{Kind: OwnerKindAddress, Address: addr}
}

func ObjectOwner(id ObjectID) Owner {
	return Owner{Kind: OwnerKindObject, Object: id}
}

func SharedOwner(initialVersion SequenceNumber) Owner {
	return Owner{Kind: OwnerKindShared, SharedInitialVersion: initialVersion}
}

func ImmutableOwner() Owner {
	return Owner{Kind: OwnerKindImmutable}
}

func (o Owner) IsShared() bool    { return o.Kind == OwnerKindShared }
func (o Owner) IsImmutable() bool { return o.Kind == OwnerKindImmutable }

func (o Owner) EncodeCanonical(e *wire.Encoder) {
	e.WriteUint8(uint8(o.Kind))
	switch o.Kind {
	case OwnerKindAddress:
		e.WriteFixed(o.Address.Bytes())
	case OwnerKindObject:
		e.WriteFixed(o.Object.Bytes())
	case OwnerKindShared:
		e.WriteUint64(uint64(o.SharedInitialVersion))
	case OwnerKindImmutable:
		// no payload
	}
}

func (o *Owner) DecodeCanonical(d *wire.Decoder) error {
	kind, err := d.ReadUint8()
	if err != nil {
		return err
	}
	o.Kind = OwnerKind(kind)
	switch o.Kind {
	case OwnerKindAddress:
		b, err := d.ReadFixed(addressLength)
		if err != nil {
			return err
		}
		addr, err := addressFromRaw(b)
		if err != nil {
			return err
		}
		o.Address = addr
	case OwnerKindObject:
		b, err := d.ReadFixed(DigestSize)
		if err != nil {
			return err
		}
		id, _ := DigestFromBytes(b)
		o.Object = id
	case OwnerKindShared:
		v, err := d.ReadUint64()
		if err != nil {
			return err
		}
		o.SharedInitialVersion = SequenceNumber(v)
	case OwnerKindImmutable:
		// no payload
	}
	return nil
}
