// Package object implements versioned, content-addressed object storage:
// a per-object version chain plus tombstone semantics, built on a
// height-key-style encoding (encodeUint64/decodeUint64 keys plus a
// per-entity metadata record).
package object

import (
	"encoding/binary"
	"fmt"

	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
	"github.com/objectledger/valcore/wire"
)

// meta is the per-id metadata record in the object_meta/ CF: the latest
// known version number and whether that version is a tombstone.
type meta struct {
	LatestVersion types.SequenceNumber
	Tombstoned    bool
}

func encodeMeta(m meta) []byte {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf, uint64(m.LatestVersion))
	if m.Tombstoned {
		buf[8] = 1
	}
	return buf
}

func decodeMeta(raw []byte) (meta, error) {
	if len(raw) != 9 {
		return meta{}, fmt.Errorf("object: corrupt metadata record (len %d)", len(raw))
	}
	return meta{
		LatestVersion: types.SequenceNumber(binary.BigEndian.Uint64(raw)),
		Tombstoned:    raw[8] == 1,
	}, nil
}

// Store is the object store. It is safe for concurrent use because
// every mutating path goes through storage.Batch, which the caller writes
// atomically alongside the rest of a certificate's effects.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Get returns the object at the requested version, or its latest version
// if version is nil. Returns types.ErrNotFound if the id is unknown or the
// requested version is a tombstone.
func (s *Store) Get(id types.ObjectID, version *types.SequenceNumber) (*types.Object, error) {
	v := version
	if v == nil {
		latest, err := s.LatestVersion(id)
		if err != nil {
			return nil, err
		}
		v = &latest
	}
	raw, err := s.db.Get(storage.ObjectKey(id.Bytes(), uint64(*v)))
	if err != nil {
		return nil, fmt.Errorf("%w: object %s v%d", types.ErrNotFound, id, *v)
	}
	obj := &types.Object{}
	if err := wire.Unmarshal(raw, obj); err != nil {
		return nil, err
	}
	if obj.Tombstoned {
		return nil, fmt.Errorf("%w: object %s v%d is deleted", types.ErrNotFound, id, *v)
	}
	return obj, nil
}

// Exists reports whether id has any live (non-tombstoned) version.
func (s *Store) Exists(id types.ObjectID) (bool, error) {
	m, ok, err := s.readMeta(id)
	if err != nil {
		return false, err
	}
	return ok && !m.Tombstoned, nil
}

// LatestVersion returns the highest known version for id.
func (s *Store) LatestVersion(id types.ObjectID) (types.SequenceNumber, error) {
	m, ok, err := s.readMeta(id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: object %s", types.ErrNotFound, id)
	}
	return m.LatestVersion, nil
}

// Put writes a new version of an object into batch, bumping its metadata
// record. Callers are responsible for assigning obj.Version monotonically
// (the executor does this as part of applying a certificate, ).
func (s *Store) Put(batch storage.Batch, obj *types.Object) error {
	raw := wire.Marshal(obj)
	batch.Put(storage.ObjectKey(obj.ID.Bytes(), uint64(obj.Version)), raw)
	batch.Put(storage.ObjectMetaKey(obj.ID.Bytes()), encodeMeta(meta{LatestVersion: obj.Version, Tombstoned: obj.Tombstoned}))
	return nil
}

// Delete writes a tombstone version for id into batch.
func (s *Store) Delete(batch storage.Batch, id types.ObjectID, newVersion types.SequenceNumber, owner types.Owner) error {
	tombstone := &types.Object{
		ID:         id,
		Version:    newVersion,
		Owner:      owner,
		Tombstoned: true,
	}
	return s.Put(batch, tombstone)
}

func (s *Store) readMeta(id types.ObjectID) (meta, bool, error) {
	raw, err := s.db.Get(storage.ObjectMetaKey(id.Bytes()))
	if err != nil {
		return meta{}, false, nil
	}
	m, err := decodeMeta(raw)
	if err != nil {
		return meta{}, false, err
	}
	return m, true, nil
}
