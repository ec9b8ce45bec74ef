package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBBatchAtomic(t *testing.T) {
	db := NewMemDB()
	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	require.NoError(t, db.WriteBatch(batch))

	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "1", string(got))

	got, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, "2", string(got))
}

func TestMemDBIteratorOrdering(t *testing.T) {
	db := NewMemDB()
	db.Put(ObjectKey([]byte("id"), 1), []byte("v1"))
	db.Put(ObjectKey([]byte("id"), 3), []byte("v3"))
	db.Put(ObjectKey([]byte("id"), 2), []byte("v2"))

	it := db.Iterator(ObjectPrefix([]byte("id")))
	defer it.Release()

	var versions []uint64
	for it.Next() {
		key := it.Key()
		versions = append(versions, DecodeUint64(key[len(key)-8:]))
	}
	require.Equal(t, []uint64{1, 2, 3}, versions)
}

func TestMemDBDeleteAndHas(t *testing.T) {
	db := NewMemDB()
	key := []byte("k")
	db.Put(key, []byte("v"))
	ok, _ := db.Has(key)
	require.True(t, ok, "expected key to exist")

	require.NoError(t, db.Delete(key))
	ok, _ = db.Has(key)
	require.False(t, ok, "expected key to be gone")
}
