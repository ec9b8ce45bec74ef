package executor

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/objectledger/valcore/committee"
	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/object"
	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
)

func TestApplyNoopVMSucceeds(t *testing.T) {
	db := storage.NewMemDB()
	store := object.NewStore(db)
	ex := New(db, store, NoopVM{})

	priv, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	tx := &types.Transaction{Sender: priv.PubKey().Address(), GasBudget: 10, GasPrice: 1, Epoch: 1}
	tx.Sign(priv)

	comm := committee.New(1, nil)
	result, err := ex.Apply(tx, comm, 1, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Effects.Status != types.TxSuccess {
		t.Fatalf("Status = %v, want TxSuccess", result.Effects.Status)
	}
}

func TestApplyRejectsEpochMismatch(t *testing.T) {
	db := storage.NewMemDB()
	store := object.NewStore(db)
	ex := New(db, store, NoopVM{})
	priv, _ := crypto.GeneratePrivateKey()
	tx := &types.Transaction{Sender: priv.PubKey().Address(), GasBudget: 10, GasPrice: 1, Epoch: 1}
	tx.Sign(priv)

	comm := committee.New(1, nil)
	if _, err := ex.Apply(tx, comm, 2, time.Now().UnixMilli()); !errors.Is(err, types.ErrEpochMismatch) {
		t.Fatalf("Apply with wrong epoch: err = %v, want ErrEpochMismatch", err)
	}
}

func TestApplyRejectsBadSignature(t *testing.T) {
	db := storage.NewMemDB()
	store := object.NewStore(db)
	ex := New(db, store, NoopVM{})
	priv, _ := crypto.GeneratePrivateKey()
	tx := &types.Transaction{Sender: priv.PubKey().Address(), GasBudget: 10, GasPrice: 1, Epoch: 1}
	tx.Sign(priv)
	tx.Signature[0] ^= 0xFF

	comm := committee.New(1, nil)
	if _, err := ex.Apply(tx, comm, 1, time.Now().UnixMilli()); !errors.Is(err, types.ErrBadSignature) {
		t.Fatalf("Apply with tampered signature: err = %v, want ErrBadSignature", err)
	}
}

func TestApplyBumpsObjectVersions(t *testing.T) {
	db := storage.NewMemDB()
	store := object.NewStore(db)

	priv, _ := crypto.GeneratePrivateKey()
	owner := types.AddressOwner(priv.PubKey().Address())
	id := types.SHA256([]byte("obj"))
	batch := db.NewBatch()
	store.Put(batch, &types.Object{ID: id, Version: 1, Owner: owner, Payload: []byte("v1")})
	db.WriteBatch(batch)

	vm := mutatingVM{id: id, owner: owner}
	ex := New(db, store, vm)

	tx := &types.Transaction{Sender: priv.PubKey().Address(), GasBudget: 10, GasPrice: 1, Epoch: 1}
	tx.Sign(priv)

	comm := committee.New(1, nil)
	if _, err := ex.Apply(tx, comm, 1, time.Now().UnixMilli()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	latest, err := store.LatestVersion(id)
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest != 2 {
		t.Fatalf("LatestVersion = %d, want 2", latest)
	}
}

func TestApplyConvertsVMErrorToFailureEffects(t *testing.T) {
	db := storage.NewMemDB()
	store := object.NewStore(db)

	ctrl := gomock.NewController(t)
	vm := NewMockVM(ctrl)

	priv, _ := crypto.GeneratePrivateKey()
	tx := &types.Transaction{Sender: priv.PubKey().Address(), GasBudget: 10, GasPrice: 1, Epoch: 1}
	tx.Sign(priv)

	vm.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(nil, errors.New("vm: out of gas"))

	ex := New(db, store, vm)
	comm := committee.New(1, nil)
	result, err := ex.Apply(tx, comm, 1, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Effects.Status != types.TxFailure {
		t.Fatalf("Status = %v, want TxFailure", result.Effects.Status)
	}
	if result.Effects.FailureReason == "" {
		t.Fatal("expected a non-empty failure reason")
	}
}

func TestApplyRejectsUnsatisfiedDependency(t *testing.T) {
	db := storage.NewMemDB()
	store := object.NewStore(db)
	ex := New(db, store, NoopVM{})
	priv, _ := crypto.GeneratePrivateKey()
	tx := &types.Transaction{
		Sender:       priv.PubKey().Address(),
		GasBudget:    10,
		GasPrice:     1,
		Epoch:        1,
		Dependencies: []types.TransactionDigest{types.SHA256([]byte("never-applied"))},
	}
	tx.Sign(priv)

	comm := committee.New(1, nil)
	if _, err := ex.Apply(tx, comm, 1, time.Now().UnixMilli()); !errors.Is(err, types.ErrInvalidInputObject) {
		t.Fatalf("Apply with unsatisfied dependency: err = %v, want ErrInvalidInputObject", err)
	}
}

func TestApplyAcceptsDependencyWithPersistedEffects(t *testing.T) {
	db := storage.NewMemDB()
	store := object.NewStore(db)

	depDigest := types.SHA256([]byte("earlier-tx"))
	if err := db.Put(storage.EffectsKey(depDigest.Bytes()), []byte("effects-placeholder")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ex := New(db, store, NoopVM{})
	priv, _ := crypto.GeneratePrivateKey()
	tx := &types.Transaction{
		Sender:       priv.PubKey().Address(),
		GasBudget:    10,
		GasPrice:     1,
		Epoch:        1,
		Dependencies: []types.TransactionDigest{depDigest},
	}
	tx.Sign(priv)

	comm := committee.New(1, nil)
	if _, err := ex.Apply(tx, comm, 1, time.Now().UnixMilli()); err != nil {
		t.Fatalf("Apply with satisfied dependency: %v", err)
	}
}

type mutatingVM struct {
	id    types.ObjectID
	owner types.Owner
}

func (m mutatingVM) Apply(tx *types.Transaction, view *StateView) (*types.TransactionEffects, error) {
	obj, err := view.Get(m.id)
	if err != nil {
		return nil, err
	}
	updated := obj.Clone()
	updated.Payload = []byte("v2")
	return &types.TransactionEffects{
		TransactionDigest: tx.Digest(),
		Status:            types.TxSuccess,
		Modified:          map[types.ObjectID]*types.Object{m.id: updated},
	}, nil
}
