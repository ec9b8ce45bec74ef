// Package executor implements the VM boundary and the certificate-
// application pipeline: validate, apply, bump state, persist, in place of
// a validate-apply-bump-persist-advance-height block pipeline, applied
// per-certificate over the object store plus the DAG's committed order.
package executor

import (
	"fmt"

	"github.com/objectledger/valcore/committee"
	"github.com/objectledger/valcore/object"
	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
	"github.com/objectledger/valcore/wire"
)

// StateView is a read-snapshot of the object store handed to VM.Apply. It
// is backed by the live store but only ever read from during Apply, which
// runs to completion without yielding.
type StateView struct {
	store *object.Store
}

// Get reads an object's latest version as of snapshot time.
func (v *StateView) Get(id types.ObjectID) (*types.Object, error) {
	return v.store.Get(id, nil)
}

// VM is the external, deterministic apply function the executor invokes.
// Swapping implementations is how a concrete transaction-execution
// language (Move, EVM, WASM, ...) plugs into the core without the core
// depending on it.
type VM interface {
	Apply(tx *types.Transaction, view *StateView) (*types.TransactionEffects, error)
}

// NoopVM is a test double that accepts every transaction and produces no
// mutations, useful for exercising the pipeline's bookkeeping in
// isolation from any real execution language.
type NoopVM struct{}

func (NoopVM) Apply(tx *types.Transaction, _ *StateView) (*types.TransactionEffects, error) {
	return &types.TransactionEffects{
		TransactionDigest: tx.Digest(),
		Status:            types.TxSuccess,
		GasUsed:           tx.GasBudget,
		Dependencies:      tx.Dependencies,
	}, nil
}

// Executor applies certificates to the object store and reports the
// effects it produced for the caller (the authority façade) to fold into
// the in-progress checkpoint.
type Executor struct {
	db    storage.Database
	store *object.Store
	vm    VM
}

func New(db storage.Database, store *object.Store, vm VM) *Executor {
	return &Executor{db: db, store: store, vm: vm}
}

// ApplyResult is everything the authority façade needs to append a
// certificate to the in-progress checkpoint.
type ApplyResult struct {
	TxDigest     types.TransactionDigest
	EffectsDigest types.Digest
	Effects      *types.TransactionEffects
}

// Apply runs the application pipeline for a single certified transaction:
// verify (left to the caller, which already checked the certificate
// against the committee), validate, snapshot, apply, bump versions,
// persist atomically, and return the digest pair for checkpoint
// inclusion.
func (ex *Executor) Apply(tx *types.Transaction, comm *committee.Committee, epoch types.Epoch, now int64) (*ApplyResult, error) {
	if err := ex.validate(tx, comm, epoch, now); err != nil {
		return nil, err
	}

	view := &StateView{store: ex.store}
	effects, err := ex.vm.Apply(tx, view)
	if err != nil {
		effects = &types.TransactionEffects{
			TransactionDigest: tx.Digest(),
			Status:            types.TxFailure,
			FailureReason:     err.Error(),
			Dependencies:      tx.Dependencies,
		}
	}

	if !effects.DisjointMutations() {
		return nil, fmt.Errorf("%w: effects for %s are not disjoint", types.ErrCorruption, tx.Digest())
	}

	batch := ex.db.NewBatch()
	if err := ex.persistEffects(batch, effects); err != nil {
		return nil, err
	}

	if err := ex.db.WriteBatch(batch); err != nil {
		return nil, err
	}

	return &ApplyResult{
		TxDigest:      tx.Digest(),
		EffectsDigest: effects.Digest(),
		Effects:       effects,
	}, nil
}

// validate checks size, gas price, signature, inputs, expiration, epoch,
// and dependency presence.
func (ex *Executor) validate(tx *types.Transaction, comm *committee.Committee, epoch types.Epoch, now int64) error {
	if tx.EncodedSize() > types.MaxEncodedTransactionSize {
		return fmt.Errorf("%w: transaction %s", types.ErrTooLarge, tx.Digest())
	}
	if tx.GasPrice < 1 {
		return fmt.Errorf("%w: gas price %d below 1", types.ErrBadGas, tx.GasPrice)
	}
	if len(tx.Dependencies) > types.MaxInputObjects {
		return fmt.Errorf("%w: too many input objects", types.ErrInvalidInputObject)
	}
	if !tx.HasDistinctDependencies() {
		return fmt.Errorf("%w: duplicate dependency digests", types.ErrInvalidInputObject)
	}
	if !tx.VerifySignature() {
		return fmt.Errorf("%w: transaction %s", types.ErrBadSignature, tx.Digest())
	}
	if tx.Epoch != epoch {
		return fmt.Errorf("%w: tx epoch %d, current %d", types.ErrEpochMismatch, tx.Epoch, epoch)
	}
	if tx.ExpirationMs != 0 && int64(tx.ExpirationMs) <= now {
		return fmt.Errorf("%w: transaction %s", types.ErrExpired, tx.Digest())
	}
	for _, dep := range tx.Dependencies {
		if _, err := ex.db.Get(storage.EffectsKey(dep.Bytes())); err != nil {
			return fmt.Errorf("%w: dependency %s not applied: %v", types.ErrInvalidInputObject, dep, err)
		}
	}
	_ = comm // committee membership/quorum was already checked on the certificate by the caller
	return nil
}

// persistEffects bumps object versions and writes the effects record into
// batch. Created/modified objects receive
// max_existing_version_for_id + 1; deleted objects are tombstoned.
func (ex *Executor) persistEffects(batch storage.Batch, effects *types.TransactionEffects) error {
	for id, obj := range effects.Created {
		if err := ex.bumpAndPut(batch, id, obj); err != nil {
			return err
		}
	}
	for id, obj := range effects.Modified {
		if err := ex.bumpAndPut(batch, id, obj); err != nil {
			return err
		}
	}
	for id := range effects.Deleted {
		latest, err := ex.store.LatestVersion(id)
		if err != nil {
			return err
		}
		if err := ex.store.Delete(batch, id, latest+1, types.Owner{}); err != nil {
			return err
		}
	}

	batch.Put(storage.EffectsKey(effects.TransactionDigest.Bytes()), wire.Marshal(effects))
	return nil
}

func (ex *Executor) bumpAndPut(batch storage.Batch, id types.ObjectID, obj *types.Object) error {
	next := types.SequenceNumber(1)
	if existing, err := ex.store.LatestVersion(id); err == nil {
		next = existing + 1
	}
	obj.Version = next
	return ex.store.Put(batch, obj)
}
