// Package authority implements the façade orchestrating
// submit → certify → execute → checkpoint: a DAG-and-quorum pipeline in
// place of a top-level Propose/Vote/Commit driver loop.
package authority

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/objectledger/valcore/checkpoint"
	"github.com/objectledger/valcore/committee"
	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/dag"
	"github.com/objectledger/valcore/executor"
	"github.com/objectledger/valcore/observability"
	"github.com/objectledger/valcore/quorum"
	"github.com/objectledger/valcore/safety"
	"github.com/objectledger/valcore/types"
)

// Authority orchestrates the full validator pipeline. A FatalError from
// any stage halts future signing.
type Authority struct {
	mu sync.Mutex

	epochs    *committee.EpochManager
	dag       *dag.DAG
	quorum    *quorum.Driver
	safety    *safety.Rules
	executor  *executor.Executor
	checkpoints *checkpoint.Store

	validatorAddr types.Address

	halted    bool
	haltCause error

	nextSequence types.SequenceNumber
	pendingTx    []types.TransactionDigest
	pendingEff   []types.TransactionDigest
}

func New(
	epochs *committee.EpochManager,
	d *dag.DAG,
	q *quorum.Driver,
	s *safety.Rules,
	ex *executor.Executor,
	cps *checkpoint.Store,
	validatorAddr types.Address,
) *Authority {
	return &Authority{
		epochs:        epochs,
		dag:           d,
		quorum:        q,
		safety:        s,
		executor:      ex,
		checkpoints:   cps,
		validatorAddr: validatorAddr,
	}
}

// SubmitProposal runs the safety-rules guard, then registers the
// proposal's digest with the quorum driver and waits for a certificate
//. Callers are responsible for actually broadcasting the
// proposal and feeding arriving signatures into AddSignature.
func (a *Authority) SubmitProposal(ctx context.Context, p *types.Proposal) (*types.Certificate, error) {
	if err := a.checkHalted(); err != nil {
		return nil, err
	}
	if err := a.safety.RecordVote(p.Round); err != nil {
		return nil, err
	}
	digest := p.Digest()
	if _, err := a.quorum.Register(digest); err != nil {
		return nil, err
	}
	result, err := a.quorum.Wait(ctx, digest)
	if err != nil {
		return nil, err
	}
	cert := &types.Certificate{Proposal: p, Signatures: result.Signers}
	if err := a.safety.ObserveCertificate(p.Round); err != nil {
		return nil, a.halt(err)
	}
	return cert, nil
}

// AddSignature forwards one validator's signature on a pending digest to
// the quorum driver; kept here (rather than exposing the quorum package
// directly) so callers interact with a single façade.
func (a *Authority) AddSignature(digest types.Digest, pub *crypto.PublicKey, sig []byte) (bool, error) {
	return a.quorum.AddSignature(digest, pub, sig)
}

// IngestCertificate inserts a certified proposal into the DAG, evaluates
// the commit rule, and applies any newly committed proposals' transactions
// to the object store, folding their effects into the in-progress
// checkpoint.
func (a *Authority) IngestCertificate(cert *types.Certificate) error {
	if err := a.checkHalted(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.dag.Insert(cert); err != nil {
		return err
	}

	committed, err := a.dag.FindCommitCandidates()
	if err != nil {
		return a.haltLocked(err)
	}
	comm := a.epochs.Current()
	for _, node := range committed {
		if err := a.applyNode(node, comm); err != nil {
			return a.haltLocked(err)
		}
	}
	return nil
}

func (a *Authority) applyNode(node *dag.Node, comm *committee.Committee) error {
	proposal := node.Proposal()
	for _, tx := range proposal.Transactions {
		result, err := a.executor.Apply(tx, comm, proposal.Epoch, time.Now().UnixMilli())
		if err != nil {
			// A transaction that Apply rejects is skipped: it gets no
			// checkpoint entry, its error is not returned to the caller,
			// and the node does not halt. Only advanceEpoch and
			// MarkApplied errors are returned from applyNode.
			continue
		}
		a.pendingTx = append(a.pendingTx, result.TxDigest)
		a.pendingEff = append(a.pendingEff, result.EffectsDigest)
		if result.Effects.EpochChange != nil {
			if err := a.advanceEpoch(*result.Effects.EpochChange); err != nil {
				return err
			}
		}
	}
	return a.dag.MarkApplied(node.Digest())
}

func (a *Authority) advanceEpoch(newEpoch types.Epoch) error {
	if err := a.safety.ResetForEpoch(); err != nil {
		return err
	}
	return nil
}

// FinalizeCheckpoint appends a checkpoint carrying every transaction and
// effects digest accumulated since the last checkpoint, stamping
// TimestampMs at finalize time: the authority façade, not the DAG, owns
// wall-clock stamping since the DAG's commit order is logical, not
// temporal.
func (a *Authority) FinalizeCheckpoint(nowMs uint64, nextCommittee *types.CommitteeSnapshot) (*types.Checkpoint, error) {
	if err := a.checkHalted(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	started := time.Now()

	var prevDigest *types.CheckpointDigest
	if latest, err := a.checkpoints.Latest(); err == nil {
		d := latest.Digest()
		prevDigest = &d
	}

	cp := &types.Checkpoint{
		Sequence:      a.nextSequence,
		PrevDigest:    prevDigest,
		TimestampMs:   nowMs,
		TxDigests:     append([]types.TransactionDigest(nil), a.pendingTx...),
		Effects:       append([]types.TransactionDigest(nil), a.pendingEff...),
		Epoch:         a.epochs.Current().Epoch,
		NextCommittee: nextCommittee,
	}
	digest := cp.Digest()
	if err := a.checkpoints.PutCheckpoint(cp, digest); err != nil {
		return nil, a.haltLocked(err)
	}

	a.nextSequence++
	a.pendingTx = nil
	a.pendingEff = nil
	observability.Checkpoints().RecordFinalized(uint64(cp.Sequence), time.Since(started))
	observability.Consensus().SetCurrentEpoch(uint64(cp.Epoch))
	return cp, nil
}

func (a *Authority) checkHalted() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.halted {
		return fmt.Errorf("authority: halted: %w", a.haltCause)
	}
	return nil
}

// halt marks the authority permanently halted. The caller must not already
// hold a.mu.
func (a *Authority) halt(cause error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.haltLocked(cause)
}

// haltLocked is halt for callers that already hold a.mu (IngestCertificate
// and FinalizeCheckpoint both run their fatal paths under the lock).
func (a *Authority) haltLocked(cause error) error {
	a.halted = true
	a.haltCause = cause
	return types.Fatal(cause)
}
