// Package dag implements the proposal DAG and its Bullshark-style wave
// commit rule: a multi-parent structure indexed both by digest and by
// round, in contrast to a linear, single-predecessor height chain.
package dag

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/objectledger/valcore/committee"
	"github.com/objectledger/valcore/observability"
	"github.com/objectledger/valcore/types"
)

// NodeState is the per-proposal lifecycle: only forward transitions
// are valid.
type NodeState int

const (
	StateInserted NodeState = iota
	StateCertified
	StateCommitted
	StateApplied
	StatePruned
)

// Node is one DAG entry: a certificate plus its lifecycle state.
type Node struct {
	Certificate *types.Certificate
	State       NodeState
	Committed   bool
}

func (n *Node) proposal() *types.Proposal { return n.Certificate.Proposal }

// Proposal exposes the node's underlying proposal to callers outside the
// package (e.g. the authority façade walking committed nodes).
func (n *Node) Proposal() *types.Proposal { return n.Certificate.Proposal }

// Digest returns the node's certificate digest.
func (n *Node) Digest() types.ProposalDigest { return n.Certificate.Digest() }

// DAG holds the set of inserted proposals, indexed by digest and by round.
// A single writer lock covers insertion and the commit-rule's committed
// flip; readers of children/parents/by_round take the reader lock.
type DAG struct {
	mu       sync.RWMutex
	comm     *committee.Committee
	byDigest map[types.ProposalDigest]*Node
	byRound  map[types.Round][]types.ProposalDigest
	children map[types.ProposalDigest][]types.ProposalDigest

	// nextAnchorRound is the lowest anchor round not yet evaluated by
	// FindCommitCandidates; waves are only ever evaluated once.
	nextAnchorRound types.Round
}

func New(comm *committee.Committee) *DAG {
	return &DAG{
		comm:     comm,
		byDigest: make(map[types.ProposalDigest]*Node),
		byRound:  make(map[types.Round][]types.ProposalDigest),
		children: make(map[types.ProposalDigest][]types.ProposalDigest),
	}
}

// SetCommittee swaps the committee used for quorum math and anchor
// selection, e.g. on an epoch transition.
func (d *DAG) SetCommittee(comm *committee.Committee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.comm = comm
}

// Insert admits a certificate into the DAG if it passes the insertability
// rule: round 0 is always accepted, later rounds require their cited
// parents to exist at round-1 and collectively meet quorum stake.
func (d *DAG) Insert(cert *types.Certificate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	digest := cert.Digest()
	if _, exists := d.byDigest[digest]; exists {
		observability.Consensus().RecordDAGInsert("duplicate")
		return fmt.Errorf("%w: proposal %s already inserted", types.ErrDuplicate, digest)
	}

	p := cert.Proposal
	if p.Epoch != d.comm.Epoch {
		observability.Consensus().RecordDAGInsert("epoch_mismatch")
		return fmt.Errorf("%w: proposal epoch %d, committee epoch %d", types.ErrEpochMismatch, p.Epoch, d.comm.Epoch)
	}

	if p.Round > 0 {
		parents := p.SortedParentsForDisplay()
		if len(parents) == 0 {
			observability.Consensus().RecordDAGInsert("missing_parents")
			return fmt.Errorf("%w: round %d proposal has no parents", types.ErrMissingParents, p.Round)
		}
		var authors []types.Address
		for _, parentDigest := range parents {
			parentNode, ok := d.byDigest[parentDigest]
			if !ok || parentNode.proposal().Round != p.Round-1 {
				observability.Consensus().RecordDAGInsert("missing_parents")
				return fmt.Errorf("%w: parent %s not found at round %d", types.ErrMissingParents, parentDigest, p.Round-1)
			}
			authors = append(authors, parentNode.proposal().Author)
		}
		weight := d.comm.StakeWeightOf(authors)
		if !d.comm.HasQuorum(weight) {
			observability.Consensus().RecordDAGInsert("not_quorum")
			return fmt.Errorf("%w: parent stake-weight %d below quorum %d", types.ErrNotQuorumParents, weight, d.comm.QuorumThreshold)
		}

		for _, parentDigest := range parents {
			d.children[parentDigest] = append(d.children[parentDigest], digest)
		}
	}

	d.byDigest[digest] = &Node{Certificate: cert, State: StateCertified}
	d.byRound[p.Round] = append(d.byRound[p.Round], digest)
	observability.Consensus().RecordDAGInsert("accepted")
	observability.Consensus().SetCurrentRound(uint64(p.Round))
	return nil
}

// Children returns the digests of proposals that list digest as a parent.
func (d *DAG) Children(digest types.ProposalDigest) []types.ProposalDigest {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]types.ProposalDigest(nil), d.children[digest]...)
}

// Parents returns the parent digests of the proposal at digest.
func (d *DAG) Parents(digest types.ProposalDigest) ([]types.ProposalDigest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	node, ok := d.byDigest[digest]
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s", types.ErrNotFound, digest)
	}
	return node.proposal().SortedParentsForDisplay(), nil
}

// ByRound returns the digests of every proposal inserted at round r.
func (d *DAG) ByRound(r types.Round) []types.ProposalDigest {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]types.ProposalDigest(nil), d.byRound[r]...)
}

// Get returns the node for digest.
func (d *DAG) Get(digest types.ProposalDigest) (*Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	node, ok := d.byDigest[digest]
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s", types.ErrNotFound, digest)
	}
	return node, nil
}

// anchor deterministically selects the validator whose proposal is the
// wave anchor at round r: a stake-weighted, epoch-seeded pseudo-random
// permutation over the round number.
func anchor(epoch types.Epoch, r types.Round, comm *committee.Committee) types.Address {
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[0:8], uint64(epoch))
	binary.BigEndian.PutUint64(seed[8:16], uint64(r))
	digest := sha256.Sum256(seed[:])
	pick := binary.BigEndian.Uint64(digest[:8]) % uint64(comm.TotalStake)

	var cumulative uint64
	for _, v := range comm.Validators {
		cumulative += uint64(v.Stake)
		if pick < cumulative {
			return v.Address
		}
	}
	return comm.Validators[len(comm.Validators)-1].Address
}

// FindCommitCandidates evaluates every not-yet-evaluated anchor round that
// already has a following round present, applying the wave commit rule,
// and returns newly committed proposals in a deterministic total order:
// ancestor round ascending, then author lexicographic, then digest
// lexicographic. Before a wave's ancestor set is committed, its structural
// integrity (each ancestor still present, its certificate digest still
// matching its key) is checked concurrently via errgroup, since a wave can
// pull in a large uncommitted ancestor chain and the checks are
// independent per-digest.
func (d *DAG) FindCommitCandidates() ([]*Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var committed []*Node
	for {
		r := d.nextAnchorRound
		if _, ok := d.byRound[r+1]; !ok {
			break
		}
		anchorAuthor := anchor(d.comm.Epoch, r, d.comm)
		anchorDigest, ok := d.findAuthorAt(r, anchorAuthor)
		d.nextAnchorRound = r + 1
		if !ok {
			// No proposal from the chosen anchor at this round; the wave
			// is skipped.
			continue
		}
		anchorNode := d.byDigest[anchorDigest]
		if anchorNode.Committed {
			continue
		}

		var supportAuthors []types.Address
		for _, childDigest := range d.children[anchorDigest] {
			child, ok := d.byDigest[childDigest]
			if !ok || child.proposal().Round != r+1 {
				continue
			}
			supportAuthors = append(supportAuthors, child.proposal().Author)
		}
		support := d.comm.StakeWeightOf(supportAuthors)
		if support < d.comm.FaultTolerance()+1 {
			continue
		}

		ancestors := d.collectUncommittedAncestors(anchorDigest)
		if err := d.verifyAncestors(ancestors); err != nil {
			return committed, err
		}
		sort.Slice(ancestors, func(i, j int) bool {
			a, b := d.byDigest[ancestors[i]], d.byDigest[ancestors[j]]
			if a.proposal().Round != b.proposal().Round {
				return a.proposal().Round < b.proposal().Round
			}
			if a.proposal().Author.String() != b.proposal().Author.String() {
				return a.proposal().Author.String() < b.proposal().Author.String()
			}
			return ancestors[i].String() < ancestors[j].String()
		})

		for _, digest := range ancestors {
			node := d.byDigest[digest]
			node.Committed = true
			node.State = StateCommitted
			committed = append(committed, node)
		}
	}
	observability.Consensus().RecordCommitWave(len(committed))
	return committed, nil
}

// verifyAncestors checks, for every digest about to be committed, that its
// node is still present and its certificate's digest still matches the key
// it is stored under. The check is defensive: FindCommitCandidates holds
// the writer lock for the whole wave, so Prune cannot run in between, and
// collectUncommittedAncestors only returns digests present in byDigest.
// Checked concurrently since each digest's check is independent.
func (d *DAG) verifyAncestors(ancestors []types.ProposalDigest) error {
	g := new(errgroup.Group)
	for _, digest := range ancestors {
		digest := digest
		g.Go(func() error {
			node, ok := d.byDigest[digest]
			if !ok {
				return fmt.Errorf("%w: committed ancestor %s vanished mid-wave", types.ErrNotFound, digest)
			}
			if node.Certificate.Digest() != digest {
				return fmt.Errorf("%w: ancestor %s certificate digest mismatch", types.ErrCorruption, digest)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *DAG) findAuthorAt(r types.Round, author types.Address) (types.ProposalDigest, bool) {
	for _, digest := range d.byRound[r] {
		if d.byDigest[digest].proposal().Author.String() == author.String() {
			return digest, true
		}
	}
	return types.ProposalDigest{}, false
}

// collectUncommittedAncestors walks parents transitively from start,
// stopping at nodes already committed (their own ancestors are already
// committed, by the "never un-commits" invariant).
func (d *DAG) collectUncommittedAncestors(start types.ProposalDigest) []types.ProposalDigest {
	var out []types.ProposalDigest
	visited := make(map[types.ProposalDigest]struct{})
	var walk func(digest types.ProposalDigest)
	walk = func(digest types.ProposalDigest) {
		if _, seen := visited[digest]; seen {
			return
		}
		visited[digest] = struct{}{}
		node, ok := d.byDigest[digest]
		if !ok || node.Committed {
			return
		}
		for _, parent := range node.proposal().SortedParentsForDisplay() {
			walk(parent)
		}
		out = append(out, digest)
	}
	walk(start)
	return out
}

// MarkApplied transitions a committed node to Applied once the executor
// has persisted its effects.
func (d *DAG) MarkApplied(digest types.ProposalDigest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	node, ok := d.byDigest[digest]
	if !ok {
		return fmt.Errorf("%w: proposal %s", types.ErrNotFound, digest)
	}
	node.State = StateApplied
	return nil
}

// Prune removes proposals whose epoch differs from epoch and returns them.
func (d *DAG) Prune(epoch types.Epoch) []*types.Proposal {
	d.mu.Lock()
	defer d.mu.Unlock()
	var pruned []*types.Proposal
	for digest, node := range d.byDigest {
		if node.proposal().Epoch == epoch {
			continue
		}
		pruned = append(pruned, node.proposal())
		delete(d.byDigest, digest)
		delete(d.children, digest)
		round := node.proposal().Round
		remaining := d.byRound[round][:0]
		for _, dd := range d.byRound[round] {
			if dd != digest {
				remaining = append(remaining, dd)
			}
		}
		d.byRound[round] = remaining
	}
	return pruned
}
