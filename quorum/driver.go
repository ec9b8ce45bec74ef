// Package quorum implements broadcast-and-collect signature gathering for
// both the client path (SignedTransaction) and the validator path
// (Proposal): a standalone pending table keyed by digest, with a bounded
// capacity and a single overall per-entry deadline, in place of an inline
// vote tally checked against stake on every arrival.
package quorum

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/objectledger/valcore/committee"
	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/observability"
	"github.com/objectledger/valcore/types"
)

// Result is what a successful wait on a pending entry yields.
type Result struct {
	Digest  types.Digest
	Signers []types.SignerEntry
}

type pendingEntry struct {
	digest        types.Digest
	correlationID uuid.UUID
	createdAt     time.Time
	timer         *time.Timer

	mu      sync.Mutex
	signers map[string]types.SignerEntry // pubkey bytes -> entry
	stake   types.Stake
	done     chan struct{}
	result   *Result
	err      error
}

// Driver is the quorum-gathering pending table for one committee epoch.
type Driver struct {
	mu         sync.Mutex
	comm       *committee.Committee
	maxPending int
	timeout    time.Duration
	pending    map[types.Digest]*pendingEntry
	group      singleflight.Group
}

func New(comm *committee.Committee, maxPending int, timeout time.Duration) *Driver {
	return &Driver{
		comm:       comm,
		maxPending: maxPending,
		timeout:    timeout,
		pending:    make(map[types.Digest]*pendingEntry),
	}
}

// SetCommittee swaps the committee used for signer validation, e.g. on
// epoch transition.
func (d *Driver) SetCommittee(comm *committee.Committee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.comm = comm
}

// Register opens (or, if already open, reuses) a pending entry for
// digest. Concurrent Register calls for the same digest are collapsed via
// singleflight so only one entry — and one correlation id — exists per
// digest in flight at a time.
func (d *Driver) Register(digest types.Digest) (uuid.UUID, error) {
	v, err, _ := d.group.Do(digest.String(), func() (interface{}, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if entry, ok := d.pending[digest]; ok {
			return entry.correlationID, nil
		}
		if len(d.pending) >= d.maxPending {
			return uuid.Nil, fmt.Errorf("quorum: %w: %d entries pending", types.ErrMempoolFull, len(d.pending))
		}
		entry := &pendingEntry{
			digest:        digest,
			correlationID: uuid.New(),
			createdAt:     time.Now(),
			signers:       make(map[string]types.SignerEntry),
			done:          make(chan struct{}),
		}
		entry.timer = time.AfterFunc(d.timeout, func() { d.expire(digest) })
		d.pending[digest] = entry
		return entry.correlationID, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return v.(uuid.UUID), nil
}

// AddSignature verifies and records one validator's signature over digest.
// It returns true once the entry has reached quorum stake (the caller
// should then Wait to retrieve the formed Result).
func (d *Driver) AddSignature(digest types.Digest, pub *crypto.PublicKey, sig []byte) (bool, error) {
	d.mu.Lock()
	entry, ok := d.pending[digest]
	comm := d.comm
	d.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("quorum: %w: no pending entry for %s", types.ErrNotFound, digest)
	}

	validator, ok := comm.ByPublicKey(pub.Bytes())
	if !ok {
		return false, fmt.Errorf("quorum: %w: signer not in committee", types.ErrUnknownSigner)
	}
	if !pub.Verify(digest.Bytes(), sig) {
		return false, fmt.Errorf("quorum: %w", types.ErrBadSignature)
	}

	entry.mu.Lock()
	key := string(pub.Bytes())
	if _, dup := entry.signers[key]; dup {
		entry.mu.Unlock()
		return false, fmt.Errorf("quorum: %w: signer already recorded", types.ErrDuplicateSigner)
	}
	if entry.result != nil {
		entry.mu.Unlock()
		return true, nil
	}
	entry.signers[key] = types.SignerEntry{PublicKey: pub.Bytes(), Signature: append([]byte(nil), sig...)}
	entry.stake += validator.Stake

	reachedQuorum := comm.HasQuorum(entry.stake)
	var createdAt time.Time
	if reachedQuorum {
		signers := make([]types.SignerEntry, 0, len(entry.signers))
		for _, s := range entry.signers {
			signers = append(signers, s)
		}
		entry.result = &Result{Digest: digest, Signers: signers}
		entry.timer.Stop()
		close(entry.done)
		createdAt = entry.createdAt
	}
	entry.mu.Unlock()

	if reachedQuorum {
		// entry.mu must be released before d.mu is acquired: expire takes
		// the two locks in the opposite order (d.mu then entry.mu), and
		// nesting them the same way here would deadlock against it.
		d.remove(digest)
		observability.Consensus().RecordQuorumLatency(time.Since(createdAt))
	}
	return reachedQuorum, nil
}

// Wait blocks until digest's entry reaches quorum, the per-entry timeout
// fires (types.ErrTimeout), or ctx is cancelled (types.ErrCancelled).
func (d *Driver) Wait(ctx context.Context, digest types.Digest) (*Result, error) {
	d.mu.Lock()
	entry, ok := d.pending[digest]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("quorum: %w: no pending entry for %s", types.ErrNotFound, digest)
	}
	select {
	case <-entry.done:
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.result, nil
	case <-ctx.Done():
		return nil, types.ErrCancelled
	}
}

// PendingCount reports how many entries are currently in flight.
func (d *Driver) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Driver) expire(digest types.Digest) {
	d.mu.Lock()
	entry, ok := d.pending[digest]
	if ok {
		delete(d.pending, digest)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.result == nil && entry.err == nil {
		entry.err = types.ErrTimeout
		close(entry.done)
	}
}

func (d *Driver) remove(digest types.Digest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, digest)
}
