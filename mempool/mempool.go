// Package mempool implements the bounded pending-transaction pool: it
// keeps admission separate from ordering, but uses a single fee-per-byte
// priority key in place of a two-lane priority split.
package mempool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/objectledger/valcore/observability"
	"github.com/objectledger/valcore/types"
)

// PriceScale is the fixed-point scale gas_price is multiplied by before
// dividing by encoded size, so priority comparisons stay integer.
const PriceScale = 1_000_000

// Config bounds the pool's admission policy.
type Config struct {
	MaxEntries     int
	MaxPerSender   int
	TTL            time.Duration
}

type entry struct {
	tx         *types.Transaction
	insertSeq  uint64
	insertedAt time.Time
	priority   uint64 // gas_price * PriceScale / encoded_size
}

// Pool is the mempool. A single mutex guards both the entry map and the
// per-sender counters — collapsed into one lock since the pool's working
// set is small enough that a single critical section does not become a
// bottleneck.
type Pool struct {
	mu        sync.Mutex
	cfg       Config
	entries   map[types.TransactionDigest]*entry
	perSender map[types.Address]int
	nextSeq   uint64
}

func New(cfg Config) *Pool {
	return &Pool{
		cfg:       cfg,
		entries:   make(map[types.TransactionDigest]*entry),
		perSender: make(map[types.Address]int),
	}
}

// Add admits tx into the pool. now is passed explicitly so callers control
// the clock (and tests stay deterministic).
func (p *Pool) Add(tx *types.Transaction, now time.Time) error {
	digest := tx.Digest()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.entries[digest]; dup {
		observability.Mempool().RecordAdmit("duplicate")
		return fmt.Errorf("mempool: %w: %s", types.ErrDuplicate, digest)
	}
	if tx.ExpirationMs != 0 && int64(tx.ExpirationMs) <= now.UnixMilli() {
		observability.Mempool().RecordAdmit("expired")
		return fmt.Errorf("mempool: %w: %s", types.ErrExpired, digest)
	}
	if len(p.entries) >= p.cfg.MaxEntries {
		observability.Mempool().RecordAdmit("full")
		return fmt.Errorf("mempool: %w", types.ErrMempoolFull)
	}
	if p.perSender[tx.Sender] >= p.cfg.MaxPerSender {
		observability.Mempool().RecordAdmit("sender_limit")
		return fmt.Errorf("mempool: %w: sender %s", types.ErrPerSenderLimit, tx.Sender)
	}

	size := tx.EncodedSize()
	if size == 0 {
		size = 1
	}
	priority := (uint64(tx.GasPrice) * PriceScale) / uint64(size)

	p.entries[digest] = &entry{
		tx:         tx,
		insertSeq:  p.nextSeq,
		insertedAt: now,
		priority:   priority,
	}
	p.nextSeq++
	p.perSender[tx.Sender]++
	observability.Mempool().RecordAdmit("accepted")
	observability.Mempool().SetDepth(len(p.entries))
	return nil
}

// GetBatch returns up to max live, non-expired transactions ordered highest
// fee-per-byte first, FIFO among ties. The returned entries stay in the
// pool; Remove takes them out.
func (p *Pool) GetBatch(max int, now time.Time) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		if p.expired(e, now) {
			continue
		}
		live = append(live, e)
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].priority != live[j].priority {
			return live[i].priority > live[j].priority
		}
		return live[i].insertSeq < live[j].insertSeq
	})
	if max > 0 && max < len(live) {
		live = live[:max]
	}
	out := make([]*types.Transaction, len(live))
	for i, e := range live {
		out[i] = e.tx
	}
	return out
}

// Remove evicts the given digests, decrementing per-sender counters. It is
// idempotent: removing an unknown digest is a no-op, not an error.
func (p *Pool) Remove(digests []types.TransactionDigest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for _, digest := range digests {
		e, ok := p.entries[digest]
		if !ok {
			continue
		}
		delete(p.entries, digest)
		removed++
		if n := p.perSender[e.tx.Sender] - 1; n > 0 {
			p.perSender[e.tx.Sender] = n
		} else {
			delete(p.perSender, e.tx.Sender)
		}
	}
	observability.Mempool().RecordEvict("batched", removed)
	observability.Mempool().SetDepth(len(p.entries))
}

// GC evicts every entry past its expiration relative to now.
func (p *Pool) GC(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []types.TransactionDigest
	for digest, e := range p.entries {
		if p.expired(e, now) {
			expired = append(expired, digest)
		}
	}
	for _, digest := range expired {
		e := p.entries[digest]
		delete(p.entries, digest)
		if n := p.perSender[e.tx.Sender] - 1; n > 0 {
			p.perSender[e.tx.Sender] = n
		} else {
			delete(p.perSender, e.tx.Sender)
		}
	}
	observability.Mempool().RecordEvict("ttl", len(expired))
	observability.Mempool().SetDepth(len(p.entries))
	return len(expired)
}

// Len reports how many entries are currently pending.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pool) expired(e *entry, now time.Time) bool {
	if p.cfg.TTL <= 0 {
		return false
	}
	return now.Sub(e.insertedAt) > p.cfg.TTL
}
