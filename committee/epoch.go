package committee

import (
	"fmt"
	"sync"

	"github.com/objectledger/valcore/storage"
	"github.com/objectledger/valcore/types"
	"github.com/objectledger/valcore/wire"
)

// EpochManager owns the current committee and, once an epoch transition has
// been certified in a checkpoint, the pending next committee: an explicit
// two-phase handoff rather than a validator-set swap done inline on every
// height.
type EpochManager struct {
	mu      sync.RWMutex
	db      storage.Database
	current *Committee
	next    *Committee
}

// NewEpochManager loads the current committee from storage, or seeds it
// with genesis if none is persisted yet.
func NewEpochManager(db storage.Database, genesis *Committee) (*EpochManager, error) {
	m := &EpochManager{db: db}
	raw, err := db.Get(storage.CommitteeKey(uint64(genesis.Epoch)))
	if err != nil {
		if err := m.persist(genesis); err != nil {
			return nil, err
		}
		m.current = genesis
		return m, nil
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("committee: decode persisted snapshot: %w", err)
	}
	c, err := FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	m.current = c
	return m, nil
}

// Current returns the committee governing the active epoch.
func (m *EpochManager) Current() *Committee {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetNext stages a next-epoch committee, to be learned from a finalized
// checkpoint's NextCommittee field.
func (m *EpochManager) SetNext(next *Committee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = next
}

// Advance promotes the staged next committee to current, persists it, and
// clears the staged slot. Returns an error if no transition was staged
// for the requested epoch.
func (m *EpochManager) Advance(epoch types.Epoch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next == nil || m.next.Epoch != epoch {
		return fmt.Errorf("committee: no staged transition to epoch %d", epoch)
	}
	if err := m.persist(m.next); err != nil {
		return err
	}
	m.current = m.next
	m.next = nil
	return nil
}

func (m *EpochManager) persist(c *Committee) error {
	snap := c.Snapshot()
	return m.db.Put(storage.CommitteeKey(uint64(c.Epoch)), encodeSnapshot(snap))
}

func encodeSnapshot(s *types.CommitteeSnapshot) []byte {
	return wire.Marshal(s)
}

func decodeSnapshot(raw []byte) (*types.CommitteeSnapshot, error) {
	snap := &types.CommitteeSnapshot{}
	if err := wire.Unmarshal(raw, snap); err != nil {
		return nil, err
	}
	return snap, nil
}
