// Package committee implements the stake table, quorum threshold, and
// epoch transitions: a standalone, immutable-per-epoch value plus an
// EpochManager that swaps it, rather than validator-set bookkeeping kept
// inline behind a single mutex-guarded stake map.
package committee

import (
	"math/big"
	"sort"

	"github.com/objectledger/valcore/crypto"
	"github.com/objectledger/valcore/types"
)

// Validator is one committee member.
type Validator struct {
	PublicKey  *crypto.PublicKey
	Address    types.Address
	Stake      types.Stake
	NetworkAddr string
}

// Committee is immutable per epoch. Quorum = floor(2*total/3)+1
// per the glossary.
type Committee struct {
	Epoch          types.Epoch
	Validators     []Validator
	TotalStake     types.Stake
	QuorumThreshold types.Stake
}

// New builds a Committee and precomputes its quorum threshold.
func New(epoch types.Epoch, validators []Validator) *Committee {
	total := big.NewInt(0)
	for _, v := range validators {
		total.Add(total, big.NewInt(int64(v.Stake)))
	}
	quorum := quorumThreshold(total)
	sorted := append([]Validator(nil), validators...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Address.String() < sorted[j].Address.String()
	})
	return &Committee{
		Epoch:           epoch,
		Validators:      sorted,
		TotalStake:      types.Stake(total.Uint64()),
		QuorumThreshold: types.Stake(quorum.Uint64()),
	}
}

// quorumThreshold computes floor(2*total/3)+1 (the glossary definition).
func quorumThreshold(total *big.Int) *big.Int {
	threshold := new(big.Int).Mul(total, big.NewInt(2))
	threshold.Div(threshold, big.NewInt(3))
	threshold.Add(threshold, big.NewInt(1))
	return threshold
}

// FaultTolerance returns f such that TotalStake = 3f+1 (rounded down),
// the quantity the DAG's wave commit rule (f+1 stake-weight) depends on.
func (c *Committee) FaultTolerance() types.Stake {
	return types.Stake((uint64(c.TotalStake) - 1) / 3)
}

// StakeOf returns the stake of addr, or 0 if addr is not a member.
func (c *Committee) StakeOf(addr types.Address) types.Stake {
	for _, v := range c.Validators {
		if v.Address.String() == addr.String() {
			return v.Stake
		}
	}
	return 0
}

// ByPublicKey looks up a member by raw Ed25519 public key bytes.
func (c *Committee) ByPublicKey(pub []byte) (Validator, bool) {
	for _, v := range c.Validators {
		if string(v.PublicKey.Bytes()) == string(pub) {
			return v, true
		}
	}
	return Validator{}, false
}

// IsMember reports whether addr belongs to the committee.
func (c *Committee) IsMember(addr types.Address) bool {
	for _, v := range c.Validators {
		if v.Address.String() == addr.String() {
			return true
		}
	}
	return false
}

// HasQuorum reports whether stake meets or exceeds the quorum threshold.
func (c *Committee) HasQuorum(stake types.Stake) bool {
	return stake >= c.QuorumThreshold
}

// StakeWeightOf sums the stake of the given addresses, ignoring unknown
// or duplicate entries (duplicates are the caller's bug to avoid, but a
// defensive sum here keeps parent-quorum checks simple).
func (c *Committee) StakeWeightOf(addrs []types.Address) types.Stake {
	var total uint64
	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		key := addr.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		total += uint64(c.StakeOf(addr))
	}
	return types.Stake(total)
}

// Snapshot converts the committee to the data-model type a Checkpoint
// carries forward across epoch boundaries.
func (c *Committee) Snapshot() *types.CommitteeSnapshot {
	members := make([]types.CommitteeMember, 0, len(c.Validators))
	for _, v := range c.Validators {
		members = append(members, types.CommitteeMember{
			PublicKey:   v.PublicKey.Bytes(),
			Stake:       v.Stake,
			NetworkAddr: v.NetworkAddr,
		})
	}
	return &types.CommitteeSnapshot{
		Epoch:       c.Epoch,
		Members:     members,
		QuorumStake: c.QuorumThreshold,
		TotalStake:  c.TotalStake,
	}
}

// FromSnapshot reconstructs a Committee from a persisted snapshot.
func FromSnapshot(s *types.CommitteeSnapshot) (*Committee, error) {
	validators := make([]Validator, 0, len(s.Members))
	for _, m := range s.Members {
		pub, err := crypto.PublicKeyFromBytes(m.PublicKey)
		if err != nil {
			return nil, err
		}
		validators = append(validators, Validator{
			PublicKey:   pub,
			Address:     pub.Address(),
			Stake:       m.Stake,
			NetworkAddr: m.NetworkAddr,
		})
	}
	return New(s.Epoch, validators), nil
}
