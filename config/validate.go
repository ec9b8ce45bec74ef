package config

import (
	"fmt"
	"time"
)

// MinQuorumTimeout guards against a misconfigured near-zero timeout that
// would cause the quorum driver to expire every pending entry immediately.
const MinQuorumTimeout = 50 * time.Millisecond

func Validate(g Global) error {
	if g.Consensus.MaxRoundGap == 0 {
		return fmt.Errorf("consensus: max_round_gap must be positive")
	}
	if g.Consensus.QuorumTimeout < MinQuorumTimeout {
		return fmt.Errorf("consensus: quorum_timeout must be at least %s", MinQuorumTimeout)
	}
	if g.Consensus.MaxPendingCertificates <= 0 {
		return fmt.Errorf("consensus: max_pending_certificates must be positive")
	}
	if g.Mempool.MaxEntries <= 0 {
		return fmt.Errorf("mempool: max_entries must be positive")
	}
	if g.Mempool.MaxPerSender <= 0 {
		return fmt.Errorf("mempool: max_per_sender must be positive")
	}
	if !g.Storage.InMemory && g.Storage.DataDir == "" {
		return fmt.Errorf("storage: data_dir required unless in_memory")
	}
	return nil
}
