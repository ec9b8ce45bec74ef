package config

import "time"

// Consensus bundles the round-gap, timeout, and quorum knobs. The quorum
// driver is constructed from QuorumTimeout and MaxPendingCertificates.
// MaxRoundGap is checked by Validate only; the safety package enforces its
// own MaxRoundGap constant and does not read this value.
type Consensus struct {
	MaxRoundGap           uint64        `toml:"MaxRoundGap"`
	QuorumTimeout         time.Duration `toml:"QuorumTimeout"`
	MaxPendingCertificates int          `toml:"MaxPendingCertificates"`
}

// Mempool controls pending-transaction admission limits.
type Mempool struct {
	MaxEntries   int           `toml:"MaxEntries"`
	MaxPerSender int           `toml:"MaxPerSender"`
	TTL          time.Duration `toml:"TTL"`
}

// Storage selects and configures the KV engine backing the node.
type Storage struct {
	DataDir string `toml:"DataDir"`
	InMemory bool  `toml:"InMemory"`
}

// Global bundles the runtime configuration values enforced by Validate.
type Global struct {
	Consensus Consensus
	Mempool   Mempool
	Storage   Storage
}
