package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// consensusMetrics bundles collectors tracking DAG insertion, commit waves,
// and quorum/safety behaviour for a running validator.
type consensusMetrics struct {
	dagInserts        *prometheus.CounterVec
	commitWaves       prometheus.Counter
	committedDAGNodes prometheus.Counter
	quorumLatency     prometheus.Histogram
	safetyRejections  *prometheus.CounterVec
	currentRound      prometheus.Gauge
	currentEpoch      prometheus.Gauge
}

// mempoolMetrics bundles collectors tracking pending-transaction admission.
type mempoolMetrics struct {
	depth    prometheus.Gauge
	admitted *prometheus.CounterVec
	evicted  *prometheus.CounterVec
}

// checkpointMetrics bundles collectors tracking checkpoint finalization.
type checkpointMetrics struct {
	sequence prometheus.Gauge
	latency  prometheus.Histogram
}

var (
	consensusMetricsOnce sync.Once
	consensusRegistry    *consensusMetrics

	mempoolMetricsOnce sync.Once
	mempoolRegistry    *mempoolMetrics

	checkpointMetricsOnce sync.Once
	checkpointRegistry    *checkpointMetrics
)

// Consensus returns the lazily-initialised metrics registry for the DAG,
// quorum driver, and safety rules.
func Consensus() *consensusMetrics {
	consensusMetricsOnce.Do(func() {
		consensusRegistry = &consensusMetrics{
			dagInserts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "valcore",
				Subsystem: "dag",
				Name:      "inserts_total",
				Help:      "Count of certificates inserted into the DAG segmented by outcome.",
			}, []string{"outcome"}),
			commitWaves: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "valcore",
				Subsystem: "dag",
				Name:      "commit_waves_total",
				Help:      "Count of commit-rule evaluations that committed at least one anchor.",
			}),
			committedDAGNodes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "valcore",
				Subsystem: "dag",
				Name:      "committed_nodes_total",
				Help:      "Count of DAG nodes (anchors plus ancestors) committed across all waves.",
			}),
			quorumLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "valcore",
				Subsystem: "quorum",
				Name:      "formation_latency_seconds",
				Help:      "Latency distribution between digest registration and quorum formation.",
				Buckets:   prometheus.DefBuckets,
			}),
			safetyRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "valcore",
				Subsystem: "safety",
				Name:      "rejections_total",
				Help:      "Count of votes rejected by the safety rules segmented by reason.",
			}, []string{"reason"}),
			currentRound: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "valcore",
				Subsystem: "dag",
				Name:      "current_round",
				Help:      "Highest round observed by the local DAG.",
			}),
			currentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "valcore",
				Subsystem: "committee",
				Name:      "current_epoch",
				Help:      "Epoch number of the active committee.",
			}),
		}
		prometheus.MustRegister(
			consensusRegistry.dagInserts,
			consensusRegistry.commitWaves,
			consensusRegistry.committedDAGNodes,
			consensusRegistry.quorumLatency,
			consensusRegistry.safetyRejections,
			consensusRegistry.currentRound,
			consensusRegistry.currentEpoch,
		)
	})
	return consensusRegistry
}

// RecordDAGInsert increments the insert counter for the supplied outcome,
// e.g. "accepted", "duplicate", "missing_parents", "not_quorum".
func (m *consensusMetrics) RecordDAGInsert(outcome string) {
	if m == nil {
		return
	}
	m.dagInserts.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

// RecordCommitWave records one commit-rule evaluation that committed
// additional nodes.
func (m *consensusMetrics) RecordCommitWave(nodesCommitted int) {
	if m == nil || nodesCommitted <= 0 {
		return
	}
	m.commitWaves.Inc()
	m.committedDAGNodes.Add(float64(nodesCommitted))
}

// RecordQuorumLatency records the time elapsed between digest registration
// and quorum formation.
func (m *consensusMetrics) RecordQuorumLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.quorumLatency.Observe(d.Seconds())
}

// RecordSafetyRejection increments the rejection counter for the supplied
// reason, e.g. "stale_round", "round_gap", "locked_round".
func (m *consensusMetrics) RecordSafetyRejection(reason string) {
	if m == nil {
		return
	}
	m.safetyRejections.WithLabelValues(labelOrUnknown(reason)).Inc()
}

// SetCurrentRound updates the current-round gauge.
func (m *consensusMetrics) SetCurrentRound(round uint64) {
	if m == nil {
		return
	}
	m.currentRound.Set(float64(round))
}

// SetCurrentEpoch updates the current-epoch gauge.
func (m *consensusMetrics) SetCurrentEpoch(epoch uint64) {
	if m == nil {
		return
	}
	m.currentEpoch.Set(float64(epoch))
}

// Mempool returns the lazily-initialised mempool metrics registry.
func Mempool() *mempoolMetrics {
	mempoolMetricsOnce.Do(func() {
		mempoolRegistry = &mempoolMetrics{
			depth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "valcore",
				Subsystem: "mempool",
				Name:      "depth",
				Help:      "Number of transactions currently pending in the mempool.",
			}),
			admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "valcore",
				Subsystem: "mempool",
				Name:      "admitted_total",
				Help:      "Count of mempool admission attempts segmented by outcome.",
			}, []string{"outcome"}),
			evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "valcore",
				Subsystem: "mempool",
				Name:      "evicted_total",
				Help:      "Count of transactions evicted from the mempool segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(mempoolRegistry.depth, mempoolRegistry.admitted, mempoolRegistry.evicted)
	})
	return mempoolRegistry
}

// SetDepth updates the mempool depth gauge.
func (m *mempoolMetrics) SetDepth(depth int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(depth))
}

// RecordAdmit increments the admission counter for the supplied outcome,
// e.g. "accepted", "duplicate", "expired", "full", "sender_limit".
func (m *mempoolMetrics) RecordAdmit(outcome string) {
	if m == nil {
		return
	}
	m.admitted.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

// RecordEvict increments the eviction counter for the supplied reason, e.g.
// "ttl", "batched".
func (m *mempoolMetrics) RecordEvict(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.evicted.WithLabelValues(labelOrUnknown(reason)).Add(float64(count))
}

// Checkpoints returns the lazily-initialised checkpoint metrics registry.
func Checkpoints() *checkpointMetrics {
	checkpointMetricsOnce.Do(func() {
		checkpointRegistry = &checkpointMetrics{
			sequence: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "valcore",
				Subsystem: "checkpoint",
				Name:      "sequence",
				Help:      "Sequence number of the most recently finalised checkpoint.",
			}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "valcore",
				Subsystem: "checkpoint",
				Name:      "finalize_latency_seconds",
				Help:      "Latency distribution for checkpoint finalisation.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(checkpointRegistry.sequence, checkpointRegistry.latency)
	})
	return checkpointRegistry
}

// RecordFinalized records a finalised checkpoint's sequence number and the
// time it took to finalise.
func (m *checkpointMetrics) RecordFinalized(sequence uint64, d time.Duration) {
	if m == nil {
		return
	}
	m.sequence.Set(float64(sequence))
	m.latency.Observe(d.Seconds())
}

func labelOrUnknown(label string) string {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
