// Package metrics exposes Prometheus collectors for the coordination core:
// inflight request counts, stall events, and download queue depth. It never
// reads session state directly, and the dispatcher does not import it.
// Nothing in this module calls Set/Inc on these collectors: once registered
// they are served at their zero values.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every gauge/counter the node registers. Construct one
// with NewCollectors and register it with a prometheus.Registerer.
type Collectors struct {
	InflightMerkles prometheus.Gauge
	InflightTxs     prometheus.Gauge
	QueueDepth      prometheus.Gauge
	ConnectedPeers  prometheus.Gauge
	BestHeaderHeight prometheus.Gauge
	BestBlockHeight  prometheus.Gauge
	Stalls          prometheus.Counter
	HeadersAccepted prometheus.Counter
	HeadersRejected prometheus.Counter
	MerkleImported  prometheus.Counter
	Reorgs          prometheus.Counter
}

// NewCollectors builds every collector with the spvnode namespace.
func NewCollectors() *Collectors {
	const ns = "spvnode"
	return &Collectors{
		InflightMerkles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "inflight", Name: "merkle_requests",
			Help: "Merkle block requests currently outstanding across all peers.",
		}),
		InflightTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "inflight", Name: "tx_requests",
			Help: "Transaction requests currently outstanding across all peers.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "queue_depth",
			Help: "Block hashes queued for download but not yet assigned to a peer.",
		}),
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "connected_peers",
			Help: "Handshaken peer connections.",
		}),
		BestHeaderHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "best_header_height",
			Help: "Height of the best known block header.",
		}),
		BestBlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "best_block_height",
			Help: "Height of the best block delivered to the wallet.",
		}),
		Stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "heartbeat", Name: "stalls_total",
			Help: "Inflight requests re-queued by heartbeat stall recovery.",
		}),
		HeadersAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "headersync", Name: "headers_accepted_total",
			Help: "Headers accepted into the header chain.",
		}),
		HeadersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "headersync", Name: "headers_rejected_total",
			Help: "Headers rejected by the header store.",
		}),
		MerkleImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "reassembler", Name: "merkle_blocks_imported_total",
			Help: "Merkle blocks delivered to the wallet in ascending height order.",
		}),
		Reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "reassembler", Name: "reorgs_total",
			Help: "Chain reorganizations observed while importing merkle blocks.",
		}),
	}
}

// Register adds every collector to reg. Callers typically pass
// prometheus.DefaultRegisterer or a registry scoped to pkg/statusapi.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.InflightMerkles, c.InflightTxs, c.QueueDepth, c.ConnectedPeers,
		c.BestHeaderHeight, c.BestBlockHeight, c.Stalls, c.HeadersAccepted,
		c.HeadersRejected, c.MerkleImported, c.Reorgs,
	}
	for _, coll := range collectors {
		if err := reg.Register(coll); err != nil {
			return err
		}
	}
	return nil
}
