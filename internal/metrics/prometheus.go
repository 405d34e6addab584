// Package metrics holds the Prometheus instrumentation for a storage node.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the storage node.
type Metrics struct {
	// Request pipeline
	GetRequestsTotal  prometheus.Counter
	PutRequestsTotal  prometheus.Counter
	RequestDuration   prometheus.Histogram
	WrongThreadTotal  prometheus.Counter
	KeyDNETotal       prometheus.Counter
	LatticeMismatches prometheus.Counter

	// Pending state
	PendingRequests prometheus.Gauge
	PendingGossip   prometheus.Gauge

	// Gossip pipeline
	GossipRoundsTotal    prometheus.Counter
	GossipKeysTotal      prometheus.Counter
	GossipBatchesTotal   prometheus.Counter
	GossipInboundTotal   prometheus.Counter
	ReplicationFetches   prometheus.Counter
	ReplicationRefetches prometheus.Counter

	// Storage
	StoredKeys         prometheus.Gauge
	StorageConsumption prometheus.Gauge
	GarbageCollected   prometheus.Counter
}

// New creates and registers all metrics for one storage thread.
func New(reg prometheus.Registerer, nodeID string, tid uint32) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID, "thread": formatTID(tid)}
	factory := promauto.With(reg)

	return &Metrics{
		GetRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "kvs",
			Name:        "get_requests_total",
			Help:        "Total number of GET tuples handled",
			ConstLabels: labels,
		}),
		PutRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "kvs",
			Name:        "put_requests_total",
			Help:        "Total number of PUT tuples handled",
			ConstLabels: labels,
		}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "anna",
			Subsystem:   "kvs",
			Name:        "request_duration_seconds",
			Help:        "Histogram of request handling durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		WrongThreadTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "kvs",
			Name:        "wrong_thread_total",
			Help:        "Requests answered with WRONG_THREAD",
			ConstLabels: labels,
		}),
		KeyDNETotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "kvs",
			Name:        "key_dne_total",
			Help:        "Requests answered with KEY_DNE",
			ConstLabels: labels,
		}),
		LatticeMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "kvs",
			Name:        "lattice_mismatch_total",
			Help:        "PUTs rejected for declaring the wrong lattice type",
			ConstLabels: labels,
		}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "anna",
			Subsystem:   "kvs",
			Name:        "pending_requests",
			Help:        "Requests parked awaiting replication metadata",
			ConstLabels: labels,
		}),
		PendingGossip: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "anna",
			Subsystem:   "kvs",
			Name:        "pending_gossip",
			Help:        "Gossip parked awaiting replication metadata",
			ConstLabels: labels,
		}),
		GossipRoundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "gossip",
			Name:        "rounds_total",
			Help:        "Periodic gossip flushes performed",
			ConstLabels: labels,
		}),
		GossipKeysTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "gossip",
			Name:        "keys_total",
			Help:        "Keys shipped in outbound gossip",
			ConstLabels: labels,
		}),
		GossipBatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "gossip",
			Name:        "batches_total",
			Help:        "Outbound gossip batches sent",
			ConstLabels: labels,
		}),
		GossipInboundTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "gossip",
			Name:        "inbound_total",
			Help:        "Inbound gossip tuples merged",
			ConstLabels: labels,
		}),
		ReplicationFetches: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "replication",
			Name:        "fetches_total",
			Help:        "Replication-factor fetches issued",
			ConstLabels: labels,
		}),
		ReplicationRefetches: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "replication",
			Name:        "refetches_total",
			Help:        "Replication-factor fetches re-issued after WRONG_THREAD",
			ConstLabels: labels,
		}),
		StoredKeys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "anna",
			Subsystem:   "storage",
			Name:        "stored_keys",
			Help:        "Keys with a stored value on this thread",
			ConstLabels: labels,
		}),
		StorageConsumption: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "anna",
			Subsystem:   "storage",
			Name:        "consumption_bytes",
			Help:        "Serialized bytes stored on this thread",
			ConstLabels: labels,
		}),
		GarbageCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "anna",
			Subsystem:   "storage",
			Name:        "garbage_collected_total",
			Help:        "Keys dropped because this thread lost responsibility",
			ConstLabels: labels,
		}),
	}
}

func formatTID(tid uint32) string {
	return strconv.FormatUint(uint64(tid), 10)
}
