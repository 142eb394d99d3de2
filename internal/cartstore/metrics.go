package cartstore

import "github.com/prometheus/client_golang/prometheus"

// Sync operation labels.
const (
	opLoad   = "load"
	opSave   = "save"
	opMerge  = "merge"
	opMirror = "mirror"
)

// Sync result labels.
const (
	resultSuccess  = "success"
	resultFailure  = "failure"
	resultNotFound = "not_found"
	resultStale    = "stale"
)

var syncOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cart_sync_operations_total",
		Help: "Total number of cart replica operations by operation and result",
	},
	[]string{"operation", "result"},
)

func init() {
	prometheus.MustRegister(syncOperations)
}

func recordSync(operation, result string) {
	syncOperations.WithLabelValues(operation, result).Inc()
}
