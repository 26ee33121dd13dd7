// Package metrics holds the prometheus collectors for appliancectl.
//
// appliancectl is a short-lived CLI, so collectors live on a private registry
// and are exported with WriteTextfile for the node exporter textfile collector
// instead of an HTTP endpoint.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "appliancectl"

// Registry is the registry every appliancectl collector is registered on.
var Registry = prometheus.NewRegistry()

var (
	RetryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Total attempts made by the retry engine",
	}, []string{"operation"})

	RetryOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retry",
		Name:      "outcomes_total",
		Help:      "Retried operations by final outcome (success, exhausted, stopped, canceled)",
	}, []string{"operation", "result"})

	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rest",
		Name:      "requests_total",
		Help:      "REST requests sent to the appliance by method and status code",
	}, []string{"method", "code"})

	Transactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transaction",
		Name:      "runs_total",
		Help:      "Transactions by result (completed, incomplete, failed)",
	}, []string{"result"})

	TransactionCommands = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transaction",
		Name:      "commands_total",
		Help:      "Commands staged inside transactions",
	})

	ClusterWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cluster",
		Name:      "operations_total",
		Help:      "Cluster membership operations by name and whether a write was issued",
	}, []string{"operation", "write"})
)

func init() {
	Registry.MustRegister(
		RetryAttempts,
		RetryOutcomes,
		Requests,
		Transactions,
		TransactionCommands,
		ClusterWrites,
	)
}

// StatusLabel renders an HTTP status code as a label value.
// Zero means the request failed before a response arrived.
func StatusLabel(code int) string {
	if code == 0 {
		return "error"
	}
	return strconv.Itoa(code)
}

// WriteTextfile writes every collector to path in the text exposition format.
// The write is atomic so a concurrent scrape never sees a partial file.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
