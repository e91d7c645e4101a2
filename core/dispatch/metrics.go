package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobTransitions       *prometheus.CounterVec
	driverStatusUpdates  *prometheus.CounterVec
	podSubmissions       *prometheus.CounterVec
	bulkStatusResults    *prometheus.CounterVec
	referenceAllocations *prometheus.CounterVec
	versionConflicts     prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter) {
	tr := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_transitions_total",
			Help: "Accepted job status transitions",
		},
		[]string{"from", "to"},
	)
	drv := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driver_status_updates_total",
			Help: "Driver status updates by outcome",
		},
		[]string{"status", "result"},
	)
	pod := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pod_submissions_total",
			Help: "Proof of delivery submissions by outcome",
		},
		[]string{"result"},
	)
	bulk := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_status_results_total",
			Help: "Per job results of bulk status actions",
		},
		[]string{"action", "success"},
	)
	ref := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reference_allocations_total",
			Help: "Reference number allocations by outcome",
		},
		[]string{"result"},
	)
	conf := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "job_version_conflicts_total",
			Help: "Optimistic concurrency conflicts retried on job updates",
		},
	)
	return tr, drv, pod, bulk, ref, conf
}

func init() {
	jobTransitions, driverStatusUpdates, podSubmissions, bulkStatusResults, referenceAllocations, versionConflicts = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(jobTransitions, driverStatusUpdates, podSubmissions, bulkStatusResults, referenceAllocations, versionConflicts)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	jobTransitions, driverStatusUpdates, podSubmissions, bulkStatusResults, referenceAllocations, versionConflicts = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
