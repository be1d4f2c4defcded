package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "agent",
			Name:      "scans_total",
			Help:      "Tag scans by resolution result.",
		},
		[]string{"result"},
	)
	doorOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "agent",
			Name:      "door_operations_total",
			Help:      "Door open/close tasks by outcome.",
		},
		[]string{"door", "outcome"},
	)
	reloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "agent",
			Name:      "reloads_total",
			Help:      "Door configuration reloads by outcome.",
		},
		[]string{"outcome"},
	)
	directoryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portunus",
			Subsystem: "agent",
			Name:      "directory_requests_total",
			Help:      "Requests to the remote directory API.",
		},
		[]string{"endpoint", "success"},
	)
	liveActuators = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "portunus",
			Subsystem: "agent",
			Name:      "live_actuators",
			Help:      "Door actuators currently held.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(scans, doorOperations, reloads, directoryRequests, liveActuators)
	})
}

func RecordScan(result string) {
	RegisterMetrics()
	scans.WithLabelValues(result).Inc()
}

func RecordDoorOperation(door, outcome string) {
	RegisterMetrics()
	doorOperations.WithLabelValues(door, outcome).Inc()
}

func RecordReload(outcome string) {
	RegisterMetrics()
	reloads.WithLabelValues(outcome).Inc()
}

func RecordDirectoryRequest(endpoint string, success bool) {
	RegisterMetrics()
	directoryRequests.WithLabelValues(endpoint, strconv.FormatBool(success)).Inc()
}

func SetLiveActuators(n int) {
	RegisterMetrics()
	liveActuators.Set(float64(n))
}
