package fermax

import "github.com/prometheus/client_golang/prometheus"

var (
	doorOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bluedoor_door_open_total",
			Help: "Door-open commands by classified outcome",
		},
		[]string{"classification"},
	)
	authRetryTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedoor_auth_retry_total",
		Help: "Authenticated calls retried after a forced token refresh",
	})
	discoveryFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedoor_discovery_failure_total",
		Help: "Failed device discovery calls",
	})
)

// MetricsCollectors returns collectors for the API client.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		doorOpenTotal,
		authRetryTotal,
		discoveryFailure,
	}
}
