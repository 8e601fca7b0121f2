package poll

import "github.com/prometheus/client_golang/prometheus"

var (
	tickSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedoor_poll_tick_success_total",
		Help: "Successful poll ticks",
	})
	tickFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedoor_poll_tick_failure_total",
		Help: "Failed poll ticks",
	})
	tickSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedoor_poll_tick_skipped_total",
		Help: "Ticks skipped because the previous one was still running",
	})
	lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bluedoor_poll_last_success_timestamp_seconds",
		Help: "Last successful poll timestamp (epoch seconds)",
	})
	doorsDiscovered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bluedoor_poll_doors_discovered",
		Help: "Doors in the current snapshot",
	})
)

// MetricsCollectors returns collectors for the poll coordinator.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		tickSuccess,
		tickFailure,
		tickSkipped,
		lastSuccess,
		doorsDiscovered,
	}
}
