package session

import "github.com/prometheus/client_golang/prometheus"

var (
	loginSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedoor_session_login_success_total",
		Help: "Successful password-grant logins",
	})
	loginFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedoor_session_login_failure_total",
		Help: "Failed password-grant logins",
	})
	refreshSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedoor_session_refresh_success_total",
		Help: "Successful refresh-token exchanges",
	})
	refreshFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bluedoor_session_refresh_failure_total",
		Help: "Failed refresh-token exchanges",
	})
	tokenValid = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bluedoor_session_token_valid",
		Help: "Access token validity (1=valid, 0=invalid)",
	})
	storePersistOK = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bluedoor_session_store_persist_ok",
		Help: "Credential store persistence health (1=ok, 0=error)",
	})
	mirrorPersistOK = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bluedoor_session_mirror_persist_ok",
		Help: "Remote mirror persistence health (1=ok, 0=error)",
	})
)

// MetricsCollectors returns collectors for the session module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		loginSuccess,
		loginFailure,
		refreshSuccess,
		refreshFailure,
		tokenValid,
		storePersistOK,
		mirrorPersistOK,
	}
}
