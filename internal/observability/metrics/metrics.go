package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics exposes counters/histograms for booking flows.
type SchedulerMetrics struct {
	remoteCalls        *prometheus.CounterVec
	remoteLatency      *prometheus.HistogramVec
	notificationsTotal *prometheus.CounterVec
	appointmentWrites  *prometheus.CounterVec
	adminCacheLookups  *prometheus.CounterVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carepulse",
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Total calls to the remote data service",
		}, []string{"op", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carepulse",
			Subsystem: "remote",
			Name:      "call_latency_seconds",
			Help:      "Latency of remote data service calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carepulse",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Appointment notifications by outcome",
		}, []string{"outcome"}),
		appointmentWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carepulse",
			Subsystem: "appointments",
			Name:      "writes_total",
			Help:      "Appointment creates and updates by resulting status",
		}, []string{"action", "status"}),
		adminCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carepulse",
			Subsystem: "admin",
			Name:      "cache_lookups_total",
			Help:      "Admin appointment list cache lookups",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.remoteCalls, m.remoteLatency, m.notificationsTotal, m.appointmentWrites, m.adminCacheLookups)
	return m
}

// ObserveRemoteCall satisfies remote.Observer.
func (m *SchedulerMetrics) ObserveRemoteCall(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(op, outcome).Inc()
	m.remoteLatency.WithLabelValues(op).Observe(seconds)
}

func (m *SchedulerMetrics) ObserveNotification(outcome string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulerMetrics) ObserveAppointmentWrite(action, status string) {
	if m == nil {
		return
	}
	m.appointmentWrites.WithLabelValues(action, status).Inc()
}

func (m *SchedulerMetrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.adminCacheLookups.WithLabelValues(result).Inc()
}
