// Package metrics wraps a dedicated prometheus.Registry with the gauges
// and counters the dispatcher and audit client update. It is
// purely observational: nothing in this package ever changes a directory
// or protocol outcome.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the collectors the rest of the daemon updates.
type Registry struct {
	Registry *prometheus.Registry

	DirectoryUsers      prometheus.Gauge
	DirectoryConnected  prometheus.Gauge
	RequestsTotal       *prometheus.CounterVec
	AuditEventsTotal    *prometheus.CounterVec
	AuditReconnectTotal prometheus.Counter
}

// New builds and registers the full collector set on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		Registry: reg,
		DirectoryUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerdirectoryd",
			Name:      "directory_users",
			Help:      "Number of registered users currently held by the directory.",
		}),
		DirectoryConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peerdirectoryd",
			Name:      "directory_connected",
			Help:      "Number of users currently marked connected.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerdirectoryd",
			Name:      "requests_total",
			Help:      "Requests handled, by operation and resulting status code.",
		}, []string{"operation", "status"}),
		AuditEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerdirectoryd",
			Name:      "audit_events_total",
			Help:      "Audit events emitted to the remote sink, by result.",
		}, []string{"result"}),
		AuditReconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peerdirectoryd",
			Name:      "audit_reconnects_total",
			Help:      "Times the audit client handle was torn down and lazily recreated.",
		}),
	}

	reg.MustRegister(
		m.DirectoryUsers,
		m.DirectoryConnected,
		m.RequestsTotal,
		m.AuditEventsTotal,
		m.AuditReconnectTotal,
	)
	return m
}

// ObserveDirectory records a (registered, connected) pair taken under the
// directory's own lock (internal/directory.Directory.Counts).
func (m *Registry) ObserveDirectory(registered, connected int) {
	m.DirectoryUsers.Set(float64(registered))
	m.DirectoryConnected.Set(float64(connected))
}

// ObserveRequest records one handled request's outcome.
func (m *Registry) ObserveRequest(operation string, status byte) {
	m.RequestsTotal.WithLabelValues(operation, itoa(status)).Inc()
}

// ObserveAuditResult records whether an audit event reached the sink.
func (m *Registry) ObserveAuditResult(ok bool) {
	if ok {
		m.AuditEventsTotal.WithLabelValues("ok").Inc()
	} else {
		m.AuditEventsTotal.WithLabelValues("dropped").Inc()
	}
}

// ObserveAuditReconnect records one lazy handle reconstruction.
func (m *Registry) ObserveAuditReconnect() {
	m.AuditReconnectTotal.Inc()
}

func itoa(b byte) string {
	const digits = "0123456789"
	if b < 10 {
		return digits[b : b+1]
	}
	buf := [3]byte{}
	i := len(buf)
	for b > 0 {
		i--
		buf[i] = digits[b%10]
		b /= 10
	}
	return string(buf[i:])
}
