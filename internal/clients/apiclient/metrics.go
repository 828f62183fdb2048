package apiclient

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	requests *prometheus.CounterVec
	refresh  *prometheus.CounterVec
	waiters  prometheus.Counter
}

const (
	refreshOK        = "ok"
	refreshFailed    = "failed"
	refreshNoToken   = "no_token"
	codeNetworkError = "network_error"
)

// newMetrics создаёт счётчики клиента; при reg == nil они не регистрируются.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agricare",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Outbound API requests by response status code.",
		}, []string{"code"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agricare",
			Subsystem: "client",
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts by result.",
		}, []string{"result"}),
		waiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agricare",
			Subsystem: "client",
			Name:      "refresh_waiters_total",
			Help:      "Requests that waited for an in-flight token refresh.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.refresh, m.waiters)
	}

	return m
}
