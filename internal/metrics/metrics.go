package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "logmirror_cycles_total", Help: "Polling cycles by outcome"},
		[]string{"outcome"},
	)
	SignalsExtractedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "logmirror_signals_extracted_total", Help: "Signals extracted from fetched logs"},
	)
	SignalsFilteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "logmirror_signals_filtered_total", Help: "Extracted signals dropped as already seen"},
	)
	LinesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "logmirror_lines_rejected_total", Help: "Log lines rejected during extraction"},
		[]string{"reason"},
	)
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "logmirror_executions_total", Help: "Execution records by status"},
		[]string{"status", "side"},
	)
	SessionChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "logmirror_session_checks_total", Help: "Log source session health checks"},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, SignalsExtractedTotal, SignalsFilteredTotal, LinesRejectedTotal, ExecutionsTotal, SessionChecksTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
