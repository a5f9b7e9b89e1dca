package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve("127.0.0.1:0")
	defer srv.Close()

	ExecutionsTotal.WithLabelValues("SUCCESS", "BUY").Inc()
	CyclesTotal.WithLabelValues("processed").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["logmirror_executions_total"])
	assert.True(t, names["logmirror_cycles_total"])
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(LinesRejectedTotal.WithLabelValues("stale_day"))
	LinesRejectedTotal.WithLabelValues("stale_day").Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(LinesRejectedTotal.WithLabelValues("stale_day")))
}
