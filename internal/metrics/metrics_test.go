package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()

	c.ObserveHTTP(http.MethodPost, "/chat", http.StatusOK, 120*time.Millisecond)
	c.ObserveHTTP(http.MethodPost, "/chat", http.StatusOK, 80*time.Millisecond)
	c.ObserveUpstream("completion", "error", time.Second)
	c.IncDegraded("retrieval")
	c.SetDependencyUp("store", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/chat", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.upstreamCalls.WithLabelValues("completion", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.degradedTurns.WithLabelValues("retrieval")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dependencyUp.WithLabelValues("store")))

	c.SetDependencyUp("store", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.dependencyUp.WithLabelValues("store")))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.IncDegraded("completion")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `coach_degraded_turns_total{reason="completion"} 1`)
}
