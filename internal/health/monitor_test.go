package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/metrics"
)

func TestMonitor_NotReadyBeforeFirstCheck(t *testing.T) {
	m := NewMonitor(time.Minute, time.Second, metrics.NewCollector(), zap.NewNop())
	m.Register("store", func(context.Context) error { return nil })

	status, ready := m.Status()
	assert.False(t, ready)
	require.Len(t, status, 1)
	assert.Equal(t, "not checked yet", status[0].Error)
}

func TestMonitor_CheckNow(t *testing.T) {
	mc := metrics.NewCollector()
	m := NewMonitor(time.Minute, time.Second, mc, zap.NewNop())
	m.Register("store", func(context.Context) error { return nil })
	m.Register("vector", func(context.Context) error { return errors.New("connection refused") })

	m.CheckNow(context.Background())

	status, ready := m.Status()
	assert.False(t, ready)
	require.Len(t, status, 2)
	assert.Equal(t, "store", status[0].Name)
	assert.True(t, status[0].Up)
	assert.Equal(t, "vector", status[1].Name)
	assert.False(t, status[1].Up)
	assert.Equal(t, "connection refused", status[1].Error)

	expected := `
# HELP coach_dependency_up 1 when the last readiness check of a dependency succeeded.
# TYPE coach_dependency_up gauge
coach_dependency_up{dependency="store"} 1
coach_dependency_up{dependency="vector"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(mc.Registry(), strings.NewReader(expected), "coach_dependency_up"))
}

func TestMonitor_ScheduledRun(t *testing.T) {
	m := NewMonitor(time.Hour, time.Second, metrics.NewCollector(), zap.NewNop())
	called := make(chan struct{}, 1)
	m.Register("store", func(context.Context) error {
		select {
		case called <- struct{}{}:
		default:
		}
		return nil
	})

	require.NoError(t, m.Start())
	defer func() { assert.NoError(t, m.Shutdown()) }()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("dependency check did not run on start")
	}

	assert.Eventually(t, func() bool {
		_, ready := m.Status()
		return ready
	}, time.Second, 10*time.Millisecond)
}
