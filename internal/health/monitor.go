package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/metrics"
)

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

type DependencyStatus struct {
	Name      string    `json:"name"`
	Up        bool      `json:"up"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor pings every registered dependency on a fixed interval and keeps
// the latest result for the readiness endpoint.
type Monitor struct {
	checks    map[string]CheckFunc
	interval  time.Duration
	timeout   time.Duration
	scheduler gocron.Scheduler
	metrics   *metrics.Collector
	logger    *zap.Logger

	mu     sync.RWMutex
	status map[string]DependencyStatus
}

func NewMonitor(interval, timeout time.Duration, m *metrics.Collector, logger *zap.Logger) *Monitor {
	return &Monitor{
		checks:   make(map[string]CheckFunc),
		interval: interval,
		timeout:  timeout,
		metrics:  m,
		logger:   logger.With(zap.String("component", "health")),
		status:   make(map[string]DependencyStatus),
	}
}

// Register must be called before Start.
func (m *Monitor) Register(name string, check CheckFunc) {
	m.checks[name] = check
}

func (m *Monitor) Start() error {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&gocronLogger{logger: m.logger.Sugar()}),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()
			m.CheckNow(ctx)
		}),
		gocron.WithName("dependency-check"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule dependency check: %w", err)
	}

	s.Start()
	m.scheduler = s
	m.logger.Info("Dependency monitor started",
		zap.Duration("interval", m.interval),
		zap.Strings("dependencies", m.names()),
	)
	return nil
}

func (m *Monitor) Shutdown() error {
	if m.scheduler == nil {
		return nil
	}
	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}

// CheckNow runs every check once and records the results.
func (m *Monitor) CheckNow(ctx context.Context) {
	for _, name := range m.names() {
		err := m.checks[name](ctx)
		st := DependencyStatus{Name: name, Up: err == nil, CheckedAt: time.Now().UTC()}
		if err != nil {
			st.Error = err.Error()
		}

		m.mu.Lock()
		prev, seen := m.status[name]
		m.status[name] = st
		m.mu.Unlock()

		m.metrics.SetDependencyUp(name, st.Up)
		if !seen || prev.Up != st.Up {
			if st.Up {
				m.logger.Info("Dependency is up", zap.String("dependency", name))
			} else {
				m.logger.Warn("Dependency is down", zap.String("dependency", name), zap.Error(err))
			}
		}
	}
}

// Status returns the latest results sorted by name, and whether every
// dependency was up. Dependencies not yet checked count as down.
func (m *Monitor) Status() ([]DependencyStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ready := true
	out := make([]DependencyStatus, 0, len(m.checks))
	for _, name := range m.names() {
		st, ok := m.status[name]
		if !ok {
			st = DependencyStatus{Name: name, Error: "not checked yet"}
		}
		ready = ready && st.Up
		out = append(out, st)
	}
	return out, ready
}

func (m *Monitor) names() []string {
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type gocronLogger struct {
	logger *zap.SugaredLogger
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.logger.Debugw(msg, args...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.logger.Infow(msg, args...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.logger.Warnw(msg, args...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.logger.Errorw(msg, args...) }
