// Package monitor periodically pulls the home timeline through the
// processor pipeline while credentials are available.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pauljones0/x-parser/internal/config"
	"github.com/pauljones0/x-parser/internal/processor"
	"github.com/pauljones0/x-parser/internal/xclient"
)

var (
	// ErrRunInProgress is returned when a run is requested while one is active.
	ErrRunInProgress = errors.New("monitor run already in progress")
	// ErrAlreadyRunning is returned by Start on a started monitor.
	ErrAlreadyRunning = errors.New("monitor already running")
)

const (
	defaultRunTimeout = 30 * time.Minute
	minInterval       = time.Minute

	StatusSuccess      = "success"
	StatusError        = "error"
	StatusUnauthorized = "unauthorized"
)

// Runner executes one timeline pass.
type Runner interface {
	ProcessTimeline(ctx context.Context, creds xclient.Credentials, mc config.MonitorConfig) (processor.RunResult, error)
}

// Stats accumulates run counters since the process started.
type Stats struct {
	TotalRuns      int    `json:"totalRuns"`
	TotalProcessed int    `json:"totalProcessed"`
	TotalAdded     int    `json:"totalAdded"`
	LastError      string `json:"lastError,omitempty"`
}

// Status is a point-in-time view of the monitor.
type Status struct {
	IsRunning      bool                 `json:"isRunning"`
	HasCredentials bool                 `json:"hasCredentials"`
	Interval       string               `json:"interval"`
	LastRun        *time.Time           `json:"lastRun,omitempty"`
	LastStatus     string               `json:"lastStatus,omitempty"`
	LastResult     *processor.RunResult `json:"lastResult,omitempty"`
	NextRun        *time.Time           `json:"nextRun,omitempty"`
	Stats          Stats                `json:"stats"`
}

// Monitor schedules timeline runs with a cron interval job. The zero value
// is not usable; construct with New.
type Monitor struct {
	runner     Runner
	runTimeout time.Duration
	now        func() time.Time

	runMu sync.Mutex // held for the duration of a run

	mu         sync.Mutex
	cfg        config.MonitorConfig
	creds      xclient.Credentials
	cron       *cron.Cron
	entryID    cron.EntryID
	startTimer *time.Timer
	cancel     context.CancelFunc
	runCtx     context.Context
	lastRun    time.Time
	lastStatus string
	lastResult *processor.RunResult
	stats      Stats
}

func New(runner Runner, cfg config.MonitorConfig, creds xclient.Credentials) *Monitor {
	return &Monitor{
		runner:     runner,
		runTimeout: defaultRunTimeout,
		now:        time.Now,
		cfg:        cfg,
		creds:      creds,
	}
}

// Start schedules a run every configured interval plus a first run after
// the startup delay. Scheduled runs derive their context from ctx.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return ErrAlreadyRunning
	}
	if !m.creds.Valid() {
		return xclient.ErrNoCredentials
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	entryID, err := c.AddFunc(schedule(m.cfg.Interval), func() { m.scheduledRun(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule monitor: %w", err)
	}
	c.Start()

	m.cron, m.entryID, m.cancel, m.runCtx = c, entryID, cancel, runCtx
	m.startTimer = time.AfterFunc(m.cfg.StartupDelay, func() { m.scheduledRun(runCtx) })
	slog.Info("Monitor started", "interval", m.cfg.Interval, "startup_delay", m.cfg.StartupDelay)
	return nil
}

// Stop cancels the schedule and any run in flight, then waits for the
// scheduled job to return. Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c, timer, cancel := m.cron, m.startTimer, m.cancel
	m.cron, m.startTimer, m.cancel, m.runCtx = nil, nil, nil, nil
	m.mu.Unlock()

	if c == nil {
		return
	}
	timer.Stop()
	cancel()
	<-c.Stop().Done()
	slog.Info("Monitor stopped")
}

func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cron != nil
}

// SetCredentials replaces the session used for runs.
func (m *Monitor) SetCredentials(creds xclient.Credentials) error {
	if !creds.Valid() {
		return xclient.ErrNoCredentials
	}
	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()
	return nil
}

// ClearCredentials forgets the session and stops the schedule, since no
// run could succeed without one.
func (m *Monitor) ClearCredentials() {
	m.mu.Lock()
	m.creds = xclient.Credentials{}
	m.mu.Unlock()
	m.Stop()
}

// Credentials returns the current session, which may be empty.
func (m *Monitor) Credentials() xclient.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

// UpdateConfig validates and applies new tuning. A changed interval
// reschedules the running job.
func (m *Monitor) UpdateConfig(mc config.MonitorConfig) error {
	if mc.Interval < minInterval {
		return fmt.Errorf("invalid interval %s: must be at least %s", mc.Interval, minInterval)
	}
	if mc.MinRelevance < 0 || mc.MinRelevance > 1 {
		return fmt.Errorf("invalid min relevance %v: must be between 0 and 1", mc.MinRelevance)
	}
	if mc.MaxTweetsPerCheck < 1 || mc.MaxTweetsPerCheck > 200 {
		return fmt.Errorf("invalid max tweets per check %d: must be between 1 and 200", mc.MaxTweetsPerCheck)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	changed := mc.Interval != m.cfg.Interval
	m.cfg = mc
	if !changed || m.cron == nil {
		return nil
	}

	m.cron.Remove(m.entryID)
	runCtx := m.runCtx
	entryID, err := m.cron.AddFunc(schedule(mc.Interval), func() { m.scheduledRun(runCtx) })
	if err != nil {
		return fmt.Errorf("failed to reschedule monitor: %w", err)
	}
	m.entryID = entryID
	slog.Info("Monitor rescheduled", "interval", mc.Interval)
	return nil
}

// Config returns the current tuning.
func (m *Monitor) Config() config.MonitorConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func schedule(interval time.Duration) string {
	return "@every " + interval.String()
}

func (m *Monitor) scheduledRun(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.runTimeout)
	defer cancel()

	start := time.Now()
	res, err := m.RunNow(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		slog.Info("Skipping scheduled run, previous run still active")
	case err != nil:
		slog.Error("Monitor run failed", "error", err, "added", res.Added)
	default:
		slog.Info("Monitor run completed", "duration", time.Since(start), "added", res.Added)
	}
}

// RunNow performs one run immediately. Only one run may be active at a time.
func (m *Monitor) RunNow(ctx context.Context) (processor.RunResult, error) {
	if !m.runMu.TryLock() {
		return processor.RunResult{}, ErrRunInProgress
	}
	defer m.runMu.Unlock()

	m.mu.Lock()
	creds, cfg := m.creds, m.cfg
	m.mu.Unlock()
	if !creds.Valid() {
		return processor.RunResult{}, xclient.ErrNoCredentials
	}

	res, err := m.runner.ProcessTimeline(ctx, creds, cfg)
	m.record(res, err)

	if errors.Is(err, xclient.ErrUnauthorized) {
		slog.Warn("Session rejected, clearing credentials")
		m.mu.Lock()
		m.creds = xclient.Credentials{}
		m.mu.Unlock()
	}
	return res, err
}

func (m *Monitor) record(res processor.RunResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRun = m.now()
	m.lastResult = &res
	m.stats.TotalRuns++
	m.stats.TotalProcessed += res.Checked
	m.stats.TotalAdded += res.Added
	switch {
	case err == nil:
		m.lastStatus = StatusSuccess
	case errors.Is(err, xclient.ErrUnauthorized):
		m.lastStatus = StatusUnauthorized
		m.stats.LastError = err.Error()
	default:
		m.lastStatus = StatusError
		m.stats.LastError = err.Error()
	}
}

// Status reports the schedule, the last run and the counters.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		IsRunning:      m.cron != nil,
		HasCredentials: m.creds.Valid(),
		Interval:       m.cfg.Interval.String(),
		LastStatus:     m.lastStatus,
		Stats:          m.stats,
	}
	if !m.lastRun.IsZero() {
		last := m.lastRun
		st.LastRun = &last
	}
	if m.lastResult != nil {
		res := *m.lastResult
		st.LastResult = &res
	}
	if m.cron != nil {
		if next := m.cron.Entry(m.entryID).Next; !next.IsZero() {
			st.NextRun = &next
		}
	}
	return st
}
