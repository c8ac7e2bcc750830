// Package monitor periodically sweeps pending jobs. Jobs are never retried
// or cancelled; the sweep only reports them.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sentinel/mpc-engine/internal/metrics"
	"github.com/sentinel/mpc-engine/internal/model"
	"github.com/sentinel/mpc-engine/internal/store"
)

// Report is the result of one sweep.
type Report struct {
	Queued    int
	Executing int
	// Stale lists pending jobs that have not changed state for longer than
	// the configured threshold.
	Stale []model.JobKey
}

// Monitor refreshes the pending-job gauges and logs stale jobs.
type Monitor struct {
	store      store.Store
	staleAfter time.Duration
	cron       *cron.Cron
	now        func() time.Time
}

func New(st store.Store, staleAfter time.Duration) *Monitor {
	return &Monitor{store: st, staleAfter: staleAfter, now: time.Now}
}

// Sweep inspects every pending job once.
func (m *Monitor) Sweep(ctx context.Context) (Report, error) {
	var r Report
	cutoff := m.now().Add(-m.staleAfter)
	for _, state := range []model.JobState{model.JobQueued, model.JobExecuting} {
		jobs, err := m.store.ListJobs(ctx, state)
		if err != nil {
			return r, err
		}
		metrics.PendingJobs.WithLabelValues(string(state)).Set(float64(len(jobs)))
		if state == model.JobQueued {
			r.Queued = len(jobs)
		} else {
			r.Executing = len(jobs)
		}
		for _, j := range jobs {
			if j.UpdatedAt.Before(cutoff) {
				r.Stale = append(r.Stale, j.Key)
				slog.Warn("job awaiting callback",
					"key", j.Key.String(),
					"state", j.State,
					"since", j.UpdatedAt,
				)
			}
		}
	}
	return r, nil
}

// Start schedules Sweep on spec (six fields, seconds first) until ctx is
// done.
func (m *Monitor) Start(ctx context.Context, spec string) error {
	logger := cronLogger{}
	m.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))
	_, err := m.cron.AddFunc(spec, func() {
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		r, err := m.Sweep(rctx)
		if err != nil {
			slog.Error("monitor sweep failed", "err", err)
			return
		}
		slog.Debug("monitor sweep", "queued", r.Queued, "executing", r.Executing, "stale", len(r.Stale))
	})
	if err != nil {
		return err
	}
	m.cron.Start()
	slog.Info("monitor started", "spec", spec, "stale_after", m.staleAfter.String())
	return nil
}

// Stop waits for a running sweep to finish.
func (m *Monitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
