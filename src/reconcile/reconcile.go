// Package reconcile repairs event counters that drifted from the bucket
// after an upload or delete stopped halfway.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photomatch/src/app"
	"photomatch/src/catalog"
	"photomatch/src/events"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Report summarizes one pass over all events.
type Report struct {
	Checked   int              `json:"checked"`
	Corrected []string         `json:"corrected"`
	Failed    map[string]error `json:"-"`
}

type Reconciler struct {
	events  *events.Service
	catalog *catalog.Catalog
	log     zerolog.Logger
}

func New(svc *events.Service, cat *catalog.Catalog, logger zerolog.Logger) *Reconciler {
	return &Reconciler{events: svc, catalog: cat, log: logger.With().Str("component", "reconcile").Logger()}
}

// RunOnce reconciles every event. A failing event does not stop the pass.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	list, err := r.events.List(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{Corrected: make([]string, 0), Failed: make(map[string]error)}
	for _, e := range list {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		_, changed, err := r.catalog.Reconcile(ctx, e.ID)
		if err != nil {
			r.log.Warn().Err(err).Str("event", e.ID).Msg("reconcile failed")
			report.Failed[e.ID] = err
			continue
		}
		if changed {
			report.Corrected = append(report.Corrected, e.ID)
		}
	}
	r.log.Info().Int("checked", report.Checked).Int("corrected", len(report.Corrected)).
		Int("failed", len(report.Failed)).Msg("reconcile pass done")
	if len(report.Failed) > 0 {
		errs := make([]error, 0, len(report.Failed))
		for id, err := range report.Failed {
			errs = append(errs, fmt.Errorf("event %s: %w", id, err))
		}
		return report, &app.PartialFailure{
			Committed: fmt.Sprintf("%d events", report.Checked-len(report.Failed)),
			Failed:    fmt.Sprintf("%d events", len(report.Failed)),
			Err:       errors.Join(errs...),
		}
	}
	return report, nil
}

// Scheduler runs reconcile passes on a cron schedule.
type Scheduler struct {
	*cron.Cron
}

// cronLogger adapts zerolog to the cron logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	l := cronLogger{logger.With().Str("component", "cron").Logger()}
	return &Scheduler{
		Cron: cron.New(cron.WithLogger(l), cron.WithChain(cron.SkipIfStillRunning(l))),
	}
}

// Schedule registers r to run on spec, e.g. "@every 6h" or "0 3 * * *".
func (s *Scheduler) Schedule(ctx context.Context, spec string, r *Reconciler) (cron.EntryID, error) {
	id, err := s.Cron.AddFunc(spec, func() {
		_, _ = r.RunOnce(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule reconcile %q: %w", spec, err)
	}
	return id, nil
}

// Shutdown stops the scheduler and waits up to 30 seconds for a running pass.
func (s *Scheduler) Shutdown() {
	ctx, cancel := context.WithTimeout(s.Cron.Stop(), 30*time.Second)
	defer cancel()
	<-ctx.Done()
}
