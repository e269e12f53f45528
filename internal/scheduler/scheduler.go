// Package scheduler reruns watched topics on an interval, archives every run
// and broadcasts a digest of it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/elonfeng/sentradar/internal/logging"
	"github.com/elonfeng/sentradar/internal/store"
	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/alert"
	"github.com/elonfeng/sentradar/pkg/pipeline"
	"github.com/elonfeng/sentradar/pkg/session"
	"github.com/elonfeng/sentradar/pkg/source"
)

// DefaultMinShift is the smallest move in positive share, in percentage points,
// reported as a shift in the digest.
const DefaultMinShift = 5.0

// Job is one watched topic.
type Job struct {
	Topic   string
	Source  source.Source
	Queries []source.Query
	Target  int
}

// Outcome is what one job run produced.
type Outcome struct {
	Run      *store.Run
	Empty    bool
	Notified bool
}

// Scheduler runs periodic collection, archiving and alerting.
type Scheduler struct {
	runner   *pipeline.Runner
	archive  store.Store
	alertMgr *alert.Manager
	jobs     []Job
	interval time.Duration
	minShift float64
	log      logging.Logger
	now      func() time.Time
}

// New creates a new scheduler. archive and alertMgr may be nil.
func New(
	runner *pipeline.Runner,
	archive store.Store,
	alertMgr *alert.Manager,
	jobs []Job,
	interval time.Duration,
	log logging.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Scheduler{
		runner:   runner,
		archive:  archive,
		alertMgr: alertMgr,
		jobs:     jobs,
		interval: interval,
		minShift: DefaultMinShift,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithFields(logging.Fields{"jobs": len(s.jobs), "interval": s.interval}).Info("scheduler: initial run")
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every job in order. Job failures are logged and joined; one
// failing job does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) ([]Outcome, error) {
	var (
		outcomes []Outcome
		errs     []error
	)
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		out, err := s.runJob(ctx, job)
		if err != nil {
			s.log.WithError(err).WithField("topic", job.Topic).Error("scheduler: job failed")
			errs = append(errs, fmt.Errorf("%s: %w", job.Topic, err))
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, errors.Join(errs...)
}

func (s *Scheduler) runJob(ctx context.Context, job Job) (Outcome, error) {
	started := s.now()
	sess := session.New()
	res := s.runner.Run(ctx, sess, job.Source, job.Queries, job.Target)

	st := job.Source.Name()
	metrics := source.MetricKeys(st)
	sums := sess.Summaries(metrics...)
	run := &store.Run{
		ID:         sess.ID,
		Topic:      job.Topic,
		Source:     st,
		StartedAt:  started,
		FinishedAt: s.now(),
		Warnings:   res.Warnings,
	}
	out := Outcome{Run: run, Empty: sess.Empty()}

	fields := logging.Fields{"topic": job.Topic, "source": st, "run": run.ID, "records": sess.Len()}
	if out.Empty {
		s.log.WithFields(fields).Warn("scheduler: no data collected")
	}

	var (
		errs   []error
		shifts []alert.Shift
	)
	if s.archive != nil {
		if err := s.archive.SaveRun(ctx, run, sess.AllRecords(), sums); err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		} else {
			shifts = s.shifts(ctx, job.Topic, sums)
		}
	}

	if !out.Empty && s.alertMgr.HasNotifiers() {
		n := alert.NewDigest(job.Topic, string(st), run.ID, sess.Overall(metrics...), sums, res.Warnings)
		n.Shifts = shifts
		if err := s.alertMgr.Broadcast(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("alert: %w", err))
		} else {
			out.Notified = true
		}
	}

	s.log.WithFields(fields).Info("scheduler: job finished")
	return out, errors.Join(errs...)
}

// shifts compares each bucket with its previous archived run of the same topic.
func (s *Scheduler) shifts(ctx context.Context, topic string, sums []aggregate.Summary) []alert.Shift {
	var out []alert.Shift
	for _, sum := range sums {
		points, err := s.archive.BucketHistory(ctx, topic, sum.Bucket, 2)
		if err != nil {
			s.log.WithError(err).WithField("bucket", sum.Bucket).Warn("scheduler: bucket history")
			continue
		}
		if len(points) < 2 {
			continue
		}
		shift := alert.Shift{Bucket: sum.Bucket, Previous: points[0].PositivePct, Current: points[1].PositivePct}
		if math.Abs(shift.Delta()) >= s.minShift {
			out = append(out, shift)
		}
	}
	return out
}
