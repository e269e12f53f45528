// Package pipeline runs the fetch, score and merge cycle over a list of buckets.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/sentradar/internal/logging"
	"github.com/elonfeng/sentradar/internal/metrics"
	"github.com/elonfeng/sentradar/pkg/fetch"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/session"
	"github.com/elonfeng/sentradar/pkg/source"
)

// DefaultBucketDelay separates consecutive buckets in sequential mode.
const DefaultBucketDelay = 500 * time.Millisecond

// Warning is a bucket-level problem that did not stop the run.
type Warning = session.Warning

// Runner fetches buckets one after another, or with bounded concurrency when
// Concurrency > 1.
type Runner struct {
	Strategy    sentiment.Strategy
	PageDelay   time.Duration
	BucketDelay time.Duration
	Concurrency int
	Sleep       fetch.SleepFunc
	Log         logging.Logger
	Metrics     *metrics.Metrics
}

// BucketResult is what one bucket produced.
type BucketResult struct {
	Query   source.Query
	Records []sentiment.ScoredRecord
	Pages   int
	Partial bool
	Err     error
}

// RunResult lists per-bucket outcomes in input order. Added counts records that
// were new to the session.
type RunResult struct {
	Buckets  []BucketResult
	Warnings []Warning
	Added    int
}

// Total is the number of records fetched across buckets, before session dedup.
func (r RunResult) Total() int {
	n := 0
	for _, b := range r.Buckets {
		n += len(b.Records)
	}
	return n
}

// withDefaults returns a copy with unset collaborators filled in. The receiver
// is shared between concurrent runs and is never written.
func (r *Runner) withDefaults() *Runner {
	c := *r
	if c.Strategy == nil {
		c.Strategy = sentiment.NewLexicon()
	}
	if c.Sleep == nil {
		c.Sleep = fetch.Sleep
	}
	if c.Log == nil {
		c.Log = logging.Discard()
	}
	return &c
}

// Run fetches every query from src, scores the records and merges them into sess.
// A failing bucket becomes a warning; it never aborts the run.
func (r *Runner) Run(ctx context.Context, sess *session.Context, src source.Source, queries []source.Query, target int) RunResult {
	r = r.withDefaults()

	var results []BucketResult
	if r.Concurrency > 1 {
		results = r.runConcurrent(ctx, src, queries, target)
	} else {
		results = r.runSequential(ctx, src, queries, target)
	}

	out := RunResult{Buckets: results}
	for _, br := range results {
		out.Added += sess.Merge(br.Records)
		if w, ok := warningFor(src.Name(), br); ok {
			out.Warnings = append(out.Warnings, w)
		}
	}
	sess.AddWarnings(out.Warnings...)

	r.Log.WithFields(logging.Fields{
		"source":   src.Name(),
		"buckets":  len(queries),
		"fetched":  out.Total(),
		"added":    out.Added,
		"warnings": len(out.Warnings),
	}).Info("run finished")
	return out
}

func (r *Runner) runSequential(ctx context.Context, src source.Source, queries []source.Query, target int) []BucketResult {
	results := make([]BucketResult, 0, len(queries))
	for i, q := range queries {
		if i > 0 {
			if err := r.Sleep(ctx, r.BucketDelay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.fetchBucket(ctx, src, q, target))
	}
	return results
}

// runConcurrent gives each bucket its own slot so results keep input order no
// matter which worker finishes first.
func (r *Runner) runConcurrent(ctx context.Context, src source.Source, queries []source.Query, target int) []BucketResult {
	slots := make([]BucketResult, len(queries))
	ran := make([]bool, len(queries))

	var g errgroup.Group
	g.SetLimit(r.Concurrency)
	for i, q := range queries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			slots[i] = r.fetchBucket(ctx, src, q, target)
			ran[i] = true
			return nil
		})
	}
	_ = g.Wait()

	results := make([]BucketResult, 0, len(queries))
	for i := range slots {
		if ran[i] {
			results = append(results, slots[i])
		}
	}
	return results
}

func (r *Runner) fetchBucket(ctx context.Context, src source.Source, q source.Query, target int) BucketResult {
	entry := r.Log.WithFields(logging.Fields{"source": src.Name(), "bucket": q.Bucket})
	entry.Debug("fetching bucket")

	res := source.Paginate(ctx, src, q, target, source.PageOptions{
		Delay: r.PageDelay,
		Sleep: r.Sleep,
		Log:   r.Log,
	})

	scored := sentiment.Score(r.Strategy, res.Items)
	for _, s := range scored {
		r.Metrics.ObserveRecord(string(s.Source), string(s.Label))
	}
	if res.Err != nil {
		r.Metrics.ObserveBucketFailure(string(src.Name()))
		entry.WithError(res.Err).WithField("collected", len(scored)).Warn("bucket incomplete")
	} else {
		entry.WithFields(logging.Fields{"collected": len(scored), "pages": res.Pages}).Info("bucket fetched")
	}

	return BucketResult{
		Query:   q,
		Records: scored,
		Pages:   res.Pages,
		Partial: res.Partial,
		Err:     res.Err,
	}
}

func warningFor(st source.SourceType, br BucketResult) (Warning, bool) {
	switch {
	case br.Err != nil && len(br.Records) > 0:
		return Warning{Source: st, Bucket: br.Query.Bucket,
			Message: fmt.Sprintf("stopped after %d records: %v", len(br.Records), br.Err)}, true
	case br.Err != nil:
		return Warning{Source: st, Bucket: br.Query.Bucket, Message: br.Err.Error()}, true
	case len(br.Records) == 0:
		return Warning{Source: st, Bucket: br.Query.Bucket, Message: "no records found"}, true
	}
	return Warning{}, false
}
