package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/session"
	"github.com/elonfeng/sentradar/pkg/source"
)

// Run is one archived collection run.
type Run struct {
	ID           string            `db:"id" json:"id"`
	Topic        string            `db:"topic" json:"topic"`
	Source       source.SourceType `db:"source" json:"source"`
	StartedAt    time.Time         `db:"started_at" json:"started_at"`
	FinishedAt   time.Time         `db:"finished_at" json:"finished_at"`
	RecordCount  int               `db:"record_count" json:"record_count"`
	WarningCount int               `db:"warning_count" json:"warning_count"`
	WarningsJSON string            `db:"warnings" json:"-"`
	Warnings     []session.Warning `db:"-" json:"warnings,omitempty"`
}

// HistoryPoint is a bucket's standing in one run.
type HistoryPoint struct {
	RunID       string    `db:"run_id" json:"run_id"`
	StartedAt   time.Time `db:"started_at" json:"started_at"`
	Count       int       `db:"count" json:"count"`
	PositivePct float64   `db:"positive_pct" json:"positive_pct"`
	AvgScore    float64   `db:"avg_score" json:"avg_score"`
}

// ListOpts controls run listing.
type ListOpts struct {
	Topic  string
	Source source.SourceType
	Limit  int
}

// Store is the run archive interface.
type Store interface {
	SaveRun(ctx context.Context, run *Run, recs []sentiment.ScoredRecord, sums []aggregate.Summary) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, opts ListOpts) ([]Run, error)
	RunSummaries(ctx context.Context, id string) ([]aggregate.Summary, error)
	RunRecords(ctx context.Context, id string) ([]sentiment.ScoredRecord, error)
	BucketHistory(ctx context.Context, topic, bucket string, limit int) ([]HistoryPoint, error)
	Close() error
}

type recordRow struct {
	RunID     string  `db:"run_id"`
	Source    string  `db:"source"`
	RecordID  string  `db:"record_id"`
	Bucket    string  `db:"bucket"`
	Label     string  `db:"label"`
	Score     float64 `db:"score"`
	Scored    bool    `db:"scored"`
	Author    string  `db:"author"`
	Title     string  `db:"title"`
	Text      string  `db:"text"`
	URL       string  `db:"url"`
	CreatedAt int64   `db:"created_at"`
	Metrics   string  `db:"metrics"`
}

type summaryRow struct {
	RunID       string  `db:"run_id"`
	Position    int     `db:"position"`
	Bucket      string  `db:"bucket"`
	Count       int     `db:"count"`
	Positive    int     `db:"positive"`
	Neutral     int     `db:"neutral"`
	Negative    int     `db:"negative"`
	PositivePct float64 `db:"positive_pct"`
	AvgScore    float64 `db:"avg_score"`
	Means       string  `db:"means"`
	Medians     string  `db:"medians"`
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun writes the run, its records and its summaries in one transaction.
// Summaries keep their ranking position.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run, recs []sentiment.ScoredRecord, sums []aggregate.Summary) error {
	if run.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	warnings := run.Warnings
	if warnings == nil {
		warnings = []session.Warning{}
	}
	warningsJSON, _ := json.Marshal(warnings)
	run.WarningsJSON = string(warningsJSON)
	run.RecordCount = len(recs)
	run.WarningCount = len(run.Warnings)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, topic, source, started_at, finished_at, record_count, warning_count, warnings)
		VALUES (:id, :topic, :source, :started_at, :finished_at, :record_count, :warning_count, :warnings)
	`, run)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for _, r := range recs {
		metricsJSON, _ := json.Marshal(r.Metrics)
		_, err := tx.NamedExecContext(ctx, `
			INSERT OR IGNORE INTO records (run_id, source, record_id, bucket, label, score, scored, author, title, text, url, created_at, metrics)
			VALUES (:run_id, :source, :record_id, :bucket, :label, :score, :scored, :author, :title, :text, :url, :created_at, :metrics)
		`, recordRow{
			RunID:     run.ID,
			Source:    string(r.Source),
			RecordID:  r.ID,
			Bucket:    r.Bucket,
			Label:     string(r.Label),
			Score:     r.Score,
			Scored:    r.Scored,
			Author:    r.Author,
			Title:     r.Title,
			Text:      r.Text,
			URL:       r.URL,
			CreatedAt: r.CreatedAt,
			Metrics:   string(metricsJSON),
		})
		if err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	for i, sum := range sums {
		meansJSON, _ := json.Marshal(sum.Means)
		mediansJSON, _ := json.Marshal(sum.Medians)
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO summaries (run_id, position, bucket, count, positive, neutral, negative, positive_pct, avg_score, means, medians)
			VALUES (:run_id, :position, :bucket, :count, :positive, :neutral, :negative, :positive_pct, :avg_score, :means, :medians)
		`, summaryRow{
			RunID:       run.ID,
			Position:    i,
			Bucket:      sum.Bucket,
			Count:       sum.Count,
			Positive:    sum.PositiveCount,
			Neutral:     sum.NeutralCount,
			Negative:    sum.NegativeCount,
			PositivePct: sum.PositivePct,
			AvgScore:    sum.AvgScore,
			Means:       string(meansJSON),
			Medians:     string(mediansJSON),
		})
		if err != nil {
			return fmt.Errorf("insert summary %s: %w", sum.Bucket, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := s.db.GetContext(ctx, &run, "SELECT * FROM runs WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	json.Unmarshal([]byte(run.WarningsJSON), &run.Warnings)
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOpts) ([]Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q := sq.Select("*").From("runs").OrderBy("started_at DESC").Limit(uint64(limit))
	if opts.Topic != "" {
		q = q.Where(sq.Eq{"topic": opts.Topic})
	}
	if opts.Source != "" {
		q = q.Where(sq.Eq{"source": opts.Source})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list runs query: %w", err)
	}

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for i := range runs {
		json.Unmarshal([]byte(runs[i].WarningsJSON), &runs[i].Warnings)
	}
	return runs, nil
}

func (s *SQLiteStore) RunSummaries(ctx context.Context, id string) ([]aggregate.Summary, error) {
	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM summaries WHERE run_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("run summaries %s: %w", id, err)
	}
	sums := make([]aggregate.Summary, 0, len(rows))
	for _, row := range rows {
		sum := aggregate.Summary{
			Bucket:        row.Bucket,
			Count:         row.Count,
			PositiveCount: row.Positive,
			NeutralCount:  row.Neutral,
			NegativeCount: row.Negative,
			PositivePct:   row.PositivePct,
			AvgScore:      row.AvgScore,
		}
		json.Unmarshal([]byte(row.Means), &sum.Means)
		json.Unmarshal([]byte(row.Medians), &sum.Medians)
		sums = append(sums, sum)
	}
	return sums, nil
}

func (s *SQLiteStore) RunRecords(ctx context.Context, id string) ([]sentiment.ScoredRecord, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM records WHERE run_id = ? ORDER BY rowid", id)
	if err != nil {
		return nil, fmt.Errorf("run records %s: %w", id, err)
	}
	recs := make([]sentiment.ScoredRecord, 0, len(rows))
	for _, row := range rows {
		rec := sentiment.ScoredRecord{
			Record: source.Record{
				ID:        row.RecordID,
				Source:    source.SourceType(row.Source),
				Bucket:    row.Bucket,
				Text:      row.Text,
				Title:     row.Title,
				Author:    row.Author,
				URL:       row.URL,
				CreatedAt: row.CreatedAt,
			},
			Label:  sentiment.Label(row.Label),
			Score:  row.Score,
			Scored: row.Scored,
		}
		json.Unmarshal([]byte(row.Metrics), &rec.Metrics)
		recs = append(recs, rec)
	}
	return recs, nil
}

// BucketHistory returns a bucket's summaries across the most recent runs of a
// topic, oldest first.
func (s *SQLiteStore) BucketHistory(ctx context.Context, topic, bucket string, limit int) ([]HistoryPoint, error) {
	if limit <= 0 {
		limit = 20
	}
	var points []HistoryPoint
	err := s.db.SelectContext(ctx, &points, `
		SELECT s.run_id, r.started_at, s.count, s.positive_pct, s.avg_score
		FROM summaries s JOIN runs r ON r.id = s.run_id
		WHERE r.topic = ? AND s.bucket = ?
		ORDER BY r.started_at DESC
		LIMIT ?
	`, topic, bucket, limit)
	if err != nil {
		return nil, fmt.Errorf("bucket history %s/%s: %w", topic, bucket, err)
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}
