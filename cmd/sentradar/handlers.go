package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/elonfeng/sentradar/internal/config"
	"github.com/elonfeng/sentradar/internal/logging"
	"github.com/elonfeng/sentradar/internal/metrics"
	"github.com/elonfeng/sentradar/internal/scheduler"
	"github.com/elonfeng/sentradar/internal/store"
	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/alert"
	"github.com/elonfeng/sentradar/pkg/fetch"
	"github.com/elonfeng/sentradar/pkg/keywords"
	"github.com/elonfeng/sentradar/pkg/pipeline"
	"github.com/elonfeng/sentradar/pkg/report"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/server"
	"github.com/elonfeng/sentradar/pkg/session"
	"github.com/elonfeng/sentradar/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("sentradar.yaml"); err == nil {
			path = "sentradar.yaml"
		}
	}
	cfg, err := config.Load(path, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

func buildClient(cfg *config.Config, log logging.Logger, m *metrics.Metrics) *fetch.Client {
	return fetch.New(fetch.Config{
		Timeout:   cfg.HTTP.ParseTimeout(),
		Attempts:  cfg.HTTP.Attempts,
		Backoff:   cfg.HTTP.ParseBackoff(),
		UserAgent: cfg.HTTP.UserAgent,
	}, fetch.WithLogger(log), fetch.WithMetrics(m))
}

func endpoints(cfg *config.Config) source.Endpoints {
	return source.Endpoints{
		RedditURL:    cfg.Sources.Reddit.BaseURL,
		SteamURL:     cfg.Sources.Steam.BaseURL,
		SteamNewsURL: cfg.Sources.Steam.NewsURL,
		XURL:         cfg.Sources.X.BaseURL,
		XToken:       cfg.Sources.X.BearerToken,
		NitterURL:    cfg.Sources.Nitter.BaseURL,
	}
}

func buildRunner(cfg *config.Config, strategy string, log logging.Logger, m *metrics.Metrics) (*pipeline.Runner, error) {
	if strategy == "" {
		strategy = cfg.Sentiment.Strategy
	}
	s, err := sentiment.New(strategy)
	if err != nil {
		return nil, err
	}
	return &pipeline.Runner{
		Strategy:    s,
		PageDelay:   cfg.Pagination.ParsePageDelay(),
		BucketDelay: cfg.Pagination.ParseBucketDelay(),
		Concurrency: cfg.Pagination.Concurrency,
		Log:         log,
		Metrics:     m,
	}, nil
}

// applySourceDefaults fills query options the caller left empty from config.
func applySourceDefaults(cfg *config.Config, st source.SourceType, q *source.Query) {
	switch st {
	case source.SourceReddit:
		if q.Sort == "" {
			q.Sort = cfg.Sources.Reddit.Sort
		}
		if q.TimeFilter == "" {
			q.TimeFilter = cfg.Sources.Reddit.TimeFilter
		}
	case source.SourceSteam:
		if q.Lang == "" {
			q.Lang = cfg.Sources.Steam.Lang
		}
	case source.SourceX:
		if q.Lang == "" {
			q.Lang = cfg.Sources.X.Lang
		}
		q.ExcludeReplies = q.ExcludeReplies || cfg.Sources.X.ExcludeReplies
		q.ExcludeRetweets = q.ExcludeRetweets || cfg.Sources.X.ExcludeRetweets
	}
}

func buildQueries(cfg *config.Config, st source.SourceType, specs []string, tmpl source.Query) ([]source.Query, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no buckets given")
	}
	queries := make([]source.Query, 0, len(specs))
	for _, spec := range specs {
		q, err := source.ParseQuery(spec)
		if err != nil {
			return nil, err
		}
		q.Sort = tmpl.Sort
		q.TimeFilter = tmpl.TimeFilter
		q.Lang = tmpl.Lang
		q.ExcludeReplies = tmpl.ExcludeReplies
		q.ExcludeRetweets = tmpl.ExcludeRetweets
		applySourceDefaults(cfg, st, &q)
		queries = append(queries, q)
	}
	return queries, nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func buildGenerator(cfg *config.Config, log logging.Logger) *report.Generator {
	return report.NewGenerator(report.GeneratorConfig{
		Provider:  cfg.Report.Provider,
		Model:     cfg.Report.Model,
		APIKey:    cfg.Report.APIKey,
		BaseURL:   cfg.Report.BaseURL,
		MaxTokens: cfg.Report.MaxTokens,
	}, log)
}

func defaultFilter(cfg *config.Config, include, exclude []string) session.Filter {
	return session.Filter{
		Include: append(append([]string(nil), cfg.Filter.Include...), include...),
		Exclude: append(append([]string(nil), cfg.Filter.Exclude...), exclude...),
	}
}

func bucketNames(queries []source.Query) string {
	names := make([]string, len(queries))
	for i, q := range queries {
		names[i] = q.Bucket
	}
	return strings.Join(names, ", ")
}

func runAnalyze(ctx context.Context, opts analyzeOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	st, err := source.ParseSourceType(opts.source)
	if err != nil {
		return err
	}
	src, err := source.New(st, buildClient(cfg, log, nil), endpoints(cfg))
	if err != nil {
		return err
	}
	queries, err := buildQueries(cfg, st, opts.buckets, source.Query{
		Sort:            opts.sort,
		TimeFilter:      opts.timeFilter,
		Lang:            opts.lang,
		ExcludeReplies:  opts.excludeReplies,
		ExcludeRetweets: opts.excludeRetweets,
	})
	if err != nil {
		return err
	}
	runner, err := buildRunner(cfg, opts.strategy, log, nil)
	if err != nil {
		return err
	}
	var interval aggregate.Interval
	if opts.timeline != "" {
		if interval, err = aggregate.ParseInterval(opts.timeline); err != nil {
			return err
		}
	}
	target := opts.target
	if target <= 0 {
		target = cfg.Pagination.Target
	}
	topic := opts.topic
	if topic == "" {
		topic = bucketNames(queries)
	}

	sess := session.New()
	sess.SetFilter(defaultFilter(cfg, opts.include, opts.exclude))
	started := time.Now().UTC()
	res := runner.Run(ctx, sess, src, queries, target)

	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", w.Bucket, w.Message)
	}
	if sess.Empty() {
		fmt.Println("no data collected")
		return nil
	}

	metricKeys := source.MetricKeys(st)
	sums := sess.Summaries(metricKeys...)
	overall := sess.Overall(metricKeys...)
	ext := keywords.ForSource(string(st))
	posTerms := sess.Keywords(ext, sentiment.Positive, opts.keywords)
	negTerms := sess.Keywords(ext, sentiment.Negative, opts.keywords)
	var timeline []aggregate.Point
	if interval != "" {
		timeline = sess.Timeline(interval)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		out := map[string]any{
			"session":           sess.ID,
			"topic":             topic,
			"source":            st,
			"overall":           overall,
			"buckets":           sums,
			"warnings":          res.Warnings,
			"positive_keywords": posTerms,
			"negative_keywords": negTerms,
		}
		if interval != "" {
			out["timeline"] = timeline
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		if err := printSummaries(sums, &overall); err != nil {
			return err
		}
		fmt.Printf("\npositive terms: %s\n", strings.Join(keywords.Strings(posTerms), ", "))
		fmt.Printf("negative terms: %s\n", strings.Join(keywords.Strings(negTerms), ", "))
		if interval != "" {
			fmt.Println()
			if err := printTimeline(os.Stdout, interval, timeline); err != nil {
				return err
			}
		}
	}

	if opts.csvPath != "" {
		if err := writeFile(opts.csvPath, func(f *os.File) error {
			return report.WriteCSV(f, sess.Records(), metricKeys)
		}); err != nil {
			return err
		}
	}

	brief := report.BuildBrief(topic, sess.Records(), ext)
	var narrative string
	if opts.report {
		narrative, err = generateReport(ctx, cfg, log, brief, opts.focus, opts.tone)
		if err != nil {
			return err
		}
		if opts.markdownPath == "" && opts.htmlPath == "" {
			fmt.Printf("\n%s\n", narrative)
		}
	}
	if opts.markdownPath != "" {
		if err := writeFile(opts.markdownPath, func(f *os.File) error {
			return report.WriteMarkdown(f, brief, narrative)
		}); err != nil {
			return err
		}
	}
	if opts.htmlPath != "" {
		var md bytes.Buffer
		if err := report.WriteMarkdown(&md, brief, narrative); err != nil {
			return err
		}
		if err := writeFile(opts.htmlPath, func(f *os.File) error {
			return report.WriteHTML(f, "Sentiment report: "+topic, md.String())
		}); err != nil {
			return err
		}
	}

	if opts.archive {
		archive, err := store.New(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer archive.Close()
		run := &store.Run{
			ID:         sess.ID,
			Topic:      topic,
			Source:     st,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			Warnings:   res.Warnings,
		}
		if err := archive.SaveRun(ctx, run, sess.AllRecords(), sums); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "archived run %s to %s\n", run.ID, cfg.Archive.Path)
	}
	return nil
}

func generateReport(ctx context.Context, cfg *config.Config, log logging.Logger, brief report.Brief, focusName, toneName string) (string, error) {
	if focusName == "" {
		focusName = cfg.Report.Focus
	}
	if toneName == "" {
		toneName = cfg.Report.Tone
	}
	focus, err := report.ParseFocus(focusName)
	if err != nil {
		return "", err
	}
	tone, err := report.ParseTone(toneName)
	if err != nil {
		return "", err
	}
	prompt, err := report.BuildPrompt(brief, focus, tone)
	if err != nil {
		return "", err
	}
	gen := buildGenerator(cfg, log)
	if !gen.Configured() {
		return "", fmt.Errorf("%w: set ANTHROPIC_API_KEY or OPENAI_API_KEY", report.ErrNoAPIKey)
	}
	return gen.Generate(ctx, prompt)
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}

// printSummaries writes one row per bucket and, when given, a trailing overall row.
func printSummaries(sums []aggregate.Summary, overall *aggregate.Summary) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BUCKET\tCOUNT\tPOS\tNEU\tNEG\tPOS%\tAVG SCORE")
	row := func(s aggregate.Summary) {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f\t%+.4f\n",
			s.Bucket, s.Count, s.PositiveCount, s.NeutralCount, s.NegativeCount, s.PositivePct, s.AvgScore)
	}
	for _, s := range sums {
		row(s)
	}
	if overall != nil {
		row(*overall)
	}
	return w.Flush()
}

func printTimeline(out io.Writer, iv aggregate.Interval, points []aggregate.Point) error {
	if len(points) == 0 {
		_, err := fmt.Fprintln(out, "no timestamped records for a timeline")
		return err
	}
	layout := "2006-01-02"
	if iv == aggregate.Month {
		layout = "2006-01"
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BUCKET\t"+strings.ToUpper(string(iv))+"\tCOUNT\tPOS%\tAVG SCORE")
	for _, p := range points {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%+.4f\n", p.Bucket, p.Start.Format(layout), p.Count, p.PositivePct, p.AvgScore)
	}
	return w.Flush()
}

func runEvents(ctx context.Context, appID int, game string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	steam := source.NewSteam(buildClient(cfg, log, nil), cfg.Sources.Steam.BaseURL).WithNewsURL(cfg.Sources.Steam.NewsURL)
	events, err := steam.Events(ctx, appID, game)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	return printEvents(os.Stdout, events)
}

func printEvents(out io.Writer, events []source.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(out, "no update, DLC or release news found")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTYPE\tTITLE\tSPLIT AT")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", time.Unix(ev.At, 0).UTC().Format("Jan 02, 2006"), ev.Type, ev.Title, ev.At)
	}
	return w.Flush()
}

func runDiscover(ctx context.Context, kind, term string, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	client := buildClient(cfg, log, nil)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch strings.ToLower(kind) {
	case "reddit":
		subs, err := source.NewReddit(client, cfg.Sources.Reddit.BaseURL).SearchSubreddits(ctx, term, limit)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			fmt.Println("no subreddits found")
			return nil
		}
		fmt.Fprintln(w, "SUBREDDIT\tSUBSCRIBERS\tTITLE")
		for _, s := range subs {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.Name, s.Subscribers, s.Title)
		}
	case "steam":
		games, err := source.NewSteam(client, cfg.Sources.Steam.BaseURL).LookupGames(ctx, term, limit)
		if err != nil {
			return err
		}
		if len(games) == 0 {
			fmt.Println("no games found")
			return nil
		}
		fmt.Fprintln(w, "APP ID\tNAME\tBUCKET")
		for _, g := range games {
			fmt.Fprintf(w, "%d\t%s\t%s=%d\n", g.AppID, g.Name, g.Name, g.AppID)
		}
	default:
		return fmt.Errorf("discover supports reddit and steam, got %q", kind)
	}
	return w.Flush()
}

func runServe(ctx context.Context, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	if port == 0 {
		port = cfg.Server.Port
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	runner, err := buildRunner(cfg, "", log, m)
	if err != nil {
		return err
	}
	client := buildClient(cfg, log, m)
	ep := endpoints(cfg)

	var archive store.Store
	if cfg.Archive.Path != "" {
		db, err := store.New(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer db.Close()
		archive = db
	}

	sessions := session.NewStore(cfg.Server.ParseSessionTTL())
	go sessions.Janitor(ctx, time.Minute)

	srv := server.New(server.Options{
		Port:     port,
		Sessions: sessions,
		Runner:   runner,
		Sources: func(st source.SourceType) (source.Source, error) {
			return source.New(st, client, ep)
		},
		Generator:     buildGenerator(cfg, log),
		Archive:       archive,
		Gatherer:      reg,
		DefaultFilter: defaultFilter(cfg, nil, nil),
		Target:        cfg.Pagination.Target,
		Log:           log,
	})

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func buildJobs(cfg *config.Config, client *fetch.Client) ([]scheduler.Job, error) {
	ep := endpoints(cfg)
	jobs := make([]scheduler.Job, 0, len(cfg.Watch.Jobs))
	for i, jc := range cfg.Watch.Jobs {
		st, err := source.ParseSourceType(jc.Source)
		if err != nil {
			return nil, fmt.Errorf("watch.jobs[%d]: %w", i, err)
		}
		src, err := source.New(st, client, ep)
		if err != nil {
			return nil, fmt.Errorf("watch.jobs[%d]: %w", i, err)
		}
		queries, err := buildQueries(cfg, st, jc.Buckets, source.Query{})
		if err != nil {
			return nil, fmt.Errorf("watch.jobs[%d]: %w", i, err)
		}
		target := jc.Target
		if target <= 0 {
			target = cfg.Pagination.Target
		}
		topic := jc.Topic
		if topic == "" {
			topic = bucketNames(queries)
		}
		jobs = append(jobs, scheduler.Job{Topic: topic, Source: src, Queries: queries, Target: target})
	}
	return jobs, nil
}

func runWatch(ctx context.Context, once bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	if len(cfg.Watch.Jobs) == 0 {
		return fmt.Errorf("no watch jobs configured (watch.jobs)")
	}

	jobs, err := buildJobs(cfg, buildClient(cfg, log, nil))
	if err != nil {
		return err
	}
	runner, err := buildRunner(cfg, "", log, nil)
	if err != nil {
		return err
	}
	archive, err := store.New(cfg.Archive.Path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	alertMgr := buildAlertManager(cfg)
	if !alertMgr.HasNotifiers() {
		log.Warn("no alert destinations configured; runs are archived only")
	}

	sched := scheduler.New(runner, archive, alertMgr, jobs, cfg.Watch.ParseInterval(), log)
	if once {
		outcomes, err := sched.RunOnce(ctx)
		for _, o := range outcomes {
			status := "ok"
			if o.Empty {
				status = "no data collected"
			}
			fmt.Printf("%s\t%s\t%d records\t%s\n", o.Run.ID, o.Run.Topic, o.Run.RecordCount, status)
		}
		return err
	}
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runRuns(ctx context.Context, topic, runID, bucket string, limit int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	archive, err := store.New(cfg.Archive.Path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	var data any
	switch {
	case runID != "":
		sums, err := archive.RunSummaries(ctx, runID)
		if err != nil {
			return err
		}
		if len(sums) == 0 {
			fmt.Println("no data collected")
			return nil
		}
		if !jsonOutput {
			return printSummaries(sums, nil)
		}
		data = sums
	case bucket != "":
		if topic == "" {
			return fmt.Errorf("--bucket needs --topic")
		}
		points, err := archive.BucketHistory(ctx, topic, bucket, limit)
		if err != nil {
			return err
		}
		if !jsonOutput {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tCOUNT\tPOS%\tAVG SCORE")
			for _, p := range points {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%+.4f\n", p.RunID, p.StartedAt.Format(time.RFC3339), p.Count, p.PositivePct, p.AvgScore)
			}
			return w.Flush()
		}
		data = points
	default:
		runs, err := archive.ListRuns(ctx, store.ListOpts{Topic: topic, Limit: limit})
		if err != nil {
			return err
		}
		if !jsonOutput {
			if len(runs) == 0 {
				fmt.Println("no archived runs")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tSOURCE\tRECORDS\tWARNINGS\tTOPIC")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.StartedAt.Format(time.RFC3339), r.Source, r.RecordCount, r.WarningCount, r.Topic)
			}
			return w.Flush()
		}
		data = runs
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
