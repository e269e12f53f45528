package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	envFiles []string
	logLevel string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sentradar",
		Short:        "Sentiment analytics for Reddit, Steam and X",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sentradar.yaml)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default: .env)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(analyzeCmd())
	root.AddCommand(discoverCmd())
	root.AddCommand(eventsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(runsCmd())

	return root
}

type analyzeOptions struct {
	source          string
	buckets         []string
	topic           string
	target          int
	sort            string
	timeFilter      string
	lang            string
	excludeReplies  bool
	excludeRetweets bool
	strategy        string
	include         []string
	exclude         []string
	keywords        int
	jsonOutput      bool
	csvPath         string
	markdownPath    string
	htmlPath        string
	report          bool
	focus           string
	tone            string
	archive         bool
	timeline        string
}

func analyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fetch, score and summarise one or more buckets",
		Example: `  sentradar analyze --source reddit --bucket golang --bucket "rust=borrow checker"
  sentradar analyze --source steam --bucket Hades=1145360 --target 300 --csv hades.csv
  sentradar analyze --source x --bucket "ai=gpt OR claude" --lang en --report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.source, "source", "reddit", "source: reddit, steam, x, nitter")
	f.StringArrayVar(&opts.buckets, "bucket", nil, `bucket to fetch, as "name" or "name=term" (repeatable)`)
	f.StringVar(&opts.topic, "topic", "", "topic label for reports and the archive")
	f.IntVar(&opts.target, "target", 0, "records per bucket (default: from config)")
	f.StringVar(&opts.sort, "sort", "", "reddit sort order")
	f.StringVar(&opts.timeFilter, "time", "", "reddit time filter (hour, day, week, month, year, all)")
	f.StringVar(&opts.lang, "lang", "", "language (steam review language, x lang filter)")
	f.BoolVar(&opts.excludeReplies, "exclude-replies", false, "x: drop replies")
	f.BoolVar(&opts.excludeRetweets, "exclude-retweets", false, "x: drop retweets")
	f.StringVar(&opts.strategy, "strategy", "", "sentiment strategy: lexicon or keyword")
	f.StringSliceVar(&opts.include, "include", nil, "only keep records mentioning one of these keywords")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "drop records mentioning any of these keywords")
	f.IntVar(&opts.keywords, "keywords", 15, "top keywords to print per label")
	f.BoolVar(&opts.jsonOutput, "json", false, "output summaries as JSON")
	f.StringVar(&opts.csvPath, "csv", "", "write scored records to a CSV file")
	f.StringVar(&opts.markdownPath, "markdown", "", "write a markdown report")
	f.StringVar(&opts.htmlPath, "html", "", "write an HTML report")
	f.BoolVar(&opts.report, "report", false, "generate a narrative report with the configured LLM")
	f.StringVar(&opts.focus, "focus", "", "report focus: overview, drivers, comparison, pain_points, praise")
	f.StringVar(&opts.tone, "tone", "", "report tone: analytical, executive, research")
	f.BoolVar(&opts.archive, "archive", false, "save the run to the SQLite archive")
	f.StringVar(&opts.timeline, "timeline", "", "also summarise per period: day, week or month")
	cmd.MarkFlagRequired("bucket")
	return cmd
}

func discoverCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:       "discover <reddit|steam> <term>",
		Short:     "Find subreddits or Steam games to use as buckets",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"reddit", "steam"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd.Context(), args[0], args[1], limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "max results")
	return cmd
}

func eventsCmd() *cobra.Command {
	var (
		game       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "events <app id>",
		Short:   "List a Steam game's update, DLC and release announcements",
		Example: `  sentradar events 1145360 --game Hades`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("app id %q is not numeric", args[0])
			}
			return runEvents(cmd.Context(), appID, game, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&game, "game", "", "display name attached to each event")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output events as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func watchCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rerun the configured watch jobs, archive each run and send digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run every job once and exit")
	return cmd
}

func runsCmd() *cobra.Command {
	var (
		topic      string
		runID      string
		bucket     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived runs, one run's summaries, or a bucket's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd.Context(), topic, runID, bucket, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "filter by topic")
	cmd.Flags().StringVar(&runID, "id", "", "show the summaries of one run")
	cmd.Flags().StringVar(&bucket, "bucket", "", "show a bucket's history across runs of --topic")
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
