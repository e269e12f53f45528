package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 12*time.Second, cfg.HTTP.ParseTimeout())
	require.Equal(t, 500*time.Millisecond, cfg.Pagination.ParseBucketDelay())
	require.Equal(t, 30*time.Minute, cfg.Server.ParseSessionTTL())
	require.Equal(t, time.Hour, cfg.Watch.ParseInterval())
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sentradar.yaml", `
log:
  level: debug
http:
  timeout: 5s
pagination:
  target: 250
  concurrency: 4
sources:
  steam:
    lang: german
watch:
  interval: 15m
  jobs:
    - topic: roguelikes
      source: steam
      buckets: ["Hades=1145360"]
      target: 50
`)
	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, 5*time.Second, cfg.HTTP.ParseTimeout())
	require.Equal(t, 2*time.Second, cfg.HTTP.ParseBackoff())
	require.Equal(t, 3, cfg.HTTP.Attempts)
	require.Equal(t, 250, cfg.Pagination.Target)
	require.Equal(t, "german", cfg.Sources.Steam.Lang)
	require.Equal(t, "relevance", cfg.Sources.Reddit.Sort)
	require.Equal(t, 15*time.Minute, cfg.Watch.ParseInterval())
	require.Len(t, cfg.Watch.Jobs, 1)
	require.Equal(t, "Hades=1145360", cfg.Watch.Jobs[0].Buckets[0])
}

func TestEnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	env := writeFile(t, dir, "test.env", "X_BEARER_TOKEN=from-file\nSENTRADAR_ARCHIVE_PATH=/tmp/archive.db\n")
	t.Setenv("X_BEARER_TOKEN", "")
	os.Unsetenv("X_BEARER_TOKEN")
	t.Setenv("SENTRADAR_ARCHIVE_PATH", "")
	os.Unsetenv("SENTRADAR_ARCHIVE_PATH")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example/slack")

	cfg, err := Load("", env)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.Sources.X.BearerToken)
	require.Equal(t, "/tmp/archive.db", cfg.Archive.Path)
	require.Equal(t, "openai", cfg.Report.Provider)
	require.Equal(t, "sk-test", cfg.Report.APIKey)
	require.True(t, cfg.Alerts.Slack.Enabled)
}

func TestValidateRejects(t *testing.T) {
	cfg := Default()
	cfg.Sentiment.Strategy = "bert"
	cfg.Pagination.Target = 0
	cfg.HTTP.Attempts = 0
	cfg.Watch.Jobs = []JobConfig{{Topic: "empty"}}
	cfg.HTTP.Backoff = "nonsense"
	cfg.Pagination.PageDelay = "0s"
	cfg.Pagination.BucketDelay = "10ms"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"unknown strategy", "pagination.target", "http.attempts", "watch.jobs[0]: no buckets",
		`http.backoff: time: invalid duration "nonsense"`,
		"pagination.page_delay: 0s is below the minimum of 100ms",
		"pagination.bucket_delay: 10ms is below",
	} {
		require.True(t, strings.Contains(err.Error(), want), "missing %q in %v", want, err)
	}
}

func TestValidateAcceptsEmptyDurations(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Backoff = ""
	cfg.Pagination.PageDelay = ""
	require.NoError(t, cfg.Validate())
	require.Equal(t, 500*time.Millisecond, cfg.Pagination.ParsePageDelay())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
