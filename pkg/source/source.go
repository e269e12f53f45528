package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/elonfeng/sentradar/pkg/fetch"
)

// SourceType identifies which platform a record came from.
type SourceType string

const (
	SourceReddit SourceType = "reddit"
	SourceSteam  SourceType = "steam"
	SourceX      SourceType = "x"
	SourceNitter SourceType = "nitter"
)

// Record is the flat shape every source-specific item is normalized into.
type Record struct {
	ID      string             `json:"id"`
	Source  SourceType         `json:"source"`
	Bucket  string             `json:"bucket"`
	Text    string             `json:"text"`
	Title   string             `json:"title,omitempty"`
	Author  string             `json:"author"`
	URL     string             `json:"url,omitempty"`
	Metrics map[string]float64 `json:"metrics"`
	// CreatedAt is Unix seconds; 0 means the source did not say.
	CreatedAt int64 `json:"created_at,omitempty"`
	// KnownPolarity is set only when the source supplies thumbs up/down.
	KnownPolarity *bool `json:"known_polarity,omitempty"`
}

// Metric returns a metric value and whether it was present.
func (r Record) Metric(key string) (float64, bool) {
	v, ok := r.Metrics[key]
	return v, ok
}

// Query selects what a bucket fetches. Bucket is the grouping key; Term is the
// source-specific search input (search query, Steam app id, X query).
type Query struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Term            string `json:"term,omitempty" yaml:"term"`
	Sort            string `json:"sort,omitempty" yaml:"sort"`
	TimeFilter      string `json:"time_filter,omitempty" yaml:"time_filter"`
	Lang            string `json:"lang,omitempty" yaml:"lang"`
	ExcludeReplies  bool   `json:"exclude_replies,omitempty" yaml:"exclude_replies"`
	ExcludeRetweets bool   `json:"exclude_retweets,omitempty" yaml:"exclude_retweets"`
}

// ParseQuery turns "bucket=term" into a Query; without "=" the term equals the bucket.
func ParseQuery(spec string) (Query, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Query{}, fmt.Errorf("empty bucket")
	}
	bucket, term, found := strings.Cut(spec, "=")
	bucket = strings.TrimSpace(bucket)
	term = strings.TrimSpace(term)
	if bucket == "" {
		return Query{}, fmt.Errorf("bucket %q has no name", spec)
	}
	if !found {
		term = bucket
	}
	return Query{Bucket: bucket, Term: term}, nil
}

// Page is one response worth of records plus the cursor for the next one.
// An empty Next means the source is exhausted.
type Page struct {
	Items []Record
	Next  string
}

// Source is implemented by every platform adapter.
type Source interface {
	Name() SourceType
	// PageSize is the largest page the upstream API will return.
	PageSize() int
	// StartCursor is the cursor value for the first request.
	StartCursor() string
	FetchPage(ctx context.Context, q Query, cursor string, limit int) (Page, error)
}

// MetricKeys lists the metrics worth aggregating for a source.
func MetricKeys(st SourceType) []string {
	switch st {
	case SourceReddit:
		return []string{MetricScore, MetricComments, MetricUpvoteRatio}
	case SourceSteam:
		return []string{MetricPlaytime, MetricVotesHelpful}
	case SourceX, SourceNitter:
		return []string{MetricLikes, MetricRetweets}
	}
	return nil
}

// AllSourceTypes returns all known source types.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceReddit, SourceSteam, SourceX, SourceNitter}
}

// ParseSourceType accepts a source name or its alias.
func ParseSourceType(name string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "reddit":
		return SourceReddit, nil
	case "steam":
		return SourceSteam, nil
	case "x", "twitter":
		return SourceX, nil
	case "nitter", "rss":
		return SourceNitter, nil
	}
	return "", fmt.Errorf("unknown source %q", name)
}

// Endpoints overrides upstream hosts and carries per-source credentials.
type Endpoints struct {
	RedditURL    string
	SteamURL     string
	SteamNewsURL string
	XURL         string
	XToken       string
	NitterURL    string
}

// New builds the adapter for st on top of a shared fetch client.
func New(st SourceType, client *fetch.Client, ep Endpoints) (Source, error) {
	switch st {
	case SourceReddit:
		return NewReddit(client, ep.RedditURL), nil
	case SourceSteam:
		return NewSteam(client, ep.SteamURL).WithNewsURL(ep.SteamNewsURL), nil
	case SourceX:
		return NewX(client, ep.XToken, ep.XURL), nil
	case SourceNitter:
		return NewNitter(client, ep.NitterURL), nil
	}
	return nil, fmt.Errorf("unknown source %q", st)
}
