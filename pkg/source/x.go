package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/elonfeng/sentradar/pkg/fetch"
)

// DefaultXURL is the X API v2 host.
const DefaultXURL = "https://api.twitter.com"

// The recent search endpoint rejects max_results outside this range.
const (
	xMinResults = 10
	xMaxResults = 100
)

// ErrMissingCredentials is returned when a source needs a token that was not configured.
var ErrMissingCredentials = errors.New("missing credentials")

// X pages the v2 recent search endpoint with an app bearer token.
type X struct {
	client  *fetch.Client
	token   string
	baseURL string
}

// NewX creates an X source. An empty baseURL uses DefaultXURL.
func NewX(client *fetch.Client, bearerToken, baseURL string) *X {
	if baseURL == "" {
		baseURL = DefaultXURL
	}
	return &X{client: client, token: strings.TrimSpace(bearerToken), baseURL: strings.TrimRight(baseURL, "/")}
}

func (x *X) Name() SourceType    { return SourceX }
func (x *X) PageSize() int       { return xMaxResults }
func (x *X) StartCursor() string { return "" }

// BuildXQuery appends the reply/retweet/language operators to the search term.
func BuildXQuery(q Query) string {
	parts := []string{strings.TrimSpace(q.Term)}
	if parts[0] == "" {
		parts[0] = strings.TrimSpace(q.Bucket)
	}
	if q.ExcludeRetweets {
		parts = append(parts, "-is:retweet")
	}
	if q.ExcludeReplies {
		parts = append(parts, "-is:reply")
	}
	if q.Lang != "" {
		parts = append(parts, "lang:"+q.Lang)
	}
	return strings.Join(parts, " ")
}

func (x *X) FetchPage(ctx context.Context, q Query, cursor string, limit int) (Page, error) {
	if x.token == "" {
		return Page{}, fmt.Errorf("x: bearer token: %w", ErrMissingCredentials)
	}

	params := url.Values{
		"query":        {BuildXQuery(q)},
		"max_results":  {strconv.Itoa(clamp(limit, xMinResults, xMaxResults))},
		"tweet.fields": {"created_at,public_metrics,text,author_id"},
		"expansions":   {"author_id"},
		"user.fields":  {"username"},
	}
	if cursor != "" {
		params.Set("next_token", cursor)
	}

	var resp struct {
		Data     []Tweet `json:"data"`
		Includes struct {
			Users []struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"users"`
		} `json:"includes"`
		Meta struct {
			NextToken string `json:"next_token"`
		} `json:"meta"`
	}
	req := fetch.Request{
		URL:    x.baseURL + "/2/tweets/search/recent",
		Params: params,
		Header: http.Header{"Authorization": {"Bearer " + x.token}},
		Source: string(SourceX),
	}
	if err := x.client.GetJSON(ctx, req, &resp); err != nil {
		return Page{}, fmt.Errorf("x search %q: %w", q.Bucket, err)
	}

	users := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u.Username
	}

	tweets := resp.Data
	if limit > 0 && len(tweets) > limit {
		tweets = tweets[:limit]
	}
	page := Page{Next: resp.Meta.NextToken}
	for _, t := range tweets {
		page.Items = append(page.Items, NormalizeTweet(t, users, q.Bucket))
	}
	return page, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
