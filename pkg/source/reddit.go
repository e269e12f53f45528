package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/elonfeng/sentradar/pkg/fetch"
)

// DefaultRedditURL is the public (unauthenticated) Reddit JSON host.
const DefaultRedditURL = "https://www.reddit.com"

const redditPageSize = 100

// Reddit pages posts from a subreddit, either through subreddit-restricted search
// (Query.Term set) or through a plain listing such as top or hot (Term empty).
type Reddit struct {
	client  *fetch.Client
	baseURL string
}

// NewReddit creates a Reddit source. An empty baseURL uses DefaultRedditURL.
func NewReddit(client *fetch.Client, baseURL string) *Reddit {
	if baseURL == "" {
		baseURL = DefaultRedditURL
	}
	return &Reddit{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *Reddit) Name() SourceType    { return SourceReddit }
func (r *Reddit) PageSize() int       { return redditPageSize }
func (r *Reddit) StartCursor() string { return "" }

func (r *Reddit) FetchPage(ctx context.Context, q Query, cursor string, limit int) (Page, error) {
	sub := strings.TrimPrefix(strings.TrimSpace(q.Bucket), "r/")
	if sub == "" {
		return Page{}, fmt.Errorf("reddit: empty subreddit")
	}

	timeFilter := q.TimeFilter
	if timeFilter == "" {
		timeFilter = "all"
	}
	params := url.Values{
		"limit": {strconv.Itoa(limit)},
		"t":     {timeFilter},
	}
	if cursor != "" {
		params.Set("after", cursor)
	}

	listing := q.Term == ""
	var endpoint string
	if listing {
		order := q.Sort
		if order == "" {
			order = "top"
		}
		endpoint = fmt.Sprintf("%s/r/%s/%s.json", r.baseURL, url.PathEscape(sub), order)
	} else {
		order := q.Sort
		if order == "" {
			order = "relevance"
		}
		endpoint = fmt.Sprintf("%s/r/%s/search.json", r.baseURL, url.PathEscape(sub))
		params.Set("q", q.Term)
		params.Set("sort", order)
		params.Set("restrict_sr", "true")
	}

	var resp redditListing
	if err := r.client.GetJSON(ctx, fetch.Request{URL: endpoint, Params: params, Source: string(SourceReddit)}, &resp); err != nil {
		return Page{}, fmt.Errorf("reddit r/%s: %w", sub, err)
	}

	page := Page{Next: resp.Data.After}
	for _, child := range resp.Data.Children {
		post := child.Data
		// Pinned mod posts dominate listings and say nothing about the community.
		if listing && post.Stickied {
			continue
		}
		page.Items = append(page.Items, NormalizeRedditPost(post, q.Bucket))
	}
	return page, nil
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data RedditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Subreddit is a discovery result.
type Subreddit struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Subscribers int64  `json:"subscribers"`
	URL         string `json:"url"`
}

// SearchSubreddits finds communities matching term, largest first.
func (r *Reddit) SearchSubreddits(ctx context.Context, term string, limit int) ([]Subreddit, error) {
	if limit <= 0 {
		limit = 8
	}
	params := url.Values{
		"q":               {term},
		"limit":           {"15"},
		"include_over_18": {"false"},
	}

	var resp struct {
		Data struct {
			Children []struct {
				Data struct {
					DisplayName       string `json:"display_name"`
					Title             string `json:"title"`
					PublicDescription string `json:"public_description"`
					Description       string `json:"description"`
					Subscribers       int64  `json:"subscribers"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	endpoint := r.baseURL + "/subreddits/search.json"
	if err := r.client.GetJSON(ctx, fetch.Request{URL: endpoint, Params: params, Source: string(SourceReddit)}, &resp); err != nil {
		return nil, fmt.Errorf("reddit subreddit search: %w", err)
	}

	seen := make(map[string]struct{})
	var subs []Subreddit
	for _, child := range resp.Data.Children {
		d := child.Data
		if d.DisplayName == "" {
			continue
		}
		key := strings.ToLower(d.DisplayName)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		desc := d.PublicDescription
		if desc == "" {
			desc = d.Description
		}
		subs = append(subs, Subreddit{
			Name:        d.DisplayName,
			Title:       defaultString(d.Title, d.DisplayName),
			Description: truncate(desc, 200),
			Subscribers: d.Subscribers,
			URL:         fmt.Sprintf("https://www.reddit.com/r/%s/", d.DisplayName),
		})
	}

	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Subscribers > subs[j].Subscribers })
	if len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
