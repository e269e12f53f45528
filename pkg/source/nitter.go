package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/elonfeng/sentradar/pkg/fetch"
)

// DefaultNitterURL is the public Nitter instance used when none is configured.
const DefaultNitterURL = "https://nitter.net"

// Nitter reads X posts through a Nitter instance's RSS feeds. A term starting with
// "@" reads that account's timeline; anything else goes through search. Feeds are a
// single page, so Next is always empty.
type Nitter struct {
	client  *fetch.Client
	parser  *gofeed.Parser
	baseURL string
}

// NewNitter creates a Nitter source. An empty baseURL uses DefaultNitterURL.
func NewNitter(client *fetch.Client, baseURL string) *Nitter {
	if baseURL == "" {
		baseURL = DefaultNitterURL
	}
	return &Nitter{
		client:  client,
		parser:  gofeed.NewParser(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (n *Nitter) Name() SourceType    { return SourceNitter }
func (n *Nitter) PageSize() int       { return 0 }
func (n *Nitter) StartCursor() string { return "" }

func (n *Nitter) FetchPage(ctx context.Context, q Query, _ string, limit int) (Page, error) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		term = strings.TrimSpace(q.Bucket)
	}

	req := fetch.Request{
		Header: http.Header{"Accept": {"application/rss+xml, application/xml;q=0.9, */*;q=0.8"}},
		Source: string(SourceNitter),
	}
	if account, ok := strings.CutPrefix(term, "@"); ok {
		req.URL = fmt.Sprintf("%s/%s/rss", n.baseURL, url.PathEscape(account))
	} else {
		req.URL = n.baseURL + "/search/rss"
		req.Params = url.Values{"f": {"tweets"}, "q": {term}}
	}

	body, err := n.client.Get(ctx, req)
	if err != nil {
		return Page{}, fmt.Errorf("nitter %q: %w", term, err)
	}
	feed, err := n.parser.ParseString(string(body))
	if err != nil {
		return Page{}, fmt.Errorf("nitter %q: %w", term, &fetch.Error{Kind: fetch.KindDecode, URL: req.URL, Attempts: 1, Err: err})
	}

	var page Page
	for _, item := range feed.Items {
		rec := NormalizeFeedItem(item, q.Bucket)
		// Retweets show up as "RT by @user: ..." titles.
		if q.ExcludeRetweets && strings.HasPrefix(rec.Title, "RT by ") {
			continue
		}
		if q.ExcludeReplies && strings.HasPrefix(rec.Title, "R to ") {
			continue
		}
		page.Items = append(page.Items, rec)
		if limit > 0 && len(page.Items) == limit {
			break
		}
	}
	return page, nil
}
