package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/elonfeng/sentradar/pkg/fetch"
)

// DefaultSteamURL is the Steam storefront host serving reviews and search.
const DefaultSteamURL = "https://store.steampowered.com"

// DefaultSteamNewsURL is the Steam Web API host serving app news.
const DefaultSteamNewsURL = "https://api.steampowered.com"

const steamPageSize = 100

// Steam pages user reviews for one app. Query.Term carries the numeric app id and
// Query.Bucket the display title; Query.Lang defaults to english.
type Steam struct {
	client  *fetch.Client
	baseURL string
	newsURL string
}

// NewSteam creates a Steam source. An empty baseURL uses DefaultSteamURL.
func NewSteam(client *fetch.Client, baseURL string) *Steam {
	if baseURL == "" {
		baseURL = DefaultSteamURL
	}
	return &Steam{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		newsURL: DefaultSteamNewsURL,
	}
}

// WithNewsURL points Events at another news host. Empty keeps the current one.
func (s *Steam) WithNewsURL(newsURL string) *Steam {
	if newsURL != "" {
		s.newsURL = strings.TrimRight(newsURL, "/")
	}
	return s
}

func (s *Steam) Name() SourceType    { return SourceSteam }
func (s *Steam) PageSize() int       { return steamPageSize }
func (s *Steam) StartCursor() string { return "*" }

func (s *Steam) FetchPage(ctx context.Context, q Query, cursor string, limit int) (Page, error) {
	appID := strings.TrimSpace(q.Term)
	if appID == "" {
		appID = strings.TrimSpace(q.Bucket)
	}
	if _, err := strconv.Atoi(appID); err != nil {
		return Page{}, fmt.Errorf("steam: app id %q is not numeric", appID)
	}

	lang := q.Lang
	if lang == "" {
		lang = "english"
	}
	params := url.Values{
		"json":          {"1"},
		"language":      {lang},
		"review_type":   {"all"},
		"purchase_type": {"steam"},
		"num_per_page":  {strconv.Itoa(limit)},
		"filter":        {"recent"},
		"cursor":        {cursor},
	}

	var resp struct {
		Success int           `json:"success"`
		Cursor  string        `json:"cursor"`
		Reviews []SteamReview `json:"reviews"`
	}
	endpoint := fmt.Sprintf("%s/appreviews/%s", s.baseURL, appID)
	if err := s.client.GetJSON(ctx, fetch.Request{URL: endpoint, Params: params, Source: string(SourceSteam)}, &resp); err != nil {
		return Page{}, fmt.Errorf("steam app %s: %w", appID, err)
	}
	// success=0 is how the store reports an unknown app or an exhausted query.
	if resp.Success != 1 {
		return Page{}, nil
	}

	page := Page{Next: resp.Cursor}
	for _, r := range resp.Reviews {
		page.Items = append(page.Items, NormalizeSteamReview(r, q.Bucket))
	}
	return page, nil
}

// Game is a store search hit.
type Game struct {
	AppID int    `json:"app_id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// LookupGames searches the store for titles matching term.
func (s *Steam) LookupGames(ctx context.Context, term string, limit int) ([]Game, error) {
	if limit <= 0 {
		limit = 8
	}
	params := url.Values{
		"term":  {term},
		"l":     {"english"},
		"cc":    {"US"},
		"count": {strconv.Itoa(limit)},
	}

	var resp struct {
		Items []struct {
			ID        int    `json:"id"`
			Name      string `json:"name"`
			TinyImage string `json:"tiny_image"`
		} `json:"items"`
	}
	endpoint := s.baseURL + "/api/storesearch/"
	if err := s.client.GetJSON(ctx, fetch.Request{URL: endpoint, Params: params, Source: string(SourceSteam)}, &resp); err != nil {
		return nil, fmt.Errorf("steam store search: %w", err)
	}

	var games []Game
	for _, item := range resp.Items {
		name := strings.TrimSpace(item.Name)
		if item.ID == 0 || name == "" {
			continue
		}
		games = append(games, Game{AppID: item.ID, Name: name, Image: item.TinyImage})
		if len(games) == limit {
			break
		}
	}
	return games, nil
}
