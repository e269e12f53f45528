package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/sentradar/pkg/fetch"
)

// EventType classifies a Steam news post.
type EventType string

const (
	EventUpdate  EventType = "Update"
	EventDLC     EventType = "DLC"
	EventRelease EventType = "Release"
)

// Event is a patch, DLC or release announcement for a game.
type Event struct {
	AppID    int       `json:"app_id"`
	Game     string    `json:"game,omitempty"`
	Title    string    `json:"title"`
	Type     EventType `json:"type"`
	At       int64     `json:"at"`
	URL      string    `json:"url,omitempty"`
	Contents string    `json:"contents,omitempty"`
}

var (
	eventTitleWords = []string{
		"update", "patch", "hotfix", "fix", "dlc", "expansion", "content", "season",
		"version", "release", "launch", "major", "anniversary", "early access", "full release",
	}
	eventSkipWords    = []string{"sale", "discount", "contest", "giveaway", "stream", "tournament", "esport"}
	eventDLCWords     = []string{"dlc", "expansion", "season pass", "content pack"}
	eventReleaseWords = []string{"early access", "full release", "launch", "release"}
)

// ClassifyEvent types a news title. ok is false for posts that are not about
// the game itself changing, such as sales or community streams.
func ClassifyEvent(title string) (t EventType, ok bool) {
	tl := strings.ToLower(title)
	if !containsAny(tl, eventTitleWords) || containsAny(tl, eventSkipWords) {
		return "", false
	}
	switch {
	case containsAny(tl, eventDLCWords):
		return EventDLC, true
	case containsAny(tl, eventReleaseWords):
		return EventRelease, true
	}
	return EventUpdate, true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Events lists the update, DLC and release announcements of an app, oldest
// first. Only the earliest post of each type per calendar month is kept.
func (s *Steam) Events(ctx context.Context, appID int, game string) ([]Event, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("steam: app id %d is not valid", appID)
	}
	params := url.Values{
		"appid":     {strconv.Itoa(appID)},
		"count":     {"100"},
		"maxlength": {"1200"},
		"format":    {"json"},
	}

	var resp struct {
		AppNews struct {
			NewsItems []struct {
				Title    string `json:"title"`
				Date     int64  `json:"date"`
				URL      string `json:"url"`
				Contents string `json:"contents"`
			} `json:"newsitems"`
		} `json:"appnews"`
	}
	endpoint := s.newsURL + "/ISteamNews/GetNewsForApp/v2/"
	if err := s.client.GetJSON(ctx, fetch.Request{URL: endpoint, Params: params, Source: string(SourceSteam)}, &resp); err != nil {
		return nil, fmt.Errorf("steam news %d: %w", appID, err)
	}

	var events []Event
	for _, item := range resp.AppNews.NewsItems {
		title := strings.TrimSpace(item.Title)
		if title == "" || item.Date <= 0 {
			continue
		}
		typ, ok := ClassifyEvent(title)
		if !ok {
			continue
		}
		events = append(events, Event{
			AppID:    appID,
			Game:     game,
			Title:    truncate(title, 80),
			Type:     typ,
			At:       item.Date,
			URL:      item.URL,
			Contents: truncate(htmlText(item.Contents), 1000),
		})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })

	seen := make(map[string]struct{})
	out := events[:0]
	for _, ev := range events {
		key := time.Unix(ev.At, 0).UTC().Format("2006-01") + "/" + string(ev.Type)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out, nil
}
