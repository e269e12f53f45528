package source

import (
	"math"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// Metric keys shared by normalizers, the aggregator and exports.
const (
	MetricScore        = "score"
	MetricComments     = "num_comments"
	MetricUpvoteRatio  = "upvote_ratio"
	MetricPlaytime     = "playtime_hrs"
	MetricPlaytimeAll  = "playtime_total_hrs"
	MetricVotesHelpful = "votes_helpful"
	MetricVotesFunny   = "votes_funny"
	MetricAuthorRevs   = "author_num_reviews"
	MetricAuthorGames  = "author_num_games_owned"
	MetricEarlyAccess  = "written_during_ea"
	MetricLikes        = "likes"
	MetricRetweets     = "retweets"
	MetricReplies      = "replies"
	MetricQuotes       = "quotes"
)

const (
	deletedAuthor = "[deleted]"
	unknownAuthor = "unknown"
)

// RedditPost is the subset of a Reddit listing child we read.
type RedditPost struct {
	ID          string   `json:"id"`
	Subreddit   string   `json:"subreddit"`
	Title       string   `json:"title"`
	Selftext    string   `json:"selftext"`
	Author      string   `json:"author"`
	Permalink   string   `json:"permalink"`
	Score       float64  `json:"score"`
	NumComments float64  `json:"num_comments"`
	UpvoteRatio *float64 `json:"upvote_ratio"`
	CreatedUTC  float64  `json:"created_utc"`
	Stickied    bool     `json:"stickied"`
	Flair       string   `json:"link_flair_text"`
}

// NormalizeRedditPost maps a post into a Record.
func NormalizeRedditPost(p RedditPost, bucket string) Record {
	title := strings.TrimSpace(p.Title)
	body := strings.TrimSpace(p.Selftext)

	ratio := 0.5
	if p.UpvoteRatio != nil {
		ratio = *p.UpvoteRatio
	}

	rec := Record{
		ID:     p.ID,
		Source: SourceReddit,
		Bucket: bucket,
		Text:   JoinTitleBody(title, body),
		Title:  title,
		Author: defaultString(p.Author, deletedAuthor),
		Metrics: map[string]float64{
			MetricScore:       p.Score,
			MetricComments:    p.NumComments,
			MetricUpvoteRatio: ratio,
		},
		CreatedAt: int64(p.CreatedUTC),
	}
	if p.Permalink != "" {
		rec.URL = "https://www.reddit.com" + p.Permalink
	}
	return rec
}

// SteamReview is one entry of the appreviews response.
type SteamReview struct {
	RecommendationID string `json:"recommendationid"`
	Author           struct {
		SteamID          string  `json:"steamid"`
		NumReviews       float64 `json:"num_reviews"`
		NumGamesOwned    float64 `json:"num_games_owned"`
		PlaytimeAtReview float64 `json:"playtime_at_review"`
		PlaytimeForever  float64 `json:"playtime_forever"`
	} `json:"author"`
	Review           string  `json:"review"`
	VotedUp          *bool   `json:"voted_up"`
	VotesUp          float64 `json:"votes_up"`
	VotesFunny       float64 `json:"votes_funny"`
	TimestampCreated int64   `json:"timestamp_created"`
	EarlyAccess      bool    `json:"written_during_early_access"`
}

// NormalizeSteamReview maps a review into a Record. voted_up becomes KnownPolarity.
func NormalizeSteamReview(r SteamReview, bucket string) Record {
	ea := 0.0
	if r.EarlyAccess {
		ea = 1
	}
	rec := Record{
		ID:     r.RecommendationID,
		Source: SourceSteam,
		Bucket: bucket,
		Text:   strings.TrimSpace(r.Review),
		Author: defaultString(r.Author.SteamID, unknownAuthor),
		Metrics: map[string]float64{
			MetricPlaytime:     round(r.Author.PlaytimeAtReview/60, 1),
			MetricPlaytimeAll:  round(r.Author.PlaytimeForever/60, 1),
			MetricVotesHelpful: r.VotesUp,
			MetricVotesFunny:   r.VotesFunny,
			MetricAuthorRevs:   r.Author.NumReviews,
			MetricAuthorGames:  r.Author.NumGamesOwned,
			MetricEarlyAccess:  ea,
		},
		CreatedAt: r.TimestampCreated,
	}
	if r.VotedUp != nil {
		up := *r.VotedUp
		rec.KnownPolarity = &up
	}
	return rec
}

// Tweet is one element of the X v2 search "data" array.
type Tweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		LikeCount    float64 `json:"like_count"`
		RetweetCount float64 `json:"retweet_count"`
		ReplyCount   float64 `json:"reply_count"`
		QuoteCount   float64 `json:"quote_count"`
	} `json:"public_metrics"`
}

// NormalizeTweet maps a tweet into a Record. users maps author ids to usernames.
func NormalizeTweet(t Tweet, users map[string]string, bucket string) Record {
	author := defaultString(users[t.AuthorID], unknownAuthor)
	rec := Record{
		ID:     t.ID,
		Source: SourceX,
		Bucket: bucket,
		Text:   strings.TrimSpace(t.Text),
		Author: author,
		Metrics: map[string]float64{
			MetricLikes:    t.PublicMetrics.LikeCount,
			MetricRetweets: t.PublicMetrics.RetweetCount,
			MetricReplies:  t.PublicMetrics.ReplyCount,
			MetricQuotes:   t.PublicMetrics.QuoteCount,
		},
	}
	if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		rec.CreatedAt = ts.Unix()
	}
	if t.ID != "" && author != unknownAuthor {
		rec.URL = "https://x.com/" + author + "/status/" + t.ID
	}
	return rec
}

// NormalizeFeedItem maps a Nitter RSS entry into a Record.
func NormalizeFeedItem(item *gofeed.Item, bucket string) Record {
	if item == nil {
		return Record{Source: SourceNitter, Bucket: bucket, Author: unknownAuthor, Metrics: map[string]float64{}}
	}
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	author := strings.TrimPrefix(strings.TrimSpace(feedAuthor(item)), "@")
	title := strings.TrimSpace(item.Title)
	rec := Record{
		ID:      id,
		Source:  SourceNitter,
		Bucket:  bucket,
		Title:   title,
		Text:    defaultString(htmlText(item.Description), title),
		Author:  defaultString(author, unknownAuthor),
		URL:     item.Link,
		Metrics: map[string]float64{},
	}
	if item.PublishedParsed != nil {
		rec.CreatedAt = item.PublishedParsed.Unix()
	}
	return rec
}

// feedAuthor looks in the item author, then the author list, then dc:creator,
// which is where Nitter puts the handle.
func feedAuthor(item *gofeed.Item) string {
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return a.Name
		}
	}
	if dc := item.DublinCoreExt; dc != nil {
		for _, c := range dc.Creator {
			if strings.TrimSpace(c) != "" {
				return c
			}
		}
	}
	return ""
}

// htmlText flattens an HTML fragment to whitespace-normalised text.
func htmlText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// JoinTitleBody concatenates title and body as "title. body" and trims separator
// dots and spaces from both ends, so an empty body leaves just the title.
func JoinTitleBody(title, body string) string {
	return strings.Trim(title+". "+body, ". ")
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
