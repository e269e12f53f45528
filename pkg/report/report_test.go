package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elonfeng/sentradar/pkg/keywords"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/source"
)

func fixture() []sentiment.ScoredRecord {
	long := strings.Repeat("the soundtrack and the art direction are wonderful ", 3)
	mk := func(id, bucket, text string, label sentiment.Label, votes float64) sentiment.ScoredRecord {
		return sentiment.ScoredRecord{
			Record: source.Record{
				ID: id, Source: source.SourceSteam, Bucket: bucket, Text: text,
				Metrics: map[string]float64{source.MetricVotesHelpful: votes, source.MetricPlaytime: 10},
			},
			Label: label, Score: 0.5, Scored: true,
		}
	}
	return []sentiment.ScoredRecord{
		mk("1", "Hades", long, sentiment.Positive, 40),
		mk("2", "Hades", "fun combat loop", sentiment.Positive, 3),
		mk("3", "Hades", "crashes on launch", sentiment.Negative, 1),
		mk("4", "Rogue", "crashes and stutter everywhere in every single run, unplayable on my machine since the update", sentiment.Negative, 12),
		mk("5", "Rogue", "fun", sentiment.Positive, 0),
	}
}

func TestBuildBrief(t *testing.T) {
	b := BuildBrief("roguelikes", fixture(), nil)

	if b.Total != 5 || b.Source != source.SourceSteam || b.EngagementMetric != source.MetricVotesHelpful {
		t.Fatalf("unexpected header %+v", b)
	}
	if len(b.Buckets) != 2 || b.Best != "Hades" || b.Worst != "Rogue" {
		t.Fatalf("unexpected bucket ordering best=%s worst=%s", b.Best, b.Worst)
	}
	if b.Buckets[0].Share != 60 || b.Spread != 16.7 {
		t.Fatalf("unexpected share/spread %v %v", b.Buckets[0].Share, b.Spread)
	}
	if !contains(keywords.Strings(b.OnlyNegative), "crashes") {
		t.Fatalf("expected crashes as a negative differentiator, got %v", b.OnlyNegative)
	}
	if len(b.PositiveSamples) != 1 || b.PositiveSamples[0].Engagement != 40 {
		t.Fatalf("expected the long review as the only positive sample, got %+v", b.PositiveSamples)
	}
	if len(b.NegativeSamples) != 1 || b.NegativeSamples[0].Bucket != "Rogue" {
		t.Fatalf("unexpected negative samples %+v", b.NegativeSamples)
	}
}

func TestBuildBriefEmpty(t *testing.T) {
	b := BuildBrief("", nil, nil)
	if b.Total != 0 || len(b.Buckets) != 0 {
		t.Fatalf("unexpected brief %+v", b)
	}
	if _, err := BuildPrompt(b, FocusOverview, ToneAnalytical); err != nil {
		t.Fatalf("prompt for empty brief: %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	b := BuildBrief("roguelikes", fixture(), nil)
	prompt, err := BuildPrompt(b, FocusCompare, ToneExecutive)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	for _, want := range []string{
		"Steam reviews",
		"Topic: roguelikes",
		"### Hades",
		"crashes(2)",
		"Compare all games head-to-head",
		"17 point spread",
		"OUTPUT TONE: Write as a tight executive briefing",
		"votes_helpful 40",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "{{") {
		t.Fatalf("unreplaced placeholder in prompt")
	}

	again, _ := BuildPrompt(b, FocusCompare, ToneExecutive)
	if again != prompt {
		t.Fatalf("prompt should be deterministic")
	}
	if _, err := BuildPrompt(b, "gossip", ToneExecutive); err == nil {
		t.Fatalf("expected unknown focus error")
	}
}

func TestParseFocusAndTone(t *testing.T) {
	if f, err := ParseFocus(""); err != nil || f != FocusOverview {
		t.Fatalf("unexpected %v %v", f, err)
	}
	if f, err := ParseFocus("PAIN_POINTS"); err != nil || f != FocusPainPoints {
		t.Fatalf("unexpected %v %v", f, err)
	}
	if _, err := ParseTone("snarky"); err == nil {
		t.Fatalf("expected unknown tone error")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	recs := fixture()[:2]
	recs[1].Metrics = nil
	if err := WriteCSV(&buf, recs, []string{source.MetricVotesHelpful}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 3 || rows[0][len(rows[0])-1] != "votes_helpful" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][3] != "Positive" || rows[1][4] != "0.5000" || rows[1][11] != "40" || rows[2][11] != "" {
		t.Fatalf("unexpected row content %v", rows[1:])
	}
}

func TestWriteMarkdownAndHTML(t *testing.T) {
	b := BuildBrief("roguelikes", fixture(), nil)
	var md bytes.Buffer
	if err := WriteMarkdown(&md, b, "## Findings\nPlayers <3 it"); err != nil {
		t.Fatalf("WriteMarkdown: %v", err)
	}
	if !strings.Contains(md.String(), "| Hades | 3 | 2 | 0 | 1 | 66.7 |") || !strings.Contains(md.String(), "## Analysis") {
		t.Fatalf("unexpected markdown:\n%s", md.String())
	}

	var page bytes.Buffer
	if err := WriteHTML(&page, "", md.String()); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	html := page.String()
	if !strings.Contains(html, "<pre>") || !strings.Contains(html, "Players &lt;3 it") {
		t.Fatalf("expected escaped preformatted body")
	}
	if !strings.Contains(html, "<title>Sentiment report</title>") {
		t.Fatalf("expected default title")
	}
}

func TestGeneratorAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" || r.Header.Get("x-api-key") != "k" {
			t.Errorf("unexpected request %s %v", r.URL.Path, r.Header)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["system"] == nil || body["max_tokens"].(float64) != 1000 {
			t.Errorf("unexpected payload %v", body)
		}
		w.Write([]byte("{\"content\":[{\"type\":\"text\",\"text\":\"```markdown\\n# Report\\n```\"}]}"))
	}))
	defer srv.Close()

	g := NewGenerator(GeneratorConfig{Provider: "anthropic", APIKey: "k", BaseURL: srv.URL, MaxTokens: 1000}, nil)
	out, err := g.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "# Report" {
		t.Fatalf("expected fence stripped, got %q", out)
	}
}

func TestGeneratorOpenAIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer")
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	g := NewGenerator(GeneratorConfig{Provider: "openai", APIKey: "k", BaseURL: srv.URL}, nil)
	if _, err := g.Generate(context.Background(), "p"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestGeneratorWithoutKey(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	if g.Configured() {
		t.Fatalf("expected unconfigured generator")
	}
	if _, err := g.Generate(context.Background(), "p"); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
