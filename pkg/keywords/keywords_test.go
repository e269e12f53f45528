package keywords

import (
	"reflect"
	"testing"
)

func TestExtractCountsUnigramsAndBigrams(t *testing.T) {
	texts := []string{
		"Boss fights are brutal",
		"boss fights everywhere, brutal boss",
	}
	got := New().Extract(texts, 10)
	want := []Term{
		{"boss", 3},
		{"fights", 2},
		{"brutal", 2},
		{"boss fights", 2},
		{"everywhere", 1},
		{"fights brutal", 1},
		{"fights everywhere", 1},
		{"everywhere brutal", 1},
		{"brutal boss", 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract =\n%v\nwant\n%v", got, want)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	texts := []string{"alpha beta gamma", "gamma delta alpha", "beta epsilon"}
	first := New().Extract(texts, 5)
	for i := 0; i < 20; i++ {
		if again := New().Extract(texts, 5); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %v vs %v", i, first, again)
		}
	}
}

func TestExtractDropsShortTokensAndStopWords(t *testing.T) {
	got := New(WithStopWords(SteamNoise)).Extract([]string{"I am so into this game, 10/10 GG"}, 10)
	if len(got) != 0 {
		t.Fatalf("expected nothing to survive, got %v", got)
	}
}

func TestExtractTopN(t *testing.T) {
	if got := New().Extract([]string{"alpha beta"}, 0); got != nil {
		t.Fatalf("expected nil for topN=0, got %v", got)
	}
	if got := New().Extract([]string{"alpha beta gamma"}, 2); len(got) != 2 || got[0].Term != "alpha" {
		t.Fatalf("unexpected %v", got)
	}
	if got := New().Extract(nil, 5); len(got) != 0 {
		t.Fatalf("expected empty result for no texts, got %v", got)
	}
}

func TestURLStripping(t *testing.T) {
	text := "check https://example.com/release @gopher #golang release notes"
	plain := Strings(New().Extract([]string{text}, 20))
	stripped := Strings(ForSource("x").Extract([]string{text}, 20))

	if !contains(plain, "gopher") {
		t.Fatalf("mentions should survive without stripping: %v", plain)
	}
	for _, bad := range []string{"gopher", "example", "https"} {
		if contains(stripped, bad) {
			t.Fatalf("%q should have been stripped: %v", bad, stripped)
		}
	}
	if !contains(stripped, "golang") || !contains(stripped, "release notes") {
		t.Fatalf("hashtag words should stay: %v", stripped)
	}
}

func TestDifferentiators(t *testing.T) {
	pos := []Term{{"fun", 5}, {"story", 3}}
	neg := []Term{{"story", 4}, {"bugs", 2}}

	got := Differentiators(pos, neg)
	if !reflect.DeepEqual(got, []Term{{"fun", 5}}) {
		t.Fatalf("unexpected positive differentiators %v", got)
	}
	if got := Differentiators(neg, pos); !reflect.DeepEqual(got, []Term{{"bugs", 2}}) {
		t.Fatalf("unexpected negative differentiators %v", got)
	}
	if got := Differentiators(nil, pos); len(got) != 0 {
		t.Fatalf("expected nothing from empty input, got %v", got)
	}
}

func TestNoiseFor(t *testing.T) {
	if _, ok := NoiseFor("reddit")["reddit"]; !ok {
		t.Fatalf("reddit noise missing")
	}
	if NoiseFor("myspace") != nil {
		t.Fatalf("expected nil for unknown source")
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
