package sentiment

import (
	"testing"

	"github.com/elonfeng/sentradar/pkg/source"
)

func TestEmptyTextIsNeutralUnderBothStrategies(t *testing.T) {
	for _, s := range []Strategy{NewLexicon(), NewKeyword()} {
		for _, text := range []string{"", "   "} {
			label, score := s.Classify(text)
			if label != Neutral || score != 0 {
				t.Fatalf("%s: expected Neutral/0 for %q, got %s/%v", s.Name(), text, label, score)
			}
		}
	}
}

func TestLexiconPolarity(t *testing.T) {
	s := NewLexicon()
	cases := []struct {
		text string
		want Label
	}{
		{"great amazing fantastic", Positive},
		{"terrible awful broken", Negative},
		{"the patch released on tuesday", Neutral},
	}
	for _, tc := range cases {
		label, score := s.Classify(tc.text)
		if label != tc.want {
			t.Errorf("Classify(%q) = %s (%v), want %s", tc.text, label, score, tc.want)
		}
		if score < -1 || score > 1 {
			t.Errorf("score %v out of range", score)
		}
	}
}

func TestKeywordScores(t *testing.T) {
	s := NewKeyword()
	cases := []struct {
		text  string
		label Label
		score float64
	}{
		{"I love this, great fun", Positive, 1},
		{"terrible, buggy mess", Negative, -1},
		{"good but buggy", Neutral, 0},
		{"no opinion here", Neutral, 0},
		{"great great awful", Positive, 0.3333},
		{"GREAT", Positive, 1},
		{"très great", Positive, 1},
		{"déjàbad vu", Neutral, 0},
		{"funé", Neutral, 0},
	}
	for _, tc := range cases {
		label, score := s.Classify(tc.text)
		if label != tc.label || score != tc.score {
			t.Errorf("Classify(%q) = %s/%v, want %s/%v", tc.text, label, score, tc.label, tc.score)
		}
	}
}

func TestClassifyBatchPreservesOrder(t *testing.T) {
	res := ClassifyBatch(NewKeyword(), []string{"awful", "", "love"})
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	if res[0].Label != Negative || res[1].Label != Neutral || res[2].Label != Positive {
		t.Fatalf("unexpected labels %+v", res)
	}
}

func TestScoreUsesKnownPolarity(t *testing.T) {
	up, down := true, false
	recs := []source.Record{
		{ID: "1", Text: "terrible awful", KnownPolarity: &up},
		{ID: "2", Text: "great fun", KnownPolarity: &down},
		{ID: "3", Text: "great fun"},
	}
	scored := Score(NewKeyword(), recs)

	if scored[0].Label != Positive || scored[0].Scored || scored[0].Score != 0 {
		t.Fatalf("expected polarity override, got %+v", scored[0])
	}
	if scored[1].Label != Negative || scored[1].Scored {
		t.Fatalf("expected polarity override, got %+v", scored[1])
	}
	if scored[2].Label != Positive || !scored[2].Scored || scored[2].Score != 1 {
		t.Fatalf("expected computed score, got %+v", scored[2])
	}
	if scored[2].ID != "3" {
		t.Fatalf("record fields should be embedded")
	}
}

func TestNewStrategy(t *testing.T) {
	for name, want := range map[string]string{"": StrategyLexicon, "vader": StrategyLexicon, "keyword": StrategyKeyword} {
		s, err := New(name)
		if err != nil || s.Name() != want {
			t.Fatalf("New(%q) = %v, %v", name, s, err)
		}
	}
	if _, err := New("bert"); err == nil {
		t.Fatalf("expected unknown strategy error")
	}
}

func TestParseLabel(t *testing.T) {
	if l, err := ParseLabel("NEG"); err != nil || l != Negative {
		t.Fatalf("unexpected %v %v", l, err)
	}
	if _, err := ParseLabel("meh"); err == nil {
		t.Fatalf("expected error")
	}
}
