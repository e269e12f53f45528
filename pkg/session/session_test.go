package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/keywords"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/source"
)

func rec(src source.SourceType, id, bucket, text string, label sentiment.Label) sentiment.ScoredRecord {
	return sentiment.ScoredRecord{
		Record: source.Record{ID: id, Source: src, Bucket: bucket, Text: text},
		Label:  label,
		Scored: true,
	}
}

func TestMergeDeduplicatesBySourceAndID(t *testing.T) {
	s := New()
	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)
	require.True(t, s.Empty())

	added := s.Merge([]sentiment.ScoredRecord{
		rec(source.SourceReddit, "1", "a", "first", sentiment.Positive),
		rec(source.SourceReddit, "2", "a", "second", sentiment.Negative),
	})
	require.Equal(t, 2, added)

	added = s.Merge([]sentiment.ScoredRecord{
		rec(source.SourceReddit, "1", "a", "changed", sentiment.Negative),
		rec(source.SourceSteam, "1", "b", "same id other source", sentiment.Neutral),
	})
	require.Equal(t, 1, added)
	require.Equal(t, 3, s.Len())
	require.Equal(t, "first", s.AllRecords()[0].Text, "first instance wins")
	require.False(t, s.Empty())
	require.Equal(t, []source.SourceType{source.SourceReddit, source.SourceSteam}, s.Sources())
}

func TestFilterChangesDerivedViews(t *testing.T) {
	s := New()
	s.Merge([]sentiment.ScoredRecord{
		rec(source.SourceReddit, "1", "souls", "boss fights rule", sentiment.Positive),
		rec(source.SourceReddit, "2", "souls", "boss fights spoiler", sentiment.Negative),
		rec(source.SourceReddit, "3", "cozy", "farming is relaxing", sentiment.Positive),
	})

	require.Len(t, s.Summaries(), 2)
	require.Equal(t, 3, s.Overall().Count)

	s.SetFilter(Filter{Include: []string{"boss"}, Exclude: []string{"spoiler"}})
	require.Len(t, s.Records(), 1)
	require.Equal(t, 100.0, s.Overall().PositivePct)

	s.SetFilter(Filter{Labels: []sentiment.Label{sentiment.Positive}, Buckets: []string{"COZY"}})
	got := s.Records()
	require.Len(t, got, 1)
	require.Equal(t, "3", got[0].ID)

	s.SetFilter(Filter{})
	require.True(t, s.Filter().IsZero())
	require.Len(t, s.Records(), 3)
	require.Equal(t, 3, s.Len(), "filter never drops stored records")
}

func TestKeywordsByLabel(t *testing.T) {
	s := New()
	s.Merge([]sentiment.ScoredRecord{
		rec(source.SourceSteam, "1", "g", "wonderful music", sentiment.Positive),
		rec(source.SourceSteam, "2", "g", "constant crashes", sentiment.Negative),
	})
	ext := keywords.New()
	pos := keywords.Strings(s.Keywords(ext, sentiment.Positive, 10))
	require.Equal(t, []string{"wonderful", "music", "wonderful music"}, pos)
	require.Len(t, s.Keywords(ext, "", 10), 6)
}

func TestTimelineFollowsFilter(t *testing.T) {
	s := New()
	stamp := func(r sentiment.ScoredRecord, day int) sentiment.ScoredRecord {
		r.CreatedAt = time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC).Unix()
		return r
	}
	s.Merge([]sentiment.ScoredRecord{
		stamp(rec(source.SourceSteam, "1", "g", "fun", sentiment.Positive), 3),
		stamp(rec(source.SourceSteam, "2", "g", "crashes", sentiment.Negative), 12),
		stamp(rec(source.SourceSteam, "3", "h", "fine", sentiment.Neutral), 12),
	})

	pts := s.Timeline(aggregate.Week)
	require.Len(t, pts, 3)
	require.Equal(t, "g", pts[0].Bucket)
	require.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), pts[0].Start)

	split := s.SplitAt(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).Unix())
	require.Equal(t, 1, split.Before.Count)
	require.Equal(t, 2, split.After.Count)

	s.SetFilter(Filter{Buckets: []string{"h"}})
	require.Len(t, s.Timeline(aggregate.Month), 1)
	require.Nil(t, s.SplitAt(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).Unix()).Delta)
}

func TestWarningsAndClear(t *testing.T) {
	s := New()
	s.AddWarnings(Warning{Bucket: "b", Message: "rate limited"})
	s.Merge([]sentiment.ScoredRecord{rec(source.SourceX, "1", "b", "hi", sentiment.Neutral)})
	require.Len(t, s.Warnings(), 1)

	s.Clear()
	require.True(t, s.Empty())
	require.Empty(t, s.Warnings())
	require.Equal(t, 1, s.Merge([]sentiment.ScoredRecord{rec(source.SourceX, "1", "b", "hi", sentiment.Neutral)}))
}

func TestStoreExpiry(t *testing.T) {
	st := NewStore(time.Minute)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return clock }

	a := st.Create()
	b := st.Create()
	require.Equal(t, 2, st.Len())

	clock = clock.Add(30 * time.Second)
	_, ok := st.Get(a.ID)
	require.True(t, ok)

	clock = clock.Add(45 * time.Second)
	_, ok = st.Get(b.ID)
	require.False(t, ok, "b idle for 75s")
	_, ok = st.Get(a.ID)
	require.True(t, ok, "a was touched 45s ago")

	clock = clock.Add(2 * time.Minute)
	require.Equal(t, 1, st.Sweep())
	require.Equal(t, 0, st.Len())
}

func TestStoreDelete(t *testing.T) {
	st := NewStore(0)
	c := st.Create()
	require.True(t, st.Delete(c.ID))
	require.False(t, st.Delete(c.ID))
	_, ok := st.Get(c.ID)
	require.False(t, ok)
}
