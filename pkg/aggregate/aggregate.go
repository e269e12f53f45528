package aggregate

import (
	"math"
	"sort"

	"github.com/elonfeng/sentradar/pkg/sentiment"
)

// OverallBucket names the summary spanning every record.
const OverallBucket = "all"

// Summary is the per-bucket projection of a scored record set.
type Summary struct {
	Bucket        string             `json:"bucket"`
	Count         int                `json:"count"`
	PositiveCount int                `json:"positive"`
	NeutralCount  int                `json:"neutral"`
	NegativeCount int                `json:"negative"`
	PositivePct   float64            `json:"positive_pct"`
	AvgScore      float64            `json:"avg_score"`
	Means         map[string]float64 `json:"means,omitempty"`
	Medians       map[string]float64 `json:"medians,omitempty"`
}

// NegativePct is the share of negative records, one decimal.
func (s Summary) NegativePct() float64 {
	if s.Count == 0 {
		return 0
	}
	return round(100*float64(s.NegativeCount)/float64(s.Count), 1)
}

// Aggregate groups records by bucket and summarises each group. Output is sorted
// by PositivePct descending; ties keep the order buckets were first seen.
func Aggregate(records []sentiment.ScoredRecord, metrics ...string) []Summary {
	var order []string
	groups := make(map[string][]sentiment.ScoredRecord)
	for _, r := range records {
		if _, ok := groups[r.Bucket]; !ok {
			order = append(order, r.Bucket)
		}
		groups[r.Bucket] = append(groups[r.Bucket], r)
	}

	out := make([]Summary, 0, len(order))
	for _, b := range order {
		out = append(out, summarize(b, groups[b], metrics))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PositivePct > out[j].PositivePct })
	return out
}

// Overall summarises every record as a single bucket.
func Overall(records []sentiment.ScoredRecord, metrics ...string) Summary {
	return summarize(OverallBucket, records, metrics)
}

func summarize(bucket string, records []sentiment.ScoredRecord, metrics []string) Summary {
	s := Summary{Bucket: bucket, Count: len(records)}

	var scoreSum float64
	var scored int
	values := make(map[string][]float64, len(metrics))
	for _, r := range records {
		switch r.Label {
		case sentiment.Positive:
			s.PositiveCount++
		case sentiment.Negative:
			s.NegativeCount++
		default:
			s.NeutralCount++
		}
		if r.Scored {
			scoreSum += r.Score
			scored++
		}
		for _, m := range metrics {
			if v, ok := r.Metrics[m]; ok {
				values[m] = append(values[m], v)
			}
		}
	}

	if s.Count > 0 {
		s.PositivePct = round(100*float64(s.PositiveCount)/float64(s.Count), 1)
	}
	if scored > 0 {
		s.AvgScore = round(scoreSum/float64(scored), 4)
	}
	for _, m := range metrics {
		vals := values[m]
		if len(vals) == 0 {
			continue
		}
		if s.Means == nil {
			s.Means = make(map[string]float64, len(metrics))
			s.Medians = make(map[string]float64, len(metrics))
		}
		s.Means[m] = round(mean(vals), 2)
		s.Medians[m] = round(median(vals), 2)
	}
	return s
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Extremes returns the highest and lowest PositivePct summaries, up to n each.
// Input must already be sorted as Aggregate returns it.
func Extremes(sums []Summary, n int) (top, bottom []Summary) {
	if n <= 0 || len(sums) == 0 {
		return nil, nil
	}
	if n > len(sums) {
		n = len(sums)
	}
	top = append(top, sums[:n]...)
	for i := len(sums) - 1; i >= len(sums)-n; i-- {
		bottom = append(bottom, sums[i])
	}
	return top, bottom
}
