package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/sentiment"
)

var csvHeader = []string{"source", "bucket", "id", "label", "score", "scored", "author", "created_at", "url", "title", "text"}

// WriteCSV writes one row per record. metricKeys become extra columns; a record
// without a metric leaves its cell empty.
func WriteCSV(w io.Writer, recs []sentiment.ScoredRecord, metricKeys []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string(nil), csvHeader...), metricKeys...)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range recs {
		created := ""
		if r.CreatedAt > 0 {
			created = time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339)
		}
		row := []string{
			string(r.Source),
			r.Bucket,
			r.ID,
			string(r.Label),
			strconv.FormatFloat(r.Score, 'f', 4, 64),
			strconv.FormatBool(r.Scored),
			r.Author,
			created,
			r.URL,
			r.Title,
			r.Text,
		}
		for _, k := range metricKeys {
			if v, ok := r.Metrics[k]; ok {
				row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMarkdown renders the summary table, keyword lists and, when present, the
// narrative report.
func WriteMarkdown(w io.Writer, b Brief, narrative string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Sentiment report: %s\n\n", defaultTopic(b.Topic))
	fmt.Fprintf(&sb, "%d records, %.1f%% positive, %.1f%% negative, average score %+.3f\n\n",
		b.Total, b.Overall.PositivePct, b.Overall.NegativePct(), b.Overall.AvgScore)

	sb.WriteString("| Bucket | Count | Positive | Neutral | Negative | Positive % | Avg score |\n")
	sb.WriteString("|---|---:|---:|---:|---:|---:|---:|\n")
	for _, bb := range b.Buckets {
		writeSummaryRow(&sb, bb.Summary)
	}

	fmt.Fprintf(&sb, "\n## Top positive terms\n\n%s\n", formatTerms(b.PositiveKeywords, true))
	fmt.Fprintf(&sb, "\n## Top negative terms\n\n%s\n", formatTerms(b.NegativeKeywords, true))
	fmt.Fprintf(&sb, "\n## Differentiators\n\n- Positive only: %s\n- Negative only: %s\n",
		formatTerms(b.OnlyPositive, false), formatTerms(b.OnlyNegative, false))

	if strings.TrimSpace(narrative) != "" {
		fmt.Fprintf(&sb, "\n## Analysis\n\n%s\n", strings.TrimSpace(narrative))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeSummaryRow(sb *strings.Builder, s aggregate.Summary) {
	fmt.Fprintf(sb, "| %s | %d | %d | %d | %d | %.1f | %+.4f |\n",
		strings.ReplaceAll(s.Bucket, "|", "\\|"), s.Count, s.PositiveCount, s.NeutralCount, s.NegativeCount, s.PositivePct, s.AvgScore)
}

var htmlPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
  body{font-family:Segoe UI,Arial,sans-serif;max-width:860px;margin:40px auto;background:#0a0c1a;color:#eef0fa;padding:0 1.5rem;}
  h1{color:#ff6b35;}
  pre{background:#141728;padding:1em;border-radius:4px;font-size:.9em;white-space:pre-wrap;}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<pre>{{.Body}}</pre>
</body>
</html>
`))

// WriteHTML wraps a markdown document in a standalone page. The markdown is
// shown preformatted and escaped, not rendered.
func WriteHTML(w io.Writer, title, markdown string) error {
	if title == "" {
		title = "Sentiment report"
	}
	return htmlPage.Execute(w, struct{ Title, Body string }{title, markdown})
}
