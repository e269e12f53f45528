package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/elonfeng/sentradar/internal/store"
	"github.com/elonfeng/sentradar/pkg/aggregate"
	"github.com/elonfeng/sentradar/pkg/keywords"
	"github.com/elonfeng/sentradar/pkg/report"
	"github.com/elonfeng/sentradar/pkg/sentiment"
	"github.com/elonfeng/sentradar/pkg/session"
	"github.com/elonfeng/sentradar/pkg/source"
)

var errNotFound = errors.New("session not found")

// noData is the body returned when a session holds no records.
func noData(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"status": "no_data"}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Context, bool) {
	sess, ok := s.opts.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return nil, false
	}
	return sess, true
}

// metricKeys is the union of the metric keys of every source in the session.
func metricKeys(sess *session.Context) []string {
	var keys []string
	seen := make(map[string]struct{})
	for _, st := range sess.Sources() {
		for _, k := range source.MetricKeys(st) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func extractorFor(sess *session.Context) *keywords.Extractor {
	if srcs := sess.Sources(); len(srcs) > 0 {
		return keywords.ForSource(string(srcs[0]))
	}
	return keywords.New()
}

type sessionInfo struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Records   int               `json:"records"`
	Sources   []string          `json:"sources"`
	Filter    session.Filter    `json:"filter"`
	Warnings  []session.Warning `json:"warnings"`
}

func describeSession(sess *session.Context) sessionInfo {
	info := sessionInfo{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Records:   sess.Len(),
		Filter:    sess.Filter(),
		Warnings:  sess.Warnings(),
	}
	for _, st := range sess.Sources() {
		info.Sources = append(info.Sources, string(st))
	}
	return info
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.opts.Sessions.Create()
	if !s.opts.DefaultFilter.IsZero() {
		sess.SetFilter(s.opts.DefaultFilter)
	}
	writeJSON(w, http.StatusCreated, describeSession(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describeSession(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.opts.Sessions.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Clear()
	writeJSON(w, http.StatusOK, describeSession(sess))
}

type fetchRequest struct {
	Source          string   `json:"source"`
	Buckets         []string `json:"buckets"`
	Target          int      `json:"target"`
	Sort            string   `json:"sort"`
	TimeFilter      string   `json:"time_filter"`
	Lang            string   `json:"lang"`
	ExcludeReplies  bool     `json:"exclude_replies"`
	ExcludeRetweets bool     `json:"exclude_retweets"`
}

func (req fetchRequest) queries() ([]source.Query, error) {
	if len(req.Buckets) == 0 {
		return nil, fmt.Errorf("no buckets given")
	}
	qs := make([]source.Query, 0, len(req.Buckets))
	for _, spec := range req.Buckets {
		q, err := source.ParseQuery(spec)
		if err != nil {
			return nil, err
		}
		q.Sort = req.Sort
		q.TimeFilter = req.TimeFilter
		q.Lang = req.Lang
		q.ExcludeReplies = req.ExcludeReplies
		q.ExcludeRetweets = req.ExcludeRetweets
		qs = append(qs, q)
	}
	return qs, nil
}

type bucketStatus struct {
	Bucket  string `json:"bucket"`
	Records int    `json:"records"`
	Pages   int    `json:"pages"`
	Partial bool   `json:"partial,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode fetch request: %w", err))
		return
	}
	st, err := source.ParseSourceType(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	queries, err := req.queries()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.opts.Sources == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no sources configured"))
		return
	}
	src, err := s.opts.Sources(st)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	target := req.Target
	if target <= 0 {
		target = s.opts.Target
	}

	res := s.opts.Runner.Run(r.Context(), sess, src, queries, target)

	statuses := make([]bucketStatus, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		bs := bucketStatus{Bucket: b.Query.Bucket, Records: len(b.Records), Pages: b.Pages, Partial: b.Partial}
		if b.Err != nil {
			bs.Error = b.Err.Error()
		}
		statuses = append(statuses, bs)
	}
	body := map[string]any{
		"buckets":  statuses,
		"warnings": res.Warnings,
		"fetched":  res.Total(),
		"added":    res.Added,
	}
	if sess.Empty() {
		noData(w, body)
		return
	}
	body["status"] = "ok"
	body["records"] = sess.Len()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.Empty() {
		noData(w, nil)
		return
	}
	metrics := metricKeys(sess)
	sums := sess.Summaries(metrics...)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"overall": sess.Overall(metrics...),
		"data":    sums,
		"count":   len(sums),
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.Empty() {
		noData(w, nil)
		return
	}
	var extra session.Filter
	if v := r.URL.Query().Get("label"); v != "" {
		label, err := sentiment.ParseLabel(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		extra.Labels = []sentiment.Label{label}
	}
	if v := r.URL.Query().Get("bucket"); v != "" {
		extra.Buckets = []string{v}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var out []sentiment.ScoredRecord
	for _, rec := range sess.Records() {
		if !extra.Match(rec) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data":   out,
		"count":  len(out),
	})
}

func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.Empty() {
		noData(w, nil)
		return
	}
	var label sentiment.Label
	if v := r.URL.Query().Get("label"); v != "" {
		l, err := sentiment.ParseLabel(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		label = l
	}
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))
	if top <= 0 {
		top = 30
	}
	terms := sess.Keywords(extractorFor(sess), label, top)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"label":  label,
		"data":   terms,
		"count":  len(terms),
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	iv, err := aggregate.ParseInterval(r.URL.Query().Get("interval"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if sess.Empty() {
		noData(w, nil)
		return
	}
	points := sess.Timeline(iv)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"interval": iv,
		"data":     points,
		"count":    len(points),
	})
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	at, err := strconv.ParseInt(r.URL.Query().Get("at"), 10, 64)
	if err != nil || at <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("at must be a positive Unix timestamp"))
		return
	}
	if sess.Empty() {
		noData(w, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data":   sess.SplitAt(at, metricKeys(sess)...),
	})
}

// eventLister is implemented by sources that publish release announcements.
type eventLister interface {
	Events(ctx context.Context, appID int, game string) ([]source.Event, error)
}

func (s *Server) handleSteamEvents(w http.ResponseWriter, r *http.Request) {
	appID, err := strconv.Atoi(chi.URLParam(r, "appid"))
	if err != nil || appID <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("app id %q is not numeric", chi.URLParam(r, "appid")))
		return
	}
	if s.opts.Sources == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no sources configured"))
		return
	}
	src, err := s.opts.Sources(source.SourceSteam)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	lister, ok := src.(eventLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("%s source does not list events", src.Name()))
		return
	}
	events, err := lister.Events(r.Context(), appID, r.URL.Query().Get("game"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data":   events,
		"count":  len(events),
	})
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var f session.Filter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode filter: %w", err))
		return
	}
	for i, l := range f.Labels {
		label, err := sentiment.ParseLabel(string(l))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		f.Labels[i] = label
	}
	sess.SetFilter(f)

	metrics := metricKeys(sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"filter":  f,
		"overall": sess.Overall(metrics...),
		"data":    sess.Summaries(metrics...),
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.Empty() {
		noData(w, nil)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, sess.Records(), metricKeys(sess)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=sentiment_%s.csv", sess.ID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type reportRequest struct {
	Topic  string `json:"topic"`
	Focus  string `json:"focus"`
	Tone   string `json:"tone"`
	Format string `json:"format"` // "json" (default) or "html"
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode report request: %w", err))
		return
	}
	if sess.Empty() {
		noData(w, nil)
		return
	}
	focus, err := report.ParseFocus(req.Focus)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tone, err := report.ParseTone(req.Tone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	brief := report.BuildBrief(req.Topic, sess.Records(), extractorFor(sess))
	prompt, err := report.BuildPrompt(brief, focus, tone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.opts.Generator.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":  report.ErrNoAPIKey.Error(),
			"prompt": prompt,
		})
		return
	}

	narrative, err := s.opts.Generator.Generate(r.Context(), prompt)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	var doc bytes.Buffer
	if err := report.WriteMarkdown(&doc, brief, narrative); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if strings.EqualFold(req.Format, "html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		report.WriteHTML(w, "Sentiment report: "+brief.Topic, doc.String())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"report":   narrative,
		"document": doc.String(),
		"brief":    brief,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("archive not configured"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.opts.Archive.ListRuns(r.Context(), store.ListOpts{
		Topic:  r.URL.Query().Get("topic"),
		Source: source.SourceType(r.URL.Query().Get("source")),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleRunSummaries(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("archive not configured"))
		return
	}
	sums, err := s.opts.Archive.RunSummaries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(sums) == 0 {
		noData(w, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"data":   sums,
		"count":  len(sums),
	})
}
