package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/elonfeng/sentradar/internal/logging"
	"github.com/elonfeng/sentradar/internal/metrics"
)

const maxBodyBytes = 32 << 20

// DefaultUserAgent identifies the tool to the upstream APIs.
const DefaultUserAgent = "sentradar/1.0 (sentiment analytics)"

// Config controls timeouts and the retry ceiling.
type Config struct {
	Timeout   time.Duration
	Attempts  int
	Backoff   time.Duration
	UserAgent string
}

// DefaultConfig mirrors the upstream-friendly defaults: 12s timeout, 3 attempts, 2s backoff.
func DefaultConfig() Config {
	return Config{
		Timeout:   12 * time.Second,
		Attempts:  3,
		Backoff:   2 * time.Second,
		UserAgent: DefaultUserAgent,
	}
}

// Request describes a single GET.
type Request struct {
	URL    string
	Params url.Values
	Header http.Header
	// Source labels logs and metrics.
	Source string
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc. The wait is real; ctx only cuts it short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client issues GETs with a fixed header set and bounded retry on 429 and network errors.
type Client struct {
	http    *http.Client
	cfg     Config
	policy  retrypolicy.RetryPolicy[*attemptResult]
	sleep   SleepFunc
	log     logging.Logger
	metrics *metrics.Metrics
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSleep replaces the backoff sleeper, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// New creates a fetch client.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	c := &Client{
		http:  &http.Client{Timeout: cfg.Timeout},
		cfg:   cfg,
		sleep: Sleep,
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Delays are applied inside the attempt function because they depend on
	// what the previous attempt saw (linear on 429, fixed on network errors).
	c.policy = retrypolicy.NewBuilder[*attemptResult]().
		HandleIf(func(r *attemptResult, err error) bool {
			return shouldRetry(r, err)
		}).
		WithMaxRetries(cfg.Attempts - 1).
		Build()

	return c
}

type attemptResult struct {
	status int
	body   []byte
	err    error
	// stopped is set when the caller's context ended; only then does an
	// error stop the retries. Client.Timeout expiries are retried.
	stopped bool
}

func shouldRetry(r *attemptResult, err error) bool {
	if r != nil && r.stopped {
		return false
	}
	if err != nil {
		return true
	}
	return r != nil && r.status == http.StatusTooManyRequests
}

// Get performs the request and returns the raw body of a 200 response.
func (c *Client) Get(ctx context.Context, req Request) ([]byte, error) {
	body, _, _, err := c.get(ctx, req)
	return body, err
}

func (c *Client) get(ctx context.Context, req Request) (body []byte, target string, attempts int, err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveDuration(req.Source, time.Since(start).Seconds())
	}()

	target, err = buildURL(req.URL, req.Params)
	if err != nil {
		return nil, req.URL, 0, &Error{Kind: KindInvalid, URL: req.URL, Err: err}
	}

	entry := c.log.WithFields(logging.Fields{"source": req.Source, "url": target})

	var last *attemptResult
	// The executor result is ignored: the final attempt is tracked in last.
	_, _ = failsafe.With(c.policy).WithContext(ctx).Get(func() (*attemptResult, error) {
		if attempts > 0 {
			wait := c.backoffAfter(attempts-1, last)
			reason := "network"
			if last != nil && last.status == http.StatusTooManyRequests {
				reason = "rate_limited"
			}
			c.metrics.ObserveRetry(reason)
			entry.WithFields(logging.Fields{"attempt": attempts + 1, "wait": wait, "reason": reason}).
				Debug("retrying fetch")
			if err := c.sleep(ctx, wait); err != nil {
				last = &attemptResult{err: err, stopped: true}
				return last, err
			}
		}
		attempts++
		last = c.do(ctx, target, req.Header)
		last.stopped = last.err != nil && ctx.Err() != nil
		c.metrics.ObserveRequest(req.Source, outcomeLabel(last))
		return last, last.err
	})

	if last != nil && last.err == nil && last.status == http.StatusOK {
		entry.WithField("attempts", attempts).Debug("fetch ok")
		return last.body, target, attempts, nil
	}

	ferr := classify(ctx, target, attempts, last)
	entry.WithError(ferr).Debug("fetch failed")
	return nil, target, attempts, ferr
}

// GetJSON performs Get and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, req Request, out any) error {
	body, target, attempts, err := c.get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindDecode, URL: target, Attempts: attempts, Err: err}
	}
	return nil
}

func (c *Client) backoffAfter(attemptIdx int, prev *attemptResult) time.Duration {
	if prev != nil && prev.status == http.StatusTooManyRequests {
		return c.cfg.Backoff * time.Duration(attemptIdx+1)
	}
	return c.cfg.Backoff
}

func (c *Client) do(ctx context.Context, target string, extra http.Header) *attemptResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &attemptResult{err: err}
	}
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, vals := range extra {
		httpReq.Header.Del(k)
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &attemptResult{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &attemptResult{status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &attemptResult{err: fmt.Errorf("read body: %w", err)}
	}
	return &attemptResult{status: resp.StatusCode, body: body}
}

func classify(ctx context.Context, target string, attempts int, last *attemptResult) *Error {
	if ctx.Err() != nil {
		return &Error{Kind: KindCanceled, URL: target, Attempts: attempts, Err: ctx.Err()}
	}
	if last == nil {
		return &Error{Kind: KindCanceled, URL: target, Attempts: attempts, Err: context.Canceled}
	}
	if last.err != nil {
		return &Error{Kind: KindNetwork, URL: target, Attempts: attempts, Err: last.err}
	}
	if last.status == http.StatusTooManyRequests {
		return &Error{Kind: KindRateLimited, StatusCode: last.status, URL: target, Attempts: attempts}
	}
	return &Error{Kind: KindStatus, StatusCode: last.status, URL: target, Attempts: attempts}
}

func outcomeLabel(r *attemptResult) string {
	switch {
	case r.err != nil:
		return "network"
	case r.status == http.StatusOK:
		return "ok"
	case r.status == http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "status"
	}
}

func buildURL(raw string, params url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vals := range params {
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
