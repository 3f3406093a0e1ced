package sparql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/log"
)

const (
	// ContentTypeResults is the SPARQL 1.1 JSON results media type.
	ContentTypeResults = "application/sparql-results+json"

	// PingQuery is sent by Ping.
	PingQuery = "ASK { ?s ?p ?o }"

	maxErrorBody   = 64 << 10
	maxMessageRune = 500
)

// Client executes queries against a SPARQL 1.1 protocol endpoint.
type Client struct {
	endpoint      string
	httpClient    *http.Client
	timeout       time.Duration
	retry         *graph.RetryConfig
	defaultGraphs []string
	username      string
	password      string
	logger        log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetry sets the retry policy for transport failures.
func WithRetry(cfg *graph.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithDefaultGraphs sends default-graph-uri parameters with every query.
func WithDefaultGraphs(uris ...string) Option {
	return func(c *Client) {
		c.defaultGraphs = uris
	}
}

// WithBasicAuth sets endpoint credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for endpoint, e.g.
// http://localhost:7200/repositories/equestrian-kg.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	c := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		timeout:    30 * time.Second,
		retry:      graph.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry == nil {
		c.retry = graph.DefaultRetryConfig()
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	c.logger = log.OrDefault(c.logger)
	return c, nil
}

// Endpoint returns the endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Query runs a query. Transport failures are retried according to the retry
// policy; a rejected query is returned at once. Zero rows is not an error.
func (c *Client) Query(ctx context.Context, query string) (*Results, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	retry := *c.retry
	retry.RetryableErrors = func(err error) bool {
		var ee *ExecutionError
		return errors.As(err, &ee) && ee.retryable()
	}
	userOnRetry := c.retry.OnRetry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("sparql attempt %d failed: %v (retrying in %v)", attempt, err, delay)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}

	attempts := 0
	res, err := graph.Retry(ctx, &retry, func(ctx context.Context, attempt int) (*Results, error) {
		attempts = attempt
		return c.do(ctx, query)
	})
	if err == nil {
		return res, nil
	}

	var ee *ExecutionError
	if errors.As(err, &ee) {
		out := *ee
		out.Query = query
		out.Attempts = attempts
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.Err = err
		}
		return nil, &out
	}
	return nil, &ExecutionError{Kind: KindTransport, Query: query, Attempts: attempts, Err: err}
}

// Ping checks that the endpoint answers queries.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.Query(ctx, PingQuery)
	if err != nil {
		return err
	}
	if res.Boolean == nil {
		return &ExecutionError{Kind: KindTransport, Query: PingQuery, Message: "endpoint returned no boolean for ASK"}
	}
	return nil
}

func (c *Client) do(ctx context.Context, query string) (*Results, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("query", query)
	for _, g := range c.defaultGraphs {
		form.Add("default-graph-uri", g)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ExecutionError{Kind: KindTransport, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", ContentTypeResults)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExecutionError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &ExecutionError{Kind: KindQueryRejected, Status: resp.StatusCode, Message: errorMessage(resp)}
	case resp.StatusCode >= 300:
		return nil, &ExecutionError{Kind: KindTransport, Status: resp.StatusCode, Message: errorMessage(resp)}
	}

	var res Results
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, &ExecutionError{Kind: KindTransport, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err), decode: true}
	}
	if res.Results.Bindings == nil {
		res.Results.Bindings = []Binding{}
	}
	c.logger.Debug("sparql query returned %d rows", len(res.Results.Bindings))
	return &res, nil
}

// errorMessage reads an error body and reduces HTML pages to their text.
func errorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	msg := string(body)
	if isHTML(resp.Header.Get("Content-Type"), msg) {
		msg = htmlText(msg)
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if msg == "" {
		return http.StatusText(resp.StatusCode)
	}
	return truncate(msg, maxMessageRune)
}

func isHTML(contentType, body string) bool {
	if strings.Contains(contentType, "html") {
		return true
	}
	trimmed := strings.ToLower(strings.TrimSpace(body))
	return strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html")
}

func htmlText(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	doc.Find("script, style, head").Remove()
	// keep adjacent blocks apart once tags are gone
	doc.Find("body *").AppendHtml(" ")
	return doc.Find("body").Text()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
