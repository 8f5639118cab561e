// Package fetch performs the single network fetch each source needs per run.
//
// A Fetcher never retries: a failed source is simply picked up again by the
// next scheduled run, which keeps the fetcher stateless.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"pawhub/ingest-service/internal/model"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultMaxBytes = 5 << 20 // 5MB
	maxRedirects    = 5

	// AcceptHTML is sent by the classifieds scraper.
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	// AcceptJSON is sent to affiliate network APIs.
	AcceptJSON = "application/json, text/plain;q=0.9, */*;q=0.5"
)

// FetchError reports a failed fetch for one source. Status is zero when
// no HTTP response was received.
type FetchError struct {
	Source string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http %d: %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Config configures a Fetcher. Each job type gets its own Fetcher so the
// timeouts stay distinct.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	Accept    string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; PawHubBot/1.0)"
	}
	if c.Accept == "" {
		c.Accept = AcceptHTML
	}
}

// Fetcher retrieves a source's raw payload.
type Fetcher struct {
	client *http.Client
	config Config
}

// New constructs a Fetcher with a shared HTTP client.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch GETs src.FetchURL and returns the body, transcoded to UTF-8 when
// the response is text. Any transport error, timeout or non-2xx status is
// returned as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, src model.Source) ([]byte, error) {
	fail := func(status int, err error) error {
		return &FetchError{Source: src.ID, Status: status, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FetchURL, nil)
	if err != nil {
		return nil, fail(0, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", f.config.Accept)
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	if src.BaseURL != "" {
		req.Header.Set("Referer", src.BaseURL)
	}
	for k, v := range src.Rules.Headers {
		req.Header.Set(k, os.Expand(v, os.Getenv))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, fail(0, fmt.Errorf("timeout after %s: %w", f.config.Timeout, err))
		}
		return nil, fail(0, fmt.Errorf("http GET: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(snippet))))
	}

	var body io.Reader = io.LimitReader(resp.Body, f.config.MaxBytes)
	if isText(resp.Header.Get("Content-Type")) {
		if r, err := charset.NewReader(body, resp.Header.Get("Content-Type")); err == nil {
			body = r
		}
	}

	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	return payload, nil
}

// isText reports whether a Content-Type names markup or plain text whose
// charset may need converting. JSON is UTF-8 by definition.
func isText(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType == ""
	}
	return strings.HasPrefix(mt, "text/") || strings.HasSuffix(mt, "xml")
}
