package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pagepick/backend/internal/model"
)

// DefaultMaxBodySize caps the bytes read from a page.
const DefaultMaxBodySize = 10 << 20

// HTTPFetcher performs a single HTTP GET. No scripts run.
type HTTPFetcher struct {
	client   *http.Client
	ua       string
	sanitize bool
	maxBody  int64
	log      logrus.FieldLogger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithTimeout sets the request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) { f.client.Timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) { f.ua = ua }
}

// WithSanitize enables stripping of scripts and embedded frames.
func WithSanitize(on bool) Option {
	return func(f *HTTPFetcher) { f.sanitize = on }
}

// WithMaxBodySize sets the largest page accepted, in bytes.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) { f.maxBody = n }
}

// WithLogger sets a custom logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *HTTPFetcher) { f.log = l }
}

// NewHTTPFetcher creates an HTTPFetcher with a 30s timeout and no sanitisation.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:      DefaultUserAgent,
		maxBody: DefaultMaxBodySize,
		log:     logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs pageURL and returns its HTML.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := ValidateURL(pageURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", model.ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", model.ErrFetchFailed, err)
	}
	if int64(len(body)) > f.maxBody {
		return "", fmt.Errorf("%w: page exceeds %d bytes", model.ErrFetchFailed, f.maxBody)
	}

	f.log.WithFields(logrus.Fields{
		"url":    u.String(),
		"status": resp.StatusCode,
		"size":   len(body),
	}).Debug("page fetched")

	return finish(string(body), f.sanitize)
}
