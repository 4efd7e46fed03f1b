// Package fetch retrieves the HTML a viewer renders: a plain HTTP GET for
// static pages, or a headless Chrome render for script-built pages.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pagepick/backend/internal/model"
)

// Fetch modes.
const (
	ModeHTTP   = "http"
	ModeChrome = "chrome"
)

// DefaultUserAgent is sent by both fetchers.
const DefaultUserAgent = "Mozilla/5.0 (compatible; PagePick/1.0)"

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Config selects and configures a Fetcher.
type Config struct {
	Mode      string
	Timeout   time.Duration
	Sanitize  bool
	UserAgent string
	Logger    logrus.FieldLogger
}

// New builds the Fetcher for cfg.Mode.
func New(cfg Config) (Fetcher, error) {
	switch cfg.Mode {
	case "", ModeHTTP:
		opts := []Option{WithSanitize(cfg.Sanitize)}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.UserAgent != "" {
			opts = append(opts, WithUserAgent(cfg.UserAgent))
		}
		if cfg.Logger != nil {
			opts = append(opts, WithLogger(cfg.Logger))
		}
		return NewHTTPFetcher(opts...), nil
	case ModeChrome:
		return &ChromeFetcher{
			Timeout:   cfg.Timeout,
			UserAgent: cfg.UserAgent,
			Sanitize:  cfg.Sanitize,
			Logger:    cfg.Logger,
		}, nil
	}
	return nil, fmt.Errorf("unknown fetch mode %q", cfg.Mode)
}

// ValidateURL checks that pageURL is an absolute http or https URL.
func ValidateURL(pageURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, model.ErrInvalidURL
	}
	return u, nil
}

// finish rejects blank pages and applies sanitisation.
func finish(page string, sanitize bool) (string, error) {
	if strings.TrimSpace(page) == "" {
		return "", model.ErrEmptyDocument
	}
	if !sanitize {
		return page, nil
	}
	return Sanitize(page)
}
