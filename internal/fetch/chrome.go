package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/pagepick/backend/internal/model"
)

// ChromeFetcher renders the page in headless Chrome and returns the DOM as
// serialized after scripts ran.
type ChromeFetcher struct {
	Timeout   time.Duration
	UserAgent string
	Sanitize  bool
	Logger    logrus.FieldLogger
}

// Fetch navigates to pageURL, waits for <body> and returns the outer HTML.
func (f *ChromeFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := ValidateURL(pageURL)
	if err != nil {
		return "", err
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t0 := time.Now()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(ua),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err = chromedp.Run(bctx,
		chromedp.Navigate(u.String()),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrFetchFailed, err)
	}

	if f.Logger != nil {
		f.Logger.WithFields(logrus.Fields{
			"url":       u.String(),
			"size":      len(html),
			"render_ms": time.Since(t0).Milliseconds(),
		}).Debug("page rendered")
	}

	return finish(html, f.Sanitize)
}
