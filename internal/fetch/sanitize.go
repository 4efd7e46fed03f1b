package fetch

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	pagePolicyOnce sync.Once
	pagePolicy     *bluemonday.Policy
)

// PagePolicy returns the policy applied to fetched page bodies. It drops
// scripts, frames and event handlers but keeps the structure selectors rely
// on: layout elements, id, class and data-* attributes, and media sources.
func PagePolicy() *bluemonday.Policy {
	pagePolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowElements(
			"nav", "header", "footer", "main", "section", "article", "aside",
			"figure", "figcaption", "picture", "video", "audio", "source",
			"form", "label", "button", "input", "select", "option", "textarea",
		)
		policy.AllowAttrs("id", "class", "title", "lang").Globally()
		policy.AllowDataAttributes()
		policy.AllowAttrs("src", "poster", "controls", "type").OnElements("video", "audio", "source")
		policy.AllowAttrs("srcset", "media").OnElements("source", "img")
		policy.AllowAttrs("type", "name", "value", "placeholder").OnElements("input", "button", "select", "option", "textarea")
		policy.AllowAttrs("action", "method").OnElements("form")
		policy.AllowAttrs("for").OnElements("label")
		policy.AllowURLSchemes("http", "https", "mailto")
		policy.AllowRelativeURLs(true)
		pagePolicy = policy
	})
	return pagePolicy
}

// Sanitize cleans the body of page with PagePolicy and rebuilds a minimal
// document around it, keeping the title and the body's id and class.
func Sanitize(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	body := doc.Find("body").First()
	inner, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("failed to read page body: %w", err)
	}

	var attrs strings.Builder
	for _, name := range []string{"id", "class"} {
		if v, ok := body.Attr(name); ok && v != "" {
			fmt.Fprintf(&attrs, ` %s="%s"`, name, html.EscapeString(v))
		}
	}

	return fmt.Sprintf("<!DOCTYPE html><html><head><title>%s</title></head><body%s>%s</body></html>",
		html.EscapeString(title), attrs.String(), PagePolicy().Sanitize(inner)), nil
}
