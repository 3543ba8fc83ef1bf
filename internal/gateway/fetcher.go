package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/microcosm-cc/bluemonday"
)

// maxContentChars caps how much page content is handed to the model.
const maxContentChars = 48000

// Fetcher downloads a page and reduces it to the sanitized main-content
// HTML the extraction model is prompted with. Links are kept (and made
// absolute) because listing extraction needs them; everything executable
// or decorative is stripped.
type Fetcher struct {
	collector *colly.Collector
	policy    *bluemonday.Policy
}

// NewFetcher creates a Fetcher with rate limiting and proxy settings applied.
func NewFetcher(cfg Config) *Fetcher {
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	if cfg.RequestDelay > 0 {
		c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Delay:       cfg.RequestDelay,
			RandomDelay: cfg.RequestDelay / 2,
		})
	}

	if cfg.ProxyURL != "" {
		c.SetProxy(cfg.ProxyURL)
	}

	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}

	// Keep text structure and hrefs, drop everything else
	policy := bluemonday.NewPolicy()
	policy.AllowElements("p", "br", "div", "span")
	policy.AllowElements("strong", "b", "em", "i", "u")
	policy.AllowElements("ul", "ol", "li", "table", "tr", "td", "th")
	policy.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	policy.AllowElements("time")
	policy.AllowAttrs("href").OnElements("a")
	policy.AllowAttrs("datetime").OnElements("time")
	policy.AllowURLSchemes("http", "https")
	policy.RequireParseableURLs(true)

	return &Fetcher{collector: c, policy: policy}
}

// FetchContent downloads pageURL and returns its sanitized main content.
func (f *Fetcher) FetchContent(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var body []byte
	var fetchErr error

	collector := f.collector.Clone()

	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch error: %w (status: %d)", err, r.StatusCode)
	})

	if err := collector.Visit(pageURL); err != nil {
		return "", fmt.Errorf("visit url: %w", err)
	}
	collector.Wait()

	if fetchErr != nil {
		return "", fetchErr
	}
	if len(body) == 0 {
		return "", fmt.Errorf("empty response from %s", pageURL)
	}

	return f.mainContent(pageURL, string(body))
}

// mainContent picks the content-bearing subtree, resolves relative links
// against the page URL, and sanitizes the result down to prompt-safe HTML.
func (f *Fetcher) mainContent(pageURL, html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg, nav, header, footer, form").Remove()

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if ref, err := url.Parse(href); err == nil {
			s.SetAttr("href", base.ResolveReference(ref).String())
		}
	})

	sel := doc.Find("main").First()
	if sel.Length() == 0 {
		sel = doc.Find("article").First()
	}
	if sel.Length() == 0 {
		sel = doc.Find("body").First()
	}
	if sel.Length() == 0 {
		return "", fmt.Errorf("no content found")
	}

	raw, err := sel.Html()
	if err != nil {
		return "", fmt.Errorf("render content: %w", err)
	}

	content := strings.TrimSpace(f.policy.Sanitize(raw))
	if content == "" {
		return "", fmt.Errorf("no content left after sanitizing")
	}
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}
	return content, nil
}
