package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
)

// userAgent identifies the crawler to the target site.
const userAgent = "atendente-ingest/1.0"

// minPageChars is the minimum extracted text length for a page to be worth
// indexing; navigation-only pages fall below it.
const minPageChars = 100

// Page is one crawled web page with its extracted visible text.
type Page struct {
	URL         string
	Title       string
	Description string
	Text        string
}

// skipSubstrings lists URL fragments that never contain indexable text:
// binary assets, uploads, and non-HTTP schemes.
var skipSubstrings = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".css", ".js",
	".zip", ".tar", ".gz", ".mp4", ".mp3", ".avi",
	"/wp-content/uploads/", "/wp-includes/",
	"mailto:", "tel:", "javascript:",
}

// Crawler performs a breadth-first same-domain crawl bounded by a page cap
// and a politeness delay between requests.
type Crawler struct {
	maxPages int
	delay    time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCrawler creates a crawler. delay spaces successive requests; maxPages
// caps how many pages are fetched per run.
func NewCrawler(maxPages int, delay, timeout time.Duration, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPages < 1 {
		maxPages = 1
	}
	return &Crawler{maxPages: maxPages, delay: delay, timeout: timeout, logger: logger}
}

// Crawl fetches up to maxPages same-domain pages starting at seed and
// returns their extracted text. Individual page failures are collected, not
// fatal; an unusable seed URL is.
func (c *Crawler) Crawl(ctx context.Context, seed string) ([]Page, []Failure, error) {
	seedURL, err := url.Parse(seed)
	if err != nil || seedURL.Host == "" {
		return nil, nil, fmt.Errorf("invalid seed URL %q: %w", seed, err)
	}

	host := seedURL.Hostname()
	collector := colly.NewCollector(
		colly.AllowedDomains(host, "www."+host, strings.TrimPrefix(host, "www.")),
		colly.UserAgent(userAgent),
	)
	collector.SetRequestTimeout(c.timeout)
	if err := collector.Limit(&colly.LimitRule{DomainGlob: "*", Delay: c.delay}); err != nil {
		return nil, nil, fmt.Errorf("configuring crawl delay: %w", err)
	}

	var (
		mu       sync.Mutex
		pages    []Page
		failures []Failure
		fetched  int
		next     []string
	)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if fetched >= c.maxPages {
			r.Abort()
			return
		}
		fetched++
	})

	// Links are queued for the next level instead of visited inline, which
	// keeps the traversal breadth-first: every page of one depth is fetched
	// before any page of the next, so under the page cap the seed's own
	// neighborhood wins over deep link chains.
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if !crawlableURL(link) {
			return
		}
		// Fragments are stripped before queuing so #section variants of a
		// page dedup to one fetch.
		if u, err := url.Parse(link); err == nil {
			link = NormalizeURL(u)
		}
		mu.Lock()
		next = append(next, link)
		mu.Unlock()
	})

	collector.OnResponse(func(r *colly.Response) {
		page, err := extractPage(r.Request.URL, r.Body)
		if err != nil {
			mu.Lock()
			failures = append(failures, Failure{Source: r.Request.URL.String(), Err: err})
			mu.Unlock()
			return
		}
		if len(page.Text) < minPageChars {
			c.logger.Debug("skipping thin page", "url", page.URL, "chars", len(page.Text))
			return
		}
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()
		c.logger.Info("crawled page", "url", page.URL, "chars", len(page.Text))
	})

	collector.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		// Aborted requests (page cap, cancellation) are not failures.
		if strings.Contains(err.Error(), "abort") {
			return
		}
		failures = append(failures, Failure{Source: r.Request.URL.String(), Err: err})
	})

	if err := collector.Visit(NormalizeURL(seedURL)); err != nil {
		return nil, nil, fmt.Errorf("visiting seed %s: %w", seed, err)
	}
	collector.Wait()

	for {
		mu.Lock()
		frontier := next
		next = nil
		capped := fetched >= c.maxPages
		mu.Unlock()
		if len(frontier) == 0 || capped || ctx.Err() != nil {
			break
		}
		for _, link := range frontier {
			// colly deduplicates visited URLs; the error for an
			// already-seen link is expected and ignored.
			_ = collector.Visit(link)
		}
		collector.Wait()
	}

	if ctx.Err() != nil {
		return pages, failures, fmt.Errorf("crawl canceled: %w", ctx.Err())
	}
	return pages, failures, nil
}

// crawlableURL filters out non-HTTP schemes and asset URLs.
func crawlableURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, pat := range skipSubstrings {
		if strings.Contains(lower, pat) {
			return false
		}
	}
	return true
}

// extractPage pulls the main readable text plus title/description metadata
// out of a fetched HTML body.
func extractPage(pageURL *url.URL, body []byte) (Page, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("extracting content: %w", err)
	}

	page := Page{
		URL:   NormalizeURL(pageURL),
		Title: article.Title,
		Text:  strings.TrimSpace(article.TextContent),
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		if page.Title == "" {
			page.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
		if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			page.Description = desc
		} else if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
			page.Description = desc
		}
	}

	return page, nil
}

// NormalizeURL canonicalizes a page URL for use as a source ID: fragments
// drop, the host lowercases, and a trailing slash on a non-root path drops.
// One run therefore never ingests the same page twice under spelling
// variants.
func NormalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.Host = strings.ToLower(c.Host)
	if c.Path == "" {
		c.Path = "/"
	} else if len(c.Path) > 1 {
		c.Path = strings.TrimSuffix(c.Path, "/")
	}
	return c.String()
}
