package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/emvidros/atendente/internal/log"
)

// testSite serves a small linked site. Each page carries enough text to pass
// the minimum-length filter.
func testSite(t *testing.T) *httptest.Server {
	t.Helper()

	filler := strings.Repeat("Vidro temperado sob medida para sua casa. ", 10)
	mux := http.NewServeMux()
	page := func(title, links string) string {
		return fmt.Sprintf(`<html><head><title>%s</title>
			<meta name="description" content="descrição de %s"></head>
			<body><article><h1>%s</h1><p>%s</p>%s</article></body></html>`,
			title, title, title, filler, links)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page("Início", `<a href="/produtos">produtos</a> <a href="/contato">contato</a> <a href="/catalogo.pdf">catálogo</a> <a href="mailto:x@y.z">mail</a>`))
	})
	mux.HandleFunc("/produtos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("Produtos", `<a href="/">início</a> <a href="/contato">contato</a>`))
	})
	mux.HandleFunc("/contato", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("Contato", `<a href="/produtos#secao">produtos de novo</a>`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawlVisitsLinkedPages(t *testing.T) {
	srv := testSite(t)

	c := NewCrawler(10, 0, 5*time.Second, log.NewNop())
	pages, failures, err := c.Crawl(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("unexpected failures: %v", failures)
	}
	if len(pages) != 3 {
		titles := make([]string, len(pages))
		for i, p := range pages {
			titles[i] = p.Title
		}
		t.Fatalf("crawled %d pages, want 3: %v", len(pages), titles)
	}

	byTitle := make(map[string]Page, len(pages))
	for _, p := range pages {
		byTitle[p.Title] = p
	}
	for _, title := range []string{"Início", "Produtos", "Contato"} {
		p, ok := byTitle[title]
		if !ok {
			t.Errorf("page %q not crawled", title)
			continue
		}
		if !strings.Contains(p.Text, "Vidro temperado") {
			t.Errorf("page %q text not extracted: %q", title, p.Text)
		}
		if p.Description == "" {
			t.Errorf("page %q has no description", title)
		}
	}
}

// TestCrawlIsBreadthFirstUnderPageCap pins the traversal order: the seed
// links three siblings, one of which heads a deep chain. Level order means
// the cap is spent on the siblings, never on the chain.
func TestCrawlIsBreadthFirstUnderPageCap(t *testing.T) {
	filler := strings.Repeat("Espelho bisotado e vidro canelado para ambientes internos. ", 8)
	page := func(title, links string) string {
		return fmt.Sprintf(`<html><head><title>%s</title></head>
			<body><article><h1>%s</h1><p>%s</p>%s</article></body></html>`,
			title, title, filler, links)
	}
	mux := http.NewServeMux()
	serve := func(path, title, links string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if path == "/" && r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, page(title, links))
		})
	}
	serve("/", "Início", `<a href="/produtos">p</a> <a href="/servicos">s</a> <a href="/contato">c</a>`)
	serve("/produtos", "Produtos", `<a href="/historia">h</a>`)
	serve("/servicos", "Serviços", "")
	serve("/contato", "Contato", "")
	serve("/historia", "História", `<a href="/historia-2">h2</a>`)
	serve("/historia-2", "História 2", `<a href="/historia-3">h3</a>`)
	serve("/historia-3", "História 3", "")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewCrawler(4, 0, 5*time.Second, log.NewNop())
	pages, failures, err := c.Crawl(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if len(failures) != 0 {
		t.Errorf("unexpected failures: %v", failures)
	}

	got := make(map[string]bool, len(pages))
	for _, p := range pages {
		got[p.Title] = true
	}
	for _, title := range []string{"Início", "Produtos", "Serviços", "Contato"} {
		if !got[title] {
			t.Errorf("level-one page %q not crawled: %v", title, got)
		}
	}
	if len(pages) != 4 {
		t.Errorf("crawled %d pages with a cap of 4: %v", len(pages), got)
	}
}

func TestCrawlRespectsPageCap(t *testing.T) {
	srv := testSite(t)

	c := NewCrawler(1, 0, 5*time.Second, log.NewNop())
	pages, _, err := c.Crawl(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if len(pages) > 1 {
		t.Errorf("crawled %d pages with a cap of 1", len(pages))
	}
}

func TestCrawlStopsOnCanceledContext(t *testing.T) {
	srv := testSite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCrawler(10, 0, 5*time.Second, log.NewNop())
	pages, _, err := c.Crawl(ctx, srv.URL)
	if err == nil {
		t.Fatal("Crawl succeeded with a canceled context")
	}
	if len(pages) != 0 {
		t.Errorf("crawled %d pages after cancellation", len(pages))
	}
}

func TestCrawlRejectsInvalidSeed(t *testing.T) {
	t.Parallel()

	c := NewCrawler(10, 0, time.Second, log.NewNop())
	if _, _, err := c.Crawl(context.Background(), "not a url"); err == nil {
		t.Fatal("Crawl accepted an unusable seed")
	}
}

func TestCrawlableURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/produtos", true},
		{"http://example.com/", true},
		{"https://example.com/catalogo.pdf", false},
		{"https://example.com/foto.JPG", false},
		{"https://example.com/wp-content/uploads/doc", false},
		{"mailto:vendas@example.com", false},
		{"tel:+5511999999999", false},
		{"javascript:void(0)", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			if got := crawlableURL(tt.url); got != tt.want {
				t.Errorf("crawlableURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/Produtos/", "https://example.com/Produtos"},
		{"https://example.com/produtos#secao", "https://example.com/produtos"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com/a/b", "https://example.com/a/b"},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.in)
		if err != nil {
			t.Fatalf("parsing %q: %v", tt.in, err)
		}
		if got := NormalizeURL(u); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
