package tools

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
)

const (
	SearchToolName        = "search"
	searchToolDescription = "Useful for finding current information, technical documentation, or explaining memes. Input should be a search query."
	noResultsMessage      = "No results found."
	defaultMaxResults     = 5
)

// SearchConfig configures the web search tool.
type SearchConfig struct {
	HTTPConfig
	BaseURL    string // DuckDuckGo HTML frontend root
	MaxResults int
}

// SearchResult is one organic hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchTool queries DuckDuckGo's HTML frontend.
type SearchTool struct {
	cfg SearchConfig
}

// NewSearchTool creates a new search tool.
func NewSearchTool(cfg SearchConfig) *SearchTool {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SearchTool{cfg: cfg}
}

func (t *SearchTool) Name() string        { return SearchToolName }
func (t *SearchTool) Description() string { return searchToolDescription }
func (t *SearchTool) InputKey() string    { return "query" }

// Execute runs the query and formats up to MaxResults hits.
func (t *SearchTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	query := strings.TrimSpace(args["query"])
	if query == "" {
		return "Error performing search: empty query", nil
	}

	results, err := t.Search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Error performing search: %v", err), nil
	}
	return FormatResults(results), nil
}

// Search fetches and parses the result page.
func (t *SearchTool) Search(ctx context.Context, query string) ([]SearchResult, error) {
	endpoint := t.cfg.BaseURL + "/html/?q=" + url.QueryEscape(query)
	body, status, err := t.cfg.get(ctx, t.cfg.newClient(), endpoint, "text/html")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	var results []SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		results = append(results, SearchResult{
			Title:   title,
			URL:     unwrapRedirect(href),
			Snippet: strings.Join(strings.Fields(s.Find(".result__snippet").Text()), " "),
		})
		return len(results) < t.cfg.MaxResults
	})

	return results, nil
}

// FormatResults renders hits as blank-line separated Title/URL/Snippet blocks.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return noResultsMessage
	}
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("Title: %s\nURL: %s\nSnippet: %s", r.Title, r.URL, r.Snippet))
	}
	return strings.Join(blocks, "\n\n")
}

// unwrapRedirect turns DuckDuckGo's /l/?uddg= tracking links into the target URL.
func unwrapRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

var _ ports.Tool = (*SearchTool)(nil)
