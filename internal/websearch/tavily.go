package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TavilyProvider implements Provider against Tavily's search API. There is
// no Go SDK for Tavily in the reference corpus, so this is a thin REST
// client in the same hand-rolled idiom the Jira client used for its own
// REST calls, rather than a pulled-in framework for three HTTP calls.
type TavilyProvider struct {
	APIKey     string
	HTTPClient *http.Client
	BaseURL    string
}

// NewTavilyProvider builds a client against Tavily's hosted API.
func NewTavilyProvider(apiKey string) *TavilyProvider {
	return &TavilyProvider{
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    "https://api.tavily.com",
	}
}

func (p *TavilyProvider) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResult struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Published string  `json:"published_date"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

func (p *TavilyProvider) Search(ctx context.Context, query string) ([]Hit, error) {
	return p.search(ctx, query, nil)
}

// SearchStatusPages narrows results to well-known status-page domains,
// mirroring the original's dedicated status-page search branch.
func (p *TavilyProvider) SearchStatusPages(ctx context.Context, query string) ([]Hit, error) {
	return p.search(ctx, query, []string{"status.io", "statuspage.io", "githubstatus.com"})
}

func (p *TavilyProvider) search(ctx context.Context, query string, domains []string) ([]Hit, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:         p.APIKey,
		Query:          query,
		SearchDepth:    "basic",
		IncludeDomains: domains,
		MaxResults:     10,
	})
	if err != nil {
		return nil, fmt.Errorf("websearch: encode tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("websearch: build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: tavily request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("websearch: tavily returned status %d", resp.StatusCode)
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("websearch: decode tavily response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		hits = append(hits, Hit{
			Title:     r.Title,
			URL:       r.URL,
			Snippet:   r.Content,
			Timestamp: r.Published,
			Relevance: r.Score,
		})
	}
	return hits, nil
}
