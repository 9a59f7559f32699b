package logsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SplunkBackend queries a Splunk REST search endpoint using the oneshot
// search mode (search job runs synchronously and returns results inline).
// No Splunk SDK appears anywhere in the reference corpus, so this is a thin
// REST client in the same idiom as the web-search provider and the GCP
// backend above.
type SplunkBackend struct {
	BaseURL    string // e.g. https://splunk.internal:8089
	Token      string // HEC/bearer token
	Index      string
	HTTPClient *http.Client
}

// NewSplunkBackend builds a backend against a Splunk management endpoint.
func NewSplunkBackend(baseURL, token, index string) *SplunkBackend {
	return &SplunkBackend{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		Index:      index,
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *SplunkBackend) Name() string { return "splunk" }

type splunkResult struct {
	Raw       string `json:"_raw"`
	Time      string `json:"_time"`
	Source    string `json:"source"`
	SourceType string `json:"sourcetype"`
	Host      string `json:"host"`
}

type splunkOneshotResponse struct {
	Results []splunkResult `json:"results"`
}

// Execute runs a oneshot SPL search built from the planned search and time
// range against the configured index.
func (s *SplunkBackend) Execute(ctx context.Context, search Search) ([]Entry, error) {
	spl := s.buildSearch(search)

	form := url.Values{}
	form.Set("search", spl)
	form.Set("output_mode", "json")
	form.Set("exec_mode", "oneshot")
	form.Set("count", strconv.Itoa(search.MaxResults))

	if start, end, ok := ParseTimeRange(search.TimeRange, time.Now()); ok {
		form.Set("earliest_time", start.UTC().Format(time.RFC3339))
		form.Set("latest_time", end.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.BaseURL+"/services/search/jobs", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("logsearch: build splunk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("logsearch: splunk request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("logsearch: splunk returned status %d", resp.StatusCode)
	}

	var parsed splunkOneshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("logsearch: decode splunk response: %w", err)
	}

	entries := make([]Entry, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		entries = append(entries, Entry{
			Message:   r.Raw,
			Timestamp: r.Time,
			Level:     ExtractLevel(r.Raw),
			Logger:    r.SourceType,
			Source:    r.Source,
		})
	}
	return entries, nil
}

func (s *SplunkBackend) buildSearch(search Search) string {
	var spl strings.Builder
	spl.WriteString(fmt.Sprintf("search index=%s", s.Index))

	switch search.Type {
	case ExceptionSearch:
		if len(search.ExceptionTypes) > 0 {
			spl.WriteString(fmt.Sprintf(" (%s)", strings.Join(search.ExceptionTypes, " OR ")))
		} else {
			spl.WriteString(" ERROR")
		}
	case ProductionIssue:
		spl.WriteString(fmt.Sprintf(" %s", search.Query))
	default:
		if search.Query != "" {
			spl.WriteString(fmt.Sprintf(" %s", search.Query))
		}
	}

	return spl.String()
}
