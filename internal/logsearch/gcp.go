package logsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// GCPBackend queries Google Cloud Logging's entries.list REST API. There is
// no Cloud Logging client actively exercised anywhere in the reference
// corpus (cloud.google.com/go appears only as an indirect transitive
// dependency of an unrelated Cloud SQL connector), so this talks to the
// REST API directly with an OAuth2 bearer token, in the same hand-rolled
// client idiom used for the web-search provider.
type GCPBackend struct {
	ProjectID  string
	LogName    string
	TokenFunc  func(ctx context.Context) (string, error)
	HTTPClient *http.Client
}

// NewGCPBackend builds a backend against the given project and log name.
// tokenFunc supplies a fresh OAuth2 bearer token per call (typically backed
// by Application Default Credentials); it is nil-safe for construction but
// Execute will fail without one.
func NewGCPBackend(projectID, logName string, tokenFunc func(ctx context.Context) (string, error)) *GCPBackend {
	return &GCPBackend{
		ProjectID:  projectID,
		LogName:    logName,
		TokenFunc:  tokenFunc,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *GCPBackend) Name() string { return "gcp" }

type gcpListRequest struct {
	ResourceNames []string `json:"resourceNames"`
	Filter        string   `json:"filter"`
	OrderBy       string   `json:"orderBy"`
	PageSize      int      `json:"pageSize"`
}

type gcpLogEntry struct {
	Timestamp   string            `json:"timestamp"`
	Severity    string            `json:"severity"`
	TextPayload string            `json:"textPayload"`
	LogName     string            `json:"logName"`
	Resource    struct {
		Type string `json:"type"`
	} `json:"resource"`
	Labels map[string]string `json:"labels"`
	JSONPayload map[string]interface{} `json:"jsonPayload"`
}

type gcpListResponse struct {
	Entries []gcpLogEntry `json:"entries"`
}

// Execute builds a Cloud Logging filter from the planned search and time
// range and lists matching entries.
func (g *GCPBackend) Execute(ctx context.Context, search Search) ([]Entry, error) {
	if g.TokenFunc == nil {
		return nil, fmt.Errorf("logsearch: gcp backend has no credential source configured")
	}
	token, err := g.TokenFunc(ctx)
	if err != nil {
		return nil, fmt.Errorf("logsearch: gcp auth: %w", err)
	}

	filter := g.buildFilter(search)
	reqBody, err := json.Marshal(gcpListRequest{
		ResourceNames: []string{fmt.Sprintf("projects/%s", g.ProjectID)},
		Filter:        filter,
		OrderBy:       "timestamp desc",
		PageSize:      search.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("logsearch: encode gcp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://logging.googleapis.com/v2/entries:list", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("logsearch: build gcp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("logsearch: gcp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("logsearch: gcp returned status %d", resp.StatusCode)
	}

	var parsed gcpListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("logsearch: decode gcp response: %w", err)
	}

	entries := make([]Entry, 0, len(parsed.Entries))
	for _, e := range parsed.Entries {
		message := e.TextPayload
		if message == "" {
			if b, err := json.Marshal(e.JSONPayload); err == nil {
				message = string(b)
			}
		}
		level := strings.ToUpper(e.Severity)
		if level == "" {
			level = ExtractLevel(message)
		}
		entries = append(entries, Entry{
			Message:      message,
			Timestamp:    e.Timestamp,
			Level:        level,
			Source:       g.LogName,
			Severity:     e.Severity,
			LogName:      e.LogName,
			ResourceType: e.Resource.Type,
		})
	}
	return entries, nil
}

func (g *GCPBackend) buildFilter(search Search) string {
	logName := g.LogName
	parts := []string{fmt.Sprintf(`logName="projects/%s/logs/%s"`, g.ProjectID, logName)}

	switch search.Type {
	case ExceptionSearch:
		if len(search.ExceptionTypes) > 0 {
			var terms []string
			for _, t := range search.ExceptionTypes {
				terms = append(terms, fmt.Sprintf(`"%s"`, t))
			}
			parts = append(parts, fmt.Sprintf("textPayload=~(%s)", strings.Join(terms, " OR ")))
		} else {
			parts = append(parts, `severity>=ERROR`)
		}
	case ProductionIssue:
		parts = append(parts, fmt.Sprintf(`textPayload:%q`, search.Query))
	default:
		if search.Query != "" {
			parts = append(parts, fmt.Sprintf(`textPayload:%q`, search.Query))
		}
	}

	if start, end, ok := ParseTimeRange(search.TimeRange, nowFunc()); ok {
		parts = append(parts,
			fmt.Sprintf(`timestamp>=%q`, start.UTC().Format(time.RFC3339)),
			fmt.Sprintf(`timestamp<=%q`, end.UTC().Format(time.RFC3339)))
	}

	return strings.Join(parts, " AND ")
}

var nowFuncImpl = time.Now

func nowFunc() time.Time { return nowFuncImpl() }
