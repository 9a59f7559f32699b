// Package store implements the ticket store client: vector, keyword, and
// hybrid search over two collections ("bugs", "releases") with graceful
// degradation between a pgvector-backed primary and a substring-scan
// fallback, matching the dual-backend contract the engine's ticket store
// is specified against.
package store

import (
	"context"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
)

// Collection is a closed enumeration of the engine's two ticket tables.
type Collection string

const (
	Bugs     Collection = "bugs"
	Releases Collection = "releases"
)

// Filters restricts a search to rows matching every non-empty field.
type Filters struct {
	Project  string
	Type     string
	Status   string
	Priority string
}

// Document is a ticket record as read back from the store.
type Document struct {
	JiraID      string
	Key         string
	Project     string
	ProjectName string
	Priority    string
	Type        string
	Status      string
	Component   string
	Version     string
	Reporter    string
	Assignee    string
	Created     string
	Resolved    string
	Updated     string
	Title       string
	Description string
	Content     string
	Embedding   []float32
}

// TicketStore is the operation set every backend (primary or fallback)
// implements identically, so callers can swap backends without changing
// strategy code.
type TicketStore interface {
	VectorSearch(ctx context.Context, collection Collection, queryText string, k int, threshold float64, filters Filters) ([]ragcontext.RetrievedContext, error)
	KeywordSearch(ctx context.Context, collection Collection, queryText string, k int, filters Filters) ([]ragcontext.RetrievedContext, error)
	HybridSearch(ctx context.Context, collection Collection, queryText string, k int, threshold, vectorWeight, keywordWeight float64, filters Filters) ([]ragcontext.RetrievedContext, error)
	// TestConnection reports whether the backend is reachable, used by the
	// auto-backend selector. The /health endpoint does not call it.
	TestConnection(ctx context.Context) error
}

func formatContent(title, description string) string {
	if description == "" {
		return "Title: " + title
	}
	return "Title: " + title + "\n\nDescription: " + description
}

func docMetadata(d Document) map[string]string {
	m := map[string]string{
		"key":       d.Key,
		"jira_id":   d.JiraID,
		"project":   d.Project,
		"priority":  d.Priority,
		"type":      d.Type,
		"status":    d.Status,
		"component": d.Component,
		"version":   d.Version,
		"reporter":  d.Reporter,
		"assignee":  d.Assignee,
		"created":   d.Created,
		"title":     d.Title,
		"description": d.Description,
	}
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}

func matchesFilters(d Document, f Filters) bool {
	if f.Project != "" && d.Project != f.Project {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Priority != "" && d.Priority != f.Priority {
		return false
	}
	return true
}
