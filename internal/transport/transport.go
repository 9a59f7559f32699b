// Package transport exposes the engine over HTTP: the multiagent-rag
// endpoint, a debug routing-only endpoint, health, and Prometheus metrics.
// The JSON response helper and shared-secret auth check are adapted from
// the teacher's own hand-rolled HTTP error/auth helpers, generalized from
// its A2A-server middleware to a plain net/http mux.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/metrics"
	"github.com/tuannvm/multiagent-rag/internal/orchestrator"
)

// Processor is the capability the transport layer depends on; satisfied by
// *orchestrator.Orchestrator.
type Processor interface {
	Process(ctx context.Context, query string, userCanWait, productionIncident bool) orchestrator.Response
}

// Auth validates an inbound request before it reaches the orchestrator. The
// no-op default accepts every request; SharedSecretAuth enforces a header.
type Auth interface {
	Authenticate(r *http.Request) error
}

// NoAuth accepts every request.
type NoAuth struct{}

func (NoAuth) Authenticate(*http.Request) error { return nil }

// SharedSecretAuth requires the given header to carry the configured key,
// the same shared-secret pattern the teacher's apikey auth branch used.
type SharedSecretAuth struct {
	Header string
	Key    string
}

func (a SharedSecretAuth) Authenticate(r *http.Request) error {
	if a.Header == "" {
		a.Header = "X-API-Key"
	}
	if r.Header.Get(a.Header) != a.Key {
		return errUnauthorized
	}
	return nil
}

var errUnauthorized = httpError{status: http.StatusUnauthorized, message: "unauthorized"}

type httpError struct {
	status  int
	message string
}

func (e httpError) Error() string { return e.message }

// Server bundles the handlers the engine exposes.
type Server struct {
	Orchestrator Processor
	Auth         Auth
	Metrics      *metrics.Registry
	log          interface {
		Warnf(string, ...interface{})
		Errorf(string, ...interface{})
	}
}

// New builds a server. A nil Auth defaults to NoAuth.
func New(proc Processor, auth Auth, reg *metrics.Registry) *Server {
	if auth == nil {
		auth = NoAuth{}
	}
	return &Server{Orchestrator: proc, Auth: auth, Metrics: reg, log: logging.Named("transport")}
}

// Mux builds the HTTP routing table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/multiagent-rag", s.withAuth(s.handleMultiagentRAG))
	mux.HandleFunc("/debug/routing", s.withAuth(s.handleDebugRouting))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Auth.Authenticate(r); err != nil {
			status := http.StatusUnauthorized
			if httpErr, ok := err.(httpError); ok {
				status = httpErr.status
			}
			returnJSONError(w, status, err.Error())
			return
		}
		next(w, r)
	}
}

type ragRequest struct {
	Query              string `json:"query"`
	UserCanWait        bool   `json:"user_can_wait"`
	ProductionIncident bool   `json:"production_incident"`
}

func decodeRequest(r *http.Request) (ragRequest, error) {
	var req ragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ragRequest{}, err
	}
	return req, nil
}

type contextJSON struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Source   string            `json:"source"`
	Score    float64           `json:"score"`
}

type ticketJSON struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

type retrievalMetadataJSON struct {
	Agent            string   `json:"agent"`
	NumResults       int      `json:"num_results"`
	ProcessingTime   float64  `json:"processing_time"`
	MethodType       string   `json:"method_type"`
	MethodsUsed      []string `json:"methods_used"`
	RerankerUsed     bool     `json:"reranker_used"`
	KeywordIndexUsed bool     `json:"keyword_index_used"`
	FilteringApplied bool     `json:"filtering_applied"`
	Warnings         []string `json:"warnings,omitempty"`
}

type messageJSON struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type ragResponse struct {
	Query                string                `json:"query"`
	FinalAnswer          string                `json:"final_answer"`
	RelevantTickets      []ticketJSON          `json:"relevant_tickets"`
	RoutingDecision      string                `json:"routing_decision"`
	RoutingReasoning     string                `json:"routing_reasoning"`
	RetrievalMethod      string                `json:"retrieval_method"`
	RetrievedContexts    []contextJSON         `json:"retrieved_contexts"`
	RetrievalMetadata    retrievalMetadataJSON `json:"retrieval_metadata"`
	UserCanWait          bool                  `json:"user_can_wait"`
	ProductionIncident   bool                  `json:"production_incident"`
	Messages             []messageJSON         `json:"messages"`
	Timestamp            string                `json:"timestamp"`
	TotalProcessingTime  float64               `json:"total_processing_time"`
}

func toRAGResponse(resp orchestrator.Response) ragResponse {
	tickets := make([]ticketJSON, 0, len(resp.RelevantTickets))
	for _, t := range resp.RelevantTickets {
		tickets = append(tickets, ticketJSON{Key: t.Key, Title: t.Title})
	}

	contexts := make([]contextJSON, 0, len(resp.RetrievedContexts))
	for _, c := range resp.RetrievedContexts {
		contexts = append(contexts, contextJSON{Content: c.Content, Metadata: c.Metadata, Source: c.Source, Score: c.Score})
	}

	return ragResponse{
		Query:            resp.Query,
		FinalAnswer:      resp.FinalAnswer,
		RelevantTickets:  tickets,
		RoutingDecision:  resp.RoutingDecision,
		RoutingReasoning: resp.RoutingReasoning,
		RetrievalMethod:  resp.RetrievalMethod,
		RetrievedContexts: contexts,
		RetrievalMetadata: retrievalMetadataJSON{
			Agent:            resp.RetrievalMethod,
			NumResults:       resp.RetrievalMetadata.NumResults,
			ProcessingTime:   resp.TotalProcessingTime.Seconds(),
			MethodType:       resp.RetrievalMethod,
			MethodsUsed:      resp.RetrievalMetadata.MethodsUsed,
			RerankerUsed:     resp.RetrievalMetadata.RerankerUsed,
			KeywordIndexUsed: resp.RetrievalMetadata.KeywordIndexUsed,
			FilteringApplied: resp.RetrievalMetadata.FilteringApplied,
			Warnings:         resp.RetrievalMetadata.Warnings,
		},
		UserCanWait:        resp.UserCanWait,
		ProductionIncident: resp.ProductionIncident,
		Messages: []messageJSON{
			{Content: resp.FinalAnswer, Type: "ai"},
		},
		Timestamp:           resp.Timestamp.Format(time.RFC3339),
		TotalProcessingTime: resp.TotalProcessingTime.Seconds(),
	}
}

func (s *Server) handleMultiagentRAG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		returnJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := decodeRequest(r)
	if err != nil {
		returnJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		returnJSONError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	resp := s.Orchestrator.Process(r.Context(), req.Query, req.UserCanWait, req.ProductionIncident)
	if s.Metrics != nil {
		s.Metrics.RequestsTotal.WithLabelValues("/multiagent-rag", "200").Inc()
	}

	writeJSON(w, http.StatusOK, toRAGResponse(resp))
}

type routingResponse struct {
	RoutingDecision  string `json:"routing_decision"`
	RoutingReasoning string `json:"routing_reasoning"`
}

func (s *Server) handleDebugRouting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		returnJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := decodeRequest(r)
	if err != nil {
		returnJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		returnJSONError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	resp := s.Orchestrator.Process(r.Context(), req.Query, req.UserCanWait, req.ProductionIncident)
	writeJSON(w, http.StatusOK, routingResponse{
		RoutingDecision:  resp.RoutingDecision,
		RoutingReasoning: resp.RoutingReasoning,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// returnJSONError writes a JSON error envelope, adapted from the teacher's
// own ReturnJSONError helper.
func returnJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    statusCode,
			"message": message,
		},
	}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Error: " + message))
	}
}
