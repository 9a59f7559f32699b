package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/orchestrator"
	"github.com/tuannvm/multiagent-rag/internal/strategy"
)

type fakeProcessor struct {
	resp orchestrator.Response
}

func (f *fakeProcessor) Process(ctx context.Context, query string, userCanWait, productionIncident bool) orchestrator.Response {
	f.resp.Query = query
	f.resp.UserCanWait = userCanWait
	f.resp.ProductionIncident = productionIncident
	return f.resp
}

func newTestServer(resp orchestrator.Response, auth Auth) *Server {
	return New(&fakeProcessor{resp: resp}, auth, nil)
}

func TestMultiagentRAGReturnsFullResponseShape(t *testing.T) {
	resp := orchestrator.Response{
		FinalAnswer:      "BUGS-1 is the likely cause.",
		RoutingDecision:  "BM25",
		RoutingReasoning: "rule 2: ticket identifier pattern detected",
		RetrievalMethod:  "BM25",
		RetrievedContexts: []ragcontext.RetrievedContext{
			{Content: "Title: x", Metadata: map[string]string{"key": "BUGS-1"}, Source: "bm25", Score: 0.9},
		},
		RetrievalMetadata:   strategy.Metadata{NumResults: 1, MethodsUsed: []string{"bm25"}},
		Timestamp:           time.Now(),
		TotalProcessingTime: 120 * time.Millisecond,
	}
	s := newTestServer(resp, nil)

	body, _ := json.Marshal(map[string]interface{}{"query": "HBASE-1 fails"})
	req := httptest.NewRequest(http.MethodPost, "/multiagent-rag", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var parsed ragResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.Equal(t, "BM25", parsed.RoutingDecision)
	assert.Equal(t, "BUGS-1 is the likely cause.", parsed.FinalAnswer)
	require.Len(t, parsed.RetrievedContexts, 1)
	assert.Equal(t, "BUGS-1", parsed.RetrievedContexts[0].Metadata["key"])
}

func TestMultiagentRAGRejectsEmptyQuery(t *testing.T) {
	s := newTestServer(orchestrator.Response{}, nil)
	body, _ := json.Marshal(map[string]interface{}{"query": ""})
	req := httptest.NewRequest(http.MethodPost, "/multiagent-rag", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMultiagentRAGRejectsMissingBody(t *testing.T) {
	s := newTestServer(orchestrator.Response{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/multiagent-rag", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugRoutingReturnsOnlyRoutingFields(t *testing.T) {
	resp := orchestrator.Response{RoutingDecision: "Ensemble", RoutingReasoning: "rule 4"}
	s := newTestServer(resp, nil)

	body, _ := json.Marshal(map[string]interface{}{"query": "comprehensive question", "user_can_wait": true})
	req := httptest.NewRequest(http.MethodPost, "/debug/routing", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var parsed routingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.Equal(t, "Ensemble", parsed.RoutingDecision)
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	s := newTestServer(orchestrator.Response{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSharedSecretAuthRejectsMissingHeader(t *testing.T) {
	s := newTestServer(orchestrator.Response{FinalAnswer: "ok"}, SharedSecretAuth{Key: "topsecret"})
	body, _ := json.Marshal(map[string]interface{}{"query": "q"})
	req := httptest.NewRequest(http.MethodPost, "/multiagent-rag", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSharedSecretAuthAcceptsMatchingHeader(t *testing.T) {
	s := newTestServer(orchestrator.Response{FinalAnswer: "ok"}, SharedSecretAuth{Key: "topsecret"})
	body, _ := json.Marshal(map[string]interface{}{"query": "q"})
	req := httptest.NewRequest(http.MethodPost, "/multiagent-rag", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "topsecret")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
