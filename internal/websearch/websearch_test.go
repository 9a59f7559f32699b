package websearch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/multiagent-rag/internal/strategy"
)

type fakeLLM struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	return f.responses[i], nil
}

func TestPlannerParsesWellFormedPlan(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"classification":"status_check","priority":"urgent","searches":["is github down"]}`}}
	p := NewPlanner(llm, 5)
	plan := p.Plan(context.Background(), "is github down", true, true)
	assert.Equal(t, StatusCheck, plan.Classification)
	assert.Equal(t, Urgent, plan.Priority)
	assert.Equal(t, []string{"is github down"}, plan.Searches)
}

func TestPlannerRetriesOnceThenFallsBackToDefault(t *testing.T) {
	llm := &fakeLLM{responses: []string{"not json at all", "still not json"}}
	p := NewPlanner(llm, 5)
	plan := p.Plan(context.Background(), "weird query", false, false)
	assert.Equal(t, General, plan.Classification)
	assert.Equal(t, []string{"weird query"}, plan.Searches)
	assert.Equal(t, 2, llm.calls)
}

func TestPlannerCapsSearchesAtMax(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"classification":"general","priority":"normal","searches":["a","b","c","d","e","f"]}`}}
	p := NewPlanner(llm, 3)
	plan := p.Plan(context.Background(), "q", false, false)
	assert.Len(t, plan.Searches, 3)
}

func TestPlannerWithNilLLMUsesDefaultPlan(t *testing.T) {
	p := NewPlanner(nil, 5)
	plan := p.Plan(context.Background(), "q", false, false)
	assert.Equal(t, General, plan.Classification)
}

type fakeProvider struct {
	hits      []Hit
	statusHits []Hit
	err       error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Search(ctx context.Context, query string) ([]Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}
func (f *fakeProvider) SearchStatusPages(ctx context.Context, query string) ([]Hit, error) {
	return f.statusHits, nil
}

func TestStrategyDeduplicatesByURL(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"classification":"general","priority":"normal","searches":["q1","q2"]}`}}
	provider := &fakeProvider{hits: []Hit{
		{Title: "A", URL: "https://example.com/a", Snippet: "s"},
		{Title: "A dup", URL: "https://example.com/a", Snippet: "s2"},
	}}
	s := New(NewPlanner(llm, 5), provider, 3, time.Second)
	out, _, err := s.Run(context.Background(), "q", strategy.Hints{}, 10)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestStrategyEmptyResultIsNotAnError(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"classification":"general","priority":"normal","searches":["q1"]}`}}
	provider := &fakeProvider{err: errors.New("provider down")}
	s := New(NewPlanner(llm, 5), provider, 3, time.Second)
	out, _, err := s.Run(context.Background(), "q", strategy.Hints{}, 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStrategyCapsResultsAtTen(t *testing.T) {
	var hits []Hit
	for i := 0; i < 15; i++ {
		hits = append(hits, Hit{Title: "t", URL: "https://example.com/" + string(rune('a'+i)), Snippet: "s"})
	}
	llm := &fakeLLM{responses: []string{`{"classification":"general","priority":"normal","searches":["q1"]}`}}
	provider := &fakeProvider{hits: hits}
	s := New(NewPlanner(llm, 5), provider, 3, time.Second)
	out, _, err := s.Run(context.Background(), "q", strategy.Hints{}, 20)
	require.NoError(t, err)
	assert.Len(t, out, 10)
}
