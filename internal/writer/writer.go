// Package writer implements the response writer (C8): synthesizes a final
// answer from the chosen strategy's ranked contexts and extracts the ticket
// references the answer is grounded on.
package writer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/llm"
	"github.com/tuannvm/multiagent-rag/internal/logging"
)

const maxContexts = 10

// Reference is a ticket the answer cites.
type Reference struct {
	Key   string
	Title string
}

// Result is the writer's output.
type Result struct {
	Answer     string
	References []Reference
}

// Writer composes the final answer using the strong LLM tier, falling back
// to a deterministic templated answer if the LLM call fails.
type Writer struct {
	LLM llm.Client
	log interface {
		Warnf(string, ...interface{})
	}
}

// New builds a writer. A nil LLM makes Compose always use the deterministic
// fallback path, which is still a complete, spec-compliant answer.
func New(client llm.Client) *Writer {
	return &Writer{LLM: client, log: logging.Named("writer")}
}

// Compose synthesizes a final answer and reference list for the given
// query, strategy tag, hints, and ranked contexts (already capped by the
// caller's retrieval strategy, re-capped here defensively).
func (w *Writer) Compose(ctx context.Context, query string, strategyTag string, productionIncident bool, contexts []ragcontext.RetrievedContext) Result {
	capped := contexts
	if len(capped) > maxContexts {
		capped = capped[:maxContexts]
	}

	references := extractReferences(capped)

	if len(capped) == 0 {
		return Result{Answer: noResultsAnswer(query), References: nil}
	}

	if w.LLM != nil {
		if answer, ok := w.tryLLMCompose(ctx, query, strategyTag, productionIncident, capped); ok {
			return Result{Answer: neutralizeUncitedKeys(answer, references), References: references}
		}
		w.log.Warnf("writer: LLM composition failed, using deterministic fallback")
	}

	return Result{Answer: fallbackAnswer(query, productionIncident, capped), References: references}
}

const composePrompt = `You are a RESPONSE WRITER agent for an engineering ticket and operations retrieval system. Generate a helpful, contextual response.

CONTEXT:
Query: %q
Production Incident: %v
Retrieval Method Used: %s

RETRIEVED CONTEXT:
%s

INSTRUCTIONS:
1. Analyze the user's query and the retrieved context
2. Generate a response that directly addresses the query
3. If this is a production incident, lead with the most actionable item and avoid background discussion
4. Reference specific tickets by their key (e.g. HBASE-123) when relevant
5. Keep the response concise but informative

Generate a response that directly answers the query:`

func (w *Writer) tryLLMCompose(ctx context.Context, query, strategyTag string, productionIncident bool, contexts []ragcontext.RetrievedContext) (string, bool) {
	prompt := fmt.Sprintf(composePrompt, query, productionIncident, strategyTag, formatContextsForLLM(contexts))
	answer, err := w.LLM.Complete(ctx, prompt)
	if err != nil || strings.TrimSpace(answer) == "" {
		return "", false
	}
	return strings.TrimSpace(answer), true
}

var ticketKeyPattern = regexp.MustCompile(`\b[A-Z]{2,}-\d+\b`)

// neutralizeUncitedKeys guards against the LLM hallucinating a ticket
// identifier that was never actually retrieved: any [A-Z]{2,}-\d+ token in
// the generated answer that isn't one of the keys in references is replaced
// with a neutral phrase, so a made-up key can never leak into final_answer.
func neutralizeUncitedKeys(answer string, references []Reference) string {
	known := make(map[string]struct{}, len(references))
	for _, r := range references {
		known[r.Key] = struct{}{}
	}
	return ticketKeyPattern.ReplaceAllStringFunc(answer, func(key string) string {
		if _, ok := known[key]; ok {
			return key
		}
		return "an unverified ticket"
	})
}

func formatContextsForLLM(contexts []ragcontext.RetrievedContext) string {
	var parts []string
	for i, c := range contexts {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}
		key := c.Metadata["key"]
		if key == "" {
			key = fmt.Sprintf("DOC-%d", i+1)
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", key, content))
	}
	if len(parts) == 0 {
		return "No relevant context with valid content found."
	}
	return strings.Join(parts, "\n\n")
}

func noResultsAnswer(query string) string {
	return fmt.Sprintf(
		"I couldn't find any relevant information for %q. Try rephrasing your question, for example:\n"+
			"- narrowing it to a specific ticket, service, or error message\n"+
			"- using different keywords\n"+
			"- broadening the time range or scope of the question",
		query)
}

func fallbackAnswer(query string, productionIncident bool, contexts []ragcontext.RetrievedContext) string {
	var b strings.Builder
	if productionIncident {
		b.WriteString("Immediate action: ")
		b.WriteString(strings.TrimSpace(firstLine(contexts[0].Content)))
		b.WriteString("\n\nAdditional context:\n")
		for _, c := range contexts[1:] {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(firstLine(c.Content)))
			b.WriteString("\n")
		}
		return strings.TrimSpace(b.String())
	}

	b.WriteString(fmt.Sprintf("Here is what I found for %q:\n\n", query))
	for _, c := range contexts {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(firstLine(c.Content)))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func firstLine(content string) string {
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		return content[:idx]
	}
	return content
}

// extractReferences dedups by key and derives a title either from metadata
// or by stripping the "Title: " prefix convention used by the ticket store's
// formatted content.
func extractReferences(contexts []ragcontext.RetrievedContext) []Reference {
	var refs []Reference
	seen := make(map[string]struct{})

	for _, c := range contexts {
		content := strings.TrimSpace(c.Content)
		if content == "" {
			continue
		}
		key := c.Metadata["key"]
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}

		title := c.Metadata["title"]
		if title == "" && strings.HasPrefix(content, "Title: ") {
			title = strings.TrimSpace(strings.TrimPrefix(firstLine(content), "Title: "))
		}
		if title == "" {
			title = "No title available"
		}

		refs = append(refs, Reference{Key: key, Title: title})
		seen[key] = struct{}{}
	}
	return refs
}
