package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/docq-ai/docq-go/internal/rag"
)

// fakeRetriever returns canned results.
type fakeRetriever struct {
	results []rag.Result
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string, _ int) ([]rag.Result, error) {
	return f.results, f.err
}

// scriptedGenerator replays one reply (or error) per Generate call and
// records every call it receives.
type scriptedGenerator struct {
	replies []string
	errs    []error
	calls   []struct {
		prompt string
		opts   rag.GenerateOptions
	}
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, opts rag.GenerateOptions) (string, error) {
	i := len(g.calls)
	g.calls = append(g.calls, struct {
		prompt string
		opts   rag.GenerateOptions
	}{prompt, opts})
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "", errors.New("unexpected generate call")
}

func newTestAgent(t *testing.T, ret rag.Retriever, gen rag.Generator) *Agent {
	t.Helper()
	a, err := New(context.Background(), ret, gen)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func relevantResults() []rag.Result {
	return []rag.Result{
		{Slot: 0, Distance: 0.3, Filename: "a.txt", Text: "alpha content"},
		{Slot: 1, Distance: 0.9, Filename: "b.txt", Text: "beta content"},
	}
}

func Test_Run_FullTraceOnRelevantResults(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"looks answerable", "final answer"}}
	a := newTestAgent(t, &fakeRetriever{results: relevantResults()}, gen)

	res, err := a.Run(context.Background(), "u1", "what is alpha?", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Answer != "final answer" {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.Reasoning != "looks answerable" {
		t.Errorf("reasoning = %q", res.Reasoning)
	}
	if len(res.Sources) != 2 {
		t.Errorf("sources = %d, want 2", len(res.Sources))
	}

	if len(res.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(res.Messages))
	}
	if res.Messages[0].Role != RoleHuman || !strings.Contains(res.Messages[0].Content, "Retrieved 2 relevant chunks") {
		t.Errorf("message 0 = %+v", res.Messages[0])
	}
	if res.Messages[1].Role != RoleAI || res.Messages[1].Content != "Reasoning: looks answerable" {
		t.Errorf("message 1 = %+v", res.Messages[1])
	}
	if res.Messages[2].Role != RoleAI || res.Messages[2].Content != "final answer" {
		t.Errorf("message 2 = %+v", res.Messages[2])
	}

	if len(gen.calls) != 2 {
		t.Fatalf("got %d generate calls, want 2", len(gen.calls))
	}
	// Reasoning runs cool and short; answering warmer and longer.
	if gen.calls[0].opts.Temperature != 0.3 || gen.calls[0].opts.MaxTokens != 200 {
		t.Errorf("reason opts = %+v", gen.calls[0].opts)
	}
	if gen.calls[1].opts.Temperature != 0.7 || gen.calls[1].opts.MaxTokens != 512 {
		t.Errorf("answer opts = %+v", gen.calls[1].opts)
	}
	if !strings.Contains(gen.calls[0].prompt, "Chunk 1 (from a.txt)") {
		t.Errorf("reason prompt missing chunk summary: %q", gen.calls[0].prompt)
	}
	if !strings.Contains(gen.calls[1].prompt, "Note: looks answerable") {
		t.Errorf("answer prompt missing reasoning note: %q", gen.calls[1].prompt)
	}
}

func Test_Run_AllChunksBelowThreshold(t *testing.T) {
	t.Parallel()

	far := []rag.Result{
		{Slot: 0, Distance: 1.2, Text: "off topic"},
		{Slot: 1, Distance: 4.0, Text: "way off"},
	}
	gen := &scriptedGenerator{}
	a := newTestAgent(t, &fakeRetriever{results: far}, gen)

	res, err := a.Run(context.Background(), "u1", "unrelated question", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Answer != rag.NoDocumentsAnswer {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.Reasoning != "No relevant documents found to answer the question." {
		t.Errorf("reasoning = %q", res.Reasoning)
	}
	if len(res.Sources) != 0 {
		t.Errorf("sources = %+v, want none", res.Sources)
	}
	if len(gen.calls) != 0 {
		t.Errorf("generator called %d times, want 0", len(gen.calls))
	}

	// Trace: the retrieval outcome and the fallback answer, nothing else.
	if len(res.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(res.Messages))
	}
	if res.Messages[0].Role != RoleHuman || !strings.Contains(res.Messages[0].Content, "All 2 retrieved chunks were below relevance threshold") {
		t.Errorf("message 0 = %+v", res.Messages[0])
	}
	if res.Messages[1].Role != RoleAI || res.Messages[1].Content != rag.NoDocumentsAnswer {
		t.Errorf("message 1 = %+v", res.Messages[1])
	}
}

func Test_Run_NothingRetrieved(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{}
	a := newTestAgent(t, &fakeRetriever{}, gen)

	res, err := a.Run(context.Background(), "u1", "question", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != rag.NoDocumentsAnswer {
		t.Errorf("answer = %q", res.Answer)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(res.Messages))
	}
}

func Test_Run_ReasoningFailureFallsBack(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{
		replies: []string{"", "final answer"},
		errs:    []error{errors.New("model timeout"), nil},
	}
	a := newTestAgent(t, &fakeRetriever{results: relevantResults()}, gen)

	res, err := a.Run(context.Background(), "u1", "question", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reasoning != "Retrieved context appears relevant based on semantic similarity." {
		t.Errorf("reasoning = %q", res.Reasoning)
	}
	if res.Answer != "final answer" {
		t.Errorf("answer = %q", res.Answer)
	}
	if len(res.Messages) != 3 {
		t.Errorf("got %d messages, want 3", len(res.Messages))
	}
}

func Test_Run_AnswerFailureSurfacedAsContent(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{
		replies: []string{"seems answerable", ""},
		errs:    []error{nil, errors.New("backend gone")},
	}
	a := newTestAgent(t, &fakeRetriever{results: relevantResults()}, gen)

	res, err := a.Run(context.Background(), "u1", "question", 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(res.Answer, "Error generating answer:") || !strings.Contains(res.Answer, "backend gone") {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.Messages[len(res.Messages)-1].Content != res.Answer {
		t.Error("final trace message should carry the error answer")
	}
}

func Test_Run_RetrievalErrorAbortsRun(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &fakeRetriever{err: errors.New("store down")}, &scriptedGenerator{})
	if _, err := a.Run(context.Background(), "u1", "question", 5); err == nil {
		t.Fatal("expected error from failing retrieval")
	}
}

func Test_ReasoningPrompt_ClipsOnRuneBoundaries(t *testing.T) {
	t.Parallel()

	// A chunk of 2-byte runes longer than the preview clip; the clipped
	// preview must stay valid UTF-8 regardless of where the limit falls.
	results := []rag.Result{
		{Filename: "notes.txt", Text: "x" + strings.Repeat("é", 120)},
	}
	prompt := reasoningPrompt("question", results)

	if !utf8.ValidString(prompt) {
		t.Fatal("reasoning prompt contains invalid UTF-8")
	}
	if !strings.Contains(prompt, "notes.txt") {
		t.Errorf("prompt missing chunk source: %q", prompt)
	}
}
