package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/docq-ai/docq-go/internal/agent"
	"github.com/docq-ai/docq-go/internal/rag"
)

func Test_Search_RequiresQuery(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	_, token := h.seedUser(t, "search-q@example.com")

	w := h.do(authed(http.MethodGet, "/api/search", token))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func Test_Search_RejectsOutOfRangeK(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	_, token := h.seedUser(t, "search-k@example.com")

	for _, k := range []string{"0", "21", "-3", "five"} {
		w := h.do(authed(http.MethodGet, "/api/search?q=docs&k="+k, token))
		if w.Code != http.StatusBadRequest {
			t.Errorf("k=%s: expected 400, got %d", k, w.Code)
		}
	}
}

func Test_Search_ReturnsFullTextWithCitations(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	_, token := h.seedUser(t, "search@example.com")

	longText := strings.Repeat("x", 300)
	h.retriever.results = []rag.Result{
		{Slot: 7, Distance: 1.0, DocumentID: "doc-1", Filename: "notes.txt", Index: 2, Text: longText, StartChar: 100, EndChar: 400},
	}

	w := h.do(authed(http.MethodGet, "/api/search?q=notes&k=3", token))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp searchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalResults != 1 {
		t.Fatalf("expected one result, got %d", resp.TotalResults)
	}
	got := resp.Results[0]
	if got.Text != longText {
		t.Error("search results must carry the full chunk text")
	}
	if got.Slot != 7 {
		t.Errorf("slot: got %d", got.Slot)
	}
	if got.Citation != "[1] notes.txt (Chunk 2, Chars 100-400)" {
		t.Errorf("citation: got %q", got.Citation)
	}
	if got.RelevanceScore != 0.9048 {
		t.Errorf("relevance score for distance 1.0: got %v", got.RelevanceScore)
	}
	if h.retriever.lastTopK != 3 {
		t.Errorf("top_k: got %d", h.retriever.lastTopK)
	}
}

func Test_Query_ReturnsAnswerWithTruncatedSources(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	_, token := h.seedUser(t, "query@example.com")

	longText := strings.Repeat("y", 300)
	h.asker.answer = rag.Answer{
		Question: "what do the notes say?",
		Text:     "The notes describe the rollout plan.",
		Sources: []rag.Result{
			{Slot: 0, Distance: 0.5, DocumentID: "doc-1", Filename: "plan.md", Index: 0, Text: longText, StartChar: 0, EndChar: 300},
		},
	}

	req := authedJSON(t, http.MethodPost, "/api/query", token, queryRequest{Question: "what do the notes say?"})
	w := h.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "The notes describe the rollout plan." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("expected one source, got %d", len(resp.Sources))
	}
	src := resp.Sources[0]
	if len(src.Text) != 203 || !strings.HasSuffix(src.Text, "...") {
		t.Errorf("source text must be truncated for display, got %d chars", len(src.Text))
	}
	if h.asker.lastTopK != defaultSearchK {
		t.Errorf("expected default k=%d, got %d", defaultSearchK, h.asker.lastTopK)
	}
}

func Test_Query_RequiresQuestion(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	_, token := h.seedUser(t, "query-empty@example.com")

	req := authedJSON(t, http.MethodPost, "/api/query", token, queryRequest{Question: "   "})
	w := h.do(req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func Test_Query_GeneratorUnavailableReturns503(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	_, token := h.seedUser(t, "query-503@example.com")
	h.asker.err = fmt.Errorf("%w: connection refused", rag.ErrGeneratorUnavailable)

	req := authedJSON(t, http.MethodPost, "/api/query", token, queryRequest{Question: "anything"})
	w := h.do(req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func Test_AgentQuery_ReturnsReasoningAndTrace(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	userID, token := h.seedUser(t, "agent@example.com")

	h.agent.result = agent.Result{
		Question:  "summarise the notes",
		Answer:    "The notes cover three topics.",
		Reasoning: "The retrieved chunks are on-topic.",
		Sources: []rag.Result{
			{Slot: 1, Distance: 0.8, DocumentID: "doc-2", Filename: "notes.txt", Index: 1, Text: "topics", StartChar: 10, EndChar: 16},
		},
		Messages: []agent.Message{
			{Role: agent.RoleHuman, Content: "Retrieved 1 relevant chunks (filtered from 1 total) for: summarise the notes"},
			{Role: agent.RoleAI, Content: "Reasoning: The retrieved chunks are on-topic."},
			{Role: agent.RoleAI, Content: "The notes cover three topics."},
		},
	}

	req := authedJSON(t, http.MethodPost, "/api/query/agent", token, queryRequest{Question: "summarise the notes"})
	w := h.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp agentQueryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reasoning != "The retrieved chunks are on-topic." {
		t.Errorf("reasoning: got %q", resp.Reasoning)
	}
	if len(resp.Messages) != 3 {
		t.Fatalf("expected 3 trace messages, got %d", len(resp.Messages))
	}
	if resp.Messages[0].Role != "human" || resp.Messages[1].Role != "ai" {
		t.Errorf("unexpected trace roles: %+v", resp.Messages)
	}
	if resp.Sources[0].Citation != "[1] notes.txt (Chunk 1, Chars 10-16)" {
		t.Errorf("citation: got %q", resp.Sources[0].Citation)
	}
	if h.agent.lastOwner != userID {
		t.Errorf("agent owner: got %q, want %q", h.agent.lastOwner, userID)
	}
}

func Test_AgentQuery_FailureReturns500(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	_, token := h.seedUser(t, "agent-err@example.com")
	h.agent.err = fmt.Errorf("graph execution failed")

	req := authedJSON(t, http.MethodPost, "/api/query/agent", token, queryRequest{Question: "anything"})
	w := h.do(req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
