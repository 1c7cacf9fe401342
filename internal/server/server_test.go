package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docq-ai/docq-go/internal/agent"
	"github.com/docq-ai/docq-go/internal/auth"
	"github.com/docq-ai/docq-go/internal/ingestion"
	"github.com/docq-ai/docq-go/internal/rag"
	"github.com/docq-ai/docq-go/internal/store"
)

// fakeIngester records the last Ingest call and returns a canned receipt.
type fakeIngester struct {
	lastOwner    string
	lastFilename string
	lastContent  string
	receipt      ingestion.Receipt
	err          error
}

func (f *fakeIngester) Ingest(ctx context.Context, ownerID, filename, content string) (ingestion.Receipt, error) {
	f.lastOwner = ownerID
	f.lastFilename = filename
	f.lastContent = content
	if f.err != nil {
		return ingestion.Receipt{}, f.err
	}
	return f.receipt, nil
}

// fakeRetriever returns canned results and records the last call.
type fakeRetriever struct {
	lastOwner string
	lastQuery string
	lastTopK  int
	results   []rag.Result
	err       error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, ownerID, query string, topK int) ([]rag.Result, error) {
	f.lastOwner = ownerID
	f.lastQuery = query
	f.lastTopK = topK
	return f.results, f.err
}

// fakeAsker returns a canned answer and records the last call.
type fakeAsker struct {
	lastOwner    string
	lastQuestion string
	lastTopK     int
	answer       rag.Answer
	err          error
}

func (f *fakeAsker) Ask(ctx context.Context, ownerID, question string, topK int) (rag.Answer, error) {
	f.lastOwner = ownerID
	f.lastQuestion = question
	f.lastTopK = topK
	if f.err != nil {
		return rag.Answer{}, f.err
	}
	return f.answer, nil
}

// fakeAgent returns a canned result and records the last call.
type fakeAgent struct {
	lastOwner    string
	lastQuestion string
	result       agent.Result
	err          error
}

func (f *fakeAgent) Run(ctx context.Context, ownerID, question string, topK int) (agent.Result, error) {
	f.lastOwner = ownerID
	f.lastQuestion = question
	if f.err != nil {
		return agent.Result{}, f.err
	}
	return f.result, nil
}

// testHarness bundles a fully wired Server and the fakes behind it.
type testHarness struct {
	srv       *Server
	store     *store.SQLiteStore
	tokens    *auth.Manager
	ingester  *fakeIngester
	retriever *fakeRetriever
	asker     *fakeAsker
	agent     *fakeAgent
}

// newTestServer builds a Server backed by an in-memory store, a real token
// manager, fakes for the pipelines, and a fresh Prometheus registry.
func newTestServer(t *testing.T) *testHarness {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	tokens, err := auth.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}

	h := &testHarness{
		store:     st,
		tokens:    tokens,
		ingester:  &fakeIngester{},
		retriever: &fakeRetriever{},
		asker:     &fakeAsker{},
		agent:     &fakeAgent{},
	}

	reg := prometheus.NewRegistry()
	srv, err := New(Deps{
		Store:     st,
		Tokens:    tokens,
		Ingester:  h.ingester,
		Retriever: h.retriever,
		Asker:     h.asker,
		Agent:     h.agent,
	}, &Config{
		Logger:          slog.Default(),
		RateLimit:       1000,
		RateBurst:       1000,
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.stopRL)
	h.srv = srv
	return h
}

// do routes req through the full middleware chain and returns the recorder.
func (h *testHarness) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.srv.httpServer.Handler.ServeHTTP(w, req)
	return w
}

// seedUser inserts a user and returns its ID and a valid bearer token.
func (h *testHarness) seedUser(t *testing.T, email string) (string, string) {
	t.Helper()

	hash, err := auth.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := store.User{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.CreateUser(t.Context(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, err := h.tokens.IssueToken(u.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return u.ID, token
}

// authed builds a request carrying the given bearer token.
func authed(method, target, token string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// authedJSON builds an authenticated request with a JSON body.
func authedJSON(t *testing.T, method, target, token string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}
