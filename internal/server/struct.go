package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docq-ai/docq-go/internal/agent"
	"github.com/docq-ai/docq-go/internal/auth"
	"github.com/docq-ai/docq-go/internal/ingestion"
	"github.com/docq-ai/docq-go/internal/rag"
	"github.com/docq-ai/docq-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry receives all Prometheus metric registrations.
	// If nil, a private registry is created. Tests inject a fresh registry
	// so they never pollute the default one.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Must wrap the same registry as
	// MetricsRegistry. If nil, /metrics is not exposed.
	MetricsGatherer prometheus.Gatherer
}

// Ingester runs a document through the ingestion pipeline.
// *ingestion.Pipeline satisfies it; tests inject a fake.
type Ingester interface {
	Ingest(ctx context.Context, ownerID, filename, content string) (ingestion.Receipt, error)
}

// Asker answers a question with the single-shot retrieval pipeline.
// *rag.Answerer satisfies it; tests inject a fake.
type Asker interface {
	Ask(ctx context.Context, ownerID, question string, topK int) (rag.Answer, error)
}

// AgentRunner answers a question with the staged agent pipeline.
// *agent.Agent satisfies it; tests inject a fake.
type AgentRunner interface {
	Run(ctx context.Context, ownerID, question string, topK int) (agent.Result, error)
}

// Deps bundles the application services the server exposes over HTTP.
type Deps struct {
	// Store persists users, documents, and chunk metadata.
	Store store.Store
	// Tokens issues and verifies JWT access tokens.
	Tokens *auth.Manager
	// Ingester processes uploaded documents.
	Ingester Ingester
	// Retriever performs owner-scoped semantic search.
	Retriever rag.Retriever
	// Asker answers questions via the single-shot pipeline.
	Asker Asker
	// Agent answers questions via the staged agent pipeline.
	Agent AgentRunner
}

// Server is the HTTP server that exposes the document Q&A API.
type Server struct {
	// deps holds the application services behind the handlers.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// registerRequest is the JSON body for POST /api/auth/register.
type registerRequest struct {
	// Email is the new account's email address. Must be unique.
	Email string `json:"email"`
	// Password is the plaintext password to hash and store.
	Password string `json:"password"`
}

// loginRequest is the JSON body for POST /api/auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse is the JSON response for POST /api/auth/login.
type tokenResponse struct {
	// AccessToken is the signed JWT to present on subsequent requests.
	AccessToken string `json:"access_token"`
	// TokenType is always "bearer".
	TokenType string `json:"token_type"`
}

// userResponse is the JSON shape for a user profile.
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// uploadResponse is the JSON response for POST /api/documents.
type uploadResponse struct {
	Message         string `json:"message"`
	DocumentID      string `json:"document_id"`
	Filename        string `json:"filename"`
	ChunksProcessed int    `json:"chunks_processed"`
}

// documentItem is one entry in the GET /api/documents listing.
type documentItem struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// listDocumentsResponse is the JSON response for GET /api/documents.
type listDocumentsResponse struct {
	Documents []documentItem `json:"documents"`
	Total     int            `json:"total"`
}

// deleteDocumentResponse is the JSON response for DELETE /api/documents/{id}.
type deleteDocumentResponse struct {
	Message       string `json:"message"`
	DocumentID    string `json:"document_id"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// sourceChunk is the JSON shape for a retrieved chunk with citation metadata.
type sourceChunk struct {
	// Text is the chunk content. Truncated for display on query responses,
	// returned in full on search responses.
	Text       string `json:"text"`
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	// Distance is the squared L2 distance between query and chunk embeddings.
	Distance float32 `json:"distance"`
	// RelevanceScore maps distance to [0, 1]; higher is more relevant.
	RelevanceScore float64 `json:"relevance_score"`
	// Citation is the formatted reference string, e.g.
	// "[1] notes.txt (Chunk 0, Chars 0-499)".
	Citation string `json:"citation"`
}

// searchResult extends sourceChunk with the raw index slot.
type searchResult struct {
	sourceChunk
	// Slot is the chunk's position in the vector index.
	Slot int64 `json:"slot"`
}

// searchResponse is the JSON response for GET /api/search.
type searchResponse struct {
	Query        string         `json:"query"`
	Results      []searchResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

// queryRequest is the JSON body for POST /api/query and POST /api/query/agent.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// K is the number of chunks to retrieve. Defaults to 5.
	K int `json:"k"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Sources  []sourceChunk `json:"sources"`
}

// agentMessage is one entry in the agent's conversation trace.
type agentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// agentQueryResponse is the JSON response for POST /api/query/agent.
type agentQueryResponse struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Reasoning string         `json:"reasoning"`
	Sources   []sourceChunk  `json:"sources"`
	Messages  []agentMessage `json:"messages"`
}

// errorResponse is the JSON body for all non-2xx API responses.
type errorResponse struct {
	// Detail is a human-readable description of the error.
	Detail string `json:"detail"`
}
