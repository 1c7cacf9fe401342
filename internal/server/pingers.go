package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/docq-ai/docq-go/internal/rag"
)

// LLMPinger probes an LLM backend by sending a minimal single-token generate
// request. It satisfies the Pinger interface and is used by GET /api/ready.
// The probe consumes a few tokens per call, so /api/ready should not be
// polled aggressively.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.ToolCallingChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.ToolCallingChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a single-message generate request to the backend.
// Returns nil if the backend responds, or a descriptive error otherwise.
func (p *LLMPinger) Ping(ctx context.Context) error {
	msgs := []*schema.Message{
		schema.UserMessage("ping"),
	}
	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding a short probe
// string. It satisfies the Pinger interface and is used by GET /api/ready.
type EmbedderPinger struct {
	// embedder is the embedding backend to probe.
	embedder rag.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder.
func NewEmbedderPinger(e rag.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: e}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a single short string and verifies a vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}

// storePinger is the subset of the metadata store used for readiness probes.
type storePinger interface {
	Ping(ctx context.Context) error
}

// StorePinger probes the metadata database connection.
// It satisfies the Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	// store is the database connection to probe.
	store storePinger
}

// NewStorePinger constructs a StorePinger for the given store.
// *store.SQLiteStore satisfies the required Ping method.
func NewStorePinger(s storePinger) *StorePinger {
	return &StorePinger{store: s}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "store" }

// Ping verifies the database connection is alive.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
