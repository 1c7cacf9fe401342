// Package rag defines the interfaces and core policies for retrieval-augmented
// question answering: embedding, text generation, owner-scoped retrieval, and
// the citation and relevance rules applied to retrieved chunks. Concrete
// implementations (HTTP embedders, eino-backed generators) satisfy these
// interfaces so the agent and server layers never depend on a specific backend.
package rag

import (
	"context"
	"errors"
)

// ErrGeneratorUnavailable reports that the text generation backend could not
// be reached or refused the request. The API layer maps it to 503.
var ErrGeneratorUnavailable = errors.New("rag: generator unavailable")

// Result is one retrieved chunk with its similarity distance, joined back to
// its stored metadata.
type Result struct {
	// Slot is the chunk's position in the vector index.
	Slot int64

	// Distance is the squared L2 distance between the query embedding and
	// the chunk's embedding. Lower is more similar.
	Distance float32

	// DocumentID identifies the document the chunk was cut from.
	DocumentID string

	// Filename is the original upload name of that document.
	Filename string

	// Index is the chunk's 0-based position within its document.
	Index int

	// Text is the full chunk text.
	Text string

	// StartChar and EndChar are the chunk's character offsets in the
	// original document text.
	StartChar int
	EndChar   int
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	// Temperature controls sampling randomness (0.0 deterministic, 1.0 creative).
	Temperature float32

	// MaxTokens caps the length of the generated completion.
	MaxTokens int
}

// Generator produces a text completion for a fully rendered prompt.
// Implementations must be safe to call from multiple goroutines and should
// wrap transport failures in ErrGeneratorUnavailable.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Retriever fetches the chunks most relevant to a query, scoped to one owner.
type Retriever interface {
	// Retrieve returns up to topK results ordered by ascending distance.
	// Slots with no surviving metadata, and chunks belonging to other
	// owners, are filtered out rather than reported as errors.
	Retrieve(ctx context.Context, ownerID, query string, topK int) ([]Result, error)
}
