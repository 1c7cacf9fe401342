// Package ingestion implements the document ingestion pipeline: chunk the
// uploaded text, embed each chunk, append the vectors to the flat index, and
// record per-chunk metadata under the assigned slots. The pipeline serializes
// slot assignment so concurrent uploads never interleave their vectors.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docq-ai/docq-go/internal/chunker"
	"github.com/docq-ai/docq-go/internal/index"
	"github.com/docq-ai/docq-go/internal/logging"
	"github.com/docq-ai/docq-go/internal/rag"
	"github.com/docq-ai/docq-go/internal/store"
)

// ErrEmptyDocument reports that the uploaded text produced no chunks.
var ErrEmptyDocument = errors.New("ingestion: document produced no chunks")

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to chunker.DefaultChunkSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive
	// chunks. Zero disables overlap; negative values fall back to
	// chunker.DefaultOverlap.
	ChunkOverlap int
}

// Receipt summarizes a completed ingestion.
type Receipt struct {
	// DocumentID is the generated id of the stored document.
	DocumentID string

	// Filename echoes the uploaded file's name.
	Filename string

	// ChunksProcessed is the number of chunks embedded and stored.
	ChunksProcessed int

	// StartSlot and EndSlot delimit the half-open slot range [StartSlot,
	// EndSlot) the document's vectors occupy in the index.
	StartSlot int64
	EndSlot   int64
}

// Pipeline orchestrates the chunk, embed, append, and record flow for
// uploaded documents. Safe for concurrent use; ingestions embed in parallel
// but append to the index one at a time.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// idx receives the chunk vectors.
	idx *index.Flat

	// meta records documents and per-slot chunk metadata.
	meta store.Store

	// cfg holds the resolved pipeline configuration.
	cfg Config

	// mu serializes slot reservation, vector append, snapshot, and metadata
	// insert. Anything between reading Count and Add must not interleave
	// across ingestions or slots and metadata drift apart.
	mu sync.Mutex
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, idx *index.Flat, meta store.Store, cfg Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if meta == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}

	return &Pipeline{
		embedder: embedder,
		idx:      idx,
		meta:     meta,
		cfg:      cfg,
	}, nil
}

// Ingest runs the full pipeline for one document owned by ownerID. The text
// is chunked and embedded outside the lock; slot reservation, the index
// append, the snapshot write, and the metadata insert happen atomically with
// respect to other ingestions. Returns ErrEmptyDocument when the text
// contains nothing chunkable.
func (p *Pipeline) Ingest(ctx context.Context, ownerID, filename, content string) (Receipt, error) {
	log := logging.FromContext(ctx)

	chunks := chunker.Split(content, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return Receipt{}, ErrEmptyDocument
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	// Embed before taking the lock: provider calls are slow and must not
	// block other ingestions.
	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return Receipt{}, fmt.Errorf("ingestion: embedding failed for %s: %w", filename, err)
	}
	if len(embeddings) != len(chunks) {
		return Receipt{}, fmt.Errorf("ingestion: expected %d embeddings for %s, got %d",
			len(chunks), filename, len(embeddings))
	}

	docID := uuid.NewString()

	p.mu.Lock()
	defer p.mu.Unlock()

	startSlot := p.idx.Count()
	if err := p.idx.Add(embeddings); err != nil {
		return Receipt{}, fmt.Errorf("ingestion: index append failed for %s: %w", filename, err)
	}
	if err := p.idx.Save(); err != nil {
		return Receipt{}, fmt.Errorf("ingestion: index snapshot failed for %s: %w", filename, err)
	}

	doc := store.Document{
		ID:         docID,
		OwnerID:    ownerID,
		Filename:   filename,
		SizeBytes:  int64(len(content)),
		ChunkCount: len(chunks),
		CreatedAt:  time.Now().UTC(),
	}
	records := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		records[i] = store.Chunk{
			Slot:       startSlot + int64(i),
			DocumentID: docID,
			OwnerID:    ownerID,
			Index:      c.Index,
			Text:       c.Text,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
		}
	}
	if err := p.meta.InsertDocument(ctx, doc, records); err != nil {
		// The vectors are already appended; their slots become orphans that
		// retrieval filters out.
		return Receipt{}, fmt.Errorf("ingestion: metadata insert failed for %s: %w", filename, err)
	}

	log.Info("document ingested",
		"document_id", docID,
		"filename", filename,
		"chunks", len(chunks),
		"start_slot", startSlot,
	)

	return Receipt{
		DocumentID:      docID,
		Filename:        filename,
		ChunksProcessed: len(chunks),
		StartSlot:       startSlot,
		EndSlot:         startSlot + int64(len(chunks)),
	}, nil
}
