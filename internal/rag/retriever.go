package rag

import (
	"context"
	"fmt"

	"github.com/docq-ai/docq-go/internal/index"
	"github.com/docq-ai/docq-go/internal/store"
)

// DefaultRetriever implements Retriever over the flat vector index and the
// metadata store. It embeds the query at retrieval time, searches the index,
// and joins the hit slots back to stored chunk metadata in distance order.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// idx performs the nearest-neighbor search.
	idx *index.Flat

	// meta resolves hit slots to chunk metadata, scoped by owner.
	meta store.Store

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(embedder Embedder, idx *index.Flat, meta store.Store, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if meta == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &DefaultRetriever{
		embedder:    embedder,
		idx:         idx,
		meta:        meta,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query, searches the index, and returns up to topK
// results in ascending distance order. Hits whose slots have no metadata for
// this owner are dropped: that covers both deleted documents (orphaned slots)
// and chunks owned by other users. An empty index yields an empty result,
// not an error.
func (r *DefaultRetriever) Retrieve(ctx context.Context, ownerID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	if r.idx.Count() == 0 {
		return nil, nil
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	hits, err := r.idx.Search(embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	slots := make([]int64, len(hits))
	for i, h := range hits {
		slots[i] = h.Slot
	}
	chunks, err := r.meta.ChunksBySlots(ctx, ownerID, slots)
	if err != nil {
		return nil, fmt.Errorf("rag: resolving chunk metadata failed: %w", err)
	}

	// Walk hits in distance order so the join preserves the ranking.
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		c, ok := chunks[h.Slot]
		if !ok {
			continue
		}
		results = append(results, Result{
			Slot:       h.Slot,
			Distance:   h.Distance,
			DocumentID: c.DocumentID,
			Filename:   c.Filename,
			Index:      c.Index,
			Text:       c.Text,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
		})
	}
	return results, nil
}
