package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/docq-ai/docq-go/internal/embedder"
	"github.com/docq-ai/docq-go/internal/index"
	"github.com/docq-ai/docq-go/internal/ingestion"
	"github.com/docq-ai/docq-go/internal/rag"
	"github.com/docq-ai/docq-go/internal/store"
)

// defaultLocalUser is the account CLI commands run under when --user is not
// given. It is created on first use and has no usable password, so it cannot
// log in through the HTTP API.
const defaultLocalUser = "local@docq"

// stack bundles the storage and retrieval components shared by the CLI
// commands and the server.
type stack struct {
	store     *store.SQLiteStore
	index     *index.Flat
	embedder  rag.Embedder
	retriever *rag.DefaultRetriever
	pipeline  *ingestion.Pipeline
}

// close releases the stack's resources.
func (s *stack) close() {
	_ = s.store.Close()
}

// openStack opens the metadata store and vector index, validates the
// embedding configuration, and wires the retriever and ingestion pipeline.
func openStack(log *slog.Logger) (*stack, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, err
	}

	dbPath := os.Getenv("DOCQ_DB")
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	log.Info("store opened", slog.String("path", dbPath))

	idx, err := openIndex(log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	retriever, err := rag.NewRetriever(emb, idx, st, getEnvInt("DOCQ_TOP_K", 0))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	// Unset overlap falls back to the pipeline default; an explicit
	// DOCQ_CHUNK_OVERLAP=0 disables overlap.
	pipeline, err := ingestion.NewPipeline(emb, idx, st, ingestion.Config{
		ChunkSize:    getEnvInt("DOCQ_CHUNK_SIZE", 0),
		ChunkOverlap: getEnvInt("DOCQ_CHUNK_OVERLAP", -1),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &stack{
		store:     st,
		index:     idx,
		embedder:  emb,
		retriever: retriever,
		pipeline:  pipeline,
	}, nil
}

// openIndex opens the vector index, loading the on-disk snapshot when one
// exists. Loading is best effort: a missing or unreadable snapshot starts an
// empty index with a warning. Only a dimension mismatch aborts startup — it
// means the embedding configuration changed and every persisted slot would
// resolve to the wrong vector space.
func openIndex(log *slog.Logger) (*index.Flat, error) {
	path := os.Getenv("DOCQ_INDEX_PATH")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home directory: %w", err)
		}
		path = filepath.Join(home, ".docq", "index.bin")
	}

	backend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	dims := embedder.DefaultDimensions(backend)

	idx, err := index.NewFlat(dims, path)
	if err != nil {
		return nil, err
	}

	switch err := idx.Load(); {
	case err == nil:
		log.Info("index loaded",
			slog.String("path", path),
			slog.Int64("vectors", idx.Count()),
		)
	case errors.Is(err, index.ErrDimensionMismatch):
		return nil, err
	case errors.Is(err, index.ErrNoSnapshot):
		log.Warn("no existing index snapshot, starting empty", slog.String("path", path))
	default:
		log.Warn("index snapshot unreadable, starting empty",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}

	return idx, nil
}

// resolveOwner looks up the user with the given email, creating the account
// if it does not exist yet. Accounts created here carry no usable password.
func resolveOwner(ctx context.Context, st store.Store, email string) (string, error) {
	u, err := st.UserByEmail(ctx, email)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	u = store.User{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateUser(ctx, u); err != nil {
		return "", err
	}
	return u.ID, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
