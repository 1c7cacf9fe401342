package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/docq-ai/docq-go/internal/logging"
)

// NewIngestCmd constructs the `docq ingest` command, which chunks, embeds,
// and indexes local text files so they can be searched and queried.
func NewIngestCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest text files into the docq index",
		Long: `Chunk, embed, and index one or more local text files.

Only plain-text files (.txt, .md) are supported. Ingested documents belong
to the user given with --user; retrieval and deletion are scoped to that
owner. When --user is omitted, a local default account is used.

Required environment variables:
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)
  DOCQ_INDEX_PATH      Vector index snapshot path (default: ~/.docq/index.bin)
  DOCQ_DB              Metadata database path (default: ~/.docq/docq.db)

Examples:
  docq ingest notes.txt
  docq ingest --user alice@example.com docs/*.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			stk, err := openStack(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer stk.close()

			ownerID, err := resolveOwner(ctx, stk.store, user)
			if err != nil {
				return fmt.Errorf("ingest: could not resolve user %q: %w", user, err)
			}

			for _, path := range args {
				ext := strings.ToLower(filepath.Ext(path))
				if ext != ".txt" && ext != ".md" {
					return fmt.Errorf("ingest: %s: file type not supported (allowed: .txt, .md)", path)
				}

				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if !utf8.Valid(raw) {
					return fmt.Errorf("ingest: %s: not valid UTF-8 text", path)
				}

				receipt, err := stk.pipeline.Ingest(ctx, ownerID, filepath.Base(path), string(raw))
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}

				log.Info("document ingested",
					slog.String("file", path),
					slog.String("document_id", receipt.DocumentID),
					slog.Int("chunks", receipt.ChunksProcessed),
				)
				fmt.Printf("Ingested %s (%d chunks, id %s)\n", receipt.Filename, receipt.ChunksProcessed, receipt.DocumentID)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", defaultLocalUser, "Email of the owning user account")

	return cmd
}
