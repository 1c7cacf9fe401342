package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docq-ai/docq-go/internal/logging"
	"github.com/docq-ai/docq-go/internal/rag"
)

// NewSearchCmd constructs the `docq search` command, which runs a semantic
// search over the caller's indexed documents and prints the raw matches.
func NewSearchCmd() *cobra.Command {
	var user string
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over ingested documents",
		Long: `Embed the query and print the nearest chunks from the user's documents.

Results are ordered by ascending distance; each carries a citation naming
the source file and character range, and a relevance score in [0, 1].

Examples:
  docq search "error handling"
  docq search --top-k 10 "how do refunds work"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			query := strings.TrimSpace(args[0])
			if query == "" {
				return fmt.Errorf("search: query must not be empty")
			}

			stk, err := openStack(log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer stk.close()

			ownerID, err := resolveOwner(ctx, stk.store, user)
			if err != nil {
				return fmt.Errorf("search: could not resolve user %q: %w", user, err)
			}

			results, err := stk.retriever.Retrieve(ctx, ownerID, query, topK)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("No results.")
				return nil
			}

			for i, r := range results {
				fmt.Printf("%s  (distance %.4f, score %.4f)\n", rag.Citation(i+1, r), r.Distance, rag.Score(r.Distance))
				fmt.Println(rag.DisplayText(r.Text))
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", defaultLocalUser, "Email of the owning user account")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to return (0 uses the configured default)")

	return cmd
}
