package commands

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/docq-ai/docq-go/internal/llm"
	"github.com/docq-ai/docq-go/internal/logging"
	"github.com/docq-ai/docq-go/internal/provider"
	"github.com/docq-ai/docq-go/internal/rag"
	"github.com/docq-ai/docq-go/internal/tracing"
)

// NewQueryCmd constructs the `docq query` command, which answers a question
// from the user's indexed documents with cited sources.
func NewQueryCmd() *cobra.Command {
	var user string
	var topK int

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from ingested documents",
		Long: `Retrieve relevant chunks for the question and generate a grounded answer.

When no indexed chunk is close enough to the question, a fixed fallback
answer is returned instead of calling the model.

Examples:
  docq query "what is the refund policy?"
  docq query --user alice@example.com "who approves deploys?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			question := strings.TrimSpace(args[0])
			if question == "" {
				return fmt.Errorf("query: question must not be empty")
			}

			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("query: failed to initialise model provider: %w", err)
			}
			generator, err := llm.NewModelGenerator(chatModel)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			stk, err := openStack(log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer stk.close()

			ownerID, err := resolveOwner(ctx, stk.store, user)
			if err != nil {
				return fmt.Errorf("query: could not resolve user %q: %w", user, err)
			}

			answerer, err := rag.NewAnswerer(stk.retriever, generator)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			answer, err := answerer.Ask(ctx, ownerID, question, topK)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			fmt.Println(answer.Text)
			if len(answer.Sources) > 0 {
				fmt.Println("\nSources:")
				for i, r := range answer.Sources {
					fmt.Printf("  %s  (score %.4f)\n", rag.Citation(i+1, r), rag.Score(r.Distance))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", defaultLocalUser, "Email of the owning user account")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (0 uses the configured default)")

	return cmd
}
