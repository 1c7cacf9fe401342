package commands

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/docq-ai/docq-go/internal/agent"
	"github.com/docq-ai/docq-go/internal/llm"
	"github.com/docq-ai/docq-go/internal/logging"
	"github.com/docq-ai/docq-go/internal/provider"
	"github.com/docq-ai/docq-go/internal/rag"
	"github.com/docq-ai/docq-go/internal/tracing"
)

// NewAgentCmd constructs the `docq agent` command, which answers a question
// through the staged retrieve/reason/answer graph and prints the full trace.
func NewAgentCmd() *cobra.Command {
	var user string
	var topK int
	var showTrace bool

	cmd := &cobra.Command{
		Use:   "agent <question>",
		Short: "Answer a question with staged reasoning",
		Long: `Run the retrieval agent: retrieve relevant chunks, reason about them,
then generate a grounded answer. Prints the reasoning summary alongside
the answer, and with --trace the full message transcript of the run.

Examples:
  docq agent "compare the Q3 and Q4 revenue figures"
  docq agent --trace "what changed in the latest release?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			question := strings.TrimSpace(args[0])
			if question == "" {
				return fmt.Errorf("agent: question must not be empty")
			}

			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("agent: failed to initialise model provider: %w", err)
			}
			generator, err := llm.NewModelGenerator(chatModel)
			if err != nil {
				return fmt.Errorf("agent: %w", err)
			}

			stk, err := openStack(log)
			if err != nil {
				return fmt.Errorf("agent: %w", err)
			}
			defer stk.close()

			ownerID, err := resolveOwner(ctx, stk.store, user)
			if err != nil {
				return fmt.Errorf("agent: could not resolve user %q: %w", user, err)
			}

			qaAgent, err := agent.New(ctx, stk.retriever, generator)
			if err != nil {
				return fmt.Errorf("agent: %w", err)
			}

			result, err := qaAgent.Run(ctx, ownerID, question, topK)
			if err != nil {
				return fmt.Errorf("agent: %w", err)
			}

			fmt.Println(result.Answer)
			if result.Reasoning != "" {
				fmt.Printf("\nReasoning: %s\n", result.Reasoning)
			}
			if len(result.Sources) > 0 {
				fmt.Println("\nSources:")
				for i, r := range result.Sources {
					fmt.Printf("  %s  (score %.4f)\n", rag.Citation(i+1, r), rag.Score(r.Distance))
				}
			}
			if showTrace {
				fmt.Println("\nTrace:")
				for _, m := range result.Messages {
					fmt.Printf("  [%s] %s\n", m.Role, m.Content)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", defaultLocalUser, "Email of the owning user account")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (0 uses the configured default)")
	cmd.Flags().BoolVar(&showTrace, "trace", false, "Print the full message transcript of the run")

	return cmd
}
