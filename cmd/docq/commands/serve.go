package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/docq-ai/docq-go/internal/agent"
	"github.com/docq-ai/docq-go/internal/auth"
	"github.com/docq-ai/docq-go/internal/llm"
	"github.com/docq-ai/docq-go/internal/logging"
	"github.com/docq-ai/docq-go/internal/provider"
	"github.com/docq-ai/docq-go/internal/rag"
	"github.com/docq-ai/docq-go/internal/server"
	"github.com/docq-ai/docq-go/internal/tracing"
)

// NewServeCmd constructs the `docq serve` command, which starts the HTTP API
// server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docq HTTP API server",
		Long: `Start the docq HTTP API server on localhost.

The server exposes a multi-user REST API for registration, login, document
upload, semantic search, and question answering over uploaded documents.
Authentication uses JWT bearer tokens; DOCQ_JWT_SECRET must be set.

Examples:
  docq serve
  docq serve --port 9090
  MODEL_PROVIDER=openai docq serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Env (and therefore config-file) values apply only when the
			// flag was not given explicitly.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("DOCQ_SERVER_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("DOCQ_SERVER_PORT", port)
			}

			secret := os.Getenv("DOCQ_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("serve: DOCQ_JWT_SECRET must be set")
			}

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			generator, err := llm.NewModelGenerator(chatModel)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			stk, err := openStack(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stk.close()

			answerer, err := rag.NewAnswerer(stk.retriever, generator)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			qaAgent, err := agent.New(ctx, stk.retriever, generator)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			ttl := time.Duration(getEnvInt("DOCQ_TOKEN_TTL_MINUTES", 0)) * time.Minute
			tokens, err := auth.NewManager(secret, ttl)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			llmName := getEnvOrDefault("MODEL_PROVIDER", "ollama")
			pingers := []server.Pinger{
				server.NewStorePinger(stk.store),
				server.NewEmbedderPinger(stk.embedder),
				server.NewLLMPinger(chatModel, llmName),
			}

			reg := prometheus.NewRegistry()
			srv, err := server.New(server.Deps{
				Store:     stk.store,
				Tokens:    tokens,
				Ingester:  stk.pipeline,
				Retriever: stk.retriever,
				Asker:     answerer,
				Agent:     qaAgent,
			}, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         pingers,
				MetricsRegistry: reg,
				MetricsGatherer: reg,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
