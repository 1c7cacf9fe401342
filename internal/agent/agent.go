// Package agent implements the three-stage question-answering agent: retrieve
// relevant chunks, reason about whether they can answer the question, then
// generate the final answer. The stages are wired as a fixed eino graph with
// no conditional routing; every run traverses retrieve, reason, generate in
// order and accumulates a message trace describing what happened.
package agent

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/cloudwego/eino/compose"

	"github.com/docq-ai/docq-go/internal/budget"
	"github.com/docq-ai/docq-go/internal/logging"
	"github.com/docq-ai/docq-go/internal/rag"
)

// Generation parameters for the reasoning stage. Reasoning runs cooler and
// shorter than answering; it only has to judge relevance, not compose prose.
const (
	reasonTemperature = 0.3
	reasonMaxTokens   = 200
)

// reasonFallback is used when the reasoning call fails. The run still
// proceeds to the answer stage.
const reasonFallback = "Retrieved context appears relevant based on semantic similarity."

// noDocumentsReasoning is recorded when retrieval produced nothing relevant.
const noDocumentsReasoning = "No relevant documents found to answer the question."

// Role identifies the author of a trace message.
type Role string

const (
	// RoleHuman marks trace entries describing inputs and retrieval outcomes.
	RoleHuman Role = "human"
	// RoleAI marks trace entries produced by the model stages.
	RoleAI Role = "ai"
)

// Message is one entry in the agent's accumulated trace.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// State flows through the agent graph. Each stage reads the fields the
// previous stages populated and appends to Messages; nothing is removed.
type State struct {
	// Question is the user's question, set before the run.
	Question string

	// OwnerID scopes retrieval to the asking user's documents.
	OwnerID string

	// TopK is the number of chunks to retrieve (0 means the retriever default).
	TopK int

	// Retrieved holds the chunks that passed the relevance threshold.
	Retrieved []rag.Result

	// Reasoning is the reason stage's judgment of the retrieved context.
	Reasoning string

	// Answer is the final generated (or fixed fallback) answer.
	Answer string

	// Messages is the accumulated trace of the run.
	Messages []Message
}

// Result is the outcome of one agent run.
type Result struct {
	Question  string
	Answer    string
	Reasoning string

	// Sources are the chunks used for the answer, in distance order.
	Sources []rag.Result

	// Messages is the full trace of the run.
	Messages []Message
}

// Agent runs the fixed retrieve, reason, generate graph.
type Agent struct {
	retriever rag.Retriever
	generator rag.Generator
	runnable  compose.Runnable[State, State]
}

// New constructs the agent and compiles its graph.
func New(ctx context.Context, retriever rag.Retriever, generator rag.Generator) (*Agent, error) {
	if retriever == nil {
		return nil, fmt.Errorf("agent: retriever must not be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("agent: generator must not be nil")
	}

	a := &Agent{retriever: retriever, generator: generator}

	g := compose.NewGraph[State, State]()
	if err := g.AddLambdaNode("retrieve", compose.InvokableLambda(a.retrieve)); err != nil {
		return nil, fmt.Errorf("agent: add retrieve node: %w", err)
	}
	if err := g.AddLambdaNode("reason", compose.InvokableLambda(a.reason)); err != nil {
		return nil, fmt.Errorf("agent: add reason node: %w", err)
	}
	if err := g.AddLambdaNode("generate", compose.InvokableLambda(a.generate)); err != nil {
		return nil, fmt.Errorf("agent: add generate node: %w", err)
	}
	for _, edge := range [][2]string{
		{compose.START, "retrieve"},
		{"retrieve", "reason"},
		{"reason", "generate"},
		{"generate", compose.END},
	} {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("agent: add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runnable, err := g.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent: compile graph: %w", err)
	}
	a.runnable = runnable
	return a, nil
}

// Run answers the question through the full graph.
func (a *Agent) Run(ctx context.Context, ownerID, question string, topK int) (Result, error) {
	final, err := a.runnable.Invoke(ctx, State{
		Question: question,
		OwnerID:  ownerID,
		TopK:     topK,
	})
	if err != nil {
		return Result{}, fmt.Errorf("agent: run failed: %w", err)
	}
	return Result{
		Question:  question,
		Answer:    final.Answer,
		Reasoning: final.Reasoning,
		Sources:   final.Retrieved,
		Messages:  final.Messages,
	}, nil
}

// retrieve fetches the owner's top chunks and keeps only those passing the
// relevance threshold. The trace records how many survived out of how many
// were retrieved.
func (a *Agent) retrieve(ctx context.Context, s State) (State, error) {
	results, err := a.retriever.Retrieve(ctx, s.OwnerID, s.Question, s.TopK)
	if err != nil {
		return s, fmt.Errorf("retrieval failed: %w", err)
	}

	relevant := rag.FilterRelevant(results)
	s.Retrieved = relevant

	if len(relevant) > 0 {
		s.Messages = append(s.Messages, Message{
			Role: RoleHuman,
			Content: fmt.Sprintf("Retrieved %d relevant chunks (filtered from %d total) for: %s",
				len(relevant), len(results), s.Question),
		})
	} else {
		s.Messages = append(s.Messages, Message{
			Role: RoleHuman,
			Content: fmt.Sprintf("No relevant chunks found for: %s. All %d retrieved chunks were below relevance threshold.",
				s.Question, len(results)),
		})
	}
	return s, nil
}

// reason asks the model whether the retrieved context can answer the
// question. With nothing retrieved the stage records its fixed judgment and
// adds no trace message; the generate stage's fallback answer already tells
// the whole story. A failed reasoning call degrades to a fixed judgment
// rather than aborting the run.
func (a *Agent) reason(ctx context.Context, s State) (State, error) {
	if len(s.Retrieved) == 0 {
		s.Reasoning = noDocumentsReasoning
		return s, nil
	}

	reasoning, err := a.generator.Generate(ctx, reasoningPrompt(s.Question, s.Retrieved), rag.GenerateOptions{
		Temperature: reasonTemperature,
		MaxTokens:   reasonMaxTokens,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("agent: reasoning generation failed, using fallback", "error", err)
		reasoning = reasonFallback
	}

	s.Reasoning = reasoning
	s.Messages = append(s.Messages, Message{
		Role:    RoleAI,
		Content: "Reasoning: " + reasoning,
	})
	return s, nil
}

// generate produces the final answer from the retrieved context and the
// reasoning. Generation failures become answer content so the client always
// receives a completed trace.
func (a *Agent) generate(ctx context.Context, s State) (State, error) {
	if len(s.Retrieved) == 0 {
		s.Answer = rag.NoDocumentsAnswer
		s.Messages = append(s.Messages, Message{Role: RoleAI, Content: s.Answer})
		return s, nil
	}

	contexts := make([]string, len(s.Retrieved))
	for i, r := range s.Retrieved {
		contexts[i] = r.Text
	}
	contexts = budget.TrimContexts(s.Question, contexts, budget.DefaultMaxContextTokens)

	enhanced := fmt.Sprintf("%s\n\nNote: %s", s.Question, s.Reasoning)
	answer, err := a.generator.Generate(ctx, rag.BuildPrompt(enhanced, contexts), rag.GenerateOptions{
		Temperature: rag.AnswerTemperature,
		MaxTokens:   rag.AnswerMaxTokens,
	})
	if err != nil {
		answer = fmt.Sprintf("Error generating answer: %v", err)
	}

	s.Answer = answer
	s.Messages = append(s.Messages, Message{Role: RoleAI, Content: answer})
	return s, nil
}

// reasoningPrompt summarizes the first few retrieved chunks for the reasoning
// stage. Chunk text is clipped; the reasoner judges relevance, it does not
// need whole chunks.
func reasoningPrompt(question string, retrieved []rag.Result) string {
	const maxChunks = 3
	const clip = 150

	summary := ""
	for i, r := range retrieved {
		if i >= maxChunks {
			break
		}
		text := r.Text
		if len(text) > clip {
			cut := clip
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		summary += fmt.Sprintf("Chunk %d (from %s): %s...\n", i+1, r.Filename, text)
	}

	return fmt.Sprintf(`Analyze the following retrieved information to determine if it can answer the question.

Question: %s

Retrieved Context:
%s
Does this context contain relevant information to answer the question? Briefly explain.`, question, summary)
}
