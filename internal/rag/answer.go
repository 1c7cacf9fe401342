package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/docq-ai/docq-go/internal/budget"
)

// Answer generation defaults.
const (
	// AnswerTemperature balances fluency against grounding for final answers.
	AnswerTemperature = 0.7
	// AnswerMaxTokens caps the final answer length.
	AnswerMaxTokens = 512
)

// Fixed responses for queries that retrieval cannot support.
const (
	// NoDocumentsAnswer is returned when retrieval finds no chunks at all.
	NoDocumentsAnswer = "I couldn't find any relevant information in the uploaded documents to answer your question."
)

// OffTopicAnswer is returned when chunks were retrieved but all of them fail
// the relevance threshold.
func OffTopicAnswer(question string) string {
	return fmt.Sprintf("I couldn't find relevant information about '%s' in your uploaded documents. "+
		"Your documents appear to contain different topics. "+
		"Please try asking about the actual content of your uploaded files.", question)
}

// BuildPrompt renders the grounded question-answering prompt. With no context
// the question passes through unchanged; otherwise each chunk is framed as a
// numbered document block and the model is instructed to answer only from
// those blocks.
func BuildPrompt(question string, contexts []string) string {
	if len(contexts) == 0 {
		return question
	}

	blocks := make([]string, len(contexts))
	for i, text := range contexts {
		blocks[i] = fmt.Sprintf("[Document %d]:\n%s", i+1, text)
	}

	var b strings.Builder
	b.WriteString("You are a helpful AI assistant. Answer the question based ONLY on the provided context from the user's documents.\n\n")
	b.WriteString("Context from documents:\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nIMPORTANT RULES:\n")
	b.WriteString("1. ONLY use information from the context above\n")
	b.WriteString("2. If the context doesn't contain relevant information to answer the question, say: \"I don't have information about this in your uploaded documents.\"\n")
	b.WriteString("3. Do NOT use your general knowledge if it's not in the context\n")
	b.WriteString("4. Always cite which document section you're using when answering\n")
	b.WriteString("5. If the context seems unrelated to the question, explicitly say so\n\n")
	b.WriteString("Answer:")
	return b.String()
}

// Answer is the outcome of the direct (non-agent) question-answering path.
type Answer struct {
	// Question echoes the user's question.
	Question string

	// Text is the generated (or fixed fallback) answer.
	Text string

	// Sources are the chunks that passed the relevance threshold and were
	// given to the model as context, in distance order. Empty when a fixed
	// fallback answer was returned.
	Sources []Result
}

// Answerer runs the direct retrieval-and-generation path: retrieve, apply the
// relevance threshold, and generate an answer grounded in the surviving chunks.
type Answerer struct {
	retriever Retriever
	generator Generator
}

// NewAnswerer constructs an Answerer.
func NewAnswerer(retriever Retriever, generator Generator) (*Answerer, error) {
	if retriever == nil {
		return nil, fmt.Errorf("rag: retriever must not be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("rag: generator must not be nil")
	}
	return &Answerer{retriever: retriever, generator: generator}, nil
}

// Ask answers the question from the owner's documents. When nothing relevant
// is retrieved a fixed explanatory answer is returned instead of invoking the
// model. Generation failures are returned as errors for the caller to surface.
func (a *Answerer) Ask(ctx context.Context, ownerID, question string, topK int) (Answer, error) {
	results, err := a.retriever.Retrieve(ctx, ownerID, question, topK)
	if err != nil {
		return Answer{}, err
	}
	if len(results) == 0 {
		return Answer{Question: question, Text: NoDocumentsAnswer}, nil
	}

	relevant := FilterRelevant(results)
	if len(relevant) == 0 {
		return Answer{Question: question, Text: OffTopicAnswer(question)}, nil
	}

	contexts := make([]string, len(relevant))
	for i, r := range relevant {
		contexts[i] = r.Text
	}
	contexts = budget.TrimContexts(question, contexts, budget.DefaultMaxContextTokens)
	relevant = relevant[:len(contexts)]

	text, err := a.generator.Generate(ctx, BuildPrompt(question, contexts), GenerateOptions{
		Temperature: AnswerTemperature,
		MaxTokens:   AnswerMaxTokens,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("rag: answer generation failed: %w", err)
	}

	return Answer{Question: question, Text: text, Sources: relevant}, nil
}
