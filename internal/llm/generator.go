// Package llm adapts an eino chat model to the rag.Generator interface so the
// answering paths stay independent of the concrete inference backend.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/docq-ai/docq-go/internal/rag"
)

// ModelGenerator implements rag.Generator on top of a ChatModel constructed
// by the provider package. It is safe for concurrent use as long as the
// underlying model is.
type ModelGenerator struct {
	model model.ToolCallingChatModel
}

var _ rag.Generator = (*ModelGenerator)(nil)

// NewModelGenerator wraps a ChatModel as a rag.Generator.
func NewModelGenerator(m model.ToolCallingChatModel) (*ModelGenerator, error) {
	if m == nil {
		return nil, fmt.Errorf("llm: chat model must not be nil")
	}
	return &ModelGenerator{model: m}, nil
}

// Generate sends the prompt as a single user message and returns the model's
// completion. Backend failures are wrapped in rag.ErrGeneratorUnavailable so
// callers can distinguish an unreachable model from a bad request.
func (g *ModelGenerator) Generate(ctx context.Context, prompt string, opts rag.GenerateOptions) (string, error) {
	var callOpts []model.Option
	if opts.Temperature > 0 {
		callOpts = append(callOpts, model.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(opts.MaxTokens))
	}

	msg, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, callOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrGeneratorUnavailable, err)
	}
	if msg == nil {
		return "", fmt.Errorf("%w: model returned no message", rag.ErrGeneratorUnavailable)
	}
	return msg.Content, nil
}
