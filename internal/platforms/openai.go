package platforms

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"watchtower/internal/classifier"
)

// OpenAIPlatform forces structured output through a single required tool call.
type OpenAIPlatform struct {
	llm   llms.Model
	model string
}

func NewOpenAIPlatform(token, model, baseURL string) (*OpenAIPlatform, error) {
	if token == "" {
		return nil, fmt.Errorf("openai platform: OPENAI_API_KEY is required")
	}
	if model == "" {
		return nil, fmt.Errorf("openai platform: model cannot be empty")
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return &OpenAIPlatform{llm: llm, model: model}, nil
}

func (p *OpenAIPlatform) Name() string {
	return "openai/" + p.model
}

func (p *OpenAIPlatform) Complete(ctx context.Context, req classifier.Request) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Schema != nil {
		callOpts = append(callOpts,
			llms.WithTools([]llms.Tool{{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        req.Schema.Name,
					Description: req.Schema.Description,
					Parameters:  req.Schema.Parameters,
				},
			}}),
			llms.WithToolChoice(llms.ToolChoice{
				Type:     "function",
				Function: &llms.FunctionReference{Name: req.Schema.Name},
			}),
		)
	}

	resp, err := p.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion returned no choices")
	}

	choice := resp.Choices[0]
	if req.Schema != nil {
		for _, call := range choice.ToolCalls {
			if call.FunctionCall != nil && call.FunctionCall.Name == req.Schema.Name {
				return call.FunctionCall.Arguments, nil
			}
		}
		if choice.FuncCall != nil {
			return choice.FuncCall.Arguments, nil
		}
	}

	return strings.TrimSpace(choice.Content), nil
}
