package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"watchtower/internal/classifier"
)

type OllamaPlatform struct {
	client *api.Client
	model  string
}

// NewOllamaPlatform talks to baseURL, or to OLLAMA_HOST when baseURL is empty.
func NewOllamaPlatform(model, baseURL string) (*OllamaPlatform, error) {
	if model == "" {
		return nil, fmt.Errorf("failed to create Ollama client, Model cannot be empty")
	}

	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama base_url %q: %w", baseURL, err)
		}
		client = api.NewClient(u, &http.Client{Timeout: 2 * time.Minute})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
	}

	return &OllamaPlatform{
		client: client,
		model:  model,
	}, nil
}

func (o *OllamaPlatform) Name() string {
	return "ollama/" + o.model
}

func (o *OllamaPlatform) Complete(ctx context.Context, req classifier.Request) (string, error) {
	stream := false
	request := &api.GenerateRequest{
		Model:  o.model,
		Prompt: req.Prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		request.Options["num_predict"] = req.MaxTokens
	}

	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema.Parameters)
		if err != nil {
			return "", fmt.Errorf("failed to encode schema %s: %w", req.Schema.Name, err)
		}
		request.Format = schema
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, request, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}

	return strings.TrimSpace(sb.String()), nil
}
