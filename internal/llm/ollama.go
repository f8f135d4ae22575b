package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

const (
	defaultOllamaURL            = "http://localhost:11434"
	defaultOllamaModel          = "llama3"
	defaultOllamaEmbeddingModel = "nomic-embed-text"
)

type OllamaProvider struct {
	client         *ollama.Client
	embeddingModel string
	defaults
}

func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	host := cfg.BaseURL
	if host == "" {
		host = defaultOllamaURL
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", host, err)
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultOllamaEmbeddingModel
	}

	return &OllamaProvider{
		client:         ollama.NewClient(u, &http.Client{Timeout: cfg.Timeout}),
		embeddingModel: embeddingModel,
		defaults:       newDefaults(cfg),
	}, nil
}

func (p *OllamaProvider) Name() string             { return "ollama" }
func (p *OllamaProvider) Model() string            { return p.model }
func (p *OllamaProvider) EmbeddingModel() string   { return p.embeddingModel }
func (p *OllamaProvider) SupportsEmbeddings() bool { return true }

func (p *OllamaProvider) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	req = p.apply(req)

	msgs := make([]ollama.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	stream := false
	var (
		content strings.Builder
		last    ollama.ChatResponse
	)
	err := p.client.Chat(ctx, &ollama.ChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}, func(resp ollama.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		last = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	return &ChatResponse{
		Provider:     "ollama",
		Model:        req.Model,
		Content:      content.String(),
		InputTokens:  last.PromptEvalCount,
		OutputTokens: last.EvalCount,
		TotalTokens:  last.PromptEvalCount + last.EvalCount,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := p.client.Embed(ctx, &ollama.EmbedRequest{
		Model: p.embeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if res == nil || len(res.Embeddings) == 0 || len(res.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: empty response")
	}
	return res.Embeddings[0], nil
}

// TestConnection only checks that the server is up; model availability
// surfaces on the first real request.
func (p *OllamaProvider) TestConnection(ctx context.Context) bool {
	return p.client.Heartbeat(ctx) == nil
}
