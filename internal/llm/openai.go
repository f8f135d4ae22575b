package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

// compatible describes a provider that speaks the OpenAI chat API.
type compatible struct {
	baseURL      string
	defaultModel string
	embeddings   bool
}

var openAICompatible = map[string]compatible{
	"openai":     {baseURL: "", defaultModel: "gpt-4o-mini", embeddings: true},
	"aiml":       {baseURL: "https://api.aimlapi.com/v1", defaultModel: "gpt-4o-mini", embeddings: true},
	"groq":       {baseURL: "https://api.groq.com/openai/v1", defaultModel: "llama-3.1-8b-instant"},
	"openrouter": {baseURL: "https://openrouter.ai/api/v1", defaultModel: "openai/gpt-4o-mini"},
	"deepseek":   {baseURL: "https://api.deepseek.com/v1", defaultModel: "deepseek-chat"},
	"together":   {baseURL: "https://api.together.xyz/v1", defaultModel: "meta-llama/Llama-3-8b-chat-hf"},
	"mistral":    {baseURL: "https://api.mistral.ai/v1", defaultModel: "mistral-small-latest"},
	"xai":        {baseURL: "https://api.x.ai/v1", defaultModel: "grok-beta"},
	"deepinfra":  {baseURL: "https://api.deepinfra.com/v1/openai", defaultModel: "meta-llama/Meta-Llama-3-8B-Instruct"},
	"perplexity": {baseURL: "https://api.perplexity.ai", defaultModel: "llama-3.1-sonar-small-128k-online"},
	"fireworks":  {baseURL: "https://api.fireworks.ai/inference/v1", defaultModel: "accounts/fireworks/models/llama-v3p1-8b-instruct"},
	"cerebras":   {baseURL: "https://api.cerebras.ai/v1", defaultModel: "llama3.1-8b"},
}

type OpenAIProvider struct {
	client         *openai.Client
	name           string
	embeddingModel string
	embeddings     bool
	defaults
}

func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	family, ok := openAICompatible[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	switch {
	case cfg.BaseURL != "":
		oc.BaseURL = cfg.BaseURL
	case family.baseURL != "":
		oc.BaseURL = family.baseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	if cfg.Model == "" {
		cfg.Model = family.defaultModel
	}

	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultOpenAIEmbeddingModel
		if strings.HasPrefix(cfg.Model, "text-embedding") {
			embeddingModel = cfg.Model
		}
	}

	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(oc),
		name:           cfg.Provider,
		embeddingModel: embeddingModel,
		embeddings:     family.embeddings,
		defaults:       newDefaults(cfg),
	}, nil
}

func (p *OpenAIProvider) Name() string             { return p.name }
func (p *OpenAIProvider) Model() string            { return p.model }
func (p *OpenAIProvider) EmbeddingModel() string   { return p.embeddingModel }
func (p *OpenAIProvider) SupportsEmbeddings() bool { return p.embeddings }

func (p *OpenAIProvider) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	req = p.apply(req)

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.name, err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &ChatResponse{
		ID:           resp.ID,
		Provider:     p.name,
		Model:        req.Model,
		Content:      content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
		CostUSD:      CalculateCost(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if !p.embeddings {
		return nil, fmt.Errorf("%s: %w", p.name, ErrEmbeddingsUnsupported)
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("%s embedding: %w", p.name, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%s embedding: empty response", p.name)
	}
	return resp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) TestConnection(ctx context.Context) bool {
	_, err := p.Complete(ctx, probeRequest())
	return err == nil
}
