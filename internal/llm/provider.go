package llm

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnsupportedProvider   = errors.New("unsupported provider")
	ErrMissingAPIKey         = errors.New("missing api key")
	ErrEmbeddingsUnsupported = errors.New("provider does not support embeddings")
)

// Provider is a configured completion backend (OpenAI, Anthropic, Ollama, etc.).
type Provider interface {
	Name() string
	Model() string
	// SupportsEmbeddings is a static capability declaration; it does not
	// probe the network.
	SupportsEmbeddings() bool
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// TestConnection reports whether the backend answers a trivial request.
	// It never returns an error.
	TestConnection(ctx context.Context) bool
}

// EmbeddingProvider is implemented by providers that can embed text.
type EmbeddingProvider interface {
	Provider
	EmbeddingModel() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AsEmbedder returns p as an EmbeddingProvider when it declares the capability.
func AsEmbedder(p Provider) (EmbeddingProvider, bool) {
	if p == nil || !p.SupportsEmbeddings() {
		return nil, false
	}
	e, ok := p.(EmbeddingProvider)
	return e, ok
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider       string        `json:"provider"`
	APIKey         string        `json:"api_key,omitempty"`
	Model          string        `json:"model,omitempty"`
	BaseURL        string        `json:"base_url,omitempty"`
	EmbeddingModel string        `json:"embedding_model,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature,omitempty"`
}

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatRequest is the input for chat completions. Zero values fall back to
// the provider's configured model, max tokens and temperature.
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse is the output from chat completions.
type ChatResponse struct {
	ID           string  `json:"id,omitempty"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Content      string  `json:"content"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	LatencyMs    int64   `json:"latency_ms"`
}

// defaults holds request parameters shared by every provider implementation.
type defaults struct {
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

func newDefaults(cfg Config) defaults {
	return defaults{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
}

func (d defaults) apply(req ChatRequest) ChatRequest {
	if req.Model == "" {
		req.Model = d.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = d.maxTokens
	}
	if req.Temperature <= 0 {
		req.Temperature = d.temperature
	}
	return req
}

func probeRequest() ChatRequest {
	return ChatRequest{
		Messages:  []Message{{Role: "user", Content: "test"}},
		MaxTokens: 5,
	}
}

// splitSystem separates the system prompt from the conversation turns.
func splitSystem(msgs []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
