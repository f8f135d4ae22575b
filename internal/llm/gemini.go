package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultGeminiModel          = "gemini-1.5-flash"
	defaultGeminiEmbeddingModel = "text-embedding-004"
)

// GeminiProvider talks to Google AI Studio (provider id "googleai").
type GeminiProvider struct {
	client         *genai.Client
	embeddingModel string
	defaults
}

func NewGeminiProvider(cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultGeminiEmbeddingModel
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}

	return &GeminiProvider{
		client:         client,
		embeddingModel: embeddingModel,
		defaults:       newDefaults(cfg),
	}, nil
}

func (p *GeminiProvider) Name() string             { return "googleai" }
func (p *GeminiProvider) Model() string            { return p.model }
func (p *GeminiProvider) EmbeddingModel() string   { return p.embeddingModel }
func (p *GeminiProvider) SupportsEmbeddings() bool { return true }

func (p *GeminiProvider) Close() error { return p.client.Close() }

func (p *GeminiProvider) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	req = p.apply(req)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	model := p.client.GenerativeModel(req.Model)
	model.SetMaxOutputTokens(int32(req.MaxTokens))
	model.SetTemperature(float32(req.Temperature))

	systemText, turns := splitSystem(req.Messages)
	if systemText != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemText)}}
	}
	if len(turns) == 0 {
		return nil, errors.New("gemini chat: no user message")
	}

	cs := model.StartChat()
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		return nil, fmt.Errorf("gemini chat: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini chat: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	out := &ChatResponse{
		Provider:  "googleai",
		Model:     req.Model,
		Content:   sb.String(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
		out.CostUSD = CalculateCost(req.Model, out.InputTokens, out.OutputTokens)
	}
	return out, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.client.EmbeddingModel(p.embeddingModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("gemini embedding: empty response")
	}
	return res.Embedding.Values, nil
}

func (p *GeminiProvider) TestConnection(ctx context.Context) bool {
	_, err := p.Complete(ctx, probeRequest())
	return err == nil
}
