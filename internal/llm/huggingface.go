package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHuggingFaceURL            = "https://api-inference.huggingface.co"
	defaultHuggingFaceModel          = "mistralai/Mistral-7B-Instruct-v0.2"
	defaultHuggingFaceEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
)

// HuggingFaceProvider uses the hosted Inference API over plain HTTP.
type HuggingFaceProvider struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	httpClient     *http.Client
	defaults
}

func NewHuggingFaceProvider(cfg Config) (*HuggingFaceProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultHuggingFaceURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultHuggingFaceModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultHuggingFaceEmbeddingModel
	}

	return &HuggingFaceProvider{
		baseURL:        baseURL,
		apiKey:         cfg.APIKey,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		defaults:       newDefaults(cfg),
	}, nil
}

func (p *HuggingFaceProvider) Name() string             { return "huggingface" }
func (p *HuggingFaceProvider) Model() string            { return p.model }
func (p *HuggingFaceProvider) EmbeddingModel() string   { return p.embeddingModel }
func (p *HuggingFaceProvider) SupportsEmbeddings() bool { return true }

type hfGenerateReq struct {
	Inputs     string         `json:"inputs"`
	Parameters hfGenerateOpts `json:"parameters"`
}

type hfGenerateOpts struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfGenerateResp struct {
	GeneratedText string `json:"generated_text"`
}

type hfEmbedReq struct {
	Inputs  string         `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

func (p *HuggingFaceProvider) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	req = p.apply(req)

	lines := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		lines[i] = m.Role + ": " + m.Content
	}

	var out []hfGenerateResp
	err := p.post(ctx, "/models/"+req.Model, hfGenerateReq{
		Inputs: strings.Join(lines, "\n"),
		Parameters: hfGenerateOpts{
			MaxNewTokens: req.MaxTokens,
			Temperature:  req.Temperature,
		},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("huggingface chat: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("huggingface chat: empty response")
	}

	return &ChatResponse{
		Provider:  "huggingface",
		Model:     req.Model,
		Content:   strings.TrimSpace(out[0].GeneratedText),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Embed calls the feature-extraction pipeline. Models that return one vector
// per token are mean pooled.
func (p *HuggingFaceProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var raw json.RawMessage
	err := p.post(ctx, "/pipeline/feature-extraction/"+p.embeddingModel, hfEmbedReq{
		Inputs:  text,
		Options: map[string]any{"wait_for_model": true},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("huggingface embed: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err == nil && len(vec) > 0 {
		return vec, nil
	}
	var tokens [][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil || len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("huggingface embed: unexpected response shape")
	}
	pooled := make([]float32, len(tokens[0]))
	for _, tok := range tokens {
		for i := range min(len(tok), len(pooled)) {
			pooled[i] += tok[i]
		}
	}
	for i := range pooled {
		pooled[i] /= float32(len(tokens))
	}
	return pooled, nil
}

func (p *HuggingFaceProvider) TestConnection(ctx context.Context) bool {
	_, err := p.Embed(ctx, "test")
	return err == nil
}

func (p *HuggingFaceProvider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
