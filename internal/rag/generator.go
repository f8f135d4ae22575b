package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/prompt"
)

// NoEvidenceAnswer is returned without calling the model when retrieval
// finds nothing relevant.
const NoEvidenceAnswer = "I couldn't find any relevant information to answer your question."

type QueryResponse struct {
	Answer          string           `json:"answer"`
	Sources         []string         `json:"sources"`
	RelevanceScore  float64          `json:"relevance_score"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	FallbackMode    bool             `json:"fallback_mode"`
	Provider        string           `json:"provider,omitempty"`
	Model           string           `json:"model,omitempty"`
	Tokens          int              `json:"tokens,omitempty"`
	CostUSD         float64          `json:"cost_usd,omitempty"`
}

type Generator struct {
	provider llm.Provider
}

func NewGenerator(p llm.Provider) *Generator {
	return &Generator{provider: p}
}

// Generate answers question from the retrieved chunks. An empty retrieval
// short-circuits to NoEvidenceAnswer.
func (g *Generator) Generate(ctx context.Context, question string, r *Retrieval, fallbackMode bool) (*QueryResponse, error) {
	if r == nil || len(r.Chunks) == 0 {
		return &QueryResponse{
			Answer:          NoEvidenceAnswer,
			Sources:         []string{},
			RetrievedChunks: []RetrievedChunk{},
			FallbackMode:    fallbackMode,
		}, nil
	}

	resp, err := g.provider.Complete(ctx, llm.ChatRequest{
		Messages: BuildMessages(question, r.Chunks, fallbackMode),
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	cost := resp.CostUSD
	if cost == 0 {
		cost = llm.CalculateCost(resp.Model, resp.InputTokens, resp.OutputTokens)
	}

	return &QueryResponse{
		Answer:          strings.TrimSpace(resp.Content),
		Sources:         Sources(r.Chunks),
		RelevanceScore:  r.Score,
		RetrievedChunks: r.Chunks,
		FallbackMode:    fallbackMode,
		Provider:        g.provider.Name(),
		Model:           resp.Model,
		Tokens:          resp.TotalTokens,
		CostUSD:         cost,
	}, nil
}

// BuildMessages lays out the system prompt and the context-bearing user turn.
func BuildMessages(question string, chunks []RetrievedChunk, fallbackMode bool) []llm.Message {
	system := prompt.System
	if fallbackMode {
		system += "\n\n" + prompt.KeywordMode
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}

	return []llm.Message{
		{Role: "system", Content: system},
		{
			Role:    "user",
			Content: prompt.MustRender(prompt.Answer, map[string]string{
				"context":  strings.Join(parts, "\n\n"),
				"question": question,
			}),
		},
	}
}

// Sources returns the distinct citation labels in retrieval order.
func Sources(chunks []RetrievedChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		out = append(out, c.Source)
	}
	return out
}
