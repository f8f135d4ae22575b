package rag

import (
	"context"
	"fmt"
	"log/slog"
)

// Synthesizer answers questions by retrieving evidence and asking the model.
type Synthesizer struct {
	retriever *Retriever
	generator *Generator
	topK      int
}

func NewSynthesizer(r *Retriever, g *Generator, topK int) *Synthesizer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Synthesizer{retriever: r, generator: g, topK: topK}
}

// Answer uses keyword retrieval in fallback mode and semantic retrieval
// otherwise.
func (s *Synthesizer) Answer(ctx context.Context, question string, fallbackMode bool) (*QueryResponse, error) {
	mode := ModeSemantic
	if fallbackMode {
		mode = ModeKeyword
	}

	retrieval, err := s.retriever.Retrieve(ctx, question, RetrieveOptions{TopK: s.topK, Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	slog.Debug("retrieved chunks",
		"mode", retrieval.Mode,
		"count", len(retrieval.Chunks),
		"score", retrieval.Score,
	)

	return s.generator.Generate(ctx, question, retrieval, fallbackMode || retrieval.Mode == ModeKeyword)
}
