package rag

import (
	"github.com/nikhilbhutani/docqa/pkg/chunker"
	"github.com/nikhilbhutani/docqa/pkg/tokenizer"
)

type ChunkResult struct {
	Content    string            `json:"content"`
	Index      int               `json:"index"`
	Type       chunker.ChunkType `json:"type"`
	WordCount  int               `json:"word_count"`
	TokenCount int               `json:"token_count"`
}

// ChunkText splits text the way ingestion does and annotates each chunk with
// an approximate token count.
func ChunkText(text string, opts chunker.Options) []ChunkResult {
	chunks := chunker.New(chunker.WithOptions(opts)).Chunk(text)

	results := make([]ChunkResult, len(chunks))
	for i, ch := range chunks {
		results[i] = ChunkResult{
			Content:    ch.Content,
			Index:      ch.Index,
			Type:       ch.Type,
			WordCount:  ch.Metadata.WordCount,
			TokenCount: tokenizer.CountTokens(ch.Content),
		}
	}
	return results
}
