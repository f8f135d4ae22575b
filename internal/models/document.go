package models

import (
	"errors"
	"fmt"
	"time"
)

// Metadata keys set during ingestion.
const (
	MetaProcessingMethod    = "processing_method"
	MetaConfidence          = "confidence"
	MetaPages               = "pages"
	MetaProvider            = "ai_provider"
	MetaModel               = "ai_model"
	MetaEmbeddingDimensions = "embedding_dimensions"
	MetaFallbackMode        = "fallback_mode"
	MetaFallbackVectors     = "fallback_vectors"
	MetaChunkCount          = "chunk_count"
)

var ErrInvalidDocument = errors.New("invalid document")

type Document struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Content    string         `json:"content"`
	Chunks     []string       `json:"chunks"`
	Embeddings [][]float32    `json:"-"`
	UploadedAt time.Time      `json:"uploaded_at"`
	Metadata   map[string]any `json:"metadata"`
}

// HasEmbeddings reports whether every chunk has a non-empty vector.
func (d *Document) HasEmbeddings() bool {
	if len(d.Embeddings) == 0 || len(d.Embeddings) != len(d.Chunks) {
		return false
	}
	for _, e := range d.Embeddings {
		if len(e) == 0 {
			return false
		}
	}
	return true
}

// Validate checks the shape a document must have before it is stored.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	if len(d.Chunks) == 0 {
		return fmt.Errorf("%w: %s has no chunks", ErrInvalidDocument, d.ID)
	}
	if len(d.Embeddings) == 0 {
		return nil
	}
	if len(d.Embeddings) != len(d.Chunks) {
		return fmt.Errorf("%w: %s has %d chunks but %d embeddings",
			ErrInvalidDocument, d.ID, len(d.Chunks), len(d.Embeddings))
	}
	for i, e := range d.Embeddings {
		if len(e) == 0 {
			return fmt.Errorf("%w: %s chunk %d has an empty embedding", ErrInvalidDocument, d.ID, i)
		}
	}
	return nil
}

// Clone returns a copy that shares no slices or maps with d.
func (d *Document) Clone() Document {
	out := *d
	out.Chunks = append([]string(nil), d.Chunks...)
	if d.Embeddings != nil {
		out.Embeddings = make([][]float32, len(d.Embeddings))
		for i, e := range d.Embeddings {
			out.Embeddings[i] = append([]float32(nil), e...)
		}
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
