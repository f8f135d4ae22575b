package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

const (
	DefaultTopK = 5
	// SimilarityFloor is the cosine similarity a chunk must exceed to count
	// as evidence.
	SimilarityFloor = 0.1
	// keywordScale maps raw keyword scores onto the 0-1 relevance range.
	keywordScale = 20.0
)

// QueryEmbedder embeds the query text in semantic mode.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) (embedding.Result, error)
}

type RetrievedChunk struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
	Source       string  `json:"source"`
}

// Label is the human-readable citation, numbered from 1.
func Label(documentName string, chunkIndex int) string {
	return fmt.Sprintf("%s (chunk %d)", documentName, chunkIndex+1)
}

type Retrieval struct {
	Chunks []RetrievedChunk `json:"chunks"`
	Score  float64          `json:"score"`
	Mode   Mode             `json:"mode"`
}

type RetrieveOptions struct {
	TopK int
	Mode Mode
}

type Retriever struct {
	store    vectorstore.Store
	embedder QueryEmbedder
}

func NewRetriever(store vectorstore.Store, embedder QueryEmbedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Retrieve ranks every stored chunk against query. Ties keep store order:
// earlier documents first, then lower chunk indexes. A semantic request
// whose query embedding falls back is answered by keyword retrieval, and the
// returned Mode says so.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (*Retrieval, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	docs := r.store.Snapshot()
	if len(docs) == 0 {
		return &Retrieval{Mode: opts.Mode}, nil
	}

	if opts.Mode == ModeKeyword {
		return r.keyword(query, docs, opts.TopK), nil
	}

	if r.embedder == nil {
		return nil, fmt.Errorf("semantic retrieval: no embedder configured")
	}
	res, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if res.IsFallback() {
		slog.Warn("query embedding failed, using keyword retrieval", "error", res.Err)
		return r.keyword(query, docs, opts.TopK), nil
	}
	return r.semantic(res.Vector, docs, opts.TopK), nil
}

func (r *Retriever) semantic(queryVec []float32, docs []models.Document, topK int) *Retrieval {
	skipped := make(map[string]bool)
	skip := func(d models.Document, reason string) {
		if skipped[d.ID] {
			return
		}
		skipped[d.ID] = true
		slog.Warn("skipping document in semantic retrieval",
			"document_id", d.ID,
			"document", d.Name,
			"reason", reason,
		)
	}

	var candidates []RetrievedChunk
	for _, ref := range vectorstore.ChunkRefs(docs, skip) {
		if ref.Embedding == nil {
			if !skipped[ref.DocumentID] {
				skip(models.Document{ID: ref.DocumentID, Name: ref.DocumentName}, "no embeddings")
			}
			continue
		}
		if len(ref.Embedding) != len(queryVec) {
			skip(models.Document{ID: ref.DocumentID, Name: ref.DocumentName},
				fmt.Sprintf("embedding dimension %d does not match query dimension %d", len(ref.Embedding), len(queryVec)))
			continue
		}
		sim := embedding.CosineSimilarity(queryVec, ref.Embedding)
		if sim <= SimilarityFloor {
			continue
		}
		candidates = append(candidates, newRetrievedChunk(ref, sim))
	}

	chunks := rank(candidates, topK)
	return &Retrieval{Chunks: chunks, Score: meanScore(chunks), Mode: ModeSemantic}
}

func (r *Retriever) keyword(query string, docs []models.Document, topK int) *Retrieval {
	kq := newKeywordQuery(query)

	var candidates []RetrievedChunk
	for _, ref := range vectorstore.ChunkRefs(docs, nil) {
		raw := kq.score(ref.Content)
		if raw <= 0 {
			continue
		}
		candidates = append(candidates, newRetrievedChunk(ref, raw))
	}

	chunks := rank(candidates, topK)
	score := clamp01(meanScore(chunks) / keywordScale)
	for i := range chunks {
		chunks[i].Score = clamp01(chunks[i].Score / keywordScale)
	}
	return &Retrieval{Chunks: chunks, Score: score, Mode: ModeKeyword}
}

func newRetrievedChunk(ref vectorstore.ChunkRef, score float64) RetrievedChunk {
	return RetrievedChunk{
		DocumentID:   ref.DocumentID,
		DocumentName: ref.DocumentName,
		ChunkIndex:   ref.ChunkIndex,
		Content:      ref.Content,
		Score:        score,
		Source:       Label(ref.DocumentName, ref.ChunkIndex),
	}
}

// rank sorts by descending score, keeping input order among equal scores,
// and keeps the best topK.
func rank(chunks []RetrievedChunk, topK int) []RetrievedChunk {
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks
}

func meanScore(chunks []RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	return sum / float64(len(chunks))
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
