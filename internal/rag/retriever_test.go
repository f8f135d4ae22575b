package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

type fixedEmbedder []float32

func (f fixedEmbedder) Embed(context.Context, string) (embedding.Result, error) {
	return embedding.Result{Vector: f, Source: embedding.SourceProvider}, nil
}

type fallbackEmbedder struct{}

func (fallbackEmbedder) Embed(_ context.Context, text string) (embedding.Result, error) {
	return embedding.WithFallback(text, nil, errors.New("provider down")), nil
}

func storeWith(t *testing.T, docs ...*models.Document) vectorstore.Store {
	t.Helper()
	s := vectorstore.NewMemoryStore()
	for _, d := range docs {
		require.NoError(t, s.Add(d))
	}
	return s
}

func TestRetriever_Semantic(t *testing.T) {
	ctx := context.Background()

	a := &models.Document{ID: "a", Name: "a.pdf",
		Chunks:     []string{"close", "far", "tie"},
		Embeddings: [][]float32{{1, 0}, {0, 1}, {1, 1}},
	}
	b := &models.Document{ID: "b", Name: "b.pdf",
		Chunks:     []string{"tie again"},
		Embeddings: [][]float32{{1, 1}},
	}
	wrongDims := &models.Document{ID: "c", Name: "c.pdf",
		Chunks:     []string{"three dims"},
		Embeddings: [][]float32{{1, 0, 0}},
	}
	bare := &models.Document{ID: "d", Name: "d.pdf", Chunks: []string{"no vectors"}}

	r := NewRetriever(storeWith(t, a, b, wrongDims, bare), fixedEmbedder{1, 0.2})
	got, err := r.Retrieve(ctx, "q", RetrieveOptions{TopK: 5, Mode: ModeSemantic})
	require.NoError(t, err)

	require.Len(t, got.Chunks, 4)
	assert.Equal(t, "close", got.Chunks[0].Content)
	assert.Equal(t, "tie", got.Chunks[1].Content)
	assert.Equal(t, "tie again", got.Chunks[2].Content)
	assert.Equal(t, "far", got.Chunks[3].Content)
	assert.Equal(t, "a.pdf (chunk 3)", got.Chunks[1].Source)
	assert.Equal(t, ModeSemantic, got.Mode)

	var sum float64
	for _, c := range got.Chunks {
		sum += c.Score
	}
	assert.InDelta(t, sum/4, got.Score, 1e-9)
}

func TestRetriever_SemanticFloorAndTopK(t *testing.T) {
	ctx := context.Background()
	doc := &models.Document{ID: "a", Name: "a.pdf",
		Chunks:     []string{"one", "two", "three", "orthogonal"},
		Embeddings: [][]float32{{1, 0}, {1, 0}, {1, 0}, {0, 1}},
	}
	r := NewRetriever(storeWith(t, doc), fixedEmbedder{1, 0})

	got, err := r.Retrieve(ctx, "q", RetrieveOptions{TopK: 2, Mode: ModeSemantic})
	require.NoError(t, err)
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, []int{0, 1}, []int{got.Chunks[0].ChunkIndex, got.Chunks[1].ChunkIndex})

	got, err = r.Retrieve(ctx, "q", RetrieveOptions{Mode: ModeSemantic})
	require.NoError(t, err)
	assert.Len(t, got.Chunks, 3)
}

func TestRetriever_QueryEmbeddingFallbackUsesKeywords(t *testing.T) {
	doc := &models.Document{ID: "a", Name: "a.pdf",
		Chunks:     []string{"office move", "revenue grew strongly"},
		Embeddings: [][]float32{{1, 0}, {0, 1}},
	}
	r := NewRetriever(storeWith(t, doc), fallbackEmbedder{})

	got, err := r.Retrieve(context.Background(), "revenue", RetrieveOptions{Mode: ModeSemantic})
	require.NoError(t, err)
	assert.Equal(t, ModeKeyword, got.Mode)
	require.Len(t, got.Chunks, 1)
	assert.Equal(t, "revenue grew strongly", got.Chunks[0].Content)
}

func TestRetriever_EmptyStore(t *testing.T) {
	r := NewRetriever(vectorstore.NewMemoryStore(), fixedEmbedder{1})
	for _, mode := range []Mode{ModeSemantic, ModeKeyword} {
		got, err := r.Retrieve(context.Background(), "anything", RetrieveOptions{Mode: mode})
		require.NoError(t, err)
		assert.Empty(t, got.Chunks)
		assert.Zero(t, got.Score)
	}
}

func TestRetriever_Keyword(t *testing.T) {
	ctx := context.Background()

	t.Run("verbatim phrase outranks earlier chunk", func(t *testing.T) {
		first := &models.Document{ID: "a", Name: "a.pdf", Chunks: []string{"revenue of firm"}}
		second := &models.Document{ID: "b", Name: "b.pdf", Chunks: []string{"the revenue grew"}}
		r := NewRetriever(storeWith(t, first, second), nil)

		got, err := r.Retrieve(ctx, "the revenue", RetrieveOptions{Mode: ModeKeyword})
		require.NoError(t, err)
		require.Len(t, got.Chunks, 2)
		assert.Equal(t, "the revenue grew", got.Chunks[0].Content)
		assert.Equal(t, "revenue of firm", got.Chunks[1].Content)
		assert.Equal(t, ModeKeyword, got.Mode)
		assert.Greater(t, got.Score, 0.0)
		assert.LessOrEqual(t, got.Score, 1.0)
	})

	t.Run("equal scores keep store order", func(t *testing.T) {
		first := &models.Document{ID: "a", Name: "a.pdf", Chunks: []string{"budget report"}}
		second := &models.Document{ID: "b", Name: "b.pdf", Chunks: []string{"budget report"}}
		r := NewRetriever(storeWith(t, first, second), nil)

		got, err := r.Retrieve(ctx, "budget", RetrieveOptions{Mode: ModeKeyword})
		require.NoError(t, err)
		require.Len(t, got.Chunks, 2)
		assert.Equal(t, "a", got.Chunks[0].DocumentID)
		assert.Equal(t, "b", got.Chunks[1].DocumentID)
	})

	t.Run("no matches", func(t *testing.T) {
		doc := &models.Document{ID: "a", Name: "a.pdf", Chunks: []string{"nothing relevant here"}}
		r := NewRetriever(storeWith(t, doc), nil)
		got, err := r.Retrieve(ctx, "quarterly revenue", RetrieveOptions{Mode: ModeKeyword})
		require.NoError(t, err)
		assert.Empty(t, got.Chunks)
		assert.Zero(t, got.Score)
	})
}
