package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
)

const revenueSentence = "Revenue increased by 15% year-over-year to $42.5M."

func reportText() string {
	return "WEATHER\n" + strings.Repeat("Light rain and cool weather were recorded across the region. ", 8) +
		"\n\nFINANCE\n" + revenueSentence + " " + strings.Repeat("The finance team reviewed the figures in detail. ", 9) +
		"\n\nOFFICE\n" + strings.Repeat("The office relocation moved many employees downtown. ", 9)
}

func textUpload(name, text string) Upload {
	return Upload{
		Name:     name,
		FileType: "txt",
		Data:     document.ReaderAtFromBytes([]byte(text)),
		Size:     int64(len(text)),
	}
}

func newTestEngine(providers ...*fakeProvider) *Engine {
	return NewEngine(Options{
		Registry:  registryFor(providers...),
		Chunking:  chunker.DefaultOptions(),
		Embedding: embedding.Options{Concurrency: 2},
	})
}

func semanticProvider() *fakeProvider { return &fakeProvider{id: "semantic", embeddings: true} }
func basicProvider() *fakeProvider    { return &fakeProvider{id: "basic"} }

func TestEngine_IngestAndRetrieve(t *testing.T) {
	ctx := context.Background()
	p := semanticProvider()
	e := newTestEngine(p)
	require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "semantic"}))
	assert.False(t, e.IsEmbeddingFallbackActive())

	doc, err := e.Ingest(ctx, textUpload("report.txt", reportText()))
	require.NoError(t, err)
	require.Len(t, doc.Chunks, 3)
	assert.True(t, doc.HasEmbeddings())
	assert.Equal(t, "semantic", doc.Metadata[models.MetaProvider])
	assert.Equal(t, len(vocab), doc.Metadata[models.MetaEmbeddingDimensions])
	assert.Equal(t, false, doc.Metadata[models.MetaFallbackMode])

	resp, err := e.Query(ctx, "What was the revenue growth?")
	require.NoError(t, err)

	require.NotEmpty(t, resp.RetrievedChunks)
	top := resp.RetrievedChunks[0]
	assert.Contains(t, top.Content, "15%")
	assert.Equal(t, 1, top.ChunkIndex)
	assert.Equal(t, []string{"report.txt (chunk 2)"}, resp.Sources)
	assert.Equal(t, "Revenue grew 15%.", resp.Answer)
	assert.False(t, resp.FallbackMode)
	assert.Greater(t, resp.RelevanceScore, SimilarityFloor)
	assert.Equal(t, 45, resp.Tokens)

	req := p.lastRequest.Load()
	require.NotNil(t, req)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.NotContains(t, req.Messages[0].Content, "keyword")
	assert.True(t, strings.HasPrefix(req.Messages[1].Content, "Context: "))
	assert.Contains(t, req.Messages[1].Content, revenueSentence)
	assert.True(t, strings.HasSuffix(req.Messages[1].Content, "Question: What was the revenue growth?\n\nAnswer:"))

	st := e.Status()
	assert.Equal(t, 1, st.Usage.Requests)
	assert.Equal(t, 45, st.Usage.Tokens)
}

func TestEngine_FallbackActivation(t *testing.T) {
	ctx := context.Background()

	t.Run("provider without embeddings", func(t *testing.T) {
		p := basicProvider()
		e := newTestEngine(p)
		require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "basic"}))
		assert.True(t, e.IsEmbeddingFallbackActive())

		doc, err := e.Ingest(ctx, textUpload("report.txt", reportText()))
		require.NoError(t, err)
		assert.Empty(t, doc.Embeddings)
		assert.Equal(t, true, doc.Metadata[models.MetaFallbackMode])
		assert.Zero(t, p.embeds.Load())

		resp, err := e.Query(ctx, "What was the revenue growth?")
		require.NoError(t, err)
		assert.True(t, resp.FallbackMode)
		require.NotEmpty(t, resp.RetrievedChunks)
		assert.Contains(t, resp.RetrievedChunks[0].Content, "15%")

		req := p.lastRequest.Load()
		require.NotNil(t, req)
		assert.Contains(t, req.Messages[0].Content, "keyword matching")
	})

	t.Run("failing test embedding", func(t *testing.T) {
		p := &fakeProvider{id: "flaky", embeddings: true, embedErr: errProviderDown}
		e := newTestEngine(p)
		require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "flaky"}))
		assert.True(t, e.IsEmbeddingFallbackActive())
		assert.True(t, e.Status().EmbeddingFallback)
	})
}

func TestEngine_NoEvidence(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		p := semanticProvider()
		e := newTestEngine(p)
		require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "semantic"}))

		resp, err := e.Query(ctx, "What was the revenue growth?")
		require.NoError(t, err)
		assert.Equal(t, NoEvidenceAnswer, resp.Answer)
		assert.Zero(t, resp.RelevanceScore)
		assert.Empty(t, resp.Sources)
		assert.Empty(t, resp.RetrievedChunks)
		assert.Zero(t, p.completions.Load())
	})

	t.Run("unrelated question", func(t *testing.T) {
		p := semanticProvider()
		e := newTestEngine(p)
		require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "semantic"}))
		_, err := e.Ingest(ctx, textUpload("report.txt", reportText()))
		require.NoError(t, err)

		resp, err := e.Query(ctx, "quantum chromodynamics")
		require.NoError(t, err)
		assert.Equal(t, NoEvidenceAnswer, resp.Answer)
		assert.Zero(t, p.completions.Load())
	})

	t.Run("keyword mode", func(t *testing.T) {
		p := basicProvider()
		e := newTestEngine(p)
		require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "basic"}))
		_, err := e.Ingest(ctx, textUpload("report.txt", reportText()))
		require.NoError(t, err)

		resp, err := e.Query(ctx, "quantum chromodynamics")
		require.NoError(t, err)
		assert.Equal(t, NoEvidenceAnswer, resp.Answer)
		assert.True(t, resp.FallbackMode)
		assert.Zero(t, p.completions.Load())
	})
}

func TestEngine_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("same config is a no-op", func(t *testing.T) {
		p := semanticProvider()
		e := newTestEngine(p)
		cfg := llm.Config{Provider: "semantic", Model: "m"}
		require.NoError(t, e.Initialize(ctx, cfg))
		before := e.IsEmbeddingFallbackActive()

		require.NoError(t, e.Initialize(ctx, llm.Config{Provider: " SEMANTIC ", Model: "m"}))
		assert.Equal(t, before, e.IsEmbeddingFallbackActive())
		assert.EqualValues(t, 1, p.probes.Load())
	})

	t.Run("connection failure", func(t *testing.T) {
		e := newTestEngine(&fakeProvider{id: "down", offline: true})
		err := e.Initialize(ctx, llm.Config{Provider: "down"})
		assert.ErrorIs(t, err, ErrConnectionFailed)
		assert.False(t, e.Status().Initialized)
	})

	t.Run("unknown provider", func(t *testing.T) {
		e := newTestEngine()
		err := e.Initialize(ctx, llm.Config{Provider: "nope"})
		assert.ErrorIs(t, err, llm.ErrUnsupportedProvider)
	})

	t.Run("reconfiguration updates stored documents", func(t *testing.T) {
		basic, semantic := basicProvider(), semanticProvider()
		e := newTestEngine(basic, semantic)

		require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "basic"}))
		_, err := e.Ingest(ctx, textUpload("report.txt", reportText()))
		require.NoError(t, err)
		assert.False(t, e.Documents()[0].HasEmbeddings())

		require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "semantic"}))
		assert.False(t, e.IsEmbeddingFallbackActive())
		doc := e.Documents()[0]
		assert.True(t, doc.HasEmbeddings())
		assert.Equal(t, "semantic", doc.Metadata[models.MetaProvider])
		assert.True(t, basic.closed.Load())

		resp, err := e.Query(ctx, "What was the revenue growth?")
		require.NoError(t, err)
		assert.False(t, resp.FallbackMode)
		assert.Equal(t, []string{"report.txt (chunk 2)"}, resp.Sources)

		require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "basic"}))
		doc = e.Documents()[0]
		assert.False(t, doc.HasEmbeddings())
		assert.Equal(t, true, doc.Metadata[models.MetaFallbackMode])
		assert.True(t, semantic.closed.Load())
	})
}

func TestEngine_ReconfigurationFailureKeepsPreviousProvider(t *testing.T) {
	ctx := context.Background()
	a := &fakeProvider{id: "a", embeddings: true}
	b := &fakeProvider{id: "b", embeddings: true}
	e := newTestEngine(a, b)

	require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "a"}))
	for _, text := range []string{"revenue growth", "office employees", "rain"} {
		require.NoError(t, e.AddDocument(ctx, &models.Document{Name: text + ".txt", Chunks: []string{text}}))
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// The first call is the embedding check, so the third re-embeds the
	// second document.
	b.onEmbed = func() {
		if b.embeds.Load() == 3 {
			cancel()
		}
	}
	err := e.Initialize(cctx, llm.Config{Provider: "b"})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, "a", e.Status().Provider)
	assert.True(t, b.closed.Load())
	assert.False(t, a.closed.Load())
	for _, d := range e.Documents() {
		assert.Equal(t, "a", d.Metadata[models.MetaProvider], d.Name)
		assert.True(t, d.HasEmbeddings())
	}

	resp, err := e.Query(ctx, "revenue growth")
	require.NoError(t, err)
	assert.Equal(t, []string{"revenue growth.txt (chunk 1)"}, resp.Sources)

	b.onEmbed = nil
	require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "b"}))
	assert.Equal(t, "b", e.Status().Provider)
	for _, d := range e.Documents() {
		assert.Equal(t, "b", d.Metadata[models.MetaProvider], d.Name)
	}
}

func TestEngine_Cancellation(t *testing.T) {
	p := semanticProvider()
	e := newTestEngine(p)
	require.NoError(t, e.Initialize(context.Background(), llm.Config{Provider: "semantic"}))

	ctx, cancel := context.WithCancel(context.Background())
	p.onEmbed = cancel

	_, err := e.Ingest(ctx, textUpload("report.txt", reportText()))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.Documents())
}

func TestEngine_Errors(t *testing.T) {
	ctx := context.Background()

	e := newTestEngine(semanticProvider())
	_, err := e.Query(ctx, "anything")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = e.ProcessDocument(ctx, textUpload("a.txt", "hello"))
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "semantic"}))
	_, err = e.Query(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = e.Ingest(ctx, textUpload("blank.txt", "  \n\n "))
	assert.ErrorIs(t, err, ErrNoChunks)

	_, err = e.Ingest(ctx, Upload{Name: "x.png", FileType: "png", Data: document.ReaderAtFromBytes([]byte("x")), Size: 1})
	assert.Error(t, err)
	assert.Empty(t, e.Documents())
}

func TestEngine_CompletionFailure(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{id: "semantic", embeddings: true, completeErr: errProviderDown}
	e := newTestEngine(p)
	require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "semantic"}))
	_, err := e.Ingest(ctx, textUpload("report.txt", reportText()))
	require.NoError(t, err)

	_, err = e.Query(ctx, "What was the revenue growth?")
	assert.ErrorIs(t, err, errProviderDown)

	st := e.Status()
	assert.True(t, st.Initialized)
	assert.False(t, st.Healthy)

	p.completeErr = nil
	_, err = e.Query(ctx, "What was the revenue growth?")
	require.NoError(t, err)
	assert.True(t, e.Status().Healthy)
}

func TestEngine_AddDocumentRepairsEmbeddings(t *testing.T) {
	ctx := context.Background()
	p := semanticProvider()
	e := newTestEngine(p)
	require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "semantic"}))

	t.Run("blank chunk", func(t *testing.T) {
		doc := &models.Document{Name: "blank.txt", Chunks: []string{"revenue growth", "   "}}
		require.NoError(t, e.AddDocument(ctx, doc))
		assert.True(t, doc.HasEmbeddings())
		assert.Equal(t, bagOfWords("revenue growth"), doc.Embeddings[0])
		assert.Equal(t, 1, doc.Metadata[models.MetaFallbackVectors])
	})

	t.Run("misaligned vectors", func(t *testing.T) {
		doc := &models.Document{Name: "short.txt",
			Chunks:     []string{"office employees", "rain"},
			Embeddings: [][]float32{{1}},
		}
		require.NoError(t, e.AddDocument(ctx, doc))
		require.Len(t, doc.Embeddings, 2)
		assert.Equal(t, bagOfWords("rain"), doc.Embeddings[1])
	})

	t.Run("empty vector", func(t *testing.T) {
		doc := &models.Document{Name: "hole.txt",
			Chunks:     []string{"rain", "weather"},
			Embeddings: [][]float32{bagOfWords("rain"), {}},
		}
		require.NoError(t, e.AddDocument(ctx, doc))
		assert.Equal(t, bagOfWords("weather"), doc.Embeddings[1])
	})

	t.Run("vectors from another provider", func(t *testing.T) {
		doc := &models.Document{Name: "old.txt",
			Chunks:     []string{"revenue"},
			Embeddings: [][]float32{{0.5, 0.5}},
			Metadata:   map[string]any{models.MetaProvider: "other", models.MetaModel: "other-model"},
		}
		require.NoError(t, e.AddDocument(ctx, doc))
		assert.Equal(t, bagOfWords("revenue"), doc.Embeddings[0])
		assert.Equal(t, "semantic", doc.Metadata[models.MetaProvider])
	})

	t.Run("aligned vectors are kept", func(t *testing.T) {
		vec := []float32{1, 0, 0, 0, 0, 0, 0}
		doc := &models.Document{Name: "own.txt", Chunks: []string{"growth"}, Embeddings: [][]float32{vec}}
		before := p.embeds.Load()
		require.NoError(t, e.AddDocument(ctx, doc))
		assert.Equal(t, vec, doc.Embeddings[0])
		assert.Equal(t, before, p.embeds.Load())
	})

	assert.Len(t, e.Documents(), 5)
}

func TestEngine_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	p := semanticProvider()
	e := newTestEngine(p)
	require.NoError(t, e.Initialize(ctx, llm.Config{Provider: "semantic"}))

	doc := &models.Document{Name: "notes.txt", Chunks: []string{"office employees", "rain"}}
	require.NoError(t, e.AddDocument(ctx, doc))
	assert.NotEmpty(t, doc.ID)
	assert.True(t, doc.HasEmbeddings())

	_, err := e.Ingest(ctx, textUpload("report.txt", reportText()))
	require.NoError(t, err)

	st := e.Status()
	assert.True(t, st.Initialized)
	assert.True(t, st.Healthy)
	assert.Equal(t, "semantic", st.Provider)
	assert.True(t, st.SupportsEmbeddings)
	assert.Equal(t, 2, st.DocumentCount)
	assert.Equal(t, 5, st.TotalChunks)

	removed, err := e.RemoveDocument(doc.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = e.RemoveDocument(doc.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	_, err = e.RemoveDocument("")
	assert.ErrorIs(t, err, models.ErrInvalidDocument)

	e.ClearDocuments()
	assert.Empty(t, e.Documents())
	assert.Zero(t, e.Status().TotalChunks)

	require.NoError(t, e.Close())
	assert.True(t, p.closed.Load())
	assert.False(t, e.Status().Initialized)
}
