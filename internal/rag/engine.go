package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
)

var (
	ErrNotInitialized   = errors.New("engine not initialized")
	ErrConnectionFailed = errors.New("provider connection test failed")
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrNoChunks         = errors.New("no text could be extracted from the document")
)

type Options struct {
	Store     vectorstore.Store
	Extractor document.TextExtractor
	Registry  *llm.Registry
	Chunking  chunker.Options
	Embedding embedding.Options
	TopK      int
}

// Upload is a file handed to the engine for ingestion.
type Upload struct {
	Name     string
	FileType string
	Data     io.ReaderAt
	Size     int64
}

type Usage struct {
	Requests int     `json:"requests"`
	Tokens   int     `json:"tokens"`
	CostUSD  float64 `json:"cost_usd"`
}

type Status struct {
	Initialized        bool   `json:"initialized"`
	Healthy            bool   `json:"healthy"`
	Provider           string `json:"provider,omitempty"`
	Model              string `json:"model,omitempty"`
	SupportsEmbeddings bool   `json:"supports_embeddings"`
	EmbeddingFallback  bool   `json:"embedding_fallback"`
	DocumentCount      int    `json:"document_count"`
	TotalChunks        int    `json:"total_chunks"`
	Usage              Usage  `json:"usage"`
}

// Engine owns the document collection and the active provider.
type Engine struct {
	store     vectorstore.Store
	extractor document.TextExtractor
	registry  *llm.Registry
	chunker   *chunker.Chunker
	embedOpts embedding.Options
	topK      int

	// initMu is held exclusively by Initialize and shared by ingestion, so
	// no document is embedded against a provider that is being replaced.
	// mu guards the fields below it.
	initMu   sync.RWMutex
	mu       sync.RWMutex
	cfg      llm.Config
	provider llm.Provider
	embedder *embedding.Service
	fallback bool
	ready    bool
	healthy  bool
	usage    Usage
}

func NewEngine(opts Options) *Engine {
	if opts.Store == nil {
		opts.Store = vectorstore.NewMemoryStore()
	}
	if opts.Extractor == nil {
		opts.Extractor = document.NewTextExtractor()
	}
	if opts.Registry == nil {
		opts.Registry = llm.DefaultRegistry()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Engine{
		store:     opts.Store,
		extractor: opts.Extractor,
		registry:  opts.Registry,
		chunker:   chunker.New(chunker.WithOptions(opts.Chunking)),
		embedOpts: opts.Embedding,
		topK:      opts.TopK,
	}
}

// state is a consistent view of the provider fields taken under mu.
type state struct {
	cfg      llm.Config
	provider llm.Provider
	embedder *embedding.Service
	fallback bool
	ready    bool
}

func (e *Engine) state() state {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return state{cfg: e.cfg, provider: e.provider, embedder: e.embedder, fallback: e.fallback, ready: e.ready}
}

// Initialize configures the provider. Calling it again with the same config
// does nothing; a different config replaces the provider and brings stored
// documents in line with it.
func (e *Engine) Initialize(ctx context.Context, cfg llm.Config) error {
	cfg = llm.Normalize(cfg)

	e.initMu.Lock()
	defer e.initMu.Unlock()

	prev := e.state()
	if prev.ready && prev.cfg == cfg {
		slog.Debug("provider configuration unchanged", "provider", cfg.Provider)
		return nil
	}

	p, err := e.registry.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if !p.TestConnection(ctx) {
		closeProvider(p)
		return fmt.Errorf("%w: %s", ErrConnectionFailed, cfg.Provider)
	}

	svc := embedding.NewService(p, e.embedOpts)
	fallback := !svc.CanEmbed()
	if !fallback {
		if _, err := svc.Live(ctx, "test"); err != nil {
			slog.Warn("embedding test failed, using keyword retrieval",
				"provider", cfg.Provider,
				"error", err,
			)
			fallback = true
		}
	}

	next := state{cfg: cfg, provider: p, embedder: svc, fallback: fallback, ready: true}
	updates, err := e.planEmbeddings(ctx, next, prev.ready)
	if err != nil {
		closeProvider(p)
		return fmt.Errorf("re-embed documents: %w", err)
	}

	e.mu.Lock()
	e.cfg = cfg
	e.provider = p
	e.embedder = svc
	e.fallback = fallback
	e.ready = true
	e.healthy = true
	e.applyEmbeddings(updates)
	e.mu.Unlock()

	if prev.provider != nil {
		closeProvider(prev.provider)
	}

	slog.Info("engine initialized",
		"provider", p.Name(),
		"model", p.Model(),
		"supports_embeddings", p.SupportsEmbeddings(),
		"embedding_fallback", fallback,
		"documents_updated", len(updates),
	)
	return nil
}

type embeddingUpdate struct {
	id       string
	vectors  [][]float32
	metadata map[string]any
}

// planEmbeddings computes the vectors stored documents need under st without
// touching the store. With all set every document is covered, otherwise only
// documents without vectors are.
func (e *Engine) planEmbeddings(ctx context.Context, st state, all bool) ([]embeddingUpdate, error) {
	var updates []embeddingUpdate
	for _, doc := range e.store.Snapshot() {
		if !all && (doc.HasEmbeddings() || st.fallback) {
			continue
		}
		if st.fallback {
			updates = append(updates, embeddingUpdate{id: doc.ID, metadata: providerMeta(st, nil, 0)})
			continue
		}
		vectors, meta, err := e.embedChunks(ctx, st, doc.Chunks)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		updates = append(updates, embeddingUpdate{id: doc.ID, vectors: vectors, metadata: meta})
	}
	return updates, nil
}

func (e *Engine) applyEmbeddings(updates []embeddingUpdate) {
	for _, u := range updates {
		err := e.store.SetEmbeddings(u.id, u.vectors, u.metadata)
		if errors.Is(err, vectorstore.ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Error("update document embeddings", "document_id", u.id, "error", err)
			continue
		}
		slog.Info("document embeddings updated", "document_id", u.id, "chunks", len(u.vectors))
	}
}

// ProcessDocument extracts, chunks and embeds an upload. The document is not
// stored.
func (e *Engine) ProcessDocument(ctx context.Context, up Upload) (*models.Document, error) {
	e.initMu.RLock()
	defer e.initMu.RUnlock()
	return e.processDocument(ctx, up)
}

func (e *Engine) processDocument(ctx context.Context, up Upload) (*models.Document, error) {
	st := e.state()
	if !st.ready {
		return nil, ErrNotInitialized
	}

	start := time.Now()
	extracted, err := e.extractor.Extract(ctx, up.Data, up.Size, up.FileType)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", up.Name, err)
	}

	chunks := e.chunker.Chunk(extracted.Content)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("process %s: %w", up.Name, ErrNoChunks)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	doc := &models.Document{
		ID:         uuid.NewString(),
		Name:       up.Name,
		Content:    extracted.Content,
		Chunks:     texts,
		UploadedAt: time.Now().UTC(),
		Metadata: map[string]any{
			models.MetaProcessingMethod: extracted.Method,
			models.MetaConfidence:       extracted.Confidence,
			models.MetaPages:            extracted.Pages,
			models.MetaChunkCount:       len(texts),
		},
	}

	var meta map[string]any
	if st.fallback {
		meta = providerMeta(st, nil, 0)
	} else {
		doc.Embeddings, meta, err = e.embedChunks(ctx, st, texts)
		if err != nil {
			return nil, fmt.Errorf("process %s: %w", up.Name, err)
		}
	}
	for k, v := range meta {
		doc.Metadata[k] = v
	}

	slog.Info("document processed",
		"document_id", doc.ID,
		"name", doc.Name,
		"chunks", len(texts),
		"fallback_mode", st.fallback,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

// AddDocument stores doc, embedding its chunks first when needed. In
// fallback mode any supplied vectors are dropped. Supplied vectors that do
// not line up with the chunks, or that another provider produced, are
// replaced.
func (e *Engine) AddDocument(ctx context.Context, doc *models.Document) error {
	e.initMu.RLock()
	defer e.initMu.RUnlock()
	return e.addDocument(ctx, doc)
}

func (e *Engine) addDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", models.ErrInvalidDocument)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}

	st := e.state()
	if len(doc.Embeddings) > 0 && (!doc.HasEmbeddings() || embeddedElsewhere(st, doc)) {
		slog.Warn("discarding supplied embeddings",
			"document_id", doc.ID,
			"chunks", len(doc.Chunks),
			"embeddings", len(doc.Embeddings),
		)
		doc.Embeddings = nil
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	switch {
	case st.ready && st.fallback:
		doc.Embeddings = nil
		mergeMeta(doc, providerMeta(st, nil, 0))
	case st.ready && !doc.HasEmbeddings():
		vectors, meta, err := e.embedChunks(ctx, st, doc.Chunks)
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
		doc.Embeddings = vectors
		mergeMeta(doc, meta)
	}

	if err := e.store.Add(doc); err != nil {
		return fmt.Errorf("add document %s: %w", doc.ID, err)
	}
	slog.Info("document added", "document_id", doc.ID, "name", doc.Name, "chunks", len(doc.Chunks))
	return nil
}

// Ingest processes and stores an upload.
func (e *Engine) Ingest(ctx context.Context, up Upload) (*models.Document, error) {
	e.initMu.RLock()
	defer e.initMu.RUnlock()

	doc, err := e.processDocument(ctx, up)
	if err != nil {
		return nil, err
	}
	if err := e.addDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (e *Engine) Query(ctx context.Context, question string) (*QueryResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	st := e.state()
	if !st.ready {
		return nil, ErrNotInitialized
	}

	synth := NewSynthesizer(NewRetriever(e.store, st.embedder), NewGenerator(st.provider), e.topK)
	resp, err := synth.Answer(ctx, question, st.fallback)
	if err != nil {
		if ctx.Err() == nil {
			e.setHealthy(st.provider, false)
		}
		return nil, err
	}

	if len(resp.RetrievedChunks) > 0 {
		e.setHealthy(st.provider, true)
		e.mu.Lock()
		e.usage.Requests++
		e.usage.Tokens += resp.Tokens
		e.usage.CostUSD += resp.CostUSD
		e.mu.Unlock()
	}
	return resp, nil
}

// RemoveDocument reports whether a document with id existed.
func (e *Engine) RemoveDocument(id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("%w: missing id", models.ErrInvalidDocument)
	}
	removed := e.store.Remove(id)
	if removed {
		slog.Info("document removed", "document_id", id)
	}
	return removed, nil
}

// setHealthy records the outcome of the last provider call, ignoring calls
// made to a provider that has since been replaced.
func (e *Engine) setHealthy(p llm.Provider, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.provider == p {
		e.healthy = ok
	}
}

func (e *Engine) ClearDocuments() {
	e.store.Clear()
	slog.Info("documents cleared")
}

func (e *Engine) Documents() []models.Document {
	return e.store.List()
}

func (e *Engine) IsEmbeddingFallbackActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready && e.fallback
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	s := Status{
		Initialized:       e.ready,
		Healthy:           e.ready && e.healthy,
		EmbeddingFallback: e.ready && e.fallback,
		Usage:             e.usage,
	}
	if e.provider != nil {
		s.Provider = e.provider.Name()
		s.Model = e.provider.Model()
		s.SupportsEmbeddings = e.provider.SupportsEmbeddings()
	}
	e.mu.RUnlock()

	for _, d := range e.store.Snapshot() {
		s.DocumentCount++
		s.TotalChunks += len(d.Chunks)
	}
	return s
}

// Close releases the active provider.
func (e *Engine) Close() error {
	e.mu.Lock()
	p := e.provider
	e.provider = nil
	e.embedder = nil
	e.ready = false
	e.healthy = false
	e.mu.Unlock()
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// embedChunks embeds texts in order. Chunks whose provider call fails get a
// fallback vector; only cancellation fails the whole batch.
func (e *Engine) embedChunks(ctx context.Context, st state, texts []string) ([][]float32, map[string]any, error) {
	results, err := st.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, err
	}

	vectors := make([][]float32, len(results))
	fallbacks := 0
	for i, r := range results {
		vectors[i] = r.Vector
		if r.IsFallback() {
			fallbacks++
		}
	}
	if fallbacks > 0 {
		slog.Warn("some chunks use fallback embeddings", "chunks", len(texts), "fallback_vectors", fallbacks)
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	meta := providerMeta(st, &dims, fallbacks)
	return vectors, meta, nil
}

func providerMeta(st state, dims *int, fallbacks int) map[string]any {
	meta := map[string]any{
		models.MetaFallbackMode: st.fallback,
	}
	if st.provider != nil {
		meta[models.MetaProvider] = st.provider.Name()
		meta[models.MetaModel] = st.provider.Model()
	}
	if dims != nil {
		meta[models.MetaEmbeddingDimensions] = *dims
		meta[models.MetaFallbackVectors] = fallbacks
	}
	return meta
}

// embeddedElsewhere reports whether doc carries vectors from a provider or
// model other than the active one.
func embeddedElsewhere(st state, doc *models.Document) bool {
	if !st.ready || st.provider == nil || doc.Metadata == nil {
		return false
	}
	name, ok := doc.Metadata[models.MetaProvider].(string)
	if !ok {
		return false
	}
	model, _ := doc.Metadata[models.MetaModel].(string)
	return name != st.provider.Name() || model != st.provider.Model()
}

func mergeMeta(doc *models.Document, meta map[string]any) {
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any, len(meta))
	}
	for k, v := range meta {
		doc.Metadata[k] = v
	}
}

func closeProvider(p llm.Provider) {
	c, ok := p.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("close provider", "provider", p.Name(), "error", err)
	}
}
