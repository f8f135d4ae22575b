package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nikhilbhutani/docqa/internal/llm"
)

var ErrEmptyInput = errors.New("embedding input is empty")

// Cache stores provider vectors between runs.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

type Options struct {
	RequestsPerSecond float64 // <= 0 disables throttling
	Burst             int
	Concurrency       int // parallel requests in EmbedBatch
	Cache             Cache
}

func DefaultOptions() Options {
	return Options{
		RequestsPerSecond: 10,
		Burst:             1,
		Concurrency:       1,
	}
}

type Service struct {
	provider    llm.Provider
	embedder    llm.EmbeddingProvider
	limiter     *rate.Limiter
	concurrency int
	cache       Cache
}

func NewService(p llm.Provider, opts Options) *Service {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := max(opts.Burst, 1)
	embedder, _ := llm.AsEmbedder(p)

	return &Service{
		provider:    p,
		embedder:    embedder,
		limiter:     rate.NewLimiter(limit, burst),
		concurrency: max(opts.Concurrency, 1),
		cache:       opts.Cache,
	}
}

// Live asks the provider for an embedding with no fallback.
func (s *Service) Live(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, llm.ErrEmbeddingsUnsupported
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}
	return s.embedder.Embed(ctx, text)
}

// Embed returns a provider, cached or fallback vector for text. Only empty
// input and context cancellation are reported as errors.
func (s *Service) Embed(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	key := s.cacheKey(text)
	if s.cache != nil && key != "" {
		if vec, ok := s.cache.Get(ctx, key); ok && len(vec) > 0 {
			return Result{Vector: vec, Source: SourceCache}, nil
		}
	}

	vec, err := s.Live(ctx, text)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}

	res := WithFallback(text, vec, err)
	if res.IsFallback() {
		slog.Warn("embedding failed, using hash fallback",
			"provider", s.providerName(),
			"error", res.Err,
		)
		return res, nil
	}
	if s.cache != nil && key != "" {
		s.cache.Set(ctx, key, res.Vector)
	}
	return res, nil
}

// EmbedBatch embeds texts in order. One text failing, blank text included,
// yields a fallback for that text only; cancellation stops the remaining
// work and returns the context error.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	results := make([]Result, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			res, err := s.Embed(gctx, text)
			if errors.Is(err, ErrEmptyInput) {
				res, err = WithFallback(text, nil, err), nil
			}
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CanEmbed reports whether the provider declares the embedding capability.
func (s *Service) CanEmbed() bool { return s.embedder != nil }

func (s *Service) cacheKey(text string) string {
	if s.embedder == nil {
		return ""
	}
	return CacheKey(s.embedder.Name(), s.embedder.EmbeddingModel(), text)
}

func (s *Service) providerName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// CacheKey identifies a provider vector for text.
func CacheKey(provider, model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + provider + ":" + model + ":" + hex.EncodeToString(sum[:])
}
