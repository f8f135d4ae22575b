package rag

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/pkg/tokenizer"
)

var vocab = []string{"revenue", "growth", "increased", "weather", "rain", "office", "employees"}

// fakeProvider embeds text as word presence over vocab and answers with a
// fixed string.
type fakeProvider struct {
	id          string
	embeddings  bool
	offline     bool
	embedErr    error
	completeErr error
	onEmbed     func()

	probes      atomic.Int32
	embeds      atomic.Int32
	completions atomic.Int32
	closed      atomic.Bool
	lastRequest atomic.Pointer[llm.ChatRequest]
}

func (f *fakeProvider) Name() string             { return f.id }
func (f *fakeProvider) Model() string            { return f.id + "-model" }
func (f *fakeProvider) EmbeddingModel() string   { return f.id + "-embed" }
func (f *fakeProvider) SupportsEmbeddings() bool { return f.embeddings }

func (f *fakeProvider) TestConnection(context.Context) bool {
	f.probes.Add(1)
	return !f.offline
}

func (f *fakeProvider) Complete(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.completions.Add(1)
	f.lastRequest.Store(&req)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &llm.ChatResponse{
		Provider:     f.id,
		Model:        f.Model(),
		Content:      " Revenue grew 15%. ",
		InputTokens:  40,
		OutputTokens: 5,
		TotalTokens:  45,
	}, nil
}

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.embeds.Add(1)
	if f.onEmbed != nil {
		f.onEmbed()
	}
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return bagOfWords(text), nil
}

func (f *fakeProvider) Close() error {
	f.closed.Store(true)
	return nil
}

func bagOfWords(text string) []float32 {
	vec := make([]float32, len(vocab))
	for _, w := range tokenizer.Words(text) {
		for i, v := range vocab {
			if w == v {
				vec[i] = 1
			}
		}
	}
	return vec
}

func registryFor(providers ...*fakeProvider) *llm.Registry {
	r := llm.NewRegistry()
	for _, p := range providers {
		r.Register(p.id, func(llm.Config) (llm.Provider, error) { return p, nil })
	}
	return r
}

var errProviderDown = errors.New("provider down")
