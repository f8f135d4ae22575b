package llm

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

// Constructor builds a provider from a normalized config.
type Constructor func(cfg Config) (Provider, error)

// Registry maps provider ids to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry knows every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for id := range openAICompatible {
		r.Register(id, func(cfg Config) (Provider, error) { return NewOpenAIProvider(cfg) })
	}
	r.Register("anthropic", func(cfg Config) (Provider, error) { return NewAnthropicProvider(cfg) })
	r.Register("googleai", func(cfg Config) (Provider, error) { return NewGeminiProvider(cfg) })
	r.Register("ollama", func(cfg Config) (Provider, error) { return NewOllamaProvider(cfg) })
	r.Register("huggingface", func(cfg Config) (Provider, error) { return NewHuggingFaceProvider(cfg) })
	return r
}

func (r *Registry) Register(id string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[strings.ToLower(id)] = ctor
}

// New builds the provider named by cfg.Provider.
func (r *Registry) New(cfg Config) (Provider, error) {
	cfg = Normalize(cfg)

	r.mu.RLock()
	ctor, ok := r.ctors[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}

	p, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}
	return p, nil
}

// IDs returns the registered provider ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.ctors))
	for id := range r.ctors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Normalize lowercases the provider id and fills in request defaults.
func Normalize(cfg Config) Config {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	return cfg
}
