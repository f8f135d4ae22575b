package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/rag"
)

type askOptions struct {
	files    []string
	provider string
	model    string
	apiKey   string
	baseURL  string
	json     bool
	registry *llm.Registry
}

func newAskCmd(registry *llm.Registry) *cobra.Command {
	opts := &askOptions{registry: registry}
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ingest files and answer one or more questions",
		Example: `  AI_PROVIDER=openai AI_API_KEY=sk-... docqa ask -f report.pdf "What was the revenue growth?"
  docqa ask -f notes.txt --provider ollama --model llama3 "Who attended?" "What was decided?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAsk(ctx, cmd, opts, args)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.files, "file", "f", nil, "document to ingest (repeatable)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "AI provider id (overrides AI_PROVIDER)")
	cmd.Flags().StringVar(&opts.model, "model", "", "model name (overrides AI_MODEL)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key (overrides AI_API_KEY)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "provider base URL (overrides AI_BASE_URL)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print answers as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, opts *askOptions, questions []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	aiCfg := cfg.AI.LLMConfig()
	override(&aiCfg.Provider, opts.provider)
	override(&aiCfg.Model, opts.model)
	override(&aiCfg.APIKey, opts.apiKey)
	override(&aiCfg.BaseURL, opts.baseURL)
	if aiCfg.Provider == "" {
		return errors.New("no provider configured: set AI_PROVIDER or pass --provider")
	}

	engine := rag.NewEngine(rag.Options{
		Registry:  opts.registry,
		Chunking:  cfg.Chunking.Options(),
		Embedding: cfg.Embedding.Options(nil),
		TopK:      cfg.RAG.TopK,
	})
	defer engine.Close()

	if err := engine.Initialize(ctx, aiCfg); err != nil {
		return fmt.Errorf("initialize provider: %w", err)
	}
	if engine.IsEmbeddingFallbackActive() {
		cmd.PrintErrln("note: embeddings unavailable, using keyword retrieval")
	}

	for _, path := range opts.files {
		if err := ingestFile(ctx, engine, path); err != nil {
			return err
		}
	}

	var answers []*rag.QueryResponse
	for _, q := range questions {
		resp, err := engine.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("answer %q: %w", q, err)
		}
		answers = append(answers, resp)
	}

	out := cmd.OutOrStdout()
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answers)
	}
	for i, resp := range answers {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "Q: %s\n", questions[i])
		fmt.Fprintf(out, "A: %s\n", resp.Answer)
		if len(resp.Sources) > 0 {
			fmt.Fprintln(out, "Sources:")
			for _, s := range resp.Sources {
				fmt.Fprintf(out, "  - %s\n", s)
			}
			fmt.Fprintf(out, "Relevance: %.2f\n", resp.RelevanceScore)
		}
	}
	return nil
}

func ingestFile(ctx context.Context, engine *rag.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	_, err = engine.Ingest(ctx, rag.Upload{
		Name:     filepath.Base(path),
		FileType: filepath.Ext(path),
		Data:     f,
		Size:     info.Size(),
	})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
