package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/docqa/internal/llm"
)

func newRootCmd(registry *llm.Registry) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about PDF and text documents",
		Long: `docqa ingests documents, splits them into chunks, embeds them with the
configured AI provider and answers questions from the most relevant chunks.
Providers without embedding support fall back to keyword retrieval.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newAskCmd(registry), newChunkCmd(), newProvidersCmd(registry))
	return root
}
