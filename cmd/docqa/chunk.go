package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
	"github.com/nikhilbhutani/docqa/pkg/textextract"
)

func newChunkCmd() *cobra.Command {
	opts := chunker.DefaultOptions()
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "chunk FILE",
		Short: "Print the chunks a document would be split into",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			extracted, err := textextract.Extract(bytes.NewReader(data), int64(len(data)), filepath.Ext(path))
			if err != nil {
				return fmt.Errorf("extract %s: %w", path, err)
			}

			chunks := rag.ChunkText(extracted.Content, opts)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(chunks)
			}

			fmt.Fprintf(out, "%s: %d pages, %d chunks, extraction confidence %.0f\n",
				filepath.Base(path), extracted.Pages, len(chunks), extracted.Confidence)
			for _, c := range chunks {
				fmt.Fprintf(out, "\n[%d] %s, %d words, ~%d tokens\n%s\n", c.Index+1, c.Type, c.WordCount, c.TokenCount, c.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.MaxChunkSize, "max", opts.MaxChunkSize, "maximum chunk size in characters")
	cmd.Flags().IntVar(&opts.MinChunkSize, "min", opts.MinChunkSize, "minimum chunk size in characters")
	cmd.Flags().IntVar(&opts.Overlap, "overlap", opts.Overlap, "overlap between chunks in characters")
	cmd.Flags().BoolVar(&opts.PreserveStructure, "structure", opts.PreserveStructure, "split along headings and paragraphs")
	cmd.Flags().BoolVar(&opts.SemanticSplitting, "sentences", opts.SemanticSplitting, "split along sentence boundaries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print chunks as JSON")
	return cmd
}
