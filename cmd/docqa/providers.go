package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/docqa/internal/llm"
)

func newProvidersCmd(registry *llm.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported AI provider ids",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, id := range registry.IDs() {
				fmt.Fprintln(out, id)
			}
		},
	}
}
