package main

import (
	"os"

	"github.com/nikhilbhutani/docqa/internal/llm"
)

func main() {
	if err := newRootCmd(llm.DefaultRegistry()).Execute(); err != nil {
		os.Exit(1)
	}
}
