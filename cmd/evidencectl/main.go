package main

import (
	"os"

	"github.com/kirillkom/medical-evidence-rag/cmd/evidencectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
