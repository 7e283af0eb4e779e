package main

import (
	"os"

	"github.com/quillform/quillform/cmd/quillform/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
