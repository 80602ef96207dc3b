package main

import (
	"os"

	"github.com/wonny/krxscan/cmd/krxscan/commands"
)

// main is the entry point for the krxscan CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/krxscan [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
