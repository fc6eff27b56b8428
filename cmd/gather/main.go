package main

import (
	"log/slog"
	"os"

	"github.com/mlespinoza1/swarm/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("workflow failed", "err", err)
		os.Exit(1)
	}
}
