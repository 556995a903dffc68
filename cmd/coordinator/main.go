package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env file is fine; the process environment still applies.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("coordinator failed", "error", err)
		os.Exit(1)
	}
}
