package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/medlot/claimload/internal/exitcode"
)

func main() {
	// .env is optional; flags and real env vars win.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitcode.UsageError)
	}
}
