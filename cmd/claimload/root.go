package main

import (
	"github.com/spf13/cobra"

	"github.com/medlot/claimload/internal/config"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "claimload",
	Short: "Medical claim batch migration pipeline",
	Long:  "Aggregates spreadsheet claim exports, matches line items against tariff catalogs, and migrates the records into the claims schema in lot batches.",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", "", "Postgres connection string (or set DATABASE_URL)")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&cfg.OutDir, "out-dir", "logs", "Directory for run logs and failure buckets")
}
