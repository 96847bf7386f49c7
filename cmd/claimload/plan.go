package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medlot/claimload/internal/exitcode"
	"github.com/medlot/claimload/internal/logging"
	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/normalize"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run validation and stats (no writes)",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&cfg.FilePath, "file", "", "Path to aggregated claim records (required)")
	_ = planCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	sha, err := normalize.FileHash(cfg.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash file")
		os.Exit(exitcode.ValidationError)
	}
	stat, err := os.Stat(cfg.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to stat file")
		os.Exit(exitcode.ValidationError)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to read records file")
		os.Exit(exitcode.ValidationError)
	}
	var records []model.ClaimRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Error().Err(err).Msg("failed to parse records file")
		os.Exit(exitcode.ValidationError)
	}

	var items, shapeErrors, unmatched, unmapped int
	providers := make(map[string]bool)
	lotKeys := make(map[string]bool)
	for i := range records {
		rec := &records[i]
		items += len(rec.Item)
		if err := rec.Validate(); err != nil {
			shapeErrors++
			log.Warn().Err(err).Str("claim", rec.ClaimNumber).Msg("shape error")
		}
		if rec.ServiceProvider != "" {
			providers[normalize.Key(rec.ServiceProvider)] = true
			if visit := normalize.ParseDate(rec.DateOfConsultation); visit != nil {
				lotKeys[normalize.Key(rec.ServiceProvider)+"|"+normalize.MonthKey(*visit)] = true
			}
		}
		if rec.Mapped == nil {
			unmapped++
			continue
		}
		for _, m := range rec.Mapped.Drugs {
			if m.Unmatched() {
				unmatched++
			}
		}
		for _, m := range rec.Mapped.Services {
			if m.Unmatched() {
				unmatched++
			}
		}
	}

	fmt.Println("=== claimload plan ===")
	fmt.Printf("File:         %s\n", cfg.FilePath)
	fmt.Printf("SHA-256:      %s\n", sha)
	fmt.Printf("Size:         %d bytes\n", stat.Size())
	fmt.Printf("Claims:       %d\n", len(records))
	fmt.Printf("Line items:   %d\n", items)
	fmt.Printf("Providers:    %d distinct\n", len(providers))
	fmt.Printf("Lots:         ~%d projected (provider x month)\n", len(lotKeys))
	fmt.Println()
	if unmapped == len(records) {
		fmt.Println("Catalog codes: not yet matched (run `claimload match` first)")
	} else {
		fmt.Printf("Unmatched items: %d (will be skipped and reported)\n", unmatched)
		if unmapped > 0 {
			fmt.Printf("Claims without catalog annotation: %d\n", unmapped)
		}
	}
	if shapeErrors > 0 {
		fmt.Printf("Shape errors: %d claims will fail validation\n", shapeErrors)
		os.Exit(exitcode.ValidationError)
	}
	fmt.Println("Shape validation: OK")
	return nil
}
