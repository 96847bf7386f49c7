package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/medlot/claimload/internal/db"
	"github.com/medlot/claimload/internal/exitcode"
	"github.com/medlot/claimload/internal/logging"
	"github.com/medlot/claimload/internal/migration"
	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/runlog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Migrate a matched claims file into the database",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&cfg.FilePath, "file", "", "Path to matched claim records (required)")
	f.IntVar(&cfg.BatchSize, "batch-size", 0, "Claims per batch (default BATCH_SIZE env or 20)")
	_ = runCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)
	ctx := context.Background()

	if err := cfg.LoadEnv(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	logs := migration.Logs{
		Success:  runlog.NewJSONLog[model.SuccessRecord](filepath.Join(cfg.OutDir, "success.json")),
		Failed:   runlog.NewJSONLog[model.FailedRecord](filepath.Join(cfg.OutDir, "failed.json")),
		NotFound: runlog.NewJSONLog[model.NotFoundEntry](filepath.Join(cfg.OutDir, "not_found.json")),
		Inputs:   runlog.NewInputLedger(filepath.Join(cfg.OutDir, "inputs.json")),
	}

	orch := migration.NewOrchestrator(pool, logs, cfg.BatchSize, log)
	summary, err := orch.Run(ctx, cfg.FilePath)
	if err != nil {
		var pe *migration.PhaseError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("migration run failed")
			if pe.Phase == "load" {
				os.Exit(exitcode.ValidationError)
			}
			os.Exit(exitcode.MigrationError)
		}
		log.Error().Err(err).Msg("migration run failed")
		os.Exit(exitcode.MigrationError)
	}

	if summary.SkippedInput {
		fmt.Printf("Input already migrated (sha256 %s), nothing to do\n", summary.InputSHA256)
		return nil
	}

	if _, err := orch.Segregate(filepath.Join(cfg.OutDir, "segregated")); err != nil {
		log.Error().Err(err).Msg("failure segregation failed")
		os.Exit(exitcode.MigrationError)
	}

	fmt.Printf("Migration complete: %d/%d claims migrated, %d failed, %d lots touched\n",
		summary.ProcessedRecords, summary.TotalRecords, summary.FailedRecords, summary.LotsTouched)
	if summary.FailedRecords > 0 {
		fmt.Printf("Failed records: %s (segregated under %s)\n",
			logs.Failed.Path(), filepath.Join(cfg.OutDir, "segregated"))
		os.Exit(exitcode.PartialSuccess)
	}
	return nil
}
