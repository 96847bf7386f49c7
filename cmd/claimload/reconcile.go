package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medlot/claimload/internal/db"
	"github.com/medlot/claimload/internal/exitcode"
	"github.com/medlot/claimload/internal/logging"
	"github.com/medlot/claimload/internal/migration"
	"github.com/medlot/claimload/internal/model"
	embedsql "github.com/medlot/claimload/internal/sql"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-run lot type and amount reconciliation over all migrated lots",
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)
	ctx := context.Background()

	if err := cfg.LoadEnv(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if cfg.DSN == "" {
		log.Error().Msg("--dsn or DATABASE_URL is required")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, embedsql.MigratedLotNumbers, model.LotRemarkMigrated)
	if err != nil {
		log.Error().Err(err).Msg("failed to list migrated lots")
		os.Exit(exitcode.MigrationError)
	}
	var lotNos []int64
	for rows.Next() {
		var lotNo int64
		if err := rows.Scan(&lotNo); err != nil {
			rows.Close()
			log.Error().Err(err).Msg("failed to scan lot number")
			os.Exit(exitcode.MigrationError)
		}
		lotNos = append(lotNos, lotNo)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("failed to list migrated lots")
		os.Exit(exitcode.MigrationError)
	}

	if len(lotNos) == 0 {
		fmt.Println("No migrated lots found, nothing to reconcile")
		return nil
	}

	if err := migration.ReconcileLots(ctx, pool, lotNos, log); err != nil {
		log.Error().Err(err).Msg("lot reconciliation failed")
		os.Exit(exitcode.MigrationError)
	}

	fmt.Printf("Reconciled %d lots\n", len(lotNos))
	return nil
}
