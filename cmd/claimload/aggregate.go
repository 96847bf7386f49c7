package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medlot/claimload/internal/aggregate"
	"github.com/medlot/claimload/internal/exitcode"
	"github.com/medlot/claimload/internal/logging"
	"github.com/medlot/claimload/internal/rowsource"
)

var aggregateOut string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Group line-item rows into consolidated claim records",
	RunE:  runAggregate,
}

func init() {
	f := aggregateCmd.Flags()
	f.StringVar(&cfg.FilePath, "file", "", "Path to line-item rows (.parquet or .csv, required)")
	f.StringVar(&aggregateOut, "out", "records.json", "Output claim records file")
	f.IntVar(&cfg.FlushThreshold, "flush-threshold", aggregate.DefaultFlushThreshold, "Distinct claims buffered before a flush")
	_ = aggregateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	src, err := rowsource.Open(cfg.FilePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to open row file")
		os.Exit(exitcode.ValidationError)
	}
	defer src.Close()

	sink, err := aggregate.NewJSONSink(aggregateOut)
	if err != nil {
		log.Error().Err(err).Msg("failed to create output file")
		os.Exit(exitcode.ValidationError)
	}

	res, err := aggregate.New(log, cfg.FlushThreshold).Run(src, sink)
	if err != nil {
		log.Error().Err(err).Msg("aggregation failed")
		os.Exit(exitcode.ValidationError)
	}
	if err := sink.Close(); err != nil {
		log.Error().Err(err).Msg("failed to finalize output file")
		os.Exit(exitcode.ValidationError)
	}

	fmt.Printf("Aggregated %d rows into %d claims (%d rows skipped) → %s\n",
		res.RowsRead, res.Claims, res.RowsSkipped, aggregateOut)
	return nil
}
