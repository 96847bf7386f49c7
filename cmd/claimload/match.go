package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/medlot/claimload/internal/aggregate"
	"github.com/medlot/claimload/internal/exitcode"
	"github.com/medlot/claimload/internal/logging"
	"github.com/medlot/claimload/internal/match"
	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/runlog"
)

var (
	matchConfigPath string
	matchOut        string
	matchNotFound   string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve claim line items against the tariff catalogs",
	RunE:  runMatch,
}

func init() {
	f := matchCmd.Flags()
	f.StringVar(&cfg.FilePath, "file", "", "Path to aggregated claim records (required)")
	f.StringVar(&matchConfigPath, "config", "", "YAML config with catalog paths (required)")
	f.StringVar(&matchOut, "out", "records_matched.json", "Output file for annotated claims")
	f.StringVar(&matchNotFound, "not-found", "match_not_found.json", "Output file for unmatched entries")
	_ = matchCmd.MarkFlagRequired("file")
	_ = matchCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.LoadFromFile(matchConfigPath); err != nil {
		log.Error().Err(err).Msg("failed to load config file")
		os.Exit(exitcode.UsageError)
	}
	if err := cfg.ValidateCatalogs(); err != nil {
		log.Error().Err(err).Msg("catalog validation failed")
		os.Exit(exitcode.UsageError)
	}

	cat, err := match.LoadCatalog(cfg.Catalogs.Drugs, cfg.Catalogs.Services, cfg.Catalogs.Providers)
	if err != nil {
		log.Error().Err(err).Msg("failed to load catalogs")
		os.Exit(exitcode.CatalogError)
	}
	drugs, services, providers := cat.Sizes()
	log.Info().Int("drugs", drugs).Int("services", services).Int("providers", providers).
		Msg("catalogs loaded")

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

	sink, err := aggregate.NewJSONSink(matchOut)
	if err != nil {
		log.Error().Err(err).Msg("failed to create output file")
		os.Exit(exitcode.ValidationError)
	}
	notFoundLog := runlog.NewJSONLog[model.NotFoundEntry](matchNotFound)

	matcher := match.NewMatcher(cat, log)
	var allNotFound []model.NotFoundEntry
	for i := range records {
		allNotFound = append(allNotFound, matcher.MatchClaim(&records[i])...)
		if err := sink.WriteClaim(records[i]); err != nil {
			log.Error().Err(err).Msg("failed to write annotated claim")
			os.Exit(exitcode.ValidationError)
		}
	}
	if err := sink.Close(); err != nil {
		log.Error().Err(err).Msg("failed to finalize output file")
		os.Exit(exitcode.ValidationError)
	}
	if err := notFoundLog.Append(allNotFound...); err != nil {
		log.Error().Err(err).Msg("failed to write not-found report")
		os.Exit(exitcode.ValidationError)
	}

	sum := matcher.Summary()
	summaryPath := filepath.Join(filepath.Dir(matchNotFound), "match_summary.json")
	if data, err := json.MarshalIndent(sum, "", "  "); err == nil {
		if err := os.WriteFile(summaryPath, data, 0o644); err != nil {
			log.Error().Err(err).Msg("failed to write match summary")
			os.Exit(exitcode.ValidationError)
		}
	}
	log.Info().
		Int("drugs_total", sum.TotalDrugs).Int("drugs_not_found", sum.NotFoundDrugs).
		Int("services_total", sum.TotalServices).Int("services_not_found", sum.NotFoundServices).
		Int("providers_total", sum.TotalProviders).Int("providers_not_found", sum.NotFoundProviders).
		Msg("matching complete")

	fmt.Printf("Matched %d claims → %s\n", len(records), matchOut)
	fmt.Printf("  drugs:    %d items, %d unmatched (%d distinct)\n",
		sum.TotalDrugs, sum.NotFoundDrugs, len(sum.UnmatchedDrugs))
	fmt.Printf("  services: %d items, %d unmatched (%d distinct)\n",
		sum.TotalServices, sum.NotFoundServices, len(sum.UnmatchedServices))
	if sum.TotalProviders > 0 {
		fmt.Printf("  providers: %d checked, %d unmatched\n", sum.TotalProviders, sum.NotFoundProviders)
	}
	if len(allNotFound) > 0 {
		fmt.Printf("Not-found report: %s\n", matchNotFound)
	}
	return nil
}
