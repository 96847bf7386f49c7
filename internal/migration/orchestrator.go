package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/normalize"
	"github.com/medlot/claimload/internal/runlog"
)

// DefaultBatchSize is the number of claims per batch when BATCH_SIZE is not
// set.
const DefaultBatchSize = 20

// Logs groups the durable run outputs the orchestrator appends to.
type Logs struct {
	Success  *runlog.JSONLog[model.SuccessRecord]
	Failed   *runlog.JSONLog[model.FailedRecord]
	NotFound *runlog.JSONLog[model.NotFoundEntry]
	Inputs   *runlog.InputLedger
}

// Orchestrator drives a full migration run: batching, strictly sequential
// claim processing, failure isolation, lot reconciliation, and the
// segregation pass over the failure log. All run-scoped state (lot cache,
// touched lots) lives on the instance; one Orchestrator serves one run.
type Orchestrator struct {
	pool      *pgxpool.Pool
	writer    *Writer
	lots      *LotManager
	logs      Logs
	batchSize int
	log       zerolog.Logger
}

// NewOrchestrator builds the per-run pipeline. batchSize <= 0 selects the
// default.
func NewOrchestrator(pool *pgxpool.Pool, logs Logs, batchSize int, log zerolog.Logger) *Orchestrator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	lots := NewLotManager(log)
	return &Orchestrator{
		pool:      pool,
		writer:    NewWriter(lots, log),
		lots:      lots,
		logs:      logs,
		batchSize: batchSize,
		log:       log,
	}
}

// Run migrates every claim in the records file. Per-claim failures are
// logged and never abort the run; only phase-level failures (unreadable
// input, broken logs, reconciliation) return an error.
func (o *Orchestrator) Run(ctx context.Context, recordsPath string) (*model.RunSummary, error) {
	start := time.Now()
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		InputPath: recordsPath,
	}
	log := o.log.With().Str("run_id", summary.RunID).Logger()

	hash, err := normalize.FileHash(recordsPath)
	if err != nil {
		return nil, &PhaseError{Phase: "load", Err: err}
	}
	summary.InputSHA256 = hash

	// The same sheet must not be migrated twice, even under a new name.
	if prev, seen, err := o.logs.Inputs.Seen(hash); err != nil {
		return nil, &PhaseError{Phase: "load", Err: err}
	} else if seen {
		log.Warn().Str("path", recordsPath).Str("first_processed", prev.Path).
			Time("processed_at", prev.ProcessedAt).Msg("input already migrated, skipping")
		summary.SkippedInput = true
		return summary, nil
	}

	records, err := loadRecords(recordsPath)
	if err != nil {
		return nil, &PhaseError{Phase: "load", Err: err}
	}
	summary.TotalRecords = len(records)
	log.Info().Int("records", len(records)).Int("batch_size", o.batchSize).Msg("migration starting")

	migrateStart := time.Now()
	for batchStart := 0; batchStart < len(records); batchStart += o.batchSize {
		batchEnd := batchStart + o.batchSize
		if batchEnd > len(records) {
			batchEnd = len(records)
		}
		if err := o.runBatch(ctx, records[batchStart:batchEnd], summary, log); err != nil {
			return summary, err
		}
		log.Info().Int("from", batchStart).Int("to", batchEnd).
			Int("processed", summary.ProcessedRecords).Int("failed", summary.FailedRecords).
			Msg("batch complete")
	}
	summary.DurationMigrate = time.Since(migrateStart)

	lotStart := time.Now()
	touched := o.lots.Touched()
	summary.LotsTouched = len(touched)
	if err := ReconcileLots(ctx, o.pool, touched, log); err != nil {
		return summary, &PhaseError{Phase: "reconcile", Err: err}
	}
	summary.DurationLots = time.Since(lotStart)

	if err := o.logs.Inputs.Record(recordsPath, hash); err != nil {
		return summary, &PhaseError{Phase: "finalize", Err: err}
	}

	summary.DurationTotal = time.Since(start)
	log.Info().
		Int("total", summary.TotalRecords).
		Int("processed", summary.ProcessedRecords).
		Int("failed", summary.FailedRecords).
		Int("lots", summary.LotsTouched).
		Str("duration", formatDuration(summary.DurationTotal)).
		Msg("migration complete")

	return summary, nil
}

// runBatch processes one batch strictly sequentially and appends the
// batch's outcomes to the durable logs in one write each.
func (o *Orchestrator) runBatch(ctx context.Context, batch []model.ClaimRecord, summary *model.RunSummary, log zerolog.Logger) error {
	var successes []model.SuccessRecord
	var failures []model.FailedRecord
	var notFound []model.NotFoundEntry

	for i := range batch {
		rec := &batch[i]
		res, err := o.writer.WriteClaim(ctx, o.pool, rec)
		if err != nil {
			summary.FailedRecords++
			log.Error().Err(err).Str("source_claim", rec.ClaimNumber).Msg("claim failed")
			failures = append(failures, model.FailedRecord{
				Record:     *rec,
				Error:      err.Error(),
				StackTrace: string(debug.Stack()),
			})
			continue
		}
		summary.ProcessedRecords++
		successes = append(successes, model.SuccessRecord{
			ClaimRecord:         *rec,
			AssignedClaimNumber: res.ClaimNumber,
		})
		notFound = append(notFound, res.NotFound...)
	}

	if err := o.logs.Success.Append(successes...); err != nil {
		return &PhaseError{Phase: "log", Err: err}
	}
	if err := o.logs.Failed.Append(failures...); err != nil {
		return &PhaseError{Phase: "log", Err: err}
	}
	if err := o.logs.NotFound.Append(notFound...); err != nil {
		return &PhaseError{Phase: "log", Err: err}
	}
	return nil
}

// Segregate splits the failure log into per-class files when it is
// non-empty. Run after a migration so each failure class can be fixed and
// re-driven on its own.
func (o *Orchestrator) Segregate(outDir string) (map[string]int, error) {
	failed, err := o.logs.Failed.Read()
	if err != nil {
		return nil, &PhaseError{Phase: "segregate", Err: err}
	}
	if len(failed) == 0 {
		o.log.Info().Msg("no failed records to segregate")
		return nil, nil
	}
	counts, err := runlog.Segregate(o.logs.Failed.Path(), outDir)
	if err != nil {
		return nil, &PhaseError{Phase: "segregate", Err: err}
	}
	for class, n := range counts {
		o.log.Info().Str("class", class).Int("records", n).Msg("failure bucket written")
	}
	return counts, nil
}

// loadRecords reads a pre-aggregated claims file: one JSON array of claim
// records.
func loadRecords(path string) ([]model.ClaimRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}
	var records []model.ClaimRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse records file %s: %w", path, err)
	}
	return records, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%dh %dm %ds %dms", h, m, s, d/time.Millisecond)
}
