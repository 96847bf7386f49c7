package migration

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	embedsql "github.com/medlot/claimload/internal/sql"
)

// ReconcileLots runs the post-run lot bookkeeping pass over the given lots:
// a lot whose member claims span more than one distinct claim_type is forced
// to type 0 (mixed), and every lot's amount is recomputed as the sum of its
// member claims' totals. Both updates are idempotent aggregates keyed by
// lot_no, safe to re-run at any time.
//
// A lot's type can only be marked mixed, never split: claims are appended
// incrementally and the true mixture is knowable only after the fact.
func ReconcileLots(ctx context.Context, q Querier, lotNos []int64, log zerolog.Logger) error {
	var mixed int
	for _, lotNo := range lotNos {
		tag, err := q.Exec(ctx, embedsql.ReconcileLotType, lotNo)
		if err != nil {
			return fmt.Errorf("reconcile lot %d type: %w", lotNo, err)
		}
		if tag.RowsAffected() > 0 {
			mixed++
			log.Info().Int64("lot_no", lotNo).Msg("lot marked mixed")
		}
		if _, err := q.Exec(ctx, embedsql.ReconcileLotAmount, lotNo); err != nil {
			return fmt.Errorf("reconcile lot %d amount: %w", lotNo, err)
		}
	}
	log.Info().Int("lots", len(lotNos)).Int("mixed", mixed).Msg("lot reconciliation complete")
	return nil
}
