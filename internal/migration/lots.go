package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/normalize"
	embedsql "github.com/medlot/claimload/internal/sql"
)

// lotAuditUserID stamps the assign_lots audit rows written for new lots.
const lotAuditUserID = 1

// LotManager assigns claims to lots keyed by provider and service month.
// The cache lives for one run; on a cache miss, durable storage is probed
// before a new lot is allocated so a cold-started run rediscovers existing
// migrated lots instead of duplicating them.
//
// A lot created inside a claim's transaction is staged, not cached: its row
// only exists if that transaction commits, so the Writer publishes it with
// Confirm after the commit and drops it with Discard after a rollback.
// Without this, a failed claim would leave the cache pointing at a lot row
// that was rolled back, and every later claim in the same provider-month
// would commit a dangling lot reference.
//
// Correctness of the cache and the max+1 allocation relies on claims being
// processed strictly sequentially; see Orchestrator.
type LotManager struct {
	log     zerolog.Logger
	cache   map[model.LotKey]int64
	touched map[int64]bool
	pending *pendingLot
}

// pendingLot is a lot created in a still-open claim transaction.
type pendingLot struct {
	key   model.LotKey
	lotNo int64
}

// NewLotManager returns a LotManager scoped to one run.
func NewLotManager(log zerolog.Logger) *LotManager {
	return &LotManager{
		log:     log,
		cache:   make(map[model.LotKey]int64),
		touched: make(map[int64]bool),
	}
}

// GetOrCreate returns the lot number for a claim, creating the lot on first
// sight of its provider+month key. amount seeds a new lot's running amount;
// reused lots get their claim counter incremented here and their amount
// corrected by the reconciliation pass.
func (m *LotManager) GetOrCreate(ctx context.Context, q Querier, providerID int64, visitDate time.Time, visitType int, policyID int64, amount float64) (int64, error) {
	m.pending = nil
	key := model.LotKey{ProviderID: providerID, Month: normalize.MonthKey(visitDate)}

	if lotNo, ok := m.cache[key]; ok {
		if _, err := q.Exec(ctx, embedsql.IncrementLotClaims, lotNo); err != nil {
			return 0, fmt.Errorf("increment lot %d claims: %w", lotNo, err)
		}
		m.touched[lotNo] = true
		return lotNo, nil
	}

	// Cold cache: an earlier run may already hold this key.
	var lotNo int64
	var lotType, totalClaims int
	err := q.QueryRow(ctx, embedsql.FindMigratedLot, providerID, key.Month, model.LotRemarkMigrated).
		Scan(&lotNo, &lotType, &totalClaims)
	switch {
	case err == nil:
		if _, err := q.Exec(ctx, embedsql.IncrementLotClaims, lotNo); err != nil {
			return 0, fmt.Errorf("increment lot %d claims: %w", lotNo, err)
		}
		m.cache[key] = lotNo
		m.touched[lotNo] = true
		m.log.Debug().Int64("lot_no", lotNo).Str("month", key.Month).Msg("reusing migrated lot")
		return lotNo, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("find lot for provider %d month %s: %w", providerID, key.Month, err)
	}

	lotNo, err = m.allocate(ctx, q)
	if err != nil {
		return 0, err
	}

	if _, err := q.Exec(ctx, embedsql.InsertLot,
		lotNo, visitDate, visitType, amount, providerID, policyID, model.LotRemarkMigrated,
	); err != nil {
		return 0, fmt.Errorf("insert lot %d: %w", lotNo, err)
	}

	// Data-entry and audit permissions for the new lot.
	for _, action := range []string{"D", "A"} {
		if _, err := q.Exec(ctx, embedsql.InsertAssignLot, lotNo, lotAuditUserID, action); err != nil {
			return 0, fmt.Errorf("assign lot %d action %s: %w", lotNo, action, err)
		}
	}

	// The lot row lives inside the claim's transaction; publish on Confirm.
	m.pending = &pendingLot{key: key, lotNo: lotNo}
	m.log.Info().Int64("lot_no", lotNo).Int64("provider_id", providerID).
		Str("month", key.Month).Msg("created lot")
	return lotNo, nil
}

// Confirm publishes a staged lot after its claim's transaction commits.
// No-op when the claim reused an already-durable lot.
func (m *LotManager) Confirm() {
	if m.pending == nil {
		return
	}
	m.cache[m.pending.key] = m.pending.lotNo
	m.touched[m.pending.lotNo] = true
	m.pending = nil
}

// Discard drops a staged lot after its claim's transaction rolls back. The
// next claim for the key re-probes durable storage and reallocates.
func (m *LotManager) Discard() {
	m.pending = nil
}

// allocate returns the next lot number: durable max+1, floored at the
// numbering base when the table is empty.
func (m *LotManager) allocate(ctx context.Context, q Querier) (int64, error) {
	var max int64
	if err := q.QueryRow(ctx, embedsql.MaxLotNumber).Scan(&max); err != nil {
		return 0, fmt.Errorf("max lot number: %w", err)
	}
	next := max + 1
	if next < model.LotNumberFloor {
		next = model.LotNumberFloor
	}
	return next, nil
}

// Touched returns the lot numbers assigned to during this run, sorted.
func (m *LotManager) Touched() []int64 {
	lots := make([]int64, 0, len(m.touched))
	for lotNo := range m.touched {
		lots = append(lots, lotNo)
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i] < lots[j] })
	return lots
}
