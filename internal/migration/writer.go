package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medlot/claimload/internal/match"
	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/normalize"
	embedsql "github.com/medlot/claimload/internal/sql"
)

// Writer performs the ordered multi-table write of one claim. All six steps
// run inside a single transaction: a failure at any step rolls back every
// row written for the claim.
type Writer struct {
	lots *LotManager
	log  zerolog.Logger
}

// NewWriter returns a Writer sharing the run's lot manager.
func NewWriter(lots *LotManager, log zerolog.Logger) *Writer {
	return &Writer{lots: lots, log: log}
}

// WriteResult reports what one successful claim write produced.
type WriteResult struct {
	ClaimID     int64
	ClaimNumber int64
	LotNo       int64
	NotFound    []model.NotFoundEntry
}

// claimDates holds the claim's parsed, offset-corrected dates. Source
// timestamps carry a known one-day offset; every date is shifted forward a
// day before writing.
type claimDates struct {
	consultation *time.Time
	admission    *time.Time
	discharge    *time.Time
	added        *time.Time
	audited      *time.Time
}

func parseClaimDates(rec *model.ClaimRecord) claimDates {
	return claimDates{
		consultation: normalize.ShiftDay(normalize.ParseDate(rec.DateOfConsultation), 1),
		admission:    normalize.ShiftDay(normalize.ParseDate(rec.DateOfAdmission), 1),
		discharge:    normalize.ShiftDay(normalize.ParseDate(rec.DateOfDischarge), 1),
		added:        normalize.ShiftDay(normalize.ParseDate(rec.DateAdded), 1),
		audited:      normalize.ParseDate(rec.AuditedBy),
	}
}

// WriteClaim migrates one claim record. On error, nothing for this claim
// persists; the error classifies the failure for the segregation pass.
func (w *Writer) WriteClaim(ctx context.Context, pool *pgxpool.Pool, rec *model.ClaimRecord) (*WriteResult, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	dates := parseClaimDates(rec)
	if dates.consultation == nil {
		return nil, fmt.Errorf("claim %s: no usable consultation date", rec.ClaimNumber)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim %s: %w", rec.ClaimNumber, err)
	}
	defer tx.Rollback(ctx)

	res, err := w.writeClaimTx(ctx, tx, rec, dates)
	if err != nil {
		w.lots.Discard()
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		w.lots.Discard()
		return nil, fmt.Errorf("commit claim %s: %w", rec.ClaimNumber, err)
	}
	w.lots.Confirm()
	return res, nil
}

func (w *Writer) writeClaimTx(ctx context.Context, tx pgx.Tx, rec *model.ClaimRecord, dates claimDates) (*WriteResult, error) {
	member, err := ResolveMember(ctx, tx, rec.MemberNumber)
	if err != nil {
		return nil, err
	}
	provider, err := ResolveProvider(ctx, tx, rec.ServiceProvider)
	if err != nil {
		return nil, err
	}
	network, err := ResolveNetwork(ctx, tx, provider.ProviderID, member.PlanNetwork)
	if err != nil {
		return nil, err
	}

	claimType := normalize.ClaimType(rec.TypeOfVisit)

	// Step 6's lot number is needed by the header insert, so lot assignment
	// runs first; its reconciliation still happens after the full batch.
	lotNo, err := w.lots.GetOrCreate(ctx, tx, provider.ProviderID, *dates.consultation, claimType, member.PolicyID, rec.Claimed)
	if err != nil {
		return nil, err
	}

	// Step 1: claim header.
	claimID, claimNumber, err := w.insertHeader(ctx, tx, rec, dates, member, provider, claimType, lotNo)
	if err != nil {
		return nil, err
	}

	notFound := newNotFoundSet()

	// Steps 2 and 3: line items by bucket, in source order.
	if err := w.insertItems(ctx, tx, rec, claimID, member, provider, network, claimType, notFound); err != nil {
		return nil, err
	}

	// Step 4: diagnosis codes with staged matching plus reconciliation.
	if err := w.insertDiagnoses(ctx, tx, rec, claimID, notFound); err != nil {
		return nil, err
	}

	// Step 5: totals recomputed from the rows just written.
	if err := w.updateTotals(ctx, tx, claimID, dates); err != nil {
		return nil, err
	}

	w.log.Info().
		Str("source_claim", rec.ClaimNumber).
		Int64("claim_number", claimNumber).
		Int64("lot_no", lotNo).
		Int("not_found", len(notFound.entries)).
		Msg("claim written")

	return &WriteResult{
		ClaimID:     claimID,
		ClaimNumber: claimNumber,
		LotNo:       lotNo,
		NotFound:    notFound.entries,
	}, nil
}

func (w *Writer) insertHeader(ctx context.Context, tx pgx.Tx, rec *model.ClaimRecord, dates claimDates, member MemberInfo, provider ProviderInfo, claimType int, lotNo int64) (claimID, claimNumber int64, err error) {
	var maxClaim int64
	if err := tx.QueryRow(ctx, embedsql.MaxClaimNumber).Scan(&maxClaim); err != nil {
		return 0, 0, fmt.Errorf("max claim number: %w", err)
	}
	claimNumber = maxClaim + 1
	if claimNumber < model.ClaimNumberFloor {
		claimNumber = model.ClaimNumberFloor
	}

	approvalStatus := "Pending"
	var approvalDate *time.Time
	if dates.audited != nil {
		approvalStatus = "Approved"
		approvalDate = dates.audited
	}

	qtyApproved := 0
	for _, v := range rec.QuantityApproved {
		if normalize.ParseAmount(v) > 0 {
			qtyApproved++
		}
	}

	err = tx.QueryRow(ctx, embedsql.InsertClaim,
		claimNumber,
		member.MSID,
		provider.ProviderID,
		dates.consultation,
		rec.Claimed,
		approvalStatus,
		approvalDate,
		dates.added,
		lotNo,
		claimType,
		dates.admission,
		dates.discharge,
		dates.consultation,
		normalize.StayDays(dates.admission, dates.discharge),
		rec.Claimed,
		len(rec.Quantity),
		qtyApproved,
		model.LotRemarkMigrated,
	).Scan(&claimID)
	if err != nil {
		return 0, 0, fmt.Errorf("insert claim %s: %w", rec.ClaimNumber, err)
	}
	return claimID, claimNumber, nil
}

// insertItems walks the claim's line items in source order, pairing each
// with its mapped catalog code, and writes service rows (step 2) and drug
// rows (step 3). Unmatched sentinels and lookup misses become not-found
// entries; they never fail the claim.
func (w *Writer) insertItems(ctx context.Context, tx pgx.Tx, rec *model.ClaimRecord, claimID int64, member MemberInfo, provider ProviderInfo, network int64, claimType int, notFound *notFoundSet) error {
	mapped := rec.Mapped
	if mapped == nil {
		mapped = &model.MappedItems{}
	}

	pmtID, err := w.providerMedicineTariff(ctx, tx, provider.ProviderID)
	if err != nil {
		return err
	}

	drugPos, servicePos := 0, 0
	for i := range rec.Item {
		qty := rec.Quantity[i]
		cost := rec.Cost[i]

		if match.IsDrugType(rec.ItemTypeAt(i)) {
			var item model.MappedItem
			if drugPos < len(mapped.Drugs) {
				item = mapped.Drugs[drugPos]
			} else {
				item = model.NewUnmatched(rec.Item[i])
			}
			drugPos++
			if item.Unmatched() {
				notFound.add(model.NotFoundEntry{Type: model.NotFoundDrug, Item: item.Item, Quantity: qty, Cost: cost})
				continue
			}
			if err := w.insertDrugRow(ctx, tx, claimID, member, item, pmtID, qty, cost, notFound); err != nil {
				return err
			}
			continue
		}

		var item model.MappedItem
		if servicePos < len(mapped.Services) {
			item = mapped.Services[servicePos]
		} else {
			item = model.NewUnmatched(rec.Item[i])
		}
		servicePos++
		if item.Unmatched() {
			notFound.add(model.NotFoundEntry{Type: model.NotFoundService, Item: item.Item, Quantity: qty, Cost: cost})
			continue
		}
		if err := w.insertServiceRow(ctx, tx, claimID, item, network, claimType, qty, cost, notFound); err != nil {
			return err
		}
	}
	return nil
}

// insertServiceRow resolves a matched service code against the provider's
// tariff, scoped by network and claim type, and writes the claim_details
// row.
func (w *Writer) insertServiceRow(ctx context.Context, tx pgx.Tx, claimID int64, item model.MappedItem, network int64, claimType int, qty, cost string, notFound *notFoundSet) error {
	var (
		tmID, tariffID, slID, coverID int64
		netAmt                        float64
		code, description, currency   string
	)
	err := tx.QueryRow(ctx, embedsql.LookupServiceTariff, item.Code, network, claimType).
		Scan(&tmID, &tariffID, &netAmt, &slID, &coverID, &code, &description, &currency)
	if errors.Is(err, pgx.ErrNoRows) {
		notFound.add(model.NotFoundEntry{Type: model.NotFoundService, Item: item.Item, Quantity: qty, Cost: cost})
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup service tariff %q: %w", item.Code, err)
	}

	_, err = tx.Exec(ctx, embedsql.InsertClaimDetail,
		claimID, coverID, slID, code, description,
		normalize.ParseAmount(cost), normalize.ParseAmount(qty),
		netAmt, tariffID, tmID, currency,
	)
	if err != nil {
		return fmt.Errorf("insert service row %q: %w", code, err)
	}
	return nil
}

// insertDrugRow resolves a matched drug code against the provider's active
// medicine tariff, falling back to the global prescription history, and
// writes the claim_drugs_prescribed row.
func (w *Writer) insertDrugRow(ctx context.Context, tx pgx.Tx, claimID int64, member MemberInfo, item model.MappedItem, pmtID int64, qty, cost string, notFound *notFoundSet) error {
	var (
		medID    int64
		pudID    *int64
		medCode  string
		proDesc  string
		unitform string
		details  string
	)
	err := tx.QueryRow(ctx, embedsql.LookupDrug, item.Code, pmtID).
		Scan(&medID, &medCode, &proDesc, &unitform, &pudID, &details)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, embedsql.LookupDrugGlobal, item.Code).
			Scan(&medID, &medCode, &proDesc, &unitform, &pudID, &details)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		notFound.add(model.NotFoundEntry{Type: model.NotFoundDrug, Item: item.Item, Quantity: qty, Cost: cost})
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup drug %q: %w", item.Code, err)
	}

	if proDesc == "" {
		proDesc = details
	}
	_, err = tx.Exec(ctx, embedsql.InsertClaimDrug,
		claimID, member.MSID, proDesc, medCode,
		pudID, normalize.ParseAmount(qty), unitform,
		normalize.ParseAmount(cost),
	)
	if err != nil {
		return fmt.Errorf("insert drug row %q: %w", medCode, err)
	}
	return nil
}

func (w *Writer) providerMedicineTariff(ctx context.Context, tx pgx.Tx, providerID int64) (int64, error) {
	var pmtID int64
	err := tx.QueryRow(ctx, embedsql.ProviderMedicineTariff, providerID).Scan(&pmtID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("provider %d medicine tariff: %w", providerID, err)
	}
	return pmtID, nil
}

// updateTotals recomputes the header's amounts from the service and drug
// rows just written. The drug deduction falls back to claimed minus approved
// when the drug rows carry none.
func (w *Writer) updateTotals(ctx context.Context, tx pgx.Tx, claimID int64, dates claimDates) error {
	var sClaimed, sApproved, sDeducted, sTariff float64
	if err := tx.QueryRow(ctx, embedsql.ServiceTotals, claimID).
		Scan(&sClaimed, &sApproved, &sDeducted, &sTariff); err != nil {
		return fmt.Errorf("service totals for claim %d: %w", claimID, err)
	}
	var dClaimed, dApproved, dDeducted, dTariff float64
	if err := tx.QueryRow(ctx, embedsql.DrugTotals, claimID).
		Scan(&dClaimed, &dApproved, &dDeducted, &dTariff); err != nil {
		return fmt.Errorf("drug totals for claim %d: %w", claimID, err)
	}

	claimed := sClaimed + dClaimed
	approved := sApproved + dApproved
	if dDeducted == 0 {
		dDeducted = claimed - approved
	}
	deducted := sDeducted + dDeducted
	tariff := sTariff + dTariff

	_, err := tx.Exec(ctx, embedsql.UpdateClaimTotals,
		claimID,
		normalize.Round2(claimed),
		normalize.Round2(approved),
		normalize.Round2(deducted),
		normalize.Round2(tariff),
		normalize.StayDays(dates.admission, dates.discharge),
	)
	if err != nil {
		return fmt.Errorf("update claim %d totals: %w", claimID, err)
	}
	return nil
}

// notFoundSet deduplicates not-found entries within one claim's processing.
type notFoundSet struct {
	seen    map[string]bool
	entries []model.NotFoundEntry
}

func newNotFoundSet() *notFoundSet {
	return &notFoundSet{seen: make(map[string]bool)}
}

func (s *notFoundSet) add(e model.NotFoundEntry) {
	e.Item = strings.TrimSpace(normalize.StripQuotes(e.Item))
	if k := e.Key(); !s.seen[k] {
		s.seen[k] = true
		s.entries = append(s.entries, e)
	}
}
