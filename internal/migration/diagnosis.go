package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/normalize"
	embedsql "github.com/medlot/claimload/internal/sql"
)

// insertDiagnoses writes the claim's diagnosis codes (step 4): staged
// matching per diagnosis, then a reconciliation pass that re-reads the rows
// just written, inserts any source diagnosis still missing, and removes
// duplicate codes keeping the lowest-id row.
func (w *Writer) insertDiagnoses(ctx context.Context, tx pgx.Tx, rec *model.ClaimRecord, claimID int64, notFound *notFoundSet) error {
	for _, d := range rec.Diagnosis {
		d = strings.TrimSpace(normalize.StripQuotes(d))
		if d == "" {
			continue
		}
		code, description, found, err := lookupDiagnosis(ctx, tx, d)
		if err != nil {
			return err
		}
		if !found {
			notFound.add(model.NotFoundEntry{Type: model.NotFoundDiagnosis, Item: d})
			continue
		}
		if _, err := tx.Exec(ctx, embedsql.InsertClaimCode, claimID, code, description, "Pending"); err != nil {
			return fmt.Errorf("insert diagnosis %q: %w", code, err)
		}
	}

	if err := w.reconcileDiagnoses(ctx, tx, rec, claimID, notFound); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, embedsql.DeleteDuplicateCodes, claimID); err != nil {
		return fmt.Errorf("dedupe diagnosis codes for claim %d: %w", claimID, err)
	}
	return nil
}

// reconcileDiagnoses covers diagnoses supplied as combined strings: the
// source text is re-split, and any part whose description is absent from the
// rows already written gets its own staged lookup and insert.
func (w *Writer) reconcileDiagnoses(ctx context.Context, tx pgx.Tx, rec *model.ClaimRecord, claimID int64, notFound *notFoundSet) error {
	written, err := writtenDiagnosisDescriptions(ctx, tx, claimID)
	if err != nil {
		return err
	}

	for _, part := range normalize.SplitDiagnosis(rec.Diagnosis) {
		if written[strings.ToLower(part)] {
			continue
		}
		code, description, found, err := lookupDiagnosis(ctx, tx, part)
		if err != nil {
			return err
		}
		if !found {
			notFound.add(model.NotFoundEntry{Type: model.NotFoundDiagnosis, Item: part})
			continue
		}
		if written[strings.ToLower(description)] {
			continue
		}
		if _, err := tx.Exec(ctx, embedsql.InsertClaimCode, claimID, code, description, "Approved"); err != nil {
			return fmt.Errorf("insert reconciled diagnosis %q: %w", code, err)
		}
		written[strings.ToLower(description)] = true
	}
	return nil
}

func writtenDiagnosisDescriptions(ctx context.Context, tx pgx.Tx, claimID int64) (map[string]bool, error) {
	rows, err := tx.Query(ctx, embedsql.ClaimCodeRows, claimID)
	if err != nil {
		return nil, fmt.Errorf("read diagnosis rows for claim %d: %w", claimID, err)
	}
	defer rows.Close()

	written := make(map[string]bool)
	for rows.Next() {
		var ccID int64
		var code, description string
		if err := rows.Scan(&ccID, &code, &description); err != nil {
			return nil, fmt.Errorf("scan diagnosis row: %w", err)
		}
		written[strings.ToLower(description)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read diagnosis rows: %w", err)
	}
	return written, nil
}

// lookupDiagnosis resolves a diagnosis description: exact description match
// first, then phonetic match constrained by substring containment.
func lookupDiagnosis(ctx context.Context, q Querier, text string) (code, description string, found bool, err error) {
	err = q.QueryRow(ctx, embedsql.LookupDiagnosisExact, text).Scan(&code, &description)
	if err == nil {
		return code, description, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", "", false, fmt.Errorf("lookup diagnosis %q: %w", text, err)
	}

	err = q.QueryRow(ctx, embedsql.LookupDiagnosisSoundex, text).Scan(&code, &description)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("soundex diagnosis %q: %w", text, err)
	}
	return code, description, true, nil
}
