// Package aggregate groups flat line-item rows into consolidated claim
// records. Rows for the same claim are contiguous in the source, so one
// forward pass with a bounded buffer suffices: completed groups are flushed
// to the sink whenever the buffer reaches the configured threshold, keeping
// memory flat on inputs far larger than RAM.
package aggregate

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/normalize"
	"github.com/medlot/claimload/internal/rowsource"
)

// DefaultFlushThreshold is the number of distinct buffered claims that
// triggers a flush of completed groups.
const DefaultFlushThreshold = 500

const readBatchSize = 1024

// Sink receives finalized claim records in source order.
type Sink interface {
	WriteClaim(model.ClaimRecord) error
}

// Result holds metrics from one aggregation pass.
type Result struct {
	RowsRead    int64
	RowsSkipped int64
	Claims      int64
	Duration    time.Duration
}

// Aggregator drives the grouping pass. Zero value is not usable; construct
// with New.
type Aggregator struct {
	log       zerolog.Logger
	threshold int

	order  []string
	groups map[string]*model.ClaimRecord
	totals map[string]float64
}

// New returns an Aggregator flushing completed groups once threshold
// distinct claims are buffered. threshold <= 0 selects the default.
func New(log zerolog.Logger, threshold int) *Aggregator {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &Aggregator{
		log:       log,
		threshold: threshold,
		groups:    make(map[string]*model.ClaimRecord),
		totals:    make(map[string]float64),
	}
}

// Run consumes every row from src and writes consolidated claims to sink.
func (a *Aggregator) Run(src rowsource.Source, sink Sink) (*Result, error) {
	start := time.Now()
	res := &Result{}

	buf := make([]model.LineItemRow, readBatchSize)
	for {
		n, readErr := src.Read(buf)
		for i := 0; i < n; i++ {
			res.RowsRead++
			if strings.TrimSpace(buf[i].ClaimNumber) == "" {
				res.RowsSkipped++
				continue
			}
			a.consume(&buf[i])
			if len(a.order) >= a.threshold {
				flushed, err := a.flushCompleted(sink)
				if err != nil {
					return nil, err
				}
				res.Claims += flushed
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read rows at %d: %w", res.RowsRead, readErr)
		}
	}

	flushed, err := a.flushAll(sink)
	if err != nil {
		return nil, err
	}
	res.Claims += flushed
	res.Duration = time.Since(start)

	a.log.Info().
		Int64("rows_read", res.RowsRead).
		Int64("rows_skipped", res.RowsSkipped).
		Int64("claims", res.Claims).
		Str("duration", res.Duration.String()).
		Msg("aggregation complete")

	return res, nil
}

// consume folds one row into its claim group, creating the group from the
// row's claim-level columns on first sight.
func (a *Aggregator) consume(row *model.LineItemRow) {
	claimNo := strings.TrimSpace(row.ClaimNumber)
	group, ok := a.groups[claimNo]
	if !ok {
		group = &model.ClaimRecord{
			ClaimNumber:        claimNo,
			MemberNumber:       row.MemberNumber,
			FullName:           row.FullName,
			Company:            row.Company,
			Gender:             row.Gender,
			DateOfBirth:        row.DateOfBirth,
			MemberPlan:         row.MemberPlan,
			Status:             row.Status,
			ServiceProvider:    row.ServiceProvider,
			TypeOfVisit:        normalize.VisitType(row.TypeOfVisit),
			DateOfConsultation: dateCell(row.DateOfConsultation),
			DateOfAdmission:    dateCell(row.DateOfAdmission),
			DateAdded:          dateCell(row.DateAdded),
			AuditedBy:          row.AuditedBy,
			Diagnosis:          normalize.SplitDiagnosis([]string{row.Diagnosis}),
		}
		a.groups[claimNo] = group
		a.order = append(a.order, claimNo)
	}

	group.Item = append(group.Item, row.Item)
	group.ItemType = append(group.ItemType, row.ItemType)
	group.Quantity = append(group.Quantity, row.Quantity)
	group.Cost = append(group.Cost, row.Cost)
	group.Total = append(group.Total, row.Total)
	group.Awarded = append(group.Awarded, row.Awarded)
	group.Rejected = append(group.Rejected, row.Rejected)
	group.RejectionReasons = append(group.RejectionReasons, row.RejectionReasons)
	group.QuantityApproved = append(group.QuantityApproved, row.QuantityApproved)

	// Discharge dates arrive per row; the first usable one wins.
	if group.DateOfDischarge == "" {
		if d := dateCell(row.DateOfDischarge); d != "" {
			group.DateOfDischarge = d
		}
	}

	a.totals[claimNo] += normalize.ParseAmount(row.Quantity) * normalize.ParseAmount(row.Cost)
}

// flushCompleted writes every buffered group except the most recent one,
// which may still receive rows. Relies on claim rows being contiguous.
func (a *Aggregator) flushCompleted(sink Sink) (int64, error) {
	if len(a.order) < 2 {
		return 0, nil
	}
	completed := a.order[:len(a.order)-1]
	last := a.order[len(a.order)-1]

	var n int64
	for _, claimNo := range completed {
		if err := a.emit(sink, claimNo); err != nil {
			return n, err
		}
		n++
	}
	a.order = []string{last}
	return n, nil
}

// flushAll drains the buffer at end of input.
func (a *Aggregator) flushAll(sink Sink) (int64, error) {
	var n int64
	for _, claimNo := range a.order {
		if err := a.emit(sink, claimNo); err != nil {
			return n, err
		}
		n++
	}
	a.order = nil
	return n, nil
}

func (a *Aggregator) emit(sink Sink, claimNo string) error {
	group := a.groups[claimNo]
	finalize(group, a.totals[claimNo])
	delete(a.groups, claimNo)
	delete(a.totals, claimNo)
	if err := sink.WriteClaim(*group); err != nil {
		return fmt.Errorf("flush claim %s: %w", claimNo, err)
	}
	return nil
}

// finalize computes the derived fields of a completed group.
func finalize(c *model.ClaimRecord, claimed float64) {
	c.Claimed = normalize.Round2(claimed)

	// Formula cells surface as "Formula: ..."; a rejected formula means
	// "computed zero" on the source sheets. Empty rejected cells drop.
	kept := c.Rejected[:0]
	for _, v := range c.Rejected {
		if strings.HasPrefix(v, "Formula: ") {
			v = "0"
		}
		if v == "" {
			continue
		}
		kept = append(kept, v)
	}
	c.Rejected = kept
}

// dateCell normalizes a raw date cell: bare numbers are Excel date serials.
func dateCell(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return ""
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return normalize.FromExcelSerial(serial).Format("2006-01-02")
	}
	return s
}
