package model

import (
	"fmt"
	"strings"
)

// EntryPrefix marks an item whose description matched nothing in the
// preloaded catalogs. Downstream stages branch on this exact prefix, so it
// must never change. MappedItem.Unmatched is the only place that should
// test for it and NewUnmatched the only place that should produce it.
const EntryPrefix = "Entry: "

// ClaimRecord is one consolidated claim, built by the row aggregator from a
// contiguous run of line-item rows sharing a claim number. Line items live
// in parallel arrays of identical length; Validate enforces that before any
// consumer trusts the shape. JSON tags match the historical interchange
// files so already-aggregated batches remain loadable.
type ClaimRecord struct {
	ClaimNumber     string `json:"claimNumber"`
	MemberNumber    string `json:"memberNumber"`
	FullName        string `json:"fullName,omitempty"`
	Company         string `json:"company,omitempty"`
	Gender          string `json:"gender,omitempty"`
	DateOfBirth     string `json:"dateOfBirth,omitempty"`
	MemberPlan      string `json:"memberPlan,omitempty"`
	Status          string `json:"status,omitempty"`
	ServiceProvider string `json:"serviceProvider"`
	TypeOfVisit     string `json:"typeOfVisit"`

	DateOfConsultation string `json:"dateOfConsultation,omitempty"`
	DateOfAdmission    string `json:"dateOfAdmission,omitempty"`
	DateOfDischarge    string `json:"dateOfDischarge,omitempty"`
	DateAdded          string `json:"dateAdded,omitempty"`
	AuditedBy          string `json:"auditedBy,omitempty"`

	// Parallel line-item arrays, one slot per source row.
	Item             []string `json:"item"`
	ItemType         []string `json:"itemType"`
	Quantity         []string `json:"quantity"`
	Cost             []string `json:"cost"`
	Total            []string `json:"total,omitempty"`
	Awarded          []string `json:"awarded,omitempty"`
	Rejected         []string `json:"rejected,omitempty"`
	RejectionReasons []string `json:"rejectionReasons,omitempty"`
	QuantityApproved []string `json:"quantityApproved,omitempty"`

	Diagnosis []string `json:"diagnosis"`

	// Claimed is recomputed by the aggregator as sum(quantity*cost), never
	// copied from the sheet's self-reported total.
	Claimed float64 `json:"claimed"`

	// Mapped is populated by the code matcher.
	Mapped *MappedItems `json:"mapped,omitempty"`
}

// MappedItems partitions a claim's line items into drugs and services, each
// annotated with its catalog code or an unmatched sentinel.
type MappedItems struct {
	Drugs    []MappedItem `json:"drugs"`
	Services []MappedItem `json:"services"`
}

// MappedItem pairs the original item text with its resolved code.
type MappedItem struct {
	Item string `json:"item"`
	Code string `json:"code"`
}

// Unmatched reports whether this item carries the not-found sentinel.
func (m MappedItem) Unmatched() bool {
	return strings.HasPrefix(m.Code, EntryPrefix)
}

// NewUnmatched builds the sentinel code for an item that matched nothing.
func NewUnmatched(item string) MappedItem {
	return MappedItem{Item: item, Code: EntryPrefix + item}
}

// DataShapeError reports a claim whose parallel line-item arrays disagree in
// length. Raised before any database writes begin; claim-fatal.
type DataShapeError struct {
	ClaimNumber string
	Items       int
	Quantities  int
	Costs       int
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("claim %s: mismatch in items, quantity, or cost arrays (%d items, %d quantities, %d costs)",
		e.ClaimNumber, e.Items, e.Quantities, e.Costs)
}

// Validate enforces the parallel-array invariant. ItemType may legitimately
// run short (missing cells default to the service bucket), but item,
// quantity and cost must agree exactly.
func (c *ClaimRecord) Validate() error {
	if len(c.Item) != len(c.Quantity) || len(c.Item) != len(c.Cost) {
		return &DataShapeError{
			ClaimNumber: c.ClaimNumber,
			Items:       len(c.Item),
			Quantities:  len(c.Quantity),
			Costs:       len(c.Cost),
		}
	}
	return nil
}

// ItemTypeAt returns the item-type cell for index i, or the empty string
// when the column ran short on the source sheet.
func (c *ClaimRecord) ItemTypeAt(i int) string {
	if i < len(c.ItemType) {
		return c.ItemType[i]
	}
	return ""
}
