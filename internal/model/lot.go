package model

import "time"

// Lot number and claim number allocation floors. The target system predates
// the migration; when its tables are empty these floors keep migrated
// identifiers clearly out of the operational ranges.
const (
	LotNumberFloor   = 100000000
	ClaimNumberFloor = 300000000
)

// LotRemarkMigrated tags lots created by this pipeline so reconciliation and
// cold-start rediscovery can scope to them.
const LotRemarkMigrated = "Migrated"

// Lot is one payment-batch grouping of claims: one provider, one service
// month. VisitType is 1 (out-patient) or 2 (in-patient) from the first claim
// assigned, and forced to 0 (mixed) by post-hoc reconciliation when the
// lot's claims turn out to span both.
type Lot struct {
	LotNo       int64
	ProviderID  int64
	ReceiveDate time.Time
	VisitType   int
	Amount      float64
	TotalClaims int
	PolicyID    int64
	Remark      string
}

// LotKey identifies the lot a claim belongs to: provider + service month.
type LotKey struct {
	ProviderID int64
	Month      string // yyyy-mm of the consultation date
}
