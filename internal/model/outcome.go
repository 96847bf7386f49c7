package model

import "time"

// NotFoundKind tags a not-found log entry with the catalog it missed.
type NotFoundKind string

const (
	NotFoundDrug      NotFoundKind = "drug"
	NotFoundService   NotFoundKind = "service"
	NotFoundDiagnosis NotFoundKind = "diagnosis"
	NotFoundProvider  NotFoundKind = "provider"
)

// NotFoundEntry records an item, diagnosis, or provider that resolved
// against no reference catalog. Deduplicated by Key within one claim's
// processing.
type NotFoundEntry struct {
	Type     NotFoundKind `json:"type"`
	Item     string       `json:"item"`
	Quantity string       `json:"quantity,omitempty"`
	Cost     string       `json:"cost,omitempty"`
}

// Key is the dedup key for one claim's processing.
func (e NotFoundEntry) Key() string {
	return string(e.Type) + "|" + e.Item + "|" + e.Quantity + "|" + e.Cost
}

// SuccessRecord is one entry of the successful-records log: the source
// record plus the claim number it received.
type SuccessRecord struct {
	ClaimRecord
	AssignedClaimNumber int64 `json:"claim_number"`
}

// FailedRecord is one entry of the failed-records log.
type FailedRecord struct {
	Record     ClaimRecord `json:"record"`
	Error      string      `json:"error"`
	StackTrace string      `json:"stackTrace"`
}

// RunSummary captures metrics from a single migration run.
type RunSummary struct {
	RunID            string
	InputPath        string
	InputSHA256      string
	TotalRecords     int
	ProcessedRecords int
	FailedRecords    int
	SkippedRecords   int
	SkippedInput     bool
	LotsTouched      int
	DurationMigrate  time.Duration
	DurationLots     time.Duration
	DurationTotal    time.Duration
}

// MatchSummary captures metrics from a code-matching run, including the
// distinct unmatched texts for the not-found report.
type MatchSummary struct {
	TotalDrugs         int      `json:"totalDrugs"`
	NotFoundDrugs      int      `json:"notFoundDrugs"`
	TotalServices      int      `json:"totalServices"`
	NotFoundServices   int      `json:"notFoundServices"`
	TotalProviders     int      `json:"totalProviders"`
	NotFoundProviders  int      `json:"notFoundProviders"`
	UnmatchedDrugs     []string `json:"unmatchedDrugs"`
	UnmatchedServices  []string `json:"unmatchedServices"`
	UnmatchedProviders []string `json:"unmatchedProviders"`
}
