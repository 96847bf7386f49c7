package normalize

import "strings"

// Canonical visit type spellings.
const (
	VisitInPatient  = "IN-PATIENT"
	VisitOutPatient = "OUT-PATIENT"
)

// Claim type codes as stored in the claims schema.
const (
	ClaimTypeOutPatient = 1
	ClaimTypeInPatient  = 2
	LotTypeMixed        = 0
)

// visitSpellings maps the textual variants observed in source sheets,
// including the _x0006_ control-character artifacts Excel exports leave in.
var visitSpellings = map[string]string{
	"IN PATIENT":         VisitInPatient,
	"INPATIENT":          VisitInPatient,
	"IN -PATIENT":        VisitInPatient,
	"IN- PATIENT":        VisitInPatient,
	"IN-_X0006_PATIENT":  VisitInPatient,
	"IN_X0006_PATIENT":   VisitInPatient,
	"OUT PATIENT":        VisitOutPatient,
	"OUTPATIENT":         VisitOutPatient,
	"OUT- PATIENT":       VisitOutPatient,
	"OUT -PATIENT":       VisitOutPatient,
	"OUT-_X0006_PATIENT": VisitOutPatient,
	"OUT_X0006_PATIENT":  VisitOutPatient,
	"OUTPATIENT.":        VisitOutPatient,
}

// VisitType normalizes a free-text type-of-visit cell to one of the
// canonical spellings. Unrecognized input is returned upper-cased unchanged
// so it stays visible downstream rather than being silently coerced.
func VisitType(s string) string {
	up := strings.ToUpper(strings.TrimSpace(s))
	if up == VisitInPatient || up == VisitOutPatient {
		return up
	}
	if canonical, ok := visitSpellings[up]; ok {
		return canonical
	}
	return up
}

// ClaimType maps a normalized visit type to the schema's claim_type code:
// out-patient claims are type 1, everything else is treated as in-patient.
func ClaimType(visitType string) int {
	if VisitType(visitType) == VisitOutPatient {
		return ClaimTypeOutPatient
	}
	return ClaimTypeInPatient
}
