package migration

import (
	"testing"
	"time"

	"github.com/medlot/claimload/internal/model"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0h 0m 0s 0ms"},
		{90 * time.Second, "0h 1m 30s 0ms"},
		{time.Hour + 2*time.Minute + 3*time.Second + 45*time.Millisecond, "1h 2m 3s 45ms"},
	}
	for _, c := range cases {
		if got := formatDuration(c.d); got != c.want {
			t.Errorf("formatDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestParseClaimDatesShiftsForward(t *testing.T) {
	rec := &model.ClaimRecord{
		DateOfConsultation: "31/01/2024",
		DateOfAdmission:    "30/01/2024",
		DateOfDischarge:    "",
		AuditedBy:          "02/02/2024",
	}
	dates := parseClaimDates(rec)

	if got := dates.consultation.Format("2006-01-02"); got != "2024-02-01" {
		t.Errorf("consultation = %s, want 2024-02-01", got)
	}
	if got := dates.admission.Format("2006-01-02"); got != "2024-01-31" {
		t.Errorf("admission = %s, want 2024-01-31", got)
	}
	if dates.discharge != nil {
		t.Errorf("discharge = %v, want nil", dates.discharge)
	}
	// Audit timestamps are operator-entered, not sheet exports; no shift.
	if got := dates.audited.Format("2006-01-02"); got != "2024-02-02" {
		t.Errorf("audited = %s, want 2024-02-02", got)
	}
}

func TestNotFoundSetDedup(t *testing.T) {
	s := newNotFoundSet()
	s.add(model.NotFoundEntry{Type: model.NotFoundDrug, Item: `"Aspirin"`, Quantity: "1", Cost: "5"})
	s.add(model.NotFoundEntry{Type: model.NotFoundDrug, Item: "Aspirin", Quantity: "1", Cost: "5"})
	s.add(model.NotFoundEntry{Type: model.NotFoundDrug, Item: "Aspirin", Quantity: "2", Cost: "5"})
	s.add(model.NotFoundEntry{Type: model.NotFoundService, Item: "Aspirin", Quantity: "1", Cost: "5"})

	if len(s.entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(s.entries))
	}
	if s.entries[0].Item != "Aspirin" {
		t.Errorf("quotes not stripped: %q", s.entries[0].Item)
	}
}
