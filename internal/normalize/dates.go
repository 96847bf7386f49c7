package normalize

import (
	"strings"
	"time"
)

// Date formats seen across claim sheets. DD/MM/YYYY variants come first:
// the source system is day-first, so ambiguous dates resolve that way.
var dateFormats = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"2006-01-02",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate attempts to parse a date string in the known claim-sheet formats.
// Returns nil if the input is empty, the literal "null", or unparseable.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// excelEpoch is the zero of Excel's date serial numbers (1900 date system,
// with the historical off-by-two for the fictitious 1900-02-29).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// FromExcelSerial converts an Excel date serial number to a calendar date.
func FromExcelSerial(serial float64) time.Time {
	return excelEpoch.Add(time.Duration(serial * 24 * float64(time.Hour)))
}

// ShiftDay adds days to the date, preserving nil. Source timestamps carry a
// known one-day offset that is corrected just before writing.
func ShiftDay(t *time.Time, days int) *time.Time {
	if t == nil {
		return nil
	}
	shifted := t.AddDate(0, 0, days)
	return &shifted
}

// MonthKey renders the yyyy-mm portion of a date, the service-month half of
// a lot key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// StayDays returns the whole days between admission and discharge, never
// negative.
func StayDays(admission, discharge *time.Time) int {
	if admission == nil || discharge == nil {
		return 0
	}
	d := int(discharge.Sub(*admission).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
