package remittance

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"01-02-06",
	"2006/01/02",
	"20060102",
	"Jan 2, 2006",
	"2-Jan-2006",
	"02-Jan-06",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006.01.02 15:04:05",
	"01/02/2006 15:04",
	"1/2/06 15:04",
}

// excelEpoch is day zero of the 1900 date system, adjusted for Excel's
// phantom 1900-02-29.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate reads a remittance date. Blank or unrecognized input yields
// the zero time and false.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 2958466 {
		days := math.Floor(serial)
		return excelEpoch.AddDate(0, 0, int(days)), true
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
