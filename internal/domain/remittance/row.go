package remittance

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Required remittance column headers, matched exactly.
const (
	ColAccount          = "Remit Account"
	ColPatientName      = "Remit Patient Name"
	ColServiceFrom      = "Remit Service From Date"
	ColServiceTo        = "Remit Service to Date"
	ColReceived         = "Remit Received Date"
	ColProcedureCode    = "Service Line Procedure Code"
	ColCARC             = "Service Line Adjustment CARC"
	ColLinePaidAmount   = "Service Line Total Paid Amount"
	ColRemitTotalAmount = "Remit Total Paid Amount"
)

// Columns lists the required headers in report order.
var Columns = []string{
	ColAccount,
	ColPatientName,
	ColServiceFrom,
	ColServiceTo,
	ColReceived,
	ColProcedureCode,
	ColCARC,
	ColLinePaidAmount,
	ColRemitTotalAmount,
}

// Row is one remittance line with whitespace normalized. CSV and
// spreadsheet sources both produce it.
type Row struct {
	Account          string
	PatientName      string
	ServiceFrom      string
	ServiceTo        string
	Received         string
	ProcedureCode    string
	CARC             string
	LinePaidAmount   string
	RemitTotalAmount string
}

// Record returns the row's fields in Columns order.
func (r Row) Record() []string {
	return []string{
		r.Account,
		r.PatientName,
		r.ServiceFrom,
		r.ServiceTo,
		r.Received,
		r.ProcedureCode,
		r.CARC,
		r.LinePaidAmount,
		r.RemitTotalAmount,
	}
}

// Blank reports whether every field is empty.
func (r Row) Blank() bool {
	for _, f := range r.Record() {
		if f != "" {
			return false
		}
	}
	return true
}

// columnIndex maps each required header to its position in the source.
type columnIndex map[string]int

// indexHeader locates the required columns and returns any that are missing.
func indexHeader(header []string) (columnIndex, []string) {
	idx := make(columnIndex, len(Columns))
	for i, h := range header {
		h = normalizeSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, seen := idx[h]; !seen {
			idx[h] = i
		}
	}
	var missing []string
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	return idx, missing
}

func (idx columnIndex) row(rec []string) Row {
	get := func(col string) string {
		i := idx[col]
		if i >= len(rec) {
			return ""
		}
		return normalizeSpace(rec[i])
	}
	return Row{
		Account:          get(ColAccount),
		PatientName:      get(ColPatientName),
		ServiceFrom:      get(ColServiceFrom),
		ServiceTo:        get(ColServiceTo),
		Received:         get(ColReceived),
		ProcedureCode:    get(ColProcedureCode),
		CARC:             get(ColCARC),
		LinePaidAmount:   get(ColLinePaidAmount),
		RemitTotalAmount: get(ColRemitTotalAmount),
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ValidRow is a fully reconciled row waiting for grouping.
type ValidRow struct {
	Line             int
	Row              Row
	PatientKey       string
	OrganizationName string
	ServiceFrom      time.Time
	ServiceTo        time.Time
	Received         time.Time
	PaidAmount       decimal.Decimal
	RemitTotal       decimal.Decimal
	OrganizationID   uuid.UUID
	EncounterID      uuid.UUID
	ProcedureCodeID  uuid.UUID
	PayerID          *uuid.UUID
}
