package remittance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/rcm/internal/domain/payment"
)

// PaymentRecord is what becomes one Payment: either a group of paid lines
// sharing a key, or a single unpaid line.
type PaymentRecord struct {
	Lines           []int
	Codes           []string
	StatusLabel     string
	Status          payment.Status
	OrganizationID  uuid.UUID
	EncounterID     uuid.UUID
	ProcedureCodeID uuid.UUID
	PayerID         *uuid.UUID
	ServiceFrom     time.Time
	Received        time.Time
	Amount          decimal.Decimal
	RemitTotal      decimal.Decimal
}

// PaymentDate is the received date, or the service date when the
// remittance left it blank.
func (r PaymentRecord) PaymentDate() time.Time {
	if !r.Received.IsZero() {
		return r.Received
	}
	return r.ServiceFrom
}

type groupKey struct {
	patient         string
	serviceFrom     string
	serviceTo       string
	organization    string
	amount          string
	received        string
	procedureCode   string
	organizationID  uuid.UUID
	encounterID     uuid.UUID
	procedureCodeID uuid.UUID
}

func keyOf(v ValidRow) groupKey {
	return groupKey{
		patient:         v.PatientKey,
		serviceFrom:     formatDate(v.ServiceFrom),
		serviceTo:       formatDate(v.ServiceTo),
		organization:    v.OrganizationName,
		amount:          v.PaidAmount.StringFixed(2),
		received:        formatDate(v.Received),
		procedureCode:   v.Row.ProcedureCode,
		organizationID:  v.OrganizationID,
		encounterID:     v.EncounterID,
		procedureCodeID: v.ProcedureCodeID,
	}
}

// GroupPayments collapses paid rows (CARC 2 or 242) sharing a key into one
// record carrying the union of their codes. Every other row is its own
// record. Groups come first in first-seen order, then individual records
// in input order.
func GroupPayments(rows []ValidRow) []PaymentRecord {
	type group struct {
		first ValidRow
		lines []int
		codes map[string]bool
	}
	var order []groupKey
	groups := make(map[groupKey]*group)
	var individual []PaymentRecord

	for _, v := range rows {
		if !IsPaidCode(v.Row.CARC) {
			var codes []string
			if v.Row.CARC != "" {
				codes = []string{v.Row.CARC}
			}
			individual = append(individual, newRecord(v, []int{v.Line}, codes))
			continue
		}
		k := keyOf(v)
		g, ok := groups[k]
		if !ok {
			g = &group{first: v, codes: make(map[string]bool)}
			groups[k] = g
			order = append(order, k)
		}
		g.lines = append(g.lines, v.Line)
		g.codes[v.Row.CARC] = true
	}

	out := make([]PaymentRecord, 0, len(order)+len(individual))
	for _, k := range order {
		g := groups[k]
		out = append(out, newRecord(g.first, g.lines, sortedCodes(g.codes)))
	}
	return append(out, individual...)
}

func newRecord(v ValidRow, lines []int, codes []string) PaymentRecord {
	return PaymentRecord{
		Lines:           lines,
		Codes:           codes,
		StatusLabel:     StatusLabel(codes),
		Status:          PaymentStatus(codes),
		OrganizationID:  v.OrganizationID,
		EncounterID:     v.EncounterID,
		ProcedureCodeID: v.ProcedureCodeID,
		PayerID:         v.PayerID,
		ServiceFrom:     v.ServiceFrom,
		Received:        v.Received,
		Amount:          v.PaidAmount,
		RemitTotal:      v.RemitTotal,
	}
}
