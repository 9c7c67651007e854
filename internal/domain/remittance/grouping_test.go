package remittance

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/rcm/internal/domain/payment"
)

func validRow(line int, carc, paid string, enc uuid.UUID) ValidRow {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	return ValidRow{
		Line:             line,
		Row:              Row{PatientName: "Jane Doe", ProcedureCode: "99213", CARC: carc, LinePaidAmount: paid},
		PatientKey:       "jane doe",
		OrganizationName: "Acme Corp",
		ServiceFrom:      day,
		ServiceTo:        day,
		Received:         day.AddDate(0, 0, 20),
		PaidAmount:       decimal.RequireFromString(paid),
		OrganizationID:   uuid.MustParse("00000000-0000-0000-0000-0000000000a1"),
		EncounterID:      enc,
		ProcedureCodeID:  uuid.MustParse("00000000-0000-0000-0000-0000000000c1"),
	}
}

func TestGroupPayments(t *testing.T) {
	enc := uuid.New()
	rows := []ValidRow{
		validRow(2, "2", "50.00", enc),
		validRow(3, "242", "50.00", enc),
		validRow(4, "0", "0", enc),
		validRow(5, "1", "0", enc),
	}

	records := GroupPayments(rows)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	paid := records[0]
	if !reflect.DeepEqual(paid.Lines, []int{2, 3}) {
		t.Errorf("paid lines = %v, want [2 3]", paid.Lines)
	}
	if !reflect.DeepEqual(paid.Codes, []string{"2", "242"}) {
		t.Errorf("paid codes = %v, want [2 242]", paid.Codes)
	}
	if paid.Status != payment.StatusSucceeded || paid.StatusLabel != "Paid" {
		t.Errorf("paid status = %s %q", paid.Status, paid.StatusLabel)
	}
	if !paid.Amount.Equal(decimal.RequireFromString("50")) {
		t.Errorf("paid amount = %s, want 50", paid.Amount)
	}

	denial := records[1]
	if !reflect.DeepEqual(denial.Lines, []int{4}) || denial.Status != payment.StatusFailed {
		t.Errorf("denial record = %+v", denial)
	}
	deductible := records[2]
	if !reflect.DeepEqual(deductible.Lines, []int{5}) || deductible.Status != payment.StatusPending {
		t.Errorf("deductible record = %+v", deductible)
	}
}

func TestGroupPayments_DifferentAmountsStaySeparate(t *testing.T) {
	enc := uuid.New()
	records := GroupPayments([]ValidRow{
		validRow(2, "2", "50.00", enc),
		validRow(3, "2", "75.00", enc),
	})
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestGroupPayments_DifferentEncountersStaySeparate(t *testing.T) {
	records := GroupPayments([]ValidRow{
		validRow(2, "2", "50.00", uuid.New()),
		validRow(3, "2", "50.00", uuid.New()),
	})
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestGroupPayments_UncodedRowIsIndividual(t *testing.T) {
	enc := uuid.New()
	records := GroupPayments([]ValidRow{
		validRow(2, "", "10.00", enc),
		validRow(3, "", "10.00", enc),
	})
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, r := range records {
		if len(r.Codes) != 0 || r.Status != payment.StatusPending {
			t.Errorf("record = %+v", r)
		}
	}
}

func TestPaymentDate_FallsBackToServiceDate(t *testing.T) {
	from := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	r := PaymentRecord{ServiceFrom: from}
	if !r.PaymentDate().Equal(from) {
		t.Errorf("PaymentDate = %s, want %s", r.PaymentDate(), from)
	}
	received := from.AddDate(0, 1, 0)
	r.Received = received
	if !r.PaymentDate().Equal(received) {
		t.Errorf("PaymentDate = %s, want %s", r.PaymentDate(), received)
	}
}
