package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// MethodInsuranceRemittance is recorded on every payment posted from a
// payer remittance file.
const MethodInsuranceRemittance = "insurance_remittance"

// Payment is a reconciled remittance record. It is immutable once created.
type Payment struct {
	ID              uuid.UUID       `json:"id"`
	OrganizationID  uuid.UUID       `json:"organization_id"`
	PayerID         *uuid.UUID      `json:"payer_id,omitempty"`
	EncounterID     uuid.UUID       `json:"encounter_id"`
	ProcedureCodeID uuid.UUID       `json:"procedure_code_id"`
	PaymentDate     time.Time       `json:"payment_date"`
	AmountTotal     decimal.Decimal `json:"amount_total"`
	RemitReference  string          `json:"remit_reference,omitempty"`
	SourceHash      string          `json:"source_hash"`
	PaymentStatus   Status          `json:"payment_status"`
	PaymentMethod   string          `json:"payment_method"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SourceHash is the dedup key of a payment: the same job, encounter,
// procedure, date and amount always hash to the same value. The adjustment
// codes keep a paid group and a denial on the same line apart.
func SourceHash(jobID, encounterID, procedureCodeID uuid.UUID, paymentDate time.Time, amount decimal.Decimal, carcCodes []string) string {
	codes := append([]string(nil), carcCodes...)
	sort.Strings(codes)
	key := strings.Join([]string{
		jobID.String(),
		encounterID.String(),
		procedureCodeID.String(),
		paymentDate.Format("2006-01-02"),
		amount.StringFixed(2),
		strings.Join(codes, ","),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
