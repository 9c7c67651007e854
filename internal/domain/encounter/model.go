package encounter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the billing lifecycle state of an encounter.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusReadyForReview     Status = "ready_for_review"
	StatusReviewed           Status = "reviewed"
	StatusReadyToSubmit      Status = "ready_to_submit"
	StatusQueuedForBilling   Status = "queued_for_billing"
	StatusSent               Status = "sent"
	StatusCompletedConfirmed Status = "completed_confirmed"
	StatusCancelled          Status = "cancelled"
	StatusVoided             Status = "voided"
	StatusDenied             Status = "denied"
)

var allStatuses = []Status{
	StatusDraft, StatusReadyForReview, StatusReviewed, StatusReadyToSubmit,
	StatusQueuedForBilling, StatusSent, StatusCompletedConfirmed,
	StatusCancelled, StatusVoided, StatusDenied,
}

// ParseStatus converts a stored or requested status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown encounter status: %q", s)
}

// BillingChannel decides which artifact a cascade produces.
type BillingChannel string

const (
	ChannelInsurance BillingChannel = "insurance"
	ChannelSelfPay   BillingChannel = "self_pay"
)

// Display markers shown once an encounter has been cascaded.
const (
	DisplayClaimGenerated = "claim_generated"
	DisplayInvoiceCreated = "invoice_created"
)

// CascadeMarker returns the display marker for a cascaded encounter.
func (c BillingChannel) CascadeMarker() string {
	if c == ChannelSelfPay {
		return DisplayInvoiceCreated
	}
	return DisplayClaimGenerated
}

// Encounter is a single patient visit pending billing.
type Encounter struct {
	ID                         uuid.UUID       `db:"id" json:"id"`
	OrganizationID             uuid.UUID       `db:"organization_id" json:"organization_id"`
	PatientID                  uuid.UUID       `db:"patient_id" json:"patient_id"`
	ProviderID                 *uuid.UUID      `db:"provider_id" json:"provider_id,omitempty"`
	DateOfService              time.Time       `db:"date_of_service" json:"date_of_service"`
	BillingChannel             BillingChannel  `db:"billing_channel" json:"billing_channel"`
	Status                     Status          `db:"status" json:"status"`
	DisplayStatus              *string         `db:"display_status" json:"display_status,omitempty"`
	TotalCharge                decimal.Decimal `db:"total_charge" json:"total_charge"`
	Cascaded                   bool            `db:"cascaded" json:"cascaded"`
	CascadedAt                 *time.Time      `db:"cascaded_at" json:"cascaded_at,omitempty"`
	ClaimID                    *uuid.UUID      `db:"claim_id" json:"claim_id,omitempty"`
	PatientInsuranceCoverageID *uuid.UUID      `db:"patient_insurance_coverage_id" json:"patient_insurance_coverage_id,omitempty"`
	CreatedAt                  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time       `db:"updated_at" json:"updated_at"`

	// Joined from patients and patient_insurance_coverages.
	PatientFirstName string     `json:"patient_first_name,omitempty"`
	PatientLastName  string     `json:"patient_last_name,omitempty"`
	PayerID          *uuid.UUID `json:"payer_id,omitempty"`
	MemberID         string     `json:"member_id,omitempty"`
	PayerName        string     `json:"payer_name,omitempty"`
	PayerCode        string     `json:"payer_code,omitempty"`
}

// PatientName is "First Last" as used in notifications and EDI output.
func (e *Encounter) PatientName() string {
	return strings.TrimSpace(e.PatientFirstName + " " + e.PatientLastName)
}

// ServiceDate formats the date of service as YYYY-MM-DD.
func (e *Encounter) ServiceDate() string {
	return e.DateOfService.Format("2006-01-02")
}

// Clone returns a shallow copy so callers can attempt a transition without
// touching the original on failure.
func (e *Encounter) Clone() *Encounter {
	c := *e
	return &c
}
