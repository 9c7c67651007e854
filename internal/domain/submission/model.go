// Package submission runs EDI batch submission for a set of encounters:
// one 837 file per run, claim attachment, and the status cascade.
package submission

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/ehr/rcm/internal/domain/encounter"
	"github.com/ehr/rcm/internal/domain/reference"
)

// Result is what a Submitter reports for one batch. EDIFilePath is set once
// the batch file is durably written, whether or not the remote send
// succeeded.
type Result struct {
	Success     bool   `json:"success"`
	EDIFilePath string `json:"edi_file_path,omitempty"`
	Filename    string `json:"filename,omitempty"`
	RemotePath  string `json:"remote_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

// FileProduced reports whether the batch file exists on disk.
func (r *Result) FileProduced() bool {
	if r == nil || r.EDIFilePath == "" {
		return false
	}
	info, err := os.Stat(r.EDIFilePath)
	return err == nil && !info.IsDir()
}

// Submitter builds one EDI file for all encounters and sends it.
type Submitter interface {
	Submit(ctx context.Context, encs []*encounter.Encounter, org *reference.Organization) (*Result, error)
}

// Failure is one encounter that did not complete submission.
type Failure struct {
	EncounterID   uuid.UUID `json:"encounter_id"`
	Message       string    `json:"error"`
	PatientName   string    `json:"patient_name"`
	DateOfService string    `json:"date_of_service"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("encounter %s: %s", f.EncounterID, f.Message)
}

func newFailure(e *encounter.Encounter, msg string) Failure {
	return Failure{
		EncounterID:   e.ID,
		Message:       msg,
		PatientName:   e.PatientName(),
		DateOfService: e.ServiceDate(),
	}
}

// Results is the outcome of one submission run.
type Results struct {
	OrganizationID uuid.UUID   `json:"organization_id"`
	Successful     []uuid.UUID `json:"successful"`
	Failed         []Failure   `json:"failed"`
	Filename       string      `json:"filename,omitempty"`
	RemotePath     string      `json:"remote_path,omitempty"`
}

// FailureNotifier is told about every run that produced failures.
type FailureNotifier interface {
	NotifyFailures(ctx context.Context, org *reference.Organization, results *Results) error
}
