package billing

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/domain/matching"
	"github.com/ehr/rcm/internal/domain/reference"
	"github.com/ehr/rcm/internal/domain/remittance"
	"github.com/ehr/rcm/internal/domain/submission"
	"github.com/ehr/rcm/internal/platform/notification"
)

type stubAdmins struct {
	emails []string
	err    error
}

func (s stubAdmins) SuperAdminEmails(_ context.Context) ([]string, error) {
	return s.emails, s.err
}

func newTestNotifier(t *testing.T, admins stubAdmins) (*Notifier, *notification.MockMailer, string) {
	t.Helper()
	mailer := &notification.MockMailer{}
	dir := t.TempDir()
	svc := notification.NewService(mailer, nil, zerolog.Nop())
	return NewNotifier(svc, admins, dir, zerolog.Nop()), mailer, dir
}

func TestReportErrors(t *testing.T) {
	n, mailer, dir := newTestNotifier(t, stubAdmins{emails: []string{"admin@example.com", "biller@example.com"}})

	ictx := remittance.NewIngestionContext(uuid.New(), "remit.csv")
	ictx.Errors = append(ictx.Errors, remittance.RowError{
		Line: 3,
		Err:  &matchErr,
		Row:  remittance.Row{PatientName: "Jane Doe"},
	})

	if err := n.ReportErrors(context.Background(), ictx, "biller@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := mailer.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 message, got %d", len(calls))
	}
	msg := calls[0]
	if len(msg.To) != 2 {
		t.Errorf("recipients = %v, want uploader and admin once each", msg.To)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].ContentType != "text/csv" {
		t.Fatalf("attachments = %+v", msg.Attachments)
	}
	if !strings.Contains(string(msg.Attachments[0].Content), "3,") {
		t.Errorf("attachment = %q", msg.Attachments[0].Content)
	}
	if !strings.Contains(msg.Subject, "1 rows") {
		t.Errorf("subject = %q", msg.Subject)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("report file left behind: %v", entries)
	}
}

func TestReportErrors_AdminLookupFails(t *testing.T) {
	n, mailer, dir := newTestNotifier(t, stubAdmins{err: errors.New("db down")})
	ictx := remittance.NewIngestionContext(uuid.New(), "remit.csv")
	ictx.Errors = append(ictx.Errors, remittance.RowError{Line: 2, Err: &matchErr})

	if err := n.ReportErrors(context.Background(), ictx, "biller@example.com"); err == nil {
		t.Fatal("expected error")
	}
	if len(mailer.Calls()) != 0 {
		t.Error("no message should be sent")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("report file left behind: %v", entries)
	}
}

func TestNotifyFailures(t *testing.T) {
	n, mailer, _ := newTestNotifier(t, stubAdmins{emails: []string{"admin@example.com"}})
	org := &reference.Organization{ID: uuid.New(), Name: "Acme Corp", BillingEmail: "billing@acme.test"}
	encID := uuid.New()
	results := &submission.Results{
		Successful: []uuid.UUID{uuid.New(), uuid.New()},
		Failed: []submission.Failure{
			{EncounterID: encID, Message: "clearinghouse timeout", PatientName: "Jane Doe", DateOfService: "2024-03-05"},
		},
	}

	if err := n.NotifyFailures(context.Background(), org, results); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := mailer.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 message, got %d", len(calls))
	}
	msg := calls[0]
	if len(msg.To) != 2 {
		t.Errorf("recipients = %v", msg.To)
	}
	if !strings.Contains(msg.Subject, "Acme Corp") || !strings.Contains(msg.Subject, "1 encounters failed") {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "2 encounters were submitted") || !strings.Contains(msg.Body, encID.String()) {
		t.Errorf("body = %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "clearinghouse timeout") {
		t.Errorf("body missing failure reason: %q", msg.Body)
	}
}

var matchErr = matching.MatchError{Kind: matching.KindNotFound, Reason: "patient \"Jane Doe\" not found"}
