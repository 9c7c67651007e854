// Package billing delivers the asynchronous feedback of the billing
// pipelines: the remittance error report and submission failure notices.
package billing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/domain/reference"
	"github.com/ehr/rcm/internal/domain/remittance"
	"github.com/ehr/rcm/internal/domain/submission"
	"github.com/ehr/rcm/internal/platform/notification"
)

// Recipients lists the accounts copied on every billing notice.
type Recipients interface {
	SuperAdminEmails(ctx context.Context) ([]string, error)
}

// TemplateSender is satisfied by *notification.Service.
type TemplateSender interface {
	SendTemplate(ctx context.Context, templateID string, data map[string]string, to []string, attachments ...notification.Attachment) error
}

// Notifier implements remittance.ErrorReporter and
// submission.FailureNotifier.
type Notifier struct {
	sender     TemplateSender
	recipients Recipients
	workDir    string
	logger     zerolog.Logger
}

var (
	_ remittance.ErrorReporter   = (*Notifier)(nil)
	_ submission.FailureNotifier = (*Notifier)(nil)
)

func NewNotifier(sender TemplateSender, recipients Recipients, workDir string, logger zerolog.Logger) *Notifier {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Notifier{
		sender:     sender,
		recipients: recipients,
		workDir:    workDir,
		logger:     logger.With().Str("component", "billing-notifier").Logger(),
	}
}

// ReportErrors writes the run's error CSV, mails it to the uploader and all
// super admins, then removes the file.
func (n *Notifier) ReportErrors(ctx context.Context, ictx *remittance.IngestionContext, uploaderEmail string) error {
	path, err := remittance.WriteErrorReport(n.workDir, ictx)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			n.logger.Warn().Err(err).Str("path", path).Msg("remove error report")
		}
	}()

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read error report: %w", err)
	}

	to, err := n.withAdmins(ctx, uploaderEmail)
	if err != nil {
		return err
	}

	data := map[string]string{
		"job_id":        ictx.JobID.String(),
		"file_name":     ictx.FileName,
		"error_count":   strconv.Itoa(len(ictx.Errors)),
		"payment_count": strconv.Itoa(ictx.Stats.PaymentsCreated),
	}
	return n.sender.SendTemplate(ctx, notification.TemplateRemittanceErrors, data, to, notification.Attachment{
		FileName:    remittance.ReportFileName(ictx),
		ContentType: "text/csv",
		Content:     content,
	})
}

// NotifyFailures sends one aggregated notice for a submission run to the
// organization's billing contact and all super admins.
func (n *Notifier) NotifyFailures(ctx context.Context, org *reference.Organization, results *submission.Results) error {
	to, err := n.withAdmins(ctx, org.BillingEmail)
	if err != nil {
		return err
	}

	var lines []string
	for _, f := range results.Failed {
		lines = append(lines, fmt.Sprintf("- %s (%s, %s): %s", f.PatientName, f.DateOfService, f.EncounterID, f.Message))
	}
	data := map[string]string{
		"organization":     org.Name,
		"failed_count":     strconv.Itoa(len(results.Failed)),
		"successful_count": strconv.Itoa(len(results.Successful)),
		"failures":         strings.Join(lines, "\n"),
	}
	return n.sender.SendTemplate(ctx, notification.TemplateSubmissionFailures, data, to)
}

func (n *Notifier) withAdmins(ctx context.Context, first string) ([]string, error) {
	admins, err := n.recipients.SuperAdminEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list super admins: %w", err)
	}
	return append([]string{first}, admins...), nil
}
