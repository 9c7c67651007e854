package remittance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/domain/matching"
	"github.com/ehr/rcm/internal/domain/payment"
	"github.com/ehr/rcm/internal/domain/reference"
)

// ReferenceData resolves procedure codes and organizations named in a file.
type ReferenceData interface {
	FindProcedureCode(ctx context.Context, code string) (*reference.ProcedureCode, error)
	FindOrganizationsByName(ctx context.Context, name string) ([]reference.Organization, error)
}

// ErrorReporter delivers the error report of a run that rejected rows.
type ErrorReporter interface {
	ReportErrors(ctx context.Context, ictx *IngestionContext, uploaderEmail string) error
}

type Pipeline struct {
	patients   matching.PatientDirectory
	names      matching.NameMatcher
	encounters matching.EncounterFinder
	confirm    matching.Confirmer
	reference  ReferenceData
	payments   payment.Repository
	reporter   ErrorReporter
	logger     zerolog.Logger
}

type Deps struct {
	Patients   matching.PatientDirectory
	Names      matching.NameMatcher
	Encounters matching.EncounterFinder
	Confirm    matching.Confirmer
	Reference  ReferenceData
	Payments   payment.Repository
	Reporter   ErrorReporter
}

func NewPipeline(d Deps, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		patients:   d.Patients,
		names:      d.Names,
		encounters: d.Encounters,
		confirm:    d.Confirm,
		reference:  d.Reference,
		payments:   d.Payments,
		reporter:   d.Reporter,
		logger:     logger.With().Str("component", "remittance").Logger(),
	}
}

// Ingest reconciles one remittance file and posts its payments. Row-level
// problems are collected in the returned context; an error is returned only
// when the file cannot be read or a lookup fails outright. The file at path
// is removed before Ingest returns, whatever the outcome.
func (p *Pipeline) Ingest(ctx context.Context, jobID uuid.UUID, path, uploaderEmail string) (*IngestionContext, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn().Err(err).Str("job_id", jobID.String()).Msg("remove remittance file")
		}
	}()

	log := p.logger.With().Str("job_id", jobID.String()).Logger()
	ictx := NewIngestionContext(jobID, filepath.Base(path))

	src, err := OpenSource(path)
	if err != nil {
		return ictx, err
	}
	defer src.Close()

	if err := p.readRows(ctx, ictx, src); err != nil {
		return ictx, err
	}

	p.persist(ctx, ictx, GroupPayments(ictx.Valid))

	log.Info().
		Int("rows", ictx.Stats.Rows).
		Int("valid", ictx.Stats.ValidRows).
		Int("rejected", ictx.Stats.RejectedRows).
		Int("payments_created", ictx.Stats.PaymentsCreated).
		Int("payments_duplicate", ictx.Stats.PaymentsDuplicate).
		Int("persistence_failures", ictx.Stats.PersistenceFailures).
		Int("encounters_confirmed", ictx.Stats.EncountersConfirmed).
		Msg("remittance ingested")

	if len(ictx.Errors) > 0 && p.reporter != nil {
		if err := p.reporter.ReportErrors(ctx, ictx, uploaderEmail); err != nil {
			log.Error().Err(err).Msg("send remittance error report")
		}
	}
	return ictx, nil
}

func (p *Pipeline) readRows(ctx context.Context, ictx *IngestionContext, src Source) error {
	cols, missing := indexHeader(src.Header())
	if len(missing) > 0 {
		ictx.reject(1, Row{}, &matching.MatchError{
			Kind:       matching.KindMissingField,
			Reason:     "missing required columns: " + strings.Join(missing, ", "),
			Suggestion: "Export the remittance with the standard column headers",
		})
		return nil
	}

	patients, err := matching.LoadPatientMatcher(ctx, p.patients, p.names)
	if err != nil {
		return err
	}
	encounters := matching.NewEncounterMatcher(p.encounters, nil)

	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read line %d: %w", ictx.Line+1, err)
		}
		line := ictx.advance()
		row := cols.row(rec)
		if row.Blank() {
			ictx.Stats.Rows--
			continue
		}
		if err := p.processRow(ctx, ictx, line, row, patients, encounters); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

// processRow runs the per-row checks in order and stops at the first
// failure, so a row yields at most one error.
func (p *Pipeline) processRow(ctx context.Context, ictx *IngestionContext, line int, row Row,
	patients *matching.PatientMatcher, encounters *matching.EncounterMatcher) error {

	row.PatientName = matching.CanonicalName(row.PatientName)

	reject := func(err error) error {
		var me *matching.MatchError
		if errors.As(err, &me) {
			ictx.reject(line, row, me)
			return nil
		}
		return err
	}

	patientID, err := patients.Match(row.PatientName)
	if err != nil {
		return reject(err)
	}

	if strings.TrimSpace(row.ServiceFrom) == "" {
		return reject(matching.MissingField(ColServiceFrom))
	}
	from, ok := ParseDate(row.ServiceFrom)
	if !ok {
		return reject(matching.InvalidDate(ColServiceFrom, row.ServiceFrom))
	}
	to, ok := ParseDate(row.ServiceTo)
	if !ok && strings.TrimSpace(row.ServiceTo) != "" {
		return reject(matching.InvalidDate(ColServiceTo, row.ServiceTo))
	}
	received, ok := ParseDate(row.Received)
	if !ok && strings.TrimSpace(row.Received) != "" {
		return reject(matching.InvalidDate(ColReceived, row.Received))
	}
	if !to.IsZero() && !to.Equal(from) {
		return reject(matching.DateMismatch(formatDate(from), formatDate(to)))
	}

	enc, err := encounters.Match(ctx, patientID, from, false)
	if err != nil {
		return reject(err)
	}

	if row.ProcedureCode == "" {
		return reject(matching.MissingField(ColProcedureCode))
	}
	code, err := p.reference.FindProcedureCode(ctx, row.ProcedureCode)
	if errors.Is(err, reference.ErrNotFound) {
		return reject(matching.ProcedureCodeNotFound(row.ProcedureCode))
	}
	if err != nil {
		return fmt.Errorf("find procedure code: %w", err)
	}

	orgName := CleanOrganizationName(row.Account)
	if orgName == "" {
		return reject(matching.MissingField(ColAccount))
	}
	orgs, err := p.reference.FindOrganizationsByName(ctx, orgName)
	if err != nil {
		return fmt.Errorf("find organization: %w", err)
	}
	if len(orgs) != 1 {
		return reject(matching.OrganizationNotFound(orgName, len(orgs)))
	}

	ictx.accept(ValidRow{
		Line:             line,
		Row:              row,
		PatientKey:       matching.NormalizeName(row.PatientName),
		OrganizationName: orgName,
		ServiceFrom:      from,
		ServiceTo:        to,
		Received:         received,
		PaidAmount:       ParseAmount(row.LinePaidAmount),
		RemitTotal:       ParseAmount(row.RemitTotalAmount),
		OrganizationID:   orgs[0].ID,
		EncounterID:      enc.ID,
		ProcedureCodeID:  code.ID,
		PayerID:          enc.PayerID,
	})
	return nil
}

// persist saves one payment per record. A failed save is recorded and the
// remaining records are still processed.
func (p *Pipeline) persist(ctx context.Context, ictx *IngestionContext, records []PaymentRecord) {
	for _, r := range records {
		log := p.logger.With().
			Str("job_id", ictx.JobID.String()).
			Str("encounter_id", r.EncounterID.String()).
			Ints("lines", r.Lines).
			Logger()

		pay := &payment.Payment{
			OrganizationID:  r.OrganizationID,
			PayerID:         r.PayerID,
			EncounterID:     r.EncounterID,
			ProcedureCodeID: r.ProcedureCodeID,
			PaymentDate:     r.PaymentDate(),
			AmountTotal:     r.Amount,
			RemitReference:  fmt.Sprintf("%s:%d", ictx.JobID, r.Lines[0]),
			SourceHash:      payment.SourceHash(ictx.JobID, r.EncounterID, r.ProcedureCodeID, r.PaymentDate(), r.Amount, r.Codes),
			PaymentStatus:   r.Status,
			PaymentMethod:   payment.MethodInsuranceRemittance,
			Notes:           notes(r),
		}

		created, err := p.payments.CreateIfAbsent(ctx, pay)
		if err != nil {
			log.Error().Err(err).Msg("save payment")
			ictx.fail(PersistenceFailure{Lines: r.Lines, EncounterID: r.EncounterID, Stage: "payment", Err: err})
			continue
		}
		if created {
			ictx.Stats.PaymentsCreated++
		} else {
			ictx.Stats.PaymentsDuplicate++
		}

		if r.Status != payment.StatusSucceeded || p.confirm == nil {
			continue
		}
		changed, err := p.confirm.ConfirmPayment(ctx, r.EncounterID)
		if err != nil {
			log.Error().Err(err).Msg("confirm encounter")
			ictx.fail(PersistenceFailure{Lines: r.Lines, EncounterID: r.EncounterID, Stage: "encounter", Err: err})
			continue
		}
		if changed {
			ictx.Stats.EncountersConfirmed++
		}
	}
}

func notes(r PaymentRecord) string {
	parts := []string{"Status: " + r.StatusLabel}
	if len(r.Codes) > 0 {
		parts = append(parts, "CARC: "+strings.Join(r.Codes, ", "))
	}
	if !r.RemitTotal.IsZero() {
		parts = append(parts, "Remit total: "+r.RemitTotal.StringFixed(2))
	}
	return strings.Join(parts, "; ")
}
