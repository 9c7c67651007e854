package submission

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/domain/claim"
	"github.com/ehr/rcm/internal/domain/encounter"
	"github.com/ehr/rcm/internal/domain/reference"
	"github.com/ehr/rcm/internal/platform/db"
)

// Organizations resolves the organization a batch is billed for.
type Organizations interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*reference.Organization, error)
}

// ClaimAttacher links an encounter's claim to the batch file.
type ClaimAttacher interface {
	FindOrCreate(ctx context.Context, encounterID uuid.UUID) (*claim.Claim, error)
	Attach(ctx context.Context, c *claim.Claim, filePath, filename, contentType string) error
}

type Deps struct {
	Encounters    encounter.Repository
	Organizations Organizations
	Submitter     Submitter
	Claims        ClaimAttacher
	Notifier      FailureNotifier
	Tx            db.Transactor
	StateMachine  *encounter.StateMachine
}

type Pipeline struct {
	encounters encounter.Repository
	orgs       Organizations
	submitter  Submitter
	claims     ClaimAttacher
	notifier   FailureNotifier
	tx         db.Transactor
	sm         *encounter.StateMachine
	logger     zerolog.Logger
}

func NewPipeline(d Deps, logger zerolog.Logger) *Pipeline {
	sm := d.StateMachine
	if sm == nil {
		sm = encounter.NewStateMachine()
	}
	return &Pipeline{
		encounters: d.Encounters,
		orgs:       d.Organizations,
		submitter:  d.Submitter,
		claims:     d.Claims,
		notifier:   d.Notifier,
		tx:         d.Tx,
		sm:         sm,
		logger:     logger.With().Str("component", "submission").Logger(),
	}
}

// Run submits the submittable subset of ids as one batch. Encounters not in
// ready_to_submit, or already cascaded, are skipped, so a repeated run is a
// no-op. Per-encounter failures are returned in Results; an error is
// returned only when the batch could not be attempted.
func (p *Pipeline) Run(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) (*Results, error) {
	log := p.logger.With().Str("organization_id", organizationID.String()).Logger()
	results := &Results{OrganizationID: organizationID, Successful: []uuid.UUID{}, Failed: []Failure{}}

	encs, err := p.encounters.ListSubmittable(ctx, organizationID, ids)
	if err != nil {
		return nil, fmt.Errorf("list submittable encounters: %w", err)
	}
	if len(encs) == 0 {
		log.Info().Int("requested", len(ids)).Msg("no submittable encounters")
		return results, nil
	}

	org, err := p.orgs.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("get organization %s: %w", organizationID, err)
	}

	queued := p.queue(ctx, log, encs, results)
	if len(queued) == 0 {
		p.notify(ctx, org, results)
		return results, nil
	}

	res, err := p.submitter.Submit(ctx, queued, org)
	if res != nil && res.EDIFilePath != "" {
		defer func(path string) {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Warn().Err(rmErr).Str("path", path).Msg("remove edi file")
			}
		}(res.EDIFilePath)
	}
	if err != nil {
		p.release(ctx, log, queued)
		return nil, fmt.Errorf("submit batch: %w", err)
	}
	results.Filename = res.Filename
	results.RemotePath = res.RemotePath

	if !res.FileProduced() {
		msg := res.Error
		if msg == "" {
			msg = "EDI file was not produced"
		}
		log.Error().Str("error", msg).Int("encounters", len(queued)).Msg("batch file not produced")
		p.release(ctx, log, queued)
		for _, e := range queued {
			results.Failed = append(results.Failed, newFailure(e, msg))
		}
		p.notify(ctx, org, results)
		return results, nil
	}

	var sent []*encounter.Encounter
	for _, e := range queued {
		next, err := p.markSent(ctx, e, res)
		if err != nil {
			log.Error().Err(err).Str("encounter_id", e.ID.String()).Msg("mark encounter sent")
			results.Failed = append(results.Failed, newFailure(e, err.Error()))
			p.release(ctx, log, []*encounter.Encounter{e})
			continue
		}
		sent = append(sent, next)
	}

	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "clearinghouse rejected the batch"
		}
		log.Error().Str("error", msg).Str("filename", res.Filename).Msg("remote submission failed")
		for _, e := range sent {
			results.Failed = append(results.Failed, newFailure(e, msg))
		}
		p.notify(ctx, org, results)
		return results, nil
	}

	for _, e := range sent {
		if err := p.cascade(ctx, e); err != nil {
			log.Error().Err(err).Str("encounter_id", e.ID.String()).Msg("cascade encounter")
			results.Failed = append(results.Failed, newFailure(e, err.Error()))
			continue
		}
		results.Successful = append(results.Successful, e.ID)
	}

	log.Info().
		Str("filename", res.Filename).
		Str("remote_path", res.RemotePath).
		Int("successful", len(results.Successful)).
		Int("failed", len(results.Failed)).
		Msg("batch submitted")

	p.notify(ctx, org, results)
	return results, nil
}

// queue marks every encounter queued_for_billing before any I/O. An
// encounter that cannot be queued is recorded as failed and left out of
// the batch. One claimed by a concurrent run is dropped silently.
func (p *Pipeline) queue(ctx context.Context, log zerolog.Logger, encs []*encounter.Encounter, results *Results) []*encounter.Encounter {
	var queued []*encounter.Encounter
	for _, e := range encs {
		next, err := p.move(ctx, e, encounter.StatusQueuedForBilling, encounter.Evidence{})
		if errors.Is(err, encounter.ErrStaleState) {
			log.Info().Str("encounter_id", e.ID.String()).Msg("encounter taken by another run")
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("encounter_id", e.ID.String()).Msg("queue encounter")
			results.Failed = append(results.Failed, newFailure(e, err.Error()))
			continue
		}
		queued = append(queued, next)
	}
	return queued
}

// release returns queued encounters to ready_to_submit when they did not
// make it into a produced batch.
func (p *Pipeline) release(ctx context.Context, log zerolog.Logger, encs []*encounter.Encounter) {
	for _, e := range encs {
		if _, err := p.move(ctx, e, encounter.StatusReadyToSubmit, encounter.Evidence{}); err != nil {
			log.Error().Err(err).Str("encounter_id", e.ID.String()).Msg("release encounter")
		}
	}
}

func (p *Pipeline) move(ctx context.Context, e *encounter.Encounter, to encounter.Status, ev encounter.Evidence) (*encounter.Encounter, error) {
	next := e.Clone()
	if err := p.sm.Transition(next, to, ev); err != nil {
		return nil, err
	}
	if err := p.encounters.UpdateState(ctx, next, e.Status); err != nil {
		return nil, fmt.Errorf("update encounter: %w", err)
	}
	return next, nil
}

// markSent moves one encounter to sent and attaches the batch file to its
// claim, atomically.
func (p *Pipeline) markSent(ctx context.Context, e *encounter.Encounter, res *Result) (*encounter.Encounter, error) {
	var out *encounter.Encounter
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := p.claims.FindOrCreate(ctx, e.ID)
		if err != nil {
			return err
		}
		next := e.Clone()
		next.ClaimID = &c.ID
		if err := p.sm.Transition(next, encounter.StatusSent, encounter.Evidence{EDIFilePath: res.EDIFilePath}); err != nil {
			return err
		}
		if err := p.encounters.UpdateState(ctx, next, e.Status); err != nil {
			return fmt.Errorf("update encounter: %w", err)
		}
		if err := p.claims.Attach(ctx, c, res.EDIFilePath, res.Filename, "text/plain"); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (p *Pipeline) cascade(ctx context.Context, e *encounter.Encounter) error {
	return p.tx.WithinTx(ctx, func(ctx context.Context) error {
		next := e.Clone()
		if err := p.sm.Cascade(next, encounter.Evidence{SubmissionAccepted: true}); err != nil {
			return err
		}
		if err := p.encounters.UpdateState(ctx, next, e.Status); err != nil {
			return fmt.Errorf("update encounter: %w", err)
		}
		return nil
	})
}

// notify reports failures without affecting the run's outcome.
func (p *Pipeline) notify(ctx context.Context, org *reference.Organization, results *Results) {
	if len(results.Failed) == 0 || p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyFailures(ctx, org, results); err != nil {
		p.logger.Error().Err(err).Str("organization_id", org.ID.String()).Msg("send submission failure notification")
	}
}
