// Package worker binds queued jobs to the billing pipelines.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/domain/remittance"
	"github.com/ehr/rcm/internal/domain/submission"
	"github.com/ehr/rcm/internal/platform/blobstore"
	"github.com/ehr/rcm/internal/platform/jobs"
)

// Ingester runs one remittance ingestion. It owns and removes path.
type Ingester interface {
	Ingest(ctx context.Context, jobID uuid.UUID, path, uploaderEmail string) (*remittance.IngestionContext, error)
}

// BatchRunner runs one submission batch.
type BatchRunner interface {
	Run(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) (*submission.Results, error)
}

type Worker struct {
	blobs     blobstore.BlobStore
	ingester  Ingester
	submitter BatchRunner
	workDir   string
	logger    zerolog.Logger
}

func New(blobs blobstore.BlobStore, ingester Ingester, submitter BatchRunner, workDir string, logger zerolog.Logger) *Worker {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Worker{
		blobs:     blobs,
		ingester:  ingester,
		submitter: submitter,
		workDir:   workDir,
		logger:    logger.With().Str("component", "worker").Logger(),
	}
}

// Register installs the job handlers on r.
func (w *Worker) Register(r *jobs.Router) {
	r.Handle(jobs.TypeRemittanceIngest, w.HandleRemittance)
	r.Handle(jobs.TypeEncounterSubmission, w.HandleSubmission)
}

// HandleRemittance downloads the uploaded file into a job-scoped directory,
// ingests it and deletes the upload once the run completed. The upload is
// also deleted when a failure drops the job.
func (w *Worker) HandleRemittance(ctx context.Context, job jobs.Job) error {
	var p jobs.RemittancePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return jobs.Permanent(fmt.Errorf("decode remittance payload: %w", err))
	}
	log := w.logger.With().Str("job_id", job.ID.String()).Str("blob_id", p.BlobID).Logger()

	err := w.ingest(ctx, job, p, log)
	if err != nil && (errors.Is(err, jobs.ErrPermanent) || jobs.FinalAttempt(ctx)) {
		log.Error().Err(err).Msg("remittance job dropped, discarding upload")
		w.deleteUpload(ctx, p.BlobID, log)
	}
	return err
}

func (w *Worker) ingest(ctx context.Context, job jobs.Job, p jobs.RemittancePayload, log zerolog.Logger) error {
	dir, err := os.MkdirTemp(w.workDir, "remit-")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path, err := w.download(ctx, p, dir)
	if err != nil {
		return err
	}

	ictx, err := w.ingester.Ingest(ctx, job.ID, path, p.UploaderEmail)
	if err != nil {
		if errors.Is(err, remittance.ErrUnsupportedFormat) {
			return jobs.Permanent(err)
		}
		return err
	}

	w.deleteUpload(ctx, p.BlobID, log)
	log.Info().
		Int("rows", ictx.Stats.Rows).
		Int("errors", len(ictx.Errors)).
		Int("payments_created", ictx.Stats.PaymentsCreated).
		Msg("remittance job complete")
	return nil
}

func (w *Worker) deleteUpload(ctx context.Context, blobID string, log zerolog.Logger) {
	if err := w.blobs.Delete(ctx, blobID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		log.Warn().Err(err).Msg("delete remittance upload")
	}
}

func (w *Worker) download(ctx context.Context, p jobs.RemittancePayload, dir string) (string, error) {
	rc, meta, err := w.blobs.Download(ctx, p.BlobID)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return "", jobs.Permanent(fmt.Errorf("remittance upload %s: %w", p.BlobID, err))
		}
		return "", fmt.Errorf("download remittance upload: %w", err)
	}
	defer rc.Close()

	name := p.FileName
	if name == "" {
		name = meta.FileName
	}
	path := filepath.Join(dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create remittance file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("write remittance file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close remittance file: %w", err)
	}
	return path, nil
}

// HandleSubmission runs one batch. Per-encounter failures are reported by
// the pipeline itself and do not fail the job.
func (w *Worker) HandleSubmission(ctx context.Context, job jobs.Job) error {
	var p jobs.SubmissionPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return jobs.Permanent(fmt.Errorf("decode submission payload: %w", err))
	}
	if p.OrganizationID == uuid.Nil || len(p.EncounterIDs) == 0 {
		return jobs.Permanent(errors.New("submission payload needs organization_id and encounter_ids"))
	}

	results, err := w.submitter.Run(ctx, p.OrganizationID, p.EncounterIDs)
	if err != nil {
		return err
	}
	w.logger.Info().
		Str("job_id", job.ID.String()).
		Str("organization_id", p.OrganizationID.String()).
		Int("successful", len(results.Successful)).
		Int("failed", len(results.Failed)).
		Msg("submission job complete")
	return nil
}
