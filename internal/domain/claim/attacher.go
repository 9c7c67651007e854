package claim

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/platform/blobstore"
)

// Attacher links encounters to their Claim and the EDI batch file.
type Attacher struct {
	repo   Repository
	blobs  blobstore.BlobStore
	logger zerolog.Logger
}

func NewAttacher(repo Repository, blobs blobstore.BlobStore, logger zerolog.Logger) *Attacher {
	return &Attacher{
		repo:   repo,
		blobs:  blobs,
		logger: logger.With().Str("component", "claim-attacher").Logger(),
	}
}

// FindOrCreate returns the encounter's claim, creating it when absent.
func (a *Attacher) FindOrCreate(ctx context.Context, encounterID uuid.UUID) (*Claim, error) {
	c, err := a.repo.GetByEncounter(ctx, encounterID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get claim for encounter %s: %w", encounterID, err)
	}

	c = &Claim{EncounterID: encounterID, Status: StatusSubmitted}
	if err := a.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create claim for encounter %s: %w", encounterID, err)
	}
	return c, nil
}

// Attach uploads the file at filePath and records it on the claim. It is a
// no-op when the claim already has a file.
func (a *Attacher) Attach(ctx context.Context, c *Claim, filePath, filename, contentType string) error {
	if c.HasFile() {
		return nil
	}
	if contentType == "" {
		contentType = "text/plain"
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open edi file: %w", err)
	}
	defer f.Close()

	meta, err := a.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    filename,
		ContentType: contentType,
		Category:    blobstore.CategoryClaimEDI,
		OwnerID:     c.ID.String(),
	}, f)
	if err != nil {
		return fmt.Errorf("upload edi file: %w", err)
	}

	attached, err := a.repo.AttachFile(ctx, c.ID, meta.ID, filename)
	if err != nil {
		_ = a.blobs.Delete(ctx, meta.ID)
		return fmt.Errorf("attach edi file to claim %s: %w", c.ID, err)
	}
	if !attached {
		// Another run attached first.
		_ = a.blobs.Delete(ctx, meta.ID)
		a.logger.Debug().Str("claim_id", c.ID.String()).Msg("claim already has an edi file")
		return nil
	}

	c.EDIFile = &meta.ID
	c.EDIFilename = &filename
	return nil
}
