package claim

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("claim not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	GetByEncounter(ctx context.Context, encounterID uuid.UUID) (*Claim, error)
	Create(ctx context.Context, c *Claim) error
	// AttachFile sets the EDI artifact only if none is attached yet and
	// reports whether it did.
	AttachFile(ctx context.Context, id uuid.UUID, blobID, filename string) (bool, error)
}
