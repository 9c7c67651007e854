package encounter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("encounter not found")

// ErrStaleState is returned by UpdateState when the stored encounter is no
// longer in the expected prior status, or has already been cascaded.
var ErrStaleState = errors.New("encounter state changed concurrently")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	// ListSubmittable returns the subset of ids in ready_to_submit that are
	// not cascaded and belong to the organization.
	ListSubmittable(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]*Encounter, error)
	// FindByPatientAndDate returns kept encounters for a patient on a date.
	FindByPatientAndDate(ctx context.Context, patientID uuid.UUID, dateOfService time.Time) ([]*Encounter, error)
	// UpdateState persists status, display status, cascade fields and claim
	// id, provided the stored row is still in status from and not cascaded.
	UpdateState(ctx context.Context, e *Encounter, from Status) error
}
