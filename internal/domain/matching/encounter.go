package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/rcm/internal/domain/encounter"
)

// EncounterFinder lists kept encounters of a patient on one date of service.
type EncounterFinder interface {
	FindByPatientAndDate(ctx context.Context, patientID uuid.UUID, dateOfService time.Time) ([]*encounter.Encounter, error)
}

// Confirmer advances a matched encounter to completed_confirmed.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, id uuid.UUID) (bool, error)
}

type EncounterMatcher struct {
	finder  EncounterFinder
	confirm Confirmer
}

// NewEncounterMatcher builds a matcher. confirm may be nil when callers
// never ask for confirmation on match.
func NewEncounterMatcher(finder EncounterFinder, confirm Confirmer) *EncounterMatcher {
	return &EncounterMatcher{finder: finder, confirm: confirm}
}

// Match finds exactly one encounter for the patient on dateOfService.
// Zero or several encounters are a *MatchError; ambiguous dates are never
// resolved. Lookup failures are returned unwrapped from *MatchError.
func (m *EncounterMatcher) Match(ctx context.Context, patientID uuid.UUID, dateOfService time.Time, markConfirmed bool) (*encounter.Encounter, error) {
	encs, err := m.finder.FindByPatientAndDate(ctx, patientID, dateOfService)
	if err != nil {
		return nil, fmt.Errorf("find encounters for patient %s: %w", patientID, err)
	}

	day := dateOfService.Format("2006-01-02")
	switch len(encs) {
	case 0:
		return nil, newError(KindEncounterNotFound, fmt.Sprintf("no encounter on %s for the matched patient", day))
	case 1:
	default:
		ids := make([]uuid.UUID, len(encs))
		for i, e := range encs {
			ids[i] = e.ID
		}
		return nil, newError(KindMultipleEncounters, fmt.Sprintf("%d encounters on %s for the matched patient", len(encs), day), ids...)
	}

	enc := encs[0]
	if markConfirmed && m.confirm != nil {
		if _, err := m.confirm.ConfirmPayment(ctx, enc.ID); err != nil {
			return nil, fmt.Errorf("confirm encounter %s: %w", enc.ID, err)
		}
	}
	return enc, nil
}
