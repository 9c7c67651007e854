package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/rcm/internal/domain/encounter"
)

type mockFinder struct {
	byPatient map[uuid.UUID][]*encounter.Encounter
}

func (f *mockFinder) FindByPatientAndDate(_ context.Context, patientID uuid.UUID, dos time.Time) ([]*encounter.Encounter, error) {
	var out []*encounter.Encounter
	for _, e := range f.byPatient[patientID] {
		if e.DateOfService.Equal(dos) {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockConfirmer struct {
	confirmed []uuid.UUID
}

func (c *mockConfirmer) ConfirmPayment(_ context.Context, id uuid.UUID) (bool, error) {
	c.confirmed = append(c.confirmed, id)
	return true, nil
}

func TestEncounterMatcher(t *testing.T) {
	patient := uuid.New()
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	other := day.AddDate(0, 0, 1)
	single := &encounter.Encounter{ID: uuid.New(), PatientID: patient, DateOfService: day}
	dupA := &encounter.Encounter{ID: uuid.New(), PatientID: patient, DateOfService: other}
	dupB := &encounter.Encounter{ID: uuid.New(), PatientID: patient, DateOfService: other}

	finder := &mockFinder{byPatient: map[uuid.UUID][]*encounter.Encounter{
		patient: {single, dupA, dupB},
	}}
	confirmer := &mockConfirmer{}
	m := NewEncounterMatcher(finder, confirmer)
	ctx := context.Background()

	got, err := m.Match(ctx, patient, day, false)
	if err != nil || got.ID != single.ID {
		t.Fatalf("expected %s, got %v, %v", single.ID, got, err)
	}
	if len(confirmer.confirmed) != 0 {
		t.Error("encounter confirmed without being asked")
	}

	if _, err := m.Match(ctx, patient, day, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(confirmer.confirmed) != 1 || confirmer.confirmed[0] != single.ID {
		t.Errorf("expected %s confirmed, got %v", single.ID, confirmer.confirmed)
	}

	var me *MatchError
	_, err = m.Match(ctx, patient, other, true)
	if !errors.As(err, &me) || me.Kind != KindMultipleEncounters {
		t.Fatalf("expected multiple-encounters, got %v", err)
	}
	if len(me.Candidates) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(me.Candidates))
	}

	_, err = m.Match(ctx, patient, day.AddDate(0, 1, 0), false)
	if !errors.As(err, &me) || me.Kind != KindEncounterNotFound {
		t.Fatalf("expected encounter-not-found, got %v", err)
	}
	if len(confirmer.confirmed) != 1 {
		t.Error("failed matches must not confirm")
	}
}
