package encounter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	sm   *StateMachine
}

func NewService(repo Repository, sm *StateMachine) *Service {
	if sm == nil {
		sm = NewStateMachine()
	}
	return &Service{repo: repo, sm: sm}
}

func (s *Service) GetEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return s.repo.GetByID(ctx, id)
}

// Transition loads the encounter, applies one guarded move and persists it.
// Upstream clinical workflows use this for draft through ready_to_submit.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status, ev Evidence) (*Encounter, error) {
	enc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := enc.Clone()
	if err := s.sm.Transition(next, to, ev); err != nil {
		return enc, err
	}
	if err := s.repo.UpdateState(ctx, next, enc.Status); err != nil {
		return enc, fmt.Errorf("update encounter %s: %w", id, err)
	}
	return next, nil
}

// ConfirmPayment advances an encounter to completed_confirmed after a
// successful remittance. It reports false when the encounter was already
// confirmed.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID) (bool, error) {
	enc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if enc.Status == StatusCompletedConfirmed {
		return false, nil
	}

	next := enc.Clone()
	if err := s.sm.Transition(next, StatusCompletedConfirmed, Evidence{PaymentConfirmed: true}); err != nil {
		return false, err
	}
	if err := s.repo.UpdateState(ctx, next, enc.Status); err != nil {
		return false, fmt.Errorf("update encounter %s: %w", id, err)
	}
	return true, nil
}
