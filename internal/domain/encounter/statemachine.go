package encounter

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is matched by every InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid encounter status transition")

// InvalidTransitionError reports a move outside the status graph or a move
// whose guard was not satisfied. The encounter is never modified.
type InvalidTransitionError struct {
	EncounterID uuid.UUID
	From        Status
	To          Status
	Reason      string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("encounter %s: cannot transition from %s to %s", e.EncounterID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Evidence carries the physical events that gate guarded transitions.
type Evidence struct {
	// EDIFilePath is the durably written batch file containing the encounter.
	EDIFilePath string
	// SubmissionAccepted is set when the clearinghouse acknowledged the batch.
	SubmissionAccepted bool
	// PaymentConfirmed is set when a remittance posted a successful payment.
	PaymentConfirmed bool
}

var transitions = map[Status][]Status{
	StatusDraft:          {StatusReadyForReview, StatusCancelled},
	StatusReadyForReview: {StatusReviewed, StatusCancelled},
	StatusReviewed:       {StatusReadyToSubmit, StatusCancelled},
	StatusReadyToSubmit:  {StatusQueuedForBilling, StatusSent, StatusCancelled},
	// ready_to_submit releases encounters that did not make it into a batch file.
	StatusQueuedForBilling:   {StatusSent, StatusReadyToSubmit, StatusCancelled},
	StatusSent:               {StatusCompletedConfirmed, StatusDenied, StatusVoided},
	StatusCompletedConfirmed: {StatusDenied, StatusVoided},
	StatusDenied:             {StatusVoided},
}

// StateMachine enforces the encounter billing graph.
type StateMachine struct {
	fileExists func(path string) bool
	now        func() time.Time
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		fileExists: func(path string) bool {
			info, err := os.Stat(path)
			return err == nil && !info.IsDir()
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Allowed reports whether to is an edge out of from.
func Allowed(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no edge leaves s.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Transition moves e to the target status if the edge exists and its guard
// holds. On error e is left unmodified.
func (m *StateMachine) Transition(e *Encounter, to Status, ev Evidence) error {
	if err := m.check(e, to, ev); err != nil {
		return err
	}
	e.Status = to
	return nil
}

// Cascade finalizes a sent encounter after the clearinghouse accepted its
// batch: completed_confirmed, cascaded, and the channel display marker.
func (m *StateMachine) Cascade(e *Encounter, ev Evidence) error {
	if !ev.SubmissionAccepted {
		return &InvalidTransitionError{EncounterID: e.ID, From: e.Status, To: StatusCompletedConfirmed, Reason: "submission not accepted"}
	}
	if err := m.check(e, StatusCompletedConfirmed, ev); err != nil {
		return err
	}
	now := m.now()
	marker := e.BillingChannel.CascadeMarker()
	e.Status = StatusCompletedConfirmed
	e.Cascaded = true
	e.CascadedAt = &now
	e.DisplayStatus = &marker
	return nil
}

func (m *StateMachine) check(e *Encounter, to Status, ev Evidence) error {
	invalid := func(reason string) error {
		return &InvalidTransitionError{EncounterID: e.ID, From: e.Status, To: to, Reason: reason}
	}

	if e.Cascaded {
		return invalid("encounter is already cascaded")
	}
	if !Allowed(e.Status, to) {
		return invalid("")
	}

	switch {
	case to == StatusSent:
		if ev.EDIFilePath == "" || !m.fileExists(ev.EDIFilePath) {
			return invalid("EDI file has not been written")
		}
	case e.Status == StatusSent && to == StatusCompletedConfirmed:
		if !ev.SubmissionAccepted && !ev.PaymentConfirmed {
			return invalid("neither submission acceptance nor payment confirmation present")
		}
	}
	return nil
}
