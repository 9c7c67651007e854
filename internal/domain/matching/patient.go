package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Patient is a kept patient considered for remittance matching.
type Patient struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
}

// PatientDirectory lists the patients a run matches against.
type PatientDirectory interface {
	ListActivePatients(ctx context.Context) ([]Patient, error)
}

type candidate struct {
	id   uuid.UUID
	name string
}

// PatientMatcher resolves free-text remittance names to exactly one patient.
// Exact matches always win; fuzzy matches are reported, never selected.
type PatientMatcher struct {
	names      NameMatcher
	threshold  float64
	candidates []candidate
}

func NewPatientMatcher(patients []Patient, names NameMatcher) *PatientMatcher {
	if names == nil {
		names = LevenshteinMatcher{}
	}
	m := &PatientMatcher{
		names:      names,
		threshold:  DefaultThreshold,
		candidates: make([]candidate, 0, len(patients)),
	}
	for _, p := range patients {
		m.candidates = append(m.candidates, candidate{id: p.ID, name: FullName(p.FirstName, p.LastName)})
	}
	return m
}

// LoadPatientMatcher reads the directory once and builds a matcher over it.
func LoadPatientMatcher(ctx context.Context, dir PatientDirectory, names NameMatcher) (*PatientMatcher, error) {
	patients, err := dir.ListActivePatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return NewPatientMatcher(patients, names), nil
}

// WithThreshold overrides the fuzzy similarity cutoff.
func (m *PatientMatcher) WithThreshold(t float64) *PatientMatcher {
	m.threshold = t
	return m
}

// Match returns the single patient whose name equals raw after
// normalization. Any other outcome is a *MatchError.
func (m *PatientMatcher) Match(raw string) (uuid.UUID, error) {
	name := NormalizeName(raw)
	if name == "" {
		return uuid.Nil, MissingField("Remit Patient Name")
	}

	var exact, fuzzy []uuid.UUID
	for _, c := range m.candidates {
		if c.name == name {
			exact = append(exact, c.id)
			continue
		}
		if m.names.Similarity(name, c.name) >= m.threshold {
			fuzzy = append(fuzzy, c.id)
		}
	}

	display := CanonicalName(raw)
	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return uuid.Nil, newError(KindAmbiguousName,
			fmt.Sprintf("%d patients named %q", len(exact), display), exact...)
	case len(fuzzy) > 0:
		return uuid.Nil, newError(KindFuzzyAmbiguity,
			fmt.Sprintf("no exact match for %q, %d similar patients", display, len(fuzzy)), fuzzy...)
	default:
		return uuid.Nil, newError(KindNotFound, fmt.Sprintf("patient %q not found", display))
	}
}
