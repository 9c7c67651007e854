package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Smith, John", "John Smith"},
		{"SMITH,JOHN", "John Smith"},
		{"  john   smith ", "John Smith"},
		{"smith, mary  ann", "Mary Ann Smith"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalName(tt.in); got != tt.want {
			t.Errorf("CanonicalName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := NormalizeName("Smith, John"); got != "john smith" {
		t.Errorf("NormalizeName = %q", got)
	}
}

func TestLevenshteinMatcher(t *testing.T) {
	m := LevenshteinMatcher{}
	if got := m.Similarity("john smith", "john smith"); got != 1 {
		t.Errorf("identical names scored %v", got)
	}
	if got := m.Similarity("john smith", "jon smith"); got < DefaultThreshold {
		t.Errorf("one-letter difference scored %v, below threshold", got)
	}
	if got := m.Similarity("john smith", "mary jones"); got >= DefaultThreshold {
		t.Errorf("unrelated names scored %v", got)
	}
	if got := m.Similarity("", ""); got != 1 {
		t.Errorf("empty names scored %v", got)
	}
}

func TestPatientMatcher_ExactPrecedence(t *testing.T) {
	john, jon := uuid.New(), uuid.New()
	m := NewPatientMatcher([]Patient{
		{ID: john, FirstName: "John", LastName: "Smith"},
		{ID: jon, FirstName: "Jon", LastName: "Smith"},
	}, nil)

	got, err := m.Match("Smith, John")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != john {
		t.Errorf("expected exact match %s, got %s", john, got)
	}
}

func TestPatientMatcher_AmbiguousExact(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	m := NewPatientMatcher([]Patient{
		{ID: a, FirstName: "John", LastName: "Smith"},
		{ID: b, FirstName: "john", LastName: "SMITH"},
	}, nil)

	got, err := m.Match("Smith, John")
	var me *MatchError
	if !errors.As(err, &me) {
		t.Fatalf("expected MatchError, got %v", err)
	}
	if me.Kind != KindAmbiguousName {
		t.Errorf("expected ambiguous-name, got %s", me.Kind)
	}
	if len(me.Candidates) != 2 || me.Candidates[0] != a || me.Candidates[1] != b {
		t.Errorf("expected both candidates, got %v", me.Candidates)
	}
	if got != uuid.Nil {
		t.Errorf("expected no patient selected, got %s", got)
	}
}

func TestPatientMatcher_FuzzyNeverSelected(t *testing.T) {
	jon := uuid.New()
	m := NewPatientMatcher([]Patient{{ID: jon, FirstName: "Jon", LastName: "Smith"}}, nil)

	_, err := m.Match("John Smith")
	var me *MatchError
	if !errors.As(err, &me) || me.Kind != KindFuzzyAmbiguity {
		t.Fatalf("expected fuzzy-ambiguity, got %v", err)
	}
	if len(me.Candidates) != 1 || me.Candidates[0] != jon {
		t.Errorf("unexpected candidates %v", me.Candidates)
	}
}

func TestPatientMatcher_NotFoundAndBlank(t *testing.T) {
	m := NewPatientMatcher([]Patient{{ID: uuid.New(), FirstName: "John", LastName: "Smith"}}, nil)

	_, err := m.Match("Doe, Jane")
	var me *MatchError
	if !errors.As(err, &me) || me.Kind != KindNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
	if me.SuggestedFix() == "" {
		t.Error("expected a suggested fix")
	}

	_, err = m.Match("   ")
	if !errors.As(err, &me) || me.Kind != KindMissingField {
		t.Fatalf("expected missing-field, got %v", err)
	}
}

type stubMatcher struct{ score float64 }

func (s stubMatcher) Similarity(a, b string) float64 { return s.score }

func TestPatientMatcher_SwappableScorer(t *testing.T) {
	m := NewPatientMatcher([]Patient{{ID: uuid.New(), FirstName: "Ann", LastName: "Lee"}}, stubMatcher{score: 0.5})
	m.WithThreshold(0.4)

	_, err := m.Match("Bob Stone")
	var me *MatchError
	if !errors.As(err, &me) || me.Kind != KindFuzzyAmbiguity {
		t.Fatalf("expected custom scorer to report fuzzy-ambiguity, got %v", err)
	}
}

type mockDirectory struct {
	patients []Patient
	calls    int
}

func (d *mockDirectory) ListActivePatients(context.Context) ([]Patient, error) {
	d.calls++
	return d.patients, nil
}

func TestLoadPatientMatcher(t *testing.T) {
	id := uuid.New()
	dir := &mockDirectory{patients: []Patient{{ID: id, FirstName: "Maria", LastName: "Garcia"}}}

	m, err := LoadPatientMatcher(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 3; i++ {
		if got, err := m.Match("Garcia, Maria"); err != nil || got != id {
			t.Fatalf("match %d: got %s, %v", i, got, err)
		}
	}
	if dir.calls != 1 {
		t.Errorf("expected directory loaded once, got %d", dir.calls)
	}
}
