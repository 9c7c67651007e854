package matching

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies why a remittance row could not be reconciled.
type Kind string

const (
	KindAmbiguousName         Kind = "ambiguous-name"
	KindFuzzyAmbiguity        Kind = "fuzzy-ambiguity"
	KindNotFound              Kind = "not-found"
	KindMissingField          Kind = "missing-field"
	KindDateMismatch          Kind = "date-mismatch"
	KindInvalidDate           Kind = "invalid-date"
	KindMultipleEncounters    Kind = "multiple-encounters"
	KindEncounterNotFound     Kind = "encounter-not-found"
	KindProcedureCodeNotFound Kind = "procedure-code-not-found"
	KindOrganizationNotFound  Kind = "organization-not-found"
)

// MatchError is a row-scoped reconciliation failure. It is recorded and
// the row skipped; it never aborts an ingestion run.
type MatchError struct {
	Kind       Kind
	Reason     string
	Suggestion string
	Candidates []uuid.UUID
}

func (e *MatchError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	ids := make([]string, len(e.Candidates))
	for i, id := range e.Candidates {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%s: %s (candidates: %s)", e.Kind, e.Reason, strings.Join(ids, ", "))
}

// SuggestedFix returns the operator-facing remedy written to error reports.
func (e *MatchError) SuggestedFix() string {
	if e.Suggestion != "" {
		return e.Suggestion
	}
	return defaultSuggestions[e.Kind]
}

var defaultSuggestions = map[Kind]string{
	KindAmbiguousName:         "Several patients share this name; correct the duplicate patient records or post this payment manually",
	KindFuzzyAmbiguity:        "Only similar names were found; verify the patient name spelling in the remittance",
	KindNotFound:              "Check the patient name or create the patient before re-uploading",
	KindMissingField:          "Fill in the missing column and re-upload the row",
	KindDateMismatch:          "Split multi-day services into one row per date of service",
	KindInvalidDate:           "Use MM/DD/YYYY or YYYY-MM-DD dates and re-upload the row",
	KindMultipleEncounters:    "Several encounters exist on this date; post this payment manually",
	KindEncounterNotFound:     "Check the service date or create the encounter before re-uploading",
	KindProcedureCodeNotFound: "Check the procedure code or add it to the procedure code list",
	KindOrganizationNotFound:  "Check the remit account name against the organization list",
}

func newError(kind Kind, reason string, candidates ...uuid.UUID) *MatchError {
	return &MatchError{Kind: kind, Reason: reason, Candidates: candidates}
}

// MissingField reports a required remittance column left blank.
func MissingField(column string) *MatchError {
	return newError(KindMissingField, fmt.Sprintf("%s is blank", column))
}

// DateMismatch reports a row whose service span covers more than one day.
func DateMismatch(from, to string) *MatchError {
	return newError(KindDateMismatch, fmt.Sprintf("service from date %s does not match service to date %s", from, to))
}

// InvalidDate reports a date column that is filled in but unreadable.
func InvalidDate(column, value string) *MatchError {
	return newError(KindInvalidDate, fmt.Sprintf("%s %q is not a valid date", column, value))
}

func ProcedureCodeNotFound(code string) *MatchError {
	return newError(KindProcedureCodeNotFound, fmt.Sprintf("procedure code %q not found", code))
}

func OrganizationNotFound(name string, matches int) *MatchError {
	if matches > 1 {
		return &MatchError{
			Kind:       KindOrganizationNotFound,
			Reason:     fmt.Sprintf("%d organizations named %q", matches, name),
			Suggestion: "Rename one of the duplicate organizations so the remit account is unique",
		}
	}
	return newError(KindOrganizationNotFound, fmt.Sprintf("organization %q not found", name))
}
