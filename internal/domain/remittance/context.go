package remittance

import (
	"github.com/google/uuid"

	"github.com/ehr/rcm/internal/domain/matching"
)

// RowError is one rejected input row.
type RowError struct {
	Line int
	Err  *matching.MatchError
	Row  Row
}

// PersistenceFailure is a reconciled record that could not be saved or
// whose encounter could not be advanced.
type PersistenceFailure struct {
	Lines       []int
	EncounterID uuid.UUID
	Stage       string
	Err         error
}

type Stats struct {
	Rows                int
	ValidRows           int
	RejectedRows        int
	PaymentsCreated     int
	PaymentsDuplicate   int
	PersistenceFailures int
	EncountersConfirmed int
}

// IngestionContext accumulates the outcome of one ingestion run. It is
// created per job, threaded through every stage and returned to the caller.
type IngestionContext struct {
	JobID    uuid.UUID
	FileName string
	Line     int
	Errors   []RowError
	Valid    []ValidRow
	Failures []PersistenceFailure
	Stats    Stats
}

func NewIngestionContext(jobID uuid.UUID, fileName string) *IngestionContext {
	// The header is line 1.
	return &IngestionContext{JobID: jobID, FileName: fileName, Line: 1}
}

func (c *IngestionContext) advance() int {
	c.Line++
	c.Stats.Rows++
	return c.Line
}

func (c *IngestionContext) reject(line int, row Row, err *matching.MatchError) {
	c.Errors = append(c.Errors, RowError{Line: line, Err: err, Row: row})
	c.Stats.RejectedRows++
}

func (c *IngestionContext) accept(v ValidRow) {
	c.Valid = append(c.Valid, v)
	c.Stats.ValidRows++
}

func (c *IngestionContext) fail(f PersistenceFailure) {
	c.Failures = append(c.Failures, f)
	c.Stats.PersistenceFailures++
}
