package claim

import (
	"time"

	"github.com/google/uuid"
)

const StatusSubmitted = "submitted"

// Claim is the billed artifact of one encounter. EDIFile is the blob id of
// the batch file the encounter was submitted in.
type Claim struct {
	ID          uuid.UUID `json:"id"`
	EncounterID uuid.UUID `json:"encounter_id"`
	EDIFile     *string   `json:"edi_file,omitempty"`
	EDIFilename *string   `json:"edi_filename,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasFile reports whether an EDI artifact is already attached.
func (c *Claim) HasFile() bool {
	return c.EDIFile != nil && *c.EDIFile != ""
}
