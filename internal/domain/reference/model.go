// Package reference reads the reference data the billing engine consumes
// but never writes: organizations, procedure codes and administrators.
package reference

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("reference record not found")

type Organization struct {
	ID           uuid.UUID
	Name         string
	NPI          string
	TaxID        string
	BillingEmail string
}

type ProcedureCode struct {
	ID   uuid.UUID
	Code string
}

type Repository interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	// FindOrganizationsByName matches name case-insensitively.
	FindOrganizationsByName(ctx context.Context, name string) ([]Organization, error)
	FindProcedureCode(ctx context.Context, code string) (*ProcedureCode, error)
	SuperAdminEmails(ctx context.Context) ([]string, error)
}
