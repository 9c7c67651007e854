package reference

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/rcm/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const orgCols = `id, name, COALESCE(npi, ''), COALESCE(tax_id, ''), COALESCE(billing_email, '')`

func (r *repoPG) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var o Organization
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+orgCols+` FROM organizations WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.NPI, &o.TaxID, &o.BillingEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repoPG) FindOrganizationsByName(ctx context.Context, name string) ([]Organization, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+orgCols+` FROM organizations WHERE LOWER(name) = LOWER($1) ORDER BY id`,
		strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.NPI, &o.TaxID, &o.BillingEmail); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *repoPG) FindProcedureCode(ctx context.Context, code string) (*ProcedureCode, error) {
	var p ProcedureCode
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, code FROM procedure_codes WHERE code = $1`, strings.TrimSpace(code)).
		Scan(&p.ID, &p.Code)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) SuperAdminEmails(ctx context.Context) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT email FROM users WHERE super_admin AND discarded_at IS NULL ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
