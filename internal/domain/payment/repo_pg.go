package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/rcm/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) CreateIfAbsent(ctx context.Context, p *Payment) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO payments (id, organization_id, payer_id, encounter_id, procedure_code_id,
			payment_date, amount_total, remit_reference, source_hash, payment_status,
			payment_method, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, NULLIF($12, ''))
		ON CONFLICT (source_hash) DO NOTHING`,
		p.ID, p.OrganizationID, p.PayerID, p.EncounterID, p.ProcedureCodeID,
		p.PaymentDate.Format("2006-01-02"), p.AmountTotal, p.RemitReference, p.SourceHash,
		string(p.PaymentStatus), p.PaymentMethod, p.Notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
