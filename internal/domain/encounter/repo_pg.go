package encounter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/rcm/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const encounterCols = `e.id, e.organization_id, e.patient_id, e.provider_id, e.date_of_service,
	e.billing_channel, e.status, e.display_status, e.total_charge, e.cascaded, e.cascaded_at,
	e.claim_id, e.patient_insurance_coverage_id, e.created_at, e.updated_at,
	p.first_name, p.last_name, c.payer_id, COALESCE(c.member_id, ''),
	COALESCE(py.name, ''), COALESCE(py.payer_code, '')`

const encounterFrom = ` FROM encounters e
	JOIN patients p ON p.id = e.patient_id
	LEFT JOIN patient_insurance_coverages c ON c.id = e.patient_insurance_coverage_id
	LEFT JOIN payers py ON py.id = c.payer_id`

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	var status, channel string
	err := row.Scan(&e.ID, &e.OrganizationID, &e.PatientID, &e.ProviderID, &e.DateOfService,
		&channel, &status, &e.DisplayStatus, &e.TotalCharge, &e.Cascaded, &e.CascadedAt,
		&e.ClaimID, &e.PatientInsuranceCoverageID, &e.CreatedAt, &e.UpdatedAt,
		&e.PatientFirstName, &e.PatientLastName, &e.PayerID, &e.MemberID,
		&e.PayerName, &e.PayerCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.Status = Status(status)
	e.BillingChannel = BillingChannel(channel)
	return &e, nil
}

func collect(rows pgx.Rows) ([]*Encounter, error) {
	defer rows.Close()
	var items []*Encounter
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return scanEncounter(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+encounterCols+encounterFrom+` WHERE e.id = $1`, id))
}

func (r *repoPG) ListSubmittable(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]*Encounter, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+encounterCols+encounterFrom+`
		WHERE e.organization_id = $1 AND e.id = ANY($2)
		  AND e.status = $3 AND NOT e.cascaded AND e.discarded_at IS NULL
		ORDER BY e.date_of_service, e.id`,
		organizationID, ids, string(StatusReadyToSubmit))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) FindByPatientAndDate(ctx context.Context, patientID uuid.UUID, dateOfService time.Time) ([]*Encounter, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+encounterCols+encounterFrom+`
		WHERE e.patient_id = $1 AND e.date_of_service = $2 AND e.discarded_at IS NULL`,
		patientID, dateOfService.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) UpdateState(ctx context.Context, e *Encounter, from Status) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `
		UPDATE encounters SET status=$2, display_status=$3, cascaded=$4, cascaded_at=$5,
			claim_id=$6, updated_at=NOW()
		WHERE id = $1 AND status = $7 AND NOT cascaded`,
		e.ID, string(e.Status), e.DisplayStatus, e.Cascaded, e.CascadedAt, e.ClaimID, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM encounters WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleState
}
