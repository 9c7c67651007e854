package claim

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/rcm/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const claimCols = `id, encounter_id, edi_file, edi_filename, status, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.EncounterID, &c.EDIFile, &c.EDIFilename, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return scanClaim(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claims WHERE id = $1`, id))
}

func (r *repoPG) GetByEncounter(ctx context.Context, encounterID uuid.UUID) (*Claim, error) {
	return scanClaim(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claims WHERE encounter_id = $1`, encounterID))
}

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusSubmitted
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO claims (id, encounter_id, status)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		c.ID, c.EncounterID, c.Status).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) AttachFile(ctx context.Context, id uuid.UUID, blobID, filename string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE claims SET edi_file = $2, edi_filename = $3, updated_at = NOW()
		WHERE id = $1 AND (edi_file IS NULL OR edi_file = '')`,
		id, blobID, filename)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
