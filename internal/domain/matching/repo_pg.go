package matching

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/rcm/internal/platform/db"
)

type patientDirectoryPG struct {
	pool *pgxpool.Pool
}

// NewPatientDirectoryPG lists kept patients across every organization;
// a remittance file may cover several.
func NewPatientDirectoryPG(pool *pgxpool.Pool) PatientDirectory {
	return &patientDirectoryPG{pool: pool}
}

func (r *patientDirectoryPG) ListActivePatients(ctx context.Context) ([]Patient, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT id, first_name, last_name FROM patients WHERE discarded_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

