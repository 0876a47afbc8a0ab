package labtest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const labTestCols = `id, patient_id, requested_by, assigned_to, type, status, priority, scheduled_date,
	results, notes, requested_at, completed_at, updated_at`

func scanLabTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	var results []byte
	err := row.Scan(&t.ID, &t.PatientID, &t.RequestedBy, &t.AssignedTo, &t.Type, &t.Status, &t.Priority,
		&t.ScheduledDate, &results, &t.Notes, &t.RequestedAt, &t.CompletedAt, &t.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(results) > 0 {
		t.Results = &Results{}
		if err := json.Unmarshal(results, t.Results); err != nil {
			return nil, fmt.Errorf("decode lab results: %w", err)
		}
	}
	return &t, nil
}

func encodeResults(r *Results) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *repoPG) Create(ctx context.Context, t *LabTest) error {
	t.ID = uuid.New()
	results, err := encodeResults(t.Results)
	if err != nil {
		return err
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO lab_test (id, patient_id, requested_by, assigned_to, type, status, priority, scheduled_date,
			results, notes, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING updated_at`,
		t.ID, t.PatientID, t.RequestedBy, t.AssignedTo, t.Type, t.Status, t.Priority, t.ScheduledDate,
		results, t.Notes, t.RequestedAt).Scan(&t.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return scanLabTest(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+labTestCols+` FROM lab_test WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, t *LabTest) error {
	results, err := encodeResults(t.Results)
	if err != nil {
		return err
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE lab_test SET assigned_to=$2, status=$3, results=$4, notes=$5, completed_at=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.AssignedTo, t.Status, results, t.Notes, t.CompletedAt).Scan(&t.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*LabTest, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*LabTest{}
	for rows.Next() {
		t, err := scanLabTest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*LabTest, error) {
	return r.query(ctx, `SELECT `+labTestCols+` FROM lab_test WHERE patient_id = $1 ORDER BY requested_at DESC`, patientID)
}

func (r *repoPG) ListPending(ctx context.Context) ([]*LabTest, error) {
	return r.query(ctx, `
		SELECT `+labTestCols+` FROM lab_test
		WHERE status IN ('requested', 'in_progress')
		ORDER BY CASE priority WHEN 'stat' THEN 0 WHEN 'urgent' THEN 1 ELSE 2 END, requested_at`)
}
