package ward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const (
	wardCols       = `id, name, type, floor, capacity, current_occupancy, assigned_staff, status, notes, created_at, updated_at`
	bedCols        = `id, ward_id, number, status, current_patient_id, last_occupied_at, last_cleaned_at, features`
	resourceCols   = `id, ward_id, type, name, quantity, minimum_required, last_restocked_at`
	assignmentCols = `id, patient_id, ward_id, bed_id, assigned_by, assigned_at, expected_duration_days,
		discharge_date, status, notes`
)

func scanWard(row pgx.Row) (*Ward, error) {
	var w Ward
	err := row.Scan(&w.ID, &w.Name, &w.Type, &w.Floor, &w.Capacity, &w.CurrentOccupancy, &w.AssignedStaff,
		&w.Status, &w.Notes, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.WardID, &b.Number, &b.Status, &b.CurrentPatientID, &b.LastOccupiedAt,
		&b.LastCleanedAt, &b.Features)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrBedNotFound
		}
		return nil, err
	}
	return &b, nil
}

func scanResource(row pgx.Row) (*Resource, error) {
	var r Resource
	err := row.Scan(&r.ID, &r.WardID, &r.Type, &r.Name, &r.Quantity, &r.MinimumRequired, &r.LastRestockedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &r, nil
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.PatientID, &a.WardID, &a.BedID, &a.AssignedBy, &a.AssignedAt,
		&a.ExpectedDurationDays, &a.DischargeDate, &a.Status, &a.Notes)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	items := []*T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, w *Ward) error {
	w.ID = uuid.New()
	if w.AssignedStaff == nil {
		w.AssignedStaff = []uuid.UUID{}
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO ward (id, name, type, floor, capacity, current_occupancy, assigned_staff, status, notes)
		VALUES ($1,$2,$3,$4,$5,0,$6,$7,$8)
		RETURNING current_occupancy, created_at, updated_at`,
		w.ID, w.Name, w.Type, w.Floor, w.Capacity, w.AssignedStaff, w.Status, w.Notes).
		Scan(&w.CurrentOccupancy, &w.CreatedAt, &w.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Ward, error) {
	return scanWard(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+wardCols+` FROM ward WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Ward, int, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + wardCols + ` FROM ward ORDER BY floor, name`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanWard)
	return items, total, err
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM ward`).Scan(&n)
	return n, err
}

func (r *repoPG) CreateBed(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	if b.Features == nil {
		b.Features = []string{}
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO bed (id, ward_id, number, status, features) VALUES ($1,$2,$3,$4,$5)`,
		b.ID, b.WardID, b.Number, b.Status, b.Features)
	switch {
	case db.HasCode(err, db.CodeUniqueViolation):
		return ErrBedNumberTaken
	case db.HasCode(err, db.CodeForeignKeyViolation):
		return ErrNotFound
	}
	return err
}

func (r *repoPG) BedsByWard(ctx context.Context, wardID uuid.UUID) ([]*Bed, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+bedCols+` FROM bed WHERE ward_id = $1 ORDER BY number`, wardID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBed)
}

func (r *repoPG) SetBedStatus(ctx context.Context, wardID, bedID uuid.UUID, status string, at time.Time) (*Bed, error) {
	var bed *Bed
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		b, err := scanBed(db.Conn(ctx, r.pool).QueryRow(ctx,
			`SELECT `+bedCols+` FROM bed WHERE id = $1 AND ward_id = $2 FOR UPDATE`, bedID, wardID))
		if err != nil {
			return err
		}
		if b.Status == BedOccupied {
			return ErrBedOccupied
		}
		bed, err = scanBed(db.Conn(ctx, r.pool).QueryRow(ctx, `
			UPDATE bed SET status = $2,
				last_cleaned_at = CASE WHEN status = 'cleaning' AND $2 = 'available' THEN $3 ELSE last_cleaned_at END
			WHERE id = $1
			RETURNING `+bedCols, bedID, status, at))
		return err
	})
	return bed, err
}

func (r *repoPG) CreateResource(ctx context.Context, res *Resource) error {
	res.ID = uuid.New()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO ward_resource (id, ward_id, type, name, quantity, minimum_required, last_restocked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		res.ID, res.WardID, res.Type, res.Name, res.Quantity, res.MinimumRequired, res.LastRestockedAt)
	if db.HasCode(err, db.CodeForeignKeyViolation) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) ResourcesByWard(ctx context.Context, wardID uuid.UUID) ([]*Resource, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+resourceCols+` FROM ward_resource WHERE ward_id = $1 ORDER BY type, name`, wardID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanResource)
}

func (r *repoPG) UpdateResource(ctx context.Context, wardID, resourceID uuid.UUID, u ResourceUpdate) (*Resource, error) {
	return scanResource(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE ward_resource SET
			quantity = COALESCE($3, quantity),
			minimum_required = COALESCE($4, minimum_required),
			last_restocked_at = COALESCE($5, last_restocked_at)
		WHERE id = $1 AND ward_id = $2
		RETURNING `+resourceCols, resourceID, wardID, u.Quantity, u.MinimumRequired, u.LastRestockedAt))
}

func (r *repoPG) LowStock(ctx context.Context) ([]*Resource, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+resourceCols+` FROM ward_resource WHERE quantity < minimum_required ORDER BY ward_id, name`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanResource)
}

func (r *repoPG) Admit(ctx context.Context, a *Assignment) (*Bed, error) {
	var bed *Bed
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)

		var status string
		err := conn.QueryRow(ctx, `SELECT status FROM ward WHERE id = $1 FOR UPDATE`, a.WardID).Scan(&status)
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != "active" {
			return ErrWardInactive
		}

		bed, err = scanBed(conn.QueryRow(ctx, `
			SELECT `+bedCols+` FROM bed WHERE ward_id = $1 AND status = 'available'
			ORDER BY number LIMIT 1 FOR UPDATE SKIP LOCKED`, a.WardID))
		if errors.Is(err, ErrBedNotFound) {
			return ErrWardFull
		}
		if err != nil {
			return err
		}

		bed, err = scanBed(conn.QueryRow(ctx, `
			UPDATE bed SET status = 'occupied', current_patient_id = $2, last_occupied_at = $3
			WHERE id = $1
			RETURNING `+bedCols, bed.ID, a.PatientID, a.AssignedAt))
		if err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, `
			UPDATE ward SET current_occupancy = current_occupancy + 1, updated_at = NOW() WHERE id = $1`,
			a.WardID); err != nil {
			return err
		}

		a.ID = uuid.New()
		a.BedID = bed.ID
		a.Status = AssignmentActive
		_, err = conn.Exec(ctx, `
			INSERT INTO bed_assignment (id, patient_id, ward_id, bed_id, assigned_by, assigned_at,
				expected_duration_days, status, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			a.ID, a.PatientID, a.WardID, a.BedID, a.AssignedBy, a.AssignedAt, a.ExpectedDurationDays,
			a.Status, a.Notes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bed, nil
}

func (r *repoPG) Discharge(ctx context.Context, assignmentID uuid.UUID, at time.Time) (*Assignment, error) {
	var out *Assignment
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)
		a, err := scanAssignment(conn.QueryRow(ctx,
			`SELECT `+assignmentCols+` FROM bed_assignment WHERE id = $1 FOR UPDATE`, assignmentID))
		if err != nil {
			return err
		}
		if a.Status != AssignmentActive {
			return ErrAlreadyDischarged
		}

		out, err = scanAssignment(conn.QueryRow(ctx, `
			UPDATE bed_assignment SET status = 'discharged', discharge_date = $2
			WHERE id = $1
			RETURNING `+assignmentCols, assignmentID, at))
		if err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, `
			UPDATE bed SET status = 'cleaning', current_patient_id = NULL WHERE id = $1`, a.BedID); err != nil {
			return err
		}
		_, err = conn.Exec(ctx, `
			UPDATE ward SET current_occupancy = GREATEST(current_occupancy - 1, 0), updated_at = NOW()
			WHERE id = $1`, a.WardID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repoPG) ActiveAssignments(ctx context.Context, wardID uuid.UUID) ([]*Assignment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM bed_assignment WHERE ward_id = $1 AND status = '%s' ORDER BY assigned_at`,
		assignmentCols, AssignmentActive), wardID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAssignment)
}
