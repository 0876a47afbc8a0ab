package staff

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const staffCols = `id, first_name, last_name, email, contact_number, date_of_birth, gender,
	address, employee_id, department, role, details, password_hash, created_at, updated_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	var details []byte
	err := row.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.ContactNumber, &s.DateOfBirth,
		&s.Gender, &s.Address, &s.EmployeeID, &s.Department, &s.Role, &details, &s.PasswordHash,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.Details, err = DecodeDetails(s.Role, details); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	details, err := json.Marshal(s.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO staff (id, first_name, last_name, email, contact_number, date_of_birth, gender,
			address, employee_id, department, role, details, password_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		s.ID, s.FirstName, s.LastName, strings.ToLower(s.Email), s.ContactNumber, s.DateOfBirth, s.Gender,
		s.Address, s.EmployeeID, s.Department, s.Role, details, s.PasswordHash).Scan(&s.CreatedAt, &s.UpdatedAt)
	if db.HasCode(err, db.CodeUniqueViolation) {
		return ErrEmailTaken
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return scanStaff(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Staff, error) {
	return scanStaff(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE email = $1`, strings.ToLower(email)))
}

func (r *repoPG) Update(ctx context.Context, s *Staff) error {
	details, err := json.Marshal(s.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE staff SET first_name=$2, last_name=$3, email=$4, contact_number=$5, date_of_birth=$6,
			gender=$7, address=$8, employee_id=$9, department=$10, details=$11, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.FirstName, s.LastName, strings.ToLower(s.Email), s.ContactNumber, s.DateOfBirth,
		s.Gender, s.Address, s.EmployeeID, s.Department, details).Scan(&s.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return ErrNotFound
	case db.HasCode(err, db.CodeUniqueViolation):
		return ErrEmailTaken
	}
	return err
}

func (r *repoPG) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE staff SET password_hash=$2, updated_at=NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Staff, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Role != "" {
		where += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, f.Role)
		idx++
	}
	if f.Department != "" {
		where += fmt.Sprintf(` AND department = $%d`, idx)
		args = append(args, f.Department)
		idx++
	}
	if f.Specialization != "" {
		where += fmt.Sprintf(` AND details->>'specialization' = $%d`, idx)
		args = append(args, f.Specialization)
		idx++
	}
	if f.TestType != "" {
		where += fmt.Sprintf(` AND details->'specializations' ? $%d`, idx)
		args = append(args, f.TestType)
		idx++
	}
	if f.OnShift {
		where += ` AND (details->>'active_shift')::boolean IS TRUE`
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM staff`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + staffCols + ` FROM staff` + where + ` ORDER BY last_name, first_name`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, limit, offset)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CountByRole(ctx context.Context) (map[Role]int, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT role, COUNT(*) FROM staff GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[Role]int)
	for rows.Next() {
		var role Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[role] = n
	}
	return out, rows.Err()
}

