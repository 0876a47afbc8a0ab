package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/db"
)

// NewStorePG returns the Postgres store. Every active booking owns one row in
// doctor_booking whose exclusion constraint rejects overlapping ranges for
// the same doctor, so reservations are decided by the database.
func NewStorePG(pool *pgxpool.Pool) Store {
	ledger := &ledgerPG{pool: pool}
	return Store{
		Appointments: &appointmentRepoPG{pool: pool, ledger: ledger},
		Examinations: &examinationRepoPG{pool: pool, ledger: ledger},
		Bookings:     ledger,
	}
}

// -- doctor_booking ledger --

type ledgerPG struct{ pool *pgxpool.Pool }

func (l *ledgerPG) insert(ctx context.Context, b BookedInterval) error {
	_, err := db.Conn(ctx, l.pool).Exec(ctx, `
		INSERT INTO doctor_booking (booking_id, kind, doctor_id, during)
		VALUES ($1, $2, $3, tstzrange($4, $5, '[)'))`,
		b.ID, b.Kind, b.DoctorID, b.Start, b.End)
	if db.HasCode(err, db.CodeExclusionViolation) {
		return ErrSlotTaken
	}
	return err
}

// move replaces the range of an existing ledger row. The row is updated in
// place so it never conflicts with itself.
func (l *ledgerPG) move(ctx context.Context, b BookedInterval) error {
	tag, err := db.Conn(ctx, l.pool).Exec(ctx, `
		UPDATE doctor_booking SET during = tstzrange($2, $3, '[)') WHERE booking_id = $1`,
		b.ID, b.Start, b.End)
	if db.HasCode(err, db.CodeExclusionViolation) {
		return ErrSlotTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (l *ledgerPG) release(ctx context.Context, bookingID uuid.UUID) error {
	_, err := db.Conn(ctx, l.pool).Exec(ctx, `DELETE FROM doctor_booking WHERE booking_id = $1`, bookingID)
	return err
}

func (l *ledgerPG) FindBookingsByDoctorAndDateRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]BookedInterval, error) {
	rows, err := db.Conn(ctx, l.pool).Query(ctx, `
		SELECT booking_id, kind, doctor_id, lower(during), upper(during)
		FROM doctor_booking
		WHERE doctor_id = $1 AND during && tstzrange($2, $3, '[)')
		ORDER BY lower(during)`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookedInterval
	for rows.Next() {
		var b BookedInterval
		if err := rows.Scan(&b.ID, &b.Kind, &b.DoctorID, &b.Start, &b.End); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (l *ledgerPG) FindBusyDoctorIDs(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, l.pool).Query(ctx, `
		SELECT DISTINCT doctor_id FROM doctor_booking WHERE during && tstzrange($1, $2, '[)')`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// -- Appointment --

type appointmentRepoPG struct {
	pool   *pgxpool.Pool
	ledger *ledgerPG
}

const appointmentCols = `id, patient_id, doctor_id, type, status, date_time, duration, end_time,
	reason, notes, cancelled_at, cancel_reason, created_at, updated_at`

// Open appointments are the ones upcoming lists and counts consider.
const openAppointment = `status IN ('scheduled', 'confirmed')`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Type, &a.Status, &a.DateTime, &a.Duration,
		&a.EndTime, &a.Reason, &a.Notes, &a.CancelledAt, &a.CancelReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Reserve(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.ledger.insert(ctx, a.Interval()); err != nil {
			return err
		}
		return db.Conn(ctx, r.pool).QueryRow(ctx, `
			INSERT INTO appointment (id, patient_id, doctor_id, type, status, date_time, duration, end_time, reason, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING created_at, updated_at`,
			a.ID, a.PatientID, a.DoctorID, a.Type, a.Status, a.DateTime, a.Duration, a.EndTime,
			a.Reason, a.Notes).Scan(&a.CreatedAt, &a.UpdatedAt)
	})
}

func (r *appointmentRepoPG) Reschedule(ctx context.Context, a *Appointment) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.ledger.move(ctx, a.Interval()); err != nil {
			return err
		}
		err := db.Conn(ctx, r.pool).QueryRow(ctx, `
			UPDATE appointment SET date_time=$2, end_time=$3, updated_at=NOW()
			WHERE id = $1
			RETURNING updated_at`, a.ID, a.DateTime, a.EndTime).Scan(&a.UpdatedAt)
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		return err
	})
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, a *Appointment) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := db.Conn(ctx, r.pool).QueryRow(ctx, `
			UPDATE appointment SET status=$2, cancelled_at=$3, cancel_reason=$4, updated_at=NOW()
			WHERE id = $1
			RETURNING updated_at`, a.ID, a.Status, a.CancelledAt, a.CancelReason).Scan(&a.UpdatedAt)
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if a.Status == "cancelled" {
			return r.ledger.release(ctx, a.ID)
		}
		return nil
	})
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, upcomingFrom *time.Time, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE patient_id = $1`
	args := []interface{}{patientID}
	idx := 2
	if upcomingFrom != nil {
		where += fmt.Sprintf(` AND date_time >= $%d AND `+openAppointment, idx)
		args = append(args, *upcomingFrom)
		idx++
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + appointmentCols + ` FROM appointment` + where + ` ORDER BY date_time`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, limit, offset)
	}
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+appointmentCols+` FROM appointment
		WHERE doctor_id = $1 AND date_time >= $2 AND date_time < $3
		ORDER BY date_time`, doctorID, from, to)
}

func (r *appointmentRepoPG) CountUpcoming(ctx context.Context, from time.Time) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE date_time >= $1 AND `+openAppointment, from).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// -- Examination --

type examinationRepoPG struct {
	pool   *pgxpool.Pool
	ledger *ledgerPG
}

const examinationCols = `id, patient_id, doctor_id, type, status, scheduled_date, duration, end_time,
	notes, results, completed_at, cancelled_at, cancel_reason, created_at, updated_at`

func scanExamination(row pgx.Row) (*Examination, error) {
	var e Examination
	var results []byte
	err := row.Scan(&e.ID, &e.PatientID, &e.DoctorID, &e.Type, &e.Status, &e.ScheduledDate, &e.Duration,
		&e.EndTime, &e.Notes, &results, &e.CompletedAt, &e.CancelledAt, &e.CancelReason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(results) > 0 {
		e.Results = &ExaminationResults{}
		if err := json.Unmarshal(results, e.Results); err != nil {
			return nil, fmt.Errorf("decode examination results: %w", err)
		}
	}
	return &e, nil
}

func encodeResults(r *ExaminationResults) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *examinationRepoPG) Reserve(ctx context.Context, e *Examination) error {
	e.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.ledger.insert(ctx, e.Interval()); err != nil {
			return err
		}
		return db.Conn(ctx, r.pool).QueryRow(ctx, `
			INSERT INTO examination (id, patient_id, doctor_id, type, status, scheduled_date, duration, end_time, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING created_at, updated_at`,
			e.ID, e.PatientID, e.DoctorID, e.Type, e.Status, e.ScheduledDate, e.Duration, e.EndTime,
			e.Notes).Scan(&e.CreatedAt, &e.UpdatedAt)
	})
}

func (r *examinationRepoPG) UpdateStatus(ctx context.Context, e *Examination) error {
	results, err := encodeResults(e.Results)
	if err != nil {
		return fmt.Errorf("encode examination results: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := db.Conn(ctx, r.pool).QueryRow(ctx, `
			UPDATE examination SET status=$2, results=$3, completed_at=$4, cancelled_at=$5, cancel_reason=$6, updated_at=NOW()
			WHERE id = $1
			RETURNING updated_at`,
			e.ID, e.Status, results, e.CompletedAt, e.CancelledAt, e.CancelReason).Scan(&e.UpdatedAt)
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if e.Status == "cancelled" {
			return r.ledger.release(ctx, e.ID)
		}
		return nil
	})
}

func (r *examinationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Examination, error) {
	return scanExamination(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+examinationCols+` FROM examination WHERE id = $1`, id))
}

func (r *examinationRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Examination, error) {
	return r.query(ctx, `SELECT `+examinationCols+` FROM examination
		WHERE doctor_id = $1 AND scheduled_date >= $2 AND scheduled_date < $3
		ORDER BY scheduled_date`, doctorID, from, to)
}

func (r *examinationRepoPG) ListPending(ctx context.Context) ([]*Examination, error) {
	return r.query(ctx, `SELECT `+examinationCols+` FROM examination
		WHERE status IN ('scheduled', 'in_progress')
		ORDER BY scheduled_date`)
}

func (r *examinationRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Examination, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Examination
	for rows.Next() {
		e, err := scanExamination(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
