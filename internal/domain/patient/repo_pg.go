package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `id, first_name, last_name, COALESCE(email, ''), contact_number, date_of_birth, gender, address,
	blood_type, allergies, medical_history, chronic_conditions, current_medications, preferred_language,
	emergency_contact, last_emergency_visit, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var contact []byte
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.ContactNumber, &p.DateOfBirth, &p.Gender,
		&p.Address, &p.BloodType, &p.Allergies, &p.MedicalHistory, &p.ChronicConditions, &p.CurrentMedications,
		&p.PreferredLanguage, &contact, &p.LastEmergencyVisit, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(contact) > 0 {
		p.EmergencyContact = &EmergencyContact{}
		if err := json.Unmarshal(contact, p.EmergencyContact); err != nil {
			return nil, fmt.Errorf("decode emergency contact: %w", err)
		}
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func encodeContact(c *EmergencyContact) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// nullEmail stores a missing email as NULL so the unique index ignores it.
func nullEmail(email string) *string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	return &email
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	contact, err := encodeContact(p.EmergencyContact)
	if err != nil {
		return err
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, first_name, last_name, email, contact_number, date_of_birth, gender, address,
			blood_type, allergies, medical_history, chronic_conditions, current_medications, preferred_language,
			emergency_contact)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, nullEmail(p.Email), p.ContactNumber, p.DateOfBirth, p.Gender, p.Address,
		p.BloodType, nonNil(p.Allergies), nonNil(p.MedicalHistory), nonNil(p.ChronicConditions),
		nonNil(p.CurrentMedications), p.PreferredLanguage, contact).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.HasCode(err, db.CodeUniqueViolation) {
		return ErrEmailTaken
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	contact, err := encodeContact(p.EmergencyContact)
	if err != nil {
		return err
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, email=$4, contact_number=$5, date_of_birth=$6,
			gender=$7, address=$8, blood_type=$9, allergies=$10, medical_history=$11, chronic_conditions=$12,
			current_medications=$13, preferred_language=$14, emergency_contact=$15, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, nullEmail(p.Email), p.ContactNumber, p.DateOfBirth, p.Gender, p.Address,
		p.BloodType, nonNil(p.Allergies), nonNil(p.MedicalHistory), nonNil(p.ChronicConditions),
		nonNil(p.CurrentMedications), p.PreferredLanguage, contact).Scan(&p.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return ErrNotFound
	case db.HasCode(err, db.CodeUniqueViolation):
		return ErrEmailTaken
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return r.Search(ctx, SearchQuery{}, limit, offset)
}

func (r *repoPG) Search(ctx context.Context, q SearchQuery, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	contains := func(column, value string) {
		if value == "" {
			return
		}
		where += fmt.Sprintf(` AND %s ILIKE '%%' || $%d || '%%'`, column, idx)
		args = append(args, value)
		idx++
	}
	if q.Q != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE '%%' || $%d || '%%' OR last_name ILIKE '%%' || $%d || '%%'
			OR email ILIKE '%%' || $%d || '%%' OR contact_number ILIKE '%%' || $%d || '%%')`, idx, idx, idx, idx)
		args = append(args, q.Q)
		idx++
	}
	contains("first_name", q.FirstName)
	contains("last_name", q.LastName)
	contains("email", q.Email)
	contains("contact_number", q.ContactNumber)

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + patientCols + ` FROM patient` + where + ` ORDER BY last_name, first_name`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, limit, offset)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&n)
	return n, err
}

func (r *repoPG) UpdateEmergencyContact(ctx context.Context, id uuid.UUID, c *EmergencyContact) error {
	contact, err := encodeContact(c)
	if err != nil {
		return err
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE patient SET emergency_contact=$2, updated_at=NOW() WHERE id = $1`, id, contact)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const visitCols = `id, patient_id, severity, description, location, symptoms, vital_signs, attending_staff_id, outcome, created_at`

func (r *repoPG) RecordEmergencyVisit(ctx context.Context, v *EmergencyVisit) error {
	v.ID = uuid.New()
	var vitals []byte
	if v.VitalSigns != nil {
		var err error
		if vitals, err = json.Marshal(v.VitalSigns); err != nil {
			return err
		}
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := db.Conn(ctx, r.pool).QueryRow(ctx, `
			INSERT INTO patient_emergency_visit (id, patient_id, severity, description, location, symptoms,
				vital_signs, attending_staff_id, outcome)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING created_at`,
			v.ID, v.PatientID, v.Severity, v.Description, v.Location, nonNil(v.Symptoms), vitals,
			v.AttendingStaffID, v.Outcome).Scan(&v.CreatedAt)
		if err != nil {
			return err
		}
		tag, err := db.Conn(ctx, r.pool).Exec(ctx,
			`UPDATE patient SET last_emergency_visit=$2, updated_at=NOW() WHERE id = $1`, v.PatientID, v.CreatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *repoPG) LastEmergencyVisit(ctx context.Context, patientID uuid.UUID) (*EmergencyVisit, error) {
	var v EmergencyVisit
	var vitals []byte
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+visitCols+` FROM patient_emergency_visit
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT 1`, patientID).Scan(
		&v.ID, &v.PatientID, &v.Severity, &v.Description, &v.Location, &v.Symptoms, &vitals,
		&v.AttendingStaffID, &v.Outcome, &v.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(vitals) > 0 {
		v.VitalSigns = &VitalSigns{}
		if err := json.Unmarshal(vitals, v.VitalSigns); err != nil {
			return nil, fmt.Errorf("decode vital signs: %w", err)
		}
	}
	return &v, nil
}

// -- Messages --

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository { return &messageRepoPG{pool: pool} }

const messageCols = `id, patient_id, sender_id, subject, body, status, attachments, read_at, created_at, updated_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.PatientID, &m.SenderID, &m.Subject, &m.Body, &m.Status, &m.Attachments,
		&m.ReadAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO message (id, patient_id, sender_id, subject, body, status, attachments)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		m.ID, m.PatientID, m.SenderID, m.Subject, m.Body, m.Status, nonNil(m.Attachments)).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *messageRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, unreadOnly bool) ([]*Message, error) {
	query := `SELECT ` + messageCols + ` FROM message WHERE patient_id = $1`
	if unreadOnly {
		query += ` AND status NOT IN ('read', 'archived')`
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query+` ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *messageRepoPG) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*Message, error) {
	return scanMessage(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE message SET status='read', read_at=COALESCE(read_at, $2), updated_at=NOW()
		WHERE id = $1
		RETURNING `+messageCols, id, at))
}
