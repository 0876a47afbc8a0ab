package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/cache"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/docstore"
)

// reserveLockTTL bounds how long a crashed holder can block a doctor.
const reserveLockTTL = 10 * time.Second

// NewStoreMongo returns the MongoDB store. Without multi-document
// constraints, reservations serialize per doctor through locker and check
// for overlaps across both collections before writing.
func NewStoreMongo(database *mongo.Database, locker cache.Locker) Store {
	b := &bookingsMongo{
		appointments: database.Collection(docstore.CollAppointments),
		examinations: database.Collection(docstore.CollExaminations),
		locker:       locker,
	}
	return Store{
		Appointments: &appointmentRepoMongo{b: b},
		Examinations: &examinationRepoMongo{b: b},
		Bookings:     b,
	}
}

type bookingsMongo struct {
	appointments *mongo.Collection
	examinations *mongo.Collection
	locker       cache.Locker
}

func lockKey(doctorID uuid.UUID) string { return "booking:doctor:" + doctorID.String() }

// activeOverlap matches active bookings of the collection whose start field is
// startField and which overlap [from, to).
func activeOverlap(startField string, from, to time.Time) bson.M {
	return bson.M{
		"status":   bson.M{"$ne": "cancelled"},
		startField: bson.M{"$lt": to},
		"end_time": bson.M{"$gt": from},
	}
}

// withDoctorLock runs fn while holding the doctor's reservation lock, after
// checking that b overlaps no other active booking.
func (m *bookingsMongo) withDoctorLock(ctx context.Context, b BookedInterval, fn func(ctx context.Context) error) error {
	release, err := m.locker.Acquire(ctx, lockKey(b.DoctorID), reserveLockTTL)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	for _, c := range []struct {
		coll  *mongo.Collection
		field string
	}{{m.appointments, "date_time"}, {m.examinations, "scheduled_date"}} {
		q := activeOverlap(c.field, b.Start, b.End)
		q["doctor_id"] = b.DoctorID
		q["_id"] = bson.M{"$ne": b.ID}
		n, err := c.coll.CountDocuments(ctx, q, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSlotTaken
		}
	}
	return fn(ctx)
}

func (m *bookingsMongo) FindBookingsByDoctorAndDateRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]BookedInterval, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var out []BookedInterval
	q := activeOverlap("date_time", from, to)
	q["doctor_id"] = doctorID
	appts, err := findAll[Appointment](ctx, m.appointments, q, options.Find().SetSort(bson.D{{Key: "date_time", Value: 1}}))
	if err != nil {
		return nil, err
	}
	for _, a := range appts {
		out = append(out, a.Interval())
	}

	q = activeOverlap("scheduled_date", from, to)
	q["doctor_id"] = doctorID
	exams, err := findAll[Examination](ctx, m.examinations, q, options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	for _, e := range exams {
		out = append(out, e.Interval())
	}
	return out, nil
}

func (m *bookingsMongo) FindBusyDoctorIDs(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, c := range []struct {
		coll  *mongo.Collection
		field string
	}{{m.appointments, "date_time"}, {m.examinations, "scheduled_date"}} {
		rows, err := findAll[struct {
			DoctorID uuid.UUID `bson:"doctor_id"`
		}](ctx, c.coll, activeOverlap(c.field, from, to), options.Find().SetProjection(bson.M{"doctor_id": 1}))
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if !seen[r.DoctorID] {
				seen[r.DoctorID] = true
				out = append(out, r.DoctorID)
			}
		}
	}
	return out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]*T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var items []*T
	for cur.Next(ctx) {
		v := new(T)
		if err := cur.Decode(v); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, cur.Err()
}

// -- Appointment --

type appointmentRepoMongo struct{ b *bookingsMongo }

func (r *appointmentRepoMongo) Reserve(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	return r.b.withDoctorLock(ctx, a.Interval(), func(ctx context.Context) error {
		_, err := r.b.appointments.InsertOne(ctx, a)
		return err
	})
}

func (r *appointmentRepoMongo) Reschedule(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	return r.b.withDoctorLock(ctx, a.Interval(), func(ctx context.Context) error {
		res, err := r.b.appointments.UpdateByID(ctx, a.ID, bson.M{"$set": bson.M{
			"date_time": a.DateTime, "end_time": a.EndTime, "updated_at": a.UpdatedAt,
		}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *appointmentRepoMongo) UpdateStatus(ctx context.Context, a *Appointment) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	a.UpdatedAt = time.Now().UTC()
	res, err := r.b.appointments.UpdateByID(ctx, a.ID, bson.M{"$set": bson.M{
		"status": a.Status, "cancelled_at": a.CancelledAt, "cancel_reason": a.CancelReason, "updated_at": a.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var a Appointment
	if err := r.b.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoMongo) ListByPatient(ctx context.Context, patientID uuid.UUID, upcomingFrom *time.Time, limit, offset int) ([]*Appointment, int, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	q := bson.M{"patient_id": patientID}
	if upcomingFrom != nil {
		q["date_time"] = bson.M{"$gte": *upcomingFrom}
		q["status"] = bson.M{"$in": bson.A{"scheduled", "confirmed"}}
	}
	total, err := r.b.appointments.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "date_time", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit)).SetSkip(int64(offset))
	}
	items, err := findAll[Appointment](ctx, r.b.appointments, q, opts)
	return items, int(total), err
}

func (r *appointmentRepoMongo) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	return findAll[Appointment](ctx, r.b.appointments,
		bson.M{"doctor_id": doctorID, "date_time": bson.M{"$gte": from, "$lt": to}},
		options.Find().SetSort(bson.D{{Key: "date_time", Value: 1}}))
}

func (r *appointmentRepoMongo) CountUpcoming(ctx context.Context, from time.Time) (int, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	n, err := r.b.appointments.CountDocuments(ctx, bson.M{
		"date_time": bson.M{"$gte": from},
		"status":    bson.M{"$in": bson.A{"scheduled", "confirmed"}},
	})
	return int(n), err
}

// -- Examination --

type examinationRepoMongo struct{ b *bookingsMongo }

func (r *examinationRepoMongo) Reserve(ctx context.Context, e *Examination) error {
	e.ID = uuid.New()
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	return r.b.withDoctorLock(ctx, e.Interval(), func(ctx context.Context) error {
		_, err := r.b.examinations.InsertOne(ctx, e)
		return err
	})
}

func (r *examinationRepoMongo) UpdateStatus(ctx context.Context, e *Examination) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	e.UpdatedAt = time.Now().UTC()
	res, err := r.b.examinations.UpdateByID(ctx, e.ID, bson.M{"$set": bson.M{
		"status": e.Status, "results": e.Results, "completed_at": e.CompletedAt,
		"cancelled_at": e.CancelledAt, "cancel_reason": e.CancelReason, "updated_at": e.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *examinationRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Examination, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var e Examination
	if err := r.b.examinations.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *examinationRepoMongo) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Examination, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	return findAll[Examination](ctx, r.b.examinations,
		bson.M{"doctor_id": doctorID, "scheduled_date": bson.M{"$gte": from, "$lt": to}},
		options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: 1}}))
}

func (r *examinationRepoMongo) ListPending(ctx context.Context) ([]*Examination, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	return findAll[Examination](ctx, r.b.examinations,
		bson.M{"status": bson.M{"$in": bson.A{"scheduled", "in_progress"}}},
		options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: 1}}))
}
