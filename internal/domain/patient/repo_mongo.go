package patient

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/docstore"
)

type repoMongo struct {
	patients *mongo.Collection
	visits   *mongo.Collection
}

func NewRepoMongo(database *mongo.Database) Repository {
	return &repoMongo{
		patients: database.Collection(docstore.CollPatients),
		visits:   database.Collection(docstore.CollEmergencyVisit),
	}
}

func normalize(p *Patient) {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Allergies = nonNil(p.Allergies)
	p.MedicalHistory = nonNil(p.MedicalHistory)
	p.ChronicConditions = nonNil(p.ChronicConditions)
	p.CurrentMedications = nonNil(p.CurrentMedications)
}

func (r *repoMongo) Create(ctx context.Context, p *Patient) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	normalize(p)
	if _, err := r.patients.InsertOne(ctx, p); err != nil {
		if docstore.IsDuplicateKey(err) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *repoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var p Patient
	if err := r.patients.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repoMongo) Update(ctx context.Context, p *Patient) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	p.UpdatedAt = time.Now().UTC()
	normalize(p)
	set := bson.M{
		"first_name": p.FirstName, "last_name": p.LastName, "contact_number": p.ContactNumber,
		"date_of_birth": p.DateOfBirth, "gender": p.Gender, "address": p.Address, "blood_type": p.BloodType,
		"allergies": p.Allergies, "medical_history": p.MedicalHistory, "chronic_conditions": p.ChronicConditions,
		"current_medications": p.CurrentMedications, "preferred_language": p.PreferredLanguage,
		"emergency_contact": p.EmergencyContact, "updated_at": p.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if p.Email == "" {
		update["$unset"] = bson.M{"email": ""}
	} else {
		set["email"] = p.Email
	}
	res, err := r.patients.UpdateByID(ctx, p.ID, update)
	if err != nil {
		if docstore.IsDuplicateKey(err) {
			return ErrEmailTaken
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoMongo) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	res, err := r.patients.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoMongo) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return r.Search(ctx, SearchQuery{}, limit, offset)
}

func containsRegex(v string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(v), "$options": "i"}
}

func searchFilter(q SearchQuery) bson.M {
	f := bson.M{}
	if q.Q != "" {
		f["$or"] = bson.A{
			bson.M{"first_name": containsRegex(q.Q)},
			bson.M{"last_name": containsRegex(q.Q)},
			bson.M{"email": containsRegex(q.Q)},
			bson.M{"contact_number": containsRegex(q.Q)},
		}
	}
	for field, v := range map[string]string{
		"first_name": q.FirstName, "last_name": q.LastName, "email": q.Email, "contact_number": q.ContactNumber,
	} {
		if v != "" {
			f[field] = containsRegex(v)
		}
	}
	return f
}

func (r *repoMongo) Search(ctx context.Context, q SearchQuery, limit, offset int) ([]*Patient, int, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	f := searchFilter(q)
	total, err := r.patients.CountDocuments(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_name", Value: 1}, {Key: "first_name", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit)).SetSkip(int64(offset))
	}
	cur, err := r.patients.Find(ctx, f, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	var items []*Patient
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (r *repoMongo) Count(ctx context.Context) (int, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	n, err := r.patients.CountDocuments(ctx, bson.M{})
	return int(n), err
}

func (r *repoMongo) UpdateEmergencyContact(ctx context.Context, id uuid.UUID, c *EmergencyContact) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	res, err := r.patients.UpdateByID(ctx, id, bson.M{"$set": bson.M{"emergency_contact": c, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordEmergencyVisit stamps the patient first so a missing patient leaves
// no orphaned visit.
func (r *repoMongo) RecordEmergencyVisit(ctx context.Context, v *EmergencyVisit) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	v.ID = uuid.New()
	v.CreatedAt = time.Now().UTC()
	v.Symptoms = nonNil(v.Symptoms)
	res, err := r.patients.UpdateByID(ctx, v.PatientID, bson.M{"$set": bson.M{
		"last_emergency_visit": v.CreatedAt, "updated_at": v.CreatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	_, err = r.visits.InsertOne(ctx, v)
	return err
}

func (r *repoMongo) LastEmergencyVisit(ctx context.Context, patientID uuid.UUID) (*EmergencyVisit, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var v EmergencyVisit
	err := r.visits.FindOne(ctx, bson.M{"patient_id": patientID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&v)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// -- Messages --

type messageRepoMongo struct{ coll *mongo.Collection }

func NewMessageRepoMongo(database *mongo.Database) MessageRepository {
	return &messageRepoMongo{coll: database.Collection(docstore.CollMessages)}
}

func (r *messageRepoMongo) Create(ctx context.Context, m *Message) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	m.ID = uuid.New()
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *messageRepoMongo) ListByPatient(ctx context.Context, patientID uuid.UUID, unreadOnly bool) ([]*Message, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	f := bson.M{"patient_id": patientID}
	if unreadOnly {
		f["status"] = bson.M{"$nin": bson.A{"read", "archived"}}
	}
	cur, err := r.coll.Find(ctx, f, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var items []*Message
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *messageRepoMongo) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*Message, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var m Message
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.A{bson.M{"$set": bson.M{
			"status":     "read",
			"read_at":    bson.M{"$ifNull": bson.A{"$read_at", at}},
			"updated_at": time.Now().UTC(),
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}
