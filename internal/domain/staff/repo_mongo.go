package staff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/docstore"
)

// staffDoc is the stored shape. The role payload is an embedded document
// decoded by role.
type staffDoc struct {
	ID            uuid.UUID  `bson:"_id"`
	FirstName     string     `bson:"first_name"`
	LastName      string     `bson:"last_name"`
	Email         string     `bson:"email"`
	ContactNumber string     `bson:"contact_number"`
	DateOfBirth   *time.Time `bson:"date_of_birth,omitempty"`
	Gender        string     `bson:"gender"`
	Address       string     `bson:"address"`
	EmployeeID    string     `bson:"employee_id,omitempty"`
	Department    string     `bson:"department"`
	Role          Role       `bson:"role"`
	Details       bson.Raw   `bson:"details,omitempty"`
	PasswordHash  string     `bson:"password_hash"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toDoc(s *Staff) (*staffDoc, error) {
	d := &staffDoc{
		ID: s.ID, FirstName: s.FirstName, LastName: s.LastName, Email: strings.ToLower(s.Email),
		ContactNumber: s.ContactNumber, DateOfBirth: s.DateOfBirth, Gender: s.Gender,
		Address: s.Address, EmployeeID: s.EmployeeID, Department: s.Department, Role: s.Role,
		PasswordHash: s.PasswordHash, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
	if s.Details != nil {
		raw, err := bson.Marshal(s.Details)
		if err != nil {
			return nil, fmt.Errorf("encode details: %w", err)
		}
		d.Details = raw
	}
	return d, nil
}

func (d *staffDoc) staff() (*Staff, error) {
	details, err := NewDetails(d.Role)
	if err != nil {
		return nil, err
	}
	if len(d.Details) > 0 {
		if err := bson.Unmarshal(d.Details, details); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", d.Role, err)
		}
	}
	return &Staff{
		ID: d.ID, FirstName: d.FirstName, LastName: d.LastName, Email: d.Email,
		ContactNumber: d.ContactNumber, DateOfBirth: d.DateOfBirth, Gender: d.Gender,
		Address: d.Address, EmployeeID: d.EmployeeID, Department: d.Department, Role: d.Role,
		Details: details, PasswordHash: d.PasswordHash, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

type repoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(database *mongo.Database) Repository {
	return &repoMongo{coll: database.Collection(docstore.CollStaff)}
}

func (r *repoMongo) Create(ctx context.Context, s *Staff) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	s.ID = uuid.New()
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	doc, err := toDoc(s)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if docstore.IsDuplicateKey(err) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *repoMongo) findOne(ctx context.Context, filter bson.M) (*Staff, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var doc staffDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.staff()
}

func (r *repoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *repoMongo) GetByEmail(ctx context.Context, email string) (*Staff, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *repoMongo) Update(ctx context.Context, s *Staff) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	s.UpdatedAt = time.Now().UTC()
	doc, err := toDoc(s)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateByID(ctx, s.ID, bson.M{"$set": bson.M{
		"first_name": doc.FirstName, "last_name": doc.LastName, "email": doc.Email,
		"contact_number": doc.ContactNumber, "date_of_birth": doc.DateOfBirth, "gender": doc.Gender,
		"address": doc.Address, "employee_id": doc.EmployeeID, "department": doc.Department,
		"details": doc.Details, "updated_at": doc.UpdatedAt,
	}})
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

func (r *repoMongo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"password_hash": hash, "updated_at": time.Now().UTC()}})
	if err != nil {
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

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func mongoFilter(f Filter) bson.M {
	q := bson.M{}
	if f.Role != "" {
		q["role"] = f.Role
	}
	if f.Department != "" {
		q["department"] = f.Department
	}
	if f.Specialization != "" {
		q["details.specialization"] = f.Specialization
	}
	if f.TestType != "" {
		q["details.specializations"] = f.TestType
	}
	if f.OnShift {
		q["details.active_shift"] = true
	}
	return q
}

func (r *repoMongo) List(ctx context.Context, f Filter, limit, offset int) ([]*Staff, int, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	q := mongoFilter(f)
	total, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "last_name", Value: 1}, {Key: "first_name", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit)).SetSkip(int64(offset))
	}
	cur, err := r.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var items []*Staff
	for cur.Next(ctx) {
		var doc staffDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		s, err := doc.staff()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, int(total), cur.Err()
}

func (r *repoMongo) CountByRole(ctx context.Context) (map[Role]int, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	cur, err := r.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$role"}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[Role]int)
	for cur.Next(ctx) {
		var row struct {
			Role Role `bson:"_id"`
			N    int  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.Role] = row.N
	}
	return out, cur.Err()
}
