package labtest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/docstore"
)

type repoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(database *mongo.Database) Repository {
	return &repoMongo{coll: database.Collection(docstore.CollLabTests)}
}

func (r *repoMongo) Create(ctx context.Context, t *LabTest) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	t.ID = uuid.New()
	t.UpdatedAt = time.Now().UTC()
	_, err := r.coll.InsertOne(ctx, t)
	return err
}

func (r *repoMongo) GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var t LabTest
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *repoMongo) Update(ctx context.Context, t *LabTest) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	t.UpdatedAt = time.Now().UTC()
	res, err := r.coll.UpdateByID(ctx, t.ID, bson.M{"$set": bson.M{
		"assigned_to":  t.AssignedTo,
		"status":       t.Status,
		"results":      t.Results,
		"notes":        t.Notes,
		"completed_at": t.CompletedAt,
		"updated_at":   t.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoMongo) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*LabTest, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	items := []*LabTest{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repoMongo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*LabTest, error) {
	return r.find(ctx, bson.M{"patient_id": patientID}, options.Find().SetSort(bson.D{{Key: "requested_at", Value: -1}}))
}

func (r *repoMongo) ListPending(ctx context.Context) ([]*LabTest, error) {
	items, err := r.find(ctx, bson.M{"status": bson.M{"$in": bson.A{StatusRequested, StatusInProgress}}},
		options.Find().SetSort(bson.D{{Key: "requested_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	sortByUrgency(items)
	return items, nil
}
