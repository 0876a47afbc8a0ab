package ward

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/docstore"
)

type repoMongo struct {
	wards       *mongo.Collection
	beds        *mongo.Collection
	resources   *mongo.Collection
	assignments *mongo.Collection
}

// NewRepoMongo returns the MongoDB repository. Bed claims rely on
// FindOneAndUpdate being atomic per document; occupancy moves with $inc.
func NewRepoMongo(database *mongo.Database) Repository {
	return &repoMongo{
		wards:       database.Collection(docstore.CollWards),
		beds:        database.Collection(docstore.CollBeds),
		resources:   database.Collection(docstore.CollWardResources),
		assignments: database.Collection(docstore.CollBedAssignments),
	}
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]*T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	items := []*T{}
	for cur.Next(ctx) {
		var item T
		if err := cur.Decode(&item); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, cur.Err()
}

func (r *repoMongo) Create(ctx context.Context, w *Ward) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	w.ID = uuid.New()
	w.CurrentOccupancy = 0
	if w.AssignedStaff == nil {
		w.AssignedStaff = []uuid.UUID{}
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	_, err := r.wards.InsertOne(ctx, w)
	return err
}

func (r *repoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Ward, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var w Ward
	if err := r.wards.FindOne(ctx, bson.M{"_id": id}).Decode(&w); err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *repoMongo) List(ctx context.Context, limit, offset int) ([]*Ward, int, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	total, err := r.wards.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "floor", Value: 1}, {Key: "name", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit)).SetSkip(int64(offset))
	}
	items, err := findAll[Ward](ctx, r.wards, bson.M{}, opts)
	return items, int(total), err
}

func (r *repoMongo) Count(ctx context.Context) (int, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	n, err := r.wards.CountDocuments(ctx, bson.M{})
	return int(n), err
}

func (r *repoMongo) CreateBed(ctx context.Context, b *Bed) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	if n, err := r.wards.CountDocuments(ctx, bson.M{"_id": b.WardID}); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	b.ID = uuid.New()
	if b.Features == nil {
		b.Features = []string{}
	}
	if _, err := r.beds.InsertOne(ctx, b); err != nil {
		if docstore.IsDuplicateKey(err) {
			return ErrBedNumberTaken
		}
		return err
	}
	return nil
}

func (r *repoMongo) BedsByWard(ctx context.Context, wardID uuid.UUID) ([]*Bed, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	return findAll[Bed](ctx, r.beds, bson.M{"ward_id": wardID}, options.Find().SetSort(bson.D{{Key: "number", Value: 1}}))
}

func (r *repoMongo) SetBedStatus(ctx context.Context, wardID, bedID uuid.UUID, status string, at time.Time) (*Bed, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": bedID, "ward_id": wardID, "status": bson.M{"$ne": BedOccupied}}
	set := bson.M{"status": status}
	if status == BedAvailable {
		// Stamp the cleaning time only when leaving the cleaning state.
		set["last_cleaned_at"] = bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", BedCleaning}}, at, "$last_cleaned_at"}}
	}
	var b Bed
	err := r.beds.FindOneAndUpdate(ctx, filter, mongo.Pipeline{{{Key: "$set", Value: set}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&b)
	if err == nil {
		return &b, nil
	}
	if !docstore.IsNotFound(err) {
		return nil, err
	}
	n, err := r.beds.CountDocuments(ctx, bson.M{"_id": bedID, "ward_id": wardID})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrBedNotFound
	}
	return nil, ErrBedOccupied
}

func (r *repoMongo) CreateResource(ctx context.Context, res *Resource) error {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	if n, err := r.wards.CountDocuments(ctx, bson.M{"_id": res.WardID}); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	res.ID = uuid.New()
	_, err := r.resources.InsertOne(ctx, res)
	return err
}

func (r *repoMongo) ResourcesByWard(ctx context.Context, wardID uuid.UUID) ([]*Resource, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	return findAll[Resource](ctx, r.resources, bson.M{"ward_id": wardID},
		options.Find().SetSort(bson.D{{Key: "type", Value: 1}, {Key: "name", Value: 1}}))
}

func (r *repoMongo) UpdateResource(ctx context.Context, wardID, resourceID uuid.UUID, u ResourceUpdate) (*Resource, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	set := bson.M{}
	if u.Quantity != nil {
		set["quantity"] = *u.Quantity
	}
	if u.MinimumRequired != nil {
		set["minimum_required"] = *u.MinimumRequired
	}
	if u.LastRestockedAt != nil {
		set["last_restocked_at"] = *u.LastRestockedAt
	}
	filter := bson.M{"_id": resourceID, "ward_id": wardID}
	var res Resource
	var err error
	if len(set) == 0 {
		err = r.resources.FindOne(ctx, filter).Decode(&res)
	} else {
		err = r.resources.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&res)
	}
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (r *repoMongo) LowStock(ctx context.Context) ([]*Resource, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	filter := bson.M{"$expr": bson.M{"$lt": bson.A{"$quantity", "$minimum_required"}}}
	return findAll[Resource](ctx, r.resources, filter,
		options.Find().SetSort(bson.D{{Key: "ward_id", Value: 1}, {Key: "name", Value: 1}}))
}

func (r *repoMongo) Admit(ctx context.Context, a *Assignment) (*Bed, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	w, err := r.GetByID(ctx, a.WardID)
	if err != nil {
		return nil, err
	}
	if w.Status != "active" {
		return nil, ErrWardInactive
	}

	var bed Bed
	err = r.beds.FindOneAndUpdate(ctx,
		bson.M{"ward_id": a.WardID, "status": BedAvailable},
		bson.M{"$set": bson.M{"status": BedOccupied, "current_patient_id": a.PatientID, "last_occupied_at": a.AssignedAt}},
		options.FindOneAndUpdate().SetSort(bson.D{{Key: "number", Value: 1}}).SetReturnDocument(options.After),
	).Decode(&bed)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrWardFull
		}
		return nil, err
	}

	a.ID = uuid.New()
	a.BedID = bed.ID
	a.Status = AssignmentActive
	if _, err := r.assignments.InsertOne(ctx, a); err != nil {
		_ = r.releaseBed(ctx, bed.ID, BedAvailable)
		return nil, err
	}
	if _, err := r.wards.UpdateByID(ctx, a.WardID, bson.M{
		"$inc": bson.M{"current_occupancy": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}); err != nil {
		return nil, err
	}
	return &bed, nil
}

func (r *repoMongo) releaseBed(ctx context.Context, bedID uuid.UUID, status string) error {
	_, err := r.beds.UpdateByID(ctx, bedID, bson.M{
		"$set":   bson.M{"status": status},
		"$unset": bson.M{"current_patient_id": ""},
	})
	return err
}

func (r *repoMongo) Discharge(ctx context.Context, assignmentID uuid.UUID, at time.Time) (*Assignment, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	var a Assignment
	err := r.assignments.FindOneAndUpdate(ctx,
		bson.M{"_id": assignmentID, "status": AssignmentActive},
		bson.M{"$set": bson.M{"status": AssignmentDischarged, "discharge_date": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)
	if err != nil {
		if !docstore.IsNotFound(err) {
			return nil, err
		}
		n, err := r.assignments.CountDocuments(ctx, bson.M{"_id": assignmentID})
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrAssignmentNotFound
		}
		return nil, ErrAlreadyDischarged
	}

	if err := r.releaseBed(ctx, a.BedID, BedCleaning); err != nil {
		return nil, err
	}
	if _, err := r.wards.UpdateOne(ctx,
		bson.M{"_id": a.WardID, "current_occupancy": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"current_occupancy": -1}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoMongo) ActiveAssignments(ctx context.Context, wardID uuid.UUID) ([]*Assignment, error) {
	ctx, cancel := docstore.WithTimeout(ctx)
	defer cancel()

	return findAll[Assignment](ctx, r.assignments, bson.M{"ward_id": wardID, "status": AssignmentActive},
		options.Find().SetSort(bson.D{{Key: "assigned_at", Value: 1}}))
}
