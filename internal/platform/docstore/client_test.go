package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type uuidDoc struct {
	ID       uuid.UUID  `bson:"_id"`
	Assigned *uuid.UUID `bson:"assigned,omitempty"`
	Name     string     `bson:"name"`
}

func TestRegistry_UUIDRoundTrip(t *testing.T) {
	reg := Registry()
	assigned := uuid.New()
	in := uuidDoc{ID: uuid.New(), Assigned: &assigned, Name: "ward a"}

	raw, err := bson.MarshalWithRegistry(reg, in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	idVal := bson.Raw(raw).Lookup("_id")
	if idVal.Type != bson.TypeBinary {
		t.Fatalf("expected binary _id, got %v", idVal.Type)
	}
	subtype, _ := idVal.Binary()
	if subtype != bson.TypeBinaryUUID {
		t.Errorf("expected subtype 4, got %d", subtype)
	}

	var out uuidDoc
	if err := bson.UnmarshalWithRegistry(reg, raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != in.ID {
		t.Errorf("expected id %s, got %s", in.ID, out.ID)
	}
	if out.Assigned == nil || *out.Assigned != assigned {
		t.Errorf("expected assigned %s, got %v", assigned, out.Assigned)
	}
}

func TestRegistry_UUIDFromString(t *testing.T) {
	id := uuid.New()
	raw, err := bson.Marshal(bson.M{"_id": id.String(), "name": "legacy"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out uuidDoc
	if err := bson.UnmarshalWithRegistry(Registry(), raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != id {
		t.Errorf("expected %s, got %s", id, out.ID)
	}
}

func TestWithTimeout_KeepsEarlierDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ctx, done := WithTimeout(parent)
	defer done()

	pdl, _ := parent.Deadline()
	dl, ok := ctx.Deadline()
	if !ok || !dl.Equal(pdl) {
		t.Errorf("expected deadline %v, got %v", pdl, dl)
	}
}

func TestWithTimeout_AddsDeadline(t *testing.T) {
	ctx, done := WithTimeout(context.Background())
	defer done()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("expected a deadline")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(mongo.ErrNoDocuments) {
		t.Error("expected ErrNoDocuments to match")
	}
	if IsNotFound(errors.New("other")) {
		t.Error("expected other error not to match")
	}
}

func TestIndexes_CoverCollections(t *testing.T) {
	idx := Indexes()
	for _, coll := range []string{CollStaff, CollAppointments, CollExaminations, CollPatients, CollLabTests} {
		if len(idx[coll]) == 0 {
			t.Errorf("expected indexes for %s", coll)
		}
	}
}
