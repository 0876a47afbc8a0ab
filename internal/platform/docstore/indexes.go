package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names shared by the document repositories.
const (
	CollStaff          = "staff"
	CollAppointments   = "appointments"
	CollExaminations   = "examinations"
	CollPatients       = "patients"
	CollMessages       = "messages"
	CollWards          = "wards"
	CollBeds           = "beds"
	CollWardResources  = "ward_resources"
	CollBedAssignments = "bed_assignments"
	CollLabTests       = "lab_tests"
	CollEmergencyVisit = "emergency_visits"
)

// Indexes lists the secondary indexes each collection needs.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		CollStaff: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "employee_id", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "department", Value: 1}}},
		},
		CollAppointments: {
			{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "date_time", Value: 1}}},
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "date_time", Value: -1}}},
		},
		CollExaminations: {
			{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "scheduled_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_date", Value: 1}}},
		},
		CollPatients: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "last_name", Value: 1}, {Key: "first_name", Value: 1}}},
		},
		CollEmergencyVisit: {
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		CollMessages: {
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		CollBeds: {
			{Keys: bson.D{{Key: "ward_id", Value: 1}, {Key: "number", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollWardResources: {
			{Keys: bson.D{{Key: "ward_id", Value: 1}}},
		},
		CollBedAssignments: {
			{Keys: bson.D{{Key: "bed_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		CollLabTests: {
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "requested_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priority", Value: 1}}},
		},
	}
}

// EnsureIndexes creates every index from Indexes. CreateMany is idempotent for
// identical specifications.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for coll, models := range Indexes() {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
