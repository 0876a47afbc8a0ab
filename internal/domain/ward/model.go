package ward

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("ward not found")
	ErrBedNotFound        = errors.New("bed not found")
	ErrResourceNotFound   = errors.New("ward resource not found")
	ErrAssignmentNotFound = errors.New("bed assignment not found")
	ErrWardFull           = errors.New("no available beds in the ward")
	ErrWardInactive       = errors.New("ward is not accepting patients")
	ErrBedNumberTaken     = errors.New("bed number already exists in the ward")
	ErrAlreadyDischarged  = errors.New("assignment is not active")
	ErrBedOccupied        = errors.New("bed is occupied")
)

var validTypes = map[string]bool{
	"general": true, "intensive_care": true, "emergency": true, "pediatric": true,
	"maternity": true, "surgery": true, "psychiatric": true, "isolation": true,
}

var validStatuses = map[string]bool{"active": true, "maintenance": true, "closed": true}

const (
	BedAvailable   = "available"
	BedOccupied    = "occupied"
	BedReserved    = "reserved"
	BedMaintenance = "maintenance"
	BedCleaning    = "cleaning"
)

var validBedStatuses = map[string]bool{
	BedAvailable: true, BedOccupied: true, BedReserved: true, BedMaintenance: true, BedCleaning: true,
}

var validResourceTypes = map[string]bool{
	"medical_equipment": true, "medication": true, "supplies": true, "staff": true,
}

type Ward struct {
	ID               uuid.UUID   `json:"id" bson:"_id"`
	Name             string      `json:"name" bson:"name"`
	Type             string      `json:"type" bson:"type"`
	Floor            int         `json:"floor" bson:"floor"`
	Capacity         int         `json:"capacity" bson:"capacity"`
	CurrentOccupancy int         `json:"current_occupancy" bson:"current_occupancy"`
	AssignedStaff    []uuid.UUID `json:"assigned_staff" bson:"assigned_staff"`
	Status           string      `json:"status" bson:"status"`
	Notes            string      `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt        time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" bson:"updated_at"`
}

type Bed struct {
	ID               uuid.UUID  `json:"id" bson:"_id"`
	WardID           uuid.UUID  `json:"ward_id" bson:"ward_id"`
	Number           string     `json:"number" bson:"number"`
	Status           string     `json:"status" bson:"status"`
	CurrentPatientID *uuid.UUID `json:"current_patient_id,omitempty" bson:"current_patient_id,omitempty"`
	LastOccupiedAt   *time.Time `json:"last_occupied_at,omitempty" bson:"last_occupied_at,omitempty"`
	LastCleanedAt    *time.Time `json:"last_cleaned_at,omitempty" bson:"last_cleaned_at,omitempty"`
	Features         []string   `json:"features" bson:"features"`
}

type Resource struct {
	ID              uuid.UUID  `json:"id" bson:"_id"`
	WardID          uuid.UUID  `json:"ward_id" bson:"ward_id"`
	Type            string     `json:"type" bson:"type"`
	Name            string     `json:"name" bson:"name"`
	Quantity        int        `json:"quantity" bson:"quantity"`
	MinimumRequired int        `json:"minimum_required" bson:"minimum_required"`
	LastRestockedAt *time.Time `json:"last_restocked_at,omitempty" bson:"last_restocked_at,omitempty"`
}

// LowStock reports whether the resource is below its minimum.
func (r *Resource) LowStock() bool { return r.Quantity < r.MinimumRequired }

// ResourceUpdate carries the fields a restock or correction may change.
type ResourceUpdate struct {
	Quantity        *int       `json:"quantity"`
	MinimumRequired *int       `json:"minimum_required"`
	LastRestockedAt *time.Time `json:"-"`
}

const (
	AssignmentActive     = "active"
	AssignmentDischarged = "discharged"
	AssignmentTransfer   = "transferred"
)

type Assignment struct {
	ID                   uuid.UUID  `json:"id" bson:"_id"`
	PatientID            uuid.UUID  `json:"patient_id" bson:"patient_id"`
	WardID               uuid.UUID  `json:"ward_id" bson:"ward_id"`
	BedID                uuid.UUID  `json:"bed_id" bson:"bed_id"`
	AssignedBy           *uuid.UUID `json:"assigned_by,omitempty" bson:"assigned_by,omitempty"`
	AssignedAt           time.Time  `json:"assigned_at" bson:"assigned_at"`
	ExpectedDurationDays int        `json:"expected_duration_days,omitempty" bson:"expected_duration_days,omitempty"`
	DischargeDate        *time.Time `json:"discharge_date,omitempty" bson:"discharge_date,omitempty"`
	Status               string     `json:"status" bson:"status"`
	Notes                string     `json:"notes,omitempty" bson:"notes,omitempty"`
}

// Status is the occupancy view of one ward.
type Status struct {
	Ward          *Ward       `json:"ward"`
	Beds          []*Bed      `json:"beds"`
	Resources     []*Resource `json:"resources"`
	AvailableBeds int         `json:"available_beds"`
	OccupancyRate float64     `json:"occupancy_rate"`
}
