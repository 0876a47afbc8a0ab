package labtest

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("lab test not found")
	ErrInvalidTransition = errors.New("lab test is already closed")
)

const (
	StatusRequested  = "requested"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var validStatuses = map[string]bool{
	StatusRequested: true, StatusInProgress: true, StatusCompleted: true, StatusCancelled: true,
}

// priorityRank orders pending work; lower runs first.
var priorityRank = map[string]int{"stat": 0, "urgent": 1, "routine": 2}

type Results struct {
	Data        map[string]any `json:"data" bson:"data"`
	Notes       string         `json:"notes,omitempty" bson:"notes,omitempty"`
	Attachments []string       `json:"attachments,omitempty" bson:"attachments,omitempty"`
}

type LabTest struct {
	ID            uuid.UUID  `json:"id" bson:"_id"`
	PatientID     uuid.UUID  `json:"patient_id" bson:"patient_id"`
	RequestedBy   uuid.UUID  `json:"requested_by" bson:"requested_by"`
	AssignedTo    *uuid.UUID `json:"assigned_to,omitempty" bson:"assigned_to,omitempty"`
	Type          string     `json:"type" bson:"type"`
	Status        string     `json:"status" bson:"status"`
	Priority      string     `json:"priority" bson:"priority"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty" bson:"scheduled_date,omitempty"`
	Results       *Results   `json:"results,omitempty" bson:"results,omitempty"`
	Notes         string     `json:"notes,omitempty" bson:"notes,omitempty"`
	RequestedAt   time.Time  `json:"requested_at" bson:"requested_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at" bson:"updated_at"`
}

// Closed reports whether the test can no longer change status.
func (t *LabTest) Closed() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}

// Pending reports whether the test still waits on the lab.
func (t *LabTest) Pending() bool {
	return t.Status == StatusRequested || t.Status == StatusInProgress
}

// sortByUrgency orders tests by priority, then by request time.
func sortByUrgency(tests []*LabTest) {
	sort.SliceStable(tests, func(i, j int) bool {
		pi, pj := priorityRank[tests[i].Priority], priorityRank[tests[j].Priority]
		if pi != pj {
			return pi < pj
		}
		return tests[i].RequestedAt.Before(tests[j].RequestedAt)
	})
}
