package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrDoctorUnavailable = errors.New("doctor is not available at the requested time")
	ErrSlotTaken         = errors.New("doctor already has a booking overlapping the requested time")
	ErrInvalidRange      = errors.New("start_date must not be after end_date")
	ErrInvalidTransition = errors.New("booking can no longer change")
)

// SlotLength is the granularity of the schedule grid and the fixed window the
// admission check requires to fit inside a working window.
const SlotLength = 30 * time.Minute

// DefaultDuration applies when a booking omits its duration, in minutes.
const DefaultDuration = 30

// MaxScheduleDays caps a single schedule query.
const MaxScheduleDays = 366

type BookingKind string

const (
	KindAppointment BookingKind = "appointment"
	KindExamination BookingKind = "examination"
)

// BookedInterval is an active reservation of a doctor's time, [Start, End).
type BookedInterval struct {
	ID       uuid.UUID   `json:"id"`
	Kind     BookingKind `json:"kind"`
	DoctorID uuid.UUID   `json:"doctor_id"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
}

// TimeSlot is one cell of the schedule grid.
type TimeSlot struct {
	StartTime     string      `json:"start_time"`
	EndTime       string      `json:"end_time"`
	IsAvailable   bool        `json:"is_available"`
	AppointmentID *uuid.UUID  `json:"appointment_id,omitempty"`
	BookingKind   BookingKind `json:"booking_kind,omitempty"`
}

type DoctorSchedule struct {
	DoctorID  uuid.UUID  `json:"doctor_id"`
	Date      string     `json:"date"`
	TimeSlots []TimeSlot `json:"time_slots"`
}

// AvailableDoctorsQuery asks for doctors free for [StartTime, EndTime) on
// Date. Date is midnight in the facility zone; times are "HH:MM".
type AvailableDoctorsQuery struct {
	Date           time.Time
	StartTime      string
	EndTime        string
	Department     string
	Specialization string
}

// -- Appointment --

var validAppointmentTypes = map[string]bool{
	"regular_checkup": true, "follow_up": true, "consultation": true,
	"emergency": true, "vaccination": true, "lab_work": true,
}

var validAppointmentStatuses = map[string]bool{
	"scheduled": true, "confirmed": true, "completed": true,
	"cancelled": true, "no_show": true,
}

// Terminal appointment statuses accept no further changes.
var terminalAppointmentStatuses = map[string]bool{
	"completed": true, "cancelled": true, "no_show": true,
}

type Appointment struct {
	ID           uuid.UUID  `json:"id" bson:"_id"`
	PatientID    uuid.UUID  `json:"patient_id" bson:"patient_id"`
	DoctorID     uuid.UUID  `json:"doctor_id" bson:"doctor_id"`
	Type         string     `json:"type" bson:"type"`
	Status       string     `json:"status" bson:"status"`
	DateTime     time.Time  `json:"date_time" bson:"date_time"`
	Duration     int        `json:"duration" bson:"duration"`
	EndTime      time.Time  `json:"end_time" bson:"end_time"`
	Reason       string     `json:"reason,omitempty" bson:"reason,omitempty"`
	Notes        string     `json:"notes,omitempty" bson:"notes,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at"`
}

// Interval returns the booked span. EndTime is derived from DateTime and
// Duration.
func (a *Appointment) Interval() BookedInterval {
	return BookedInterval{
		ID: a.ID, Kind: KindAppointment, DoctorID: a.DoctorID,
		Start: a.DateTime, End: a.DateTime.Add(time.Duration(a.Duration) * time.Minute),
	}
}

// -- Examination --

var validExaminationTypes = map[string]bool{
	"physical": true, "laboratory": true, "imaging": true, "specialist": true,
}

var validExaminationStatuses = map[string]bool{
	"scheduled": true, "in_progress": true, "completed": true, "cancelled": true,
}

var terminalExaminationStatuses = map[string]bool{
	"completed": true, "cancelled": true,
}

type ExaminationResults struct {
	Findings        string   `json:"findings" bson:"findings"`
	Recommendations string   `json:"recommendations,omitempty" bson:"recommendations,omitempty"`
	Attachments     []string `json:"attachments,omitempty" bson:"attachments,omitempty"`
}

type Examination struct {
	ID            uuid.UUID           `json:"id" bson:"_id"`
	PatientID     uuid.UUID           `json:"patient_id" bson:"patient_id"`
	DoctorID      uuid.UUID           `json:"doctor_id" bson:"doctor_id"`
	Type          string              `json:"type" bson:"type"`
	Status        string              `json:"status" bson:"status"`
	ScheduledDate time.Time           `json:"scheduled_date" bson:"scheduled_date"`
	Duration      int                 `json:"duration" bson:"duration"`
	EndTime       time.Time           `json:"end_time" bson:"end_time"`
	Notes         string              `json:"notes,omitempty" bson:"notes,omitempty"`
	Results       *ExaminationResults `json:"results,omitempty" bson:"results,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancelReason  string              `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	CreatedAt     time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" bson:"updated_at"`
}

func (e *Examination) Interval() BookedInterval {
	return BookedInterval{
		ID: e.ID, Kind: KindExamination, DoctorID: e.DoctorID,
		Start: e.ScheduledDate, End: e.ScheduledDate.Add(time.Duration(e.Duration) * time.Minute),
	}
}
