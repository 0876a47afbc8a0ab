package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/staff"
)

// DoctorDirectory resolves doctors. FindDoctorByID returns staff.ErrNotFound
// for unknown ids and for staff who are not doctors.
type DoctorDirectory interface {
	FindDoctorByID(ctx context.Context, id uuid.UUID) (*staff.Staff, error)
	FindDoctors(ctx context.Context, f staff.DoctorFilter) ([]*staff.Staff, error)
}

// BookingReader reads active (non-cancelled) bookings of both kinds. Both
// methods select bookings whose interval overlaps [from, to).
type BookingReader interface {
	FindBookingsByDoctorAndDateRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]BookedInterval, error)
	FindBusyDoctorIDs(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

// AppointmentRepository persists appointments. Reserve and Reschedule are
// atomic: they fail with ErrSlotTaken instead of writing a booking that
// overlaps another active booking of the same doctor.
type AppointmentRepository interface {
	Reserve(ctx context.Context, a *Appointment) error
	Reschedule(ctx context.Context, a *Appointment) error
	// UpdateStatus writes status and cancellation fields. A cancelled
	// appointment no longer occupies the doctor's time.
	UpdateStatus(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, upcomingFrom *time.Time, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	CountUpcoming(ctx context.Context, from time.Time) (int, error)
}

type ExaminationRepository interface {
	Reserve(ctx context.Context, e *Examination) error
	UpdateStatus(ctx context.Context, e *Examination) error
	GetByID(ctx context.Context, id uuid.UUID) (*Examination, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Examination, error)
	ListPending(ctx context.Context) ([]*Examination, error)
}

// Store bundles the repositories of one storage backend.
type Store struct {
	Appointments AppointmentRepository
	Examinations ExaminationRepository
	Bookings     BookingReader
}
