package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/patient"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/staff"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/events"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/telemetry"
)

// PatientDirectory confirms a patient is registered. Exists returns
// patient.ErrNotFound for unknown ids.
type PatientDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) error
}

// Service runs the booking flows on top of the Scheduler and a Store.
type Service struct {
	store     Store
	scheduler *Scheduler
	doctors   DoctorDirectory
	patients  PatientDirectory
	events    events.Publisher
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(store Store, scheduler *Scheduler, doctors DoctorDirectory, patients PatientDirectory, pub events.Publisher, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{
		store:     store,
		scheduler: scheduler,
		doctors:   doctors,
		patients:  patients,
		events:    pub,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Scheduler() *Scheduler { return s.scheduler }

func (s *Service) publish(ctx context.Context, eventType string, id uuid.UUID, payload any) {
	if err := s.events.Publish(ctx, events.New(eventType, id.String(), payload)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("aggregate_id", id.String()).Msg("publish event failed")
	}
}

func (s *Service) checkPatient(ctx context.Context, id uuid.UUID) error {
	if err := s.patients.Exists(ctx, id); err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return ErrPatientNotFound
		}
		return fmt.Errorf("find patient: %w", err)
	}
	return nil
}

// admit resolves the doctor once and applies the availability check at start.
func (s *Service) admit(ctx context.Context, kind BookingKind, doctorID uuid.UUID, start time.Time) error {
	doc, err := s.doctors.FindDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, staff.ErrNotFound) {
			return ErrDoctorNotFound
		}
		return fmt.Errorf("find doctor: %w", err)
	}
	if !s.scheduler.Admits(doc, start) {
		s.metrics.Booking(string(kind), "unavailable")
		return ErrDoctorUnavailable
	}
	return nil
}

func (s *Service) recordReserve(kind BookingKind, err error) {
	switch {
	case err == nil:
		s.metrics.Booking(string(kind), "created")
	case errors.Is(err, ErrSlotTaken):
		s.metrics.Booking(string(kind), "conflict")
	default:
		s.metrics.Booking(string(kind), "error")
	}
}

func normalizeDuration(d int) (int, error) {
	switch {
	case d == 0:
		return DefaultDuration, nil
	case d < 0 || d > 24*60:
		return 0, apperr.Invalid("duration must be between 1 and 1440 minutes")
	}
	return d, nil
}

// -- Appointments --

func validateAppointment(a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id is required")
	}
	if a.DoctorID == uuid.Nil {
		return apperr.Invalid("doctor_id is required")
	}
	if a.DateTime.IsZero() {
		return apperr.Invalid("date_time is required")
	}
	if a.Type == "" {
		a.Type = "regular_checkup"
	}
	if !validAppointmentTypes[a.Type] {
		return apperr.Invalid("invalid appointment type: %q", a.Type)
	}
	if a.Status == "" {
		a.Status = "scheduled"
	}
	if a.Status != "scheduled" && a.Status != "confirmed" {
		return apperr.Invalid("new appointments must be scheduled or confirmed, got %q", a.Status)
	}
	d, err := normalizeDuration(a.Duration)
	if err != nil {
		return err
	}
	a.Duration = d
	return nil
}

// CreateAppointment books a. The doctor must exist and be available at
// a.DateTime; the reservation fails with ErrSlotTaken on overlap.
func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	ctx, span := telemetry.Tracer().Start(ctx, "scheduling.CreateAppointment")
	defer span.End()

	if err := validateAppointment(a); err != nil {
		return err
	}
	if err := s.checkPatient(ctx, a.PatientID); err != nil {
		return err
	}
	if err := s.admit(ctx, KindAppointment, a.DoctorID, a.DateTime); err != nil {
		return err
	}
	a.EndTime = a.Interval().End
	a.CancelledAt, a.CancelReason = nil, ""

	err := s.store.Appointments.Reserve(ctx, a)
	s.recordReserve(KindAppointment, err)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("appointment.id", a.ID.String()))
	s.scheduler.InvalidateDoctor(ctx, a.DoctorID)
	s.logger.Info().Str("appointment_id", a.ID.String()).Str("doctor_id", a.DoctorID.String()).
		Time("date_time", a.DateTime).Msg("appointment booked")
	s.publish(ctx, events.AppointmentCreated, a.ID, a)
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.Appointments.GetByID(ctx, id)
}

// RescheduleAppointment moves an open appointment to at, keeping its
// duration. The appointment's current interval does not block the move.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "scheduling.RescheduleAppointment")
	defer span.End()

	if at.IsZero() {
		return nil, apperr.Invalid("date_time is required")
	}
	a, err := s.store.Appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if terminalAppointmentStatuses[a.Status] {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
	}
	if err := s.admit(ctx, KindAppointment, a.DoctorID, at); err != nil {
		return nil, err
	}

	previous := a.DateTime
	a.DateTime = at
	a.EndTime = a.Interval().End
	if err := s.store.Appointments.Reschedule(ctx, a); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.Booking(string(KindAppointment), "conflict")
		}
		return nil, err
	}
	s.metrics.Booking(string(KindAppointment), "rescheduled")
	s.scheduler.InvalidateDoctor(ctx, a.DoctorID)
	s.publish(ctx, events.AppointmentRescheduled, a.ID, map[string]any{
		"appointment":       a,
		"previous_datetime": previous,
	})
	return a, nil
}

// UpdateAppointmentStatus moves an open appointment to status. Cancelling
// stamps the cancellation and releases the doctor's time.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status, cancelReason string) (*Appointment, error) {
	if !validAppointmentStatuses[status] {
		return nil, apperr.Invalid("invalid appointment status: %q", status)
	}
	a, err := s.store.Appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if terminalAppointmentStatuses[a.Status] {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
	}

	a.Status = status
	eventType := events.AppointmentStatus
	if status == "cancelled" {
		now := s.now().UTC()
		a.CancelledAt = &now
		a.CancelReason = cancelReason
		eventType = events.AppointmentCancelled
	}
	if err := s.store.Appointments.UpdateStatus(ctx, a); err != nil {
		return nil, err
	}
	if status == "cancelled" {
		s.metrics.Booking(string(KindAppointment), "cancelled")
		s.scheduler.InvalidateDoctor(ctx, a.DoctorID)
	}
	s.publish(ctx, eventType, a.ID, a)
	return a, nil
}

func (s *Service) AppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.store.Appointments.ListByPatient(ctx, patientID, nil, limit, offset)
}

// UpcomingAppointments lists scheduled or confirmed appointments from now on.
func (s *Service) UpcomingAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	now := s.now()
	return s.store.Appointments.ListByPatient(ctx, patientID, &now, limit, offset)
}

func (s *Service) AppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	if from.After(to) {
		return nil, ErrInvalidRange
	}
	return s.store.Appointments.ListByDoctor(ctx, doctorID, from, to)
}

// CountUpcoming counts open appointments from now on.
func (s *Service) CountUpcoming(ctx context.Context) (int, error) {
	return s.store.Appointments.CountUpcoming(ctx, s.now())
}

// -- Examinations --

func validateExamination(e *Examination) error {
	if e.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id is required")
	}
	if e.DoctorID == uuid.Nil {
		return apperr.Invalid("doctor_id is required")
	}
	if e.ScheduledDate.IsZero() {
		return apperr.Invalid("scheduled_date is required")
	}
	if !validExaminationTypes[e.Type] {
		return apperr.Invalid("invalid examination type: %q", e.Type)
	}
	e.Status = "scheduled"
	d, err := normalizeDuration(e.Duration)
	if err != nil {
		return err
	}
	e.Duration = d
	return nil
}

// CreateExamination books e the same way CreateAppointment books an
// appointment. Examinations and appointments share the doctor's time.
func (s *Service) CreateExamination(ctx context.Context, e *Examination) error {
	ctx, span := telemetry.Tracer().Start(ctx, "scheduling.CreateExamination")
	defer span.End()

	if err := validateExamination(e); err != nil {
		return err
	}
	if err := s.checkPatient(ctx, e.PatientID); err != nil {
		return err
	}
	if err := s.admit(ctx, KindExamination, e.DoctorID, e.ScheduledDate); err != nil {
		return err
	}
	e.EndTime = e.Interval().End
	e.Results, e.CompletedAt, e.CancelledAt, e.CancelReason = nil, nil, nil, ""

	err := s.store.Examinations.Reserve(ctx, e)
	s.recordReserve(KindExamination, err)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("examination.id", e.ID.String()))
	s.scheduler.InvalidateDoctor(ctx, e.DoctorID)
	s.publish(ctx, events.ExaminationCreated, e.ID, e)
	return nil
}

func (s *Service) GetExamination(ctx context.Context, id uuid.UUID) (*Examination, error) {
	return s.store.Examinations.GetByID(ctx, id)
}

// ExaminationUpdate is a status change with its optional payload.
type ExaminationUpdate struct {
	Status       string              `json:"status"`
	Results      *ExaminationResults `json:"results,omitempty"`
	CancelReason string              `json:"cancel_reason,omitempty"`
}

// UpdateExaminationStatus applies u. Completing stamps completed_at and
// stores the results; cancelling releases the doctor's time.
func (s *Service) UpdateExaminationStatus(ctx context.Context, id uuid.UUID, u ExaminationUpdate) (*Examination, error) {
	if !validExaminationStatuses[u.Status] {
		return nil, apperr.Invalid("invalid examination status: %q", u.Status)
	}
	e, err := s.store.Examinations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if terminalExaminationStatuses[e.Status] {
		return nil, fmt.Errorf("%w: examination is %s", ErrInvalidTransition, e.Status)
	}

	now := s.now().UTC()
	e.Status = u.Status
	switch u.Status {
	case "completed":
		e.CompletedAt = &now
		if u.Results != nil {
			e.Results = u.Results
		}
	case "cancelled":
		e.CancelledAt = &now
		e.CancelReason = u.CancelReason
	}
	if err := s.store.Examinations.UpdateStatus(ctx, e); err != nil {
		return nil, err
	}
	if u.Status == "cancelled" {
		s.metrics.Booking(string(KindExamination), "cancelled")
		s.scheduler.InvalidateDoctor(ctx, e.DoctorID)
	}
	s.publish(ctx, events.ExaminationStatus, e.ID, e)
	return e, nil
}

func (s *Service) ExaminationsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Examination, error) {
	if from.After(to) {
		return nil, ErrInvalidRange
	}
	return s.store.Examinations.ListByDoctor(ctx, doctorID, from, to)
}

// PendingExaminations lists scheduled and in-progress examinations.
func (s *Service) PendingExaminations(ctx context.Context) ([]*Examination, error) {
	return s.store.Examinations.ListPending(ctx)
}
