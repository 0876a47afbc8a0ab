package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/staff"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/telemetry"
	"github.com/k0t0k0t0/hospital-management-system-be/pkg/timerange"
)

// WorkingWindow returns the doctor's window for day's weekday as minutes since
// midnight. Missing or malformed windows report ok=false.
func WorkingWindow(d *staff.DoctorDetails, day time.Time) (start, end int, ok bool) {
	w, found := d.WindowFor(timerange.DayOf(day))
	if !found {
		return 0, 0, false
	}
	start, end, err := w.Minutes()
	if err != nil || start >= end {
		return 0, 0, false
	}
	return start, end, true
}

// admits applies the admission rule: at must fall inside the weekday window
// with a full SlotLength left before the window closes. The booking's own
// duration is not consulted.
func admits(d *staff.DoctorDetails, at time.Time) bool {
	start, end, ok := WorkingWindow(d, at)
	if !ok {
		return false
	}
	m := timerange.MinuteOfDay(at)
	return m >= start && m+int(SlotLength/time.Minute) <= end
}

// CheckDoctorAvailability reports whether doctorID works at the given instant.
// Lookup failures count as unavailable.
func (s *Scheduler) CheckDoctorAvailability(ctx context.Context, doctorID uuid.UUID, at time.Time) bool {
	ctx, span := telemetry.Tracer().Start(ctx, "scheduling.CheckDoctorAvailability")
	defer span.End()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()))

	doc, err := s.doctors.FindDoctorByID(ctx, doctorID)
	if err != nil {
		s.logger.Debug().Err(err).Str("doctor_id", doctorID.String()).Msg("availability lookup failed")
		s.metrics.AvailabilityCheck(false)
		span.SetAttributes(attribute.Bool("doctor.available", false))
		return false
	}
	available := s.Admits(doc, at)
	span.SetAttributes(attribute.Bool("doctor.available", available))
	return available
}

// Admits applies the admission rule to an already resolved staff record.
// Staff who are not doctors are never admitted.
func (s *Scheduler) Admits(doc *staff.Staff, at time.Time) bool {
	available := false
	if d, ok := doc.Doctor(); ok {
		available = admits(d, at.In(s.loc))
	}
	s.metrics.AvailabilityCheck(available)
	return available
}
