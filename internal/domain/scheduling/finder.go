package scheduling

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/staff"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/telemetry"
	"github.com/k0t0k0t0/hospital-management-system-be/pkg/timerange"
)

// GetAvailableDoctors returns doctors matching the filters whose window on the
// query's weekday contains the requested span and who have no booking
// overlapping it. Any failure yields an empty list; the cause is logged.
func (s *Scheduler) GetAvailableDoctors(ctx context.Context, q AvailableDoctorsQuery) []*staff.Staff {
	ctx, span := telemetry.Tracer().Start(ctx, "scheduling.GetAvailableDoctors")
	defer span.End()

	doctors, err := s.availableDoctors(ctx, q)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("date", q.Date.Format(timerange.DateLayout)).
			Str("start_time", q.StartTime).
			Str("end_time", q.EndTime).
			Msg("available doctor search failed; returning no doctors")
		s.metrics.FinderSoftFailure()
		span.SetAttributes(attribute.Bool("search.soft_failed", true))
		return []*staff.Staff{}
	}
	span.SetAttributes(attribute.Int("search.results", len(doctors)))
	return doctors
}

func (s *Scheduler) availableDoctors(ctx context.Context, q AvailableDoctorsQuery) ([]*staff.Staff, error) {
	reqStart, err := timerange.ToMinutes(q.StartTime)
	if err != nil {
		return nil, err
	}
	reqEnd, err := timerange.ToMinutes(q.EndTime)
	if err != nil {
		return nil, err
	}

	candidates, err := s.doctors.FindDoctors(ctx, staff.DoctorFilter{
		Department:     q.Department,
		Specialization: q.Specialization,
	})
	if err != nil {
		return nil, err
	}

	day := timerange.StartOfDay(q.Date.In(s.loc))
	var inWindow []*staff.Staff
	for _, doc := range candidates {
		d, ok := doc.Doctor()
		if !ok {
			continue
		}
		start, end, ok := WorkingWindow(d, day)
		if ok && timerange.IsWithinRange(reqStart, reqEnd, start, end) {
			inWindow = append(inWindow, doc)
		}
	}
	if len(inWindow) == 0 {
		return []*staff.Staff{}, nil
	}

	busy, err := s.bookings.FindBusyDoctorIDs(ctx, timerange.At(day, reqStart), timerange.At(day, reqEnd))
	if err != nil {
		return nil, err
	}
	busySet := make(map[uuid.UUID]bool, len(busy))
	for _, id := range busy {
		busySet[id] = true
	}

	out := make([]*staff.Staff, 0, len(inWindow))
	for _, doc := range inWindow {
		if !busySet[doc.ID] {
			out = append(out, doc)
		}
	}
	return out, nil
}
