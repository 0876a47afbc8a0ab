package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/staff"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/telemetry"
	"github.com/k0t0k0t0/hospital-management-system-be/pkg/timerange"
)

const slotMinutes = int(SlotLength / time.Minute)

// slotBounds lists the [start, end) minute pairs of the grid for a window.
// By default the grid runs over whole hours from the start hour up to, but
// excluding, the end hour, so minute offsets in the window are ignored.
// Aligned grids start at the window start and keep only slots that fit.
func slotBounds(start, end int, align bool) [][2]int {
	var out [][2]int
	if align {
		for m := start; m+slotMinutes <= end; m += slotMinutes {
			out = append(out, [2]int{m, m + slotMinutes})
		}
		return out
	}
	for h := start / 60; h < end/60; h++ {
		out = append(out, [2]int{h * 60, h*60 + slotMinutes}, [2]int{h*60 + slotMinutes, (h + 1) * 60})
	}
	return out
}

// buildDaySlots marks each grid slot of day against bookings. The first
// overlapping booking is attached to an unavailable slot.
func buildDaySlots(day time.Time, start, end int, align bool, bookings []BookedInterval) []TimeSlot {
	bounds := slotBounds(start, end, align)
	slots := make([]TimeSlot, 0, len(bounds))
	for _, b := range bounds {
		span := timerange.Interval{Start: timerange.At(day, b[0]), End: timerange.At(day, b[1])}
		slot := TimeSlot{
			StartTime:   timerange.FormatMinutes(b[0]),
			EndTime:     timerange.FormatMinutes(b[1]),
			IsAvailable: true,
		}
		for i := range bookings {
			if span.Overlaps(timerange.Interval{Start: bookings[i].Start, End: bookings[i].End}) {
				id := bookings[i].ID
				slot.IsAvailable = false
				slot.AppointmentID = &id
				slot.BookingKind = bookings[i].Kind
				break
			}
		}
		slots = append(slots, slot)
	}
	return slots
}

// GetDoctorSchedule builds the slot grid for every day in [startDate,
// endDate] on which the doctor has a window. Both bounds are calendar days in
// the facility zone; the end day is included in full.
func (s *Scheduler) GetDoctorSchedule(ctx context.Context, doctorID uuid.UUID, startDate, endDate time.Time) ([]DoctorSchedule, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "scheduling.GetDoctorSchedule")
	defer span.End()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()))

	first := timerange.StartOfDay(startDate.In(s.loc))
	last := timerange.StartOfDay(endDate.In(s.loc))
	if first.After(last) {
		return nil, ErrInvalidRange
	}
	if days := int(last.Sub(first).Hours()/24) + 1; days > MaxScheduleDays {
		return nil, fmt.Errorf("%w: at most %d days per request", ErrInvalidRange, MaxScheduleDays)
	}

	doc, err := s.doctors.FindDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, staff.ErrNotFound) {
			return nil, ErrDoctorNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("find doctor: %w", err)
	}
	details, ok := doc.Doctor()
	if !ok {
		return nil, ErrDoctorNotFound
	}

	gen, genErr := s.cache.Generation(ctx, generationKey(doctorID))
	cacheable := genErr == nil
	if !cacheable {
		s.logger.Warn().Err(genErr).Msg("schedule cache generation lookup failed")
	}
	cacheKey := fmt.Sprintf("schedule:%s:%d:%s:%s:%t", doctorID, gen, first.Format(timerange.DateLayout), last.Format(timerange.DateLayout), s.align)
	if cacheable {
		var cached []DoctorSchedule
		if hit, cerr := s.cache.Get(ctx, cacheKey, &cached); cerr == nil && hit {
			s.metrics.ScheduleCacheResult("hit")
			return cached, nil
		}
		s.metrics.ScheduleCacheResult("miss")
	}

	rangeEnd := last.AddDate(0, 0, 1)
	bookings, err := s.bookings.FindBookingsByDoctorAndDateRange(ctx, doctorID, first, rangeEnd)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("find bookings: %w", err)
	}

	schedule := make([]DoctorSchedule, 0)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		start, end, ok := WorkingWindow(details, day)
		if !ok {
			continue
		}
		schedule = append(schedule, DoctorSchedule{
			DoctorID:  doctorID,
			Date:      day.Format(timerange.DateLayout),
			TimeSlots: buildDaySlots(day, start, end, s.align, bookingsOn(bookings, day)),
		})
	}

	if cacheable {
		if serr := s.cache.Set(ctx, cacheKey, schedule, s.cacheTTL); serr != nil {
			s.logger.Warn().Err(serr).Msg("schedule cache write failed")
		}
	}
	span.SetAttributes(attribute.Int("schedule.days", len(schedule)))
	return schedule, nil
}

// bookingsOn keeps bookings touching day's 24 hours.
func bookingsOn(all []BookedInterval, day time.Time) []BookedInterval {
	dayspan := timerange.Interval{Start: day, End: day.AddDate(0, 0, 1)}
	var out []BookedInterval
	for _, b := range all {
		if dayspan.Overlaps(timerange.Interval{Start: b.Start, End: b.End}) {
			out = append(out, b)
		}
	}
	return out
}
