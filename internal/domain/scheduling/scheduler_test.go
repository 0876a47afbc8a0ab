package scheduling

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/staff"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/cache"
	"github.com/k0t0k0t0/hospital-management-system-be/pkg/timerange"
)

// -- mock doctor directory --

type mockDirectory struct {
	staff   map[uuid.UUID]*staff.Staff
	err     error
	lookups int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{staff: make(map[uuid.UUID]*staff.Staff)}
}

func (m *mockDirectory) add(s *staff.Staff) *staff.Staff {
	m.staff[s.ID] = s
	return s
}

func (m *mockDirectory) FindDoctorByID(_ context.Context, id uuid.UUID) (*staff.Staff, error) {
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.staff[id]
	if !ok || s.Role != staff.RoleDoctor {
		return nil, staff.ErrNotFound
	}
	return s, nil
}

func (m *mockDirectory) FindDoctors(_ context.Context, f staff.DoctorFilter) ([]*staff.Staff, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*staff.Staff
	for _, s := range m.staff {
		d, ok := s.Doctor()
		if !ok {
			continue
		}
		if f.Department != "" && s.Department != f.Department {
			continue
		}
		if f.Specialization != "" && d.Specialization != f.Specialization {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// -- in-memory booking store --

type memStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	examinations map[uuid.UUID]*Examination
	readErr      error
}

func newMemStore() *memStore {
	return &memStore{
		appointments: make(map[uuid.UUID]*Appointment),
		examinations: make(map[uuid.UUID]*Examination),
	}
}

func (m *memStore) store() Store {
	return Store{Appointments: memAppointments{m}, Examinations: memExaminations{m}, Bookings: m}
}

// active lists active bookings; the caller holds mu.
func (m *memStore) active() []BookedInterval {
	var out []BookedInterval
	for _, a := range m.appointments {
		if a.Status != "cancelled" {
			out = append(out, a.Interval())
		}
	}
	for _, e := range m.examinations {
		if e.Status != "cancelled" {
			out = append(out, e.Interval())
		}
	}
	return out
}

func (m *memStore) conflicts(b BookedInterval) bool {
	span := timerange.Interval{Start: b.Start, End: b.End}
	for _, o := range m.active() {
		if o.ID != b.ID && o.DoctorID == b.DoctorID && span.Overlaps(timerange.Interval{Start: o.Start, End: o.End}) {
			return true
		}
	}
	return false
}

func (m *memStore) FindBookingsByDoctorAndDateRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]BookedInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	span := timerange.Interval{Start: from, End: to}
	var out []BookedInterval
	for _, b := range m.active() {
		if b.DoctorID == doctorID && span.Overlaps(timerange.Interval{Start: b.Start, End: b.End}) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) FindBusyDoctorIDs(_ context.Context, from, to time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	span := timerange.Interval{Start: from, End: to}
	var out []uuid.UUID
	for _, b := range m.active() {
		if span.Overlaps(timerange.Interval{Start: b.Start, End: b.End}) {
			out = append(out, b.DoctorID)
		}
	}
	return out, nil
}

type memAppointments struct{ m *memStore }

func (r memAppointments) Reserve(_ context.Context, a *Appointment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a.ID = uuid.New()
	if r.m.conflicts(a.Interval()) {
		return ErrSlotTaken
	}
	cp := *a
	r.m.appointments[a.ID] = &cp
	return nil
}

func (r memAppointments) Reschedule(_ context.Context, a *Appointment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.appointments[a.ID]; !ok {
		return ErrNotFound
	}
	if r.m.conflicts(a.Interval()) {
		return ErrSlotTaken
	}
	cp := *a
	r.m.appointments[a.ID] = &cp
	return nil
}

func (r memAppointments) UpdateStatus(_ context.Context, a *Appointment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.appointments[a.ID]; !ok {
		return ErrNotFound
	}
	cp := *a
	r.m.appointments[a.ID] = &cp
	return nil
}

func (r memAppointments) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAppointments) ListByPatient(_ context.Context, patientID uuid.UUID, upcomingFrom *time.Time, limit, offset int) ([]*Appointment, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*Appointment
	for _, a := range r.m.appointments {
		if a.PatientID != patientID {
			continue
		}
		if upcomingFrom != nil && (a.DateTime.Before(*upcomingFrom) || terminalAppointmentStatuses[a.Status]) {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (r memAppointments) ListByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*Appointment
	for _, a := range r.m.appointments {
		if a.DoctorID == doctorID && !a.DateTime.Before(from) && a.DateTime.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memAppointments) CountUpcoming(_ context.Context, from time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, a := range r.m.appointments {
		if !a.DateTime.Before(from) && !terminalAppointmentStatuses[a.Status] {
			n++
		}
	}
	return n, nil
}

type memExaminations struct{ m *memStore }

func (r memExaminations) Reserve(_ context.Context, e *Examination) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e.ID = uuid.New()
	if r.m.conflicts(e.Interval()) {
		return ErrSlotTaken
	}
	cp := *e
	r.m.examinations[e.ID] = &cp
	return nil
}

func (r memExaminations) UpdateStatus(_ context.Context, e *Examination) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.examinations[e.ID]; !ok {
		return ErrNotFound
	}
	cp := *e
	r.m.examinations[e.ID] = &cp
	return nil
}

func (r memExaminations) GetByID(_ context.Context, id uuid.UUID) (*Examination, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.examinations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r memExaminations) ListByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Examination, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*Examination
	for _, e := range r.m.examinations {
		if e.DoctorID == doctorID && !e.ScheduledDate.Before(from) && e.ScheduledDate.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memExaminations) ListPending(_ context.Context) ([]*Examination, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*Examination
	for _, e := range r.m.examinations {
		if !terminalExaminationStatuses[e.Status] {
			out = append(out, e)
		}
	}
	return out, nil
}

// -- fixtures --

// 2024-01-15 is a Monday.
var monday = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func newDoctor(dept, spec string, windows ...staff.Availability) *staff.Staff {
	return &staff.Staff{
		ID:         uuid.New(),
		FirstName:  "Gregory",
		LastName:   "House",
		Email:      uuid.NewString() + "@example.com",
		Department: dept,
		Role:       staff.RoleDoctor,
		Details: &staff.DoctorDetails{
			Specialization: spec,
			LicenseNumber:  "MD-1",
			Availability:   windows,
		},
	}
}

func window(day timerange.Weekday, start, end string) staff.Availability {
	return staff.Availability{Day: day, StartTime: start, EndTime: end}
}

func at(day time.Time, hhmm string) time.Time {
	m, err := timerange.ToMinutes(hhmm)
	if err != nil {
		panic(err)
	}
	return timerange.At(day, m)
}

func newTestScheduler(dir DoctorDirectory, bookings BookingReader, cfg SchedulerConfig) *Scheduler {
	cfg.Logger = zerolog.Nop()
	return NewScheduler(dir, bookings, cfg)
}

// -- availability --

func TestCheckDoctorAvailability(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("cardiology", "cardiologist", window(timerange.Monday, "09:00", "17:00")))
	nurse := dir.add(&staff.Staff{ID: uuid.New(), Role: staff.RoleNurse, Details: &staff.NurseDetails{Shift: "morning"}})
	broken := dir.add(newDoctor("cardiology", "cardiologist", window(timerange.Monday, "9am", "17:00")))
	s := newTestScheduler(dir, newMemStore(), SchedulerConfig{})
	ctx := context.Background()

	tests := []struct {
		name   string
		doctor uuid.UUID
		at     time.Time
		want   bool
	}{
		{"inside window", doc.ID, at(monday, "10:00"), true},
		{"window start", doc.ID, at(monday, "09:00"), true},
		{"last full slot", doc.ID, at(monday, "16:30"), true},
		{"one minute past last slot", doc.ID, at(monday, "16:31"), false},
		{"slot would overrun window", doc.ID, at(monday, "16:45"), false},
		{"before window", doc.ID, at(monday, "08:59"), false},
		{"no sunday window", doc.ID, at(monday.AddDate(0, 0, -1), "10:00"), false},
		{"unknown doctor", uuid.New(), at(monday, "10:00"), false},
		{"not a doctor", nurse.ID, at(monday, "10:00"), false},
		{"malformed stored window", broken.ID, at(monday, "10:00"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.CheckDoctorAvailability(ctx, tt.doctor, tt.at); got != tt.want {
				t.Errorf("CheckDoctorAvailability() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckDoctorAvailability_IgnoresBookingDuration(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "17:00")))
	store := newMemStore()
	s := newTestScheduler(dir, store, SchedulerConfig{})

	if err := (memAppointments{store}).Reserve(context.Background(), &Appointment{
		DoctorID: doc.ID, Status: "scheduled", DateTime: at(monday, "10:00"), Duration: 30,
	}); err != nil {
		t.Fatal(err)
	}
	if !s.CheckDoctorAvailability(context.Background(), doc.ID, at(monday, "10:00")) {
		t.Error("availability only consults the weekly window, not existing bookings")
	}
}

func TestCheckDoctorAvailability_FacilityZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "17:00")))
	s := newTestScheduler(dir, newMemStore(), SchedulerConfig{Location: loc})

	// 07:30 UTC is 09:30 at the facility.
	if !s.CheckDoctorAvailability(context.Background(), doc.ID, at(monday, "07:30")) {
		t.Error("expected instant to be evaluated in the facility zone")
	}
	// 15:00 UTC is 17:00 at the facility, past the last slot.
	if s.CheckDoctorAvailability(context.Background(), doc.ID, at(monday, "15:00")) {
		t.Error("expected 17:00 local to be unavailable")
	}
}

func TestCheckDoctorAvailability_DirectoryError(t *testing.T) {
	dir := newMockDirectory()
	dir.err = errors.New("connection refused")
	s := newTestScheduler(dir, newMemStore(), SchedulerConfig{})
	if s.CheckDoctorAvailability(context.Background(), uuid.New(), at(monday, "10:00")) {
		t.Error("lookup failures must read as unavailable")
	}
}

// -- schedule --

func TestGetDoctorSchedule_MarksBookedSlot(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "17:00")))
	store := newMemStore()
	appt := &Appointment{DoctorID: doc.ID, Status: "scheduled", DateTime: at(monday, "10:00"), Duration: 30}
	if err := (memAppointments{store}).Reserve(context.Background(), appt); err != nil {
		t.Fatal(err)
	}
	s := newTestScheduler(dir, store, SchedulerConfig{})

	days, err := s.GetDoctorSchedule(context.Background(), doc.ID, monday, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	if days[0].Date != "2024-01-15" {
		t.Errorf("expected date 2024-01-15, got %s", days[0].Date)
	}
	slots := days[0].TimeSlots
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if slots[0].StartTime != "09:00" || slots[15].EndTime != "17:00" {
		t.Errorf("unexpected grid bounds %s..%s", slots[0].StartTime, slots[15].EndTime)
	}
	for i, slot := range slots {
		if slot.StartTime == "10:00" {
			if slot.IsAvailable {
				t.Error("10:00 slot should be booked")
			}
			if slot.AppointmentID == nil || *slot.AppointmentID != appt.ID {
				t.Errorf("expected appointment %s on 10:00 slot, got %v", appt.ID, slot.AppointmentID)
			}
			if slot.BookingKind != KindAppointment {
				t.Errorf("expected appointment kind, got %q", slot.BookingKind)
			}
			continue
		}
		if !slot.IsAvailable || slot.AppointmentID != nil {
			t.Errorf("slot %d (%s) should be free", i, slot.StartTime)
		}
	}
}

func TestGetDoctorSchedule_ExaminationsOccupySlots(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "12:00")))
	store := newMemStore()
	exam := &Examination{DoctorID: doc.ID, Status: "scheduled", ScheduledDate: at(monday, "09:15"), Duration: 60}
	if err := (memExaminations{store}).Reserve(context.Background(), exam); err != nil {
		t.Fatal(err)
	}
	s := newTestScheduler(dir, store, SchedulerConfig{})

	days, err := s.GetDoctorSchedule(context.Background(), doc.ID, monday, monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var booked []string
	for _, slot := range days[0].TimeSlots {
		if !slot.IsAvailable {
			booked = append(booked, slot.StartTime)
			if slot.BookingKind != KindExamination {
				t.Errorf("expected examination kind on %s", slot.StartTime)
			}
		}
	}
	want := []string{"09:00", "09:30", "10:00"}
	if !reflect.DeepEqual(booked, want) {
		t.Errorf("expected booked slots %v, got %v", want, booked)
	}
}

func TestGetDoctorSchedule_OmitsDaysWithoutWindow(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "",
		window(timerange.Monday, "09:00", "10:00"),
		window(timerange.Wednesday, "13:00", "14:00"),
	))
	s := newTestScheduler(dir, newMemStore(), SchedulerConfig{})

	days, err := s.GetDoctorSchedule(context.Background(), doc.ID, monday, monday.AddDate(0, 0, 6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].Date != "2024-01-15" || days[1].Date != "2024-01-17" {
		t.Errorf("unexpected dates %s, %s", days[0].Date, days[1].Date)
	}
	if len(days[1].TimeSlots) != 2 || days[1].TimeSlots[0].StartTime != "13:00" {
		t.Errorf("unexpected wednesday slots %+v", days[1].TimeSlots)
	}
}

func slotStarts(slots []TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime
	}
	return out
}

func TestGetDoctorSchedule_GridAlignment(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "", window(timerange.Monday, "09:15", "11:45")))

	truncated := newTestScheduler(dir, newMemStore(), SchedulerConfig{})
	days, err := truncated.GetDoctorSchedule(context.Background(), doc.ID, monday, monday)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := slotStarts(days[0].TimeSlots), []string{"09:00", "09:30", "10:00", "10:30"}; !reflect.DeepEqual(got, want) {
		t.Errorf("hour-truncated grid = %v, want %v", got, want)
	}

	aligned := newTestScheduler(dir, newMemStore(), SchedulerConfig{AlignToWindow: true})
	days, err = aligned.GetDoctorSchedule(context.Background(), doc.ID, monday, monday)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := slotStarts(days[0].TimeSlots), []string{"09:15", "09:45", "10:15", "10:45", "11:15"}; !reflect.DeepEqual(got, want) {
		t.Errorf("aligned grid = %v, want %v", got, want)
	}
}

func TestGetDoctorSchedule_Errors(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "17:00")))
	nurse := dir.add(&staff.Staff{ID: uuid.New(), Role: staff.RoleNurse, Details: &staff.NurseDetails{Shift: "night"}})
	store := newMemStore()
	s := newTestScheduler(dir, store, SchedulerConfig{})
	ctx := context.Background()

	if _, err := s.GetDoctorSchedule(ctx, uuid.New(), monday, monday); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound for unknown id, got %v", err)
	}
	if _, err := s.GetDoctorSchedule(ctx, nurse.ID, monday, monday); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound for nurse, got %v", err)
	}
	if _, err := s.GetDoctorSchedule(ctx, doc.ID, monday.AddDate(0, 0, 1), monday); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange for inverted range, got %v", err)
	}
	if _, err := s.GetDoctorSchedule(ctx, doc.ID, monday, monday.AddDate(1, 1, 0)); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange for oversized range, got %v", err)
	}

	store.readErr = errors.New("disk on fire")
	_, err := s.GetDoctorSchedule(ctx, doc.ID, monday, monday)
	if err == nil || errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected persistence error to propagate, got %v", err)
	}
}

func TestGetDoctorSchedule_Idempotent(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "17:00"), window(timerange.Tuesday, "08:00", "12:00")))
	store := newMemStore()
	if err := (memAppointments{store}).Reserve(context.Background(), &Appointment{
		DoctorID: doc.ID, Status: "scheduled", DateTime: at(monday, "11:00"), Duration: 45,
	}); err != nil {
		t.Fatal(err)
	}
	s := newTestScheduler(dir, store, SchedulerConfig{})

	first, err := s.GetDoctorSchedule(context.Background(), doc.ID, monday, monday.AddDate(0, 0, 6))
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.GetDoctorSchedule(context.Background(), doc.ID, monday, monday.AddDate(0, 0, 6))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical schedules for identical inputs")
	}
}

func TestGetDoctorSchedule_CacheInvalidation(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "10:00")))
	store := newMemStore()
	s := newTestScheduler(dir, store, SchedulerConfig{Cache: cache.NewMemory(), CacheTTL: time.Minute})
	ctx := context.Background()

	if _, err := s.GetDoctorSchedule(ctx, doc.ID, monday, monday); err != nil {
		t.Fatal(err)
	}
	if err := (memAppointments{store}).Reserve(ctx, &Appointment{
		DoctorID: doc.ID, Status: "scheduled", DateTime: at(monday, "09:00"), Duration: 30,
	}); err != nil {
		t.Fatal(err)
	}

	cached, err := s.GetDoctorSchedule(ctx, doc.ID, monday, monday)
	if err != nil {
		t.Fatal(err)
	}
	if !cached[0].TimeSlots[0].IsAvailable {
		t.Fatal("expected cached schedule before invalidation")
	}

	s.InvalidateDoctor(ctx, doc.ID)
	fresh, err := s.GetDoctorSchedule(ctx, doc.ID, monday, monday)
	if err != nil {
		t.Fatal(err)
	}
	if fresh[0].TimeSlots[0].IsAvailable {
		t.Error("expected the new booking after invalidation")
	}
}

func TestBuildDaySlots_TouchingBookingDoesNotBlock(t *testing.T) {
	b := BookedInterval{ID: uuid.New(), Kind: KindAppointment, Start: at(monday, "09:30"), End: at(monday, "10:00")}
	slots := buildDaySlots(monday, 9*60, 11*60, false, []BookedInterval{b})
	want := []bool{true, false, true, true}
	for i, slot := range slots {
		if slot.IsAvailable != want[i] {
			t.Errorf("slot %s: available = %v, want %v", slot.StartTime, slot.IsAvailable, want[i])
		}
	}
}

// -- finder --

func idsOf(list []*staff.Staff) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(list))
	for _, s := range list {
		out[s.ID] = true
	}
	return out
}

func TestGetAvailableDoctors(t *testing.T) {
	dir := newMockDirectory()
	free := dir.add(newDoctor("cardiology", "cardiologist", window(timerange.Monday, "09:00", "17:00")))
	busy := dir.add(newDoctor("cardiology", "cardiologist", window(timerange.Monday, "09:00", "17:00")))
	late := dir.add(newDoctor("cardiology", "cardiologist", window(timerange.Monday, "13:00", "17:00")))
	other := dir.add(newDoctor("neurology", "neurologist", window(timerange.Monday, "09:00", "17:00")))
	store := newMemStore()
	if err := (memAppointments{store}).Reserve(context.Background(), &Appointment{
		DoctorID: busy.ID, Status: "scheduled", DateTime: at(monday, "10:15"), Duration: 30,
	}); err != nil {
		t.Fatal(err)
	}
	s := newTestScheduler(dir, store, SchedulerConfig{})

	got := idsOf(s.GetAvailableDoctors(context.Background(), AvailableDoctorsQuery{
		Date: monday, StartTime: "10:00", EndTime: "11:00", Department: "cardiology",
	}))
	if !got[free.ID] {
		t.Error("expected free doctor")
	}
	if got[busy.ID] {
		t.Error("doctor with an overlapping booking must be excluded")
	}
	if got[late.ID] {
		t.Error("doctor whose window does not contain the span must be excluded")
	}
	if got[other.ID] {
		t.Error("department filter not applied")
	}
}

func TestGetAvailableDoctors_AdjacentBookingDoesNotBlock(t *testing.T) {
	dir := newMockDirectory()
	doc := dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "17:00")))
	store := newMemStore()
	if err := (memAppointments{store}).Reserve(context.Background(), &Appointment{
		DoctorID: doc.ID, Status: "scheduled", DateTime: at(monday, "09:30"), Duration: 30,
	}); err != nil {
		t.Fatal(err)
	}
	s := newTestScheduler(dir, store, SchedulerConfig{})

	got := s.GetAvailableDoctors(context.Background(), AvailableDoctorsQuery{Date: monday, StartTime: "10:00", EndTime: "10:30"})
	if len(got) != 1 {
		t.Errorf("expected doctor to be available right after a booking, got %d", len(got))
	}
}

func TestGetAvailableDoctors_OutsideEveryWindow(t *testing.T) {
	dir := newMockDirectory()
	dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "17:00")))
	dir.add(newDoctor("", "", window(timerange.Tuesday, "09:00", "17:00")))
	s := newTestScheduler(dir, newMemStore(), SchedulerConfig{})

	got := s.GetAvailableDoctors(context.Background(), AvailableDoctorsQuery{Date: monday, StartTime: "18:00", EndTime: "19:00"})
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil list, got %v", got)
	}
}

func TestGetAvailableDoctors_SoftFail(t *testing.T) {
	dir := newMockDirectory()
	dir.add(newDoctor("", "", window(timerange.Monday, "09:00", "17:00")))
	store := newMemStore()
	s := newTestScheduler(dir, store, SchedulerConfig{})
	ctx := context.Background()
	q := AvailableDoctorsQuery{Date: monday, StartTime: "10:00", EndTime: "11:00"}

	store.readErr = errors.New("timeout")
	if got := s.GetAvailableDoctors(ctx, q); got == nil || len(got) != 0 {
		t.Errorf("expected empty list on booking read failure, got %v", got)
	}

	store.readErr = nil
	dir.err = errors.New("timeout")
	if got := s.GetAvailableDoctors(ctx, q); got == nil || len(got) != 0 {
		t.Errorf("expected empty list on directory failure, got %v", got)
	}

	dir.err = nil
	q.StartTime = "25:00"
	if got := s.GetAvailableDoctors(ctx, q); got == nil || len(got) != 0 {
		t.Errorf("expected empty list on malformed time, got %v", got)
	}
}
