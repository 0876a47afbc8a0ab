package staff

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/auth"
)

// -- Mock Repository --

type mockRepo struct {
	items map[uuid.UUID]*Staff
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Staff)}
}

func (m *mockRepo) Create(_ context.Context, s *Staff) error {
	for _, existing := range m.items {
		if strings.EqualFold(existing.Email, s.Email) {
			return ErrEmailTaken
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	m.items[s.ID] = s
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*Staff, error) {
	for _, s := range m.items {
		if strings.EqualFold(s.Email, email) {
			return s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, s *Staff) error {
	if _, ok := m.items[s.ID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = time.Now()
	m.items[s.ID] = s
	return nil
}

func (m *mockRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	s, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	s.PasswordHash = hash
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Staff, int, error) {
	var result []*Staff
	for _, s := range m.items {
		if f.Role != "" && s.Role != f.Role {
			continue
		}
		if f.Department != "" && s.Department != f.Department {
			continue
		}
		if f.Specialization != "" {
			d, ok := s.Doctor()
			if !ok || d.Specialization != f.Specialization {
				continue
			}
		}
		if f.TestType != "" || f.OnShift {
			if !matchesShift(s, f) {
				continue
			}
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastName < result[j].LastName })
	return result, len(result), nil
}

func matchesShift(s *Staff, f Filter) bool {
	switch d := s.Details.(type) {
	case *EmergencyDetails:
		return f.TestType == "" && (!f.OnShift || d.ActiveShift)
	case *LabTechnicianDetails:
		if f.OnShift && !d.ActiveShift {
			return false
		}
		if f.TestType == "" {
			return true
		}
		for _, t := range d.Specializations {
			if t == f.TestType {
				return true
			}
		}
	}
	return false
}

func (m *mockRepo) CountByRole(_ context.Context) (map[Role]int, error) {
	out := make(map[Role]int)
	for _, s := range m.items {
		out[s.Role]++
	}
	return out, nil
}

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, auth.NewIssuer(testSecret, "hms", time.Hour), zerolog.Nop()), repo
}

func newDoctor(email string) *Staff {
	return &Staff{
		FirstName: "Gregory", LastName: "House", Email: email, Department: "diagnostics",
		Role: RoleDoctor,
		Details: &DoctorDetails{
			Specialization: "nephrology", LicenseNumber: "MD-1",
			Availability: []Availability{{Day: "monday", StartTime: "09:00", EndTime: "17:00"}},
		},
	}
}

func TestService_Create(t *testing.T) {
	svc, repo := newTestService()
	doc := newDoctor("house@example.com")
	if err := svc.Create(context.Background(), doc, "vicodin123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	stored := repo.items[doc.ID]
	if stored.PasswordHash == "" || stored.PasswordHash == "vicodin123" {
		t.Error("expected hashed password")
	}
	if !auth.CheckPassword(stored.PasswordHash, "vicodin123") {
		t.Error("expected stored hash to verify")
	}
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *Staff)
		password string
	}{
		{"missing first name", func(s *Staff) { s.FirstName = "" }, "password1"},
		{"bad email", func(s *Staff) { s.Email = "nope" }, "password1"},
		{"mismatched details", func(s *Staff) { s.Details = &NurseDetails{Shift: "night"} }, "password1"},
		{"bad availability", func(s *Staff) {
			s.Details.(*DoctorDetails).Availability[0].EndTime = "08:00"
		}, "password1"},
		{"weak password", func(s *Staff) {}, "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			s := newDoctor("x@example.com")
			tt.mutate(s)
			err := svc.Create(context.Background(), s, tt.password)
			if !apperr.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_Create_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if err := svc.Create(ctx, newDoctor("dup@example.com"), "password1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Create(ctx, newDoctor("DUP@example.com"), "password1"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestService_Update_KeepsRoleAndPassword(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	doc := newDoctor("a@example.com")
	if err := svc.Create(ctx, doc, "password1"); err != nil {
		t.Fatal(err)
	}
	hash := repo.items[doc.ID].PasswordHash

	upd := newDoctor("a@example.com")
	upd.ID = doc.ID
	upd.LastName = "Wilson"
	if err := svc.Update(ctx, upd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.items[doc.ID].PasswordHash != hash {
		t.Error("password hash must survive updates")
	}

	nurse := &Staff{ID: doc.ID, FirstName: "a", LastName: "b", Email: "a@example.com", Role: RoleNurse, Details: &NurseDetails{Shift: "night"}}
	if err := svc.Update(ctx, nurse); !apperr.IsValidation(err) {
		t.Errorf("expected validation error on role change, got %v", err)
	}
}

func TestService_FindDoctorByID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doc := newDoctor("d@example.com")
	nurse := &Staff{FirstName: "n", LastName: "n", Email: "n@example.com", Role: RoleNurse, Details: &NurseDetails{Shift: "night"}}
	_ = svc.Create(ctx, doc, "password1")
	_ = svc.Create(ctx, nurse, "password1")

	if _, err := svc.FindDoctorByID(ctx, doc.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := svc.FindDoctorByID(ctx, nurse.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a nurse, got %v", err)
	}
	if _, err := svc.FindDoctorByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_FindDoctors_Filters(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a := newDoctor("a@example.com")
	b := newDoctor("b@example.com")
	b.Department = "cardiology"
	b.Details.(*DoctorDetails).Specialization = "cardiology"
	_ = svc.Create(ctx, a, "password1")
	_ = svc.Create(ctx, b, "password1")

	got, err := svc.FindDoctors(ctx, DoctorFilter{Department: "cardiology"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("expected only b, got %v", got)
	}
	got, _ = svc.FindDoctors(ctx, DoctorFilter{Specialization: "nephrology"})
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("expected only a, got %v", got)
	}
}

func TestService_SetAvailability_NotifiesHook(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doc := newDoctor("d@example.com")
	_ = svc.Create(ctx, doc, "password1")

	var notified uuid.UUID
	svc.OnAvailabilityChange(func(_ context.Context, id uuid.UUID) { notified = id })

	windows := []Availability{{Day: "tuesday", StartTime: "08:00", EndTime: "12:00"}}
	st, err := svc.SetAvailability(ctx, doc.ID, windows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, _ := st.Doctor()
	if len(d.Availability) != 1 || d.Availability[0].Day != "tuesday" {
		t.Errorf("unexpected availability %+v", d.Availability)
	}
	if notified != doc.ID {
		t.Error("expected availability hook to fire")
	}

	if _, err := svc.SetAvailability(ctx, doc.ID, []Availability{{Day: "monday", StartTime: "12:00", EndTime: "10:00"}}); !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_SetNurseShift(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	nurse := &Staff{FirstName: "n", LastName: "n", Email: "n@example.com", Role: RoleNurse, Details: &NurseDetails{Shift: "night"}}
	_ = svc.Create(ctx, nurse, "password1")

	st, err := svc.SetNurseShift(ctx, nurse.ID, "morning")
	if err != nil {
		t.Fatal(err)
	}
	if st.Details.(*NurseDetails).Shift != "morning" {
		t.Error("expected shift update")
	}
	if _, err := svc.SetNurseShift(ctx, nurse.ID, "brunch"); !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	doc := newDoctor("d@example.com")
	_ = svc.Create(ctx, doc, "password1")
	if _, err := svc.SetNurseShift(ctx, doc.ID, "morning"); !errors.Is(err, ErrWrongRole) {
		t.Errorf("expected ErrWrongRole, got %v", err)
	}
}

func TestService_SetAdminAccess(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	adm := &Staff{FirstName: "a", LastName: "a", Email: "adm@example.com", Role: RoleAdmin,
		Details: &AdminDetails{Position: "hospital_manager", AccessLevel: "basic", Responsibilities: []string{"budget"}}}
	_ = svc.Create(ctx, adm, "password1")

	st, err := svc.SetAdminAccess(ctx, adm.ID, AccessUpdate{AccessLevel: "full", ManagedDepartments: []string{"er"}})
	if err != nil {
		t.Fatal(err)
	}
	d := st.Details.(*AdminDetails)
	if d.AccessLevel != "full" || len(d.ManagedDepartments) != 1 || len(d.Responsibilities) != 1 {
		t.Errorf("unexpected admin payload %+v", d)
	}
}

func TestService_LabTechniciansOnShift(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	on := &Staff{FirstName: "a", LastName: "a", Email: "on@example.com", Role: RoleLabTechnician,
		Details: &LabTechnicianDetails{Specializations: []string{"imaging"}, ActiveShift: true}}
	off := &Staff{FirstName: "b", LastName: "b", Email: "off@example.com", Role: RoleLabTechnician,
		Details: &LabTechnicianDetails{Specializations: []string{"imaging"}}}
	_ = svc.Create(ctx, on, "password1")
	_ = svc.Create(ctx, off, "password1")

	got, err := svc.AvailableLabTechnicians(ctx, "imaging")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != on.ID {
		t.Errorf("expected only the on-shift technician, got %v", got)
	}

	if _, err := svc.SetActiveShift(ctx, off.ID, RoleLabTechnician, true); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.AvailableLabTechnicians(ctx, "imaging")
	if len(got) != 2 {
		t.Errorf("expected 2 technicians after shift change, got %d", len(got))
	}
	got, _ = svc.AvailableLabTechnicians(ctx, "toxicology")
	if len(got) != 0 {
		t.Errorf("expected none qualified for toxicology, got %d", len(got))
	}
}

func TestService_EmergencyShift(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	em := &Staff{FirstName: "e", LastName: "e", Email: "e@example.com", Role: RoleEmergency,
		Details: &EmergencyDetails{EmergencyRole: "paramedic"}}
	_ = svc.Create(ctx, em, "password1")

	got, _ := svc.AvailableEmergencyStaff(ctx)
	if len(got) != 0 {
		t.Fatalf("expected nobody on shift, got %d", len(got))
	}
	if _, err := svc.SetActiveShift(ctx, em.ID, RoleEmergency, true); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.AvailableEmergencyStaff(ctx)
	if len(got) != 1 {
		t.Errorf("expected 1 on shift, got %d", len(got))
	}
}

func TestService_Login(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doc := newDoctor("login@example.com")
	_ = svc.Create(ctx, doc, "password1")

	sess, err := svc.Login(ctx, "LOGIN@example.com", "password1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims, err := svc.issuer.Parse(sess.Token, auth.PurposeAccess)
	if err != nil {
		t.Fatalf("token did not verify: %v", err)
	}
	if claims.Subject != doc.ID.String() || len(claims.Roles) != 1 || claims.Roles[0] != auth.RoleDoctor {
		t.Errorf("unexpected claims %+v", claims)
	}

	if _, err := svc.Login(ctx, "login@example.com", "wrong-password"); !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("expected ErrInvalidLogin, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password1"); !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("expected ErrInvalidLogin for unknown email, got %v", err)
	}
}

func TestService_PasswordReset(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doc := newDoctor("reset@example.com")
	_ = svc.Create(ctx, doc, "password1")

	token, err := svc.RequestPasswordReset(ctx, "reset@example.com")
	if err != nil || token == "" {
		t.Fatalf("expected token, got %q %v", token, err)
	}
	if _, err := svc.issuer.Parse(token, auth.PurposeAccess); err == nil {
		t.Error("reset token must not work as an access token")
	}
	if err := svc.ResetPassword(ctx, token, "new-password"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Login(ctx, "reset@example.com", "new-password"); err != nil {
		t.Errorf("expected login with new password, got %v", err)
	}

	unknown, err := svc.RequestPasswordReset(ctx, "ghost@example.com")
	if err != nil || unknown != "" {
		t.Errorf("expected empty token for unknown email, got %q %v", unknown, err)
	}
	if err := svc.ResetPassword(ctx, "garbage", "new-password"); !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_CountByRole(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_ = svc.Create(ctx, newDoctor("a@example.com"), "password1")
	_ = svc.Create(ctx, newDoctor("b@example.com"), "password1")
	counts, err := svc.CountByRole(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[RoleDoctor] != 2 {
		t.Errorf("expected 2 doctors, got %d", counts[RoleDoctor])
	}
}
