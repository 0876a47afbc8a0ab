package staff

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/auth"
)

type Service struct {
	repo   Repository
	issuer *auth.Issuer
	logger zerolog.Logger

	availabilityChanged func(ctx context.Context, doctorID uuid.UUID)
}

func NewService(repo Repository, issuer *auth.Issuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, issuer: issuer, logger: logger}
}

// OnAvailabilityChange registers fn to run after a doctor's weekly windows
// change.
func (s *Service) OnAvailabilityChange(fn func(ctx context.Context, doctorID uuid.UUID)) {
	s.availabilityChanged = fn
}

func (s *Service) notifyAvailability(ctx context.Context, st *Staff) {
	if s.availabilityChanged != nil && st.Role == RoleDoctor {
		s.availabilityChanged(ctx, st.ID)
	}
}

func validateBase(st *Staff) error {
	if strings.TrimSpace(st.FirstName) == "" {
		return apperr.Invalid("first_name is required")
	}
	if strings.TrimSpace(st.LastName) == "" {
		return apperr.Invalid("last_name is required")
	}
	if !strings.Contains(st.Email, "@") {
		return apperr.Invalid("a valid email is required")
	}
	if !validRoles[st.Role] {
		return apperr.Invalid("invalid role: %q", st.Role)
	}
	if st.Details == nil || st.Details.Role() != st.Role {
		return apperr.Invalid("details do not match role %q", st.Role)
	}
	return validateDetails(st.Details)
}

// Create validates and stores a new staff member with a bcrypt-hashed
// password.
func (s *Service) Create(ctx context.Context, st *Staff, password string) error {
	if err := validateBase(st); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return apperr.Invalid("%s", err.Error())
		}
		return err
	}
	st.PasswordHash = hash
	return s.repo.Create(ctx, st)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces the editable fields. The role and password are kept.
func (s *Service) Update(ctx context.Context, st *Staff) error {
	existing, err := s.repo.GetByID(ctx, st.ID)
	if err != nil {
		return err
	}
	if st.Role != existing.Role {
		return apperr.Invalid("role cannot be changed from %q to %q", existing.Role, st.Role)
	}
	if err := validateBase(st); err != nil {
		return err
	}
	st.PasswordHash = existing.PasswordHash
	st.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, st); err != nil {
		return err
	}
	s.notifyAvailability(ctx, st)
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Staff, int, error) {
	if f.Role != "" && !validRoles[f.Role] {
		return nil, 0, apperr.Invalid("invalid role: %q", f.Role)
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) CountByRole(ctx context.Context) (map[Role]int, error) {
	return s.repo.CountByRole(ctx)
}

// getRole loads id and checks it holds role.
func (s *Service) getRole(ctx context.Context, id uuid.UUID, role Role) (*Staff, error) {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Role != role {
		return nil, ErrWrongRole
	}
	return st, nil
}

// FindDoctorByID returns ErrNotFound for missing ids and non-doctors alike.
func (s *Service) FindDoctorByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	st, err := s.getRole(ctx, id, RoleDoctor)
	if errors.Is(err, ErrWrongRole) {
		return nil, ErrNotFound
	}
	return st, err
}

func (s *Service) FindDoctors(ctx context.Context, f DoctorFilter) ([]*Staff, error) {
	items, _, err := s.repo.List(ctx, f.Filter(), 0, 0)
	return items, err
}

func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID) ([]Availability, error) {
	st, err := s.FindDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	d, _ := st.Doctor()
	return d.Availability, nil
}

// SetAvailability replaces the doctor's weekly windows.
func (s *Service) SetAvailability(ctx context.Context, doctorID uuid.UUID, windows []Availability) (*Staff, error) {
	if err := ValidateAvailability(windows); err != nil {
		return nil, err
	}
	st, err := s.FindDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	d, _ := st.Doctor()
	d.Availability = windows
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	s.notifyAvailability(ctx, st)
	return st, nil
}

func (s *Service) SetNurseShift(ctx context.Context, id uuid.UUID, shift string) (*Staff, error) {
	if !validShifts[shift] {
		return nil, apperr.Invalid("invalid shift: %q", shift)
	}
	st, err := s.getRole(ctx, id, RoleNurse)
	if err != nil {
		return nil, err
	}
	st.Details.(*NurseDetails).Shift = shift
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// AccessUpdate changes an administrator's permissions. Nil fields are left
// unchanged.
type AccessUpdate struct {
	AccessLevel        string   `json:"access_level"`
	ManagedDepartments []string `json:"managed_departments"`
	Responsibilities   []string `json:"responsibilities"`
}

func (s *Service) SetAdminAccess(ctx context.Context, id uuid.UUID, u AccessUpdate) (*Staff, error) {
	if u.AccessLevel != "" && !validAccessLevels[u.AccessLevel] {
		return nil, apperr.Invalid("invalid access_level: %q", u.AccessLevel)
	}
	st, err := s.getRole(ctx, id, RoleAdmin)
	if err != nil {
		return nil, err
	}
	d := st.Details.(*AdminDetails)
	if u.AccessLevel != "" {
		d.AccessLevel = u.AccessLevel
	}
	if u.ManagedDepartments != nil {
		d.ManagedDepartments = u.ManagedDepartments
	}
	if u.Responsibilities != nil {
		d.Responsibilities = u.Responsibilities
	}
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) AvailableEmergencyStaff(ctx context.Context) ([]*Staff, error) {
	items, _, err := s.repo.List(ctx, Filter{Role: RoleEmergency, OnShift: true}, 0, 0)
	return items, err
}

func (s *Service) AvailableLabTechnicians(ctx context.Context, testType string) ([]*Staff, error) {
	if testType != "" && !LabTestTypes[testType] {
		return nil, apperr.Invalid("invalid lab test type: %q", testType)
	}
	items, _, err := s.repo.List(ctx, Filter{Role: RoleLabTechnician, TestType: testType, OnShift: true}, 0, 0)
	return items, err
}

// SetActiveShift toggles the on-shift flag of emergency staff and lab
// technicians.
func (s *Service) SetActiveShift(ctx context.Context, id uuid.UUID, role Role, active bool) (*Staff, error) {
	st, err := s.getRole(ctx, id, role)
	if err != nil {
		return nil, err
	}
	switch d := st.Details.(type) {
	case *EmergencyDetails:
		d.ActiveShift = active
	case *LabTechnicianDetails:
		d.ActiveShift = active
	default:
		return nil, apperr.Invalid("role %q has no shift flag", role)
	}
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Staff     *Staff    `json:"staff"`
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	st, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidLogin
		}
		return nil, err
	}
	if !auth.CheckPassword(st.PasswordHash, password) {
		return nil, ErrInvalidLogin
	}
	token, exp, err := s.issuer.Issue(st.ID.String(), st.Email, []string{string(st.Role)})
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, Staff: st}, nil
}

// RequestPasswordReset returns a reset token for a known email and an empty
// string otherwise, so callers cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	st, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	token, _, err := s.issuer.IssueReset(st.ID.String(), st.Email)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("staff_id", st.ID.String()).Msg("password reset requested")
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	claims, err := s.issuer.Parse(token, auth.PurposePasswordReset)
	if err != nil {
		return apperr.Invalid("invalid or expired reset token")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return apperr.Invalid("invalid or expired reset token")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return apperr.Invalid("%s", err.Error())
		}
		return err
	}
	return s.repo.UpdatePassword(ctx, id, hash)
}
