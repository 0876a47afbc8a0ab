package labtest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/domain/staff"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/events"
)

// TechnicianDirectory is the part of the staff service lab routing needs.
type TechnicianDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*staff.Staff, error)
	AvailableLabTechnicians(ctx context.Context, testType string) ([]*staff.Staff, error)
}

// PatientDirectory confirms that a patient exists.
type PatientDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	repo        Repository
	technicians TechnicianDirectory
	patients    PatientDirectory
	events      events.Publisher
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, technicians TechnicianDirectory, patients PatientDirectory, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{repo: repo, technicians: technicians, patients: patients, events: pub, logger: logger, now: time.Now}
}

func (s *Service) publish(ctx context.Context, eventType string, t *LabTest) {
	if err := s.events.Publish(ctx, events.New(eventType, t.ID.String(), t)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("lab_test_id", t.ID.String()).Msg("publish event failed")
	}
}

func validateRequest(t *LabTest) error {
	if t.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id is required")
	}
	if t.RequestedBy == uuid.Nil {
		return apperr.Invalid("requested_by is required")
	}
	if !staff.LabTestTypes[t.Type] {
		return apperr.Invalid("invalid lab test type: %q", t.Type)
	}
	if t.Priority == "" {
		t.Priority = "routine"
	}
	if _, ok := priorityRank[t.Priority]; !ok {
		return apperr.Invalid("invalid priority: %q", t.Priority)
	}
	return nil
}

// Request records a new lab test and hands it to the first on-shift
// technician qualified for its type. The test stays unassigned when nobody
// is available or the lookup fails.
func (s *Service) Request(ctx context.Context, t *LabTest) error {
	if err := validateRequest(t); err != nil {
		return err
	}
	if err := s.patients.Exists(ctx, t.PatientID); err != nil {
		return err
	}
	t.Status = StatusRequested
	t.Results, t.CompletedAt, t.AssignedTo = nil, nil, nil
	t.RequestedAt = s.now().UTC()

	techs, err := s.technicians.AvailableLabTechnicians(ctx, t.Type)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("type", t.Type).Msg("technician lookup failed; lab test left unassigned")
	case len(techs) > 0:
		id := techs[0].ID
		t.AssignedTo = &id
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return err
	}
	ev := s.logger.Info().Str("lab_test_id", t.ID.String()).Str("type", t.Type).Str("priority", t.Priority)
	if t.AssignedTo != nil {
		ev = ev.Str("assigned_to", t.AssignedTo.String())
	}
	ev.Msg("lab test requested")
	s.publish(ctx, events.LabTestRequested, t)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ByPatient(ctx context.Context, patientID uuid.UUID) ([]*LabTest, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) Pending(ctx context.Context) ([]*LabTest, error) {
	return s.repo.ListPending(ctx)
}

// StatusUpdate moves a test forward. Results are kept only on completion.
type StatusUpdate struct {
	Status  string   `json:"status"`
	Results *Results `json:"results"`
	Notes   string   `json:"notes"`
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) (*LabTest, error) {
	if !validStatuses[u.Status] {
		return nil, apperr.Invalid("invalid lab test status: %q", u.Status)
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Closed() {
		return nil, ErrInvalidTransition
	}
	t.Status = u.Status
	if u.Notes != "" {
		t.Notes = u.Notes
	}
	if u.Status == StatusCompleted {
		now := s.now().UTC()
		t.CompletedAt = &now
		t.Results = u.Results
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	if t.Status == StatusCompleted {
		s.logger.Info().Str("lab_test_id", t.ID.String()).Msg("lab test completed")
		s.publish(ctx, events.LabTestCompleted, t)
	}
	return t, nil
}

// Assign hands the test to a specific lab technician.
func (s *Service) Assign(ctx context.Context, id, technicianID uuid.UUID) (*LabTest, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Closed() {
		return nil, ErrInvalidTransition
	}
	tech, err := s.technicians.Get(ctx, technicianID)
	if err != nil {
		if errors.Is(err, staff.ErrNotFound) {
			return nil, apperr.Invalid("lab technician %s not found", technicianID)
		}
		return nil, err
	}
	if tech.Role != staff.RoleLabTechnician {
		return nil, apperr.Invalid("staff member %s is not a lab technician", technicianID)
	}
	t.AssignedTo = &tech.ID
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
