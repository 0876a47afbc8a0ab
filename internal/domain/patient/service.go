package patient

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/events"
)

type Service struct {
	repo     Repository
	messages MessageRepository
	events   events.Publisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, messages MessageRepository, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{repo: repo, messages: messages, events: pub, logger: logger, now: time.Now}
}

func validatePatient(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if len(p.FirstName) < 2 {
		return apperr.Invalid("first_name must be at least 2 characters")
	}
	if len(p.LastName) < 2 {
		return apperr.Invalid("last_name must be at least 2 characters")
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return apperr.Invalid("invalid email: %q", p.Email)
	}
	if p.Gender != "" && !validGenders[p.Gender] {
		return apperr.Invalid("invalid gender: %q", p.Gender)
	}
	if p.BloodType != "" && !validBloodTypes[p.BloodType] {
		return apperr.Invalid("invalid blood_type: %q", p.BloodType)
	}
	if p.PreferredLanguage == "" {
		p.PreferredLanguage = "english"
	}
	if p.EmergencyContact != nil {
		return validateContact(p.EmergencyContact)
	}
	return nil
}

func validateContact(c *EmergencyContact) error {
	if strings.TrimSpace(c.Name) == "" {
		return apperr.Invalid("emergency contact name is required")
	}
	if strings.TrimSpace(c.Phone) == "" {
		return apperr.Invalid("emergency contact phone is required")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	p.LastEmergencyVisit = nil
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces the editable fields. The last emergency visit is only
// written by RecordEmergencyVisit.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := validatePatient(p); err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	p.LastEmergencyVisit = existing.LastEmergencyVisit
	return s.repo.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Search(ctx context.Context, q SearchQuery, limit, offset int) ([]*Patient, int, error) {
	if q.Empty() {
		return nil, 0, apperr.Invalid("at least one search parameter is required")
	}
	return s.repo.Search(ctx, q, limit, offset)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Exists reports whether id names a stored patient.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.GetByID(ctx, id)
	return err
}

// -- Emergency --

func (s *Service) EmergencyInfo(ctx context.Context, id uuid.UUID) (*EmergencyInfo, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	last, err := s.repo.LastEmergencyVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	return &EmergencyInfo{
		PatientID:          p.ID,
		FirstName:          p.FirstName,
		LastName:           p.LastName,
		DateOfBirth:        p.DateOfBirth,
		BloodType:          p.BloodType,
		Allergies:          nonNil(p.Allergies),
		ChronicConditions:  nonNil(p.ChronicConditions),
		CurrentMedications: nonNil(p.CurrentMedications),
		EmergencyContact:   p.EmergencyContact,
		LastVisit:          last,
	}, nil
}

func (s *Service) UpdateEmergencyContact(ctx context.Context, id uuid.UUID, c *EmergencyContact) (*Patient, error) {
	if c == nil {
		return nil, apperr.Invalid("emergency contact is required")
	}
	if err := validateContact(c); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateEmergencyContact(ctx, id, c); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) RecordEmergencyVisit(ctx context.Context, v *EmergencyVisit) error {
	v.Severity = strings.ToLower(v.Severity)
	if !validSeverities[v.Severity] {
		return apperr.Invalid("invalid severity: %q", v.Severity)
	}
	if strings.TrimSpace(v.Description) == "" {
		return apperr.Invalid("description is required")
	}
	if err := s.repo.RecordEmergencyVisit(ctx, v); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", v.PatientID.String()).Str("severity", v.Severity).Msg("emergency visit recorded")
	if err := s.events.Publish(ctx, events.New(events.EmergencyVisitRecorded, v.PatientID.String(), v)); err != nil {
		s.logger.Error().Err(err).Str("patient_id", v.PatientID.String()).Msg("publish emergency visit failed")
	}
	return nil
}

// -- Messages --

func (s *Service) SendMessage(ctx context.Context, m *Message) error {
	if m.SenderID == uuid.Nil {
		return apperr.Invalid("sender_id is required")
	}
	if strings.TrimSpace(m.Subject) == "" || strings.TrimSpace(m.Body) == "" {
		return apperr.Invalid("subject and body are required")
	}
	if _, err := s.repo.GetByID(ctx, m.PatientID); err != nil {
		return err
	}
	m.Status = "sent"
	m.ReadAt = nil
	return s.messages.Create(ctx, m)
}

func (s *Service) Messages(ctx context.Context, patientID uuid.UUID, unreadOnly bool) ([]*Message, error) {
	return s.messages.ListByPatient(ctx, patientID, unreadOnly)
}

// MarkMessageRead is idempotent; the first read time is kept.
func (s *Service) MarkMessageRead(ctx context.Context, id uuid.UUID) (*Message, error) {
	return s.messages.MarkRead(ctx, id, s.now().UTC())
}
