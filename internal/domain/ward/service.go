package ward

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/apperr"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/events"
	"github.com/k0t0k0t0/hospital-management-system-be/internal/platform/telemetry"
)

// PatientDirectory confirms that a patient exists before a bed is claimed.
type PatientDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	events   events.Publisher
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients PatientDirectory, pub events.Publisher, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{repo: repo, patients: patients, events: pub, metrics: metrics, logger: logger, now: time.Now}
}

func (s *Service) publish(ctx context.Context, eventType string, id uuid.UUID, payload any) {
	if err := s.events.Publish(ctx, events.New(eventType, id.String(), payload)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("aggregate_id", id.String()).Msg("publish event failed")
	}
}

func validateWard(w *Ward) error {
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return apperr.Invalid("name is required")
	}
	if !validTypes[w.Type] {
		return apperr.Invalid("invalid ward type: %q", w.Type)
	}
	if w.Capacity <= 0 {
		return apperr.Invalid("capacity must be positive")
	}
	if w.Status == "" {
		w.Status = "active"
	}
	if !validStatuses[w.Status] {
		return apperr.Invalid("invalid ward status: %q", w.Status)
	}
	return nil
}

func (s *Service) CreateWard(ctx context.Context, w *Ward) error {
	if err := validateWard(w); err != nil {
		return err
	}
	return s.repo.Create(ctx, w)
}

func (s *Service) GetWard(ctx context.Context, id uuid.UUID) (*Ward, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListWards(ctx context.Context, limit, offset int) ([]*Ward, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) CountWards(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// WardStatus returns the ward with its beds and resources.
func (s *Service) WardStatus(ctx context.Context, id uuid.UUID) (*Status, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	beds, err := s.repo.BedsByWard(ctx, id)
	if err != nil {
		return nil, err
	}
	resources, err := s.repo.ResourcesByWard(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &Status{Ward: w, Beds: beds, Resources: resources}
	for _, b := range beds {
		if b.Status == BedAvailable {
			st.AvailableBeds++
		}
	}
	if w.Capacity > 0 {
		st.OccupancyRate = float64(w.CurrentOccupancy) / float64(w.Capacity) * 100
	}
	return st, nil
}

// AddBed creates a bed in wardID. A ward holds at most Capacity beds.
func (s *Service) AddBed(ctx context.Context, wardID uuid.UUID, b *Bed) error {
	b.WardID = wardID
	b.Number = strings.TrimSpace(b.Number)
	if b.Number == "" {
		return apperr.Invalid("number is required")
	}
	if b.Status == "" {
		b.Status = BedAvailable
	}
	if !validBedStatuses[b.Status] || b.Status == BedOccupied {
		return apperr.Invalid("invalid initial bed status: %q", b.Status)
	}
	b.CurrentPatientID, b.LastOccupiedAt = nil, nil

	w, err := s.repo.GetByID(ctx, wardID)
	if err != nil {
		return err
	}
	beds, err := s.repo.BedsByWard(ctx, wardID)
	if err != nil {
		return err
	}
	if len(beds) >= w.Capacity {
		return apperr.Invalid("ward capacity of %d beds reached", w.Capacity)
	}
	return s.repo.CreateBed(ctx, b)
}

// SetBedStatus moves an unoccupied bed between the housekeeping states.
// Moving a bed from cleaning to available stamps its cleaning time.
func (s *Service) SetBedStatus(ctx context.Context, wardID, bedID uuid.UUID, status string) (*Bed, error) {
	if !validBedStatuses[status] || status == BedOccupied {
		return nil, apperr.Invalid("invalid bed status: %q", status)
	}
	return s.repo.SetBedStatus(ctx, wardID, bedID, status, s.now().UTC())
}

func (s *Service) AddResource(ctx context.Context, wardID uuid.UUID, r *Resource) error {
	r.WardID = wardID
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return apperr.Invalid("name is required")
	}
	if !validResourceTypes[r.Type] {
		return apperr.Invalid("invalid resource type: %q", r.Type)
	}
	if r.Quantity < 0 || r.MinimumRequired < 0 {
		return apperr.Invalid("quantity and minimum_required must not be negative")
	}
	now := s.now().UTC()
	r.LastRestockedAt = &now
	return s.repo.CreateResource(ctx, r)
}

// UpdateResource applies u. Setting a quantity counts as a restock.
func (s *Service) UpdateResource(ctx context.Context, wardID, resourceID uuid.UUID, u ResourceUpdate) (*Resource, error) {
	if u.Quantity != nil && *u.Quantity < 0 {
		return nil, apperr.Invalid("quantity must not be negative")
	}
	if u.MinimumRequired != nil && *u.MinimumRequired < 0 {
		return nil, apperr.Invalid("minimum_required must not be negative")
	}
	if u.Quantity != nil {
		now := s.now().UTC()
		u.LastRestockedAt = &now
	}
	return s.repo.UpdateResource(ctx, wardID, resourceID, u)
}

func (s *Service) LowStockResources(ctx context.Context) ([]*Resource, error) {
	return s.repo.LowStock(ctx)
}

// AssignRequest admits a patient to a ward.
type AssignRequest struct {
	PatientID            uuid.UUID  `json:"patient_id"`
	ExpectedDurationDays int        `json:"expected_duration_days"`
	Notes                string     `json:"notes"`
	AssignedBy           *uuid.UUID `json:"-"`
}

// AssignPatient places the patient in the first available bed of wardID.
func (s *Service) AssignPatient(ctx context.Context, wardID uuid.UUID, req AssignRequest) (*Assignment, *Bed, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ward.AssignPatient")
	defer span.End()

	if req.PatientID == uuid.Nil {
		return nil, nil, apperr.Invalid("patient_id is required")
	}
	if req.ExpectedDurationDays < 0 {
		return nil, nil, apperr.Invalid("expected_duration_days must not be negative")
	}
	if err := s.patients.Exists(ctx, req.PatientID); err != nil {
		return nil, nil, err
	}

	a := &Assignment{
		PatientID:            req.PatientID,
		WardID:               wardID,
		AssignedBy:           req.AssignedBy,
		AssignedAt:           s.now().UTC(),
		ExpectedDurationDays: req.ExpectedDurationDays,
		Notes:                req.Notes,
	}
	bed, err := s.repo.Admit(ctx, a)
	switch {
	case err == nil:
		s.metrics.BedAssignment("assigned")
	case errors.Is(err, ErrWardFull):
		s.metrics.BedAssignment("full")
		return nil, nil, err
	default:
		s.metrics.BedAssignment("error")
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("bed.id", bed.ID.String()))

	s.logger.Info().
		Str("ward_id", wardID.String()).
		Str("bed", bed.Number).
		Str("patient_id", a.PatientID.String()).
		Msg("patient admitted")
	s.publish(ctx, events.PatientAdmitted, a.ID, a)
	return a, bed, nil
}

// Discharge closes the assignment and sends its bed to cleaning.
func (s *Service) Discharge(ctx context.Context, assignmentID uuid.UUID) (*Assignment, error) {
	a, err := s.repo.Discharge(ctx, assignmentID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.metrics.BedAssignment("discharged")
	s.logger.Info().Str("assignment_id", a.ID.String()).Str("patient_id", a.PatientID.String()).Msg("patient discharged")
	s.publish(ctx, events.PatientDischarged, a.ID, a)
	return a, nil
}

func (s *Service) ActiveAssignments(ctx context.Context, wardID uuid.UUID) ([]*Assignment, error) {
	if _, err := s.repo.GetByID(ctx, wardID); err != nil {
		return nil, err
	}
	return s.repo.ActiveAssignments(ctx, wardID)
}
