package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, q SearchQuery, limit, offset int) ([]*Patient, int, error)
	Count(ctx context.Context) (int, error)

	UpdateEmergencyContact(ctx context.Context, id uuid.UUID, c *EmergencyContact) error
	// RecordEmergencyVisit stores v and stamps the patient's last visit time.
	RecordEmergencyVisit(ctx context.Context, v *EmergencyVisit) error
	LastEmergencyVisit(ctx context.Context, patientID uuid.UUID) (*EmergencyVisit, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, unreadOnly bool) ([]*Message, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*Message, error)
}
