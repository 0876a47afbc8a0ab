package labtest

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *LabTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error)
	// Update writes the mutable fields: assignee, status, results, notes and
	// completion time.
	Update(ctx context.Context, t *LabTest) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*LabTest, error)
	// ListPending returns requested and in-progress tests, most urgent first.
	ListPending(ctx context.Context) ([]*LabTest, error)
}
