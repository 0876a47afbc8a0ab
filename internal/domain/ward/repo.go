package ward

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, w *Ward) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ward, error)
	List(ctx context.Context, limit, offset int) ([]*Ward, int, error)
	Count(ctx context.Context) (int, error)

	CreateBed(ctx context.Context, b *Bed) error
	BedsByWard(ctx context.Context, wardID uuid.UUID) ([]*Bed, error)
	// SetBedStatus changes a bed that holds no patient. Occupied beds are
	// only released by Discharge.
	SetBedStatus(ctx context.Context, wardID, bedID uuid.UUID, status string, at time.Time) (*Bed, error)

	CreateResource(ctx context.Context, r *Resource) error
	ResourcesByWard(ctx context.Context, wardID uuid.UUID) ([]*Resource, error)
	UpdateResource(ctx context.Context, wardID, resourceID uuid.UUID, u ResourceUpdate) (*Resource, error)
	LowStock(ctx context.Context) ([]*Resource, error)

	// Admit claims the lowest-numbered available bed of a.WardID for the
	// patient, marks it occupied and increments the ward occupancy. It
	// returns ErrWardFull when no bed is available.
	Admit(ctx context.Context, a *Assignment) (*Bed, error)
	// Discharge closes an active assignment, sends its bed to cleaning and
	// decrements the ward occupancy.
	Discharge(ctx context.Context, assignmentID uuid.UUID, at time.Time) (*Assignment, error)
	ActiveAssignments(ctx context.Context, wardID uuid.UUID) ([]*Assignment, error)
}
