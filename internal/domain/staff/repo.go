package staff

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists staff records. Lookups return ErrNotFound when nothing
// matches; a limit <= 0 on List returns every match.
type Repository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetByEmail(ctx context.Context, email string) (*Staff, error)
	Update(ctx context.Context, s *Staff) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Staff, int, error)
	CountByRole(ctx context.Context) (map[Role]int, error)
}
