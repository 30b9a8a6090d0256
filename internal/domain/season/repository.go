package season

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines season and leaderboard persistence.
type Repository interface {
	Create(ctx context.Context, s *Season) error
	GetByID(ctx context.Context, seasonID uuid.UUID) (*Season, error)
	// GetActive returns the season containing now, or nil.
	GetActive(ctx context.Context, now time.Time) (*Season, error)

	// UpsertStanding adds a race result to the creature's season row, creating it if absent.
	UpsertStanding(ctx context.Context, delta Delta) error
	Leaderboard(ctx context.Context, seasonID uuid.UUID, limit int) ([]*Standing, error)
}
