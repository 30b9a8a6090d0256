package race

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines race persistence. Status changes are conditional on the
// current status and report whether this caller performed them.
type Repository interface {
	Create(ctx context.Context, r *Race) error
	GetByID(ctx context.Context, raceID uuid.UUID) (*Race, error)
	// GetForUpdate loads a race and holds its row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, raceID uuid.UUID) (*Race, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Race, error)
	// ListOpenable returns upcoming races whose opens_at is at or before now.
	ListOpenable(ctx context.Context, now time.Time, limit int) ([]*Race, error)
	// ListResolvable returns open races whose entry deadline is at or before now.
	ListResolvable(ctx context.Context, now time.Time, limit int) ([]*Race, error)

	Transition(ctx context.Context, raceID uuid.UUID, from, to Status) (bool, error)
	MarkResolved(ctx context.Context, raceID uuid.UUID, seedHash string, seedHeight int64, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, raceID uuid.UUID, from Status, reason string) (bool, error)

	// AddEntry returns ErrDuplicateEntry when the creature is already entered.
	AddEntry(ctx context.Context, entry *Entry) error
	ListEntries(ctx context.Context, raceID uuid.UUID) ([]*Entry, error)
	SetEntryResult(ctx context.Context, raceID uuid.UUID, creatureID string, position int, score float64, payout int64) error
}
