package creature

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines creature persistence.
type Repository interface {
	Create(ctx context.Context, c *Creature) error
	GetByID(ctx context.Context, creatureID string) (*Creature, error)
	// GetForUpdate loads a creature and holds its row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, creatureID string) (*Creature, error)
	Update(ctx context.Context, c *Creature) error
	ListByOwner(ctx context.Context, owner string) ([]*Creature, error)

	AddReward(ctx context.Context, reward *Reward) error
	ListRewards(ctx context.Context, creatureID string, includeConsumed bool) ([]*Reward, error)
	// ConsumeReward marks an unconsumed reward spent; false means it was already consumed.
	ConsumeReward(ctx context.Context, rewardID uuid.UUID, at time.Time) (bool, error)
}
