package creature

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/chain"
	domainCreature "github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/tuning"
)

// Heights reports the current block height for reward expiry.
type Heights interface {
	Check(ctx context.Context) chain.HeightCheck
}

// View is a creature with its condition decayed to the read time and its
// spendable rewards.
type View struct {
	*domainCreature.Creature
	Fatigue   float64                  `json:"fatigue"`
	Sharpness float64                  `json:"sharpness"`
	Rewards   []*domainCreature.Reward `json:"rewards"`
	AsOf      time.Time                `json:"asOf"`
}

// Service handles creature operations
type Service struct {
	repo    domainCreature.Repository
	tuning  *tuning.Tuning
	heights Heights
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService creates a new creature service
func NewService(repo domainCreature.Repository, t *tuning.Tuning, heights Heights, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		tuning:  t,
		heights: heights,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With().Str("service", "creature").Logger(),
	}
}

// Register records a minted token as a creature with the starting stats.
func (s *Service) Register(ctx context.Context, creatureID, owner, name string) (*domainCreature.Creature, error) {
	creatureID = strings.TrimSpace(creatureID)
	owner = strings.TrimSpace(owner)
	if creatureID == "" {
		return nil, derr.Invalid("creatureId", "required")
	}
	if owner == "" {
		return nil, derr.Invalid("owner", "required")
	}
	existing, err := s.repo.GetByID(ctx, creatureID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, derr.Invalidf("creatureId", "creature %s already registered", creatureID)
	}
	if name == "" {
		name = creatureID
	}

	c := domainCreature.NewCreature(creatureID, owner, name, s.tuning.StartStats(), s.tuning.Stats.StartSharpness)
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to register creature: %w", err)
	}
	s.logger.Info().Str("creature_id", creatureID).Str("wallet", owner).Msg("creature registered")
	return c, nil
}

// Get returns the creature as of now. Stored gauges are not rewritten.
func (s *Service) Get(ctx context.Context, creatureID string) (*View, error) {
	c, err := s.repo.GetByID(ctx, creatureID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, derr.ErrNotFound
	}
	rewards, err := s.repo.ListRewards(ctx, creatureID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}

	now := s.now()
	var height chain.HeightCheck
	if len(rewards) > 0 && s.heights != nil {
		height = s.heights.Check(ctx)
	}
	live := make([]*domainCreature.Reward, 0, len(rewards))
	for _, r := range rewards {
		if !height.Expired(r.ExpiresHeight) {
			live = append(live, r)
		}
	}

	v := &View{Creature: c, Rewards: live, AsOf: now}
	v.Fatigue, v.Sharpness = c.Condition(s.tuning.Condition, now)
	return v, nil
}

func (s *Service) ListByOwner(ctx context.Context, owner string) ([]*domainCreature.Creature, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, derr.Invalid("wallet", "required")
	}
	return s.repo.ListByOwner(ctx, owner)
}
