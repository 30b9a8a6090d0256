package creature

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/creaturederby/derby/internal/domain/chain"
	domainCreature "github.com/creaturederby/derby/internal/domain/creature"
	creatureMocks "github.com/creaturederby/derby/internal/domain/creature/mocks"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/tuning"
)

type fixedHeight chain.HeightCheck

func (h fixedHeight) Check(context.Context) chain.HeightCheck { return chain.HeightCheck(h) }

func testTuning(t *testing.T) *tuning.Tuning {
	t.Helper()
	tn, err := tuning.Parse([]byte(`
stats:
  cap: 100
  start_sharpness: 40
  start:
    speed: 12
    stamina: 10
condition:
  fatigue_recovery_rate: 0.05
  sharpness_drift_rate: 0.1
  sharpness_baseline: 50
`))
	require.NoError(t, err)
	return tn
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("starts with tuned stats", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := creatureMocks.NewMockRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), "token-1").Return(nil, nil)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		c, err := NewService(repo, testTuning(t), nil, zerolog.Nop()).Register(ctx, " token-1 ", "9hOwner", "")
		require.NoError(t, err)
		assert.Equal(t, "token-1", c.CreatureID)
		assert.Equal(t, "token-1", c.Name)
		assert.Equal(t, 12.0, c.Stats.Speed)
		assert.Equal(t, 10.0, c.Stats.Stamina)
		assert.Equal(t, 40.0, c.Sharpness)
		assert.Zero(t, c.Fatigue)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := creatureMocks.NewMockRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), "token-1").Return(&domainCreature.Creature{CreatureID: "token-1"}, nil)

		_, err := NewService(repo, testTuning(t), nil, zerolog.Nop()).Register(ctx, "token-1", "9hOwner", "Comet")
		assert.True(t, derr.IsValidation(err))
	})

	t.Run("requires owner", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := NewService(creatureMocks.NewMockRepository(ctrl), testTuning(t), nil, zerolog.Nop())
		_, err := svc.Register(ctx, "token-1", "", "Comet")
		assert.True(t, derr.IsValidation(err))
	})
}

func TestService_Get(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-10 * time.Hour)

	stored := func() *domainCreature.Creature {
		return &domainCreature.Creature{
			CreatureID:   "token-1",
			Owner:        "9hOwner",
			Fatigue:      40,
			Sharpness:    80,
			LastActionAt: &last,
		}
	}

	t.Run("decays condition without writing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := creatureMocks.NewMockRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), "token-1").Return(stored(), nil)
		repo.EXPECT().ListRewards(gomock.Any(), "token-1", false).Return(nil, nil)

		svc := NewService(repo, testTuning(t), nil, zerolog.Nop())
		svc.now = func() time.Time { return now }
		v, err := svc.Get(ctx, "token-1")
		require.NoError(t, err)
		assert.InDelta(t, 40*math.Exp(-0.5), v.Fatigue, 1e-9)
		assert.InDelta(t, 50+30*math.Exp(-1), v.Sharpness, 1e-9)
		assert.Equal(t, 40.0, v.Creature.Fatigue)
		assert.Equal(t, now, v.AsOf)
	})

	t.Run("hides expired rewards", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := creatureMocks.NewMockRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), "token-1").Return(stored(), nil)
		repo.EXPECT().ListRewards(gomock.Any(), "token-1", false).Return([]*domainCreature.Reward{
			{Kind: domainCreature.RewardBoost, ExpiresHeight: 90},
			{Kind: domainCreature.RewardRecovery, ExpiresHeight: 200},
		}, nil)

		svc := NewService(repo, testTuning(t), fixedHeight{Height: 100, Known: true}, zerolog.Nop())
		v, err := svc.Get(ctx, "token-1")
		require.NoError(t, err)
		require.Len(t, v.Rewards, 1)
		assert.Equal(t, domainCreature.RewardRecovery, v.Rewards[0].Kind)
	})

	t.Run("unknown height keeps rewards", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := creatureMocks.NewMockRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), "token-1").Return(stored(), nil)
		repo.EXPECT().ListRewards(gomock.Any(), "token-1", false).Return([]*domainCreature.Reward{
			{Kind: domainCreature.RewardBoost, ExpiresHeight: 90},
		}, nil)

		svc := NewService(repo, testTuning(t), fixedHeight{}, zerolog.Nop())
		v, err := svc.Get(ctx, "token-1")
		require.NoError(t, err)
		assert.Len(t, v.Rewards, 1)
	})

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := creatureMocks.NewMockRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), "nope").Return(nil, nil)

		_, err := NewService(repo, testTuning(t), nil, zerolog.Nop()).Get(ctx, "nope")
		assert.ErrorIs(t, err, derr.ErrNotFound)
	})
}
