package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/creaturederby/derby/internal/domain/chain"
	chainMocks "github.com/creaturederby/derby/internal/domain/chain/mocks"
	"github.com/creaturederby/derby/internal/domain/creature"
	creatureMocks "github.com/creaturederby/derby/internal/domain/creature/mocks"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/domain/ledger"
	"github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/race"
	raceMocks "github.com/creaturederby/derby/internal/domain/race/mocks"
	"github.com/creaturederby/derby/internal/domain/season"
	"github.com/creaturederby/derby/internal/tuning"
)

const testTuning = `
stats:
  cap: 100
fees:
  train:
    native: 1000
    token_id: tok
    token: 3
  treatment:
    native: 500
train:
  cooldown: 6h
  fatigue_limit: 90
  gain_expression: "base"
  disciplines:
    sprints:
      primary: speed
      secondary: acceleration
      base: 4
      secondary_ratio: 0.5
      fatigue: 12
      sharpness: 8
treatment:
  cooldown: 24h
  kinds:
    massage:
      fatigue: -25
      sharpness: 0
race:
  fatigue_limit: 85
  profiles:
    sprint:
      speed: 1
`

type mockStore struct {
	creatures creature.Repository
	races     race.Repository
}

func (s *mockStore) Payments() payment.Repository   { return nil }
func (s *mockStore) Ledger() ledger.Repository      { return nil }
func (s *mockStore) Creatures() creature.Repository { return s.creatures }
func (s *mockStore) Races() race.Repository         { return s.races }
func (s *mockStore) Seasons() season.Repository     { return nil }

func loadTuning(t *testing.T) *tuning.Tuning {
	t.Helper()
	tn, err := tuning.Parse([]byte(testTuning))
	require.NoError(t, err)
	return tn
}

func testCreature(owner string) *creature.Creature {
	c := creature.NewCreature("token-1", owner, "Comet", creature.Stats{Speed: 20, Acceleration: 20}, 50)
	return c
}

func TestRegistry_Validate(t *testing.T) {
	tn := loadTuning(t)
	reg, err := NewRegistry(zerolog.Nop(), NewTrain(tn, nil, zerolog.Nop()), NewRaceEntry(tn, zerolog.Nop()), NewTreatment(tn, zerolog.Nop()))
	require.NoError(t, err)

	t.Run("accepts well formed payload", func(t *testing.T) {
		err := reg.Validate(payment.ActionTrain, json.RawMessage(`{"creatureId":"token-1","discipline":"sprints"}`))
		assert.NoError(t, err)
	})

	t.Run("rejects missing field", func(t *testing.T) {
		err := reg.Validate(payment.ActionEnterRace, json.RawMessage(`{"creatureId":"token-1"}`))
		require.Error(t, err)
		assert.True(t, derr.IsValidation(err))
	})

	t.Run("rejects unknown action", func(t *testing.T) {
		err := reg.Validate(payment.ActionType("fly"), json.RawMessage(`{}`))
		assert.True(t, derr.IsValidation(err))
	})

	t.Run("rejects non-object payload", func(t *testing.T) {
		err := reg.Validate(payment.ActionStartTreatment, json.RawMessage(`not json`))
		assert.True(t, derr.IsValidation(err))
	})
}

func TestRegistry_Prepare(t *testing.T) {
	tn := loadTuning(t)

	t.Run("train resolves the chain height", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		chainClient := chainMocks.NewMockClient(ctrl)
		chainClient.EXPECT().GetLatestBlock(gomock.Any()).Return(&chain.Block{Hash: "h", Height: 812}, nil).Times(1)

		reg, err := NewRegistry(zerolog.Nop(), NewTrain(tn, NewHeightSource(chainClient, zerolog.Nop()), zerolog.Nop()))
		require.NoError(t, err)
		in := reg.Prepare(context.Background(), payment.ActionTrain, Input{TxID: "tx"})
		assert.Equal(t, chain.HeightCheck{Height: 812, Known: true}, in.Height)
		assert.Equal(t, "tx", in.TxID)
	})

	t.Run("executors without external inputs are untouched", func(t *testing.T) {
		reg, err := NewRegistry(zerolog.Nop(), NewTreatment(tn, zerolog.Nop()))
		require.NoError(t, err)
		in := reg.Prepare(context.Background(), payment.ActionStartTreatment, Input{TxID: "tx"})
		assert.False(t, in.Height.Known)
		in = reg.Prepare(context.Background(), payment.ActionType("fly"), Input{TxID: "tx"})
		assert.Equal(t, "tx", in.TxID)
	})
}

func TestCreatureIDOf(t *testing.T) {
	assert.Equal(t, "token-1", CreatureIDOf(json.RawMessage(`{"creatureId":"token-1","raceId":"x"}`)))
	assert.Equal(t, "", CreatureIDOf(json.RawMessage(`[]`)))
}

func TestTrain_Quote(t *testing.T) {
	tn := loadTuning(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := json.RawMessage(`{"creatureId":"token-1","discipline":"sprints"}`)

	t.Run("native fee", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		creatures := creatureMocks.NewMockRepository(ctrl)
		creatures.EXPECT().GetByID(gomock.Any(), "token-1").Return(testCreature("9hOwner"), nil)

		e := NewTrain(tn, nil, zerolog.Nop())
		amount, err := e.Quote(context.Background(), &mockStore{creatures: creatures}, QuoteRequest{Wallet: "9hOwner", Payload: payload, Now: now})

		require.NoError(t, err)
		assert.Equal(t, payment.Amount{Value: 1000}, amount)
	})

	t.Run("token fee", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		creatures := creatureMocks.NewMockRepository(ctrl)
		creatures.EXPECT().GetByID(gomock.Any(), "token-1").Return(testCreature("9hOwner"), nil)

		e := NewTrain(tn, nil, zerolog.Nop())
		amount, err := e.Quote(context.Background(), &mockStore{creatures: creatures}, QuoteRequest{Wallet: "9hOwner", Payload: payload, Currency: "tok", Now: now})

		require.NoError(t, err)
		assert.Equal(t, payment.Amount{Value: 3, TokenID: "tok"}, amount)
	})

	t.Run("not owner", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		creatures := creatureMocks.NewMockRepository(ctrl)
		creatures.EXPECT().GetByID(gomock.Any(), "token-1").Return(testCreature("9hOther"), nil)

		e := NewTrain(tn, nil, zerolog.Nop())
		_, err := e.Quote(context.Background(), &mockStore{creatures: creatures}, QuoteRequest{Wallet: "9hOwner", Payload: payload, Now: now})

		assert.True(t, derr.IsValidation(err))
	})

	t.Run("cooldown without bonus action", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		c := testCreature("9hOwner")
		last := now.Add(-time.Hour)
		c.LastTrainedAt = &last
		creatures := creatureMocks.NewMockRepository(ctrl)
		creatures.EXPECT().GetByID(gomock.Any(), "token-1").Return(c, nil)

		e := NewTrain(tn, nil, zerolog.Nop())
		_, err := e.Quote(context.Background(), &mockStore{creatures: creatures}, QuoteRequest{Wallet: "9hOwner", Payload: payload, Now: now})

		var verr *derr.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Reason, "cooldown")
	})

	t.Run("too fatigued", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		c := testCreature("9hOwner")
		c.Fatigue = 95
		creatures := creatureMocks.NewMockRepository(ctrl)
		creatures.EXPECT().GetByID(gomock.Any(), "token-1").Return(c, nil)

		e := NewTrain(tn, nil, zerolog.Nop())
		_, err := e.Quote(context.Background(), &mockStore{creatures: creatures}, QuoteRequest{Wallet: "9hOwner", Payload: payload, Now: now})

		assert.True(t, derr.IsValidation(err))
	})

	t.Run("unknown discipline", func(t *testing.T) {
		e := NewTrain(tn, nil, zerolog.Nop())
		_, err := e.Quote(context.Background(), &mockStore{}, QuoteRequest{Wallet: "9hOwner", Payload: json.RawMessage(`{"creatureId":"token-1","discipline":"swimming"}`), Now: now})

		assert.True(t, derr.IsValidation(err))
	})
}

func TestTrain_Execute(t *testing.T) {
	tn := loadTuning(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := json.RawMessage(`{"creatureId":"token-1","discipline":"sprints"}`)

	t.Run("applies gains and consumes live rewards", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		c := testCreature("9hOwner")
		c.Fatigue = 30
		last := now.Add(-time.Hour)
		c.LastTrainedAt = &last
		c.LastActionAt = &now
		c.BonusActions = 1

		boost := creature.NewReward("token-1", creature.RewardBoost, 0.5, nil, 100, 720)
		recovery := creature.NewReward("token-1", creature.RewardRecovery, 10, nil, 100, 720)
		expired := creature.NewReward("token-1", creature.RewardBoost, 0.5, nil, 100, 10)

		creatures := creatureMocks.NewMockRepository(ctrl)
		chainClient := chainMocks.NewMockClient(ctrl)
		creatures.EXPECT().GetForUpdate(gomock.Any(), "token-1").Return(c, nil)
		creatures.EXPECT().ListRewards(gomock.Any(), "token-1", false).Return([]*creature.Reward{boost, recovery, expired}, nil)
		creatures.EXPECT().ConsumeReward(gomock.Any(), boost.RewardID, now).Return(true, nil)
		creatures.EXPECT().ConsumeReward(gomock.Any(), recovery.RewardID, now).Return(true, nil)
		creatures.EXPECT().Update(gomock.Any(), c).Return(nil)

		// no GetLatestBlock expectation: the height arrives with the input
		e := NewTrain(tn, NewHeightSource(chainClient, zerolog.Nop()), zerolog.Nop())
		out, err := e.Execute(context.Background(), &mockStore{creatures: creatures}, Input{
			Wallet:  "9hOwner",
			TxID:    "tx",
			Payload: payload,
			Now:     now,
			Height:  chain.HeightCheck{Height: 500, Known: true},
		})

		require.NoError(t, err)
		res, ok := out.Result.(*TrainResult)
		require.True(t, ok)
		assert.InDelta(t, 6, res.Gains[creature.StatSpeed], 1e-9)
		assert.InDelta(t, 3, res.Gains[creature.StatAcceleration], 1e-9)
		assert.InDelta(t, 26, c.Stats.Speed, 1e-9)
		assert.InDelta(t, 32, c.Fatigue, 1e-9)
		assert.InDelta(t, 58, c.Sharpness, 1e-9)
		assert.True(t, res.BonusActionUsed)
		assert.Equal(t, 0, c.BonusActions)
		assert.Equal(t, now, *c.LastTrainedAt)
	})

	t.Run("unknown height keeps rewards live", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		c := testCreature("9hOwner")
		expiredByHeight := creature.NewReward("token-1", creature.RewardBoost, 0.25, nil, 100, 1)

		creatures := creatureMocks.NewMockRepository(ctrl)
		chainClient := chainMocks.NewMockClient(ctrl)
		creatures.EXPECT().GetForUpdate(gomock.Any(), "token-1").Return(c, nil)
		creatures.EXPECT().ListRewards(gomock.Any(), "token-1", false).Return([]*creature.Reward{expiredByHeight}, nil)
		chainClient.EXPECT().GetLatestBlock(gomock.Any()).Return(nil, chain.ErrUnavailable)
		creatures.EXPECT().ConsumeReward(gomock.Any(), expiredByHeight.RewardID, now).Return(true, nil)
		creatures.EXPECT().Update(gomock.Any(), c).Return(nil)

		e := NewTrain(tn, NewHeightSource(chainClient, zerolog.Nop()), zerolog.Nop())
		in := Input{Wallet: "9hOwner", Payload: payload, Now: now}
		e.Prepare(context.Background(), &in)
		require.False(t, in.Height.Known)
		out, err := e.Execute(context.Background(), &mockStore{creatures: creatures}, in)

		require.NoError(t, err)
		assert.InDelta(t, 0.25, out.Result.(*TrainResult).Boost, 1e-9)
	})

	t.Run("reward consumed elsewhere is skipped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		c := testCreature("9hOwner")
		boost := creature.NewReward("token-1", creature.RewardBoost, 0.5, nil, 100, 720)

		creatures := creatureMocks.NewMockRepository(ctrl)
		creatures.EXPECT().GetForUpdate(gomock.Any(), "token-1").Return(c, nil)
		creatures.EXPECT().ListRewards(gomock.Any(), "token-1", false).Return([]*creature.Reward{boost}, nil)
		creatures.EXPECT().ConsumeReward(gomock.Any(), boost.RewardID, now).Return(false, nil)
		creatures.EXPECT().Update(gomock.Any(), c).Return(nil)

		e := NewTrain(tn, nil, zerolog.Nop())
		out, err := e.Execute(context.Background(), &mockStore{creatures: creatures}, Input{
			Wallet:  "9hOwner",
			Payload: payload,
			Now:     now,
			Height:  chain.HeightCheck{Height: 200, Known: true},
		})

		require.NoError(t, err)
		assert.Zero(t, out.Result.(*TrainResult).Boost)
		assert.InDelta(t, 24, c.Stats.Speed, 1e-9)
	})
}

func TestTreatment(t *testing.T) {
	tn := loadTuning(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := json.RawMessage(`{"creatureId":"token-1","treatment":"massage"}`)

	t.Run("reduces fatigue and starts cooldown", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		c := testCreature("9hOwner")
		c.Fatigue = 40
		c.LastActionAt = &now
		creatures := creatureMocks.NewMockRepository(ctrl)
		creatures.EXPECT().GetForUpdate(gomock.Any(), "token-1").Return(c, nil)
		creatures.EXPECT().Update(gomock.Any(), c).Return(nil)

		e := NewTreatment(tn, zerolog.Nop())
		out, err := e.Execute(context.Background(), &mockStore{creatures: creatures}, Input{Wallet: "9hOwner", Payload: payload, Now: now})

		require.NoError(t, err)
		res := out.Result.(*TreatmentResult)
		assert.InDelta(t, 15, res.Fatigue, 1e-9)
		assert.Equal(t, now.Add(24*time.Hour), res.TreatmentUntil)
	})

	t.Run("refused during cooldown", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		c := testCreature("9hOwner")
		until := now.Add(time.Hour)
		c.TreatmentUntil = &until
		creatures := creatureMocks.NewMockRepository(ctrl)
		creatures.EXPECT().GetByID(gomock.Any(), "token-1").Return(c, nil)

		e := NewTreatment(tn, zerolog.Nop())
		_, err := e.Quote(context.Background(), &mockStore{creatures: creatures}, QuoteRequest{Wallet: "9hOwner", Payload: payload, Now: now})

		assert.True(t, derr.IsValidation(err))
	})
}

func TestRaceEntry(t *testing.T) {
	tn := loadTuning(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	openRace := func() *race.Race {
		r := race.NewRace(uuid.New(), "Spring Dash", "sprint", 100, 2, now.Add(-time.Hour), now.Add(time.Hour))
		r.Status = race.StatusOpen
		return r
	}
	payloadFor := func(r *race.Race) json.RawMessage {
		return json.RawMessage(`{"creatureId":"token-1","raceId":"` + r.RaceID.String() + `"}`)
	}

	t.Run("quote prices race fee", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		r := openRace()
		races := raceMocks.NewMockRepository(ctrl)
		creatures := creatureMocks.NewMockRepository(ctrl)
		races.EXPECT().GetByID(gomock.Any(), r.RaceID).Return(r, nil)
		creatures.EXPECT().GetByID(gomock.Any(), "token-1").Return(testCreature("9hOwner"), nil)
		races.EXPECT().ListEntries(gomock.Any(), r.RaceID).Return(nil, nil)

		e := NewRaceEntry(tn, zerolog.Nop())
		amount, err := e.Quote(context.Background(), &mockStore{creatures: creatures, races: races}, QuoteRequest{Wallet: "9hOwner", Payload: payloadFor(r), Now: now})

		require.NoError(t, err)
		assert.Equal(t, payment.Amount{Value: 100}, amount)
	})

	t.Run("quote refuses full race", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		r := openRace()
		races := raceMocks.NewMockRepository(ctrl)
		creatures := creatureMocks.NewMockRepository(ctrl)
		races.EXPECT().GetByID(gomock.Any(), r.RaceID).Return(r, nil)
		creatures.EXPECT().GetByID(gomock.Any(), "token-1").Return(testCreature("9hOwner"), nil)
		races.EXPECT().ListEntries(gomock.Any(), r.RaceID).Return([]*race.Entry{{CreatureID: "a"}, {CreatureID: "b"}}, nil)

		e := NewRaceEntry(tn, zerolog.Nop())
		_, err := e.Quote(context.Background(), &mockStore{creatures: creatures, races: races}, QuoteRequest{Wallet: "9hOwner", Payload: payloadFor(r), Now: now})

		assert.True(t, derr.IsValidation(err))
	})

	t.Run("quote refuses closed race", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		r := openRace()
		r.Status = race.StatusLocked
		races := raceMocks.NewMockRepository(ctrl)
		creatures := creatureMocks.NewMockRepository(ctrl)
		races.EXPECT().GetByID(gomock.Any(), r.RaceID).Return(r, nil)
		creatures.EXPECT().GetByID(gomock.Any(), "token-1").Return(testCreature("9hOwner"), nil)

		e := NewRaceEntry(tn, zerolog.Nop())
		_, err := e.Quote(context.Background(), &mockStore{creatures: creatures, races: races}, QuoteRequest{Wallet: "9hOwner", Payload: payloadFor(r), Now: now})

		assert.True(t, derr.IsValidation(err))
	})

	t.Run("execute snapshots decayed condition", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		r := openRace()
		c := testCreature("9hOwner")
		c.Fatigue = 80
		earlier := now.Add(-24 * time.Hour)
		c.LastActionAt = &earlier

		races := raceMocks.NewMockRepository(ctrl)
		creatures := creatureMocks.NewMockRepository(ctrl)
		races.EXPECT().GetForUpdate(gomock.Any(), r.RaceID).Return(r, nil)
		creatures.EXPECT().GetForUpdate(gomock.Any(), "token-1").Return(c, nil)
		races.EXPECT().ListEntries(gomock.Any(), r.RaceID).Return(nil, nil)
		races.EXPECT().AddEntry(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, entry *race.Entry) error {
			assert.Equal(t, "tx-1", entry.TxID)
			assert.Equal(t, "9hOwner", entry.Owner)
			assert.Less(t, entry.Snapshot.Fatigue, 80.0)
			assert.Equal(t, c.Stats, entry.Snapshot.Stats)
			return nil
		})

		e := NewRaceEntry(tn, zerolog.Nop())
		out, err := e.Execute(context.Background(), &mockStore{creatures: creatures, races: races}, Input{Wallet: "9hOwner", TxID: "tx-1", Payload: payloadFor(r), Now: now})

		require.NoError(t, err)
		require.NotNil(t, out.RaceID)
		assert.Equal(t, r.RaceID, *out.RaceID)
		assert.Equal(t, r.SeasonID, *out.SeasonID)
	})

	t.Run("execute maps duplicate entry", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		r := openRace()
		races := raceMocks.NewMockRepository(ctrl)
		creatures := creatureMocks.NewMockRepository(ctrl)
		races.EXPECT().GetForUpdate(gomock.Any(), r.RaceID).Return(r, nil)
		creatures.EXPECT().GetForUpdate(gomock.Any(), "token-1").Return(testCreature("9hOwner"), nil)
		races.EXPECT().ListEntries(gomock.Any(), r.RaceID).Return(nil, nil)
		races.EXPECT().AddEntry(gomock.Any(), gomock.Any()).Return(race.ErrDuplicateEntry)

		e := NewRaceEntry(tn, zerolog.Nop())
		_, err := e.Execute(context.Background(), &mockStore{creatures: creatures, races: races}, Input{Wallet: "9hOwner", Payload: payloadFor(r), Now: now})

		assert.True(t, derr.IsValidation(err))
	})
}
