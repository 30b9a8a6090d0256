package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/chain"
	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/store"
	"github.com/creaturederby/derby/internal/tuning"
)

const trainSchema = `{
	"type": "object",
	"required": ["creatureId", "discipline"],
	"properties": {
		"creatureId": {"type": "string", "minLength": 1, "maxLength": 128},
		"discipline": {"type": "string", "minLength": 1}
	}
}`

type trainPayload struct {
	CreatureID string `json:"creatureId"`
	Discipline string `json:"discipline"`
}

// TrainResult is recorded on the executed request.
type TrainResult struct {
	CreatureID      string             `json:"creatureId"`
	Discipline      string             `json:"discipline"`
	Gains           map[string]float64 `json:"gains"`
	Stats           creature.Stats     `json:"stats"`
	Fatigue         float64            `json:"fatigue"`
	Sharpness       float64            `json:"sharpness"`
	Boost           float64            `json:"boost,omitempty"`
	Recovery        float64            `json:"recovery,omitempty"`
	BonusActionUsed bool               `json:"bonusActionUsed,omitempty"`
}

// Train grows a creature's stats for one discipline.
type Train struct {
	tuning  *tuning.Tuning
	heights *HeightSource
	logger  zerolog.Logger
}

func NewTrain(t *tuning.Tuning, heights *HeightSource, logger zerolog.Logger) *Train {
	return &Train{
		tuning:  t,
		heights: heights,
		logger:  logger.With().Str("executor", string(payment.ActionTrain)).Logger(),
	}
}

func (e *Train) Type() payment.ActionType { return payment.ActionTrain }

// Prepare resolves the chain height used for reward expiry.
func (e *Train) Prepare(ctx context.Context, in *Input) {
	in.Height = e.heights.Check(ctx)
}

func (e *Train) Schema() string { return trainSchema }

func (e *Train) Quote(ctx context.Context, st store.Store, req QuoteRequest) (payment.Amount, error) {
	var p trainPayload
	if err := decode(req.Payload, &p); err != nil {
		return payment.Amount{}, err
	}
	if _, err := e.discipline(p.Discipline); err != nil {
		return payment.Amount{}, err
	}
	c, err := loadOwned(ctx, st.Creatures(), p.CreatureID, req.Wallet, false)
	if err != nil {
		return payment.Amount{}, err
	}
	if _, err := e.check(c, req.Now); err != nil {
		return payment.Amount{}, err
	}
	amount, err := e.tuning.Fees.Train.Amount(req.Currency)
	if err != nil {
		return payment.Amount{}, derr.Invalid("currency", err.Error())
	}
	return amount, nil
}

func (e *Train) Execute(ctx context.Context, tx store.Store, in Input) (*Outcome, error) {
	var p trainPayload
	if err := decode(in.Payload, &p); err != nil {
		return nil, err
	}
	d, err := e.discipline(p.Discipline)
	if err != nil {
		return nil, err
	}
	c, err := loadOwned(ctx, tx.Creatures(), p.CreatureID, in.Wallet, true)
	if err != nil {
		return nil, err
	}
	useBonus, err := e.check(c, in.Now)
	if err != nil {
		return nil, err
	}

	c.Settle(e.tuning.Condition, in.Now)
	boost, recovery, err := e.consumeRewards(ctx, tx.Creatures(), c.CreatureID, in.Height, in.Now)
	if err != nil {
		return nil, err
	}
	c.Fatigue = creature.Clamp(c.Fatigue - recovery)

	result := &TrainResult{
		CreatureID:      c.CreatureID,
		Discipline:      p.Discipline,
		Gains:           make(map[string]float64, 2),
		Boost:           boost,
		Recovery:        recovery,
		BonusActionUsed: useBonus,
	}
	if err := e.grow(c, d.Primary, d.Base, boost, result.Gains); err != nil {
		return nil, err
	}
	if d.Secondary != "" && d.SecondaryRatio > 0 {
		if err := e.grow(c, d.Secondary, d.Base*d.SecondaryRatio, boost, result.Gains); err != nil {
			return nil, err
		}
	}

	c.Fatigue = creature.Clamp(c.Fatigue + d.Fatigue)
	c.Sharpness = creature.Clamp(c.Sharpness + d.Sharpness)
	c.LastTrainedAt = &in.Now
	if useBonus {
		c.BonusActions--
	}
	if err := tx.Creatures().Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update creature: %w", err)
	}

	result.Stats = c.Stats
	result.Fatigue = c.Fatigue
	result.Sharpness = c.Sharpness
	e.logger.Info().
		Str("creature_id", c.CreatureID).
		Str("discipline", p.Discipline).
		Float64("boost", boost).
		Bool("bonus_action", useBonus).
		Msg("creature trained")
	return &Outcome{Result: result, CreatureID: c.CreatureID}, nil
}

func (e *Train) discipline(name string) (tuning.Discipline, error) {
	d, ok := e.tuning.Train.Disciplines[name]
	if !ok {
		return tuning.Discipline{}, derr.Invalidf("discipline", "unknown discipline %q", name)
	}
	return d, nil
}

// check reports whether a bonus action must be spent to train now.
func (e *Train) check(c *creature.Creature, now time.Time) (bool, error) {
	fatigue, _ := c.Condition(e.tuning.Condition, now)
	if fatigue >= e.tuning.Train.FatigueLimit {
		return false, derr.Invalidf("creatureId", "fatigue %.1f is at or above the training limit", fatigue)
	}
	if c.LastTrainedAt == nil {
		return false, nil
	}
	ready := c.LastTrainedAt.Add(e.tuning.Train.Cooldown)
	if !now.Before(ready) {
		return false, nil
	}
	if c.BonusActions > 0 {
		return true, nil
	}
	return false, derr.Invalidf("creatureId", "training cooldown active until %s", ready.Format(time.RFC3339))
}

// consumeRewards spends every live reward. Rewards consumed concurrently by
// another transaction are skipped.
func (e *Train) consumeRewards(ctx context.Context, repo creature.Repository, creatureID string, height chain.HeightCheck, now time.Time) (float64, float64, error) {
	rewards, err := repo.ListRewards(ctx, creatureID, false)
	if err != nil {
		return 0, 0, fmt.Errorf("list rewards: %w", err)
	}
	if len(rewards) == 0 {
		return 0, 0, nil
	}
	var boost, recovery float64
	for _, r := range rewards {
		if height.Expired(r.ExpiresHeight) {
			continue
		}
		won, err := repo.ConsumeReward(ctx, r.RewardID, now)
		if err != nil {
			return 0, 0, fmt.Errorf("consume reward: %w", err)
		}
		if !won {
			continue
		}
		switch r.Kind {
		case creature.RewardBoost:
			boost += r.Magnitude
		case creature.RewardRecovery:
			recovery += r.Magnitude
		}
	}
	return boost, recovery, nil
}

func (e *Train) grow(c *creature.Creature, stat string, base, boost float64, gains map[string]float64) error {
	current, err := c.Stats.Get(stat)
	if err != nil {
		return err
	}
	gain, err := e.tuning.Gain(base, current, c.Sharpness, c.Fatigue)
	if err != nil {
		return fmt.Errorf("evaluate gain: %w", err)
	}
	gained, err := c.Stats.Add(stat, gain*(1+boost), e.tuning.Stats.Cap)
	if errors.Is(err, creature.ErrUnknownStat) {
		return fmt.Errorf("discipline stat %q: %w", stat, err)
	}
	if err != nil {
		return err
	}
	gains[stat] += gained
	return nil
}
