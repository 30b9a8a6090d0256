package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/store"
	"github.com/creaturederby/derby/internal/tuning"
)

const treatmentSchema = `{
	"type": "object",
	"required": ["creatureId", "treatment"],
	"properties": {
		"creatureId": {"type": "string", "minLength": 1, "maxLength": 128},
		"treatment": {"type": "string", "minLength": 1}
	}
}`

type treatmentPayload struct {
	CreatureID string `json:"creatureId"`
	Treatment  string `json:"treatment"`
}

type TreatmentResult struct {
	CreatureID     string    `json:"creatureId"`
	Treatment      string    `json:"treatment"`
	Fatigue        float64   `json:"fatigue"`
	Sharpness      float64   `json:"sharpness"`
	TreatmentUntil time.Time `json:"treatmentUntil"`
}

// Treatment applies a recovery treatment and starts its cooldown.
type Treatment struct {
	tuning *tuning.Tuning
	logger zerolog.Logger
}

func NewTreatment(t *tuning.Tuning, logger zerolog.Logger) *Treatment {
	return &Treatment{
		tuning: t,
		logger: logger.With().Str("executor", string(payment.ActionStartTreatment)).Logger(),
	}
}

func (e *Treatment) Type() payment.ActionType { return payment.ActionStartTreatment }

func (e *Treatment) Schema() string { return treatmentSchema }

func (e *Treatment) Quote(ctx context.Context, st store.Store, req QuoteRequest) (payment.Amount, error) {
	var p treatmentPayload
	if err := decode(req.Payload, &p); err != nil {
		return payment.Amount{}, err
	}
	if _, err := e.kind(p.Treatment); err != nil {
		return payment.Amount{}, err
	}
	c, err := loadOwned(ctx, st.Creatures(), p.CreatureID, req.Wallet, false)
	if err != nil {
		return payment.Amount{}, err
	}
	if err := e.check(c, req.Now); err != nil {
		return payment.Amount{}, err
	}
	amount, err := e.tuning.Fees.Treatment.Amount(req.Currency)
	if err != nil {
		return payment.Amount{}, derr.Invalid("currency", err.Error())
	}
	return amount, nil
}

func (e *Treatment) Execute(ctx context.Context, tx store.Store, in Input) (*Outcome, error) {
	var p treatmentPayload
	if err := decode(in.Payload, &p); err != nil {
		return nil, err
	}
	k, err := e.kind(p.Treatment)
	if err != nil {
		return nil, err
	}
	c, err := loadOwned(ctx, tx.Creatures(), p.CreatureID, in.Wallet, true)
	if err != nil {
		return nil, err
	}
	if err := e.check(c, in.Now); err != nil {
		return nil, err
	}

	c.Settle(e.tuning.Condition, in.Now)
	c.Fatigue = creature.Clamp(c.Fatigue + k.Fatigue)
	c.Sharpness = creature.Clamp(c.Sharpness + k.Sharpness)
	ends := in.Now.Add(e.tuning.Treatment.Cooldown)
	c.TreatmentUntil = &ends
	if err := tx.Creatures().Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update creature: %w", err)
	}

	e.logger.Info().Str("creature_id", c.CreatureID).Str("treatment", p.Treatment).Msg("treatment started")
	return &Outcome{
		Result: &TreatmentResult{
			CreatureID:     c.CreatureID,
			Treatment:      p.Treatment,
			Fatigue:        c.Fatigue,
			Sharpness:      c.Sharpness,
			TreatmentUntil: ends,
		},
		CreatureID: c.CreatureID,
	}, nil
}

func (e *Treatment) kind(name string) (tuning.TreatmentKind, error) {
	k, ok := e.tuning.Treatment.Kinds[name]
	if !ok {
		return tuning.TreatmentKind{}, derr.Invalidf("treatment", "unknown treatment %q", name)
	}
	return k, nil
}

func (e *Treatment) check(c *creature.Creature, now time.Time) error {
	if until(c.TreatmentUntil, now) {
		return derr.Invalidf("creatureId", "treatment cooldown active until %s", c.TreatmentUntil.Format(time.RFC3339))
	}
	return nil
}
