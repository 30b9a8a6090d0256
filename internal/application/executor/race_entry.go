package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/race"
	"github.com/creaturederby/derby/internal/domain/store"
	"github.com/creaturederby/derby/internal/tuning"
)

const raceEntrySchema = `{
	"type": "object",
	"required": ["creatureId", "raceId"],
	"properties": {
		"creatureId": {"type": "string", "minLength": 1, "maxLength": 128},
		"raceId": {"type": "string", "format": "uuid"}
	}
}`

type raceEntryPayload struct {
	CreatureID string `json:"creatureId"`
	RaceID     string `json:"raceId"`
}

type RaceEntryResult struct {
	RaceID     uuid.UUID     `json:"raceId"`
	CreatureID string        `json:"creatureId"`
	Snapshot   race.Snapshot `json:"snapshot"`
}

// RaceEntry enters a creature into an open race, freezing its snapshot.
type RaceEntry struct {
	tuning *tuning.Tuning
	logger zerolog.Logger
}

func NewRaceEntry(t *tuning.Tuning, logger zerolog.Logger) *RaceEntry {
	return &RaceEntry{
		tuning: t,
		logger: logger.With().Str("executor", string(payment.ActionEnterRace)).Logger(),
	}
}

func (e *RaceEntry) Type() payment.ActionType { return payment.ActionEnterRace }

func (e *RaceEntry) Schema() string { return raceEntrySchema }

func (e *RaceEntry) Quote(ctx context.Context, st store.Store, req QuoteRequest) (payment.Amount, error) {
	p, raceID, err := e.payload(req.Payload)
	if err != nil {
		return payment.Amount{}, err
	}
	r, err := st.Races().GetByID(ctx, raceID)
	if err != nil {
		return payment.Amount{}, err
	}
	if r == nil {
		return payment.Amount{}, derr.Invalid("raceId", "race not found")
	}
	c, err := loadOwned(ctx, st.Creatures(), p.CreatureID, req.Wallet, false)
	if err != nil {
		return payment.Amount{}, err
	}
	if err := e.check(ctx, st.Races(), r, c, req.Now); err != nil {
		return payment.Amount{}, err
	}
	amount := payment.Amount{Value: r.EntryFee, TokenID: r.FeeTokenID}
	if req.Currency != "" && req.Currency != amount.Currency() {
		return payment.Amount{}, derr.Invalidf("currency", "race fee is payable in %s only", amount.Currency())
	}
	return amount, nil
}

func (e *RaceEntry) Execute(ctx context.Context, tx store.Store, in Input) (*Outcome, error) {
	p, raceID, err := e.payload(in.Payload)
	if err != nil {
		return nil, err
	}
	// The race row lock orders entries against the open -> locked transition.
	r, err := tx.Races().GetForUpdate(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, derr.Invalid("raceId", "race not found")
	}
	c, err := loadOwned(ctx, tx.Creatures(), p.CreatureID, in.Wallet, true)
	if err != nil {
		return nil, err
	}
	if err := e.check(ctx, tx.Races(), r, c, in.Now); err != nil {
		return nil, err
	}

	fatigue, sharpness := c.Condition(e.tuning.Condition, in.Now)
	entry := &race.Entry{
		RaceID:     r.RaceID,
		CreatureID: c.CreatureID,
		Owner:      c.Owner,
		TxID:       in.TxID,
		Snapshot: race.Snapshot{
			Stats:     c.Stats,
			Fatigue:   fatigue,
			Sharpness: sharpness,
			TakenAt:   in.Now,
		},
		CreatedAt: in.Now,
	}
	if err := tx.Races().AddEntry(ctx, entry); err != nil {
		if errors.Is(err, race.ErrDuplicateEntry) {
			return nil, derr.Invalid("creatureId", err.Error())
		}
		return nil, fmt.Errorf("add entry: %w", err)
	}

	e.logger.Info().
		Str("race_id", r.RaceID.String()).
		Str("creature_id", c.CreatureID).
		Str("tx_id", in.TxID).
		Msg("creature entered race")
	seasonID := r.SeasonID
	return &Outcome{
		Result:     &RaceEntryResult{RaceID: r.RaceID, CreatureID: c.CreatureID, Snapshot: entry.Snapshot},
		CreatureID: c.CreatureID,
		RaceID:     &entry.RaceID,
		SeasonID:   &seasonID,
	}, nil
}

func (e *RaceEntry) payload(raw []byte) (raceEntryPayload, uuid.UUID, error) {
	var p raceEntryPayload
	if err := decode(raw, &p); err != nil {
		return p, uuid.Nil, err
	}
	id, err := uuid.Parse(p.RaceID)
	if err != nil {
		return p, uuid.Nil, derr.Invalid("raceId", "must be a UUID")
	}
	return p, id, nil
}

func (e *RaceEntry) check(ctx context.Context, repo race.Repository, r *race.Race, c *creature.Creature, now time.Time) error {
	if !r.AcceptsEntries(now) {
		return derr.Invalidf("raceId", "race is %s and not accepting entries", r.Status)
	}
	if _, ok := e.tuning.Profile(r.RaceType); !ok {
		return derr.Invalidf("raceId", "race type %q has no scoring profile", r.RaceType)
	}
	entries, err := repo.ListEntries(ctx, r.RaceID)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	if len(entries) >= r.MaxEntries {
		return derr.Invalid("raceId", "race is full")
	}
	for _, entry := range entries {
		if entry.CreatureID == c.CreatureID {
			return derr.Invalid("creatureId", race.ErrDuplicateEntry.Error())
		}
	}
	fatigue, _ := c.Condition(e.tuning.Condition, now)
	if fatigue >= e.tuning.Race.FatigueLimit {
		return derr.Invalidf("creatureId", "fatigue %.1f is at or above the race limit", fatigue)
	}
	return nil
}
