package creature

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownStat = errors.New("unknown stat")

// Stat names.
const (
	StatSpeed        = "speed"
	StatStamina      = "stamina"
	StatAcceleration = "acceleration"
	StatAgility      = "agility"
	StatHeart        = "heart"
	StatFocus        = "focus"
)

// StatNames lists stats in a fixed order.
var StatNames = []string{StatSpeed, StatStamina, StatAcceleration, StatAgility, StatHeart, StatFocus}

// Stats are a creature's trained attributes.
type Stats struct {
	Speed        float64 `json:"speed"`
	Stamina      float64 `json:"stamina"`
	Acceleration float64 `json:"acceleration"`
	Agility      float64 `json:"agility"`
	Heart        float64 `json:"heart"`
	Focus        float64 `json:"focus"`
}

func (s *Stats) field(name string) (*float64, error) {
	switch name {
	case StatSpeed:
		return &s.Speed, nil
	case StatStamina:
		return &s.Stamina, nil
	case StatAcceleration:
		return &s.Acceleration, nil
	case StatAgility:
		return &s.Agility, nil
	case StatHeart:
		return &s.Heart, nil
	case StatFocus:
		return &s.Focus, nil
	}
	return nil, ErrUnknownStat
}

// Get returns the named stat.
func (s Stats) Get(name string) (float64, error) {
	f, err := s.field(name)
	if err != nil {
		return 0, err
	}
	return *f, nil
}

// Add increases the named stat by delta, capped at limit.
func (s *Stats) Add(name string, delta, limit float64) (float64, error) {
	f, err := s.field(name)
	if err != nil {
		return 0, err
	}
	before := *f
	*f = clamp(*f+delta, 0, limit)
	return *f - before, nil
}

// ValidStat reports whether name is a known stat.
func ValidStat(name string) bool {
	var s Stats
	_, err := s.field(name)
	return err == nil
}

// Creature is a registered token and its game state.
type Creature struct {
	CreatureID     string     `json:"creatureId"`
	Owner          string     `json:"owner"`
	Name           string     `json:"name"`
	Stats          Stats      `json:"stats"`
	Fatigue        float64    `json:"fatigue"`
	Sharpness      float64    `json:"sharpness"`
	LastActionAt   *time.Time `json:"lastActionAt,omitempty"`
	LastTrainedAt  *time.Time `json:"lastTrainedAt,omitempty"`
	TreatmentUntil *time.Time `json:"treatmentUntil,omitempty"`
	BonusActions   int        `json:"bonusActions"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewCreature registers a creature with starting stats and a neutral condition.
func NewCreature(creatureID, owner, name string, stats Stats, sharpness float64) *Creature {
	now := time.Now().UTC()
	return &Creature{
		CreatureID: creatureID,
		Owner:      owner,
		Name:       name,
		Stats:      stats,
		Sharpness:  sharpness,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// OwnedBy reports whether wallet owns the creature.
func (c *Creature) OwnedBy(wallet string) bool {
	return c.Owner == wallet
}

// Condition returns the stored gauges decayed to now.
func (c *Creature) Condition(m Model, now time.Time) (float64, float64) {
	if c.LastActionAt == nil {
		return clamp(c.Fatigue, 0, 100), clamp(c.Sharpness, 0, 100)
	}
	return m.Decay(c.Fatigue, c.Sharpness, *c.LastActionAt, now)
}

// Settle folds decay into the stored gauges and stamps the action time.
func (c *Creature) Settle(m Model, now time.Time) {
	c.Fatigue, c.Sharpness = c.Condition(m, now)
	c.LastActionAt = &now
	c.UpdatedAt = now
}

// RewardKind labels a single-use reward.
type RewardKind string

const (
	// RewardBoost multiplies the next training gain.
	RewardBoost RewardKind = "boost"
	// RewardRecovery removes fatigue on the next training.
	RewardRecovery RewardKind = "recovery"
)

// Reward is a single-use value awarded by a race. It is consumed at most once.
type Reward struct {
	RewardID      uuid.UUID  `json:"rewardId"`
	CreatureID    string     `json:"creatureId"`
	Kind          RewardKind `json:"kind"`
	Magnitude     float64    `json:"magnitude"`
	RaceID        *uuid.UUID `json:"raceId,omitempty"`
	AwardedHeight int64      `json:"awardedHeight"`
	ExpiresHeight int64      `json:"expiresHeight"`
	ConsumedAt    *time.Time `json:"consumedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// NewReward creates an unconsumed reward valid for ttlBlocks after height.
func NewReward(creatureID string, kind RewardKind, magnitude float64, raceID *uuid.UUID, height, ttlBlocks int64) *Reward {
	return &Reward{
		RewardID:      uuid.New(),
		CreatureID:    creatureID,
		Kind:          kind,
		Magnitude:     magnitude,
		RaceID:        raceID,
		AwardedHeight: height,
		ExpiresHeight: height + ttlBlocks,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsConsumed reports whether the reward was spent.
func (r *Reward) IsConsumed() bool {
	return r.ConsumedAt != nil
}
