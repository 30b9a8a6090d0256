// Package tuning holds the game balance document. It is loaded once at
// startup and shared read-only by every service.
package tuning

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/Knetic/govaluate"
	"gopkg.in/yaml.v3"

	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/payment"
)

var ErrUnknownCurrency = errors.New("currency not accepted for this fee")

type Tuning struct {
	Stats     Stats          `yaml:"stats"`
	Fees      Fees           `yaml:"fees"`
	Train     Train          `yaml:"train"`
	Treatment Treatment      `yaml:"treatment"`
	Condition creature.Model `yaml:"condition"`
	Race      Race           `yaml:"race"`
	Rewards   Rewards        `yaml:"rewards"`

	gain *govaluate.EvaluableExpression
}

type Stats struct {
	Cap            float64            `yaml:"cap"`
	Start          map[string]float64 `yaml:"start"`
	StartSharpness float64            `yaml:"start_sharpness"`
}

// Fee is a price in native units with an optional token alternative.
type Fee struct {
	Native  int64  `yaml:"native"`
	TokenID string `yaml:"token_id"`
	Token   int64  `yaml:"token"`
}

type Fees struct {
	Train     Fee `yaml:"train"`
	Treatment Fee `yaml:"treatment"`
}

type Discipline struct {
	Primary        string  `yaml:"primary"`
	Secondary      string  `yaml:"secondary"`
	Base           float64 `yaml:"base"`
	SecondaryRatio float64 `yaml:"secondary_ratio"`
	Fatigue        float64 `yaml:"fatigue"`
	Sharpness      float64 `yaml:"sharpness"`
}

type Train struct {
	Cooldown       time.Duration         `yaml:"cooldown"`
	FatigueLimit   float64               `yaml:"fatigue_limit"`
	GainExpression string                `yaml:"gain_expression"`
	Disciplines    map[string]Discipline `yaml:"disciplines"`
}

type TreatmentKind struct {
	Fatigue   float64 `yaml:"fatigue"`
	Sharpness float64 `yaml:"sharpness"`
}

type Treatment struct {
	Cooldown time.Duration            `yaml:"cooldown"`
	Kinds    map[string]TreatmentKind `yaml:"kinds"`
}

type Race struct {
	FatigueLimit   float64                       `yaml:"fatigue_limit"`
	FatiguePenalty float64                       `yaml:"fatigue_penalty"`
	SharpnessBonus float64                       `yaml:"sharpness_bonus"`
	Jitter         float64                       `yaml:"jitter"`
	Payouts        []float64                     `yaml:"payouts"`
	Profiles       map[string]map[string]float64 `yaml:"profiles"`
}

type Rewards struct {
	BonusActions         int       `yaml:"bonus_actions"`
	Boosts               []float64 `yaml:"boosts"`
	BoostExpiryBlocks    int64     `yaml:"boost_expiry_blocks"`
	Recovery             float64   `yaml:"recovery"`
	RecoveryExpiryBlocks int64     `yaml:"recovery_expiry_blocks"`
}

// DefaultPayouts is the prize split when the document omits one.
var DefaultPayouts = []float64{0.50, 0.30, 0.20}

// Load reads and validates the tuning document at path.
func Load(path string) (*Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a tuning document, fills defaults and compiles expressions.
func Parse(raw []byte) (*Tuning, error) {
	var t Tuning
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.validate(); err != nil {
		return nil, err
	}
	expr, err := govaluate.NewEvaluableExpression(t.Train.GainExpression)
	if err != nil {
		return nil, fmt.Errorf("train.gain_expression: %w", err)
	}
	t.gain = expr
	return &t, nil
}

func (t *Tuning) applyDefaults() {
	if t.Stats.Cap == 0 {
		t.Stats.Cap = 100
	}
	if t.Condition == (creature.Model{}) {
		t.Condition = creature.DefaultModel
	}
	if len(t.Race.Payouts) == 0 {
		t.Race.Payouts = append([]float64(nil), DefaultPayouts...)
	}
	if t.Train.GainExpression == "" {
		t.Train.GainExpression = "base * (1 - current / cap)"
	}
	if t.Train.FatigueLimit == 0 {
		t.Train.FatigueLimit = 100
	}
	if t.Race.FatigueLimit == 0 {
		t.Race.FatigueLimit = 100
	}
}

func (t *Tuning) validate() error {
	var sum float64
	for i, p := range t.Race.Payouts {
		if p < 0 {
			return fmt.Errorf("race.payouts[%d]: negative share", i)
		}
		sum += p
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("race.payouts: shares sum to %.4f", sum)
	}
	for name, d := range t.Train.Disciplines {
		if !creature.ValidStat(d.Primary) {
			return fmt.Errorf("train.disciplines.%s.primary: %w", name, creature.ErrUnknownStat)
		}
		if d.Secondary != "" && !creature.ValidStat(d.Secondary) {
			return fmt.Errorf("train.disciplines.%s.secondary: %w", name, creature.ErrUnknownStat)
		}
	}
	for name, profile := range t.Race.Profiles {
		for stat := range profile {
			if !creature.ValidStat(stat) {
				return fmt.Errorf("race.profiles.%s.%s: %w", name, stat, creature.ErrUnknownStat)
			}
		}
	}
	for stat := range t.Stats.Start {
		if !creature.ValidStat(stat) {
			return fmt.Errorf("stats.start.%s: %w", stat, creature.ErrUnknownStat)
		}
	}
	return nil
}

// Gain evaluates the training gain expression. Variables: base, current, cap,
// sharpness, fatigue.
func (t *Tuning) Gain(base, current, sharpness, fatigue float64) (float64, error) {
	result, err := t.gain.Evaluate(map[string]interface{}{
		"base":      base,
		"current":   current,
		"cap":       t.Stats.Cap,
		"sharpness": sharpness,
		"fatigue":   fatigue,
	})
	if err != nil {
		return 0, err
	}
	v, ok := result.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("gain expression did not evaluate to a number")
	}
	if v < 0 {
		return 0, nil
	}
	return v, nil
}

// StartStats returns the stats a newly registered creature begins with.
func (t *Tuning) StartStats() creature.Stats {
	var s creature.Stats
	for name, v := range t.Stats.Start {
		_, _ = s.Add(name, v, t.Stats.Cap)
	}
	return s
}

// Amount prices the fee in the requested currency. An empty currency or
// "native" selects the native amount.
func (f Fee) Amount(currency string) (payment.Amount, error) {
	switch currency {
	case "", "native":
		return payment.Amount{Value: f.Native}, nil
	}
	if f.TokenID == "" || currency != f.TokenID || f.Token <= 0 {
		return payment.Amount{}, ErrUnknownCurrency
	}
	return payment.Amount{Value: f.Token, TokenID: f.TokenID}, nil
}

// Profile returns the stat weighting for a race type.
func (t *Tuning) Profile(raceType string) (map[string]float64, bool) {
	p, ok := t.Race.Profiles[raceType]
	return p, ok
}
