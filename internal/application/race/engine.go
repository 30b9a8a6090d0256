package race

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/creaturederby/derby/internal/domain/creature"
	domainRace "github.com/creaturederby/derby/internal/domain/race"
	"github.com/creaturederby/derby/internal/tuning"
)

// Ranked is an entry with its computed score and finish position.
type Ranked struct {
	Entry    *domainRace.Entry
	Score    float64
	Position int
	Payout   int64
}

// Engine scores snapshots against a seed. It reads nothing but its inputs, so
// a stored resolution can be recomputed exactly.
type Engine struct {
	tuning *tuning.Tuning
}

func NewEngine(t *tuning.Tuning) *Engine {
	return &Engine{tuning: t}
}

// Score computes one entry's performance from its snapshot.
func (e *Engine) Score(profile map[string]float64, seed string, entry *domainRace.Entry) (float64, error) {
	snap := entry.Snapshot
	var base float64
	for _, stat := range creature.StatNames {
		w, ok := profile[stat]
		if !ok {
			continue
		}
		v, err := snap.Stats.Get(stat)
		if err != nil {
			return 0, err
		}
		base += w * v
	}
	base -= e.tuning.Race.FatiguePenalty * snap.Fatigue
	base += e.tuning.Race.SharpnessBonus * snap.Sharpness
	score := base * (1 + e.tuning.Race.Jitter*Jitter(seed, entry.CreatureID))
	return math.Round(score*1e6) / 1e6, nil
}

// Jitter maps (seed, creatureID) to [-1, 1). It does not depend on entry order.
func Jitter(seed, creatureID string) float64 {
	sum := sha256.Sum256([]byte(seed + ":" + creatureID))
	u := float64(binary.BigEndian.Uint64(sum[:8])>>11) / float64(uint64(1)<<53)
	return 2*u - 1
}

// Rank scores entries and orders them by score descending. Equal scores are
// ordered by creature id ascending. Payouts follow the configured share table.
func (e *Engine) Rank(raceType, seed string, entryFee int64, entries []*domainRace.Entry) ([]Ranked, error) {
	profile, ok := e.tuning.Profile(raceType)
	if !ok {
		return nil, fmt.Errorf("race type %q has no scoring profile", raceType)
	}
	ranked := make([]Ranked, 0, len(entries))
	for _, entry := range entries {
		score, err := e.Score(profile, seed, entry)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", entry.CreatureID, err)
		}
		ranked = append(ranked, Ranked{Entry: entry, Score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Entry.CreatureID < ranked[j].Entry.CreatureID
	})
	payouts := Payouts(entryFee, len(ranked), e.tuning.Race.Payouts)
	for i := range ranked {
		ranked[i].Position = i + 1
		ranked[i].Payout = payouts[i]
	}
	return ranked, nil
}

// Payouts splits entryFee*entrants by shares, rounding each prize down.
// Positions beyond the table get zero; rounding remainders stay in the pool.
func Payouts(entryFee int64, entrants int, shares []float64) []int64 {
	out := make([]int64, entrants)
	pool := decimal.NewFromInt(entryFee).Mul(decimal.NewFromInt(int64(entrants)))
	for i := 0; i < entrants && i < len(shares); i++ {
		out[i] = pool.Mul(decimal.NewFromFloat(shares[i])).Floor().IntPart()
	}
	return out
}
