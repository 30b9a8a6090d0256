package race

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/creaturederby/derby/internal/domain/creature"
)

// Status represents the race lifecycle.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOpen      Status = "open"
	StatusLocked    Status = "locked"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
)

// MinEntrants is the smallest field that can be ranked.
const MinEntrants = 2

var (
	ErrDuplicateEntry    = errors.New("creature already entered in race")
	ErrInvalidTransition = errors.New("invalid race status transition")
)

// CanTransition validates a status move. Statuses only move forward.
func CanTransition(from, to Status) bool {
	transitions := map[Status][]Status{
		StatusUpcoming:  {StatusOpen},
		StatusOpen:      {StatusLocked, StatusCancelled},
		StatusLocked:    {StatusResolved, StatusCancelled},
		StatusResolved:  {},
		StatusCancelled: {},
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Race is a scheduled competition within a season.
type Race struct {
	RaceID        uuid.UUID  `json:"raceId"`
	SeasonID      uuid.UUID  `json:"seasonId"`
	Name          string     `json:"name"`
	RaceType      string     `json:"raceType"`
	EntryFee      int64      `json:"entryFee"`
	FeeTokenID    string     `json:"feeTokenId,omitempty"`
	MaxEntries    int        `json:"maxEntries"`
	OpensAt       time.Time  `json:"opensAt"`
	EntryDeadline time.Time  `json:"entryDeadline"`
	Status        Status     `json:"status"`
	SeedHash      *string    `json:"seedHash,omitempty"`
	SeedHeight    *int64     `json:"seedHeight,omitempty"`
	CancelReason  *string    `json:"cancelReason,omitempty"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// NewRace schedules an upcoming race.
func NewRace(seasonID uuid.UUID, name, raceType string, entryFee int64, maxEntries int, opensAt, deadline time.Time) *Race {
	now := time.Now().UTC()
	return &Race{
		RaceID:        uuid.New(),
		SeasonID:      seasonID,
		Name:          name,
		RaceType:      raceType,
		EntryFee:      entryFee,
		MaxEntries:    maxEntries,
		OpensAt:       opensAt.UTC(),
		EntryDeadline: deadline.UTC(),
		Status:        StatusUpcoming,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AcceptsEntries reports whether the race is open and before its deadline.
func (r *Race) AcceptsEntries(now time.Time) bool {
	return r.Status == StatusOpen && now.Before(r.EntryDeadline)
}

// DeadlinePassed reports whether entries have closed.
func (r *Race) DeadlinePassed(now time.Time) bool {
	return !now.Before(r.EntryDeadline)
}

// Snapshot freezes the competitor state used for scoring.
type Snapshot struct {
	Stats     creature.Stats `json:"stats"`
	Fatigue   float64        `json:"fatigue"`
	Sharpness float64        `json:"sharpness"`
	TakenAt   time.Time      `json:"takenAt"`
}

// Entry is a creature's place in a race. Position, score and payout are set on resolution.
type Entry struct {
	ID         int64     `json:"id"`
	RaceID     uuid.UUID `json:"raceId"`
	CreatureID string    `json:"creatureId"`
	Owner      string    `json:"owner"`
	TxID       string    `json:"txId"`
	Snapshot   Snapshot  `json:"snapshot"`
	Position   *int      `json:"position,omitempty"`
	Score      *float64  `json:"score,omitempty"`
	Payout     *int64    `json:"payout,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Result is a ranked outcome for one entry.
type Result struct {
	Position   int     `json:"position"`
	CreatureID string  `json:"creatureId"`
	Owner      string  `json:"owner"`
	Score      float64 `json:"performanceScore"`
	Payout     int64   `json:"payout"`
}

// Resolution is the outcome reported to resolve callers.
type Resolution struct {
	RaceID           uuid.UUID `json:"raceId"`
	Status           Status    `json:"status"`
	AlreadyResolving bool      `json:"alreadyResolving,omitempty"`
	Cancelled        string    `json:"cancelled,omitempty"`
	SeedHash         string    `json:"seedHash,omitempty"`
	SeedHeight       int64     `json:"seedHeight,omitempty"`
	Results          []Result  `json:"results,omitempty"`
}

// ResultsFromEntries rebuilds ranked results from resolved entries.
func ResultsFromEntries(entries []*Entry) []Result {
	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		if e.Position == nil {
			continue
		}
		r := Result{Position: *e.Position, CreatureID: e.CreatureID, Owner: e.Owner}
		if e.Score != nil {
			r.Score = *e.Score
		}
		if e.Payout != nil {
			r.Payout = *e.Payout
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Position < results[j].Position })
	return results
}

// Filter narrows race listings.
type Filter struct {
	SeasonID *uuid.UUID
	Status   *Status
}
