package season

import (
	"time"

	"github.com/google/uuid"
)

// Season groups races and scopes the leaderboard.
type Season struct {
	SeasonID  uuid.UUID `json:"seasonId"`
	Name      string    `json:"name"`
	StartsAt  time.Time `json:"startsAt"`
	EndsAt    time.Time `json:"endsAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewSeason creates a season spanning [startsAt, endsAt).
func NewSeason(name string, startsAt, endsAt time.Time) *Season {
	return &Season{
		SeasonID:  uuid.New(),
		Name:      name,
		StartsAt:  startsAt.UTC(),
		EndsAt:    endsAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
}

// Active reports whether now falls inside the season.
func (s *Season) Active(now time.Time) bool {
	return !now.Before(s.StartsAt) && now.Before(s.EndsAt)
}

// Standing is a creature's cumulative season record.
type Standing struct {
	SeasonID   uuid.UUID `json:"seasonId"`
	CreatureID string    `json:"creatureId"`
	Owner      string    `json:"owner"`
	Races      int       `json:"races"`
	Wins       int       `json:"wins"`
	Places     int       `json:"places"`
	Shows      int       `json:"shows"`
	Earnings   int64     `json:"earnings"`
	Prestige   int       `json:"prestige"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Prestige weights finishes: three for a win, two for a place, one for a show.
func Prestige(wins, places, shows int) int {
	return 3*wins + 2*places + shows
}

// Delta is one race's contribution to a standing.
type Delta struct {
	SeasonID   uuid.UUID
	CreatureID string
	Owner      string
	Position   int
	Payout     int64
}

// Counters returns the win, place and show increments for the finish position.
func (d Delta) Counters() (wins, places, shows int) {
	switch d.Position {
	case 1:
		return 1, 0, 0
	case 2:
		return 0, 1, 0
	case 3:
		return 0, 0, 1
	}
	return 0, 0, 0
}
