package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creaturederby/derby/internal/domain/season"
)

// SeasonRepository implements season.Repository.
type SeasonRepository struct {
	db dbtx
}

func NewSeasonRepository(db dbtx) *SeasonRepository {
	return &SeasonRepository{db: db}
}

func (r *SeasonRepository) Create(ctx context.Context, s *season.Season) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO seasons (season_id, name, starts_at, ends_at, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, s.SeasonID, s.Name, s.StartsAt, s.EndsAt, s.CreatedAt)
	return err
}

func (r *SeasonRepository) GetByID(ctx context.Context, seasonID uuid.UUID) (*season.Season, error) {
	row := r.db.QueryRow(ctx, `SELECT season_id, name, starts_at, ends_at, created_at FROM seasons WHERE season_id=$1`, seasonID)
	return scanSeason(row)
}

func (r *SeasonRepository) GetActive(ctx context.Context, now time.Time) (*season.Season, error) {
	row := r.db.QueryRow(ctx, `
		SELECT season_id, name, starts_at, ends_at, created_at FROM seasons
		WHERE starts_at <= $1 AND ends_at > $1
		ORDER BY starts_at DESC LIMIT 1
	`, now)
	return scanSeason(row)
}

func (r *SeasonRepository) UpsertStanding(ctx context.Context, d season.Delta) error {
	wins, places, shows := d.Counters()
	_, err := r.db.Exec(ctx, `
		INSERT INTO season_standings (season_id, creature_id, owner, races, wins, places, shows, earnings, updated_at)
		VALUES ($1,$2,$3,1,$4,$5,$6,$7,now())
		ON CONFLICT (season_id, creature_id) DO UPDATE SET
			owner=EXCLUDED.owner,
			races=season_standings.races + 1,
			wins=season_standings.wins + EXCLUDED.wins,
			places=season_standings.places + EXCLUDED.places,
			shows=season_standings.shows + EXCLUDED.shows,
			earnings=season_standings.earnings + EXCLUDED.earnings,
			updated_at=now()
	`, d.SeasonID, d.CreatureID, d.Owner, wins, places, shows, d.Payout)
	return err
}

func (r *SeasonRepository) Leaderboard(ctx context.Context, seasonID uuid.UUID, limit int) ([]*season.Standing, error) {
	rows, err := r.db.Query(ctx, `
		SELECT season_id, creature_id, owner, races, wins, places, shows, earnings, updated_at
		FROM season_standings WHERE season_id=$1
		ORDER BY wins DESC, places DESC, shows DESC, earnings DESC, creature_id ASC
		LIMIT $2
	`, seasonID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var standings []*season.Standing
	for rows.Next() {
		var s season.Standing
		if err := rows.Scan(&s.SeasonID, &s.CreatureID, &s.Owner, &s.Races, &s.Wins, &s.Places, &s.Shows, &s.Earnings, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Prestige = season.Prestige(s.Wins, s.Places, s.Shows)
		standings = append(standings, &s)
	}
	return standings, rows.Err()
}

func scanSeason(row pgx.Row) (*season.Season, error) {
	var s season.Season
	if err := row.Scan(&s.SeasonID, &s.Name, &s.StartsAt, &s.EndsAt, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
