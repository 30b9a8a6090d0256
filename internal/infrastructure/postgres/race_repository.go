package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creaturederby/derby/internal/domain/race"
	"github.com/creaturederby/derby/internal/domain/state"
)

const raceColumns = `race_id, season_id, name, race_type, entry_fee, fee_token_id, max_entries, opens_at, entry_deadline, status, seed_hash, seed_height, cancel_reason, resolved_at, created_at, updated_at`

const entryColumns = `id, race_id, creature_id, owner, tx_id, snapshot, position, score, payout, created_at`

// RaceRepository implements race.Repository.
type RaceRepository struct {
	db       dbtx
	register casRegister[race.Status]
}

func NewRaceRepository(db dbtx) *RaceRepository {
	return &RaceRepository{
		db:       db,
		register: newRegister[race.Status](db, "races", "race_id"),
	}
}

func (r *RaceRepository) Create(ctx context.Context, rc *race.Race) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO races (`+raceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, rc.RaceID, rc.SeasonID, rc.Name, rc.RaceType, rc.EntryFee, rc.FeeTokenID, rc.MaxEntries, rc.OpensAt, rc.EntryDeadline, rc.Status, rc.SeedHash, rc.SeedHeight, rc.CancelReason, rc.ResolvedAt, rc.CreatedAt, rc.UpdatedAt)
	return err
}

func (r *RaceRepository) GetByID(ctx context.Context, raceID uuid.UUID) (*race.Race, error) {
	row := r.db.QueryRow(ctx, `SELECT `+raceColumns+` FROM races WHERE race_id=$1`, raceID)
	return scanRace(row)
}

func (r *RaceRepository) GetForUpdate(ctx context.Context, raceID uuid.UUID) (*race.Race, error) {
	row := r.db.QueryRow(ctx, `SELECT `+raceColumns+` FROM races WHERE race_id=$1 FOR UPDATE`, raceID)
	return scanRace(row)
}

func (r *RaceRepository) List(ctx context.Context, filter race.Filter, limit, offset int) ([]*race.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races`
	args := []interface{}{}
	idx := 1
	if filter.SeasonID != nil {
		query += " WHERE season_id=$" + itoa(idx)
		args = append(args, *filter.SeasonID)
		idx++
	}
	if filter.Status != nil {
		query += addWhere(query) + " status=$" + itoa(idx)
		args = append(args, *filter.Status)
		idx++
	}
	query += " ORDER BY entry_deadline DESC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)
	return r.queryRaces(ctx, query, args...)
}

func (r *RaceRepository) ListOpenable(ctx context.Context, now time.Time, limit int) ([]*race.Race, error) {
	return r.queryRaces(ctx, `
		SELECT `+raceColumns+` FROM races
		WHERE status='upcoming' AND opens_at <= $1
		ORDER BY opens_at ASC LIMIT $2
	`, now, limit)
}

func (r *RaceRepository) ListResolvable(ctx context.Context, now time.Time, limit int) ([]*race.Race, error) {
	return r.queryRaces(ctx, `
		SELECT `+raceColumns+` FROM races
		WHERE status='open' AND entry_deadline <= $1
		ORDER BY entry_deadline ASC LIMIT $2
	`, now, limit)
}

func (r *RaceRepository) Transition(ctx context.Context, raceID uuid.UUID, from, to race.Status) (bool, error) {
	if !race.CanTransition(from, to) {
		return false, race.ErrInvalidTransition
	}
	return r.register.Transition(ctx, raceID.String(), from, to)
}

func (r *RaceRepository) MarkResolved(ctx context.Context, raceID uuid.UUID, seedHash string, seedHeight int64, at time.Time) (bool, error) {
	return r.register.TransitionWith(ctx, raceID.String(), race.StatusLocked, race.StatusResolved,
		state.Set("seed_hash", seedHash),
		state.Set("seed_height", seedHeight),
		state.Set("resolved_at", at),
	)
}

func (r *RaceRepository) MarkCancelled(ctx context.Context, raceID uuid.UUID, from race.Status, reason string) (bool, error) {
	if !race.CanTransition(from, race.StatusCancelled) {
		return false, race.ErrInvalidTransition
	}
	return r.register.TransitionWith(ctx, raceID.String(), from, race.StatusCancelled, state.Set("cancel_reason", reason))
}

func (r *RaceRepository) AddEntry(ctx context.Context, entry *race.Entry) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO race_entries (race_id, creature_id, owner, tx_id, snapshot, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, entry.RaceID, entry.CreatureID, entry.Owner, entry.TxID, entry.Snapshot, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return race.ErrDuplicateEntry
		}
		return err
	}
	return nil
}

func (r *RaceRepository) ListEntries(ctx context.Context, raceID uuid.UUID) ([]*race.Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM race_entries WHERE race_id=$1 ORDER BY creature_id ASC`, raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*race.Entry
	for rows.Next() {
		var e race.Entry
		if err := rows.Scan(&e.ID, &e.RaceID, &e.CreatureID, &e.Owner, &e.TxID, &e.Snapshot, &e.Position, &e.Score, &e.Payout, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *RaceRepository) SetEntryResult(ctx context.Context, raceID uuid.UUID, creatureID string, position int, score float64, payout int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE race_entries SET position=$1, score=$2, payout=$3
		WHERE race_id=$4 AND creature_id=$5
	`, position, score, payout, raceID, creatureID)
	return err
}

func (r *RaceRepository) queryRaces(ctx context.Context, query string, args ...interface{}) ([]*race.Race, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var races []*race.Race
	for rows.Next() {
		rc, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		races = append(races, rc)
	}
	return races, rows.Err()
}

func scanRace(row pgx.Row) (*race.Race, error) {
	var rc race.Race
	if err := row.Scan(&rc.RaceID, &rc.SeasonID, &rc.Name, &rc.RaceType, &rc.EntryFee, &rc.FeeTokenID, &rc.MaxEntries, &rc.OpensAt, &rc.EntryDeadline, &rc.Status, &rc.SeedHash, &rc.SeedHeight, &rc.CancelReason, &rc.ResolvedAt, &rc.CreatedAt, &rc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rc, nil
}
