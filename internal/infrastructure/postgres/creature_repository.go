package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creaturederby/derby/internal/domain/creature"
)

const creatureColumns = `creature_id, owner, name, stats, fatigue, sharpness, last_action_at, last_trained_at, treatment_until, bonus_actions, created_at, updated_at`

// CreatureRepository implements creature.Repository.
type CreatureRepository struct {
	db dbtx
}

func NewCreatureRepository(db dbtx) *CreatureRepository {
	return &CreatureRepository{db: db}
}

func (r *CreatureRepository) Create(ctx context.Context, c *creature.Creature) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO creatures (`+creatureColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, c.CreatureID, c.Owner, c.Name, c.Stats, c.Fatigue, c.Sharpness, c.LastActionAt, c.LastTrainedAt, c.TreatmentUntil, c.BonusActions, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *CreatureRepository) GetByID(ctx context.Context, creatureID string) (*creature.Creature, error) {
	row := r.db.QueryRow(ctx, `SELECT `+creatureColumns+` FROM creatures WHERE creature_id=$1`, creatureID)
	return scanCreature(row)
}

func (r *CreatureRepository) GetForUpdate(ctx context.Context, creatureID string) (*creature.Creature, error) {
	row := r.db.QueryRow(ctx, `SELECT `+creatureColumns+` FROM creatures WHERE creature_id=$1 FOR UPDATE`, creatureID)
	return scanCreature(row)
}

func (r *CreatureRepository) Update(ctx context.Context, c *creature.Creature) error {
	_, err := r.db.Exec(ctx, `
		UPDATE creatures
		SET owner=$1, name=$2, stats=$3, fatigue=$4, sharpness=$5, last_action_at=$6, last_trained_at=$7, treatment_until=$8, bonus_actions=$9, updated_at=$10
		WHERE creature_id=$11
	`, c.Owner, c.Name, c.Stats, c.Fatigue, c.Sharpness, c.LastActionAt, c.LastTrainedAt, c.TreatmentUntil, c.BonusActions, c.UpdatedAt, c.CreatureID)
	return err
}

func (r *CreatureRepository) ListByOwner(ctx context.Context, owner string) ([]*creature.Creature, error) {
	rows, err := r.db.Query(ctx, `SELECT `+creatureColumns+` FROM creatures WHERE owner=$1 ORDER BY creature_id ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var creatures []*creature.Creature
	for rows.Next() {
		c, err := scanCreature(rows)
		if err != nil {
			return nil, err
		}
		creatures = append(creatures, c)
	}
	return creatures, rows.Err()
}

func (r *CreatureRepository) AddReward(ctx context.Context, reward *creature.Reward) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO creature_rewards
		(reward_id, creature_id, kind, magnitude, race_id, awarded_height, expires_height, consumed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, reward.RewardID, reward.CreatureID, reward.Kind, reward.Magnitude, reward.RaceID, reward.AwardedHeight, reward.ExpiresHeight, reward.ConsumedAt, reward.CreatedAt)
	return err
}

func (r *CreatureRepository) ListRewards(ctx context.Context, creatureID string, includeConsumed bool) ([]*creature.Reward, error) {
	query := `
		SELECT reward_id, creature_id, kind, magnitude, race_id, awarded_height, expires_height, consumed_at, created_at
		FROM creature_rewards WHERE creature_id=$1`
	if !includeConsumed {
		query += " AND consumed_at IS NULL"
	}
	query += " ORDER BY created_at ASC"
	rows, err := r.db.Query(ctx, query, creatureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rewards []*creature.Reward
	for rows.Next() {
		var rw creature.Reward
		if err := rows.Scan(&rw.RewardID, &rw.CreatureID, &rw.Kind, &rw.Magnitude, &rw.RaceID, &rw.AwardedHeight, &rw.ExpiresHeight, &rw.ConsumedAt, &rw.CreatedAt); err != nil {
			return nil, err
		}
		rewards = append(rewards, &rw)
	}
	return rewards, rows.Err()
}

func (r *CreatureRepository) ConsumeReward(ctx context.Context, rewardID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE creature_rewards SET consumed_at=$1 WHERE reward_id=$2 AND consumed_at IS NULL`, at, rewardID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanCreature(row pgx.Row) (*creature.Creature, error) {
	var c creature.Creature
	if err := row.Scan(&c.CreatureID, &c.Owner, &c.Name, &c.Stats, &c.Fatigue, &c.Sharpness, &c.LastActionAt, &c.LastTrainedAt, &c.TreatmentUntil, &c.BonusActions, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
