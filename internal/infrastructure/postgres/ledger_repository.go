package postgres

import (
	"context"
	"fmt"

	"github.com/creaturederby/derby/internal/domain/ledger"
)

// LedgerRepository implements ledger.Repository. The partial unique index on
// ledger_entries(tx_id) WHERE NOT shadow is the double-spend guard.
type LedgerRepository struct {
	db dbtx
}

func NewLedgerRepository(db dbtx) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO ledger_entries
		(tx_id, wallet, kind, amount, token_id, creature_id, race_id, season_id, shadow, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, entry.TxID, entry.Wallet, entry.Kind, entry.Amount, entry.TokenID, entry.CreatureID, entry.RaceID, entry.SeasonID, entry.Shadow, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ledger.ErrTxConsumed, entry.TxID)
		}
		return err
	}
	return nil
}

func (r *LedgerRepository) IsConsumed(ctx context.Context, txID string) (bool, error) {
	var consumed bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE tx_id=$1 AND NOT shadow)`, txID).Scan(&consumed)
	return consumed, err
}

func (r *LedgerRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]*ledger.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tx_id, wallet, kind, amount, token_id, creature_id, race_id, season_id, shadow, created_at
		FROM ledger_entries WHERE wallet=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.TxID, &e.Wallet, &e.Kind, &e.Amount, &e.TokenID, &e.CreatureID, &e.RaceID, &e.SeasonID, &e.Shadow, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
