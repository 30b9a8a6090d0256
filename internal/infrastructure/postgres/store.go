package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/ledger"
	"github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/race"
	"github.com/creaturederby/derby/internal/domain/season"
	"github.com/creaturederby/derby/internal/domain/store"
)

// Store binds every repository to one connection or transaction.
type Store struct {
	pool      *pgxpool.Pool
	payments  *PaymentRepository
	ledger    *LedgerRepository
	creatures *CreatureRepository
	races     *RaceRepository
	seasons   *SeasonRepository
}

var _ store.TxRunner = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	s := bind(pool)
	s.pool = pool
	return s
}

func bind(db dbtx) *Store {
	return &Store{
		payments:  NewPaymentRepository(db),
		ledger:    NewLedgerRepository(db),
		creatures: NewCreatureRepository(db),
		races:     NewRaceRepository(db),
		seasons:   NewSeasonRepository(db),
	}
}

func (s *Store) Payments() payment.Repository   { return s.payments }
func (s *Store) Ledger() ledger.Repository      { return s.ledger }
func (s *Store) Creatures() creature.Repository { return s.creatures }
func (s *Store) Races() race.Repository         { return s.races }
func (s *Store) Seasons() season.Repository     { return s.seasons }

// WithinTx runs fn in a read-committed transaction. fn's error rolls back.
func (s *Store) WithinTx(ctx context.Context, fn store.TxFunc) error {
	if s.pool == nil {
		return fmt.Errorf("nested transactions are not supported")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
