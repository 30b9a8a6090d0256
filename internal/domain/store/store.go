// Package store groups the repositories that change together and the unit of
// work that commits them atomically.
package store

import (
	"context"

	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/ledger"
	"github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/race"
	"github.com/creaturederby/derby/internal/domain/season"
)

// Store exposes repositories bound to one connection or transaction.
type Store interface {
	Payments() payment.Repository
	Ledger() ledger.Repository
	Creatures() creature.Repository
	Races() race.Repository
	Seasons() season.Repository
}

// TxFunc runs against a transaction-bound Store. Returning an error rolls back.
type TxFunc func(ctx context.Context, tx Store) error

// TxRunner is a Store that can also open transactions.
type TxRunner interface {
	Store
	WithinTx(ctx context.Context, fn TxFunc) error
}
