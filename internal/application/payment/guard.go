package payment

import (
	"context"
	"fmt"

	"github.com/creaturederby/derby/internal/domain/ledger"
)

// Guard answers whether a transaction id already funded an action. It is a
// fast-path check; the ledger's uniqueness constraint is the real guarantee.
type Guard struct {
	ledger ledger.Repository
}

func NewGuard(repo ledger.Repository) *Guard {
	return &Guard{ledger: repo}
}

// IsConsumed reports whether a non-shadow ledger entry references txID.
func (g *Guard) IsConsumed(ctx context.Context, txID string) (bool, error) {
	consumed, err := g.ledger.IsConsumed(ctx, txID)
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	return consumed, nil
}
