package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/chain"
	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/derr"
)

// HeightSource reads the chain tip for reward expiry. It fails open: an
// unreachable indexer yields an unknown height, under which nothing expires.
type HeightSource struct {
	chain  chain.Client
	logger zerolog.Logger
}

func NewHeightSource(client chain.Client, logger zerolog.Logger) *HeightSource {
	return &HeightSource{chain: client, logger: logger.With().Str("service", "heights").Logger()}
}

func (h *HeightSource) Check(ctx context.Context) chain.HeightCheck {
	if h == nil || h.chain == nil {
		return chain.HeightCheck{}
	}
	block, err := h.chain.GetLatestBlock(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("block height unavailable, treating rewards as unexpired")
		return chain.HeightCheck{}
	}
	return chain.HeightCheck{Height: block.Height, Known: true}
}

func loadOwned(ctx context.Context, repo creature.Repository, creatureID, wallet string, forUpdate bool) (*creature.Creature, error) {
	var (
		c   *creature.Creature
		err error
	)
	if forUpdate {
		c, err = repo.GetForUpdate(ctx, creatureID)
	} else {
		c, err = repo.GetByID(ctx, creatureID)
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, derr.Invalidf("creatureId", "creature %s not registered", creatureID)
	}
	if !c.OwnedBy(wallet) {
		return nil, derr.Invalid("creatureId", "creature is not owned by wallet")
	}
	return c, nil
}

func until(t *time.Time, now time.Time) bool {
	return t != nil && now.Before(*t)
}
