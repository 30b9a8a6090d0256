package season

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/derr"
	domainSeason "github.com/creaturederby/derby/internal/domain/season"
)

const (
	defaultBoardLimit = 50
	maxBoardLimit     = 200
)

// Service handles season operations
type Service struct {
	repo   domainSeason.Repository
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a new season service
func NewService(repo domainSeason.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("service", "season").Logger(),
	}
}

// Create registers a season spanning [startsAt, endsAt).
func (s *Service) Create(ctx context.Context, name string, startsAt, endsAt time.Time) (*domainSeason.Season, error) {
	if strings.TrimSpace(name) == "" {
		return nil, derr.Invalid("name", "required")
	}
	if !endsAt.After(startsAt) {
		return nil, derr.Invalid("endsAt", "must be after startsAt")
	}
	se := domainSeason.NewSeason(name, startsAt, endsAt)
	if err := s.repo.Create(ctx, se); err != nil {
		return nil, fmt.Errorf("failed to create season: %w", err)
	}
	s.logger.Info().Str("season_id", se.SeasonID.String()).Str("name", se.Name).Msg("season created")
	return se, nil
}

func (s *Service) Get(ctx context.Context, seasonID uuid.UUID) (*domainSeason.Season, error) {
	se, err := s.repo.GetByID(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	if se == nil {
		return nil, derr.ErrNotFound
	}
	return se, nil
}

// Active returns the season running now.
func (s *Service) Active(ctx context.Context) (*domainSeason.Season, error) {
	se, err := s.repo.GetActive(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if se == nil {
		return nil, derr.ErrNotFound
	}
	return se, nil
}

// Leaderboard returns the season's standings, best first.
func (s *Service) Leaderboard(ctx context.Context, seasonID uuid.UUID, limit int) ([]*domainSeason.Standing, error) {
	if _, err := s.Get(ctx, seasonID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultBoardLimit
	}
	if limit > maxBoardLimit {
		limit = maxBoardLimit
	}
	board, err := s.repo.Leaderboard(ctx, seasonID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	for _, st := range board {
		st.Prestige = domainSeason.Prestige(st.Wins, st.Places, st.Shows)
	}
	return board, nil
}
