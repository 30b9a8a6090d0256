// Package race runs the race lifecycle: opening, the resolution lock, scoring
// and payout, and the post-commit audit archive.
package race

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/chain"
	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/domain/event"
	"github.com/creaturederby/derby/internal/domain/ledger"
	domainRace "github.com/creaturederby/derby/internal/domain/race"
	"github.com/creaturederby/derby/internal/domain/season"
	"github.com/creaturederby/derby/internal/domain/store"
	"github.com/creaturederby/derby/internal/metrics"
	"github.com/creaturederby/derby/internal/tuning"
)

const sweepBatch = 100

// errSettled aborts a resolution transaction whose final CAS was lost.
var errSettled = errors.New("race already settled")

// Archiver stores signed resolution records.
type Archiver interface {
	Store(ctx context.Context, rec *domainRace.AuditRecord) error
}

// CreateInput describes a scheduled race.
type CreateInput struct {
	SeasonID      uuid.UUID
	Name          string
	RaceType      string
	EntryFee      int64
	FeeTokenID    string
	MaxEntries    int
	OpensAt       time.Time
	EntryDeadline time.Time
}

// Detail is a race with its entries and, once resolved, its results.
type Detail struct {
	Race    *domainRace.Race    `json:"race"`
	Entries []*domainRace.Entry `json:"entries"`
	Results []domainRace.Result `json:"results,omitempty"`
}

// Service handles race operations
type Service struct {
	store   store.TxRunner
	chain   chain.Client
	engine  *Engine
	tuning  *tuning.Tuning
	archive Archiver
	events  event.Publisher
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService creates a new race service. archive may be nil.
func NewService(
	st store.TxRunner,
	client chain.Client,
	t *tuning.Tuning,
	archive Archiver,
	events event.Publisher,
	logger zerolog.Logger,
) *Service {
	if events == nil {
		events = event.Discard{}
	}
	return &Service{
		store:   st,
		chain:   client,
		engine:  NewEngine(t),
		tuning:  t,
		archive: archive,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With().Str("service", "race").Logger(),
	}
}

// Create schedules a race in a season.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domainRace.Race, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, derr.Invalid("name", "required")
	}
	if _, ok := s.tuning.Profile(in.RaceType); !ok {
		return nil, derr.Invalidf("raceType", "unknown race type %q", in.RaceType)
	}
	if in.EntryFee < 0 {
		return nil, derr.Invalid("entryFee", "must not be negative")
	}
	if in.MaxEntries <= 0 {
		return nil, derr.Invalid("maxEntries", "must be positive")
	}
	if !in.EntryDeadline.After(in.OpensAt) {
		return nil, derr.Invalid("entryDeadline", "must be after opensAt")
	}
	se, err := s.store.Seasons().GetByID(ctx, in.SeasonID)
	if err != nil {
		return nil, err
	}
	if se == nil {
		return nil, derr.Invalid("seasonId", "season not found")
	}

	r := domainRace.NewRace(in.SeasonID, in.Name, in.RaceType, in.EntryFee, in.MaxEntries, in.OpensAt, in.EntryDeadline)
	r.FeeTokenID = in.FeeTokenID
	if err := s.store.Races().Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create race: %w", err)
	}
	s.logger.Info().Str("race_id", r.RaceID.String()).Str("race_type", r.RaceType).Msg("race scheduled")
	return r, nil
}

// Get returns a race with its entries.
func (s *Service) Get(ctx context.Context, raceID uuid.UUID) (*Detail, error) {
	r, err := s.load(ctx, raceID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Races().ListEntries(ctx, raceID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Race: r, Entries: entries}
	if r.Status == domainRace.StatusResolved {
		d.Results = domainRace.ResultsFromEntries(entries)
	}
	return d, nil
}

// List returns races, resolving open races whose deadline passed first.
func (s *Service) List(ctx context.Context, filter domainRace.Filter, limit, offset int) ([]*domainRace.Race, error) {
	races, err := s.store.Races().List(ctx, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i, r := range races {
		if r.Status != domainRace.StatusOpen || !r.DeadlinePassed(now) {
			continue
		}
		if _, err := s.Resolve(ctx, r.RaceID); err != nil {
			s.logger.Warn().Err(err).Str("race_id", r.RaceID.String()).Msg("lazy resolve failed")
			continue
		}
		if fresh, err := s.store.Races().GetByID(ctx, r.RaceID); err == nil && fresh != nil {
			races[i] = fresh
		}
	}
	return races, nil
}

// Resolve claims the race with the open -> locked CAS and settles it. Losing
// callers get the current state: AlreadyResolving while locked, the cached
// results once resolved.
func (s *Service) Resolve(ctx context.Context, raceID uuid.UUID) (*domainRace.Resolution, error) {
	r, err := s.load(ctx, raceID)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case domainRace.StatusUpcoming:
		return nil, derr.Invalid("raceId", "race has not opened")
	case domainRace.StatusOpen:
		if !r.DeadlinePassed(s.now()) {
			return nil, derr.Invalidf("raceId", "entries close at %s", r.EntryDeadline.Format(time.RFC3339))
		}
	default:
		return s.current(ctx, r)
	}

	won, err := s.store.Races().Transition(ctx, raceID, domainRace.StatusOpen, domainRace.StatusLocked)
	if err != nil {
		return nil, fmt.Errorf("lock race: %w", err)
	}
	if !won {
		metrics.RaceResolutions.WithLabelValues("already_resolving").Inc()
		r, err := s.load(ctx, raceID)
		if err != nil {
			return nil, err
		}
		return s.current(ctx, r)
	}
	r.Status = domainRace.StatusLocked
	return s.settle(ctx, r)
}

// Resume re-runs settlement for a race left locked by an interrupted resolution.
func (s *Service) Resume(ctx context.Context, raceID uuid.UUID) (*domainRace.Resolution, error) {
	r, err := s.load(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if r.Status != domainRace.StatusLocked {
		return nil, derr.Invalidf("raceId", "race is %s, not locked", r.Status)
	}
	s.logger.Warn().Str("race_id", raceID.String()).Msg("resuming locked race")
	return s.settle(ctx, r)
}

// Cancel moves an open race to cancelled. Entry fees are not refunded.
func (s *Service) Cancel(ctx context.Context, raceID uuid.UUID, reason string) (*domainRace.Resolution, error) {
	r, err := s.load(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if r.Status == domainRace.StatusLocked {
		return nil, fmt.Errorf("%w: race %s is being resolved", derr.ErrConcurrencyPending, raceID)
	}
	if r.Status != domainRace.StatusOpen {
		return nil, derr.Invalidf("raceId", "race is %s, only open races can be cancelled", r.Status)
	}
	if reason == "" {
		reason = "cancelled by operator"
	}
	return s.cancel(ctx, r, domainRace.StatusOpen, reason)
}

// OpenDue opens upcoming races whose opening time passed.
func (s *Service) OpenDue(ctx context.Context) (int, error) {
	races, err := s.store.Races().ListOpenable(ctx, s.now(), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list openable: %w", err)
	}
	opened := 0
	for _, r := range races {
		won, err := s.store.Races().Transition(ctx, r.RaceID, domainRace.StatusUpcoming, domainRace.StatusOpen)
		if err != nil {
			s.logger.Error().Err(err).Str("race_id", r.RaceID.String()).Msg("failed to open race")
			continue
		}
		if won {
			opened++
			s.logger.Info().Str("race_id", r.RaceID.String()).Msg("race opened")
		}
	}
	return opened, nil
}

// ResolveDue resolves open races whose entry deadline passed.
func (s *Service) ResolveDue(ctx context.Context) (int, error) {
	races, err := s.store.Races().ListResolvable(ctx, s.now(), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list resolvable: %w", err)
	}
	done := 0
	for _, r := range races {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		res, err := s.Resolve(ctx, r.RaceID)
		if err != nil {
			s.logger.Error().Err(err).Str("race_id", r.RaceID.String()).Msg("failed to resolve race")
			continue
		}
		if !res.AlreadyResolving {
			done++
		}
	}
	return done, nil
}

// settle runs everything after the lock: entrant check, seed, scoring, and
// the transactional write of results ending in the locked -> resolved CAS.
// A failure leaves the race locked.
func (s *Service) settle(ctx context.Context, r *domainRace.Race) (*domainRace.Resolution, error) {
	log := s.logger.With().Str("race_id", r.RaceID.String()).Logger()

	entries, err := s.store.Races().ListEntries(ctx, r.RaceID)
	if err != nil {
		metrics.RaceResolutions.WithLabelValues("stuck").Inc()
		return nil, fmt.Errorf("%w: list entries: %v", derr.ErrStuckLock, err)
	}
	if len(entries) < domainRace.MinEntrants {
		log.Info().Int("entrants", len(entries)).Msg("too few entrants to rank")
		return s.cancel(ctx, r, domainRace.StatusLocked, derr.ErrInsufficientEntrants.Error())
	}

	block, err := s.chain.GetLatestBlock(ctx)
	if err != nil {
		metrics.RaceResolutions.WithLabelValues("stuck").Inc()
		log.Error().Err(err).Msg("seed unavailable, race left locked")
		return nil, fmt.Errorf("%w: %w: seed: %v", derr.ErrStuckLock, derr.ErrExternalDegraded, err)
	}
	ranked, err := s.engine.Rank(r.RaceType, block.Hash, r.EntryFee, entries)
	if err != nil {
		metrics.RaceResolutions.WithLabelValues("stuck").Inc()
		return nil, fmt.Errorf("%w: %v", derr.ErrStuckLock, err)
	}

	resolvedAt := s.now()
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		for _, rk := range ranked {
			if err := s.recordFinish(ctx, tx, r, rk, block.Height); err != nil {
				return err
			}
		}
		won, err := tx.Races().MarkResolved(ctx, r.RaceID, block.Hash, block.Height, resolvedAt)
		if err != nil {
			return err
		}
		if !won {
			return errSettled
		}
		return nil
	})
	if errors.Is(err, errSettled) {
		current, err := s.load(ctx, r.RaceID)
		if err != nil {
			return nil, err
		}
		return s.current(ctx, current)
	}
	if err != nil {
		metrics.RaceResolutions.WithLabelValues("stuck").Inc()
		log.Error().Err(err).Msg("resolution write failed, race left locked")
		return nil, fmt.Errorf("%w: %v", derr.ErrStuckLock, err)
	}

	metrics.RaceResolutions.WithLabelValues("resolved").Inc()
	log.Info().
		Str("seed_hash", block.Hash).
		Int64("seed_height", block.Height).
		Int("entrants", len(ranked)).
		Msg("race resolved")

	res := &domainRace.Resolution{
		RaceID:     r.RaceID,
		Status:     domainRace.StatusResolved,
		SeedHash:   block.Hash,
		SeedHeight: block.Height,
		Results:    make([]domainRace.Result, 0, len(ranked)),
	}
	for _, rk := range ranked {
		res.Results = append(res.Results, domainRace.Result{
			Position:   rk.Position,
			CreatureID: rk.Entry.CreatureID,
			Owner:      rk.Entry.Owner,
			Score:      rk.Score,
			Payout:     rk.Payout,
		})
	}
	s.archiveRecord(ctx, r, block, ranked, resolvedAt)
	s.publish(event.RaceResolved, res)
	return res, nil
}

// recordFinish writes one entry's result, its season standing, its payout
// projection and its rank reward.
func (s *Service) recordFinish(ctx context.Context, tx store.Store, r *domainRace.Race, rk Ranked, height int64) error {
	entry := rk.Entry
	if err := tx.Races().SetEntryResult(ctx, r.RaceID, entry.CreatureID, rk.Position, rk.Score, rk.Payout); err != nil {
		return fmt.Errorf("set result %s: %w", entry.CreatureID, err)
	}
	if err := tx.Seasons().UpsertStanding(ctx, season.Delta{
		SeasonID:   r.SeasonID,
		CreatureID: entry.CreatureID,
		Owner:      entry.Owner,
		Position:   rk.Position,
		Payout:     rk.Payout,
	}); err != nil {
		return fmt.Errorf("upsert standing %s: %w", entry.CreatureID, err)
	}
	if rk.Payout > 0 {
		payout := ledger.NewShadowEntry(PayoutTxID(r.RaceID, entry.CreatureID), entry.Owner, ledger.KindRacePayout, rk.Payout, r.FeeTokenID)
		creatureID := entry.CreatureID
		raceID, seasonID := r.RaceID, r.SeasonID
		payout.CreatureID = &creatureID
		payout.RaceID = &raceID
		payout.SeasonID = &seasonID
		if err := tx.Ledger().Append(ctx, payout); err != nil {
			return fmt.Errorf("append payout %s: %w", entry.CreatureID, err)
		}
	}
	return s.award(ctx, tx, r, rk, height)
}

// award grants the rank reward: bonus actions to the winner, boosts down the
// ladder, recovery for everyone after.
func (s *Service) award(ctx context.Context, tx store.Store, r *domainRace.Race, rk Ranked, height int64) error {
	rw := s.tuning.Rewards
	raceID := r.RaceID
	creatureID := rk.Entry.CreatureID

	if rk.Position == 1 {
		if rw.BonusActions <= 0 {
			return nil
		}
		c, err := tx.Creatures().GetForUpdate(ctx, creatureID)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		c.BonusActions += rw.BonusActions
		c.UpdatedAt = s.now()
		return tx.Creatures().Update(ctx, c)
	}

	var reward *creature.Reward
	if i := rk.Position - 2; i < len(rw.Boosts) {
		reward = creature.NewReward(creatureID, creature.RewardBoost, rw.Boosts[i], &raceID, height, rw.BoostExpiryBlocks)
	} else if rw.Recovery > 0 {
		reward = creature.NewReward(creatureID, creature.RewardRecovery, rw.Recovery, &raceID, height, rw.RecoveryExpiryBlocks)
	}
	if reward == nil {
		return nil
	}
	return tx.Creatures().AddReward(ctx, reward)
}

func (s *Service) cancel(ctx context.Context, r *domainRace.Race, from domainRace.Status, reason string) (*domainRace.Resolution, error) {
	won, err := s.store.Races().MarkCancelled(ctx, r.RaceID, from, reason)
	if err != nil {
		return nil, fmt.Errorf("cancel race: %w", err)
	}
	if !won {
		current, err := s.load(ctx, r.RaceID)
		if err != nil {
			return nil, err
		}
		return s.current(ctx, current)
	}
	metrics.RaceResolutions.WithLabelValues("cancelled").Inc()
	s.logger.Info().Str("race_id", r.RaceID.String()).Str("reason", reason).Msg("race cancelled")
	res := &domainRace.Resolution{RaceID: r.RaceID, Status: domainRace.StatusCancelled, Cancelled: reason}
	s.publish(event.RaceCancelled, res)
	return res, nil
}

// current reports a race's resolution state without changing it.
func (s *Service) current(ctx context.Context, r *domainRace.Race) (*domainRace.Resolution, error) {
	res := &domainRace.Resolution{RaceID: r.RaceID, Status: r.Status}
	switch r.Status {
	case domainRace.StatusLocked, domainRace.StatusOpen:
		res.AlreadyResolving = true
	case domainRace.StatusCancelled:
		if r.CancelReason != nil {
			res.Cancelled = *r.CancelReason
		}
	case domainRace.StatusResolved:
		entries, err := s.store.Races().ListEntries(ctx, r.RaceID)
		if err != nil {
			return nil, err
		}
		res.Results = domainRace.ResultsFromEntries(entries)
		if r.SeedHash != nil {
			res.SeedHash = *r.SeedHash
		}
		if r.SeedHeight != nil {
			res.SeedHeight = *r.SeedHeight
		}
	}
	return res, nil
}

func (s *Service) load(ctx context.Context, raceID uuid.UUID) (*domainRace.Race, error) {
	r, err := s.store.Races().GetByID(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, derr.ErrNotFound
	}
	return r, nil
}

// archiveRecord signs and stores the resolution. Failures are counted and
// logged only.
func (s *Service) archiveRecord(ctx context.Context, r *domainRace.Race, block *chain.Block, ranked []Ranked, resolvedAt time.Time) {
	if s.archive == nil {
		return
	}
	rec := AuditRecord(r, block.Hash, block.Height, ranked, resolvedAt)
	if err := s.archive.Store(ctx, rec); err != nil {
		metrics.ArchiveFailures.Inc()
		s.logger.Error().Err(err).Str("race_id", r.RaceID.String()).Msg("failed to archive resolution")
	}
}

// AuditRecord builds the unsigned audit record for a resolution.
func AuditRecord(r *domainRace.Race, seedHash string, seedHeight int64, ranked []Ranked, resolvedAt time.Time) *domainRace.AuditRecord {
	rec := &domainRace.AuditRecord{
		RaceID:     r.RaceID,
		SeasonID:   r.SeasonID,
		RaceType:   r.RaceType,
		EntryFee:   r.EntryFee,
		FeeTokenID: r.FeeTokenID,
		SeedHash:   seedHash,
		SeedHeight: seedHeight,
		ResolvedAt: resolvedAt,
		Entries:    make([]domainRace.AuditEntry, 0, len(ranked)),
	}
	for _, rk := range ranked {
		rec.Entries = append(rec.Entries, domainRace.AuditEntry{
			CreatureID: rk.Entry.CreatureID,
			Owner:      rk.Entry.Owner,
			Snapshot:   rk.Entry.Snapshot,
			Score:      rk.Score,
			Position:   rk.Position,
			Payout:     rk.Payout,
		})
	}
	return rec
}

// PayoutTxID is the ledger key of a shadow payout entry.
func PayoutTxID(raceID uuid.UUID, creatureID string) string {
	return "payout:" + raceID.String() + ":" + creatureID
}

func (s *Service) publish(name string, res *domainRace.Resolution) {
	msg, err := event.NewMessage(name, "", res)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode event")
		return
	}
	s.events.Publish(msg)
}
