// Package storetest provides an in-memory store.TxRunner for tests. Status
// changes are compare-and-swap under a mutex, ledger and claim uniqueness are
// enforced at write time, and transactions are serialized and rolled back on
// error, mirroring the database guarantees the services rely on.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/ledger"
	"github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/race"
	"github.com/creaturederby/derby/internal/domain/season"
	"github.com/creaturederby/derby/internal/domain/store"
)

type standingKey struct {
	season   uuid.UUID
	creature string
}

type data struct {
	mu   sync.Mutex
	txMu sync.Mutex

	nextID      int64
	requests    map[uuid.UUID]*payment.Request
	transitions []*payment.StateTransition
	ledger      []*ledger.Entry
	creatures   map[string]*creature.Creature
	rewards     map[uuid.UUID]*creature.Reward
	races       map[uuid.UUID]*race.Race
	entries     map[uuid.UUID][]*race.Entry
	seasons     map[uuid.UUID]*season.Season
	standings   map[standingKey]*season.Standing
}

// Store is the in-memory store. The zero value is not usable; call New.
type Store struct {
	d       *data
	undo    *[]func()
	aborted *bool
}

// errAborted mirrors Postgres refusing to commit after a statement failed.
var errAborted = errors.New("current transaction is aborted, commands ignored until end of transaction block")

var _ store.TxRunner = (*Store)(nil)

func New() *Store {
	return &Store{d: &data{
		requests:  make(map[uuid.UUID]*payment.Request),
		creatures: make(map[string]*creature.Creature),
		rewards:   make(map[uuid.UUID]*creature.Reward),
		races:     make(map[uuid.UUID]*race.Race),
		entries:   make(map[uuid.UUID][]*race.Entry),
		seasons:   make(map[uuid.UUID]*season.Season),
		standings: make(map[standingKey]*season.Standing),
	}}
}

func (s *Store) Payments() payment.Repository   { return &payments{s} }
func (s *Store) Ledger() ledger.Repository      { return &ledgerRepo{s} }
func (s *Store) Creatures() creature.Repository { return &creatures{s} }
func (s *Store) Races() race.Repository         { return &races{s} }
func (s *Store) Seasons() season.Repository     { return &seasons{s} }

// WithinTx serializes transactions. Writes made through the transaction's
// Store are undone when fn returns an error. A unique violation inside fn
// aborts the transaction: it rolls back even if fn swallows the error.
func (s *Store) WithinTx(ctx context.Context, fn store.TxFunc) error {
	if s.undo != nil {
		return fmt.Errorf("nested transactions are not supported")
	}
	s.d.txMu.Lock()
	defer s.d.txMu.Unlock()

	var log []func()
	aborted := false
	tx := &Store{d: s.d, undo: &log, aborted: &aborted}
	err := fn(ctx, tx)
	if err == nil && aborted {
		err = errAborted
	}
	if err != nil {
		s.d.mu.Lock()
		for i := len(log) - 1; i >= 0; i-- {
			log[i]()
		}
		s.d.mu.Unlock()
		return err
	}
	return nil
}

// LedgerEntries returns every ledger entry in append order.
func (s *Store) LedgerEntries() []*ledger.Entry {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	out := make([]*ledger.Entry, 0, len(s.d.ledger))
	for _, e := range s.d.ledger {
		c := *e
		out = append(out, &c)
	}
	return out
}

// lock acquires the data mutex and returns a recorder for undo actions.
func (s *Store) lock() func(func()) {
	s.d.mu.Lock()
	return func(undo func()) {
		if s.undo != nil {
			*s.undo = append(*s.undo, undo)
		}
	}
}

func (s *Store) unlock() { s.d.mu.Unlock() }

func without[T any](items []*T, item *T) []*T {
	for i, it := range items {
		if it == item {
			return append(items[:i:i], items[i+1:]...)
		}
	}
	return items
}

func (s *Store) id() int64 {
	s.d.nextID++
	return s.d.nextID
}

type payments struct{ s *Store }

func cloneRequest(r *payment.Request) *payment.Request {
	c := *r
	return &c
}

func (p *payments) Create(_ context.Context, req *payment.Request) error {
	track := p.s.lock()
	defer p.s.unlock()
	if _, ok := p.s.d.requests[req.RequestID]; ok {
		return fmt.Errorf("duplicate request %s", req.RequestID)
	}
	req.ID = p.s.id()
	p.s.d.requests[req.RequestID] = cloneRequest(req)
	track(func() { delete(p.s.d.requests, req.RequestID) })
	return nil
}

func (p *payments) GetByID(_ context.Context, requestID uuid.UUID) (*payment.Request, error) {
	p.s.lock()
	defer p.s.unlock()
	r, ok := p.s.d.requests[requestID]
	if !ok {
		return nil, nil
	}
	return cloneRequest(r), nil
}

func (p *payments) ListPending(_ context.Context, limit int) ([]*payment.Request, error) {
	p.s.lock()
	defer p.s.unlock()
	var out []*payment.Request
	for _, r := range p.s.d.requests {
		if r.Status == payment.StatusPending {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cas applies mutate when the request is in status from.
func (p *payments) cas(requestID uuid.UUID, from, to payment.Status, mutate func(r *payment.Request) error) (bool, error) {
	track := p.s.lock()
	defer p.s.unlock()
	r, ok := p.s.d.requests[requestID]
	if !ok || r.Status != from {
		return false, nil
	}
	prev := *r
	if mutate != nil {
		if err := mutate(r); err != nil {
			*r = prev
			return false, err
		}
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	track(func() { *r = prev })
	return true, nil
}

func (p *payments) Transition(_ context.Context, requestID uuid.UUID, from, to payment.Status) (bool, error) {
	if !payment.CanTransition(from, to) {
		return false, payment.ErrInvalidTransition
	}
	return p.cas(requestID, from, to, nil)
}

func (p *payments) Claim(_ context.Context, requestID uuid.UUID, txID string) (bool, error) {
	return p.cas(requestID, payment.StatusPending, payment.StatusExecuting, func(r *payment.Request) error {
		for id, other := range p.s.d.requests {
			if id == requestID || other.TxID == nil || *other.TxID != txID {
				continue
			}
			if other.Status == payment.StatusExecuting || other.Status == payment.StatusExecuted {
				return payment.ErrTxClaimed
			}
		}
		r.TxID = &txID
		return nil
	})
}

func (p *payments) Complete(_ context.Context, requestID uuid.UUID, result json.RawMessage) (bool, error) {
	return p.cas(requestID, payment.StatusExecuting, payment.StatusExecuted, func(r *payment.Request) error {
		r.Result = result
		return nil
	})
}

func (p *payments) Fail(_ context.Context, requestID uuid.UUID, from payment.Status, code, message string) (bool, error) {
	if !payment.CanTransition(from, payment.StatusFailed) {
		return false, payment.ErrInvalidTransition
	}
	return p.cas(requestID, from, payment.StatusFailed, func(r *payment.Request) error {
		r.ErrorCode = &code
		r.ErrorMessage = &message
		return nil
	})
}

func (p *payments) SetCallbackTx(_ context.Context, requestID uuid.UUID, txID string) (bool, error) {
	return p.cas(requestID, payment.StatusPending, payment.StatusPending, func(r *payment.Request) error {
		r.CallbackTxID = &txID
		return nil
	})
}

func (p *payments) IsTxClaimed(_ context.Context, txID string, exclude uuid.UUID) (bool, error) {
	p.s.lock()
	defer p.s.unlock()
	for id, r := range p.s.d.requests {
		if id == exclude || r.TxID == nil || *r.TxID != txID {
			continue
		}
		if r.Status == payment.StatusExecuting || r.Status == payment.StatusExecuted {
			return true, nil
		}
	}
	return false, nil
}

func (p *payments) RecordTransition(_ context.Context, t *payment.StateTransition) error {
	track := p.s.lock()
	defer p.s.unlock()
	t.ID = p.s.id()
	c := *t
	p.s.d.transitions = append(p.s.d.transitions, &c)
	track(func() { p.s.d.transitions = without(p.s.d.transitions, &c) })
	return nil
}

func (p *payments) GetTransitions(_ context.Context, requestID uuid.UUID) ([]*payment.StateTransition, error) {
	p.s.lock()
	defer p.s.unlock()
	var out []*payment.StateTransition
	for _, t := range p.s.d.transitions {
		if t.RequestID == requestID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

type ledgerRepo struct{ s *Store }

func (l *ledgerRepo) Append(_ context.Context, entry *ledger.Entry) error {
	track := l.s.lock()
	defer l.s.unlock()
	if !entry.Shadow {
		for _, e := range l.s.d.ledger {
			if !e.Shadow && e.TxID == entry.TxID {
				if l.s.aborted != nil {
					*l.s.aborted = true
				}
				return fmt.Errorf("append %s: %w", entry.TxID, ledger.ErrTxConsumed)
			}
		}
	}
	entry.ID = l.s.id()
	c := *entry
	l.s.d.ledger = append(l.s.d.ledger, &c)
	track(func() { l.s.d.ledger = without(l.s.d.ledger, &c) })
	return nil
}

func (l *ledgerRepo) IsConsumed(_ context.Context, txID string) (bool, error) {
	l.s.lock()
	defer l.s.unlock()
	for _, e := range l.s.d.ledger {
		if !e.Shadow && e.TxID == txID {
			return true, nil
		}
	}
	return false, nil
}

func (l *ledgerRepo) ListByWallet(_ context.Context, wallet string, limit int) ([]*ledger.Entry, error) {
	l.s.lock()
	defer l.s.unlock()
	var out []*ledger.Entry
	for i := len(l.s.d.ledger) - 1; i >= 0; i-- {
		e := l.s.d.ledger[i]
		if e.Wallet != wallet {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type creatures struct{ s *Store }

func cloneCreature(c *creature.Creature) *creature.Creature {
	out := *c
	return &out
}

func (r *creatures) Create(_ context.Context, c *creature.Creature) error {
	track := r.s.lock()
	defer r.s.unlock()
	if _, ok := r.s.d.creatures[c.CreatureID]; ok {
		return fmt.Errorf("duplicate creature %s", c.CreatureID)
	}
	r.s.d.creatures[c.CreatureID] = cloneCreature(c)
	track(func() { delete(r.s.d.creatures, c.CreatureID) })
	return nil
}

func (r *creatures) GetByID(_ context.Context, creatureID string) (*creature.Creature, error) {
	r.s.lock()
	defer r.s.unlock()
	c, ok := r.s.d.creatures[creatureID]
	if !ok {
		return nil, nil
	}
	return cloneCreature(c), nil
}

// GetForUpdate relies on WithinTx serializing transactions.
func (r *creatures) GetForUpdate(ctx context.Context, creatureID string) (*creature.Creature, error) {
	return r.GetByID(ctx, creatureID)
}

func (r *creatures) Update(_ context.Context, c *creature.Creature) error {
	track := r.s.lock()
	defer r.s.unlock()
	prev, ok := r.s.d.creatures[c.CreatureID]
	if !ok {
		return fmt.Errorf("creature %s not found", c.CreatureID)
	}
	r.s.d.creatures[c.CreatureID] = cloneCreature(c)
	track(func() { r.s.d.creatures[c.CreatureID] = prev })
	return nil
}

func (r *creatures) ListByOwner(_ context.Context, owner string) ([]*creature.Creature, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*creature.Creature
	for _, c := range r.s.d.creatures {
		if c.Owner == owner {
			out = append(out, cloneCreature(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatureID < out[j].CreatureID })
	return out, nil
}

func (r *creatures) AddReward(_ context.Context, reward *creature.Reward) error {
	track := r.s.lock()
	defer r.s.unlock()
	c := *reward
	r.s.d.rewards[reward.RewardID] = &c
	track(func() { delete(r.s.d.rewards, reward.RewardID) })
	return nil
}

func (r *creatures) ListRewards(_ context.Context, creatureID string, includeConsumed bool) ([]*creature.Reward, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*creature.Reward
	for _, rw := range r.s.d.rewards {
		if rw.CreatureID != creatureID || (!includeConsumed && rw.IsConsumed()) {
			continue
		}
		c := *rw
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *creatures) ConsumeReward(_ context.Context, rewardID uuid.UUID, at time.Time) (bool, error) {
	track := r.s.lock()
	defer r.s.unlock()
	rw, ok := r.s.d.rewards[rewardID]
	if !ok || rw.IsConsumed() {
		return false, nil
	}
	rw.ConsumedAt = &at
	track(func() { rw.ConsumedAt = nil })
	return true, nil
}

type races struct{ s *Store }

func cloneRace(rc *race.Race) *race.Race {
	c := *rc
	return &c
}

func (r *races) Create(_ context.Context, rc *race.Race) error {
	track := r.s.lock()
	defer r.s.unlock()
	r.s.d.races[rc.RaceID] = cloneRace(rc)
	track(func() { delete(r.s.d.races, rc.RaceID) })
	return nil
}

func (r *races) GetByID(_ context.Context, raceID uuid.UUID) (*race.Race, error) {
	r.s.lock()
	defer r.s.unlock()
	rc, ok := r.s.d.races[raceID]
	if !ok {
		return nil, nil
	}
	return cloneRace(rc), nil
}

func (r *races) GetForUpdate(ctx context.Context, raceID uuid.UUID) (*race.Race, error) {
	return r.GetByID(ctx, raceID)
}

func (r *races) List(_ context.Context, filter race.Filter, limit, offset int) ([]*race.Race, error) {
	return r.query(func(rc *race.Race) bool {
		if filter.SeasonID != nil && rc.SeasonID != *filter.SeasonID {
			return false
		}
		return filter.Status == nil || rc.Status == *filter.Status
	}, func(a, b *race.Race) bool { return a.EntryDeadline.After(b.EntryDeadline) }, limit, offset), nil
}

func (r *races) ListOpenable(_ context.Context, now time.Time, limit int) ([]*race.Race, error) {
	return r.query(func(rc *race.Race) bool {
		return rc.Status == race.StatusUpcoming && !rc.OpensAt.After(now)
	}, func(a, b *race.Race) bool { return a.OpensAt.Before(b.OpensAt) }, limit, 0), nil
}

func (r *races) ListResolvable(_ context.Context, now time.Time, limit int) ([]*race.Race, error) {
	return r.query(func(rc *race.Race) bool {
		return rc.Status == race.StatusOpen && !rc.EntryDeadline.After(now)
	}, func(a, b *race.Race) bool { return a.EntryDeadline.Before(b.EntryDeadline) }, limit, 0), nil
}

func (r *races) query(keep func(*race.Race) bool, less func(a, b *race.Race) bool, limit, offset int) []*race.Race {
	r.s.lock()
	defer r.s.unlock()
	var out []*race.Race
	for _, rc := range r.s.d.races {
		if keep(rc) {
			out = append(out, cloneRace(rc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *races) cas(raceID uuid.UUID, from, to race.Status, mutate func(rc *race.Race)) bool {
	track := r.s.lock()
	defer r.s.unlock()
	rc, ok := r.s.d.races[raceID]
	if !ok || rc.Status != from {
		return false
	}
	prev := *rc
	if mutate != nil {
		mutate(rc)
	}
	rc.Status = to
	rc.UpdatedAt = time.Now().UTC()
	track(func() { *rc = prev })
	return true
}

func (r *races) Transition(_ context.Context, raceID uuid.UUID, from, to race.Status) (bool, error) {
	if !race.CanTransition(from, to) {
		return false, race.ErrInvalidTransition
	}
	return r.cas(raceID, from, to, nil), nil
}

func (r *races) MarkResolved(_ context.Context, raceID uuid.UUID, seedHash string, seedHeight int64, at time.Time) (bool, error) {
	return r.cas(raceID, race.StatusLocked, race.StatusResolved, func(rc *race.Race) {
		rc.SeedHash = &seedHash
		rc.SeedHeight = &seedHeight
		rc.ResolvedAt = &at
	}), nil
}

func (r *races) MarkCancelled(_ context.Context, raceID uuid.UUID, from race.Status, reason string) (bool, error) {
	if !race.CanTransition(from, race.StatusCancelled) {
		return false, race.ErrInvalidTransition
	}
	return r.cas(raceID, from, race.StatusCancelled, func(rc *race.Race) {
		rc.CancelReason = &reason
	}), nil
}

func (r *races) AddEntry(_ context.Context, entry *race.Entry) error {
	track := r.s.lock()
	defer r.s.unlock()
	for _, e := range r.s.d.entries[entry.RaceID] {
		if e.CreatureID == entry.CreatureID {
			return race.ErrDuplicateEntry
		}
	}
	entry.ID = r.s.id()
	c := *entry
	r.s.d.entries[entry.RaceID] = append(r.s.d.entries[entry.RaceID], &c)
	track(func() { r.s.d.entries[entry.RaceID] = without(r.s.d.entries[entry.RaceID], &c) })
	return nil
}

func (r *races) ListEntries(_ context.Context, raceID uuid.UUID) ([]*race.Entry, error) {
	r.s.lock()
	defer r.s.unlock()
	out := make([]*race.Entry, 0, len(r.s.d.entries[raceID]))
	for _, e := range r.s.d.entries[raceID] {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatureID < out[j].CreatureID })
	return out, nil
}

func (r *races) SetEntryResult(_ context.Context, raceID uuid.UUID, creatureID string, position int, score float64, payout int64) error {
	track := r.s.lock()
	defer r.s.unlock()
	for _, e := range r.s.d.entries[raceID] {
		if e.CreatureID != creatureID {
			continue
		}
		prev := *e
		e.Position = &position
		e.Score = &score
		e.Payout = &payout
		track(func() { *e = prev })
		return nil
	}
	return fmt.Errorf("entry %s/%s not found", raceID, creatureID)
}

type seasons struct{ s *Store }

func (r *seasons) Create(_ context.Context, se *season.Season) error {
	track := r.s.lock()
	defer r.s.unlock()
	c := *se
	r.s.d.seasons[se.SeasonID] = &c
	track(func() { delete(r.s.d.seasons, se.SeasonID) })
	return nil
}

func (r *seasons) GetByID(_ context.Context, seasonID uuid.UUID) (*season.Season, error) {
	r.s.lock()
	defer r.s.unlock()
	se, ok := r.s.d.seasons[seasonID]
	if !ok {
		return nil, nil
	}
	c := *se
	return &c, nil
}

func (r *seasons) GetActive(_ context.Context, now time.Time) (*season.Season, error) {
	r.s.lock()
	defer r.s.unlock()
	var best *season.Season
	for _, se := range r.s.d.seasons {
		if se.Active(now) && (best == nil || se.StartsAt.After(best.StartsAt)) {
			best = se
		}
	}
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

func (r *seasons) UpsertStanding(_ context.Context, delta season.Delta) error {
	track := r.s.lock()
	defer r.s.unlock()
	key := standingKey{season: delta.SeasonID, creature: delta.CreatureID}
	st, ok := r.s.d.standings[key]
	if !ok {
		st = &season.Standing{SeasonID: delta.SeasonID, CreatureID: delta.CreatureID}
		r.s.d.standings[key] = st
		track(func() { delete(r.s.d.standings, key) })
	} else {
		prev := *st
		track(func() { *st = prev })
	}
	w, p, sh := delta.Counters()
	st.Owner = delta.Owner
	st.Races++
	st.Wins += w
	st.Places += p
	st.Shows += sh
	st.Earnings += delta.Payout
	st.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *seasons) Leaderboard(_ context.Context, seasonID uuid.UUID, limit int) ([]*season.Standing, error) {
	r.s.lock()
	defer r.s.unlock()
	var out []*season.Standing
	for key, st := range r.s.d.standings {
		if key.season != seasonID {
			continue
		}
		c := *st
		c.Prestige = season.Prestige(c.Wins, c.Places, c.Shows)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Wins != b.Wins:
			return a.Wins > b.Wins
		case a.Places != b.Places:
			return a.Places > b.Places
		case a.Shows != b.Shows:
			return a.Shows > b.Shows
		case a.Earnings != b.Earnings:
			return a.Earnings > b.Earnings
		}
		return a.CreatureID < b.CreatureID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
