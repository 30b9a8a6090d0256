// Package scheduler runs the background sweeps: the server-side payment
// observer and the race open / resolve sweeps.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// PaymentScanner polls pending action requests.
type PaymentScanner interface {
	ScanPending(ctx context.Context) (int, error)
}

// RaceSweeper advances races whose schedule has come due.
type RaceSweeper interface {
	OpenDue(ctx context.Context) (int, error)
	ResolveDue(ctx context.Context) (int, error)
}

type Config struct {
	ScanInterval      time.Duration
	RaceSweepInterval time.Duration
}

// Scheduler owns the gocron scheduler and its jobs
type Scheduler struct {
	sched    gocron.Scheduler
	payments PaymentScanner
	races    RaceSweeper
	cfg      Config
	ctx      context.Context
	cancel   context.CancelFunc
	logger   zerolog.Logger
}

// New registers the sweep jobs. Jobs do not run until Start.
func New(payments PaymentScanner, races RaceSweeper, cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 10 * time.Second
	}
	if cfg.RaceSweepInterval <= 0 {
		cfg.RaceSweepInterval = 30 * time.Second
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sched:    sched,
		payments: payments,
		races:    races,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With().Str("service", "scheduler").Logger(),
	}

	jobs := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"scan-pending", cfg.ScanInterval, s.scanPending},
		{"open-due-races", cfg.RaceSweepInterval, s.openDue},
		{"resolve-due-races", cfg.RaceSweepInterval, s.resolveDue},
	}
	for _, j := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(j.run),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to register %s: %w", j.name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.logger.Info().
		Dur("scan_interval", s.cfg.ScanInterval).
		Dur("race_sweep_interval", s.cfg.RaceSweepInterval).
		Msg("scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.sched.Shutdown()
}

func (s *Scheduler) scanPending() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ScanInterval*3)
	defer cancel()
	n, err := s.payments.ScanPending(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("pending scan failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("settled", n).Msg("pending scan settled requests")
	}
}

func (s *Scheduler) openDue() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RaceSweepInterval*3)
	defer cancel()
	n, err := s.races.OpenDue(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("open sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("opened", n).Msg("races opened")
	}
}

func (s *Scheduler) resolveDue() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RaceSweepInterval*3)
	defer cancel()
	n, err := s.races.ResolveDue(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("resolve sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("resolved", n).Msg("races resolved")
	}
}
