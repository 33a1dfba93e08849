package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Task is one periodic job. A task never overlaps itself: ticks that arrive while it is
// still running are dropped.
type Task struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Scheduler runs each task in its own loop until the context ends.
type Scheduler struct {
	tasks []Task
	log   zerolog.Logger
}

func NewScheduler(log zerolog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{
		tasks: tasks,
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// Run blocks until ctx is cancelled. Task errors are logged, never fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		if t.Interval <= 0 || t.Run == nil {
			s.log.Warn().Str("task", t.Name).Msg("task skipped: no interval or body")
			continue
		}
		g.Go(func() error {
			s.loop(ctx, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	s.log.Info().Str("task", t.Name).Dur("interval", t.Interval).Msg("task scheduled")
	if t.RunOnStart {
		s.runOnce(ctx, t)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	start := time.Now()
	err := t.Run(ctx)
	switch {
	case err == nil:
		s.log.Debug().Str("task", t.Name).Dur("took", time.Since(start)).Msg("task done")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// shutdown
	default:
		s.log.Error().Err(err).Str("task", t.Name).Msg("task failed")
	}
}
