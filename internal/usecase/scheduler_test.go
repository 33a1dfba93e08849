package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerRunsOnStartAndTicks(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(zerolog.Nop(), Task{
		Name:       "tick",
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if got := runs.Load(); got < 3 {
		t.Errorf("Expected at least 3 runs, got %d", got)
	}
}

func TestSchedulerTaskNeverOverlaps(t *testing.T) {
	var running, overlaps, runs atomic.Int32
	s := NewScheduler(zerolog.Nop(), Task{
		Name:     "slow",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			if running.Add(1) > 1 {
				overlaps.Add(1)
			}
			defer running.Add(-1)
			runs.Add(1)
			select {
			case <-time.After(30 * time.Millisecond):
			case <-ctx.Done():
			}
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	if overlaps.Load() != 0 {
		t.Errorf("Expected no overlapping runs, got %d", overlaps.Load())
	}
	if runs.Load() == 0 {
		t.Error("Expected the task to run")
	}
}

func TestSchedulerErrorsAreNotFatal(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(zerolog.Nop(),
		Task{Name: "broken", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("exchange down")
		}},
		Task{Name: "no interval", Run: func(context.Context) error { return nil }},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	if runs.Load() < 2 {
		t.Errorf("Expected failing task to keep running, got %d runs", runs.Load())
	}
}
