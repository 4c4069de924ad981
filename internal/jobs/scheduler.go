package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"safetywatch/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

// Scheduler enqueues periodic maintenance tasks; the worker process does the
// actual work.
type Scheduler struct {
	cron      *cron.Cron
	queue     Enqueuer
	sweepSpec string
	log       zerolog.Logger
}

func NewScheduler(queue Enqueuer, sweepSpec string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		queue:     queue,
		sweepSpec: sweepSpec,
		log:       log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.sweepSpec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.sweepSpec, s.enqueueStaleSweep); err != nil {
		return fmt.Errorf("schedule stale sweep %q: %w", s.sweepSpec, err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) enqueueStaleSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.queue.Enqueue(ctx, queue.Task{Type: queue.TaskStaleSweep}); err != nil {
		s.log.Error().Err(err).Msg("enqueue stale sweep failed")
	}
}
