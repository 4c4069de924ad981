package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"safetywatch/internal/models"
	"safetywatch/internal/queue"
	"safetywatch/internal/realtime"
)

type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

type StaleSource interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]models.Worker, error)
}

type Processor struct {
	publisher  Publisher
	workers    StaleSource
	staleAfter time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

func NewProcessor(publisher Publisher, workers StaleSource, staleAfter time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		publisher:  publisher,
		workers:    workers,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

func (p *Processor) Handle(ctx context.Context, task queue.Task) error {
	switch task.Type {
	case queue.TaskReading:
		return p.handleReading(ctx, task)
	case queue.TaskStaleSweep:
		return p.handleStaleSweep(ctx)
	default:
		p.logger.Warn().Str("type", task.Type).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleReading(ctx context.Context, task queue.Task) error {
	var reading models.SensorReading
	if err := json.Unmarshal(task.Payload, &reading); err != nil {
		return fmt.Errorf("decode reading: %w", err)
	}
	if reading.WorkerID == "" {
		reading.WorkerID = task.WorkerID
	}

	alert := Evaluate(reading)
	switch alert.Severity {
	case models.HealthEmergency:
		p.logger.Error().
			Str("worker_id", reading.WorkerID).
			Str("reading_id", reading.ID).
			Strs("reasons", alert.Reasons).
			Msg("worker emergency")
		return p.publisher.Publish(ctx, realtime.Event{
			Type:     realtime.EventAlert,
			WorkerID: reading.WorkerID,
			Reading:  &reading,
			Alert:    &alert,
			At:       p.now().UTC(),
		})
	case models.HealthWarning:
		p.logger.Warn().
			Str("worker_id", reading.WorkerID).
			Strs("reasons", alert.Reasons).
			Msg("worker vitals outside normal range")
	}
	return nil
}

func (p *Processor) handleStaleSweep(ctx context.Context) error {
	cutoff := p.now().Add(-p.staleAfter)
	stale, err := p.workers.ListStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale workers: %w", err)
	}

	for _, w := range stale {
		if err := p.publisher.Publish(ctx, realtime.Event{
			Type:     realtime.EventDeviceStale,
			WorkerID: w.ID,
			At:       p.now().UTC(),
		}); err != nil {
			p.logger.Error().Err(err).Str("worker_id", w.ID).Msg("publish stale device event failed")
			continue
		}
	}
	p.logger.Info().Int("stale", len(stale)).Time("cutoff", cutoff).Msg("stale device sweep finished")
	return nil
}
