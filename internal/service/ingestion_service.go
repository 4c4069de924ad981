package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"safetywatch/internal/apperr"
	"safetywatch/internal/ids"
	"safetywatch/internal/models"
	"safetywatch/internal/queue"
	"safetywatch/internal/realtime"
	"safetywatch/internal/validate"
)

type DeviceAuthorizer interface {
	AuthorizeDevice(ctx context.Context, deviceID string) (models.Worker, error)
}

type ReadingStore interface {
	Insert(ctx context.Context, reading models.SensorReading) (models.SensorReading, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

type IngestionService struct {
	devices  DeviceAuthorizer
	readings ReadingStore
	events   EventPublisher
	tasks    TaskEnqueuer
	log      zerolog.Logger
}

func NewIngestionService(devices DeviceAuthorizer, readings ReadingStore, events EventPublisher, tasks TaskEnqueuer, log zerolog.Logger) *IngestionService {
	return &IngestionService{
		devices:  devices,
		readings: readings,
		events:   events,
		tasks:    tasks,
		log:      log,
	}
}

// Submit stores one telemetry sample from a device. The device must belong
// to an active worker; range checks run only after the device is trusted.
func (s *IngestionService) Submit(ctx context.Context, in validate.Sensor) (models.SensorReading, error) {
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	if err := validate.DeviceID(in.DeviceID); err != nil {
		return models.SensorReading{}, err
	}

	worker, err := s.devices.AuthorizeDevice(ctx, in.DeviceID)
	if err != nil {
		return models.SensorReading{}, err
	}

	reading, err := validate.SensorReading(in)
	if err != nil {
		return models.SensorReading{}, err
	}
	reading.ID = ids.New()
	reading.WorkerID = worker.ID

	stored, err := s.readings.Insert(ctx, reading)
	if err != nil {
		return models.SensorReading{}, apperr.Internal("Failed to record sensor data", err)
	}

	s.fanOut(context.WithoutCancel(ctx), stored)
	return stored, nil
}

// fanOut notifies realtime subscribers and the alert worker. The reading is
// already committed, so failures are only logged.
func (s *IngestionService) fanOut(ctx context.Context, reading models.SensorReading) {
	log := s.log.With().Str("worker_id", reading.WorkerID).Str("reading_id", reading.ID).Logger()

	if s.events != nil {
		if err := s.events.Publish(ctx, realtime.Event{
			Type:     realtime.EventReading,
			WorkerID: reading.WorkerID,
			Reading:  &reading,
			At:       reading.RecordedAt,
		}); err != nil {
			log.Warn().Err(err).Msg("publish reading failed")
		}
	}

	if s.tasks != nil {
		payload, err := json.Marshal(reading)
		if err != nil {
			log.Warn().Err(err).Msg("encode reading task failed")
			return
		}
		if _, err := s.tasks.Enqueue(ctx, queue.Task{
			Type:     queue.TaskReading,
			WorkerID: reading.WorkerID,
			Payload:  payload,
		}); err != nil {
			log.Warn().Err(err).Msg("enqueue reading failed")
		}
	}
}
