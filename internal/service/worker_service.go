package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"safetywatch/internal/apperr"
	"safetywatch/internal/authz"
	"safetywatch/internal/models"
	"safetywatch/internal/repository"
)

const (
	DefaultReadingsLimit = 50
	MaxReadingsLimit     = 500
)

type WorkerGate interface {
	AuthorizeWorker(ctx context.Context, caller authz.Caller, action authz.Action, worker models.Worker) error
}

type WorkerDirectory interface {
	GetByID(ctx context.Context, id string) (models.Worker, error)
	GetByPrincipal(ctx context.Context, principalID string) (models.Worker, error)
	ListStatus(ctx context.Context, supervisorID *string) ([]models.WorkerStatus, error)
	SetActive(ctx context.Context, id string, active bool) (models.Worker, error)
}

type ReadingReader interface {
	ListByWorker(ctx context.Context, workerID string, limit int) ([]models.SensorReading, error)
}

type SupervisorLister interface {
	List(ctx context.Context) ([]models.Supervisor, error)
}

type WorkerService struct {
	gate        WorkerGate
	workers     WorkerDirectory
	readings    ReadingReader
	supervisors SupervisorLister
	log         zerolog.Logger
}

func NewWorkerService(gate WorkerGate, workers WorkerDirectory, readings ReadingReader, supervisors SupervisorLister, log zerolog.Logger) *WorkerService {
	return &WorkerService{
		gate:        gate,
		workers:     workers,
		readings:    readings,
		supervisors: supervisors,
		log:         log,
	}
}

// List returns every worker for admins and only their own workers for
// supervisors.
func (s *WorkerService) List(ctx context.Context, caller authz.Caller) ([]models.WorkerStatus, error) {
	var filter *string
	switch {
	case caller.IsAdmin():
	case caller.IsSupervisor() && caller.SupervisorID != nil:
		filter = caller.SupervisorID
	default:
		return nil, apperr.Forbidden(authz.ActionListWorkers.DenyMessage())
	}

	out, err := s.workers.ListStatus(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("Failed to list workers", err)
	}
	if out == nil {
		out = []models.WorkerStatus{}
	}
	return out, nil
}

func (s *WorkerService) Me(ctx context.Context, caller authz.Caller) (models.Worker, error) {
	w, err := s.workers.GetByPrincipal(ctx, caller.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrWorkerNotFound) {
			return models.Worker{}, apperr.NotFound("Worker profile not found")
		}
		return models.Worker{}, apperr.Internal("Failed to load worker", err)
	}
	return w, nil
}

// Authorize loads a worker and checks action against it.
func (s *WorkerService) Authorize(ctx context.Context, caller authz.Caller, action authz.Action, workerID string) (models.Worker, error) {
	w, err := s.workers.GetByID(ctx, workerID)
	if err != nil {
		if errors.Is(err, repository.ErrWorkerNotFound) {
			return models.Worker{}, apperr.NotFound("Worker not found")
		}
		return models.Worker{}, apperr.Internal("Failed to load worker", err)
	}
	if err := s.gate.AuthorizeWorker(ctx, caller, action, w); err != nil {
		return models.Worker{}, err
	}
	return w, nil
}

// Readings returns the newest readings first. limit falls back to the
// default when unset and is capped at MaxReadingsLimit.
func (s *WorkerService) Readings(ctx context.Context, caller authz.Caller, workerID string, limit int) ([]models.SensorReading, error) {
	w, err := s.Authorize(ctx, caller, authz.ActionViewWorker, workerID)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultReadingsLimit
	case limit > MaxReadingsLimit:
		limit = MaxReadingsLimit
	}

	out, err := s.readings.ListByWorker(ctx, w.ID, limit)
	if err != nil {
		return nil, apperr.Internal("Failed to load sensor data", err)
	}
	if out == nil {
		out = []models.SensorReading{}
	}
	return out, nil
}

func (s *WorkerService) SetActive(ctx context.Context, caller authz.Caller, workerID string, active bool) (models.Worker, error) {
	if _, err := s.Authorize(ctx, caller, authz.ActionToggleWorker, workerID); err != nil {
		return models.Worker{}, err
	}
	w, err := s.workers.SetActive(ctx, workerID, active)
	if err != nil {
		if errors.Is(err, repository.ErrWorkerNotFound) {
			return models.Worker{}, apperr.NotFound("Worker not found")
		}
		return models.Worker{}, apperr.Internal("Failed to update worker", err)
	}
	s.log.Info().
		Str("worker_id", w.ID).
		Str("worker_code", w.WorkerCode).
		Bool("is_active", active).
		Str("caller_id", caller.PrincipalID).
		Msg("worker active flag changed")
	return w, nil
}

func (s *WorkerService) Supervisors(ctx context.Context) ([]models.Supervisor, error) {
	out, err := s.supervisors.List(ctx)
	if err != nil {
		return nil, apperr.Internal("Failed to list supervisors", err)
	}
	if out == nil {
		out = []models.Supervisor{}
	}
	return out, nil
}
