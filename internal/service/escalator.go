package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bountyexpo/internal/apperr"
	"bountyexpo/internal/model"
	"bountyexpo/internal/store"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Escalator records states that need manual reconciliation and hands them to support.
type Escalator struct {
	store     store.Store
	jobClient JobClient
	log       *zap.Logger
}

func NewEscalator(st store.Store, log *zap.Logger) *Escalator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Escalator{store: st, log: log}
}

// SetJobClient sets the job client used to notify support
func (e *Escalator) SetJobClient(client JobClient) {
	e.jobClient = client
}

// Escalate persists an incident and queues its escalation. It runs on a
// detached context so a cancelled caller cannot drop the record.
func (e *Escalator) Escalate(ctx context.Context, bountyID, op, detail string) *model.Incident {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	incident := &model.Incident{
		ID:        ulid.Make().String(),
		BountyID:  bountyID,
		Operation: op,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}

	e.log.Error("Manual reconciliation required",
		zap.String("incident_id", incident.ID),
		zap.String("bounty_id", bountyID),
		zap.String("op", op),
		zap.String("detail", detail),
	)

	if err := e.store.CreateIncident(ctx, incident); err != nil {
		e.log.Error("Failed to persist incident", zap.String("incident_id", incident.ID), zap.Error(err))
	}
	if e.jobClient != nil {
		if err := e.jobClient.EnqueueIncidentEscalation(incident.ID); err != nil {
			e.log.Error("Failed to enqueue incident escalation", zap.String("incident_id", incident.ID), zap.Error(err))
		}
	}
	return incident
}

// Fatal escalates cause and returns the fatal error surfaced to the caller.
func (e *Escalator) Fatal(ctx context.Context, bountyID, op, message string, cause error) error {
	incident := e.Escalate(ctx, bountyID, op, fmt.Sprintf("%s: %v", message, cause))
	return &apperr.Error{
		Kind:    apperr.KindFatal,
		Op:      op,
		Message: fmt.Sprintf("%s (incident %s)", message, incident.ID),
		Err:     cause,
	}
}

// IncidentService lets operators review and close incidents.
type IncidentService struct {
	store store.Store
	log   *zap.Logger
}

func NewIncidentService(st store.Store, log *zap.Logger) *IncidentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IncidentService{store: st, log: log}
}

func (s *IncidentService) List(ctx context.Context, openOnly bool) ([]*model.Incident, error) {
	incidents, err := s.store.ListIncidents(ctx, openOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, nil
}

func (s *IncidentService) Resolve(ctx context.Context, id, resolution string) error {
	const op = "incident.resolve"
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return apperr.Validationf(op, "resolution note is required")
	}
	err := s.store.ResolveIncident(ctx, id, resolution, time.Now().UTC())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFoundf(op, "incident %s not found", id)
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflictf(op, "incident %s is already resolved", id)
	case err != nil:
		return fmt.Errorf("failed to resolve incident: %w", err)
	}
	s.log.Info("Incident resolved", zap.String("incident_id", id))
	return nil
}
