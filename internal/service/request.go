package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bountyexpo/internal/apperr"
	"bountyexpo/internal/lifecycle"
	"bountyexpo/internal/lock"
	"bountyexpo/internal/model"
	"bountyexpo/internal/store"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// RequestService handles hunters applying for bounties and posters picking one.
type RequestService struct {
	store     store.Store
	escrow    *EscrowCoordinator
	locker    lock.Locker
	bus       EventBus
	jobClient JobClient
	log       *zap.Logger
}

func NewRequestService(st store.Store, escrow *EscrowCoordinator, locker lock.Locker, bus EventBus, log *zap.Logger) *RequestService {
	if bus == nil {
		bus = nopBus{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RequestService{
		store:  st,
		escrow: escrow,
		locker: locker,
		bus:    bus,
		log:    log,
	}
}

// SetJobClient sets the job client for out-of-band notifications
func (s *RequestService) SetJobClient(client JobClient) {
	s.jobClient = client
}

// Apply creates a pending request. An existing request by the same hunter is
// returned with created=false.
func (s *RequestService) Apply(ctx context.Context, bountyID, hunterID, message string) (*model.BountyRequest, bool, error) {
	const op = "request.apply"
	b, err := s.store.GetBounty(ctx, bountyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, apperr.NotFoundf(op, "bounty %s not found", bountyID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get bounty: %w", err)
	}
	if hunterID == "" || b.PosterID == hunterID {
		return nil, false, apperr.Forbidden(op, "posters cannot apply to their own bounty")
	}

	if existing, err := s.store.FindRequest(ctx, bountyID, hunterID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up request: %w", err)
	}

	if b.Status != model.BountyStatusOpen {
		return nil, false, apperr.Validationf(op, "bounty is %s and no longer takes applications", b.Status)
	}

	now := time.Now().UTC()
	r := &model.BountyRequest{
		ID:        ulid.Make().String(),
		BountyID:  bountyID,
		HunterID:  hunterID,
		Message:   strings.TrimSpace(message),
		Status:    model.RequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRequest(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			existing, findErr := s.store.FindRequest(ctx, bountyID, hunterID)
			if findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	s.notify(b.PosterID, map[string]interface{}{
		"type":      "request.created",
		"bountyId":  bountyID,
		"requestId": r.ID,
		"hunterId":  hunterID,
	})
	return r, true, nil
}

// Accept assigns the request's hunter to the bounty and holds the reward.
// Exactly one concurrent accept per bounty can win.
func (s *RequestService) Accept(ctx context.Context, requestID, posterID, idempotencyKey string) (*model.Bounty, error) {
	const op = "request.accept"
	r, b, err := s.load(ctx, op, requestID, posterID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, bountyLockKey(b.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock bounty: %w", err)
	}
	defer unlock()

	if r, b, err = s.load(ctx, op, requestID, posterID); err != nil {
		return nil, err
	}
	if b.Status == model.BountyStatusInProgress {
		if r.Status == model.RequestStatusAccepted && b.AssignedHunter() == r.HunterID {
			return b, nil
		}
		return nil, apperr.Conflictf(op, "bounty already accepted another hunter")
	}
	if res := lifecycle.Validate(b.Status, lifecycle.TransitionAccept); !res.Legal {
		return nil, apperr.Validationf(op, "%s", res.Reason)
	}
	if r.Status != model.RequestStatusPending {
		return nil, apperr.Conflictf(op, "request is already %s", r.Status)
	}

	err = s.escrow.Hold(ctx, HoldInput{
		Bounty:         b,
		RequestID:      r.ID,
		HunterID:       r.HunterID,
		IdempotencyKey: idempotencyKey,
	}, func(ctx context.Context, st Settlement) error {
		return s.store.CommitAcceptance(ctx, store.AcceptanceCommit{
			BountyID:    b.ID,
			RequestID:   r.ID,
			HunterID:    r.HunterID,
			Escrow:      st.Escrow,
			Transaction: st.Transaction,
			At:          time.Now().UTC(),
		})
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindFatal && errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflictf(op, "bounty already accepted another hunter")
		}
		return nil, commitError(op, err)
	}

	s.log.Info("Request accepted",
		zap.String("bounty_id", b.ID),
		zap.String("request_id", r.ID),
		zap.String("hunter_id", r.HunterID),
	)
	_ = s.bus.PublishBounty(b.ID, map[string]interface{}{
		"type":      "bounty.in_progress",
		"bountyId":  b.ID,
		"requestId": r.ID,
		"hunterId":  r.HunterID,
	})
	s.notify(r.HunterID, map[string]interface{}{
		"type":      "request.accepted",
		"bountyId":  b.ID,
		"requestId": r.ID,
	})

	accepted, err := s.store.GetBounty(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload bounty: %w", err)
	}
	return accepted, nil
}

// Decline rejects a pending request without touching the bounty.
func (s *RequestService) Decline(ctx context.Context, requestID, posterID string) (*model.BountyRequest, error) {
	const op = "request.decline"
	r, _, err := s.load(ctx, op, requestID, posterID)
	if err != nil {
		return nil, err
	}
	if r.Status == model.RequestStatusRejected {
		return r, nil
	}
	if r.Status != model.RequestStatusPending {
		return nil, apperr.Conflictf(op, "request is already %s", r.Status)
	}
	if err := s.store.UpdateRequestStatus(ctx, r.ID, model.RequestStatusPending, model.RequestStatusRejected); err != nil {
		return nil, commitError(op, err)
	}
	r.Status = model.RequestStatusRejected

	s.notify(r.HunterID, map[string]interface{}{
		"type":      "request.rejected",
		"bountyId":  r.BountyID,
		"requestId": r.ID,
	})
	return r, nil
}

func (s *RequestService) List(ctx context.Context, bountyID string) ([]*model.BountyRequest, error) {
	requests, err := s.store.ListRequests(ctx, bountyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return requests, nil
}

func (s *RequestService) load(ctx context.Context, op, requestID, posterID string) (*model.BountyRequest, *model.Bounty, error) {
	r, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.NotFoundf(op, "request %s not found", requestID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get request: %w", err)
	}
	b, err := s.store.GetBounty(ctx, r.BountyID)
	if err != nil {
		return nil, nil, commitError(op, err)
	}
	if b.PosterID != posterID {
		return nil, nil, apperr.Forbidden(op, "only the poster can decide on requests")
	}
	return r, b, nil
}

// notify publishes to the user channel and queues a push fan-out when jobs are available.
func (s *RequestService) notify(userID string, event map[string]interface{}) {
	_ = s.bus.PublishUser(userID, event)
	if s.jobClient != nil {
		if err := s.jobClient.EnqueueNotification(userID, event); err != nil {
			s.log.Warn("Failed to enqueue notification", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
