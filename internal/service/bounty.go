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

const cancelledFeedback = "bounty cancelled"

type BountyService struct {
	store  store.Store
	escrow *EscrowCoordinator
	locker lock.Locker
	bus    EventBus
	log    *zap.Logger
}

func NewBountyService(st store.Store, escrow *EscrowCoordinator, locker lock.Locker, bus EventBus, log *zap.Logger) *BountyService {
	if bus == nil {
		bus = nopBus{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BountyService{
		store:  st,
		escrow: escrow,
		locker: locker,
		bus:    bus,
		log:    log,
	}
}

type CreateBountyInput struct {
	PosterID    string `json:"-"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency,omitempty"`
	IsForHonor  bool   `json:"isForHonor"`
}

func (s *BountyService) Create(ctx context.Context, input CreateBountyInput) (*model.Bounty, error) {
	const op = "bounty.create"
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperr.Validationf(op, "title is required")
	}
	if input.PosterID == "" {
		return nil, apperr.Forbidden(op, "a poster is required")
	}
	amount := input.AmountCents
	if input.IsForHonor {
		amount = 0
	} else if amount <= 0 {
		return nil, apperr.Validationf(op, "paid bounties need a positive amount")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, apperr.Validationf(op, "currency must be a 3-letter ISO code")
	}

	now := time.Now().UTC()
	b := &model.Bounty{
		ID:          ulid.Make().String(),
		PosterID:    input.PosterID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		AmountCents: amount,
		Currency:    currency,
		IsForHonor:  input.IsForHonor,
		Status:      model.BountyStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateBounty(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create bounty: %w", err)
	}

	_ = s.bus.PublishUser(b.PosterID, map[string]interface{}{
		"type":     "bounty.created",
		"bountyId": b.ID,
	})
	return b, nil
}

func (s *BountyService) Get(ctx context.Context, id string) (*model.Bounty, error) {
	b, err := s.store.GetBounty(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("bounty.get", "bounty %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bounty: %w", err)
	}
	return b, nil
}

func (s *BountyService) ListByPoster(ctx context.Context, posterID string, includeHidden bool) ([]*model.Bounty, error) {
	bounties, err := s.store.ListBountiesByPoster(ctx, posterID, includeHidden)
	if err != nil {
		return nil, fmt.Errorf("failed to list bounties: %w", err)
	}
	return bounties, nil
}

// Browse lists visible bounties in one status, oldest first.
func (s *BountyService) Browse(ctx context.Context, status model.BountyStatus) ([]*model.Bounty, error) {
	bounties, err := s.store.ListBountiesByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list bounties: %w", err)
	}
	visible := bounties[:0]
	for _, b := range bounties {
		if b.DeletedAt == nil {
			visible = append(visible, b)
		}
	}
	return visible, nil
}

// Transition applies archive or cancel on behalf of the poster. Accept,
// complete and reopen only happen through requests and submission review.
func (s *BountyService) Transition(ctx context.Context, id, actorID string, t lifecycle.Transition, idempotencyKey string) (*model.Bounty, error) {
	op := "bounty." + string(t)
	switch t {
	case lifecycle.TransitionAccept:
		return nil, apperr.Validationf(op, "bounties are accepted by accepting a hunter's request")
	case lifecycle.TransitionComplete:
		return nil, apperr.Validationf(op, "bounties are completed by approving a completion submission")
	case lifecycle.TransitionReopen:
		return nil, apperr.Validationf(op, "bounties are reopened by rejecting a completion submission")
	}

	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.PosterID != actorID {
		return nil, apperr.Forbidden(op, "only the poster can change the bounty status")
	}

	unlock, err := s.locker.Lock(ctx, bountyLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock bounty: %w", err)
	}
	defer unlock()

	if b, err = s.Get(ctx, id); err != nil {
		return nil, err
	}
	res := lifecycle.Validate(b.Status, t)
	if !res.Legal {
		return nil, apperr.Validationf(op, "%s", res.Reason)
	}

	switch b.Status {
	case model.BountyStatusCompleted:
		err = s.store.UpdateBountyStatus(ctx, id, b.Status, res.NewStatus)
	case model.BountyStatusOpen:
		err = s.store.CommitCancellation(ctx, store.CancellationCommit{
			BountyID: id,
			From:     b.Status,
			Feedback: cancelledFeedback,
			At:       time.Now().UTC(),
		})
	default:
		err = s.escrow.Refund(ctx, RefundInput{Bounty: b, IdempotencyKey: idempotencyKey}, func(ctx context.Context, st Settlement) error {
			c := store.CancellationCommit{
				BountyID:    id,
				From:        b.Status,
				Feedback:    cancelledFeedback,
				Transaction: st.Transaction,
				RefundID:    st.ProcessorRef,
				At:          time.Now().UTC(),
			}
			if st.Escrow != nil {
				c.EscrowID = st.Escrow.ID
			}
			return s.store.CommitCancellation(ctx, c)
		})
	}
	if err != nil {
		return nil, commitError(op, err)
	}

	s.log.Info("Bounty transitioned",
		zap.String("bounty_id", id),
		zap.String("from", string(b.Status)),
		zap.String("to", string(res.NewStatus)),
	)
	event := map[string]interface{}{
		"type":     "bounty." + string(res.NewStatus),
		"bountyId": id,
		"from":     b.Status,
		"via":      t,
	}
	_ = s.bus.PublishBounty(id, event)
	if hunter := b.AssignedHunter(); hunter != "" {
		_ = s.bus.PublishUser(hunter, event)
	}
	return s.Get(ctx, id)
}

// Hide removes the bounty from the poster's primary views. Status is untouched.
func (s *BountyService) Hide(ctx context.Context, id, actorID string) error {
	const op = "bounty.hide"
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.PosterID != actorID {
		return apperr.Forbidden(op, "only the poster can hide a bounty")
	}
	if err := s.store.HideBounty(ctx, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to hide bounty: %w", err)
	}
	return nil
}

func bountyLockKey(id string) string {
	return "bounty:" + id
}

// commitError maps store sentinel errors to the service taxonomy. Errors that
// already carry a kind pass through.
func commitError(op string, err error) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrDuplicate):
		return &apperr.Error{Kind: apperr.KindConflict, Op: op, Message: "state changed concurrently; refresh and retry", Err: err}
	case errors.Is(err, store.ErrNotFound):
		return &apperr.Error{Kind: apperr.KindNotFound, Op: op, Message: "record no longer exists", Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
