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

// DefaultRevisionLimit caps how many times a poster may send work back.
const DefaultRevisionLimit = 3

// ProofChecker normalizes and validates proof attachments.
type ProofChecker interface {
	CheckProof(ctx context.Context, items []model.ProofItem) ([]model.ProofItem, error)
}

// CompletionService runs the submit and review cycle that gates completion.
type CompletionService struct {
	store         store.Store
	escrow        *EscrowCoordinator
	locker        lock.Locker
	proofs        ProofChecker
	bus           EventBus
	jobClient     JobClient
	revisionLimit int
	log           *zap.Logger
}

func NewCompletionService(st store.Store, escrow *EscrowCoordinator, locker lock.Locker, proofs ProofChecker, bus EventBus, log *zap.Logger) *CompletionService {
	if bus == nil {
		bus = nopBus{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CompletionService{
		store:         st,
		escrow:        escrow,
		locker:        locker,
		proofs:        proofs,
		bus:           bus,
		revisionLimit: DefaultRevisionLimit,
		log:           log,
	}
}

// SetRevisionLimit overrides the revision cap. Values below 1 are ignored.
func (s *CompletionService) SetRevisionLimit(n int) {
	if n > 0 {
		s.revisionLimit = n
	}
}

// SetJobClient sets the job client for out-of-band notifications
func (s *CompletionService) SetJobClient(client JobClient) {
	s.jobClient = client
}

type SubmitInput struct {
	BountyID   string            `json:"-"`
	HunterID   string            `json:"-"`
	Message    string            `json:"message"`
	ProofItems []model.ProofItem `json:"proofItems"`
}

// Submit records a completion claim. If one is already pending it is
// returned with created=false.
func (s *CompletionService) Submit(ctx context.Context, input SubmitInput) (*model.CompletionSubmission, bool, error) {
	const op = "submission.submit"
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, false, apperr.Validationf(op, "a message describing the completed work is required")
	}

	b, err := s.getBounty(ctx, op, input.BountyID)
	if err != nil {
		return nil, false, err
	}
	if b.AssignedHunter() == "" || b.AssignedHunter() != input.HunterID {
		return nil, false, apperr.Forbidden(op, "only the assigned hunter can submit completion")
	}

	proofs := input.ProofItems
	if proofs == nil {
		proofs = []model.ProofItem{}
	}
	if s.proofs != nil && len(proofs) > 0 {
		if proofs, err = s.proofs.CheckProof(ctx, proofs); err != nil {
			return nil, false, apperr.Validationf(op, "invalid proof: %v", err)
		}
	}

	unlock, err := s.locker.Lock(ctx, bountyLockKey(b.ID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock bounty: %w", err)
	}
	defer unlock()

	if pending, err := s.store.GetPendingSubmission(ctx, b.ID); err == nil {
		return pending, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up pending submission: %w", err)
	}

	if b, err = s.getBounty(ctx, op, b.ID); err != nil {
		return nil, false, err
	}
	if b.Status != model.BountyStatusInProgress {
		return nil, false, apperr.Validationf(op, "bounty is %s; completion can only be submitted while in progress", b.Status)
	}
	if b.AssignedHunter() != input.HunterID {
		return nil, false, apperr.Forbidden(op, "only the assigned hunter can submit completion")
	}

	revisions := 0
	if latest, err := s.store.GetLatestSubmission(ctx, b.ID); err == nil && latest.HunterID == input.HunterID {
		revisions = latest.RevisionCount
	}

	sub := &model.CompletionSubmission{
		ID:            ulid.Make().String(),
		BountyID:      b.ID,
		HunterID:      input.HunterID,
		Message:       message,
		ProofItems:    proofs,
		Status:        model.SubmissionStatusPending,
		RevisionCount: revisions,
		SubmittedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			if pending, findErr := s.store.GetPendingSubmission(ctx, b.ID); findErr == nil {
				return pending, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create submission: %w", err)
	}

	event := map[string]interface{}{
		"type":          "submission.created",
		"bountyId":      b.ID,
		"submissionId":  sub.ID,
		"without_proof": len(proofs) == 0,
	}
	_ = s.bus.PublishBounty(b.ID, event)
	s.notify(b.PosterID, event)
	return sub, true, nil
}

// Approve releases escrow to the hunter and completes the bounty. Retrying
// an approved submission returns it unchanged.
func (s *CompletionService) Approve(ctx context.Context, submissionID, posterID string, feedback *string, idempotencyKey string) (*model.CompletionSubmission, error) {
	const op = "submission.approve"
	sub, b, unlock, err := s.beginReview(ctx, op, submissionID, posterID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if sub.Status == model.SubmissionStatusApproved {
		return sub, nil
	}
	if _, err := lifecycle.ValidateReview(sub.Status, lifecycle.ReviewApprove); err != nil {
		return nil, apperr.Conflictf(op, "%v", err)
	}
	if res := lifecycle.Validate(b.Status, lifecycle.TransitionComplete); !res.Legal {
		return nil, apperr.Validationf(op, "%s", res.Reason)
	}
	if feedback != nil {
		trimmed := strings.TrimSpace(*feedback)
		feedback = &trimmed
		if trimmed == "" {
			feedback = nil
		}
	}

	err = s.escrow.Release(ctx, ReleaseInput{
		Bounty:         b,
		SubmissionID:   sub.ID,
		IdempotencyKey: idempotencyKey,
	}, func(ctx context.Context, st Settlement) error {
		c := store.ApprovalCommit{
			SubmissionID: sub.ID,
			BountyID:     b.ID,
			Feedback:     feedback,
			TransferID:   st.ProcessorRef,
			Transaction:  st.Transaction,
			At:           time.Now().UTC(),
		}
		if st.Escrow != nil {
			c.EscrowID = st.Escrow.ID
		}
		return s.store.CommitApproval(ctx, c)
	})
	if err != nil {
		return nil, commitError(op, err)
	}

	s.log.Info("Submission approved", zap.String("bounty_id", b.ID), zap.String("submission_id", sub.ID))
	event := map[string]interface{}{
		"type":         "submission.approved",
		"bountyId":     b.ID,
		"submissionId": sub.ID,
	}
	_ = s.bus.PublishBounty(b.ID, event)
	_ = s.bus.PublishBounty(b.ID, map[string]interface{}{"type": "bounty.completed", "bountyId": b.ID})
	s.notify(sub.HunterID, event)
	return s.get(ctx, op, sub.ID)
}

// Reject refunds the poster and reopens the bounty for new hunters.
func (s *CompletionService) Reject(ctx context.Context, submissionID, posterID, reason, idempotencyKey string) (*model.CompletionSubmission, error) {
	const op = "submission.reject"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validationf(op, "a reason is required to reject a submission")
	}

	sub, b, unlock, err := s.beginReview(ctx, op, submissionID, posterID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if sub.Status == model.SubmissionStatusRejected {
		return sub, nil
	}
	if _, err := lifecycle.ValidateReview(sub.Status, lifecycle.ReviewReject); err != nil {
		return nil, apperr.Conflictf(op, "%v", err)
	}
	if res := lifecycle.Validate(b.Status, lifecycle.TransitionReopen); !res.Legal {
		return nil, apperr.Validationf(op, "%s", res.Reason)
	}

	err = s.escrow.Refund(ctx, RefundInput{Bounty: b, IdempotencyKey: idempotencyKey}, func(ctx context.Context, st Settlement) error {
		c := store.RejectionCommit{
			SubmissionID: sub.ID,
			BountyID:     b.ID,
			Reason:       reason,
			RefundID:     st.ProcessorRef,
			Transaction:  st.Transaction,
			At:           time.Now().UTC(),
		}
		if st.Escrow != nil {
			c.EscrowID = st.Escrow.ID
		}
		return s.store.CommitRejection(ctx, c)
	})
	if err != nil {
		return nil, commitError(op, err)
	}

	s.log.Info("Submission rejected", zap.String("bounty_id", b.ID), zap.String("submission_id", sub.ID))
	event := map[string]interface{}{
		"type":         "submission.rejected",
		"bountyId":     b.ID,
		"submissionId": sub.ID,
		"reason":       reason,
	}
	_ = s.bus.PublishBounty(b.ID, event)
	_ = s.bus.PublishBounty(b.ID, map[string]interface{}{"type": "bounty.open", "bountyId": b.ID})
	s.notify(sub.HunterID, event)
	return s.get(ctx, op, sub.ID)
}

// RequestRevision sends the work back to the hunter. The bounty and escrow
// are untouched.
func (s *CompletionService) RequestRevision(ctx context.Context, submissionID, posterID, feedback string) (*model.CompletionSubmission, error) {
	const op = "submission.request_revision"
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, apperr.Validationf(op, "feedback is required when requesting a revision")
	}

	sub, b, unlock, err := s.beginReview(ctx, op, submissionID, posterID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if sub.Status == model.SubmissionStatusRevisionRequested && sub.PosterFeedback != nil && *sub.PosterFeedback == feedback {
		return sub, nil
	}
	if _, err := lifecycle.ValidateReview(sub.Status, lifecycle.ReviewRequestRevision); err != nil {
		return nil, apperr.Conflictf(op, "%v", err)
	}
	if sub.RevisionCount >= s.revisionLimit {
		return nil, apperr.Validationf(op, "revision limit of %d reached; approve or reject the submission", s.revisionLimit)
	}

	err = s.store.UpdateSubmissionReview(ctx, store.ReviewUpdate{
		SubmissionID:  sub.ID,
		Expected:      model.SubmissionStatusPending,
		Next:          model.SubmissionStatusRevisionRequested,
		Feedback:      &feedback,
		RevisionCount: sub.RevisionCount + 1,
		ReviewedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, commitError(op, err)
	}

	event := map[string]interface{}{
		"type":          "submission.revision_requested",
		"bountyId":      b.ID,
		"submissionId":  sub.ID,
		"revisionCount": sub.RevisionCount + 1,
	}
	_ = s.bus.PublishBounty(b.ID, event)
	s.notify(sub.HunterID, event)
	return s.get(ctx, op, sub.ID)
}

func (s *CompletionService) Get(ctx context.Context, submissionID string) (*model.CompletionSubmission, error) {
	return s.get(ctx, "submission.get", submissionID)
}

func (s *CompletionService) List(ctx context.Context, bountyID string) ([]*model.CompletionSubmission, error) {
	subs, err := s.store.ListSubmissions(ctx, bountyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

// beginReview loads the submission, checks the poster and takes the bounty
// lock. Data is re-read under the lock.
func (s *CompletionService) beginReview(ctx context.Context, op, submissionID, posterID string) (*model.CompletionSubmission, *model.Bounty, func(), error) {
	sub, err := s.get(ctx, op, submissionID)
	if err != nil {
		return nil, nil, nil, err
	}
	b, err := s.getBounty(ctx, op, sub.BountyID)
	if err != nil {
		return nil, nil, nil, err
	}
	if b.PosterID != posterID {
		return nil, nil, nil, apperr.Forbidden(op, "only the poster can review submissions")
	}

	unlock, err := s.locker.Lock(ctx, bountyLockKey(b.ID))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to lock bounty: %w", err)
	}
	if sub, err = s.get(ctx, op, submissionID); err != nil {
		unlock()
		return nil, nil, nil, err
	}
	if b, err = s.getBounty(ctx, op, sub.BountyID); err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return sub, b, unlock, nil
}

func (s *CompletionService) get(ctx context.Context, op, id string) (*model.CompletionSubmission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf(op, "submission %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

func (s *CompletionService) getBounty(ctx context.Context, op, id string) (*model.Bounty, error) {
	b, err := s.store.GetBounty(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf(op, "bounty %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bounty: %w", err)
	}
	return b, nil
}

func (s *CompletionService) notify(userID string, event map[string]interface{}) {
	_ = s.bus.PublishUser(userID, event)
	if s.jobClient != nil {
		if err := s.jobClient.EnqueueNotification(userID, event); err != nil {
			s.log.Warn("Failed to enqueue notification", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
