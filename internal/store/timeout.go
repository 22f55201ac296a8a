package store

import (
	"context"
	"time"

	"bountyexpo/internal/model"
)

// WithTimeout bounds every call to next by d.
func WithTimeout(next Store, d time.Duration) Store {
	if d <= 0 {
		return next
	}
	return &timeoutStore{next: next, d: d}
}

type timeoutStore struct {
	next Store
	d    time.Duration
}

func (t *timeoutStore) CreateBounty(ctx context.Context, b *model.Bounty) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.CreateBounty(ctx, b)
}

func (t *timeoutStore) GetBounty(ctx context.Context, id string) (*model.Bounty, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GetBounty(ctx, id)
}

func (t *timeoutStore) ListBountiesByPoster(ctx context.Context, posterID string, includeHidden bool) ([]*model.Bounty, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ListBountiesByPoster(ctx, posterID, includeHidden)
}

func (t *timeoutStore) ListBountiesByStatus(ctx context.Context, status model.BountyStatus) ([]*model.Bounty, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ListBountiesByStatus(ctx, status)
}

func (t *timeoutStore) UpdateBountyStatus(ctx context.Context, id string, expected, next model.BountyStatus) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.UpdateBountyStatus(ctx, id, expected, next)
}

func (t *timeoutStore) HideBounty(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.HideBounty(ctx, id, at)
}

func (t *timeoutStore) CreateRequest(ctx context.Context, r *model.BountyRequest) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.CreateRequest(ctx, r)
}

func (t *timeoutStore) GetRequest(ctx context.Context, id string) (*model.BountyRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GetRequest(ctx, id)
}

func (t *timeoutStore) FindRequest(ctx context.Context, bountyID, hunterID string) (*model.BountyRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.FindRequest(ctx, bountyID, hunterID)
}

func (t *timeoutStore) ListRequests(ctx context.Context, bountyID string) ([]*model.BountyRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ListRequests(ctx, bountyID)
}

func (t *timeoutStore) UpdateRequestStatus(ctx context.Context, id string, expected, next model.RequestStatus) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.UpdateRequestStatus(ctx, id, expected, next)
}

func (t *timeoutStore) CreateSubmission(ctx context.Context, s *model.CompletionSubmission) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.CreateSubmission(ctx, s)
}

func (t *timeoutStore) GetSubmission(ctx context.Context, id string) (*model.CompletionSubmission, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GetSubmission(ctx, id)
}

func (t *timeoutStore) GetPendingSubmission(ctx context.Context, bountyID string) (*model.CompletionSubmission, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GetPendingSubmission(ctx, bountyID)
}

func (t *timeoutStore) GetLatestSubmission(ctx context.Context, bountyID string) (*model.CompletionSubmission, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GetLatestSubmission(ctx, bountyID)
}

func (t *timeoutStore) ListSubmissions(ctx context.Context, bountyID string) ([]*model.CompletionSubmission, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ListSubmissions(ctx, bountyID)
}

func (t *timeoutStore) UpdateSubmissionReview(ctx context.Context, p ReviewUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.UpdateSubmissionReview(ctx, p)
}

func (t *timeoutStore) GetEscrow(ctx context.Context, bountyID string) (*model.Escrow, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GetEscrow(ctx, bountyID)
}

func (t *timeoutStore) ListEscrowsByStatus(ctx context.Context, status model.EscrowStatus) ([]*model.Escrow, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ListEscrowsByStatus(ctx, status)
}

func (t *timeoutStore) RecordTransaction(ctx context.Context, tx *model.WalletTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.RecordTransaction(ctx, tx)
}

func (t *timeoutStore) ListTransactionsByUser(ctx context.Context, userID string) ([]*model.WalletTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ListTransactionsByUser(ctx, userID)
}

func (t *timeoutStore) ListTransactionsByBounty(ctx context.Context, bountyID string) ([]*model.WalletTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ListTransactionsByBounty(ctx, bountyID)
}

func (t *timeoutStore) CommitAcceptance(ctx context.Context, c AcceptanceCommit) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.CommitAcceptance(ctx, c)
}

func (t *timeoutStore) CommitApproval(ctx context.Context, c ApprovalCommit) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.CommitApproval(ctx, c)
}

func (t *timeoutStore) CommitRejection(ctx context.Context, c RejectionCommit) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.CommitRejection(ctx, c)
}

func (t *timeoutStore) CommitCancellation(ctx context.Context, c CancellationCommit) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.CommitCancellation(ctx, c)
}

func (t *timeoutStore) CreateIncident(ctx context.Context, i *model.Incident) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.CreateIncident(ctx, i)
}

func (t *timeoutStore) GetIncident(ctx context.Context, id string) (*model.Incident, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GetIncident(ctx, id)
}

func (t *timeoutStore) ListIncidents(ctx context.Context, openOnly bool) ([]*model.Incident, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ListIncidents(ctx, openOnly)
}

func (t *timeoutStore) ResolveIncident(ctx context.Context, id, resolution string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.ResolveIncident(ctx, id, resolution, at)
}
