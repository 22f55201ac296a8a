package store

import (
	"context"
	"errors"
	"time"

	"bountyexpo/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update finds an unexpected current state.
	ErrConflict = errors.New("state changed concurrently")
	// ErrDuplicate is returned when a uniqueness rule would be violated.
	ErrDuplicate = errors.New("duplicate")
)

// Store is the persistence capability. Status changes are conditional on the
// expected current status, and each Commit* call applies all its writes or none.
type Store interface {
	CreateBounty(ctx context.Context, b *model.Bounty) error
	GetBounty(ctx context.Context, id string) (*model.Bounty, error)
	ListBountiesByPoster(ctx context.Context, posterID string, includeHidden bool) ([]*model.Bounty, error)
	ListBountiesByStatus(ctx context.Context, status model.BountyStatus) ([]*model.Bounty, error)
	UpdateBountyStatus(ctx context.Context, id string, expected, next model.BountyStatus) error
	HideBounty(ctx context.Context, id string, at time.Time) error

	CreateRequest(ctx context.Context, r *model.BountyRequest) error
	GetRequest(ctx context.Context, id string) (*model.BountyRequest, error)
	FindRequest(ctx context.Context, bountyID, hunterID string) (*model.BountyRequest, error)
	ListRequests(ctx context.Context, bountyID string) ([]*model.BountyRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, expected, next model.RequestStatus) error

	CreateSubmission(ctx context.Context, s *model.CompletionSubmission) error
	GetSubmission(ctx context.Context, id string) (*model.CompletionSubmission, error)
	GetPendingSubmission(ctx context.Context, bountyID string) (*model.CompletionSubmission, error)
	GetLatestSubmission(ctx context.Context, bountyID string) (*model.CompletionSubmission, error)
	ListSubmissions(ctx context.Context, bountyID string) ([]*model.CompletionSubmission, error)
	UpdateSubmissionReview(ctx context.Context, p ReviewUpdate) error

	GetEscrow(ctx context.Context, bountyID string) (*model.Escrow, error)
	ListEscrowsByStatus(ctx context.Context, status model.EscrowStatus) ([]*model.Escrow, error)

	RecordTransaction(ctx context.Context, tx *model.WalletTransaction) error
	ListTransactionsByUser(ctx context.Context, userID string) ([]*model.WalletTransaction, error)
	ListTransactionsByBounty(ctx context.Context, bountyID string) ([]*model.WalletTransaction, error)

	CommitAcceptance(ctx context.Context, c AcceptanceCommit) error
	CommitApproval(ctx context.Context, c ApprovalCommit) error
	CommitRejection(ctx context.Context, c RejectionCommit) error
	CommitCancellation(ctx context.Context, c CancellationCommit) error

	CreateIncident(ctx context.Context, i *model.Incident) error
	GetIncident(ctx context.Context, id string) (*model.Incident, error)
	ListIncidents(ctx context.Context, openOnly bool) ([]*model.Incident, error)
	ResolveIncident(ctx context.Context, id, resolution string, at time.Time) error
}

// ReviewUpdate moves a submission out of Expected without touching the bounty.
type ReviewUpdate struct {
	SubmissionID  string
	Expected      model.SubmissionStatus
	Next          model.SubmissionStatus
	Feedback      *string
	RevisionCount int
	ReviewedAt    time.Time
}

// AcceptanceCommit assigns a hunter: bounty open -> in_progress, request
// pending -> accepted, other pending requests -> rejected, escrow held.
type AcceptanceCommit struct {
	BountyID    string
	RequestID   string
	HunterID    string
	Escrow      *model.Escrow
	Transaction *model.WalletTransaction
	At          time.Time
}

// ApprovalCommit completes a bounty: submission pending -> approved,
// bounty in_progress -> completed, escrow held -> released.
type ApprovalCommit struct {
	SubmissionID string
	BountyID     string
	Feedback     *string
	EscrowID     string
	TransferID   string
	Transaction  *model.WalletTransaction
	At           time.Time
}

// RejectionCommit reopens a bounty: submission pending -> rejected,
// bounty in_progress -> open with no hunter, accepted request -> rejected,
// escrow held -> refunded.
type RejectionCommit struct {
	SubmissionID string
	BountyID     string
	Reason       string
	EscrowID     string
	RefundID     string
	Transaction  *model.WalletTransaction
	At           time.Time
}

// CancellationCommit archives a bounty from From. Pending submissions are
// rejected with Feedback and open requests are rejected.
type CancellationCommit struct {
	BountyID    string
	From        model.BountyStatus
	Feedback    string
	EscrowID    string
	RefundID    string
	Transaction *model.WalletTransaction
	At          time.Time
}
