package model

import "time"

// BountyStatus represents bounty lifecycle status
type BountyStatus string

const (
	BountyStatusOpen       BountyStatus = "open"
	BountyStatusInProgress BountyStatus = "in_progress"
	BountyStatusCompleted  BountyStatus = "completed"
	BountyStatusArchived   BountyStatus = "archived"
	// BountyStatusDeleted only appears on legacy rows. Hiding a bounty sets DeletedAt instead.
	BountyStatusDeleted BountyStatus = "deleted"
)

// RequestStatus represents the status of a hunter's application
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// SubmissionStatus represents completion submission review status
type SubmissionStatus string

const (
	SubmissionStatusPending           SubmissionStatus = "pending"
	SubmissionStatusApproved          SubmissionStatus = "approved"
	SubmissionStatusRejected          SubmissionStatus = "rejected"
	SubmissionStatusRevisionRequested SubmissionStatus = "revision_requested"
)

// EscrowStatus represents the state of held funds
type EscrowStatus string

const (
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
)

// TransactionType represents a ledger entry kind
type TransactionType string

const (
	TransactionTypeEscrow     TransactionType = "escrow"
	TransactionTypeRelease    TransactionType = "release"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

// TransactionStatus represents ledger entry status
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// ProofType represents the kind of evidence attached to a submission
type ProofType string

const (
	ProofTypeImage ProofType = "image"
	ProofTypeFile  ProofType = "file"
)

// Bounty represents a task posted for hire
type Bounty struct {
	ID          string       `json:"id"`
	PosterID    string       `json:"posterId"`
	HunterID    *string      `json:"hunterId,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	AmountCents int64        `json:"amountCents"`
	Currency    string       `json:"currency"`
	IsForHonor  bool         `json:"isForHonor"`
	Status      BountyStatus `json:"status"`
	DeletedAt   *time.Time   `json:"deletedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// RequiresEscrow reports whether lifecycle changes on this bounty move money.
func (b *Bounty) RequiresEscrow() bool {
	return !b.IsForHonor && b.AmountCents > 0
}

// AssignedHunter returns the accepted hunter id or an empty string.
func (b *Bounty) AssignedHunter() string {
	if b.HunterID == nil {
		return ""
	}
	return *b.HunterID
}

// BountyRequest is a hunter's application to work on a bounty
type BountyRequest struct {
	ID        string        `json:"id"`
	BountyID  string        `json:"bountyId"`
	HunterID  string        `json:"hunterId"`
	Message   string        `json:"message,omitempty"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ProofItem is one piece of evidence attached to a completion submission
type ProofItem struct {
	ID   string    `json:"id"`
	Type ProofType `json:"type"`
	Name string    `json:"name"`
	URL  string    `json:"url,omitempty"`
	Size *int64    `json:"size,omitempty"`
	MIME string    `json:"mime,omitempty"`
}

// CompletionSubmission is a hunter's claim that the work is done
type CompletionSubmission struct {
	ID             string           `json:"id"`
	BountyID       string           `json:"bountyId"`
	HunterID       string           `json:"hunterId"`
	Message        string           `json:"message"`
	ProofItems     []ProofItem      `json:"proofItems"`
	Status         SubmissionStatus `json:"status"`
	PosterFeedback *string          `json:"posterFeedback,omitempty"`
	RevisionCount  int              `json:"revisionCount"`
	SubmittedAt    time.Time        `json:"submittedAt"`
	ReviewedAt     *time.Time       `json:"reviewedAt,omitempty"`
}

// Escrow represents funds held for one bounty
type Escrow struct {
	ID          string       `json:"id"`
	BountyID    string       `json:"bountyId"`
	PosterID    string       `json:"posterId"`
	HunterID    string       `json:"hunterId"`
	AmountCents int64        `json:"amountCents"`
	Currency    string       `json:"currency"`
	Status      EscrowStatus `json:"status"`
	HoldID      string       `json:"holdId"`
	TransferID  *string      `json:"transferId,omitempty"`
	RefundID    *string      `json:"refundId,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// WalletTransaction is an immutable ledger entry
type WalletTransaction struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	BountyID    *string           `json:"bountyId,omitempty"`
	Type        TransactionType   `json:"type"`
	AmountCents int64             `json:"amountCents"`
	Currency    string            `json:"currency"`
	Status      TransactionStatus `json:"status"`
	Reference   string            `json:"reference,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Incident records a state that needs manual reconciliation
type Incident struct {
	ID         string     `json:"id"`
	BountyID   string     `json:"bountyId"`
	Operation  string     `json:"operation"`
	Detail     string     `json:"detail"`
	Resolution *string    `json:"resolution,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}
