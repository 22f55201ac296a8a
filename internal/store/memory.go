package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bountyexpo/internal/model"
)

// Memory is an in-process Store. A single mutex makes every method atomic.
type Memory struct {
	mu           sync.Mutex
	bounties     map[string]*model.Bounty
	bountyOrder  []string
	requests     map[string]*model.BountyRequest
	requestOrder []string
	submissions  map[string]*model.CompletionSubmission
	subOrder     []string
	escrows      map[string]*model.Escrow
	escrowOrder  []string
	transactions []*model.WalletTransaction
	incidents    map[string]*model.Incident
	incOrder     []string
}

func NewMemory() *Memory {
	return &Memory{
		bounties:    make(map[string]*model.Bounty),
		requests:    make(map[string]*model.BountyRequest),
		submissions: make(map[string]*model.CompletionSubmission),
		escrows:     make(map[string]*model.Escrow),
		incidents:   make(map[string]*model.Incident),
	}
}

var _ Store = (*Memory)(nil)

func copyBounty(b *model.Bounty) *model.Bounty {
	c := *b
	if b.HunterID != nil {
		h := *b.HunterID
		c.HunterID = &h
	}
	if b.DeletedAt != nil {
		d := *b.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

func copySubmission(s *model.CompletionSubmission) *model.CompletionSubmission {
	c := *s
	c.ProofItems = append([]model.ProofItem(nil), s.ProofItems...)
	if s.PosterFeedback != nil {
		f := *s.PosterFeedback
		c.PosterFeedback = &f
	}
	if s.ReviewedAt != nil {
		r := *s.ReviewedAt
		c.ReviewedAt = &r
	}
	return &c
}

func copyEscrow(e *model.Escrow) *model.Escrow {
	c := *e
	return &c
}

func (m *Memory) CreateBounty(ctx context.Context, b *model.Bounty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bounties[b.ID]; ok {
		return fmt.Errorf("bounty %s: %w", b.ID, ErrDuplicate)
	}
	m.bounties[b.ID] = copyBounty(b)
	m.bountyOrder = append(m.bountyOrder, b.ID)
	return nil
}

func (m *Memory) GetBounty(ctx context.Context, id string) (*model.Bounty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bounties[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBounty(b), nil
}

func (m *Memory) ListBountiesByPoster(ctx context.Context, posterID string, includeHidden bool) ([]*model.Bounty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Bounty
	for i := len(m.bountyOrder) - 1; i >= 0; i-- {
		b := m.bounties[m.bountyOrder[i]]
		if b.PosterID != posterID || (!includeHidden && b.DeletedAt != nil) {
			continue
		}
		out = append(out, copyBounty(b))
	}
	return out, nil
}

func (m *Memory) ListBountiesByStatus(ctx context.Context, status model.BountyStatus) ([]*model.Bounty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Bounty
	for _, id := range m.bountyOrder {
		if b := m.bounties[id]; b.Status == status {
			out = append(out, copyBounty(b))
		}
	}
	return out, nil
}

func (m *Memory) UpdateBountyStatus(ctx context.Context, id string, expected, next model.BountyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bounties[id]
	if !ok {
		return ErrNotFound
	}
	if b.Status != expected {
		return ErrConflict
	}
	b.Status = next
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) HideBounty(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bounties[id]
	if !ok {
		return ErrNotFound
	}
	if b.DeletedAt == nil {
		b.DeletedAt = &at
		b.UpdatedAt = at
	}
	return nil
}

func (m *Memory) CreateRequest(ctx context.Context, r *model.BountyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.requests {
		if existing.BountyID == r.BountyID && existing.HunterID == r.HunterID {
			return fmt.Errorf("request for bounty %s by %s: %w", r.BountyID, r.HunterID, ErrDuplicate)
		}
	}
	c := *r
	m.requests[r.ID] = &c
	m.requestOrder = append(m.requestOrder, r.ID)
	return nil
}

func (m *Memory) GetRequest(ctx context.Context, id string) (*model.BountyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *Memory) FindRequest(ctx context.Context, bountyID, hunterID string) (*model.BountyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.BountyID == bountyID && r.HunterID == hunterID {
			c := *r
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListRequests(ctx context.Context, bountyID string) ([]*model.BountyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BountyRequest
	for _, id := range m.requestOrder {
		if r := m.requests[id]; r.BountyID == bountyID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) UpdateRequestStatus(ctx context.Context, id string, expected, next model.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != expected {
		return ErrConflict
	}
	r.Status = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) pendingSubmission(bountyID string) *model.CompletionSubmission {
	for _, s := range m.submissions {
		if s.BountyID == bountyID && s.Status == model.SubmissionStatusPending {
			return s
		}
	}
	return nil
}

func (m *Memory) CreateSubmission(ctx context.Context, s *model.CompletionSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Status == model.SubmissionStatusPending && m.pendingSubmission(s.BountyID) != nil {
		return fmt.Errorf("pending submission for bounty %s: %w", s.BountyID, ErrDuplicate)
	}
	m.submissions[s.ID] = copySubmission(s)
	m.subOrder = append(m.subOrder, s.ID)
	return nil
}

func (m *Memory) GetSubmission(ctx context.Context, id string) (*model.CompletionSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySubmission(s), nil
}

func (m *Memory) GetPendingSubmission(ctx context.Context, bountyID string) (*model.CompletionSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.pendingSubmission(bountyID); s != nil {
		return copySubmission(s), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) GetLatestSubmission(ctx context.Context, bountyID string) (*model.CompletionSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.subOrder) - 1; i >= 0; i-- {
		if s := m.submissions[m.subOrder[i]]; s.BountyID == bountyID {
			return copySubmission(s), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListSubmissions(ctx context.Context, bountyID string) ([]*model.CompletionSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CompletionSubmission
	for _, id := range m.subOrder {
		if s := m.submissions[id]; s.BountyID == bountyID {
			out = append(out, copySubmission(s))
		}
	}
	return out, nil
}

func (m *Memory) UpdateSubmissionReview(ctx context.Context, p ReviewUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[p.SubmissionID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != p.Expected {
		return ErrConflict
	}
	m.review(s, p.Next, p.Feedback, p.ReviewedAt)
	s.RevisionCount = p.RevisionCount
	return nil
}

func (m *Memory) review(s *model.CompletionSubmission, next model.SubmissionStatus, feedback *string, at time.Time) {
	s.Status = next
	if feedback != nil {
		f := *feedback
		s.PosterFeedback = &f
	}
	s.ReviewedAt = &at
}

func (m *Memory) latestEscrow(bountyID string) *model.Escrow {
	for i := len(m.escrowOrder) - 1; i >= 0; i-- {
		if e := m.escrows[m.escrowOrder[i]]; e.BountyID == bountyID {
			return e
		}
	}
	return nil
}

func (m *Memory) GetEscrow(ctx context.Context, bountyID string) (*model.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.latestEscrow(bountyID); e != nil {
		return copyEscrow(e), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) ListEscrowsByStatus(ctx context.Context, status model.EscrowStatus) ([]*model.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Escrow
	for _, id := range m.escrowOrder {
		if e := m.escrows[id]; e.Status == status {
			out = append(out, copyEscrow(e))
		}
	}
	return out, nil
}

func (m *Memory) RecordTransaction(ctx context.Context, tx *model.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendTransaction(tx)
	return nil
}

func (m *Memory) appendTransaction(tx *model.WalletTransaction) {
	if tx == nil {
		return
	}
	c := *tx
	m.transactions = append(m.transactions, &c)
}

func (m *Memory) ListTransactionsByUser(ctx context.Context, userID string) ([]*model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WalletTransaction
	for _, tx := range m.transactions {
		if tx.UserID == userID {
			c := *tx
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) ListTransactionsByBounty(ctx context.Context, bountyID string) ([]*model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WalletTransaction
	for _, tx := range m.transactions {
		if tx.BountyID != nil && *tx.BountyID == bountyID {
			c := *tx
			out = append(out, &c)
		}
	}
	return out, nil
}

// heldEscrow returns the held escrow with id, or nil when id is empty.
func (m *Memory) heldEscrow(bountyID, id string) (*model.Escrow, error) {
	if id == "" {
		return nil, nil
	}
	e, ok := m.escrows[id]
	if !ok || e.BountyID != bountyID {
		return nil, ErrNotFound
	}
	if e.Status != model.EscrowStatusHeld {
		return nil, ErrConflict
	}
	return e, nil
}

func (m *Memory) CommitAcceptance(ctx context.Context, c AcceptanceCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bounties[c.BountyID]
	if !ok {
		return ErrNotFound
	}
	r, ok := m.requests[c.RequestID]
	if !ok || r.BountyID != c.BountyID {
		return ErrNotFound
	}
	if b.Status != model.BountyStatusOpen || r.Status != model.RequestStatusPending {
		return ErrConflict
	}
	if c.Escrow != nil {
		if e := m.latestEscrow(c.BountyID); e != nil && e.Status == model.EscrowStatusHeld {
			return ErrConflict
		}
	}

	hunter := c.HunterID
	b.Status = model.BountyStatusInProgress
	b.HunterID = &hunter
	b.UpdatedAt = c.At
	r.Status = model.RequestStatusAccepted
	r.UpdatedAt = c.At
	for _, other := range m.requests {
		if other.BountyID == c.BountyID && other.ID != c.RequestID && other.Status == model.RequestStatusPending {
			other.Status = model.RequestStatusRejected
			other.UpdatedAt = c.At
		}
	}
	if c.Escrow != nil {
		m.escrows[c.Escrow.ID] = copyEscrow(c.Escrow)
		m.escrowOrder = append(m.escrowOrder, c.Escrow.ID)
	}
	m.appendTransaction(c.Transaction)
	return nil
}

func (m *Memory) CommitApproval(ctx context.Context, c ApprovalCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.submissions[c.SubmissionID]
	if !ok {
		return ErrNotFound
	}
	b, ok := m.bounties[c.BountyID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != model.SubmissionStatusPending || b.Status != model.BountyStatusInProgress {
		return ErrConflict
	}
	e, err := m.heldEscrow(c.BountyID, c.EscrowID)
	if err != nil {
		return err
	}

	m.review(s, model.SubmissionStatusApproved, c.Feedback, c.At)
	b.Status = model.BountyStatusCompleted
	b.UpdatedAt = c.At
	if e != nil {
		transfer := c.TransferID
		e.Status = model.EscrowStatusReleased
		e.TransferID = &transfer
		e.UpdatedAt = c.At
	}
	m.appendTransaction(c.Transaction)
	return nil
}

func (m *Memory) CommitRejection(ctx context.Context, c RejectionCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.submissions[c.SubmissionID]
	if !ok {
		return ErrNotFound
	}
	b, ok := m.bounties[c.BountyID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != model.SubmissionStatusPending || b.Status != model.BountyStatusInProgress {
		return ErrConflict
	}
	e, err := m.heldEscrow(c.BountyID, c.EscrowID)
	if err != nil {
		return err
	}

	reason := c.Reason
	m.review(s, model.SubmissionStatusRejected, &reason, c.At)
	b.Status = model.BountyStatusOpen
	b.HunterID = nil
	b.UpdatedAt = c.At
	for _, r := range m.requests {
		if r.BountyID == c.BountyID && r.Status == model.RequestStatusAccepted {
			r.Status = model.RequestStatusRejected
			r.UpdatedAt = c.At
		}
	}
	if e != nil {
		refund := c.RefundID
		e.Status = model.EscrowStatusRefunded
		e.RefundID = &refund
		e.UpdatedAt = c.At
	}
	m.appendTransaction(c.Transaction)
	return nil
}

func (m *Memory) CommitCancellation(ctx context.Context, c CancellationCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bounties[c.BountyID]
	if !ok {
		return ErrNotFound
	}
	if b.Status != c.From {
		return ErrConflict
	}
	e, err := m.heldEscrow(c.BountyID, c.EscrowID)
	if err != nil {
		return err
	}

	b.Status = model.BountyStatusArchived
	b.UpdatedAt = c.At
	if s := m.pendingSubmission(c.BountyID); s != nil {
		feedback := c.Feedback
		m.review(s, model.SubmissionStatusRejected, &feedback, c.At)
	}
	for _, r := range m.requests {
		if r.BountyID == c.BountyID && r.Status != model.RequestStatusRejected {
			r.Status = model.RequestStatusRejected
			r.UpdatedAt = c.At
		}
	}
	if e != nil {
		refund := c.RefundID
		e.Status = model.EscrowStatusRefunded
		e.RefundID = &refund
		e.UpdatedAt = c.At
	}
	m.appendTransaction(c.Transaction)
	return nil
}

func (m *Memory) CreateIncident(ctx context.Context, i *model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *i
	m.incidents[i.ID] = &c
	m.incOrder = append(m.incOrder, i.ID)
	return nil
}

func (m *Memory) GetIncident(ctx context.Context, id string) (*model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *i
	return &c, nil
}

func (m *Memory) ListIncidents(ctx context.Context, openOnly bool) ([]*model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Incident
	for _, id := range m.incOrder {
		i := m.incidents[id]
		if openOnly && i.ResolvedAt != nil {
			continue
		}
		c := *i
		out = append(out, &c)
	}
	return out, nil
}

func (m *Memory) ResolveIncident(ctx context.Context, id, resolution string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.incidents[id]
	if !ok {
		return ErrNotFound
	}
	if i.ResolvedAt != nil {
		return ErrConflict
	}
	i.Resolution = &resolution
	i.ResolvedAt = &at
	return nil
}
