package service

import (
	"context"
	"testing"

	"bountyexpo/internal/model"
	"bountyexpo/internal/payment"
	"bountyexpo/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ctxStore fails commits whose context is already done, like a database driver.
type ctxStore struct {
	store.Store
}

func (s ctxStore) CommitAcceptance(ctx context.Context, c store.AcceptanceCommit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.CommitAcceptance(ctx, c)
}

func (s ctxStore) CommitApproval(ctx context.Context, c store.ApprovalCommit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.CommitApproval(ctx, c)
}

func (s ctxStore) CommitRejection(ctx context.Context, c store.RejectionCommit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.CommitRejection(ctx, c)
}

// disconnectingProcessor cancels the caller once money has moved.
type disconnectingProcessor struct {
	*payment.Sandbox
	cancel context.CancelFunc
}

func (p *disconnectingProcessor) CreateHold(ctx context.Context, req payment.HoldRequest) (string, error) {
	id, err := p.Sandbox.CreateHold(ctx, req)
	if err == nil {
		p.cancel()
	}
	return id, err
}

func (p *disconnectingProcessor) CaptureAndTransfer(ctx context.Context, holdID, destination, key string) (string, error) {
	id, err := p.Sandbox.CaptureAndTransfer(ctx, holdID, destination, key)
	if err == nil {
		p.cancel()
	}
	return id, err
}

func (p *disconnectingProcessor) CancelOrRefundHold(ctx context.Context, holdID, key string) (string, error) {
	id, err := p.Sandbox.CancelOrRefundHold(ctx, holdID, key)
	if err == nil {
		p.cancel()
	}
	return id, err
}

// disconnecting wires services whose caller context is cancelled right
// after each successful processor call.
func (h *harness) disconnecting(cancel context.CancelFunc) (*RequestService, *CompletionService) {
	st := ctxStore{Store: h.store}
	escalator := NewEscalator(h.store, nil)
	escalator.SetJobClient(h.jobs)
	processor := &disconnectingProcessor{Sandbox: h.processor, cancel: cancel}
	escrow := NewEscrowCoordinator(st, processor, payment.RetryPolicy{MaxRetries: 1}, escalator, nil)
	return NewRequestService(st, escrow, noLock{}, nil, nil), NewCompletionService(st, escrow, noLock{}, nil, nil, nil)
}

func TestApproveCommitsAfterClientDisconnect(t *testing.T) {
	h := newHarness(t)
	b, sub := h.inProgress(t, 100, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, completion := h.disconnecting(cancel)

	_, err := completion.Approve(ctx, sub.ID, "poster", nil, "")
	require.NoError(t, err)
	assert.Error(t, ctx.Err())

	bg := context.Background()
	bounty, _ := h.store.GetBounty(bg, b.ID)
	assert.Equal(t, model.BountyStatusCompleted, bounty.Status)
	got, _ := h.store.GetSubmission(bg, sub.ID)
	assert.Equal(t, model.SubmissionStatusApproved, got.Status)
	escrow, _ := h.store.GetEscrow(bg, b.ID)
	assert.Equal(t, model.EscrowStatusReleased, escrow.Status)

	incidents, _ := h.incidents.List(bg, true)
	assert.Empty(t, incidents)
	assert.Empty(t, h.jobs.incidents)
}

func TestRejectCommitsAfterClientDisconnect(t *testing.T) {
	h := newHarness(t)
	b, sub := h.inProgress(t, 100, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, completion := h.disconnecting(cancel)

	_, err := completion.Reject(ctx, sub.ID, "poster", "Shelf is crooked", "")
	require.NoError(t, err)

	bg := context.Background()
	bounty, _ := h.store.GetBounty(bg, b.ID)
	assert.Equal(t, model.BountyStatusOpen, bounty.Status)
	got, _ := h.store.GetSubmission(bg, sub.ID)
	assert.Equal(t, model.SubmissionStatusRejected, got.Status)

	incidents, _ := h.incidents.List(bg, true)
	assert.Empty(t, incidents)
}

func TestAcceptCommitsAfterClientDisconnect(t *testing.T) {
	h := newHarness(t)
	b := h.createBounty(t, 100, false)
	r := h.apply(t, b.ID, "hunter")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requests, _ := h.disconnecting(cancel)

	_, err := requests.Accept(ctx, r.ID, "poster", "")
	require.NoError(t, err)

	bg := context.Background()
	bounty, _ := h.store.GetBounty(bg, b.ID)
	assert.Equal(t, model.BountyStatusInProgress, bounty.Status)
	escrow, err := h.store.GetEscrow(bg, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "held", h.processor.HoldState(escrow.HoldID))
	assert.Equal(t, 0, h.processor.Calls(payment.OpCancel))
}

func TestSetCommitTimeoutIgnoresNonPositive(t *testing.T) {
	c := NewEscrowCoordinator(store.NewMemory(), payment.NewSandbox(), payment.RetryPolicy{}, nil, nil)
	c.SetCommitTimeout(0)
	assert.Equal(t, defaultCommitTimeout, c.commitTimeout)

	c.SetCommitTimeout(defaultCommitTimeout * 2)
	assert.Equal(t, defaultCommitTimeout*2, c.commitTimeout)
}
