package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bountyexpo/internal/model"
)

func seed(t *testing.T, m *Memory) (*model.Bounty, *model.BountyRequest, *model.BountyRequest) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	b := &model.Bounty{ID: "b1", PosterID: "p1", Title: "Fix sink", AmountCents: 10000, Currency: "USD", Status: model.BountyStatusOpen, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.CreateBounty(ctx, b))
	r1 := &model.BountyRequest{ID: "r1", BountyID: "b1", HunterID: "h1", Status: model.RequestStatusPending, CreatedAt: now}
	r2 := &model.BountyRequest{ID: "r2", BountyID: "b1", HunterID: "h2", Status: model.RequestStatusPending, CreatedAt: now}
	require.NoError(t, m.CreateRequest(ctx, r1))
	require.NoError(t, m.CreateRequest(ctx, r2))
	return b, r1, r2
}

func TestMemoryUpdateBountyStatusIsConditional(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	ctx := context.Background()

	require.NoError(t, m.UpdateBountyStatus(ctx, "b1", model.BountyStatusOpen, model.BountyStatusArchived))
	err := m.UpdateBountyStatus(ctx, "b1", model.BountyStatusOpen, model.BountyStatusArchived)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.True(t, errors.Is(m.UpdateBountyStatus(ctx, "nope", model.BountyStatusOpen, model.BountyStatusArchived), ErrNotFound))
}

func TestMemoryDuplicateRequest(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	err := m.CreateRequest(context.Background(), &model.BountyRequest{ID: "r3", BountyID: "b1", HunterID: "h1", Status: model.RequestStatusPending})
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestMemoryCommitAcceptanceSingleWinner(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, rid := range []string{"r1", "r2"} {
		wg.Add(1)
		go func(i int, rid string) {
			defer wg.Done()
			errs[i] = m.CommitAcceptance(ctx, AcceptanceCommit{BountyID: "b1", RequestID: rid, HunterID: "h" + rid[1:], At: time.Now()})
		}(i, rid)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, errors.Is(err, ErrConflict))
		}
	}
	assert.Equal(t, 1, wins)

	b, err := m.GetBounty(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BountyStatusInProgress, b.Status)

	reqs, err := m.ListRequests(ctx, "b1")
	require.NoError(t, err)
	accepted := 0
	for _, r := range reqs {
		if r.Status == model.RequestStatusAccepted {
			accepted++
			assert.Equal(t, r.HunterID, b.AssignedHunter())
		} else {
			assert.Equal(t, model.RequestStatusRejected, r.Status)
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestMemoryOnePendingSubmission(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	ctx := context.Background()

	require.NoError(t, m.CreateSubmission(ctx, &model.CompletionSubmission{ID: "s1", BountyID: "b1", HunterID: "h1", Status: model.SubmissionStatusPending}))
	err := m.CreateSubmission(ctx, &model.CompletionSubmission{ID: "s2", BountyID: "b1", HunterID: "h1", Status: model.SubmissionStatusPending})
	assert.True(t, errors.Is(err, ErrDuplicate))

	s, err := m.GetPendingSubmission(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
}

func TestMemoryCommitApprovalIsAllOrNothing(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	ctx := context.Background()
	now := time.Now()

	escrow := &model.Escrow{ID: "e1", BountyID: "b1", AmountCents: 10000, Currency: "USD", Status: model.EscrowStatusHeld, HoldID: "hold_1"}
	require.NoError(t, m.CommitAcceptance(ctx, AcceptanceCommit{BountyID: "b1", RequestID: "r1", HunterID: "h1", Escrow: escrow, At: now}))
	require.NoError(t, m.CreateSubmission(ctx, &model.CompletionSubmission{ID: "s1", BountyID: "b1", HunterID: "h1", Status: model.SubmissionStatusPending}))

	// Wrong escrow id: nothing may change.
	err := m.CommitApproval(ctx, ApprovalCommit{SubmissionID: "s1", BountyID: "b1", EscrowID: "missing", At: now})
	require.Error(t, err)
	s, _ := m.GetSubmission(ctx, "s1")
	assert.Equal(t, model.SubmissionStatusPending, s.Status)
	b, _ := m.GetBounty(ctx, "b1")
	assert.Equal(t, model.BountyStatusInProgress, b.Status)

	bountyID := "b1"
	tx := &model.WalletTransaction{ID: "t1", UserID: "h1", BountyID: &bountyID, Type: model.TransactionTypeRelease, AmountCents: 10000, Status: model.TransactionStatusCompleted}
	require.NoError(t, m.CommitApproval(ctx, ApprovalCommit{SubmissionID: "s1", BountyID: "b1", EscrowID: "e1", TransferID: "tr_1", Transaction: tx, At: now}))

	e, err := m.GetEscrow(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.EscrowStatusReleased, e.Status)
	require.NotNil(t, e.TransferID)
	assert.Equal(t, "tr_1", *e.TransferID)

	txs, err := m.ListTransactionsByBounty(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TransactionTypeRelease, txs[0].Type)
}

func TestMemoryCommitRejectionReopens(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.CommitAcceptance(ctx, AcceptanceCommit{BountyID: "b1", RequestID: "r1", HunterID: "h1", At: now}))
	require.NoError(t, m.CreateSubmission(ctx, &model.CompletionSubmission{ID: "s1", BountyID: "b1", HunterID: "h1", Status: model.SubmissionStatusPending}))
	require.NoError(t, m.CommitRejection(ctx, RejectionCommit{SubmissionID: "s1", BountyID: "b1", Reason: "insufficient evidence", At: now}))

	b, _ := m.GetBounty(ctx, "b1")
	assert.Equal(t, model.BountyStatusOpen, b.Status)
	assert.Nil(t, b.HunterID)
	r, _ := m.GetRequest(ctx, "r1")
	assert.Equal(t, model.RequestStatusRejected, r.Status)
	s, _ := m.GetSubmission(ctx, "s1")
	require.NotNil(t, s.PosterFeedback)
	assert.Equal(t, "insufficient evidence", *s.PosterFeedback)
}

func TestMemoryHideKeepsStatus(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	ctx := context.Background()

	require.NoError(t, m.HideBounty(ctx, "b1", time.Now()))
	visible, _ := m.ListBountiesByPoster(ctx, "p1", false)
	assert.Empty(t, visible)
	all, _ := m.ListBountiesByPoster(ctx, "p1", true)
	require.Len(t, all, 1)
	assert.Equal(t, model.BountyStatusOpen, all[0].Status)
}

func TestMemoryIncidents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateIncident(ctx, &model.Incident{ID: "i1", BountyID: "b1", Operation: "release"}))

	open, _ := m.ListIncidents(ctx, true)
	assert.Len(t, open, 1)
	require.NoError(t, m.ResolveIncident(ctx, "i1", "refunded manually", time.Now()))
	open, _ = m.ListIncidents(ctx, true)
	assert.Empty(t, open)
	assert.True(t, errors.Is(m.ResolveIncident(ctx, "i1", "again", time.Now()), ErrConflict))

	got, err := m.GetIncident(ctx, "i1")
	require.NoError(t, err)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, "refunded manually", *got.Resolution)
	_, err = m.GetIncident(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
