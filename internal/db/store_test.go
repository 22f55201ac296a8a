package db

import (
	"context"
	"os"
	"testing"
	"time"

	"bountyexpo/internal/model"
	"bountyexpo/internal/store"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestStore connects to TEST_DATABASE_URL, migrating it first.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, url, 0))
	pool, err := NewPool(ctx, url, 4, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func newBounty(amount int64) *model.Bounty {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Bounty{
		ID:          ulid.Make().String(),
		PosterID:    "poster-" + ulid.Make().String(),
		Title:       "Fix the fence",
		AmountCents: amount,
		Currency:    "USD",
		Status:      model.BountyStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgresBountyCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := newBounty(1500)
	require.NoError(t, s.CreateBounty(ctx, b))

	got, err := s.GetBounty(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Title, got.Title)
	assert.Nil(t, got.HunterID)

	require.NoError(t, s.UpdateBountyStatus(ctx, b.ID, model.BountyStatusOpen, model.BountyStatusArchived))
	assert.ErrorIs(t, s.UpdateBountyStatus(ctx, b.ID, model.BountyStatusOpen, model.BountyStatusArchived), store.ErrConflict)
	assert.ErrorIs(t, s.UpdateBountyStatus(ctx, "missing", model.BountyStatusOpen, model.BountyStatusArchived), store.ErrNotFound)

	_, err = s.GetBounty(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresAcceptApproveCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := newBounty(1500)
	require.NoError(t, s.CreateBounty(ctx, b))

	now := time.Now().UTC()
	r1 := &model.BountyRequest{ID: ulid.Make().String(), BountyID: b.ID, HunterID: "h1", Status: model.RequestStatusPending, CreatedAt: now, UpdatedAt: now}
	r2 := &model.BountyRequest{ID: ulid.Make().String(), BountyID: b.ID, HunterID: "h2", Status: model.RequestStatusPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateRequest(ctx, r1))
	require.NoError(t, s.CreateRequest(ctx, r2))
	assert.ErrorIs(t, s.CreateRequest(ctx, &model.BountyRequest{ID: ulid.Make().String(), BountyID: b.ID, HunterID: "h1", Status: model.RequestStatusPending, CreatedAt: now, UpdatedAt: now}), store.ErrDuplicate)

	escrow := &model.Escrow{
		ID: ulid.Make().String(), BountyID: b.ID, PosterID: b.PosterID, HunterID: "h1",
		AmountCents: 1500, Currency: "USD", Status: model.EscrowStatusHeld, HoldID: "hold_1",
		CreatedAt: now, UpdatedAt: now,
	}
	bountyID := b.ID
	require.NoError(t, s.CommitAcceptance(ctx, store.AcceptanceCommit{
		BountyID: b.ID, RequestID: r1.ID, HunterID: "h1", Escrow: escrow, At: now,
		Transaction: &model.WalletTransaction{
			ID: ulid.Make().String(), UserID: b.PosterID, BountyID: &bountyID, Type: model.TransactionTypeEscrow,
			AmountCents: 1500, Currency: "USD", Status: model.TransactionStatusCompleted, CreatedAt: now,
		},
	}))

	other, err := s.GetRequest(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusRejected, other.Status)

	// a second acceptance must not commit
	err = s.CommitAcceptance(ctx, store.AcceptanceCommit{BountyID: b.ID, RequestID: r2.ID, HunterID: "h2", At: now})
	assert.ErrorIs(t, err, store.ErrConflict)

	size := int64(10)
	sub := &model.CompletionSubmission{
		ID: ulid.Make().String(), BountyID: b.ID, HunterID: "h1", Message: "done",
		ProofItems: []model.ProofItem{{ID: "p1", Type: model.ProofTypeImage, Name: "a.png", Size: &size}},
		Status:     model.SubmissionStatusPending, SubmittedAt: now,
	}
	require.NoError(t, s.CreateSubmission(ctx, sub))
	dup := *sub
	dup.ID = ulid.Make().String()
	assert.ErrorIs(t, s.CreateSubmission(ctx, &dup), store.ErrDuplicate)

	pending, err := s.GetPendingSubmission(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, pending.ProofItems, 1)
	assert.Equal(t, "a.png", pending.ProofItems[0].Name)

	require.NoError(t, s.CommitApproval(ctx, store.ApprovalCommit{
		SubmissionID: sub.ID, BountyID: b.ID, EscrowID: escrow.ID, TransferID: "tr_1", At: now,
	}))

	got, err := s.GetBounty(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BountyStatusCompleted, got.Status)
	assert.Equal(t, "h1", got.AssignedHunter())

	e, err := s.GetEscrow(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowStatusReleased, e.Status)
	require.NotNil(t, e.TransferID)
	assert.Equal(t, "tr_1", *e.TransferID)

	txs, err := s.ListTransactionsByBounty(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestPostgresIncidents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	i := &model.Incident{ID: ulid.Make().String(), BountyID: "b1", Operation: "release", Detail: "capture then commit failed", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateIncident(ctx, i))

	require.NoError(t, s.ResolveIncident(ctx, i.ID, "reconciled", time.Now().UTC()))
	assert.ErrorIs(t, s.ResolveIncident(ctx, i.ID, "again", time.Now().UTC()), store.ErrConflict)

	got, err := s.GetIncident(ctx, i.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, "reconciled", *got.Resolution)
}
