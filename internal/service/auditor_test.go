package service

import (
	"context"
	"testing"
	"time"

	"bountyexpo/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditorCleanLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, sub := h.inProgress(t, 100, false)
	_, err := h.completion.Approve(ctx, sub.ID, "poster", nil, "")
	require.NoError(t, err)
	_, sub2 := h.inProgress(t, 200, false)
	_, err = h.completion.Reject(ctx, sub2.ID, "poster", "wrong shelf", "")
	require.NoError(t, err)

	findings, err := h.auditor.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestAuditorFlagsMismatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Completed with no release recorded.
	b := h.createBounty(t, 100, false)
	require.NoError(t, h.store.UpdateBountyStatus(ctx, b.ID, model.BountyStatusOpen, model.BountyStatusCompleted))

	// Held escrow on a bounty that went back to open.
	b2, _ := h.inProgress(t, 300, false)
	require.NoError(t, h.store.UpdateBountyStatus(ctx, b2.ID, model.BountyStatusInProgress, model.BountyStatusOpen))

	findings, err := h.auditor.Run(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 2)

	checks := map[string]string{}
	for _, f := range findings {
		checks[f.BountyID] = f.Check
	}
	assert.Equal(t, "completed_without_release", checks[b.ID])
	assert.Equal(t, "escrow_held_mismatch", checks[b2.ID])

	incidents, _ := h.incidents.List(ctx, true)
	assert.Len(t, incidents, 2)

	// A second pass does not duplicate open incidents.
	_, err = h.auditor.Run(ctx)
	require.NoError(t, err)
	incidents, _ = h.incidents.List(ctx, true)
	assert.Len(t, incidents, 2)

	// Nothing was repaired.
	got, _ := h.store.GetBounty(ctx, b.ID)
	assert.Equal(t, model.BountyStatusCompleted, got.Status)
}

func TestAuditorIgnoresHonorBounties(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, sub := h.inProgress(t, 0, true)
	_, err := h.completion.Approve(ctx, sub.ID, "poster", nil, "")
	require.NoError(t, err)

	findings, err := h.auditor.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestIncidentResolve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.CreateIncident(ctx, &model.Incident{ID: "i1", BountyID: "b1", Operation: "escrow.release", CreatedAt: time.Now()}))

	assert.Error(t, h.incidents.Resolve(ctx, "i1", ""))
	require.NoError(t, h.incidents.Resolve(ctx, "i1", "transfer confirmed with processor, status fixed"))
	assert.Error(t, h.incidents.Resolve(ctx, "i1", "again"))
	assert.Error(t, h.incidents.Resolve(ctx, "nope", "x"))

	open, err := h.incidents.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, open)
	all, err := h.incidents.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
