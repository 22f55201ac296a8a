package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxLifecycle(t *testing.T) {
	sb := NewSandbox()
	ctx := context.Background()

	holdID, err := sb.CreateHold(ctx, HoldRequest{AmountCents: 500, Currency: "USD", BountyID: "b1", IdempotencyKey: "hold:b1:r1"})
	require.NoError(t, err)
	assert.Equal(t, "held", sb.HoldState(holdID))

	again, err := sb.CreateHold(ctx, HoldRequest{AmountCents: 500, Currency: "USD", BountyID: "b1", IdempotencyKey: "hold:b1:r1"})
	require.NoError(t, err)
	assert.Equal(t, holdID, again, "same key replays the original hold")

	tr, err := sb.CaptureAndTransfer(ctx, holdID, "h1", "release:b1:s1")
	require.NoError(t, err)
	assert.Equal(t, "captured", sb.HoldState(holdID))

	replay, err := sb.CaptureAndTransfer(ctx, holdID, "h1", "release:b1:s1")
	require.NoError(t, err)
	assert.Equal(t, tr, replay)

	_, err = sb.CancelOrRefundHold(ctx, holdID, "refund:b1:e1")
	require.Error(t, err)
	assert.Equal(t, CategoryDuplicate, CategoryOf(err))

	assert.Equal(t, 2, sb.Calls(OpCreateHold))
	assert.Equal(t, 5, sb.TotalCalls())
}

func TestSandboxFailNext(t *testing.T) {
	sb := NewSandbox()
	sb.FailNext(OpCreateHold, &Error{Category: CategoryCardDeclined, Op: OpCreateHold})

	_, err := sb.CreateHold(context.Background(), HoldRequest{AmountCents: 1, Currency: "USD"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	_, err = sb.CreateHold(context.Background(), HoldRequest{AmountCents: 1, Currency: "USD"})
	require.NoError(t, err)
}
