package payment

import "context"

// HoldRequest describes funds to place on hold for a bounty.
type HoldRequest struct {
	AmountCents    int64
	Currency       string
	PosterID       string
	BountyID       string
	HunterID       string
	IdempotencyKey string
	Metadata       map[string]string
}

// Processor is the payment capability. Every call carries an idempotency key so
// a retried call with the same key has at most one effect.
type Processor interface {
	CreateHold(ctx context.Context, req HoldRequest) (holdID string, err error)
	CaptureAndTransfer(ctx context.Context, holdID, destination, idempotencyKey string) (transferID string, err error)
	CancelOrRefundHold(ctx context.Context, holdID, idempotencyKey string) (refundID string, err error)
}
