package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bountyexpo/internal/apperr"
	"bountyexpo/internal/model"
	"bountyexpo/internal/payment"
	"bountyexpo/internal/store"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Settlement is what a financial step hands to the status commit.
// Escrow and Transaction are nil for honor bounties.
type Settlement struct {
	Escrow       *model.Escrow
	ProcessorRef string
	Transaction  *model.WalletTransaction
}

// CommitFunc persists the status change that follows a confirmed financial step.
type CommitFunc func(ctx context.Context, s Settlement) error

const defaultCommitTimeout = 10 * time.Second

// EscrowCoordinator is the only caller of the payment processor. Every
// operation moves money first and commits status second.
type EscrowCoordinator struct {
	store               store.Store
	processor           payment.Processor
	policy              payment.RetryPolicy
	escalator           *Escalator
	compensationTimeout time.Duration
	commitTimeout       time.Duration
	log                 *zap.Logger
}

func NewEscrowCoordinator(st store.Store, processor payment.Processor, policy payment.RetryPolicy, escalator *Escalator, log *zap.Logger) *EscrowCoordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if policy.Log == nil {
		policy.Log = log
	}
	return &EscrowCoordinator{
		store:               st,
		processor:           processor,
		policy:              policy,
		escalator:           escalator,
		compensationTimeout: 30 * time.Second,
		commitTimeout:       defaultCommitTimeout,
		log:                 log,
	}
}

// SetCommitTimeout bounds the status commit that follows a confirmed
// financial step.
func (c *EscrowCoordinator) SetCommitTimeout(d time.Duration) {
	if d > 0 {
		c.commitTimeout = d
	}
}

// commitContext detaches the commit from the caller. Once money has moved
// the status change must land even if the client goes away.
func (c *EscrowCoordinator) commitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.commitTimeout)
}

// HoldInput identifies the acceptance a hold is placed for.
type HoldInput struct {
	Bounty         *model.Bounty
	RequestID      string
	HunterID       string
	IdempotencyKey string
}

// Hold places funds on hold and then commits. A failed commit cancels the hold.
func (c *EscrowCoordinator) Hold(ctx context.Context, in HoldInput, commit CommitFunc) error {
	const op = "escrow.hold"
	b := in.Bounty
	if !b.RequiresEscrow() {
		return commit(ctx, Settlement{})
	}

	key := idempotencyKey("hold", b.ID, in.RequestID, in.IdempotencyKey)
	var holdID string
	var commitErr error

	saga := NewSaga(op, c.compensationTimeout, c.log).
		Step(SagaStep{
			Name: "create_hold",
			Forward: func(ctx context.Context) error {
				return c.policy.Do(ctx, op, func(ctx context.Context) error {
					id, err := c.processor.CreateHold(ctx, payment.HoldRequest{
						AmountCents:    b.AmountCents,
						Currency:       b.Currency,
						PosterID:       b.PosterID,
						BountyID:       b.ID,
						HunterID:       in.HunterID,
						IdempotencyKey: key,
					})
					holdID = id
					return err
				})
			},
			Compensate: func(ctx context.Context) error {
				return c.policy.Do(ctx, op+".compensate", func(ctx context.Context) error {
					_, err := c.processor.CancelOrRefundHold(ctx, holdID, "compensate:"+key)
					return err
				})
			},
		}).
		Step(SagaStep{
			Name: "commit",
			Forward: func(ctx context.Context) error {
				ctx, cancel := c.commitContext(ctx)
				defer cancel()
				now := time.Now().UTC()
				escrow := &model.Escrow{
					ID:          ulid.Make().String(),
					BountyID:    b.ID,
					PosterID:    b.PosterID,
					HunterID:    in.HunterID,
					AmountCents: b.AmountCents,
					Currency:    b.Currency,
					Status:      model.EscrowStatusHeld,
					HoldID:      holdID,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				commitErr = commit(ctx, Settlement{
					Escrow:       escrow,
					ProcessorRef: holdID,
					Transaction:  ledgerEntry(b, b.PosterID, model.TransactionTypeEscrow, holdID, now),
				})
				return commitErr
			},
		})

	err := saga.Run(ctx)
	if err == nil {
		c.log.Info("Escrow held", zap.String("bounty_id", b.ID), zap.String("hold_id", holdID))
		return nil
	}
	if apperr.KindOf(err) == apperr.KindFatal {
		return c.escalator.Fatal(ctx, b.ID, op, "hold placed but not committed; manual cleanup needed", err)
	}
	if commitErr != nil {
		// Hold was cancelled; report the commit failure itself.
		return commitErr
	}
	return c.paymentError(ctx, b.ID, op, err)
}

// ReleaseInput identifies the approval a release is made for.
type ReleaseInput struct {
	Bounty         *model.Bounty
	SubmissionID   string
	IdempotencyKey string
}

// Release captures the held funds for the hunter and then commits.
func (c *EscrowCoordinator) Release(ctx context.Context, in ReleaseInput, commit CommitFunc) error {
	const op = "escrow.release"
	b := in.Bounty
	if !b.RequiresEscrow() {
		return commit(ctx, Settlement{})
	}

	escrow, err := c.heldEscrow(ctx, b, op)
	if err != nil {
		return err
	}

	key := idempotencyKey("release", b.ID, in.SubmissionID, in.IdempotencyKey)
	var transferID string
	saga := NewSaga(op, c.compensationTimeout, c.log).
		Step(SagaStep{
			Name: "capture_and_transfer",
			Forward: func(ctx context.Context) error {
				return c.policy.Do(ctx, op, func(ctx context.Context) error {
					id, err := c.processor.CaptureAndTransfer(ctx, escrow.HoldID, escrow.HunterID, key)
					transferID = id
					return err
				})
			},
		}).
		Step(SagaStep{
			Name: "commit",
			Forward: func(ctx context.Context) error {
				ctx, cancel := c.commitContext(ctx)
				defer cancel()
				now := time.Now().UTC()
				return commit(ctx, Settlement{
					Escrow:       escrow,
					ProcessorRef: transferID,
					Transaction:  ledgerEntry(b, escrow.HunterID, model.TransactionTypeRelease, transferID, now),
				})
			},
		})

	if err := saga.Run(ctx); err != nil {
		if apperr.KindOf(err) == apperr.KindFatal {
			return c.escalator.Fatal(ctx, b.ID, op, "funds moved, status not committed", err)
		}
		return c.paymentError(ctx, b.ID, op, err)
	}
	c.log.Info("Escrow released", zap.String("bounty_id", b.ID), zap.String("transfer_id", transferID))
	return nil
}

// RefundInput identifies the bounty whose held funds go back to the poster.
type RefundInput struct {
	Bounty         *model.Bounty
	IdempotencyKey string
}

// Refund cancels the hold and then commits.
func (c *EscrowCoordinator) Refund(ctx context.Context, in RefundInput, commit CommitFunc) error {
	const op = "escrow.refund"
	b := in.Bounty
	if !b.RequiresEscrow() {
		return commit(ctx, Settlement{})
	}

	escrow, err := c.heldEscrow(ctx, b, op)
	if err != nil {
		return err
	}

	key := idempotencyKey("refund", b.ID, escrow.ID, in.IdempotencyKey)
	var refundID string
	saga := NewSaga(op, c.compensationTimeout, c.log).
		Step(SagaStep{
			Name: "cancel_or_refund_hold",
			Forward: func(ctx context.Context) error {
				return c.policy.Do(ctx, op, func(ctx context.Context) error {
					id, err := c.processor.CancelOrRefundHold(ctx, escrow.HoldID, key)
					refundID = id
					return err
				})
			},
		}).
		Step(SagaStep{
			Name: "commit",
			Forward: func(ctx context.Context) error {
				ctx, cancel := c.commitContext(ctx)
				defer cancel()
				now := time.Now().UTC()
				return commit(ctx, Settlement{
					Escrow:       escrow,
					ProcessorRef: refundID,
					Transaction:  ledgerEntry(b, escrow.PosterID, model.TransactionTypeRefund, refundID, now),
				})
			},
		})

	if err := saga.Run(ctx); err != nil {
		if apperr.KindOf(err) == apperr.KindFatal {
			return c.escalator.Fatal(ctx, b.ID, op, "funds refunded, status not committed", err)
		}
		return c.paymentError(ctx, b.ID, op, err)
	}
	c.log.Info("Escrow refunded", zap.String("bounty_id", b.ID), zap.String("refund_id", refundID))
	return nil
}

func (c *EscrowCoordinator) heldEscrow(ctx context.Context, b *model.Bounty, op string) (*model.Escrow, error) {
	escrow, err := c.store.GetEscrow(ctx, b.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, c.escalator.Fatal(ctx, b.ID, op, "paid bounty has no escrow", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow: %w", err)
	}
	if escrow.Status != model.EscrowStatusHeld {
		return nil, apperr.Conflictf(op, "escrow for bounty %s is already %s", b.ID, escrow.Status)
	}
	return escrow, nil
}

// paymentError maps a failed first step. Nothing was committed.
func (c *EscrowCoordinator) paymentError(ctx context.Context, bountyID, op string, err error) error {
	if errors.Is(err, payment.ErrExhausted) {
		return c.escalator.Fatal(ctx, bountyID, op, "payment outcome unconfirmed after retries", err)
	}
	if payment.IsPermanent(err) {
		var pe *payment.Error
		msg := "payment was declined; try a different payment method"
		if errors.As(err, &pe) && pe.Category == payment.CategoryDuplicate {
			msg = "payment operation was already processed"
		}
		return &apperr.Error{Kind: apperr.KindPaymentDeclined, Op: op, Message: msg, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func idempotencyKey(kind, bountyID, ref, clientKey string) string {
	key := kind + ":" + bountyID + ":" + ref
	if clientKey != "" {
		key += ":" + clientKey
	}
	return key
}

func ledgerEntry(b *model.Bounty, userID string, typ model.TransactionType, ref string, at time.Time) *model.WalletTransaction {
	bountyID := b.ID
	return &model.WalletTransaction{
		ID:          ulid.Make().String(),
		UserID:      userID,
		BountyID:    &bountyID,
		Type:        typ,
		AmountCents: b.AmountCents,
		Currency:    b.Currency,
		Status:      model.TransactionStatusCompleted,
		Reference:   ref,
		CreatedAt:   at,
	}
}
