package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bountyexpo/internal/model"
	"bountyexpo/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

// mapErr translates driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrDuplicate)
	}
	return err
}

// expectOne turns a zero-row conditional update into ErrConflict or ErrNotFound.
func expectOne(ctx context.Context, q querier, tag pgconn.CommandTag, table, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

const bountyColumns = `id, poster_id, hunter_id, title, description, amount_cents, currency,
	is_for_honor, status, deleted_at, created_at, updated_at`

func scanBounty(row pgx.Row) (*model.Bounty, error) {
	var b model.Bounty
	err := row.Scan(&b.ID, &b.PosterID, &b.HunterID, &b.Title, &b.Description, &b.AmountCents, &b.Currency,
		&b.IsForHonor, &b.Status, &b.DeletedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

func collectBounties(rows pgx.Rows, err error) ([]*model.Bounty, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Bounty
	for rows.Next() {
		b, err := scanBounty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const requestColumns = `id, bounty_id, hunter_id, message, status, created_at, updated_at`

func scanRequest(row pgx.Row) (*model.BountyRequest, error) {
	var r model.BountyRequest
	if err := row.Scan(&r.ID, &r.BountyID, &r.HunterID, &r.Message, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

const submissionColumns = `id, bounty_id, hunter_id, message, proof_items, status, poster_feedback,
	revision_count, submitted_at, reviewed_at`

func scanSubmission(row pgx.Row) (*model.CompletionSubmission, error) {
	var (
		s     model.CompletionSubmission
		proof []byte
	)
	err := row.Scan(&s.ID, &s.BountyID, &s.HunterID, &s.Message, &proof, &s.Status, &s.PosterFeedback,
		&s.RevisionCount, &s.SubmittedAt, &s.ReviewedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if len(proof) > 0 {
		if err := json.Unmarshal(proof, &s.ProofItems); err != nil {
			return nil, fmt.Errorf("failed to decode proof items for %s: %w", s.ID, err)
		}
	}
	if s.ProofItems == nil {
		s.ProofItems = []model.ProofItem{}
	}
	return &s, nil
}

func collectSubmissions(rows pgx.Rows, err error) ([]*model.CompletionSubmission, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.CompletionSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const escrowColumns = `id, bounty_id, poster_id, hunter_id, amount_cents, currency, status,
	hold_id, transfer_id, refund_id, created_at, updated_at`

func scanEscrow(row pgx.Row) (*model.Escrow, error) {
	var e model.Escrow
	err := row.Scan(&e.ID, &e.BountyID, &e.PosterID, &e.HunterID, &e.AmountCents, &e.Currency, &e.Status,
		&e.HoldID, &e.TransferID, &e.RefundID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

const transactionColumns = `id, user_id, bounty_id, type, amount_cents, currency, status, reference, created_at`

func collectTransactions(rows pgx.Rows, err error) ([]*model.WalletTransaction, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.WalletTransaction
	for rows.Next() {
		var tx model.WalletTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.BountyID, &tx.Type, &tx.AmountCents, &tx.Currency,
			&tx.Status, &tx.Reference, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}

func insertTransaction(ctx context.Context, q querier, tx *model.WalletTransaction) error {
	if tx == nil {
		return nil
	}
	_, err := q.Exec(ctx,
		`INSERT INTO wallet_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tx.ID, tx.UserID, tx.BountyID, tx.Type, tx.AmountCents, tx.Currency, tx.Status, tx.Reference, tx.CreatedAt,
	)
	return mapErr(err)
}

func insertEscrow(ctx context.Context, q querier, e *model.Escrow) error {
	_, err := q.Exec(ctx,
		`INSERT INTO escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.BountyID, e.PosterID, e.HunterID, e.AmountCents, e.Currency, e.Status,
		e.HoldID, e.TransferID, e.RefundID, e.CreatedAt, e.UpdatedAt,
	)
	if errors.Is(mapErr(err), store.ErrDuplicate) {
		// a second held escrow for the bounty
		return store.ErrConflict
	}
	return mapErr(err)
}

// settleEscrow moves a held escrow to next, recording the processor reference.
// An empty id is a no-op for bounties that hold no money.
func settleEscrow(ctx context.Context, q querier, bountyID, id string, next model.EscrowStatus, ref string, at time.Time) error {
	if id == "" {
		return nil
	}
	column := "transfer_id"
	if next == model.EscrowStatusRefunded {
		column = "refund_id"
	}
	tag, err := q.Exec(ctx,
		"UPDATE escrows SET status = $3, "+column+" = $4, updated_at = $5 WHERE id = $1 AND bounty_id = $2 AND status = 'held'",
		id, bountyID, next, ref, at,
	)
	if err != nil {
		return err
	}
	return expectOne(ctx, q, tag, "escrows", id)
}

func reviewSubmission(ctx context.Context, q querier, id string, expected, next model.SubmissionStatus, feedback *string, at time.Time) error {
	tag, err := q.Exec(ctx,
		`UPDATE completion_submissions
		SET status = $3, poster_feedback = COALESCE($4, poster_feedback), reviewed_at = $5
		WHERE id = $1 AND status = $2`,
		id, expected, next, feedback, at,
	)
	if err != nil {
		return err
	}
	return expectOne(ctx, q, tag, "completion_submissions", id)
}
