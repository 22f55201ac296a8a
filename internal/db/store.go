package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bountyexpo/internal/model"
	"bountyexpo/internal/store"

	"github.com/jackc/pgx/v5"
)

// Store is the Postgres implementation of store.Store. Each Commit* call runs
// in one transaction and every status change is conditional on the current row.
type Store struct {
	pool *Pool
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool.Pool, fn)
}

func (s *Store) CreateBounty(ctx context.Context, b *model.Bounty) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bounties (`+bountyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.PosterID, b.HunterID, b.Title, b.Description, b.AmountCents, b.Currency,
		b.IsForHonor, b.Status, b.DeletedAt, b.CreatedAt, b.UpdatedAt,
	)
	return mapErr(err)
}

func (s *Store) GetBounty(ctx context.Context, id string) (*model.Bounty, error) {
	return scanBounty(s.pool.QueryRow(ctx, "SELECT "+bountyColumns+" FROM bounties WHERE id = $1", id))
}

func (s *Store) ListBountiesByPoster(ctx context.Context, posterID string, includeHidden bool) ([]*model.Bounty, error) {
	return collectBounties(s.pool.Query(ctx,
		`SELECT `+bountyColumns+` FROM bounties
		WHERE poster_id = $1 AND ($2 OR deleted_at IS NULL)
		ORDER BY created_at DESC, id DESC`,
		posterID, includeHidden,
	))
}

func (s *Store) ListBountiesByStatus(ctx context.Context, status model.BountyStatus) ([]*model.Bounty, error) {
	return collectBounties(s.pool.Query(ctx,
		"SELECT "+bountyColumns+" FROM bounties WHERE status = $1 ORDER BY created_at, id",
		status,
	))
}

func (s *Store) UpdateBountyStatus(ctx context.Context, id string, expected, next model.BountyStatus) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE bounties SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2",
		id, expected, next,
	)
	if err != nil {
		return err
	}
	return expectOne(ctx, s.pool, tag, "bounties", id)
}

func (s *Store) HideBounty(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE bounties SET deleted_at = COALESCE(deleted_at, $2), updated_at = $2 WHERE id = $1",
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateRequest(ctx context.Context, r *model.BountyRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bounty_requests (`+requestColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.BountyID, r.HunterID, r.Message, r.Status, r.CreatedAt, r.UpdatedAt,
	)
	return mapErr(err)
}

func (s *Store) GetRequest(ctx context.Context, id string) (*model.BountyRequest, error) {
	return scanRequest(s.pool.QueryRow(ctx, "SELECT "+requestColumns+" FROM bounty_requests WHERE id = $1", id))
}

func (s *Store) FindRequest(ctx context.Context, bountyID, hunterID string) (*model.BountyRequest, error) {
	return scanRequest(s.pool.QueryRow(ctx,
		"SELECT "+requestColumns+" FROM bounty_requests WHERE bounty_id = $1 AND hunter_id = $2",
		bountyID, hunterID,
	))
}

func (s *Store) ListRequests(ctx context.Context, bountyID string) ([]*model.BountyRequest, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+requestColumns+" FROM bounty_requests WHERE bounty_id = $1 ORDER BY created_at, id",
		bountyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.BountyRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id string, expected, next model.RequestStatus) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE bounty_requests SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2",
		id, expected, next,
	)
	if err != nil {
		return err
	}
	return expectOne(ctx, s.pool, tag, "bounty_requests", id)
}

func (s *Store) CreateSubmission(ctx context.Context, sub *model.CompletionSubmission) error {
	items := sub.ProofItems
	if items == nil {
		items = []model.ProofItem{}
	}
	proof, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode proof items: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO completion_submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.BountyID, sub.HunterID, sub.Message, proof, sub.Status, sub.PosterFeedback,
		sub.RevisionCount, sub.SubmittedAt, sub.ReviewedAt,
	)
	return mapErr(err)
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*model.CompletionSubmission, error) {
	return scanSubmission(s.pool.QueryRow(ctx, "SELECT "+submissionColumns+" FROM completion_submissions WHERE id = $1", id))
}

func (s *Store) GetPendingSubmission(ctx context.Context, bountyID string) (*model.CompletionSubmission, error) {
	return scanSubmission(s.pool.QueryRow(ctx,
		"SELECT "+submissionColumns+" FROM completion_submissions WHERE bounty_id = $1 AND status = 'pending'",
		bountyID,
	))
}

func (s *Store) GetLatestSubmission(ctx context.Context, bountyID string) (*model.CompletionSubmission, error) {
	return scanSubmission(s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM completion_submissions
		WHERE bounty_id = $1 ORDER BY submitted_at DESC, id DESC LIMIT 1`,
		bountyID,
	))
}

func (s *Store) ListSubmissions(ctx context.Context, bountyID string) ([]*model.CompletionSubmission, error) {
	return collectSubmissions(s.pool.Query(ctx,
		"SELECT "+submissionColumns+" FROM completion_submissions WHERE bounty_id = $1 ORDER BY submitted_at, id",
		bountyID,
	))
}

func (s *Store) UpdateSubmissionReview(ctx context.Context, p store.ReviewUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE completion_submissions
		SET status = $3, poster_feedback = COALESCE($4, poster_feedback), reviewed_at = $5, revision_count = $6
		WHERE id = $1 AND status = $2`,
		p.SubmissionID, p.Expected, p.Next, p.Feedback, p.ReviewedAt, p.RevisionCount,
	)
	if err != nil {
		return err
	}
	return expectOne(ctx, s.pool, tag, "completion_submissions", p.SubmissionID)
}

func (s *Store) GetEscrow(ctx context.Context, bountyID string) (*model.Escrow, error) {
	return scanEscrow(s.pool.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrows
		WHERE bounty_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		bountyID,
	))
}

func (s *Store) ListEscrowsByStatus(ctx context.Context, status model.EscrowStatus) ([]*model.Escrow, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+escrowColumns+" FROM escrows WHERE status = $1 ORDER BY created_at, id",
		status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) RecordTransaction(ctx context.Context, tx *model.WalletTransaction) error {
	return insertTransaction(ctx, s.pool, tx)
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID string) ([]*model.WalletTransaction, error) {
	return collectTransactions(s.pool.Query(ctx,
		"SELECT "+transactionColumns+" FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at, id",
		userID,
	))
}

func (s *Store) ListTransactionsByBounty(ctx context.Context, bountyID string) ([]*model.WalletTransaction, error) {
	return collectTransactions(s.pool.Query(ctx,
		"SELECT "+transactionColumns+" FROM wallet_transactions WHERE bounty_id = $1 ORDER BY created_at, id",
		bountyID,
	))
}

func (s *Store) CommitAcceptance(ctx context.Context, c store.AcceptanceCommit) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE bounties SET status = 'in_progress', hunter_id = $2, updated_at = $3 WHERE id = $1 AND status = 'open'",
			c.BountyID, c.HunterID, c.At,
		)
		if err != nil {
			return err
		}
		if err := expectOne(ctx, tx, tag, "bounties", c.BountyID); err != nil {
			return err
		}

		tag, err = tx.Exec(ctx,
			"UPDATE bounty_requests SET status = 'accepted', updated_at = $3 WHERE id = $1 AND bounty_id = $2 AND status = 'pending'",
			c.RequestID, c.BountyID, c.At,
		)
		if err != nil {
			return err
		}
		if err := expectOne(ctx, tx, tag, "bounty_requests", c.RequestID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			"UPDATE bounty_requests SET status = 'rejected', updated_at = $3 WHERE bounty_id = $1 AND id <> $2 AND status = 'pending'",
			c.BountyID, c.RequestID, c.At,
		); err != nil {
			return err
		}

		if c.Escrow != nil {
			if err := insertEscrow(ctx, tx, c.Escrow); err != nil {
				return err
			}
		}
		return insertTransaction(ctx, tx, c.Transaction)
	})
}

func (s *Store) CommitApproval(ctx context.Context, c store.ApprovalCommit) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := reviewSubmission(ctx, tx, c.SubmissionID, model.SubmissionStatusPending, model.SubmissionStatusApproved, c.Feedback, c.At); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			"UPDATE bounties SET status = 'completed', updated_at = $2 WHERE id = $1 AND status = 'in_progress'",
			c.BountyID, c.At,
		)
		if err != nil {
			return err
		}
		if err := expectOne(ctx, tx, tag, "bounties", c.BountyID); err != nil {
			return err
		}
		if err := settleEscrow(ctx, tx, c.BountyID, c.EscrowID, model.EscrowStatusReleased, c.TransferID, c.At); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, c.Transaction)
	})
}

func (s *Store) CommitRejection(ctx context.Context, c store.RejectionCommit) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		reason := c.Reason
		if err := reviewSubmission(ctx, tx, c.SubmissionID, model.SubmissionStatusPending, model.SubmissionStatusRejected, &reason, c.At); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			"UPDATE bounties SET status = 'open', hunter_id = NULL, updated_at = $2 WHERE id = $1 AND status = 'in_progress'",
			c.BountyID, c.At,
		)
		if err != nil {
			return err
		}
		if err := expectOne(ctx, tx, tag, "bounties", c.BountyID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			"UPDATE bounty_requests SET status = 'rejected', updated_at = $2 WHERE bounty_id = $1 AND status = 'accepted'",
			c.BountyID, c.At,
		); err != nil {
			return err
		}
		if err := settleEscrow(ctx, tx, c.BountyID, c.EscrowID, model.EscrowStatusRefunded, c.RefundID, c.At); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, c.Transaction)
	})
}

func (s *Store) CommitCancellation(ctx context.Context, c store.CancellationCommit) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE bounties SET status = 'archived', updated_at = $3 WHERE id = $1 AND status = $2",
			c.BountyID, c.From, c.At,
		)
		if err != nil {
			return err
		}
		if err := expectOne(ctx, tx, tag, "bounties", c.BountyID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE completion_submissions SET status = 'rejected', poster_feedback = $2, reviewed_at = $3
			WHERE bounty_id = $1 AND status = 'pending'`,
			c.BountyID, c.Feedback, c.At,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			"UPDATE bounty_requests SET status = 'rejected', updated_at = $2 WHERE bounty_id = $1 AND status <> 'rejected'",
			c.BountyID, c.At,
		); err != nil {
			return err
		}
		if err := settleEscrow(ctx, tx, c.BountyID, c.EscrowID, model.EscrowStatusRefunded, c.RefundID, c.At); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, c.Transaction)
	})
}

func (s *Store) CreateIncident(ctx context.Context, i *model.Incident) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO incidents (id, bounty_id, operation, detail, resolution, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		i.ID, i.BountyID, i.Operation, i.Detail, i.Resolution, i.CreatedAt, i.ResolvedAt,
	)
	return mapErr(err)
}

func (s *Store) GetIncident(ctx context.Context, id string) (*model.Incident, error) {
	var i model.Incident
	err := s.pool.QueryRow(ctx,
		"SELECT id, bounty_id, operation, detail, resolution, created_at, resolved_at FROM incidents WHERE id = $1",
		id,
	).Scan(&i.ID, &i.BountyID, &i.Operation, &i.Detail, &i.Resolution, &i.CreatedAt, &i.ResolvedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &i, nil
}

func (s *Store) ListIncidents(ctx context.Context, openOnly bool) ([]*model.Incident, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, bounty_id, operation, detail, resolution, created_at, resolved_at FROM incidents
		WHERE NOT $1 OR resolved_at IS NULL ORDER BY created_at, id`,
		openOnly,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Incident
	for rows.Next() {
		var i model.Incident
		if err := rows.Scan(&i.ID, &i.BountyID, &i.Operation, &i.Detail, &i.Resolution, &i.CreatedAt, &i.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}

func (s *Store) ResolveIncident(ctx context.Context, id, resolution string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE incidents SET resolution = $2, resolved_at = $3 WHERE id = $1 AND resolved_at IS NULL",
		id, resolution, at,
	)
	if err != nil {
		return err
	}
	return expectOne(ctx, s.pool, tag, "incidents", id)
}
