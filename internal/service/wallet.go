package service

import (
	"context"
	"fmt"

	"bountyexpo/internal/model"
	"bountyexpo/internal/store"
)

// WalletService reads the append-only transaction ledger.
type WalletService struct {
	store store.Store
}

func NewWalletService(st store.Store) *WalletService {
	return &WalletService{store: st}
}

// Balance sums a user's ledger per currency.
type Balance struct {
	Currency       string `json:"currency"`
	EscrowedCents  int64  `json:"escrowedCents"`
	ReleasedCents  int64  `json:"releasedCents"`
	RefundedCents  int64  `json:"refundedCents"`
	DepositedCents int64  `json:"depositedCents"`
	WithdrawnCents int64  `json:"withdrawnCents"`
	AvailableCents int64  `json:"availableCents"`
}

func (s *WalletService) History(ctx context.Context, userID string) ([]*model.WalletTransaction, error) {
	txs, err := s.store.ListTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (s *WalletService) BountyLedger(ctx context.Context, bountyID string) ([]*model.WalletTransaction, error) {
	txs, err := s.store.ListTransactionsByBounty(ctx, bountyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// Balances returns one summary per currency the user has touched.
func (s *WalletService) Balances(ctx context.Context, userID string) ([]Balance, error) {
	txs, err := s.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Summarize(txs), nil
}

// Summarize folds completed ledger entries into per-currency balances.
func Summarize(txs []*model.WalletTransaction) []Balance {
	index := map[string]int{}
	var out []Balance
	for _, tx := range txs {
		if tx.Status != model.TransactionStatusCompleted {
			continue
		}
		i, ok := index[tx.Currency]
		if !ok {
			i = len(out)
			index[tx.Currency] = i
			out = append(out, Balance{Currency: tx.Currency})
		}
		b := &out[i]
		switch tx.Type {
		case model.TransactionTypeEscrow:
			b.EscrowedCents += tx.AmountCents
			b.AvailableCents -= tx.AmountCents
		case model.TransactionTypeRelease:
			b.ReleasedCents += tx.AmountCents
			b.AvailableCents += tx.AmountCents
		case model.TransactionTypeRefund:
			b.RefundedCents += tx.AmountCents
			b.AvailableCents += tx.AmountCents
		case model.TransactionTypeDeposit:
			b.DepositedCents += tx.AmountCents
			b.AvailableCents += tx.AmountCents
		case model.TransactionTypeWithdrawal:
			b.WithdrawnCents += tx.AmountCents
			b.AvailableCents -= tx.AmountCents
		}
	}
	return out
}
