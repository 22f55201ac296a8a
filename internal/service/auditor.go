package service

import (
	"context"
	"fmt"

	"bountyexpo/internal/model"
	"bountyexpo/internal/store"

	"go.uber.org/zap"
)

// Finding is one escrow and status mismatch found by the auditor.
type Finding struct {
	BountyID string `json:"bountyId"`
	Check    string `json:"check"`
	Detail   string `json:"detail"`
}

// Auditor scans for bounties whose status and money disagree. It records
// incidents and never repairs anything itself.
type Auditor struct {
	store     store.Store
	escalator *Escalator
	log       *zap.Logger
}

func NewAuditor(st store.Store, escalator *Escalator, log *zap.Logger) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{store: st, escalator: escalator, log: log}
}

// Run performs one audit pass and escalates findings not already open.
func (a *Auditor) Run(ctx context.Context) ([]Finding, error) {
	var findings []Finding

	completed, err := a.store.ListBountiesByStatus(ctx, model.BountyStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed bounties: %w", err)
	}
	for _, b := range completed {
		if !b.RequiresEscrow() {
			continue
		}
		txs, err := a.store.ListTransactionsByBounty(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}
		if !hasTransaction(txs, model.TransactionTypeRelease) {
			findings = append(findings, Finding{
				BountyID: b.ID,
				Check:    "completed_without_release",
				Detail:   "bounty is completed but no release was recorded",
			})
		}
	}

	for _, status := range []model.EscrowStatus{model.EscrowStatusHeld, model.EscrowStatusReleased, model.EscrowStatusRefunded} {
		escrows, err := a.store.ListEscrowsByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("failed to list escrows: %w", err)
		}
		for _, e := range escrows {
			b, err := a.store.GetBounty(ctx, e.BountyID)
			if err != nil {
				findings = append(findings, Finding{BountyID: e.BountyID, Check: "escrow_without_bounty", Detail: err.Error()})
				continue
			}
			if f, ok := checkEscrow(b, e); ok {
				findings = append(findings, f)
			}
		}
	}

	open, err := a.store.ListIncidents(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	known := make(map[string]bool, len(open))
	for _, i := range open {
		known[i.BountyID+"|"+i.Operation] = true
	}

	for _, f := range findings {
		op := "audit." + f.Check
		if known[f.BountyID+"|"+op] {
			continue
		}
		a.escalator.Escalate(ctx, f.BountyID, op, f.Detail)
		known[f.BountyID+"|"+op] = true
	}

	a.log.Info("Escrow audit finished", zap.Int("findings", len(findings)))
	return findings, nil
}

func checkEscrow(b *model.Bounty, e *model.Escrow) (Finding, bool) {
	var detail string
	switch e.Status {
	case model.EscrowStatusHeld:
		if b.Status != model.BountyStatusInProgress {
			detail = fmt.Sprintf("escrow %s still held while bounty is %s", e.ID, b.Status)
		}
	case model.EscrowStatusReleased:
		if b.Status != model.BountyStatusCompleted && b.Status != model.BountyStatusArchived {
			detail = fmt.Sprintf("escrow %s released while bounty is %s", e.ID, b.Status)
		}
	case model.EscrowStatusRefunded:
		if b.Status == model.BountyStatusCompleted {
			detail = fmt.Sprintf("escrow %s refunded but bounty is completed", e.ID)
		}
	}
	if detail == "" {
		return Finding{}, false
	}
	return Finding{BountyID: b.ID, Check: "escrow_" + string(e.Status) + "_mismatch", Detail: detail}, true
}

func hasTransaction(txs []*model.WalletTransaction, typ model.TransactionType) bool {
	for _, tx := range txs {
		if tx.Type == typ && tx.Status == model.TransactionStatusCompleted {
			return true
		}
	}
	return false
}
