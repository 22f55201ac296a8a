package main

import (
	"encoding/json"
	"fmt"
	"io"

	"bountyexpo/internal/model"
	"bountyexpo/internal/service"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func ledgerCmd() *cobra.Command {
	var (
		asJSON bool
		user   bool
	)
	cmd := &cobra.Command{
		Use:   "ledger <bountyId|userId>",
		Short: "Print the wallet ledger of a bounty or, with --user, of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()
			a, err := openApp(cmd.Context(), logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			wallet := service.NewWalletService(a.store)
			var txs []*model.WalletTransaction
			if user {
				txs, err = wallet.History(cmd.Context(), args[0])
			} else {
				txs, err = wallet.BountyLedger(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(txs)
			}
			renderLedger(cmd.OutOrStdout(), txs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().BoolVar(&user, "user", false, "treat the argument as a user id")
	return cmd
}

func renderLedger(w io.Writer, txs []*model.WalletTransaction) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "User", "Type", "Amount", "Status", "Reference", "Created"})
	for _, tx := range txs {
		tw.AppendRow(table.Row{
			tx.ID, tx.UserID, tx.Type, formatCents(tx.AmountCents, tx.Currency),
			tx.Status, tx.Reference, tx.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	for _, b := range service.Summarize(txs) {
		tw.AppendFooter(table.Row{"", b.Currency, "escrowed", formatCents(b.EscrowedCents, b.Currency)})
		tw.AppendFooter(table.Row{"", b.Currency, "released", formatCents(b.ReleasedCents, b.Currency)})
		tw.AppendFooter(table.Row{"", b.Currency, "refunded", formatCents(b.RefundedCents, b.Currency)})
	}
	tw.Render()
}

func formatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}
