package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Run one escrow reconciliation audit and record incidents for mismatches",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()
			a, err := openApp(cmd.Context(), logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			findings, err := a.services(nil, nil).auditor.Run(cmd.Context())
			if err != nil {
				return err
			}
			if len(findings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no mismatches found")
				return nil
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Bounty", "Check", "Detail"})
			for _, f := range findings {
				tw.AppendRow(table.Row{f.BountyID, f.Check, f.Detail})
			}
			tw.Render()
			return fmt.Errorf("%d mismatches recorded as incidents", len(findings))
		},
	}
}
