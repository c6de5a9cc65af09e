package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and prune the audit trail",
	Long: `The audit trail records every strategy load, validation verdict,
sandbox violation and execution error.

Commands:
  recent  Show the newest events
  prune   Delete events older than the retention window`,
}

var (
	auditN    int
	pruneDays int
)

var auditRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the newest audit events",
	RunE:  runAuditRecent,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit events past retention",
	RunE:  runAuditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditRecentCmd, auditPruneCmd)

	auditRecentCmd.Flags().IntVarP(&auditN, "count", "n", 20, "number of events to show")
	auditPruneCmd.Flags().IntVar(&pruneDays, "days", 0, "retention window in days (default from config)")
}

func runAuditRecent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	events, err := rt.auditRepo.QueryRecent(ctx, auditN)
	if err != nil {
		return fmt.Errorf("query audit events: %w", err)
	}

	widths := []int{20, 20, 10, 40}
	PrintTableHeader([]string{"TIME", "TYPE", "STRATEGY", "DETAIL"}, widths)
	for _, e := range events {
		detail := e.Detail
		if len(detail) > 40 {
			detail = detail[:37] + "..."
		}
		PrintTableRow([]string{
			e.Timestamp.Format("2006-01-02 15:04:05"),
			string(e.Type),
			fmt.Sprintf("%d", e.StrategyID),
			detail,
		}, widths)
	}

	PrintSeparator()
	fmt.Printf("%d events\n", len(events))
	return nil
}

func runAuditPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	days := pruneDays
	if days == 0 {
		days = rt.cfg.Scheduler.AuditRetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	deleted, err := rt.auditRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune audit events: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Deleted %d events older than %s", deleted, cutoff.Format("2006-01-02")))
	return nil
}
