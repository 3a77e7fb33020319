package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/ledger-must-balance/internal/cli"
	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/spf13/cobra"
)

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Materialize recurring transactions",
		Long: `Create the monthly instances of recurring templates. Each month is
generated at most once per template, so running this again is harmless.`,
		Example: `  # Current month
  ledger generate

  # A whole year ahead of time
  ledger generate --from 2024-01 --to 2024-12`,
		RunE: runGenerate,
	}

	cmd.Flags().StringP("month", "m", "", "Single month (YYYY-MM, default current)")
	cmd.Flags().String("from", "", "First month of a range (YYYY-MM)")
	cmd.Flags().String("to", "", "Last month of a range (YYYY-MM)")
	cmd.MarkFlagsMutuallyExclusive("month", "from")
	cmd.MarkFlagsRequiredTogether("from", "to")

	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	monthFlag, _ := cmd.Flags().GetString("month")
	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	from, err := parseMonthFlag(monthFlag, e.currentMonth())
	if err != nil {
		return err
	}
	to := from
	if fromFlag != "" {
		if from, err = parseMonthFlag(fromFlag, from); err != nil {
			return err
		}
		if to, err = parseMonthFlag(toFlag, from); err != nil {
			return err
		}
	}

	interrupts := cli.NewInterruptHandler(e.out, "Generation", "Months already generated are kept; run again to continue.")
	ctx := interrupts.HandleInterrupts(cmd.Context())
	defer interrupts.Stop()

	months := 0
	for m := from; !to.Before(m); m = m.AddMonths(1) {
		months++
	}

	total := 0
	bar := cli.NewProgressBar(e.out, months, "Generating recurring transactions...")
	results, err := e.ledger.GenerateRange(ctx, e.user, from, to, func(result *ledger.GenerationResult) {
		total += len(result.Created)
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	})
	if err != nil {
		if interrupts.WasInterrupted() {
			e.printf("%s\n", cli.FormatWarning(fmt.Sprintf("Stopped after %d month(s)", len(results))))
			return nil
		}
		return explain(err)
	}

	for _, result := range results {
		if len(result.Created) > 0 {
			e.printf("  %s %s: %d created\n", cli.RecurringIcon, result.Month, len(result.Created))
		}
	}
	e.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Generated %d transaction(s) across %d month(s)", total, len(results))))
	return nil
}
