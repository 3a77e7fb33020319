package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/ledger-must-balance/internal/cli"
	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transactions"},
		Short:   "List, add, edit and settle transactions",
	}

	cmd.AddCommand(txListCmd())
	cmd.AddCommand(txAddCmd())
	cmd.AddCommand(txEditCmd())
	cmd.AddCommand(txDeleteCmd())
	cmd.AddCommand(txSettleCmd("pay", "Mark a transaction as paid", true))
	cmd.AddCommand(txSettleCmd("unpay", "Mark a paid transaction as pending again", false))
	cmd.AddCommand(txDuplicatesCmd())

	return cmd
}

func txListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a month of transactions",
		Long: `List one month of transactions, newest first. Recurring templates
are materialized for the month before it is read, and rows that look like
duplicates of each other are flagged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			monthFlag, _ := cmd.Flags().GetString("month")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			ctx := cmd.Context()

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			month, err := parseMonthFlag(monthFlag, e.currentMonth())
			if err != nil {
				return err
			}

			view, err := e.ledger.LoadMonth(ctx, e.user, month, limit, offset)
			if err != nil {
				return explain(err)
			}

			names, err := e.accountNames(ctx)
			if err != nil {
				return err
			}

			e.printf("%s\n", cli.FormatTitle(month.String()))
			if view.Generated > 0 {
				e.printf("%s\n", cli.FormatInfo(fmt.Sprintf("Generated %d recurring transaction(s)", view.Generated)))
			}
			if len(view.Page.Transactions) == 0 {
				e.printf("%s\n", cli.FormatInfo("No transactions"))
				return nil
			}

			e.printf("%s\n", cli.TransactionTable(view.Page.Transactions, names, flagged(view.Duplicates)))
			shown := view.Page.Offset + len(view.Page.Transactions)
			e.printf("Showing %d-%d of %d\n", view.Page.Offset+1, shown, view.Page.Total)
			if view.Duplicates.Count > 0 {
				e.printf("%s\n", cli.FormatWarning(fmt.Sprintf("%d possible duplicate(s)", view.Duplicates.Count)))
			}
			return nil
		},
	}

	cmd.Flags().StringP("month", "m", "", "Month to list (YYYY-MM, default current)")
	cmd.Flags().Int("limit", 0, "Page size (default ledger.page_size)")
	cmd.Flags().Int("offset", 0, "Rows to skip")

	return cmd
}

func flagged(summary ledger.DuplicateSummary) map[string]bool {
	marks := make(map[string]bool, len(summary.IDs))
	for _, id := range summary.IDs {
		marks[id] = true
	}
	return marks
}

func txAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <title> <amount>",
		Short: "Add a transaction",
		Long: `Add a transaction. --fixed makes it a monthly template whose
instances are generated on --recurrence-day (default: the day of --date).`,
		Example: `  ledger tx add "Rent" 1500 --type expense --fixed --account <id>
  ledger tx add "Salary" 5000 --type income --date 2024-03-05 --paid --account <id>`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()

			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			typeFlag, _ := flags.GetString("type")
			typ, err := model.ParseTransactionType(typeFlag)
			if err != nil {
				return common.NewUserError(err.Error(), err)
			}

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			date := model.Today(timeNow(), e.cfg.Location)
			if flags.Changed("date") {
				value, _ := flags.GetString("date")
				if date, err = model.ParseDate(value, e.cfg.Location); err != nil {
					return common.NewUserError("invalid date (expected YYYY-MM-DD)", err)
				}
			}

			draft := model.Transaction{
				UserID:          e.user,
				Title:           args[0],
				Amount:          amount,
				Type:            typ,
				TransactionDate: date,
			}
			draft.Category, _ = flags.GetString("category")
			draft.PaymentMethod, _ = flags.GetString("payment")
			draft.IsFixed, _ = flags.GetBool("fixed")
			draft.IsPaid, _ = flags.GetBool("paid")
			if flags.Changed("account") {
				account, _ := flags.GetString("account")
				draft.AccountID = &account
			}
			if flags.Changed("recurrence-day") {
				day, _ := flags.GetInt("recurrence-day")
				draft.RecurrenceDay = &day
			}
			if flags.Changed("installment") {
				value, _ := flags.GetString("installment")
				current, total, err := parseInstallment(value)
				if err != nil {
					return err
				}
				draft.IsInstallment = true
				draft.CurrentInstallment = &current
				draft.TotalInstallments = &total
			}

			txn, err := e.ledger.CreateTransaction(cmd.Context(), draft)
			if err != nil {
				return explain(err)
			}

			e.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Added %s %s on %s (%s)",
				txn.Title, cli.FormatAmount(txn.Amount, txn.Type), model.FormatDate(txn.TransactionDate), txn.ID)))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringP("type", "t", string(model.TypeExpense), "income or expense")
	flags.StringP("date", "d", "", "Transaction date (YYYY-MM-DD, default today)")
	flags.StringP("category", "c", "", "Category")
	flags.String("payment", "", "Payment method")
	flags.StringP("account", "a", "", "Linked account id")
	flags.Bool("fixed", false, "Recur every month")
	flags.Int("recurrence-day", 0, "Day of month recurring instances fall on")
	flags.Bool("paid", false, "Create already settled")
	flags.String("installment", "", "Installment position as N/M")

	return cmd
}

func parseInstallment(value string) (current, total int, err error) {
	if _, err := fmt.Sscanf(value, "%d/%d", &current, &total); err != nil {
		return 0, 0, common.NewUserError("invalid installment (expected N/M)", err)
	}
	return current, total, nil
}

func txEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a transaction",
		Long: `Edit a transaction guarded by its --version. A stale version is
rejected with the current one so you can retry.

--mode controls recurring chains: single edits only this row, future also
updates the template and later instances, all updates the whole chain.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			version, _ := flags.GetInt("version")
			modeFlag, _ := flags.GetString("mode")

			mode, err := model.ParseCascadeMode(modeFlag)
			if err != nil {
				return common.NewUserError(err.Error(), err)
			}

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			patch, err := patchFromFlags(flags, e)
			if err != nil {
				return err
			}

			result, err := e.ledger.EditTransaction(cmd.Context(), ledger.EditRequest{
				UserID:        e.user,
				TransactionID: args[0],
				Version:       version,
				Mode:          mode,
				Patch:         patch,
			})
			if err != nil {
				return explain(err)
			}

			e.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Updated %s to version %d",
				result.Transaction.ID, result.Transaction.Version)))
			if len(result.Propagated) > 0 {
				e.printf("%s\n", cli.FormatInfo(fmt.Sprintf("Also updated %d related transaction(s)", len(result.Propagated))))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int("version", 0, "Version you last read (required)")
	flags.String("mode", model.CascadeSingle.String(), "single, future or all")
	flags.String("title", "", "New title")
	flags.String("amount", "", "New amount")
	flags.String("type", "", "New type (income or expense)")
	flags.String("category", "", "New category")
	flags.String("payment", "", "New payment method")
	flags.String("account", "", "Link to account id")
	flags.Bool("clear-account", false, "Unlink the account")
	flags.String("date", "", "New date (YYYY-MM-DD)")
	flags.Int("recurrence-day", 0, "New recurrence day")
	flags.Bool("fixed", false, "Recurring flag")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

// patchFromFlags builds a patch from the flags the user actually set.
func patchFromFlags(flags *pflag.FlagSet, e *env) (model.TransactionPatch, error) {
	var patch model.TransactionPatch

	if flags.Changed("title") {
		title, _ := flags.GetString("title")
		patch.Title = &title
	}
	if flags.Changed("amount") {
		value, _ := flags.GetString("amount")
		amount, err := parseAmount(value)
		if err != nil {
			return patch, err
		}
		patch.Amount = &amount
	}
	if flags.Changed("type") {
		value, _ := flags.GetString("type")
		typ, err := model.ParseTransactionType(value)
		if err != nil {
			return patch, common.NewUserError(err.Error(), err)
		}
		patch.Type = &typ
	}
	if flags.Changed("category") {
		category, _ := flags.GetString("category")
		patch.Category = &category
	}
	if flags.Changed("payment") {
		payment, _ := flags.GetString("payment")
		patch.PaymentMethod = &payment
	}
	if flags.Changed("account") {
		account, _ := flags.GetString("account")
		patch.AccountID = &account
	}
	patch.ClearAccount, _ = flags.GetBool("clear-account")
	if flags.Changed("date") {
		value, _ := flags.GetString("date")
		date, err := model.ParseDate(value, e.cfg.Location)
		if err != nil {
			return patch, common.NewUserError("invalid date (expected YYYY-MM-DD)", err)
		}
		patch.TransactionDate = &date
	}
	if flags.Changed("recurrence-day") {
		day, _ := flags.GetInt("recurrence-day")
		patch.RecurrenceDay = &day
	}
	if flags.Changed("fixed") {
		fixed, _ := flags.GetBool("fixed")
		patch.IsFixed = &fixed
	}
	return patch, nil
}

func txDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Long: `Delete a transaction. Deleting a recurring template also deletes all
of its generated instances. Settled rows give their amount back to the account.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			ctx := cmd.Context()

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			txn, err := e.ledger.GetTransaction(ctx, e.user, args[0])
			if err != nil {
				return explain(err)
			}

			if !yes {
				question := fmt.Sprintf("Delete %q?", txn.Title)
				if txn.IsTemplate() {
					question = fmt.Sprintf("Delete recurring %q and all of its instances?", txn.Title)
				}
				ok, err := cli.NewPrompter(cmd.InOrStdin(), e.out).Confirm(ctx, question)
				if err != nil {
					return err
				}
				if !ok {
					e.printf("%s\n", cli.FormatInfo("Aborted"))
					return nil
				}
			}

			result, err := e.ledger.DeleteTransaction(ctx, e.user, txn.ID)
			if err != nil {
				return explain(err)
			}

			e.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Deleted %d transaction(s)", len(result.Deleted))))
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	return cmd
}

func txSettleCmd(use, short string, paid bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			settle := e.ledger.Unpay
			if paid {
				settle = e.ledger.Pay
			}

			result, err := settle(cmd.Context(), e.user, args[0])
			if err != nil {
				return explain(err)
			}

			icon := cli.PendingIcon
			if result.Transaction.IsPaid {
				icon = cli.PaidIcon
			}
			line := fmt.Sprintf("%s %s", icon, result.Transaction.Title)
			if result.Balance != nil {
				line += " (balance " + cli.FormatBalance(*result.Balance) + ")"
			}
			e.printf("%s\n", cli.FormatSuccess(line))
			return nil
		},
	}
}

func txDuplicatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Show groups of likely duplicate transactions in a month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			monthFlag, _ := cmd.Flags().GetString("month")
			ctx := cmd.Context()

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			month, err := parseMonthFlag(monthFlag, e.currentMonth())
			if err != nil {
				return err
			}

			txns, err := monthTransactions(ctx, e, month)
			if err != nil {
				return err
			}

			groups := ledger.FindDuplicates(txns).Groups()
			if len(groups) == 0 {
				e.printf("%s\n", cli.FormatSuccess("No duplicates in "+month.String()))
				return nil
			}

			byID := make(map[string]model.Transaction, len(txns))
			for _, txn := range txns {
				byID[txn.ID] = txn
			}
			for _, group := range groups {
				first := byID[group[0]]
				e.printf("%s\n", cli.FormatWarning(fmt.Sprintf("%s %s on %s: %s",
					first.Title, first.Amount.StringFixed(2), model.FormatDate(first.TransactionDate),
					strings.Join(group, ", "))))
			}
			return nil
		},
	}

	cmd.Flags().StringP("month", "m", "", "Month to scan (YYYY-MM, default current)")

	return cmd
}

// monthTransactions loads every page of month.
func monthTransactions(ctx context.Context, e *env, month model.Month) ([]model.Transaction, error) {
	var txns []model.Transaction
	for offset := 0; ; {
		view, err := e.ledger.LoadMonth(ctx, e.user, month, e.cfg.Ledger.PageSize, offset)
		if err != nil {
			return nil, explain(err)
		}
		txns = append(txns, view.Page.Transactions...)
		offset += len(view.Page.Transactions)
		if len(view.Page.Transactions) == 0 || offset >= view.Page.Total {
			return txns, nil
		}
	}
}
