package main

import (
	"fmt"

	"github.com/Veraticus/ledger-must-balance/internal/cli"
	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Manage accounts and their balances",
	}

	cmd.AddCommand(accountsListCmd())
	cmd.AddCommand(accountsAddCmd())
	cmd.AddCommand(accountsEditCmd())
	cmd.AddCommand(accountsDeleteCmd())
	cmd.AddCommand(accountsReconcileCmd())

	return cmd
}

func accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with their balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			accounts, err := e.ledger.ListAccounts(cmd.Context(), e.user)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				e.printf("%s\n", cli.FormatInfo("No accounts yet. Add one with `ledger accounts add <name>`."))
				return nil
			}

			total := decimal.Zero
			for _, account := range accounts {
				total = total.Add(account.Balance)
			}
			e.printf("%s\n%s\n", cli.AccountTable(accounts), "Total: "+cli.FormatBalance(total))
			return nil
		},
	}
}

func accountsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an account",
		Long: `Create an account. A non-zero --opening balance is recorded as a
settled transaction so reconciliation keeps it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			openingFlag, _ := cmd.Flags().GetString("opening")
			color, _ := cmd.Flags().GetString("color")
			icon, _ := cmd.Flags().GetString("icon")

			opening, err := parseAmount(openingFlag)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			account, err := e.ledger.CreateAccount(cmd.Context(), e.user, args[0], color, icon, opening)
			if err != nil {
				return explain(err)
			}

			e.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Created account %s (%s) with balance %s",
				account.Name, account.ID, account.Balance.StringFixed(2))))
			return nil
		},
	}

	cmd.Flags().String("opening", "0", "Opening balance")
	cmd.Flags().String("color", "", "Display color")
	cmd.Flags().String("icon", "", "Display icon")

	return cmd
}

func accountsEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Rename or restyle an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch model.AccountPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				name, _ := flags.GetString("name")
				patch.Name = &name
			}
			if flags.Changed("color") {
				color, _ := flags.GetString("color")
				patch.Color = &color
			}
			if flags.Changed("icon") {
				icon, _ := flags.GetString("icon")
				patch.Icon = &icon
			}

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			account, err := e.ledger.UpdateAccount(cmd.Context(), e.user, args[0], patch)
			if err != nil {
				return explain(err)
			}

			e.printf("%s\n", cli.FormatSuccess("Updated account "+account.Name))
			return nil
		},
	}

	cmd.Flags().String("name", "", "New name")
	cmd.Flags().String("color", "", "New color")
	cmd.Flags().String("icon", "", "New icon")

	return cmd
}

func accountsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account that no transaction references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			ctx := cmd.Context()

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			account, err := e.ledger.GetAccount(ctx, e.user, args[0])
			if err != nil {
				return explain(err)
			}

			if !yes {
				prompter := cli.NewPrompter(cmd.InOrStdin(), e.out)
				ok, err := prompter.Confirm(ctx, fmt.Sprintf("Delete account %q?", account.Name))
				if err != nil {
					return err
				}
				if !ok {
					e.printf("%s\n", cli.FormatInfo("Aborted"))
					return nil
				}
			}

			if err := e.ledger.DeleteAccount(ctx, e.user, account.ID); err != nil {
				return explain(err)
			}

			e.printf("%s\n", cli.FormatSuccess("Deleted account "+account.Name))
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	return cmd
}

func accountsReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [id]",
		Short: "Rebuild balances from settled transactions",
		Long: `Recompute account balances as the signed sum of their settled
transactions. Without an id every account is reconciled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			var results []ledger.ReconcileResult
			if len(args) == 1 {
				result, err := e.ledger.Reconcile(ctx, e.user, args[0])
				if err != nil {
					return explain(err)
				}
				results = append(results, *result)
			} else {
				results, err = e.ledger.ReconcileAll(ctx, e.user)
				if err != nil {
					return explain(err)
				}
			}

			for _, result := range results {
				line := fmt.Sprintf("%s: %s", result.AccountID, result.Balance.StringFixed(2))
				if result.Drift.IsZero() {
					e.printf("%s\n", cli.FormatSuccess(line))
					continue
				}
				e.printf("%s\n", cli.FormatWarning(fmt.Sprintf("%s (corrected drift %s from %s)",
					line, result.Drift.StringFixed(2), result.Previous.StringFixed(2))))
			}
			return nil
		},
	}
}
