package main

import (
	"fmt"

	"github.com/Veraticus/ledger-must-balance/internal/cli"
	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/spf13/cobra"
)

func transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer <from-account> <to-account> <amount>",
		Short: "Move money between two accounts",
		Long: `Record a transfer as a settled expense on the source account and a
settled income on the destination, written together with both balances.`,
		Example: `  ledger transfer <checking-id> <savings-id> 150 --description "Monthly saving"`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")

			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := e.ledger.Transfer(cmd.Context(), ledger.TransferRequest{
				UserID:        e.user,
				FromAccountID: args[0],
				ToAccountID:   args[1],
				Amount:        amount,
				Description:   description,
			})
			if err != nil {
				return explain(err)
			}

			e.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Transferred %s (%s)", amount.StringFixed(2), result.TransferID)))
			e.printf("  %s: %s\n", result.Expense.Title, cli.FormatBalance(result.FromBalance))
			e.printf("  %s: %s\n", result.Income.Title, cli.FormatBalance(result.ToBalance))
			return nil
		},
	}

	cmd.Flags().StringP("description", "d", "", "Description (default \"Transfer\")")

	return cmd
}
