package cli

import (
	"strconv"
	"strings"

	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})
}

// TransactionTable renders txns as a table. Rows whose id is in flagged are
// marked as possible duplicates.
func TransactionTable(txns []model.Transaction, accountNames map[string]string, flagged map[string]bool) string {
	t := newTable("", "Date", "Title", "Category", "Amount", "Account", "Ver", "ID")
	for i := range txns {
		txn := &txns[i]
		t.Row(
			statusMarks(txn, flagged[txn.ID]),
			model.FormatDate(txn.TransactionDate),
			txn.Title,
			txn.Category,
			FormatAmount(txn.Amount, txn.Type),
			accountLabel(txn.AccountID, accountNames),
			strconv.Itoa(txn.Version),
			txn.ID,
		)
	}
	return t.Render()
}

// AccountTable renders accounts with their cached balances.
func AccountTable(accounts []model.Account) string {
	t := newTable("Name", "Balance", "Color", "Icon", "ID")
	for _, account := range accounts {
		t.Row(account.Name, FormatBalance(account.Balance), account.Color, account.Icon, account.ID)
	}
	return t.Render()
}

func statusMarks(txn *model.Transaction, duplicate bool) string {
	var b strings.Builder
	if txn.IsPaid {
		b.WriteString(SuccessStyle.Render(PaidIcon))
	} else {
		b.WriteString(SubtleStyle.Render(PendingIcon))
	}
	if txn.IsFixed || txn.IsInstance() {
		b.WriteString(InfoStyle.Render(RecurringIcon))
	}
	if duplicate {
		b.WriteString(WarningStyle.Render("!"))
	}
	return b.String()
}

func accountLabel(accountID *string, names map[string]string) string {
	if accountID == nil {
		return SubtleStyle.Render("-")
	}
	if name, ok := names[*accountID]; ok {
		return name
	}
	return *accountID
}
