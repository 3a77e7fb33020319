// Package ofx turns OFX/QFX bank and credit card statements into ledger drafts.
package ofx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// DefaultCategory is given to statement lines whose type implies none.
const DefaultCategory = "Imported"

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at the end of a line that lost their closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)

	errEmptyStatement = errors.New("statement is empty")
)

var categoriesByType = map[string]string{
	"INT":    "Interest",
	"DIV":    "Interest",
	"FEE":    "Bank Fees",
	"SRVCHG": "Bank Fees",
	"ATM":    "Cash & ATM",
	"CASH":   "Cash & ATM",
}

// Parser converts statement lines into pending, non-recurring drafts.
type Parser struct {
	loc       *time.Location
	accountID *string
	userID    string
	category  string
}

// Option configures a Parser.
type Option func(*Parser)

// WithAccount links every draft to accountID.
func WithAccount(accountID string) Option {
	return func(p *Parser) {
		if accountID != "" {
			p.accountID = model.StringPtr(accountID)
		}
	}
}

// WithLocation sets the zone posted dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithCategory overrides DefaultCategory.
func WithCategory(category string) Option {
	return func(p *Parser) {
		if strings.TrimSpace(category) != "" {
			p.category = strings.TrimSpace(category)
		}
	}
}

// NewParser creates a parser producing drafts owned by userID.
func NewParser(userID string, opts ...Option) *Parser {
	p := &Parser{
		userID:   userID,
		loc:      time.UTC,
		category: DefaultCategory,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// preprocessOFX fixes common formatting issues in OFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	processed := preprocessOFX(string(content))
	if processed == "" {
		return nil, fmt.Errorf("failed to parse OFX file: %w", errEmptyStatement)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(processed))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile reads one statement file and returns its lines as drafts.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := parse(reader)
	if err != nil {
		return nil, err
	}

	var drafts []model.Transaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		bankStmts++
		drafts = append(drafts, p.convertList(stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID))...)
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		ccStmts++
		drafts = append(drafts, p.convertList(stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID))...)
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(drafts),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return drafts, nil
}

func (p *Parser) convertList(lines []ofxgo.Transaction, statementAccount string) []model.Transaction {
	drafts := make([]model.Transaction, 0, len(lines))
	for _, line := range lines {
		draft, err := p.convertTransaction(line)
		if err != nil {
			slog.Warn("Skipping statement line",
				"account", statementAccount,
				"fitid", string(line.FiTID),
				"error", err)
			continue
		}
		drafts = append(drafts, draft)
	}
	return drafts
}

// convertTransaction maps one statement line. OFX signs debits negative.
func (p *Parser) convertTransaction(line ofxgo.Transaction) (model.Transaction, error) {
	amount, err := decimal.NewFromString(line.TrnAmt.FloatString(2))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	typ := model.TypeIncome
	if amount.IsNegative() {
		typ = model.TypeExpense
	}

	title := extractMerchantName(line)
	if title == "" && line.CheckNum != "" {
		title = "Check #" + string(line.CheckNum)
	}
	if title == "" {
		title = line.TrnType.String()
	}

	category := p.category
	if c, ok := categoriesByType[line.TrnType.String()]; ok {
		category = c
	}

	posted := line.DtPosted.Time
	draft := model.Transaction{
		UserID:          p.userID,
		Title:           title,
		Amount:          amount.Abs(),
		Type:            typ,
		Category:        category,
		TransactionDate: time.Date(posted.Year(), posted.Month(), posted.Day(), 0, 0, 0, 0, p.loc),
		PaymentMethod:   paymentMethod(line.TrnType.String()),
	}
	if p.accountID != nil {
		draft.AccountID = model.StringPtr(*p.accountID)
	}
	return draft, nil
}

func paymentMethod(trnType string) string {
	switch trnType {
	case "CHECK":
		return "check"
	case "ATM", "CASH":
		return "cash"
	case "DIRECTDEBIT", "DIRECTDEP", "XFER":
		return "transfer"
	case "POS":
		return "card"
	}
	return ""
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// "MM/DD " date stamps
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}

// Accounts lists the distinct statement account numbers in a file, so the
// caller can ask which ledger account to import into.
func Accounts(ctx context.Context, reader io.Reader) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := parse(reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	add := func(id ofxgo.String) {
		if id != "" && !seen[string(id)] {
			seen[string(id)] = true
			accounts = append(accounts, string(id))
		}
	}
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			add(stmt.BankAcctFrom.AcctID)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			add(stmt.CCAcctFrom.AcctID)
		}
	}
	return accounts, nil
}
