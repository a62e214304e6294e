// Package ofx reads OFX/QFX bank statements into bank transaction inputs.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"regexp"
	"sort"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Statement is the transactions of one account in an OFX file.
type Statement struct {
	AccountID string // the institution's account number, not a ledger id
	Entries   []ledger.BankInput
}

// Parser implements OFX/QFX file parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be upper case
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// Some SGML exports drop the closing bracket on a bare opening tag
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses an OFX/QFX file into one Statement per account. Bank and
// credit card statements are both read; every line becomes a deposit or a
// withdrawal keyed by its FITID.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]Statement, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var statements []Statement
	var bankStmts, ccStmts, total int

	for _, msg := range resp.Bank {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		bankStmts++
		s := p.convertList(string(stmt.BankAcctFrom.AcctID), stmt.BankTranList)
		total += len(s.Entries)
		statements = append(statements, s)
	}

	for _, msg := range resp.CreditCard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		ccStmts++
		s := p.convertList(string(stmt.CCAcctFrom.AcctID), stmt.BankTranList)
		total += len(s.Entries)
		statements = append(statements, s)
	}

	slog.Info("parsed OFX file",
		"total_transactions", total,
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return statements, nil
}

func (p *Parser) convertList(accountID string, list *ofxgo.TransactionList) Statement {
	s := Statement{AccountID: accountID}
	if list == nil {
		return s
	}
	for _, tx := range list.Transactions {
		entry, ok := p.convertTransaction(tx)
		if !ok {
			slog.Warn("skipping zero-amount OFX transaction", "account", accountID, "fitid", tx.FiTID)
			continue
		}
		s.Entries = append(s.Entries, entry)
	}
	return s
}

// convertTransaction maps one statement line. OFX signs amounts from the
// account holder's side: negative lines are withdrawals.
func (p *Parser) convertTransaction(tx ofxgo.Transaction) (ledger.BankInput, bool) {
	amount := ratToDecimal(&tx.TrnAmt.Rat)
	if amount.IsZero() {
		return ledger.BankInput{}, false
	}

	direction := model.BankDeposit
	if amount.IsNegative() {
		direction = model.BankWithdrawal
	}

	description := strings.TrimSpace(string(tx.Name))
	if description == "" {
		description = strings.TrimSpace(string(tx.Memo))
	}
	if tx.CheckNum != "" {
		description = fmt.Sprintf("%s (check %s)", description, tx.CheckNum)
	}

	return ledger.BankInput{
		Date:        tx.DtPosted.Time.UTC(),
		Direction:   direction,
		Amount:      amount.Abs(),
		Vendor:      p.extractMerchantName(tx),
		Description: description,
		Reference:   string(tx.FiTID),
		Category:    categoryFor(tx),
	}, true
}

// categoryFor fills in the obvious categories; everything else falls back to
// the vendor's default or Uncategorized when recorded.
func categoryFor(tx ofxgo.Transaction) string {
	switch tx.TrnType {
	case ofxgo.TrnTypeFee, ofxgo.TrnTypeSrvChg:
		return "Bank Fees"
	default:
		return ""
	}
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	num := decimal.NewFromBigInt(r.Num(), 0)
	if r.IsInt() {
		return num
	}
	return num.DivRound(decimal.NewFromBigInt(r.Denom(), 0), 8)
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	// Prefer PAYEE if available (cleaner merchant name)
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)

	// Sometimes MEMO has better merchant info
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

	// Clean up date patterns like "MM/DD" at the beginning
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	generic := []string{
		"DEBIT",
		"CREDIT",
		"PURCHASE",
		"PAYMENT",
		"POS TRANSACTION",
		"CARD PURCHASE",
	}

	upperName := strings.ToUpper(name)
	for _, g := range generic {
		if upperName == g {
			return true
		}
	}
	return false
}

// GetAccounts extracts the sorted, unique account numbers in an OFX file.
func (p *Parser) GetAccounts(_ context.Context, reader io.Reader) ([]string, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	accountMap := make(map[string]bool)
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankAcctFrom.AcctID != "" {
			accountMap[string(stmt.BankAcctFrom.AcctID)] = true
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.CCAcctFrom.AcctID != "" {
			accountMap[string(stmt.CCAcctFrom.AcctID)] = true
		}
	}

	accounts := make([]string, 0, len(accountMap))
	for acct := range accountMap {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)
	return accounts, nil
}
