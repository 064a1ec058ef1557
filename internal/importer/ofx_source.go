package importer

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
)

// OFXSource converts an OFX/QFX statement into staged rows using a fixed
// implied column layout, so downstream stages treat bank downloads and CSV
// exports identically.
type OFXSource struct {
	reader io.Reader
}

// NewOFXSource wraps a reader producing OFX or QFX content.
func NewOFXSource(r io.Reader) *OFXSource {
	return &OFXSource{reader: r}
}

// Mapping returns the implied column layout of OFX staged rows:
// date, payee, amount, memo, account.
func (s *OFXSource) Mapping() ColumnMapping {
	return ColumnMapping{
		0: FieldDate,
		1: FieldPayee,
		2: FieldAmount,
		3: FieldMemo,
		4: FieldAccount,
	}
}

// DateFormat returns the explicit format OFX rows are staged with.
func (s *OFXSource) DateFormat() string {
	return "2006-01-02"
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRegex  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes common formatting issues in real-world OFX files:
// stray leading whitespace, mixed-case SEVERITY values, and SGML-style
// opening tags missing their closing bracket.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = openTagRegex.ReplaceAllString(content, "$1>")
	return content
}

// Rows parses the statement and stages every bank and credit card
// transaction as one row in the implied layout.
func (s *OFXSource) Rows() ([][]string, error) {
	content, err := io.ReadAll(s.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX stream: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX content: %w", err)
	}

	var rows [][]string
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		account := string(stmt.BankAcctFrom.AcctID)
		for _, tx := range stmt.BankTranList.Transactions {
			rows = append(rows, stageOFXTransaction(tx, account))
		}
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		account := string(stmt.CCAcctFrom.AcctID)
		for _, tx := range stmt.BankTranList.Transactions {
			rows = append(rows, stageOFXTransaction(tx, account))
		}
	}
	return rows, nil
}

// stageOFXTransaction flattens one OFX transaction into a staged row.
// OFX already signs amounts: negative for debits.
func stageOFXTransaction(tx ofxgo.Transaction, account string) []string {
	payee := string(tx.Name)
	if tx.Payee != nil && tx.Payee.Name != "" {
		payee = string(tx.Payee.Name)
	}
	return []string{
		tx.DtPosted.Time.Format("2006-01-02"),
		payee,
		tx.TrnAmt.FloatString(2),
		string(tx.Memo),
		account,
	}
}
