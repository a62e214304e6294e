package ofx

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/model"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240128120000[0:GMT]
<TRNAMT>1200.75
<FITID>2024012801
<NAME>POS PURCHASE REFUND
</STMTTRN>
<STMTTRN>
<TRNTYPE>FEE
<DTPOSTED>20240130120000[0:GMT]
<TRNAMT>-4.95
<FITID>2024013001
<NAME>MONTHLY SERVICE FEE
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "valid bank statement",
			ofxData:       sampleBankOFX,
			expectedCount: 5,
		},
		{
			name:          "valid credit card statement",
			ofxData:       sampleCreditCardOFX,
			expectedCount: 2,
		},
		{
			name:          "invalid OFX data",
			ofxData:       "not valid OFX",
			expectedError: true,
		},
		{
			name:          "empty OFX",
			ofxData:       "",
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()
			statements, err := parser.ParseFile(context.Background(), strings.NewReader(tt.ofxData))

			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, statements, 1)
			assert.Len(t, statements[0].Entries, tt.expectedCount)
		})
	}
}

func TestParseBankTransactions(t *testing.T) {
	parser := NewParser()

	statements, err := parser.ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.Equal(t, "1234567890", statements[0].AccountID)

	entries := statements[0].Entries
	require.Len(t, entries, 5)

	coffee := entries[0]
	assert.Equal(t, "2024011501", coffee.Reference)
	assert.Equal(t, "STARBUCKS STORE #1234", coffee.Description)
	assert.Equal(t, "STARBUCKS STORE #1234", coffee.Vendor) // No PAYEE, so uses NAME
	assert.Equal(t, model.BankWithdrawal, coffee.Direction)
	assert.Equal(t, "25.5", coffee.Amount.String())
	assert.Empty(t, coffee.BankAccountID)
	assert.True(t, time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC).Equal(coffee.Date))

	check := entries[2]
	assert.Equal(t, "CHECK #1234 (check 1234)", check.Description)
	assert.Equal(t, "500", check.Amount.String())

	refund := entries[3]
	assert.Equal(t, model.BankDeposit, refund.Direction)
	assert.Equal(t, "1200.75", refund.Amount.String())
	assert.Equal(t, "REFUND", refund.Vendor)
	assert.Empty(t, refund.Category)

	fee := entries[4]
	assert.Equal(t, model.BankWithdrawal, fee.Direction)
	assert.Equal(t, "Bank Fees", fee.Category)
}

func TestParseCreditCardTransactions(t *testing.T) {
	parser := NewParser()

	statements, err := parser.ParseFile(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.Equal(t, "4111111111111111", statements[0].AccountID)

	entries := statements[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "CC2024011001", entries[0].Reference)
	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", entries[0].Description)
	assert.Equal(t, "45.99", entries[0].Amount.String())
	assert.Equal(t, "CC2024011501", entries[1].Reference)
	assert.Equal(t, "15", entries[1].Amount.String())
}

func TestParseFileHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().ParseFile(ctx, strings.NewReader(sampleBankOFX))
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractMerchantName(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		memo     string
		expected string
	}{
		{
			name:     "remove POS prefix",
			input:    "POS PURCHASE STARBUCKS",
			expected: "STARBUCKS",
		},
		{
			name:     "remove DEBIT CARD prefix",
			input:    "DEBIT CARD PURCHASE WHOLE FOODS",
			expected: "WHOLE FOODS",
		},
		{
			name:     "keep clean name",
			input:    "NETFLIX.COM",
			expected: "NETFLIX.COM",
		},
		{
			name:     "trim whitespace",
			input:    "  AMAZON.COM  ",
			expected: "AMAZON.COM",
		},
		{
			name:     "generic name uses memo",
			input:    "PAYMENT",
			memo:     "CITY WATER",
			expected: "CITY WATER",
		},
		{
			name:     "strip leading date",
			input:    "03/14 HARDWARE DEPOT",
			expected: "HARDWARE DEPOT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := ofxgo.Transaction{
				Name: ofxgo.String(tt.input),
				Memo: ofxgo.String(tt.memo),
			}
			assert.Equal(t, tt.expected, parser.extractMerchantName(tx))
		})
	}
}

func TestRatToDecimal(t *testing.T) {
	assert.Equal(t, "-25.5", ratToDecimal(big.NewRat(-51, 2)).String())
	assert.Equal(t, "300", ratToDecimal(big.NewRat(300, 1)).String())
	assert.Equal(t, "0.01", ratToDecimal(big.NewRat(1, 100)).String())
}

func TestPreprocessOFX(t *testing.T) {
	parser := NewParser()
	out := parser.preprocessOFX("\n\n<SEVERITY>Info</SEVERITY>\n<BANKTRANLIST\n")
	assert.Equal(t, "<SEVERITY>INFO</SEVERITY>\n<BANKTRANLIST>\n", out)
}

func TestGetAccounts(t *testing.T) {
	parser := NewParser()

	accounts, err := parser.GetAccounts(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890"}, accounts)

	accounts, err = parser.GetAccounts(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"4111111111111111"}, accounts)
}
