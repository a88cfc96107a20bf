package ledger

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const accountWidth = 40

// DebitLine is one resolved item posting.
type DebitLine struct {
	Account  string
	Amount   decimal.Decimal
	Currency string
	Item     string
}

// Transaction is an add command with every account resolved.
type Transaction struct {
	Debits        []DebitLine
	CreditAccount string
	Currency      string
	Entity        string
	Merchant      string
	Memo          string
	Date          string
}

// Description is the merchant, or the item names joined by commas.
func (t *Transaction) Description() string {
	if t.Merchant != "" {
		return t.Merchant
	}
	names := make([]string, 0, len(t.Debits))
	for _, d := range t.Debits {
		names = append(names, d.Item)
	}
	return strings.Join(names, ", ")
}

// InvariantError means generated output violated a shape or balance rule. It
// should be unreachable and always aborts the write.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "internal invariant violated: " + e.Msg
}

type creditGroup struct {
	currency string
	total    decimal.Decimal
}

// Format renders t as ledger text. date overrides t.Date; when both are empty
// the entry is dated today. Debits in several currencies produce one credit
// posting per currency so each currency balances on its own.
func Format(t *Transaction, date string, today time.Time) (string, error) {
	if len(t.Debits) == 0 {
		return "", &InvariantError{Msg: "transaction has no debit lines"}
	}
	if date == "" {
		date = t.Date
	}
	if date == "" {
		date = today.Format(stamp)
	}
	date = NormalizeDate(date)

	var groups []*creditGroup
	byCur := make(map[string]*creditGroup)
	var debitSum decimal.Decimal

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s\n", date, t.Description())
	for _, d := range t.Debits {
		if !d.Amount.IsPositive() {
			return "", &InvariantError{Msg: fmt.Sprintf("non-positive amount %s for %q", d.Amount, d.Item)}
		}
		cur := d.Currency
		if cur == "" {
			cur = t.Currency
		}
		g, ok := byCur[cur]
		if !ok {
			g = &creditGroup{currency: cur}
			byCur[cur] = g
			groups = append(groups, g)
		}
		g.total = g.total.Add(d.Amount)
		debitSum = debitSum.Add(d.Amount)
		b.WriteString(postingLine(d.Account, d.Amount, cur))
	}

	var creditSum decimal.Decimal
	for _, g := range groups {
		credit := g.total.Neg()
		creditSum = creditSum.Add(credit)
		b.WriteString(postingLine(t.CreditAccount, credit, g.currency))
	}
	if t.Memo != "" {
		fmt.Fprintf(&b, "    ; %s\n", t.Memo)
	}

	if debitSum.Sub(creditSum.Abs()).Abs().GreaterThan(Tolerance) {
		return "", &InvariantError{Msg: fmt.Sprintf("debits %s != credits %s",
			debitSum.StringFixed(2), creditSum.Abs().StringFixed(2))}
	}
	return b.String(), nil
}

func postingLine(account string, amount decimal.Decimal, currency string) string {
	acc := fmt.Sprintf("%-*s", accountWidth, account)
	if len(account) >= accountWidth {
		// Keep two spaces so ledger can tell account from amount.
		acc = account + " "
	}
	return strings.TrimRight(fmt.Sprintf("    %s %s %s", acc, amount.StringFixed(2), currency), " ") + "\n"
}
