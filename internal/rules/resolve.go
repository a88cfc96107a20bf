package rules

import (
	"strings"

	"quickledger/internal/ledger"
)

const (
	DefaultEntity   = "Personal"
	DefaultCurrency = "USD"
	generalExpenses = "Expenses:General"
	cashAccount     = "Assets:Cash"
)

// Resolve maps every item of cmd to a debit account and picks the credit
// account. It performs no I/O: the same inputs always give the same result.
//
// Items try the item rules first; merchant rules are only a fallback for items
// no item rule matched. Anything left goes to <entity>:Expenses:General.
func Resolve(cmd *ledger.AddCommand, set *RuleSet) *ledger.Transaction {
	if set == nil {
		set = &RuleSet{}
	}
	baseEntity := set.Defaults.Entity
	if baseEntity == "" {
		baseEntity = DefaultEntity
	}
	// Only an explicit "for" clause substitutes; rule accounts are used as
	// written otherwise.
	target := strings.TrimSpace(cmd.Entity)
	entity := target
	if entity == "" {
		entity = baseEntity
	}

	currency := cmd.Currency
	if currency == "" {
		currency = set.Defaults.Currency
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	tx := &ledger.Transaction{
		Currency: currency,
		Entity:   entity,
		Merchant: cmd.Merchant,
		Memo:     cmd.Memo,
		Date:     cmd.Date,
	}
	for _, it := range cmd.Items {
		account, ok := firstMatch(set.Items, it.Name)
		if !ok && cmd.Merchant != "" {
			account, ok = firstMatch(set.Merchants, cmd.Merchant)
		}
		if !ok {
			account = entity + ":" + generalExpenses
		}
		cur := it.Currency
		if cur == "" {
			cur = currency
		}
		tx.Debits = append(tx.Debits, ledger.DebitLine{
			Account:  substituteEntity(account, target, baseEntity),
			Amount:   it.Amount,
			Currency: cur,
			Item:     it.Name,
		})
	}

	credit, ok := "", false
	if cmd.Payment != "" {
		credit, ok = firstMatch(set.Payments, cmd.Payment)
	}
	if !ok {
		credit = set.Defaults.FallbackCreditAccount
	}
	if credit == "" {
		credit = entity + ":" + cashAccount
	}
	tx.CreditAccount = substituteEntity(credit, target, baseEntity)
	return tx
}

func firstMatch(rs []Rule, s string) (string, bool) {
	for i := range rs {
		if rs[i].Match(s) {
			return rs[i].Account, true
		}
	}
	return "", false
}

// substituteEntity swaps the leading segment of account for entity when the
// command names an entity other than the default one. Accounts without a colon
// are left alone.
func substituteEntity(account, entity, base string) string {
	if entity == "" || entity == base {
		return account
	}
	idx := strings.Index(account, ":")
	if idx < 0 {
		return account
	}
	return entity + account[idx:]
}
