package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AddExample is shown alongside parse errors.
const AddExample = `add coffee 10 @ Starbucks with kbank`

// Clauses are matched and cut out in this order. Later clauses must not see
// text that belongs to an earlier one.
var (
	rleading  = regexp.MustCompile(`(?i)^\s*add(?:\s+|$)`)
	rmemo     = regexp.MustCompile(`(?i)(?:^|\s)memo\s+"([^"]*)"`)
	ron       = regexp.MustCompile(`(?i)(?:^|\s)on\s+(today|yesterday|tomorrow|\d{4}[/-]\d{2}[/-]\d{2})(?:\s|$)`)
	rfor      = regexp.MustCompile(`(?i)(?:^|\s)for\s+(\S+)`)
	rwith     = regexp.MustCompile(`(?i)(?:^|\s)with\s+(\S+)`)
	rmerchant = regexp.MustCompile(`(?i)(?:@|\bat\s)\s*(.+?)(?:\s+(?:with|for|on|memo)\b.*)?$`)
	ritem     = regexp.MustCompile(`^(.+?)\s+(\d+(?:\.\d{1,2})?)(?:\s+([A-Za-z]{3}))?$`)
	rspaces   = regexp.MustCompile(`\s+`)
)

// Item is one purchased thing in an add command.
type Item struct {
	Name     string
	Amount   decimal.Decimal
	Currency string
}

// AddCommand is the parsed form of `add <items> [@ merchant] [with payment]
// [for entity] [on date] [memo "..."]`.
type AddCommand struct {
	Items    []Item
	Merchant string
	Payment  string
	Entity   string
	Date     string
	Memo     string
	Currency string
}

// ParseError reports add input from which no item could be read, or whose
// date is not a calendar day.
type ParseError struct {
	Remainder string
	Date      string
	Example   string
}

func (e *ParseError) Error() string {
	if e.Date != "" {
		return fmt.Sprintf("invalid date %q. Example: %s on 2025-09-15", e.Date, e.Example)
	}
	if e.Remainder == "" {
		return fmt.Sprintf("no items given. Example: %s", e.Example)
	}
	return fmt.Sprintf("unable to read items from %q. Example: %s", e.Remainder, e.Example)
}

// Parser parses add commands. Now defaults to time.Now.
type Parser struct {
	Now func() time.Time
}

func (p Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// ParseAdd extracts clause by clause and then reads the remaining text as a
// comma separated list of items. Item segments that do not look like
// `<name> <amount> [CUR]` are dropped.
func (p Parser) ParseAdd(text string) (*AddCommand, error) {
	rest := rleading.ReplaceAllString(text, "")
	cmd := &AddCommand{}

	take := func(re *regexp.Regexp) string {
		loc := re.FindStringSubmatchIndex(rest)
		if loc == nil {
			return ""
		}
		val := strings.TrimSpace(rest[loc[2]:loc[3]])
		rest = rest[:loc[0]] + " " + rest[loc[1]:]
		return val
	}

	cmd.Memo = take(rmemo)
	if d := take(ron); d != "" {
		date, err := p.resolveDate(d)
		if err != nil {
			return nil, err
		}
		cmd.Date = date
	}
	cmd.Entity = take(rfor)
	cmd.Payment = take(rwith)
	if loc := rmerchant.FindStringSubmatchIndex(rest); loc != nil {
		cmd.Merchant = strings.TrimSpace(rest[loc[2]:loc[3]])
		// Only the marker and the merchant are removed; text past a
		// reserved keyword stays with the items.
		rest = rest[:loc[0]] + " " + rest[loc[3]:]
	}

	rest = strings.TrimSpace(rspaces.ReplaceAllString(rest, " "))
	for _, seg := range strings.Split(rest, ",") {
		if it, ok := parseItem(seg); ok {
			cmd.Items = append(cmd.Items, it)
		}
	}
	if len(cmd.Items) == 0 {
		return nil, &ParseError{Remainder: rest, Example: AddExample}
	}

	// A single currency named on any item applies to the others.
	var cur string
	for _, it := range cmd.Items {
		if it.Currency == "" {
			continue
		}
		if cur != "" && cur != it.Currency {
			cur = ""
			break
		}
		cur = it.Currency
	}
	cmd.Currency = cur
	return cmd, nil
}

func parseItem(seg string) (Item, bool) {
	m := ritem.FindStringSubmatch(strings.TrimSpace(seg))
	if m == nil {
		return Item{}, false
	}
	amt, err := decimal.NewFromString(m[2])
	if err != nil || !amt.IsPositive() {
		return Item{}, false
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return Item{}, false
	}
	return Item{Name: name, Amount: amt, Currency: strings.ToUpper(m[3])}, true
}

func (p Parser) resolveDate(word string) (string, error) {
	now := p.now()
	switch strings.ToLower(word) {
	case "today":
		return now.Format(stamp), nil
	case "yesterday":
		return now.AddDate(0, 0, -1).Format(stamp), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(stamp), nil
	}
	date := NormalizeDate(word)
	if _, err := time.Parse(stamp, date); err != nil {
		return "", &ParseError{Date: word, Example: AddExample}
	}
	return date, nil
}
