// Package ledger reads and writes the small subset of ledger-cli syntax that
// quickledger generates: dated entries with indented postings.
package ledger

import (
	"bufio"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const stamp = "2006/01/02"

// Tolerance is the largest imbalance accepted between debits and credits.
var Tolerance = decimal.New(1, -2)

var (
	rdate    = regexp.MustCompile(`^(\d{4})[/-](\d{2})[/-](\d{2})(?:\s|$)`)
	rindent  = regexp.MustCompile(`^(?: {4,}|\t)`)
	rnumber  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	rposting = regexp.MustCompile(`^(\S(?:.*?\S)?)(?:\s{2,}|\t+)(.+)$`)
	ramount  = regexp.MustCompile(`^([-+])?\s*(?:([^\d\s.,+-]+)\s*)?([-+]?\d[\d,]*(?:\.\d+)?)\s*([^\d\s.,+-]+)?$`)
	rstatus  = regexp.MustCompile(`^[*!]\s+`)
)

// Posting is one indented line of an entry.
type Posting struct {
	Account   string
	Amount    decimal.Decimal
	HasAmount bool
	Currency  string
	Comment   string
}

// Entry is a dated ledger transaction.
type Entry struct {
	Date        string // always YYYY/MM/DD
	Description string
	Postings    []Posting
	Comments    []string
	Text        string
}

// Month returns the YYYY-MM the entry belongs to.
func (e *Entry) Month() string {
	return e.Date[:4] + "-" + e.Date[5:7]
}

// RecognizeEntry reports whether text has the shape of a ledger entry: at least
// two lines, a zero-padded date starting the first, and an indented line with a
// numeric amount. Unpadded dates such as 2025/9/5 are rejected.
func RecognizeEntry(text string) bool {
	lines := strings.Split(strings.TrimRight(normalizeNewlines(text), "\n"), "\n")
	if len(lines) < 2 {
		return false
	}
	if !rdate.MatchString(lines[0]) {
		return false
	}
	for _, line := range lines[1:] {
		if !rindent.MatchString(line) {
			continue
		}
		body := strings.TrimSpace(line)
		if strings.HasPrefix(body, ";") {
			continue
		}
		if rnumber.MatchString(body) {
			return true
		}
	}
	return false
}

// ParseEntry parses a recognized entry. It fails when the text is not an entry
// or when a posting line cannot be read.
func ParseEntry(text string) (*Entry, error) {
	text = normalizeNewlines(text)
	if !RecognizeEntry(text) {
		return nil, errors.New("not a ledger entry")
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	e := &Entry{Text: strings.TrimRight(text, "\n") + "\n"}

	m := rdate.FindStringSubmatch(lines[0])
	date := m[1] + "/" + m[2] + "/" + m[3]
	if _, err := time.Parse(stamp, date); err != nil {
		return nil, errors.Errorf("invalid date %q", date)
	}
	e.Date = date
	e.Description = rstatus.ReplaceAllString(strings.TrimSpace(lines[0][len(m[0]):]), "")

	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !rindent.MatchString(line) {
			return nil, errors.Errorf("line %d is not indented: %q", i+2, line)
		}
		body := strings.TrimSpace(line)
		if strings.HasPrefix(body, ";") {
			e.Comments = append(e.Comments, strings.TrimSpace(body[1:]))
			continue
		}
		p, err := parsePosting(body)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i+2)
		}
		e.Postings = append(e.Postings, p)
	}
	if len(e.Postings) < 2 {
		return nil, errors.New("entry needs at least two postings")
	}
	return e, nil
}

func parsePosting(body string) (Posting, error) {
	var p Posting
	if idx := strings.Index(body, ";"); idx >= 0 {
		p.Comment = strings.TrimSpace(body[idx+1:])
		body = strings.TrimSpace(body[:idx])
	}
	m := rposting.FindStringSubmatch(body)
	if m == nil {
		// An account without an amount; ledger infers it.
		p.Account = body
		return p, nil
	}
	p.Account = m[1]
	am := ramount.FindStringSubmatch(strings.TrimSpace(m[2]))
	if am == nil {
		return p, errors.Errorf("unable to read amount %q", m[2])
	}
	amt, err := decimal.NewFromString(strings.ReplaceAll(am[3], ",", ""))
	if err != nil {
		return p, errors.Wrapf(err, "amount %q", am[3])
	}
	if am[1] == "-" {
		amt = amt.Neg()
	}
	p.Amount = amt
	p.HasAmount = true
	p.Currency = am[2]
	if am[4] != "" {
		p.Currency = am[4]
	}
	return p, nil
}

// CheckBalance verifies the postings sum to zero per currency. One posting may
// omit its amount, in which case ledger balances it and the check passes as long
// as only one currency is involved.
func (e *Entry) CheckBalance() error {
	sums := make(map[string]decimal.Decimal)
	var order []string
	var elided int
	for _, p := range e.Postings {
		if !p.HasAmount {
			elided++
			continue
		}
		if _, ok := sums[p.Currency]; !ok {
			order = append(order, p.Currency)
		}
		sums[p.Currency] = sums[p.Currency].Add(p.Amount)
	}
	switch {
	case elided > 1:
		return errors.New("more than one posting without an amount")
	case elided == 1 && len(order) > 1:
		return errors.New("posting without an amount in a multi-currency entry")
	case elided == 1:
		return nil
	}
	for _, cur := range order {
		if sums[cur].Abs().GreaterThan(Tolerance) {
			return errors.Errorf("entry does not balance: %s %s off", sums[cur].StringFixed(2), cur)
		}
	}
	return nil
}

// Balanced returns a copy of the postings with an elided amount filled in.
// Entries that do not balance are returned unchanged.
func (e *Entry) Balanced() []Posting {
	out := make([]Posting, len(e.Postings))
	copy(out, e.Postings)
	if e.CheckBalance() != nil {
		return out
	}
	missing := -1
	sum := decimal.Zero
	var cur string
	for i, p := range out {
		if !p.HasAmount {
			missing = i
			continue
		}
		sum = sum.Add(p.Amount)
		cur = p.Currency
	}
	if missing >= 0 {
		out[missing].Amount = sum.Neg()
		out[missing].Currency = cur
		out[missing].HasAmount = true
	}
	return out
}

// ParseJournal splits a journal file into its entries. Blocks that do not parse
// are skipped; directives and top-level comments are ignored.
func ParseJournal(text string) []*Entry {
	var entries []*Entry
	var block []string
	flush := func() {
		if len(block) == 0 {
			return
		}
		if e, err := ParseEntry(strings.Join(block, "\n")); err == nil {
			entries = append(entries, e)
		}
		block = nil
	}
	s := bufio.NewScanner(strings.NewReader(normalizeNewlines(text)))
	for s.Scan() {
		line := s.Text()
		switch {
		case rdate.MatchString(line):
			flush()
			block = append(block, line)
		case len(block) > 0 && rindent.MatchString(line):
			block = append(block, line)
		default:
			flush()
		}
	}
	flush()
	return entries
}

// NormalizeDate turns 2025-09-15 into 2025/09/15.
func NormalizeDate(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
