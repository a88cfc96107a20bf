package learn

import (
	"strings"

	"quickledger/internal/ledger"
)

// Generated is an entry the engine wrote, with the item behind each of its
// leading debit postings.
type Generated struct {
	Entry *ledger.Entry
	Items []string
}

// Corrections compares a generated entry with the saved journal text. The
// edited entry is found by date and description; each debit posting whose
// account changed yields one Correction.
func Corrections(gen Generated, edited string) []Correction {
	if gen.Entry == nil {
		return nil
	}
	var match *ledger.Entry
	for _, e := range ledger.ParseJournal(edited) {
		if e.Date == gen.Entry.Date && strings.EqualFold(e.Description, gen.Entry.Description) {
			match = e
			break
		}
	}
	if match == nil {
		return nil
	}
	var out []Correction
	for i, item := range gen.Items {
		if i >= len(gen.Entry.Postings) || i >= len(match.Postings) {
			break
		}
		before := gen.Entry.Postings[i].Account
		after := match.Postings[i].Account
		c := Correction{Item: item, Original: before, Final: after}
		if Skip(c) != "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
