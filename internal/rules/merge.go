package rules

import (
	"sort"

	"github.com/charmbracelet/log"
)

// RuleSet is the union of every loaded document, ready for resolution.
type RuleSet struct {
	Defaults  Defaults
	Items     []Rule
	Merchants []Rule
	Payments  []Rule
	// Skipped counts rules dropped for an invalid pattern.
	Skipped int
}

// TieredDocument is a document together with the tier it was loaded from.
type TieredDocument struct {
	Tier     Tier
	Path     string
	Document *Document
}

// Merge combines documents given in load order (highest tier first). Rules are
// compiled here; those that fail are skipped and logged. Each list is then
// stable-sorted by priority so equal priorities keep load order.
func Merge(docs []TieredDocument, logger *log.Logger) *RuleSet {
	set := &RuleSet{}
	for _, td := range docs {
		if td.Document == nil {
			continue
		}
		d := td.Document.Defaults
		if set.Defaults.Entity == "" {
			set.Defaults.Entity = d.Entity
		}
		if set.Defaults.Currency == "" {
			set.Defaults.Currency = d.Currency
		}
		if set.Defaults.FallbackCreditAccount == "" {
			set.Defaults.FallbackCreditAccount = d.FallbackCreditAccount
		}
		set.Items = appendCompiled(set, set.Items, td, td.Document.Items, logger)
		set.Merchants = appendCompiled(set, set.Merchants, td, td.Document.Merchants, logger)
		set.Payments = appendCompiled(set, set.Payments, td, td.Document.Payments, logger)
	}
	byPriority(set.Items)
	byPriority(set.Merchants)
	byPriority(set.Payments)
	return set
}

func appendCompiled(set *RuleSet, dst []Rule, td TieredDocument, src []Rule, logger *log.Logger) []Rule {
	for _, r := range src {
		if r.Pattern == "" || r.Account == "" {
			set.Skipped++
			continue
		}
		if !r.prioritySet && r.Priority == 0 {
			r.Priority = int(td.Tier)
		}
		if err := r.Compile(); err != nil {
			set.Skipped++
			if logger != nil {
				logger.Warn("skipping rule with invalid pattern", "path", td.Path, "pattern", r.Pattern, "err", err)
			}
			continue
		}
		dst = append(dst, r)
	}
	return dst
}

func byPriority(rs []Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Priority > rs[j].Priority
	})
}
