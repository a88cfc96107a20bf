// Package rules loads the tiered account rules, merges them by precedence and
// resolves parsed add commands into balanced transactions.
package rules

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Tier orders the rule documents. Higher tiers win on conflict.
type Tier int

const (
	TierBase     Tier = 0
	TierTemplate Tier = 10
	TierUser     Tier = 20
	TierLearned  Tier = 30
)

const (
	LearnedPath  = "rules/30-learned.json"
	UserPath     = "rules/20-user.json"
	TemplatePath = "rules/10-templates.json"
	BasePath     = "rules/00-base.json"
	AccountsPath = "accounts.journal"
)

// Source is one rule document location.
type Source struct {
	Tier Tier
	Path string
}

// Sources lists the documents in load order, highest tier first.
var Sources = []Source{
	{TierLearned, LearnedPath},
	{TierUser, UserPath},
	{TierTemplate, TemplatePath},
	{TierBase, BasePath},
}

// IsRulePath reports whether p is one of the rule documents or the account
// declarations, i.e. a file whose change makes cached rules stale.
func IsRulePath(p string) bool {
	if p == AccountsPath {
		return true
	}
	for _, s := range Sources {
		if s.Path == p {
			return true
		}
	}
	return strings.HasPrefix(p, "rules/")
}

// Defaults apply when a command does not say otherwise.
type Defaults struct {
	Entity                string `json:"entity,omitempty"`
	Currency              string `json:"currency,omitempty"`
	FallbackCreditAccount string `json:"fallbackCreditAccount,omitempty"`
}

// Rule maps a case-insensitive pattern to an account.
type Rule struct {
	ID         string  `json:"id,omitempty"`
	Pattern    string  `json:"pattern"`
	Account    string  `json:"account"`
	Priority   int     `json:"priority"`
	Learned    bool    `json:"learned,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	UsageCount int     `json:"usageCount,omitempty"`

	prioritySet bool
	re          *regexp.Regexp
}

// UnmarshalJSON accepts the account under "account" or the per-list names
// "debit", "defaultDebit" and "credit".
func (r *Rule) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID           string  `json:"id"`
		Pattern      string  `json:"pattern"`
		Account      string  `json:"account"`
		Debit        string  `json:"debit"`
		DefaultDebit string  `json:"defaultDebit"`
		Credit       string  `json:"credit"`
		Priority     *int    `json:"priority"`
		Learned      bool    `json:"learned"`
		Confidence   float64 `json:"confidence"`
		UsageCount   int     `json:"usageCount"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Rule{
		ID:         aux.ID,
		Pattern:    aux.Pattern,
		Account:    firstNonEmpty(aux.Account, aux.Debit, aux.DefaultDebit, aux.Credit),
		Learned:    aux.Learned,
		Confidence: aux.Confidence,
		UsageCount: aux.UsageCount,
	}
	if aux.Priority != nil {
		r.Priority = *aux.Priority
		r.prioritySet = true
	}
	return nil
}

// MarshalJSON leaves out a priority the rule never declared, so it keeps
// inheriting its tier after a rewrite.
func (r Rule) MarshalJSON() ([]byte, error) {
	type plain Rule
	aux := struct {
		plain
		Priority *int `json:"priority,omitempty"`
	}{plain: plain(r)}
	if r.prioritySet || r.Priority != 0 {
		p := r.Priority
		aux.Priority = &p
	}
	return json.Marshal(aux)
}

// Compile prepares the pattern. Rules that fail to compile never match.
func (r *Rule) Compile() error {
	re, err := regexp.Compile("(?i)" + r.Pattern)
	if err != nil {
		r.re = nil
		return err
	}
	r.re = re
	return nil
}

// Match reports whether the compiled pattern matches s.
func (r *Rule) Match(s string) bool {
	return r.re != nil && r.re.MatchString(s)
}

// Document is the JSON shape of one rule file.
type Document struct {
	Version   int      `json:"version"`
	Defaults  Defaults `json:"defaults"`
	Items     []Rule   `json:"items"`
	Merchants []Rule   `json:"merchants"`
	Payments  []Rule   `json:"payments"`
}

// ParseDocument decodes a rule file. Empty input is an empty document.
func ParseDocument(data []byte) (*Document, error) {
	doc := &Document{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Marshal encodes the document the way it is stored.
func (d *Document) Marshal() ([]byte, error) {
	if d.Version == 0 {
		d.Version = 1
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
