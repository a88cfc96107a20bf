// Package learn turns account corrections made by the user into learned item
// rules.
package learn

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"quickledger/internal/metrics"
	"quickledger/internal/rules"
	"quickledger/internal/store"
)

const (
	baseConfidence    = 0.7
	specificBonus     = 0.2
	substantialBonus  = 0.1
	reinforceStep     = 0.1
	substantialCutoff = 0.5
	learnedPriority   = 20
)

// Correction is one account the user changed after the entry was generated.
type Correction struct {
	Item     string
	Original string
	Final    string
}

// Invalidator drops cached rules for a repository.
type Invalidator interface {
	Invalidate(repoID string)
}

// Learner persists learned rules. Calls are serialized so concurrent saves do
// not overwrite each other's learned rules.
type Learner struct {
	Logger      *log.Logger
	Metrics     *metrics.Metrics
	Invalidator Invalidator

	mu sync.Mutex
}

// Skip reports why c teaches nothing, or "" when it should be learned.
func Skip(c Correction) string {
	switch {
	case strings.TrimSpace(c.Item) == "":
		return "empty item"
	case strings.TrimSpace(c.Final) == "":
		return "empty final account"
	case c.Original == c.Final:
		return "account unchanged"
	case stripSpace(c.Original) == stripSpace(c.Final):
		return "whitespace only"
	}
	return ""
}

// Learn records c in rules/30-learned.json. It returns false without touching
// the store when the correction teaches nothing. The rule cache for repoID is
// invalidated before Learn returns.
func (l *Learner) Learn(ctx context.Context, repoID string, st store.Store, c Correction) (bool, error) {
	if reason := Skip(c); reason != "" {
		if l.Logger != nil {
			l.Logger.Debug("skipping correction", "item", c.Item, "reason", reason)
		}
		return false, nil
	}
	item := strings.TrimSpace(c.Item)
	final := strings.TrimSpace(c.Final)

	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.read(ctx, st)
	if err != nil {
		return false, err
	}

	outcome := "updated"
	idx := matchLearned(doc.Items, item)
	if idx >= 0 {
		r := &doc.Items[idx]
		r.Account = final
		r.UsageCount++
		r.Confidence = capped(r.Confidence + reinforceStep)
	} else {
		outcome = "created"
		doc.Items = append(doc.Items, rules.Rule{
			ID:         uuid.NewString(),
			Pattern:    "(?i)" + regexp.QuoteMeta(item),
			Account:    final,
			Priority:   learnedPriority,
			Learned:    true,
			Confidence: InitialConfidence(c.Original, final),
			UsageCount: 1,
		})
	}

	data, err := doc.Marshal()
	if err != nil {
		return false, errors.Wrap(err, "encode learned rules")
	}
	msg := "Learn " + item + " -> " + final
	if err := st.WriteFile(ctx, rules.LearnedPath, data, msg); err != nil {
		return false, errors.Wrapf(err, "write %s", rules.LearnedPath)
	}
	if l.Invalidator != nil {
		l.Invalidator.Invalidate(repoID)
	}
	l.Metrics.IncrementLearned(outcome)
	if l.Logger != nil {
		l.Logger.Info("learned rule", "item", item, "account", final, "outcome", outcome)
	}
	return true, nil
}

func (l *Learner) read(ctx context.Context, st store.Store) (*rules.Document, error) {
	data, err := st.ReadFile(ctx, rules.LearnedPath)
	if store.IsNotFound(err) {
		return &rules.Document{Version: 1}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", rules.LearnedPath)
	}
	doc, err := rules.ParseDocument(data)
	if err != nil {
		// Rewriting would drop whatever the file holds.
		return nil, errors.Wrapf(err, "parse %s", rules.LearnedPath)
	}
	return doc, nil
}

// matchLearned finds the learned item rule whose pattern matches item.
func matchLearned(rs []rules.Rule, item string) int {
	for i := range rs {
		r := rs[i]
		if !r.Learned {
			continue
		}
		if err := r.Compile(); err != nil {
			continue
		}
		if r.Match(item) {
			return i
		}
	}
	return -1
}

// InitialConfidence scores a new learned rule. Moving to a deeper account adds
// 0.2 and a substantially different account adds 0.1.
func InitialConfidence(original, final string) float64 {
	c := baseConfidence
	if segments(final) > segments(original) {
		c += specificBonus
	}
	if Similarity(original, final) < substantialCutoff {
		c += substantialBonus
	}
	return capped(c)
}

// Similarity is 1 - distance/longest length, in [0,1].
func Similarity(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func segments(account string) int {
	if strings.TrimSpace(account) == "" {
		return 0
	}
	return len(strings.Split(account, ":"))
}

func capped(v float64) float64 {
	return math.Min(1, math.Round(v*100)/100)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
