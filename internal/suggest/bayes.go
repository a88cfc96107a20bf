// Package suggest proposes accounts for an item name, from the local rules or
// from Claude.
package suggest

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jbrukh/bayesian"
	"github.com/pkg/errors"

	"quickledger/internal/rules"
)

const maxHits = 5

// ErrTooFewClasses means the rules name fewer than two accounts, which is not
// enough to train a classifier.
var ErrTooFewClasses = errors.New("need at least two accounts to suggest from")

// Suggestion is one proposed account.
type Suggestion struct {
	Account string
	Score   float64
	Source  string
}

var (
	rflags = regexp.MustCompile(`\(\?[a-zA-Z]+\)`)
	rsplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// Terms turns free text, a regex pattern or an account name into lower-cased
// words.
func Terms(s string) []string {
	s = rflags.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, `\`, "")
	var out []string
	for _, t := range rsplit.Split(strings.ToLower(s), -1) {
		if len(t) > 1 {
			out = append(out, t)
		}
	}
	return out
}

// Bayes is a TF-IDF classifier trained on the item and merchant rules plus the
// declared accounts.
type Bayes struct {
	classes []bayesian.Class
	cl      *bayesian.Classifier
}

func NewBayes(set *rules.RuleSet, catalog *rules.Catalog) (*Bayes, error) {
	docs := make(map[string][][]string)
	add := func(account string, terms []string) {
		if account == "" || len(terms) == 0 {
			return
		}
		docs[account] = append(docs[account], terms)
	}
	if set != nil {
		for _, r := range set.Items {
			add(r.Account, Terms(r.Pattern))
		}
		for _, r := range set.Merchants {
			add(r.Account, Terms(r.Pattern))
		}
	}
	if catalog != nil {
		for _, a := range catalog.Accounts {
			terms := Terms(a.Name)
			for _, al := range a.Aliases {
				terms = append(terms, Terms(al)...)
			}
			add(a.Name, append(terms, Terms(a.Comment)...))
		}
	}
	if len(docs) < 2 {
		return nil, ErrTooFewClasses
	}

	b := &Bayes{classes: make([]bayesian.Class, 0, len(docs))}
	for account := range docs {
		b.classes = append(b.classes, bayesian.Class(account))
	}
	sort.Slice(b.classes, func(i, j int) bool { return b.classes[i] < b.classes[j] })
	b.cl = bayesian.NewClassifierTfIdf(b.classes...)
	for _, c := range b.classes {
		for _, terms := range docs[string(c)] {
			b.cl.Learn(terms, c)
		}
	}
	b.cl.ConvertTermsFreqToTfIdf()
	return b, nil
}

type pair struct {
	score float64
	pos   int
}

// Suggest returns up to five accounts. Hits stop once the gap to the previous
// score exceeds one standard deviation of all scores.
func (b *Bayes) Suggest(item string) []Suggestion {
	terms := Terms(item)
	if len(terms) == 0 {
		return nil
	}
	scores, _, _ := b.cl.LogScores(terms)
	pairs := make([]pair, 0, len(scores))
	var mean, stddev float64
	for pos, score := range scores {
		pairs = append(pairs, pair{score, pos})
		mean += score
	}
	mean /= float64(len(scores))
	for _, score := range scores {
		diff := score - mean
		stddev += diff * diff
	}
	stddev = math.Sqrt(stddev / float64(len(scores)-1))

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })
	out := make([]Suggestion, 0, maxHits)
	last := pairs[0].score
	for i := 0; i < len(pairs) && i < maxHits; i++ {
		pr := pairs[i]
		if math.Abs(pr.score-last) > stddev {
			break
		}
		out = append(out, Suggestion{Account: string(b.classes[pr.pos]), Score: pr.score, Source: "bayes"})
		last = pr.score
	}
	return out
}
