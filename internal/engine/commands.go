package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"quickledger/internal/command"
	"quickledger/internal/journal"
	"quickledger/internal/ledger"
	"quickledger/internal/rules"
	"quickledger/internal/store"
)

var rmonth = regexp.MustCompile(`^(\d{4})[-/](\d{2})$`)

func (e *Engine) builtins() []command.Command {
	return []command.Command{
		&command.Func{
			Use:   "help",
			Alias: []string{"?"},
			Help:  "list commands, or describe one",
			Run:   e.help,
		},
		&command.Func{
			Use:   "add",
			Alias: []string{"a"},
			Help:  `add <item> <amount>[, ...] [@ merchant] [with payment] [for entity] [on date] [memo "..."]`,
			Check: required("nothing to add. Example: " + ledger.AddExample),
			Run:   e.add,
		},
		&command.Func{
			Use:   "balance",
			Alias: []string{"bal"},
			Help:  "account totals, for one month (YYYY-MM) or all included journals",
			Check: func(args string) error {
				if a := strings.TrimSpace(args); a != "" && !rmonth.MatchString(a) {
					return errors.Errorf("expected a month like 2025-09, got %q", a)
				}
				return nil
			},
			Run: e.balance,
		},
		&command.Func{
			Use:   "accounts",
			Alias: []string{"acc"},
			Help:  "declared accounts and their aliases",
			Run:   e.accounts,
		},
		&command.Func{
			Use:  "rules",
			Help: "merged rules by precedence: rules [items|merchants|payments]",
			Check: func(args string) error {
				switch strings.ToLower(strings.TrimSpace(args)) {
				case "", "items", "merchants", "payments":
					return nil
				}
				return errors.Errorf("unknown rule list %q", args)
			},
			Run: e.listRules,
		},
		&command.Func{
			Use:   "list",
			Alias: []string{"ls"},
			Help:  "files included by " + journal.ManifestPath,
			Run:   e.list,
		},
		&command.Func{
			Use:  "log",
			Help: "commits of one file, or of the whole repository",
			Check: func(args string) error {
				if p := strings.TrimSpace(args); p != "" {
					_, err := store.CleanPath(p)
					return err
				}
				return nil
			},
			Run: e.history,
		},
		&command.Func{
			Use:   "load",
			Alias: []string{"reload"},
			Help:  "drop cached rules and load them again",
			Run:   e.load,
		},
		&command.Func{
			Use:  "save",
			Help: "save <path> followed by the file content on the next lines",
			Check: func(args string) error {
				p, _ := splitPath(args)
				if p == "" {
					return errors.New("path required")
				}
				_, err := store.CleanPath(p)
				return err
			},
			Run: func(ctx context.Context, args string) (command.Result, error) {
				p, body := splitPath(args)
				if body != "" && !strings.HasSuffix(body, "\n") {
					body += "\n"
				}
				return e.save(ctx, p, body)
			},
		},
		&command.Func{
			Use:   "suggest",
			Help:  "suggest accounts for an item",
			Check: required("item required"),
			Run:   e.suggestAccounts,
		},
		&command.Func{
			Use:  "stats",
			Help: "counters for this session",
			Run:  e.stats,
		},
	}
}

func required(msg string) func(string) error {
	return func(args string) error {
		if strings.TrimSpace(args) == "" {
			return errors.New(msg)
		}
		return nil
	}
}

// splitPath separates `<path>\n<body>`.
func splitPath(args string) (string, string) {
	args = strings.TrimLeft(args, " \t")
	idx := strings.IndexByte(args, '\n')
	if idx < 0 {
		return strings.TrimSpace(args), ""
	}
	return strings.TrimSpace(args[:idx]), args[idx+1:]
}

func (e *Engine) help(_ context.Context, args string) (command.Result, error) {
	name := strings.TrimSpace(args)
	if name == "" {
		return command.Success("Commands", e.registry.Usage()...), nil
	}
	c, ok := e.registry.Lookup(name)
	if !ok {
		return command.Result{}, errors.Wrapf(command.ErrUnknown, "%s", name)
	}
	return command.Success(c.Name() + ": " + c.Summary()), nil
}

type balanceKey struct {
	account  string
	currency string
}

func (e *Engine) balance(ctx context.Context, args string) (command.Result, error) {
	var paths []string
	label := "all journals"
	if m := rmonth.FindStringSubmatch(strings.TrimSpace(args)); m != nil {
		paths = []string{journal.Path(m[1] + "/" + m[2] + "/01")}
		label = m[1] + "-" + m[2]
	} else {
		manifest, err := e.st.ReadFile(ctx, journal.ManifestPath)
		if err != nil && !store.IsNotFound(err) {
			return command.Result{}, err
		}
		for _, p := range journal.Includes(string(manifest)) {
			if strings.HasPrefix(p, journal.Dir+"/") {
				paths = append(paths, p)
			}
		}
	}

	totals := make(map[balanceKey]decimal.Decimal)
	var entries int
	for _, p := range paths {
		data, err := e.st.ReadFile(ctx, p)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return command.Result{}, errors.Wrapf(err, "read %s", p)
		}
		for _, entry := range ledger.ParseJournal(string(data)) {
			entries++
			for _, ps := range entry.Balanced() {
				if !ps.HasAmount {
					continue
				}
				k := balanceKey{ps.Account, ps.Currency}
				totals[k] = totals[k].Add(ps.Amount)
			}
		}
	}
	if entries == 0 {
		return command.Success("No entries in " + label), nil
	}

	keys := make([]balanceKey, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].account != keys[j].account {
			return keys[i].account < keys[j].account
		}
		return keys[i].currency < keys[j].currency
	})
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, strings.TrimRight(fmt.Sprintf("%-40s %12s %s", k.account, totals[k].StringFixed(2), k.currency), " "))
	}
	return command.Success(fmt.Sprintf("Balance for %s (%d entries)", label, entries), lines...), nil
}

func (e *Engine) accounts(ctx context.Context, _ string) (command.Result, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return command.Result{}, err
	}
	if snap.Catalog.Len() == 0 {
		return command.Success("No accounts declared in " + rules.AccountsPath), nil
	}
	var lines []string
	for _, name := range snap.Catalog.Names() {
		line := name
		for _, a := range snap.Catalog.Accounts {
			if a.Name == name && len(a.Aliases) > 0 {
				line += " (" + strings.Join(a.Aliases, ", ") + ")"
			}
		}
		lines = append(lines, line)
	}
	return command.Success(fmt.Sprintf("%d accounts", snap.Catalog.Len()), lines...), nil
}

func (e *Engine) listRules(ctx context.Context, args string) (command.Result, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return command.Result{}, err
	}
	lists := []struct {
		name string
		list []rules.Rule
	}{
		{"items", snap.Rules.Items},
		{"merchants", snap.Rules.Merchants},
		{"payments", snap.Rules.Payments},
	}
	want := strings.ToLower(strings.TrimSpace(args))
	var lines []string
	var n int
	for _, l := range lists {
		if want != "" && want != l.name {
			continue
		}
		lines = append(lines, l.name+":")
		for _, r := range l.list {
			n++
			line := fmt.Sprintf("  %3d  %-30s -> %s", r.Priority, r.Pattern, r.Account)
			if r.Learned {
				line += fmt.Sprintf("  (learned, confidence %.2f, used %d)", r.Confidence, r.UsageCount)
			}
			lines = append(lines, line)
		}
	}
	d := snap.Rules.Defaults
	lines = append(lines, fmt.Sprintf("defaults: entity=%s currency=%s credit=%s", d.Entity, d.Currency, d.FallbackCreditAccount))
	res := command.Success(fmt.Sprintf("%d rules", n), lines...)
	if snap.Rules.Skipped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d rule(s) skipped for an invalid pattern", snap.Rules.Skipped))
	}
	return res, nil
}

func (e *Engine) list(ctx context.Context, _ string) (command.Result, error) {
	data, err := e.st.ReadFile(ctx, journal.ManifestPath)
	if store.IsNotFound(err) {
		return command.Success(journal.ManifestPath + " does not exist yet"), nil
	}
	if err != nil {
		return command.Result{}, err
	}
	includes := journal.Includes(string(data))
	return command.Success(fmt.Sprintf("%d included files", len(includes)), includes...), nil
}

func (e *Engine) history(ctx context.Context, args string) (command.Result, error) {
	h, ok := e.st.(store.Historian)
	if !ok {
		return command.Result{}, errors.New("this store keeps no history")
	}
	p := strings.TrimSpace(args)
	if p != "" {
		var err error
		if p, err = store.CleanPath(p); err != nil {
			return command.Result{}, err
		}
	}
	commits, err := h.History(ctx, p)
	if err != nil {
		return command.Result{}, err
	}
	label := p
	if label == "" {
		label = "repository"
	}
	if len(commits) == 0 {
		return command.Success("No commits for " + label), nil
	}
	lines := make([]string, 0, len(commits))
	for _, c := range commits {
		lines = append(lines, fmt.Sprintf("%s  %-28s %s", c.Time.Format("2006/01/02 15:04"), c.Path, c.Message))
	}
	return command.Success(fmt.Sprintf("%d commits for %s", len(commits), label), lines...), nil
}

func (e *Engine) load(ctx context.Context, _ string) (command.Result, error) {
	e.cache.Invalidate(e.repoID)
	snap, err := e.snapshot(ctx)
	if err != nil {
		return command.Result{}, err
	}
	set := snap.Rules
	res := command.Success(fmt.Sprintf("Loaded %d item, %d merchant and %d payment rules; %d accounts",
		len(set.Items), len(set.Merchants), len(set.Payments), snap.Catalog.Len()))
	if set.Skipped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d rule(s) skipped for an invalid pattern", set.Skipped))
	}
	return res, nil
}

func (e *Engine) suggestAccounts(ctx context.Context, args string) (command.Result, error) {
	item := strings.TrimSpace(args)
	hits, warnings, err := e.suggestions(ctx, item)
	if err != nil {
		return command.Result{}, err
	}
	if len(hits) == 0 {
		res := command.Success("No suggestions for " + item)
		res.Warnings = warnings
		return res, nil
	}
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, fmt.Sprintf("%-40s %-7s %.2f", h.Account, h.Source, h.Score))
	}
	res := command.Success("Suggestions for "+item, lines...)
	res.Warnings = warnings
	return res, nil
}

func (e *Engine) stats(_ context.Context, _ string) (command.Result, error) {
	s := e.metrics.Snapshot()
	return command.Success("Session stats",
		fmt.Sprintf("entries appended   %.0f", s.EntriesAppended),
		fmt.Sprintf("journals created   %.0f", s.JournalsCreated),
		fmt.Sprintf("manifest failures  %.0f", s.ManifestFailures),
		fmt.Sprintf("rules created      %.0f", s.RulesCreated),
		fmt.Sprintf("rules updated      %.0f", s.RulesUpdated),
		fmt.Sprintf("rule loads         %.0f", s.RuleLoads),
		fmt.Sprintf("append time        %.3fs over %d appends", s.AppendSeconds, s.Appends),
	), nil
}
