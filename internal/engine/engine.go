// Package engine runs a quickledger session: it classifies each input line and
// either dispatches a command or appends a ledger entry.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"quickledger/internal/command"
	"quickledger/internal/intent"
	"quickledger/internal/journal"
	"quickledger/internal/learn"
	"quickledger/internal/ledger"
	"quickledger/internal/metrics"
	"quickledger/internal/rules"
	"quickledger/internal/store"
	"quickledger/internal/suggest"
)

// Advisor proposes accounts for an item, e.g. suggest.Claude.
type Advisor interface {
	Suggest(ctx context.Context, item string, accounts []string) ([]suggest.Suggestion, error)
}

type Config struct {
	RepoID  string
	Store   store.Store
	Cache   *rules.Cache
	Logger  *log.Logger
	Metrics *metrics.Metrics
	Sink    Sink
	Advisor Advisor
	Now     func() time.Time
}

type Engine struct {
	repoID  string
	st      store.Store
	cache   *rules.Cache
	logger  *log.Logger
	metrics *metrics.Metrics
	sink    Sink
	advisor Advisor
	now     func() time.Time

	registry   *command.Registry
	classifier *intent.Classifier
	parser     ledger.Parser
	appender   *journal.Appender
	learner    *learn.Learner

	mu        sync.Mutex
	generated map[string][]learn.Generated
	bayes     *suggest.Bayes
	bayesFor  *rules.Snapshot

	learning sync.WaitGroup
}

func New(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sink == nil {
		cfg.Sink = discard{}
	}
	if cfg.Cache == nil {
		cfg.Cache = rules.NewCache(&rules.Loader{Logger: cfg.Logger, Metrics: cfg.Metrics})
	}
	e := &Engine{
		repoID:    cfg.RepoID,
		st:        cfg.Store,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		sink:      cfg.Sink,
		advisor:   cfg.Advisor,
		now:       cfg.Now,
		parser:    ledger.Parser{Now: cfg.Now},
		generated: make(map[string][]learn.Generated),
	}
	e.appender = &journal.Appender{Logger: cfg.Logger, Metrics: cfg.Metrics, Now: cfg.Now}
	e.learner = &learn.Learner{Logger: cfg.Logger, Metrics: cfg.Metrics, Invalidator: cfg.Cache}
	e.registry = command.NewRegistry(cfg.Logger)
	e.registry.MustRegister(e.builtins()...)
	e.classifier = intent.NewClassifier(e.registry)
	return e
}

func (e *Engine) Registry() *command.Registry { return e.registry }

// Handle processes one line (or block) of input. It never panics and never
// returns an error: failures come back as a Result with OK unset.
func (e *Engine) Handle(ctx context.Context, input string) command.Result {
	in := e.classifier.Classify(input)
	var res command.Result
	switch in.Kind {
	case intent.Command:
		e.sink.Status("Running " + in.Name)
		res = e.registry.Execute(ctx, in.Name, in.Args)
	case intent.LedgerEntry:
		e.sink.Status("Appending entry")
		res = e.appendText(ctx, in.Text)
	default:
		if in.Text == "" {
			return command.Result{}
		}
		res = command.Failure(errors.Errorf("invalid input: %q is neither a command nor a ledger entry (try help)", firstLine(in.Text)))
	}
	e.report(res)
	e.sink.Status("Ready")
	return res
}

// Wait blocks until background learning has finished.
func (e *Engine) Wait() {
	e.learning.Wait()
}

func (e *Engine) report(res command.Result) {
	for _, w := range res.Warnings {
		e.emit(Warning, w)
	}
	switch {
	case !res.OK:
		e.emit(Error, res.Message)
	case res.Message != "":
		e.emit(Success, res.Message)
	}
}

func (e *Engine) emit(level Level, msg string) {
	e.sink.Emit(Event{Level: level, Message: msg, Time: e.now()})
}

func (e *Engine) snapshot(ctx context.Context) (*rules.Snapshot, error) {
	return e.cache.GetOrLoad(ctx, e.repoID, e.st)
}

// add parses free text, resolves accounts and appends the formatted entry.
func (e *Engine) add(ctx context.Context, args string) (command.Result, error) {
	cmd, err := e.parser.ParseAdd(args)
	if err != nil {
		return command.Result{}, err
	}
	snap, err := e.snapshot(ctx)
	if err != nil {
		return command.Result{}, err
	}
	tx := rules.Resolve(cmd, snap.Rules)
	text, err := ledger.Format(tx, "", e.now())
	if err != nil {
		return command.Result{}, err
	}
	entry, err := ledger.ParseEntry(text)
	if err != nil {
		return command.Result{}, &ledger.InvariantError{Msg: "generated entry does not parse: " + err.Error()}
	}
	if err := entry.CheckBalance(); err != nil {
		return command.Result{}, &ledger.InvariantError{Msg: err.Error()}
	}

	res, err := e.appender.Append(ctx, e.st, entry)
	if err != nil {
		return command.Result{}, err
	}
	items := make([]string, 0, len(tx.Debits))
	for _, d := range tx.Debits {
		items = append(items, d.Item)
	}
	e.mu.Lock()
	e.generated[res.JournalPath] = append(e.generated[res.JournalPath], learn.Generated{Entry: entry, Items: items})
	e.mu.Unlock()

	out := appended(res, entry)
	out.Warnings = append(out.Warnings, undeclared(snap.Catalog, entry)...)
	return out, nil
}

// appendText appends an entry typed out in ledger syntax.
func (e *Engine) appendText(ctx context.Context, text string) command.Result {
	entry, err := ledger.ParseEntry(text)
	if err != nil {
		return command.Failure(errors.Wrap(err, "invalid entry"))
	}
	if err := entry.CheckBalance(); err != nil {
		return command.Failure(errors.Wrap(err, "invalid entry"))
	}
	res, err := e.appender.Append(ctx, e.st, entry)
	if err != nil {
		return command.Failure(err)
	}
	return appended(res, entry)
}

func appended(res *journal.Result, entry *ledger.Entry) command.Result {
	msg := "Added to " + res.JournalPath
	if res.Created {
		msg = "Created " + res.JournalPath
	}
	out := command.Success(msg, strings.Split(strings.TrimRight(entry.Text, "\n"), "\n")...)
	out.Warnings = append(out.Warnings, res.Warnings...)
	return out
}

func undeclared(catalog *rules.Catalog, entry *ledger.Entry) []string {
	if catalog.Len() == 0 {
		return nil
	}
	var out []string
	for _, p := range entry.Postings {
		if !catalog.Has(p.Account) {
			out = append(out, fmt.Sprintf("account %s is not declared in %s", p.Account, rules.AccountsPath))
		}
	}
	return out
}

// save writes a file the user edited. Rule files invalidate the cached rules
// before save returns; journals are compared against the entries this session
// generated and any account corrections are learned in the background.
func (e *Engine) save(ctx context.Context, p, body string) (command.Result, error) {
	p, err := store.CleanPath(p)
	if err != nil {
		return command.Result{}, err
	}
	if err := e.st.WriteFile(ctx, p, []byte(body), "Update "+p); err != nil {
		return command.Result{}, errors.Wrapf(err, "write %s", p)
	}
	if rules.IsRulePath(p) {
		e.cache.Invalidate(e.repoID)
		return command.Success("Saved " + p + ", rules will reload"), nil
	}

	corrections := e.takeCorrections(p, body)
	if len(corrections) == 0 {
		return command.Success("Saved " + p), nil
	}
	e.learning.Add(1)
	go e.runLearning(context.WithoutCancel(ctx), corrections)
	return command.Success(fmt.Sprintf("Saved %s, learning from %d correction(s)", p, len(corrections))), nil
}

// takeCorrections diffs body against the generated entries of p. Entries that
// produced corrections are forgotten so a later save does not learn twice.
func (e *Engine) takeCorrections(p, body string) []learn.Correction {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []learn.Correction
	var keep []learn.Generated
	for _, g := range e.generated[p] {
		cs := learn.Corrections(g, body)
		if len(cs) == 0 {
			keep = append(keep, g)
			continue
		}
		out = append(out, cs...)
	}
	e.generated[p] = keep
	return out
}

func (e *Engine) runLearning(ctx context.Context, corrections []learn.Correction) {
	defer e.learning.Done()
	for _, c := range corrections {
		ok, err := e.learner.Learn(ctx, e.repoID, e.st, c)
		switch {
		case err != nil:
			if e.logger != nil {
				e.logger.Warn("learning failed", "item", c.Item, "err", err)
			}
			e.emit(Warning, fmt.Sprintf("could not learn %s -> %s: %v", c.Item, c.Final, err))
		case ok:
			e.emit(Info, fmt.Sprintf("Learned: %s -> %s", c.Item, c.Final))
		}
	}
}

func (e *Engine) suggestions(ctx context.Context, item string) ([]suggest.Suggestion, []string, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	var out []suggest.Suggestion
	var warnings []string

	e.mu.Lock()
	if e.bayesFor != snap {
		e.bayes, err = suggest.NewBayes(snap.Rules, snap.Catalog)
		e.bayesFor = snap
	}
	b := e.bayes
	e.mu.Unlock()
	if err != nil && !errors.Is(err, suggest.ErrTooFewClasses) {
		return nil, nil, err
	}
	if b != nil {
		out = append(out, b.Suggest(item)...)
	}

	if e.advisor != nil {
		ai, err := e.advisor.Suggest(ctx, item, snap.Catalog.Names())
		if err != nil {
			warnings = append(warnings, "AI suggestions unavailable: "+err.Error())
		}
		out = append(out, ai...)
	}
	return out, warnings, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
