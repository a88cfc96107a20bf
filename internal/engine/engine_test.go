package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"quickledger/internal/journal"
	"quickledger/internal/metrics"
	"quickledger/internal/rules"
	"quickledger/internal/store"
	"quickledger/internal/suggest"
)

const templates = `{
  "version": 1,
  "defaults": {"entity": "Personal", "currency": "USD", "fallbackCreditAccount": "Personal:Assets:Cash"},
  "items": [
    {"pattern": "coffee", "debit": "Personal:Expenses:Food:Cafe", "priority": 10},
    {"pattern": "taxi", "debit": "Personal:Expenses:Transport"}
  ],
  "merchants": [
    {"pattern": "starbucks", "defaultDebit": "Personal:Expenses:Food:Starbucks"}
  ],
  "payments": [
    {"pattern": "^kbank$", "credit": "Personal:Assets:KBank"}
  ]
}`

type EngineSuite struct {
	suite.Suite
	st      *store.Memory
	sink    *Recorder
	metrics *metrics.Metrics
	engine  *Engine
	ctx     context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.st = store.NewMemory()
	s.st.Put(rules.TemplatePath, templates)
	s.sink = &Recorder{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.engine = New(Config{
		RepoID:  "me/ledger",
		Store:   s.st,
		Metrics: s.metrics,
		Sink:    s.sink,
		Now:     func() time.Time { return time.Date(2025, 9, 15, 9, 30, 0, 0, time.UTC) },
	})
}

func (s *EngineSuite) lastEvent() Event {
	events := s.sink.Events()
	s.Require().NotEmpty(events)
	return events[len(events)-1]
}

func (s *EngineSuite) TestAdd() {
	res := s.engine.Handle(s.ctx, "add coffee 10 @ Starbucks with kbank")
	s.Require().True(res.OK, res.Message)
	s.Equal("Created journals/2025-09.journal", res.Message)

	text := s.st.Get("journals/2025-09.journal")
	s.Contains(text, "2025/09/15 Starbucks\n")
	s.Contains(text, "    Personal:Expenses:Food:Cafe              10.00 USD\n")
	s.Contains(text, "    Personal:Assets:KBank                    -10.00 USD\n")
	s.Equal("!include journals/2025-09.journal\n", s.st.Get(journal.ManifestPath))

	s.Equal(Success, s.lastEvent().Level)
	s.Equal("Ready", s.sink.CurrentStatus())
	s.Equal(float64(1), s.metrics.Snapshot().EntriesAppended)
}

func (s *EngineSuite) TestAddAliasAndSecondEntry() {
	s.Require().True(s.engine.Handle(s.ctx, "a taxi 12.50 on 2025-09-01").OK)
	res := s.engine.Handle(s.ctx, "add coffee 3")
	s.Require().True(res.OK, res.Message)
	s.Equal("Added to journals/2025-09.journal", res.Message)

	text := s.st.Get("journals/2025-09.journal")
	s.Equal(2, strings.Count(text, "Personal:Assets:Cash"))
	s.Contains(text, "\n2025/09/15 coffee\n")
	s.NotContains(text, "\n\n2025/09/15 coffee\n")
	s.Equal([]string{"journals/2025-09.journal"}, journal.Includes(s.st.Get(journal.ManifestPath)))
}

func (s *EngineSuite) TestAddParseError() {
	res := s.engine.Handle(s.ctx, "add @ Starbucks")
	s.False(res.OK)
	s.Contains(res.Message, "Example:")
	s.Equal(Error, s.lastEvent().Level)
	s.Empty(s.st.Get("journals/2025-09.journal"))

	res = s.engine.Handle(s.ctx, "add coffee 10 on 2025-13-45")
	s.False(res.OK)
	s.Contains(res.Message, `invalid date "2025-13-45"`)
	s.NotContains(res.Message, "invariant")
	s.Empty(s.st.Get(journal.ManifestPath))
}

func (s *EngineSuite) TestAddStoreUnavailable() {
	s.st.FailReads = true
	res := s.engine.Handle(s.ctx, "add coffee 10")
	s.False(res.OK)
	s.True(errors.Is(res.Err, rules.ErrStoreUnavailable))
}

func (s *EngineSuite) TestAddWarnsAboutUndeclaredAccounts() {
	s.st.Put(rules.AccountsPath, "account Personal:Expenses:Food:Cafe\naccount Personal:Assets:Cash\n")
	res := s.engine.Handle(s.ctx, "add coffee 10, taxi 5")
	s.Require().True(res.OK)
	s.Require().Len(res.Warnings, 1)
	s.Contains(res.Warnings[0], "Personal:Expenses:Transport")
}

func (s *EngineSuite) TestRawEntry() {
	res := s.engine.Handle(s.ctx, "2025/08/02 Rent\n    Expenses:Rent  900.00 USD\n    Assets:Bank\n")
	s.Require().True(res.OK, res.Message)
	s.Contains(s.st.Get("journals/2025-08.journal"), "2025/08/02 Rent\n    Expenses:Rent  900.00 USD\n")

	res = s.engine.Handle(s.ctx, "2025/08/03 Broken\n    Expenses:Rent  900.00 USD\n    Assets:Bank  -800.00 USD\n")
	s.False(res.OK)
	s.Contains(res.Message, "does not balance")
}

func (s *EngineSuite) TestInvalidInput() {
	res := s.engine.Handle(s.ctx, "buy milk")
	s.False(res.OK)
	s.Contains(res.Message, "invalid input")

	before := len(s.sink.Events())
	res = s.engine.Handle(s.ctx, "   ")
	s.False(res.OK)
	s.Empty(res.Message)
	s.Len(s.sink.Events(), before)
}

func (s *EngineSuite) TestSaveJournalLearns() {
	s.Require().True(s.engine.Handle(s.ctx, "add coffee 10 @ Starbucks with kbank").OK)
	edited := strings.Replace(s.st.Get("journals/2025-09.journal"),
		"Personal:Expenses:Food:Cafe", "Personal:Expenses:Food:Coffee", 1)

	res := s.engine.Handle(s.ctx, "save journals/2025-09.journal\n"+edited)
	s.Require().True(res.OK, res.Message)
	s.Contains(res.Message, "learning from 1 correction")
	s.engine.Wait()

	doc, err := rules.ParseDocument([]byte(s.st.Get(rules.LearnedPath)))
	s.Require().NoError(err)
	s.Require().Len(doc.Items, 1)
	s.Equal("Personal:Expenses:Food:Coffee", doc.Items[0].Account)
	s.Equal(edited, s.st.Get("journals/2025-09.journal"))

	res = s.engine.Handle(s.ctx, "add coffee 4")
	s.Require().True(res.OK)
	s.Contains(strings.Join(res.Lines, "\n"), "Personal:Expenses:Food:Coffee")

	var learned bool
	for _, ev := range s.sink.Events() {
		if ev.Level == Info && strings.HasPrefix(ev.Message, "Learned: coffee") {
			learned = true
		}
	}
	s.True(learned)

	// The corrected entry is not learned from twice.
	res = s.engine.Handle(s.ctx, "save journals/2025-09.journal\n"+s.st.Get("journals/2025-09.journal"))
	s.Require().True(res.OK)
	s.NotContains(res.Message, "learning")
}

func (s *EngineSuite) TestLearningFailureDoesNotFailSave() {
	s.Require().True(s.engine.Handle(s.ctx, "add coffee 10").OK)
	s.st.FailPaths = map[string]error{rules.LearnedPath: errors.New("read-only")}
	edited := strings.Replace(s.st.Get("journals/2025-09.journal"), "Food:Cafe", "Food:Coffee", 1)

	res := s.engine.Handle(s.ctx, "save journals/2025-09.journal\n"+edited)
	s.Require().True(res.OK)
	s.engine.Wait()
	var warned bool
	for _, ev := range s.sink.Events() {
		if ev.Level == Warning && strings.Contains(ev.Message, "read-only") {
			warned = true
		}
	}
	s.True(warned)
}

func (s *EngineSuite) TestSaveRulesInvalidatesCache() {
	s.Require().True(s.engine.Handle(s.ctx, "load").OK)
	res := s.engine.Handle(s.ctx, `save rules/20-user.json
{"items": [{"pattern": "coffee", "account": "Personal:Expenses:Coffee", "priority": 50}]}`)
	s.Require().True(res.OK, res.Message)

	res = s.engine.Handle(s.ctx, "add coffee 2")
	s.Require().True(res.OK)
	s.Contains(strings.Join(res.Lines, "\n"), "Personal:Expenses:Coffee ")
}

func (s *EngineSuite) TestSaveValidation() {
	s.False(s.engine.Handle(s.ctx, "save").OK)
	res := s.engine.Handle(s.ctx, "save ../outside\nx")
	s.False(res.OK)
}

func (s *EngineSuite) TestBalance() {
	s.Require().True(s.engine.Handle(s.ctx, "add coffee 10 with kbank").OK)
	s.Require().True(s.engine.Handle(s.ctx, "add coffee 5.50 with kbank").OK)
	s.Require().True(s.engine.Handle(s.ctx, "add taxi 20 on 2025-08-30").OK)

	res := s.engine.Handle(s.ctx, "bal 2025-09")
	s.Require().True(res.OK, res.Message)
	s.Equal("Balance for 2025-09 (2 entries)", res.Message)
	s.Equal([]string{
		"Personal:Assets:KBank                          -15.50 USD",
		"Personal:Expenses:Food:Cafe                     15.50 USD",
	}, res.Lines)

	res = s.engine.Handle(s.ctx, "balance")
	s.Require().True(res.OK)
	s.Equal("Balance for all journals (3 entries)", res.Message)
	s.Len(res.Lines, 4)

	s.False(s.engine.Handle(s.ctx, "balance september").OK)
	s.Equal("No entries in 2024-01", s.engine.Handle(s.ctx, "balance 2024-01").Message)
}

func (s *EngineSuite) TestListAccountsRules() {
	s.Equal("main.journal does not exist yet", s.engine.Handle(s.ctx, "ls").Message)
	s.Require().True(s.engine.Handle(s.ctx, "add coffee 1").OK)
	res := s.engine.Handle(s.ctx, "list")
	s.Equal([]string{"journals/2025-09.journal"}, res.Lines)

	s.Contains(s.engine.Handle(s.ctx, "accounts").Message, "No accounts declared")
	s.st.Put(rules.AccountsPath, "account Personal:Assets:KBank\n    alias kbank\n")
	s.Require().True(s.engine.Handle(s.ctx, "reload").OK)
	res = s.engine.Handle(s.ctx, "acc")
	s.Equal([]string{"Personal:Assets:KBank (kbank)"}, res.Lines)

	res = s.engine.Handle(s.ctx, "rules payments")
	s.Require().True(res.OK)
	s.Equal("1 rules", res.Message)
	s.False(s.engine.Handle(s.ctx, "rules everything").OK)
}

func (s *EngineSuite) TestLog() {
	s.Equal("No commits for repository", s.engine.Handle(s.ctx, "log").Message)
	s.Require().True(s.engine.Handle(s.ctx, "add coffee 1").OK)
	s.Require().True(s.engine.Handle(s.ctx, "add taxi 4").OK)

	res := s.engine.Handle(s.ctx, "log")
	s.Require().True(res.OK, res.Message)
	s.Equal("3 commits for repository", res.Message)

	res = s.engine.Handle(s.ctx, "log /journals/2025-09.journal")
	s.Require().True(res.OK, res.Message)
	s.Equal("2 commits for journals/2025-09.journal", res.Message)
	s.Require().Len(res.Lines, 2)
	s.Contains(res.Lines[0], "Add 2025/09/15 coffee")
	s.Contains(res.Lines[1], "Add 2025/09/15 taxi")

	s.False(s.engine.Handle(s.ctx, "log ../outside").OK)
}

func (s *EngineSuite) TestHelpAndStats() {
	res := s.engine.Handle(s.ctx, "?")
	s.Require().True(res.OK)
	s.Len(res.Lines, len(s.engine.Registry().Names()))

	res = s.engine.Handle(s.ctx, "help bal")
	s.True(strings.HasPrefix(res.Message, "balance:"))
	s.False(s.engine.Handle(s.ctx, "help nope").OK)

	s.Require().True(s.engine.Handle(s.ctx, "add coffee 1").OK)
	res = s.engine.Handle(s.ctx, "stats")
	s.Contains(res.Lines[0], "entries appended   1")
}

type fakeAdvisor struct {
	err error
}

func (f fakeAdvisor) Suggest(_ context.Context, item string, _ []string) ([]suggest.Suggestion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []suggest.Suggestion{{Account: "Personal:Expenses:AI:" + item, Score: 0.9, Source: "claude"}}, nil
}

func (s *EngineSuite) TestSuggest() {
	res := s.engine.Handle(s.ctx, "suggest coffee")
	s.Require().True(res.OK, res.Message)
	s.Require().NotEmpty(res.Lines)
	s.True(strings.HasPrefix(res.Lines[0], "Personal:Expenses:Food:Cafe"))

	s.engine.advisor = fakeAdvisor{}
	res = s.engine.Handle(s.ctx, "suggest tea")
	s.Require().True(res.OK)
	s.Contains(strings.Join(res.Lines, "\n"), "Personal:Expenses:AI:tea")

	s.engine.advisor = fakeAdvisor{err: errors.New("rate limited")}
	res = s.engine.Handle(s.ctx, "suggest tea")
	s.True(res.OK)
	s.Require().Len(res.Warnings, 1)
	s.Contains(res.Warnings[0], "rate limited")
}

func TestHandleWithoutSink(t *testing.T) {
	e := New(Config{RepoID: "r", Store: store.NewMemory()})
	res := e.Handle(context.Background(), "add tea 2")
	require.True(t, res.OK, res.Message)
	assert.Contains(t, strings.Join(res.Lines, "\n"), "Personal:Expenses:General")
	e.Wait()
}
