package journal

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickledger/internal/ledger"
	"quickledger/internal/metrics"
	"quickledger/internal/store"
)

const coffee = "2025/09/15 Coffee\n    Expenses:Food  5.00 USD\n    Assets:Bank  -5.00 USD\n"

func entry(t *testing.T, text string) *ledger.Entry {
	t.Helper()
	e, err := ledger.ParseEntry(text)
	require.NoError(t, err)
	return e
}

func appender() *Appender {
	return &Appender{Now: func() time.Time { return time.Date(2025, 9, 20, 8, 0, 0, 0, time.UTC) }}
}

func TestPath(t *testing.T) {
	assert.Equal(t, "journals/2025-09.journal", Path("2025/09/15"))
	assert.Equal(t, "journals/2024-12.journal", Path("2024-12-31"))
}

func TestAppendCreatesJournal(t *testing.T) {
	st := store.NewMemory()
	m := metrics.New(prometheus.NewRegistry())
	a := appender()
	a.Metrics = m

	res, err := a.Append(context.Background(), st, entry(t, coffee))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "journals/2025-09.journal", res.JournalPath)
	assert.Equal(t,
		"; Journal for September 2025\n; Created by quickledger on 2025/09/20\n\n"+coffee,
		st.Get(res.JournalPath))
	assert.Equal(t, "!include journals/2025-09.journal\n", st.Get(ManifestPath))

	history, err := st.History(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Add 2025/09/15 Coffee", history[0].Message)
	assert.Equal(t, "Include journals/2025-09.journal", history[1].Message)

	snap := m.Snapshot()
	assert.Equal(t, float64(1), snap.EntriesAppended)
	assert.Equal(t, float64(1), snap.JournalsCreated)
	assert.Equal(t, uint64(1), snap.Appends)
}

func TestAppendUsesEntryDateNotToday(t *testing.T) {
	st := store.NewMemory()
	res, err := appender().Append(context.Background(), st,
		entry(t, "2024/01/03 Rent\n    Expenses:Rent  900.00 USD\n    Assets:Bank\n"))
	require.NoError(t, err)
	assert.Equal(t, "journals/2024-01.journal", res.JournalPath)
}

func TestAppendExisting(t *testing.T) {
	cases := map[string]string{
		"":                      coffee,
		"; header\n":            "; header\n" + coffee,
		"; header\n\nold\n":     "; header\n\nold\n" + coffee,
		"; no trailing newline": "; no trailing newline\n\n" + coffee,
	}
	for existing, want := range cases {
		st := store.NewMemory()
		st.Put("journals/2025-09.journal", existing)
		st.Put(ManifestPath, "!include journals/2025-09.journal\n")
		res, err := appender().Append(context.Background(), st, entry(t, coffee))
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, want, st.Get(res.JournalPath), "%q", existing)
		history, _ := st.History(context.Background(), ManifestPath)
		assert.Empty(t, history)
	}
}

func TestAppendTwiceIncludesOnce(t *testing.T) {
	st := store.NewMemory()
	a := appender()
	_, err := a.Append(context.Background(), st, entry(t, coffee))
	require.NoError(t, err)
	_, err = a.Append(context.Background(), st, entry(t, "2025/09/16 Tea\n    Expenses:Food  2.00 USD\n    Assets:Bank  -2.00 USD\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"journals/2025-09.journal"}, Includes(st.Get(ManifestPath)))
}

func TestAppendManifestFailureIsWarning(t *testing.T) {
	st := store.NewMemory()
	st.FailPaths = map[string]error{ManifestPath: errors.New("permission denied")}
	m := metrics.New(prometheus.NewRegistry())
	a := appender()
	a.Metrics = m

	res, err := a.Append(context.Background(), st, entry(t, coffee))
	require.NoError(t, err)
	assert.True(t, res.Created)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "permission denied")
	assert.Contains(t, st.Get(res.JournalPath), "2025/09/15 Coffee")
	assert.Equal(t, float64(1), m.Snapshot().ManifestFailures)
}

func TestAppendWriteFailure(t *testing.T) {
	st := store.NewMemory()
	st.FailWrites = true
	_, err := appender().Append(context.Background(), st, entry(t, coffee))
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))
}

func TestAppendReadFailureAborts(t *testing.T) {
	st := store.NewMemory()
	st.FailReads = true
	_, err := appender().Append(context.Background(), st, entry(t, coffee))
	require.Error(t, err)
	history, _ := st.History(context.Background(), "")
	assert.Empty(t, history)
}

func TestAddIncludeIdempotent(t *testing.T) {
	once, changed := AddInclude("", "journals/2025-09.journal")
	require.True(t, changed)
	twice, changed := AddInclude(once, "journals/2025-09.journal")
	assert.False(t, changed)
	assert.Equal(t, once, twice)
	assert.Len(t, Includes(twice), 1)
}

func TestAddIncludeAfterLastInclude(t *testing.T) {
	manifest := "; main\n!include accounts.journal\ninclude journals/2025-08.journal\n\n; trailing notes\n"
	got, changed := AddInclude(manifest, "journals/2025-09.journal")
	require.True(t, changed)
	assert.Equal(t,
		"; main\n!include accounts.journal\ninclude journals/2025-08.journal\n!include journals/2025-09.journal\n\n; trailing notes\n",
		got)

	_, changed = AddInclude(manifest, "journals/2025-08.journal")
	assert.False(t, changed)

	got, _ = AddInclude("; nothing here", "journals/2025-09.journal")
	assert.Equal(t, "; nothing here\n!include journals/2025-09.journal\n", got)
}
