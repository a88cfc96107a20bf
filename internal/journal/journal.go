// Package journal appends entries to the monthly journal files and keeps the
// manifest's include list current.
package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"quickledger/internal/ledger"
	"quickledger/internal/metrics"
	"quickledger/internal/store"
)

const (
	Dir          = "journals"
	ManifestPath = "main.journal"
)

// Path is the journal file for the month of date (YYYY/MM/DD).
func Path(date string) string {
	d := ledger.NormalizeDate(date)
	return fmt.Sprintf("%s/%s-%s.journal", Dir, d[:4], d[5:7])
}

// Result describes a completed append.
type Result struct {
	JournalPath string
	Created     bool
	// Warnings are non-fatal problems, e.g. a failed manifest update after the
	// entry itself was saved.
	Warnings []string
}

type Appender struct {
	Logger  *log.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (a *Appender) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Append adds e to the journal of its own month. A missing journal is created
// with a header and then included from the manifest. A blank line separates
// the entry only from content that does not end in a newline.
//
// Only ErrNotFound counts as a missing journal. Any other read error aborts
// the append rather than treating the file as nonexistent, because writing a
// fresh file over it would lose its content.
func (a *Appender) Append(ctx context.Context, st store.Store, e *ledger.Entry) (*Result, error) {
	if e == nil || len(e.Date) < 10 {
		return nil, errors.New("entry has no date")
	}
	start := a.now()
	defer a.Metrics.ObserveAppend(start)

	res := &Result{JournalPath: Path(e.Date)}
	data, err := st.ReadFile(ctx, res.JournalPath)
	switch {
	case err == nil:
	case store.IsNotFound(err):
		res.Created = true
		data = []byte(header(ledger.NormalizeDate(e.Date), a.now()))
	default:
		return nil, errors.Wrapf(err, "read %s", res.JournalPath)
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n\n"
	}
	content += strings.TrimRight(e.Text, "\n") + "\n"

	msg := fmt.Sprintf("Add %s %s", e.Date, e.Description)
	if err := st.WriteFile(ctx, res.JournalPath, []byte(content), msg); err != nil {
		return nil, errors.Wrapf(err, "write %s", res.JournalPath)
	}
	a.Metrics.IncrementAppended()
	if a.Logger != nil {
		a.Logger.Info("entry appended", "path", res.JournalPath, "date", e.Date, "created", res.Created)
	}
	if !res.Created {
		return res, nil
	}

	a.Metrics.IncrementJournalsCreated()
	if err := a.Include(ctx, st, res.JournalPath); err != nil {
		a.Metrics.IncrementManifestFailures()
		if a.Logger != nil {
			a.Logger.Warn("manifest not updated", "path", ManifestPath, "include", res.JournalPath, "err", err)
		}
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("entry saved to %s but %s was not updated: %v", res.JournalPath, ManifestPath, err))
	}
	return res, nil
}

// Include adds an include line for p to the manifest unless one is present.
// A missing manifest is created.
func (a *Appender) Include(ctx context.Context, st store.Store, p string) error {
	data, err := st.ReadFile(ctx, ManifestPath)
	if err != nil && !store.IsNotFound(err) {
		return errors.Wrapf(err, "read %s", ManifestPath)
	}
	updated, changed := AddInclude(string(data), p)
	if !changed {
		return nil
	}
	if err := st.WriteFile(ctx, ManifestPath, []byte(updated), "Include "+p); err != nil {
		return errors.Wrapf(err, "write %s", ManifestPath)
	}
	return nil
}

func header(date string, now time.Time) string {
	name := date[:7]
	if t, err := time.Parse("2006/01/02", date); err == nil {
		name = t.Format("January 2006")
	}
	return fmt.Sprintf("; Journal for %s\n; Created by quickledger on %s\n\n",
		name, now.Format("2006/01/02"))
}
