package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const commitLog = ".quickledger/commits.log"

// Dir stores files under a root directory so the ledger stays readable by
// ledger-cli. Commit messages go to a log file next to the data.
type Dir struct {
	root string
	mu   sync.Mutex
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "mkdir %s: %v", root, err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(p)))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", p)
	}
	return data, nil
}

func (d *Dir) WriteFile(ctx context.Context, p string, data []byte, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := CleanPath(p)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	full := filepath.Join(d.root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrapf(err, "mkdir for %s", p)
	}
	tf, err := os.CreateTemp(filepath.Dir(full), ".write-*")
	if err != nil {
		return errors.Wrapf(err, "temp file for %s", p)
	}
	defer os.Remove(tf.Name())
	if _, err := tf.Write(data); err != nil {
		tf.Close()
		return errors.Wrapf(err, "write %s", p)
	}
	if err := tf.Close(); err != nil {
		return errors.Wrapf(err, "close %s", p)
	}
	if err := os.Rename(tf.Name(), full); err != nil {
		return errors.Wrapf(err, "rename into %s", p)
	}
	return d.logCommit(p, message)
}

func (d *Dir) logCommit(p, message string) error {
	full := filepath.Join(d.root, commitLog)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(err, "mkdir commit log")
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open commit log")
	}
	defer f.Close()
	msg := strings.ReplaceAll(message, "\n", " ")
	_, err = fmt.Fprintf(f, "%s\t%s\t%s\n", time.Now().UTC().Format(time.RFC3339), p, msg)
	return errors.Wrap(err, "append commit log")
}

// History reads the commit log, oldest first. An empty p lists all. Sizes are
// not logged and stay zero.
func (d *Dir) History(ctx context.Context, p string) ([]Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := os.Open(filepath.Join(d.root, commitLog))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open commit log")
	}
	defer f.Close()

	var out []Commit
	s := bufio.NewScanner(f)
	for s.Scan() {
		parts := strings.SplitN(s.Text(), "\t", 3)
		if len(parts) != 3 {
			continue
		}
		if p != "" && parts[1] != p {
			continue
		}
		t, _ := time.Parse(time.RFC3339, parts[0])
		out = append(out, Commit{Path: parts[1], Message: parts[2], Time: t})
	}
	return out, errors.Wrap(s.Err(), "read commit log")
}

// DirProvider maps repository identities to subdirectories of a base path.
type DirProvider struct {
	Base string
}

func (p DirProvider) Open(repoID string) (Store, error) {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, repoID)
	if name == "" {
		return nil, errors.Errorf("invalid repository %q", repoID)
	}
	return NewDir(filepath.Join(p.Base, name))
}
