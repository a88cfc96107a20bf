// Package store holds the versioned document stores that quickledger reads rules
// from and appends journals to. Every write carries a commit message; none of the
// backends offer transactions spanning more than one file.
package store

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by ReadFile when the path has never been written.
	ErrNotFound = errors.New("file not found")
	// ErrUnavailable wraps failures to reach the backing store at all.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is a remote-like file store with commit messages.
type Store interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, message string) error
}

// Commit records one revision of one file.
type Commit struct {
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	Size    int       `json:"size"`
}

// Historian is implemented by stores that keep their commits. The `log`
// command reads them.
type Historian interface {
	History(ctx context.Context, path string) ([]Commit, error)
}

// Provider opens the store for a repository identity, e.g. "alice/ledger".
type Provider interface {
	Open(repoID string) (Store, error)
}

// IsNotFound reports whether err means the file does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// CleanPath normalises a repository-relative path and rejects escapes above
// the repository root.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("empty path")
	}
	c := path.Clean(strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/"))
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", errors.Errorf("invalid path %q", p)
	}
	return c, nil
}
