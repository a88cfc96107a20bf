package rules

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"quickledger/internal/metrics"
	"quickledger/internal/store"
)

// ErrStoreUnavailable is returned when the rule documents cannot be fetched
// because the store itself is unreachable.
var ErrStoreUnavailable = errors.New("rule store unavailable")

// Snapshot is the result of one load: merged rules plus the account catalog.
type Snapshot struct {
	Rules    *RuleSet
	Catalog  *Catalog
	LoadedAt time.Time
}

// Loader fetches and merges the rule documents of one repository.
type Loader struct {
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Load reads every rule document in tier order plus accounts.journal. Missing
// or unparsable documents count as empty.
func (l *Loader) Load(ctx context.Context, st store.Store) (*Snapshot, error) {
	l.Metrics.IncrementRuleLoads()
	docs := make([]TieredDocument, 0, len(Sources))
	for _, src := range Sources {
		data, err := st.ReadFile(ctx, src.Path)
		switch {
		case err == nil:
		case store.IsNotFound(err):
			continue
		case store.IsUnavailable(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, errors.Wrapf(ErrStoreUnavailable, "read %s: %v", src.Path, err)
		default:
			l.warn("unable to read rule document", "path", src.Path, "err", err)
			continue
		}
		doc, err := ParseDocument(data)
		if err != nil {
			l.warn("ignoring unparsable rule document", "path", src.Path, "err", err)
			continue
		}
		docs = append(docs, TieredDocument{Tier: src.Tier, Path: src.Path, Document: doc})
	}
	set := Merge(docs, l.Logger)

	catalog := &Catalog{}
	data, err := st.ReadFile(ctx, AccountsPath)
	switch {
	case err == nil:
		catalog = ParseCatalog(data)
	case store.IsUnavailable(err):
		return nil, errors.Wrapf(ErrStoreUnavailable, "read %s: %v", AccountsPath, err)
	case !store.IsNotFound(err):
		l.warn("unable to read account declarations", "path", AccountsPath, "err", err)
	}

	if l.Logger != nil {
		l.Logger.Debug("rules loaded", "items", len(set.Items), "merchants", len(set.Merchants),
			"payments", len(set.Payments), "skipped", set.Skipped, "accounts", catalog.Len())
	}
	return &Snapshot{Rules: set, Catalog: catalog, LoadedAt: time.Now()}, nil
}

func (l *Loader) warn(msg string, kv ...interface{}) {
	if l.Logger != nil {
		l.Logger.Warn(msg, kv...)
	}
}

// Cache keeps one Snapshot per repository identity. It is owned by the caller;
// writers of rule or account files must call Invalidate once their write
// completes.
type Cache struct {
	loader *Loader

	mu      sync.Mutex
	entries map[string]*Snapshot
	gen     map[string]uint64
	group   singleflight.Group
}

func NewCache(loader *Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[string]*Snapshot),
		gen:     make(map[string]uint64),
	}
}

// GetOrLoad returns the cached snapshot for repoID or loads it from st.
// Concurrent callers for the same repository share a single load.
func (c *Cache) GetOrLoad(ctx context.Context, repoID string, st store.Store) (*Snapshot, error) {
	c.mu.Lock()
	if s, ok := c.entries[repoID]; ok {
		c.mu.Unlock()
		return s, nil
	}
	gen := c.gen[repoID]
	c.mu.Unlock()

	v, err, _ := c.group.Do(repoID, func() (interface{}, error) {
		s, err := c.loader.Load(ctx, st)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// A write invalidated the repository while we were loading; the
		// snapshot may already be stale, so hand it out but do not keep it.
		if c.gen[repoID] == gen {
			c.entries[repoID] = s
		}
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Invalidate drops the cached snapshot of repoID.
func (c *Cache) Invalidate(repoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, repoID)
	c.gen[repoID]++
	c.group.Forget(repoID)
}

// Cached reports whether repoID currently has a snapshot.
func (c *Cache) Cached(repoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[repoID]
	return ok
}
