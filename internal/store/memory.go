package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps files in a map. It backs the tests and the `-store memory` mode.
type Memory struct {
	mu      sync.RWMutex
	files   map[string][]byte
	commits []Commit

	// FailReads and FailWrites make every call return ErrUnavailable.
	FailReads  bool
	FailWrites bool
	// FailPaths fails writes to individual paths.
	FailPaths map[string]error
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func (m *Memory) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailReads {
		return nil, ErrUnavailable
	}
	data, ok := m.files[p]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) WriteFile(ctx context.Context, p string, data []byte, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := CleanPath(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrUnavailable
	}
	if err, ok := m.FailPaths[p]; ok {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[p] = buf
	m.commits = append(m.commits, Commit{Path: p, Message: message, Time: time.Now(), Size: len(data)})
	return nil
}

// Put seeds a file without recording a commit.
func (m *Memory) Put(p string, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = []byte(data)
}

// Get returns the file content, or "" when absent.
func (m *Memory) Get(p string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return string(m.files[p])
}

// History lists the commits touching p, oldest first. An empty p lists all.
func (m *Memory) History(_ context.Context, p string) ([]Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Commit
	for _, c := range m.commits {
		if p == "" || c.Path == p {
			out = append(out, c)
		}
	}
	return out, nil
}

// MemoryProvider hands out one Memory per repository.
type MemoryProvider struct {
	mu    sync.Mutex
	repos map[string]*Memory
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{repos: make(map[string]*Memory)}
}

func (p *MemoryProvider) Open(repoID string) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.repos[repoID]
	if !ok {
		m = NewMemory()
		p.repos[repoID] = m
	}
	return m, nil
}
