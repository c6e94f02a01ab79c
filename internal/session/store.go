// Package session persists authenticated browser state between the desktop
// and mobile stages. Each identity's state is written once by its desktop
// task and read once by its mobile task.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/config"
)

// ErrNotFound is returned by Load when no state was saved under the key.
var ErrNotFound = errors.New("session state not found")

// Store saves and loads session state keyed by identity.
type Store interface {
	Save(ctx context.Context, key string, state *browser.State) error
	Load(ctx context.Context, key string) (*browser.State, error)
}

// Open builds the store selected by cfg.Backend. The returned close function
// releases any connection the store holds.
func Open(ctx context.Context, cfg config.SessionStoreConfig, logger *zap.Logger) (Store, func(), error) {
	switch cfg.Backend {
	case config.StoreBackendFile, "":
		return NewFileStore(logger), func() {}, nil
	case config.StoreBackendPostgres:
		pool, err := connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store backend %q", cfg.Backend)
	}
}

// MemoryStore keeps state in process. Saved and loaded values are copies.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*browser.State
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*browser.State)}
}

func (m *MemoryStore) Save(ctx context.Context, key string, state *browser.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.IsEmpty() {
		return fmt.Errorf("save %s: %w", key, browser.ErrEmptyState)
	}
	m.mu.Lock()
	m.states[key] = state.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, key string) (*browser.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	s, ok := m.states[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("load %s: %w", key, ErrNotFound)
	}
	return s.Clone(), nil
}

// Keys lists the saved keys in no particular order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.states))
	for k := range m.states {
		keys = append(keys, k)
	}
	return keys
}
