package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/km-arc/go-foundation/framework/config"
)

// Manager builds the configured stores lazily and keeps one of each.
type Manager struct {
	cfg   config.CacheConfig
	redis config.RedisConfig

	mu     sync.Mutex
	stores map[string]Store
	custom map[string]func() (Store, error)
}

// NewManager creates a Manager from the cache and redis configuration.
func NewManager(cfg config.CacheConfig, redis config.RedisConfig) *Manager {
	return &Manager{
		cfg:    cfg,
		redis:  redis,
		stores: make(map[string]Store),
		custom: make(map[string]func() (Store, error)),
	}
}

// Extend registers a custom driver under name.
func (m *Manager) Extend(name string, build func() (Store, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.custom[name] = build
	delete(m.stores, name)
}

// DefaultDriver returns the name of the default store.
func (m *Manager) DefaultDriver() string { return m.cfg.Default }

// Drivers returns the configured store names, default first.
func (m *Manager) Drivers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	if m.cfg.Default != "" {
		out = append(out, m.cfg.Default)
	}
	for _, s := range m.cfg.Stores {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	for s := range m.custom {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Default returns the default store.
func (m *Manager) Default() (Store, error) {
	return m.Store(m.cfg.Default)
}

// Store returns the named store, building it on first use. An empty name
// selects the default store.
func (m *Manager) Store(name string) (Store, error) {
	if name == "" {
		name = m.cfg.Default
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[name]; ok {
		return s, nil
	}
	s, err := m.build(name)
	if err != nil {
		return nil, err
	}
	m.stores[name] = s
	return s, nil
}

func (m *Manager) build(name string) (Store, error) {
	if build, ok := m.custom[name]; ok {
		return build()
	}
	switch name {
	case "memory", "array":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(m.cfg.Path), nil
	case "redis":
		return NewRedisStore(NewRedisClient(m.redis), m.cfg.Prefix), nil
	}
	return nil, fmt.Errorf("cache: store [%s] is not defined", name)
}

// Flush clears the named store.
func (m *Manager) Flush(ctx context.Context, name string) error {
	s, err := m.Store(name)
	if err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("cache: flush [%s]: %w", name, err)
	}
	return nil
}
