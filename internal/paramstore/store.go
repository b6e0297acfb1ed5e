// Package paramstore keeps the best-known strategy parameters per symbol in
// memory with JSON file persistence.
package paramstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"strategylab/internal/domain"
)

// Store holds parameters keyed by strategy and symbol.
type Store struct {
	mu       sync.RWMutex
	params   map[string]domain.Params // "strategy/SYMBOL" -> params
	filePath string
	log      *slog.Logger
}

// NewStore creates a Store, loading persisted state from filePath. An empty
// filePath keeps the store in memory only.
func NewStore(filePath string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		params:   make(map[string]domain.Params),
		filePath: filePath,
		log:      log,
	}
	s.load()
	return s
}

// Key returns the map key used for a strategy and symbol.
func Key(strategy, symbol string) string {
	return strategy + "/" + strings.ToUpper(symbol)
}

// Get returns a copy of the parameters saved for strategy and symbol.
func (s *Store) Get(strategy, symbol string) (domain.Params, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.params[Key(strategy, symbol)]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Set stores params and persists the store to disk.
func (s *Store) Set(strategy, symbol string, params domain.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[Key(strategy, symbol)] = params.Clone()
	return s.flush()
}

// Delete removes the entry for strategy and symbol and persists the store.
func (s *Store) Delete(strategy, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.params, Key(strategy, symbol))
	return s.flush()
}

// Keys returns all stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.params))
	for k := range s.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of all parameters.
func (s *Store) Snapshot() map[string]domain.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Params, len(s.params))
	for k, p := range s.params {
		out[k] = p.Clone()
	}
	return out
}

// load reads the JSON file into memory.
func (s *Store) load() {
	if s.filePath == "" {
		return
	}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return // File doesn't exist yet, start empty.
	}
	var loaded map[string]domain.Params
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.log.Warn("loading params file", "path", s.filePath, "error", err)
		return
	}
	if loaded != nil {
		s.params = loaded
	}
	s.log.Info("loaded params", "entries", len(s.params))
}

// flush writes the in-memory state to disk. Must be called with mu held.
func (s *Store) flush() error {
	if s.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.params, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling params: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("creating params dir: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0o644); err != nil {
		return fmt.Errorf("writing params file: %w", err)
	}
	return nil
}
