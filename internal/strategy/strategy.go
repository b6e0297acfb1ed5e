// Package strategy defines the Strategy interface for signal providers and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"errors"
	"sort"

	"strategylab/internal/domain"
	"strategylab/internal/optimize"
)

// ErrInvalidParams is returned by Signals when a parameter set is unusable,
// for example a non-positive window or a short window not below the long one.
var ErrInvalidParams = errors.New("invalid strategy params")

// ErrUnknownStrategy is returned when a name is not in the registry.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is a pure signal provider: it maps a bar series and a parameter
// set to one signal per bar. Implementations must not keep state between
// calls so they can be evaluated concurrently by the parameter search.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Defaults returns the parameters used when the caller supplies none.
	Defaults() domain.Params

	// Bounds returns the closed integer ranges searched by the optimizer.
	Bounds() []optimize.Bound

	// Signals returns a slice aligned index-for-index with bars.
	Signals(bars []domain.Bar, params domain.Params) ([]domain.Signal, error)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
