package behavior

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Store.Get when no rule set exists for a creature type.
var ErrNotFound = errors.New("behavior: not found")

// Store reads and writes per-type rule sets.
//
// Get always returns a usable Config: on any error the returned Config is Default()
// named after the requested type.
type Store interface {
	Get(name string) (Config, error)
	Set(name string, cfg Config) error
}

// Sink receives every rule set accepted by a Registry, typically to persist it.
type Sink interface {
	Save(cfg Config) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(cfg Config) error

// Save calls f(cfg).
func (f SinkFunc) Save(cfg Config) error { return f(cfg) }

// Registry is the in-memory Store. The engine reads it every tick while configuration
// tooling may write it from another goroutine, so access is guarded by an RWMutex.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
	sink    Sink
}

// NewRegistry returns an empty Registry. sink may be nil.
func NewRegistry(sink Sink) *Registry {
	return &Registry{configs: make(map[string]Config), sink: sink}
}

// Get returns the rule set for name.
//
// Postcondition: Returns (cfg, nil) when found; otherwise (Default() named name, ErrNotFound).
func (r *Registry) Get(name string) (Config, error) {
	key := Key(name)
	r.mu.RLock()
	cfg, ok := r.configs[key]
	r.mu.RUnlock()
	if !ok {
		d := Default()
		d.Name = key
		return d, ErrNotFound
	}
	return cfg, nil
}

// Set validates cfg and stores it under name, then forwards it to the sink.
//
// Precondition: name must be non-empty.
// Postcondition: On a validation error the registry is unchanged. A sink error is
// returned after the in-memory update has been applied.
func (r *Registry) Set(name string, cfg Config) error {
	cfg.Name = Key(name)
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.configs[cfg.Name] = cfg
	r.mu.Unlock()

	if r.sink != nil {
		if err := r.sink.Save(cfg); err != nil {
			return fmt.Errorf("persisting behavior %q: %w", cfg.Name, err)
		}
	}
	return nil
}

// Load stores configs without forwarding them to the sink; used to seed the registry
// from files or the database.
//
// Postcondition: every valid config is stored; invalid ones are skipped and reported
// in the joined error.
func (r *Registry) Load(configs []Config) error {
	var errs []error
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range configs {
		cfg.Name = Key(cfg.Name)
		if err := cfg.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		r.configs[cfg.Name] = cfg
	}
	return errors.Join(errs...)
}

// Delete removes the rule set for name; unknown names are ignored.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.configs, Key(name))
}

// All returns every stored rule set ordered by name.
func (r *Registry) All() []Config {
	r.mu.RLock()
	out := make([]Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of stored rule sets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.configs)
}
