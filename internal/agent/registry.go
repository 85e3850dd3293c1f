package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Store is the agent configuration collaborator: the source of truth the
// registry populates from and persists mutations to.
type Store interface {
	LoadAll(ctx context.Context) ([]Definition, error)
	Save(ctx context.Context, defs []Definition) error
}

// RegistryConfig names the well-known selection shortcuts.
type RegistryConfig struct {
	// CreationAgent is the name of the creation-specialist agent that gets
	// a priority override for creation-intent messages.
	CreationAgent string
	// FallbackAgent is the name of the general fallback used when no role
	// is tagged fallback. An explicit role=fallback agent wins over this.
	FallbackAgent string
}

// snapshot is the immutable view the registry publishes. Readers hold a
// reference to a complete snapshot; mutations build a new one and swap it
// in atomically so a partially rebuilt cache is never observable.
type snapshot struct {
	all      []*Definition // insertion order
	sorted   []*Definition // ascending priority, excludes nothing
	byName   map[string]*Definition
	creation *Definition // creation specialist, nil if absent
	fallback *Definition // general fallback, nil if absent
	selector *Definition // role=mainSelector, nil if absent
}

// Registry caches agent definitions with priority ordering and named
// shortcuts. Reads are lock-free; mutations are serialized and trigger an
// atomic cache rebuild.
type Registry struct {
	store  Store
	config RegistryConfig
	logger *slog.Logger

	mu   sync.Mutex // serializes mutations
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates an empty registry. Call Reload to populate it from
// the store.
func NewRegistry(store Store, cfg RegistryConfig, logger *slog.Logger) *Registry {
	r := &Registry{store: store, config: cfg, logger: logger}
	r.snap.Store(buildSnapshot(nil, cfg, logger))
	return r
}

// Reload repopulates the cache from the configuration store.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading agent definitions: %w", err)
	}
	r.snap.Store(buildSnapshot(defs, r.config, r.logger))
	r.logger.Info("agent registry reloaded", slog.Int("agents", len(defs)))
	return nil
}

// Create adds a new definition, persists the catalog, and rebuilds the cache.
func (r *Registry) Create(ctx context.Context, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snap.Load()
	if _, exists := snap.byName[def.Name]; exists {
		return fmt.Errorf("agent %q already exists", def.Name)
	}

	defs := append(cloneDefinitions(snap.all), def)
	return r.persistAndSwap(ctx, defs)
}

// Update replaces an existing definition by name.
func (r *Registry) Update(ctx context.Context, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snap.Load()
	if _, exists := snap.byName[def.Name]; !exists {
		return fmt.Errorf("agent %q: %w", def.Name, ErrNotFound)
	}

	defs := cloneDefinitions(snap.all)
	for i := range defs {
		if defs[i].Name == def.Name {
			defs[i] = def
		}
	}
	return r.persistAndSwap(ctx, defs)
}

// Delete removes a definition by name.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snap.Load()
	if _, exists := snap.byName[name]; !exists {
		return fmt.Errorf("agent %q: %w", name, ErrNotFound)
	}

	defs := make([]Definition, 0, len(snap.all)-1)
	for _, d := range snap.all {
		if d.Name != name {
			defs = append(defs, *d)
		}
	}
	return r.persistAndSwap(ctx, defs)
}

// persistAndSwap saves the catalog and publishes a fresh snapshot.
// Caller must hold r.mu.
func (r *Registry) persistAndSwap(ctx context.Context, defs []Definition) error {
	if err := r.store.Save(ctx, defs); err != nil {
		return fmt.Errorf("persisting agent definitions: %w", err)
	}
	r.snap.Store(buildSnapshot(defs, r.config, r.logger))
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.snap.Load().byName[name]
	return d, ok
}

// Resolve implements the workflow engine's agent lookup.
func (r *Registry) Resolve(name string) (*Definition, bool) {
	return r.Get(name)
}

// List returns all definitions in insertion order.
func (r *Registry) List() []*Definition {
	return r.snap.Load().all
}

// Count returns the number of cached definitions.
func (r *Registry) Count() int {
	return len(r.snap.Load().all)
}

// view returns the current snapshot for the selector.
func (r *Registry) view() *snapshot {
	return r.snap.Load()
}

func cloneDefinitions(defs []*Definition) []Definition {
	out := make([]Definition, len(defs))
	for i, d := range defs {
		out[i] = *d
	}
	return out
}

// buildSnapshot compiles rules, sorts by priority, and resolves shortcuts.
func buildSnapshot(defs []Definition, cfg RegistryConfig, logger *slog.Logger) *snapshot {
	snap := &snapshot{byName: make(map[string]*Definition, len(defs))}

	for i := range defs {
		d := defs[i] // copy so the snapshot owns its definitions
		if err := d.ShouldUse.Compile(); err != nil && logger != nil {
			// Malformed regexes degrade to "never matches".
			logger.Warn("agent rule disabled",
				slog.String("agent", d.Name),
				slog.String("error", err.Error()),
			)
		}
		snap.all = append(snap.all, &d)
		snap.byName[d.Name] = &d
	}

	snap.sorted = make([]*Definition, len(snap.all))
	copy(snap.sorted, snap.all)
	sort.SliceStable(snap.sorted, func(i, j int) bool {
		return snap.sorted[i].EffectivePriority() < snap.sorted[j].EffectivePriority()
	})

	for _, d := range snap.all {
		switch {
		case d.Name == cfg.CreationAgent:
			snap.creation = d
		case d.Role == RoleFallback:
			if snap.fallback == nil {
				snap.fallback = d
			}
		case d.Role == RoleMainSelector:
			if snap.selector == nil {
				snap.selector = d
			}
		}
	}
	// Name-based fallback shortcut when no role=fallback agent exists.
	if snap.fallback == nil && cfg.FallbackAgent != "" {
		snap.fallback = snap.byName[cfg.FallbackAgent]
	}

	return snap
}
