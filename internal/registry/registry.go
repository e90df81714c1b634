// Package registry implements the ComponentRegistry (§4.4): a
// process-wide cache of compiled component artifacts, backed by the
// ArtifactStore for persistence and a compiler.Service for turning
// uploaded source into a loadable artifact on Put-Component.
package registry

import (
	"context"

	"github.com/oriys/raikiri/internal/artifactstore"
	"github.com/oriys/raikiri/internal/cache"
	"github.com/oriys/raikiri/internal/compiler"
	"github.com/oriys/raikiri/internal/errkind"
)

// Registry caches compiled artifacts by "<tenant>.<name>" so repeated
// invocations of the same component don't reread it from disk. The
// sandbox engine itself is process-wide and outlives every cached entry
// (§4.4) — only the compiled bytes are cached here.
type Registry struct {
	store    *artifactstore.Store
	compiler compiler.Service
	cache    *cache.KeyedCache[string, []byte]
}

// New returns a Registry backed by store and compiler.
func New(store *artifactstore.Store, compiler compiler.Service) *Registry {
	return &Registry{
		store:    store,
		compiler: compiler,
		cache:    cache.New[string, []byte](),
	}
}

func cacheKey(tenant, name string) string {
	return tenant + "." + name
}

// Put compiles source and persists the resulting artifact for
// (tenant, name), invalidating any cached copy (§4.4 "Put-Component").
func (r *Registry) Put(ctx context.Context, tenant, name string, source []byte) error {
	artifact, err := r.compiler.Compile(ctx, source)
	if err != nil {
		return err
	}
	if err := r.store.Write(artifactstore.ComponentPath(tenant, name), artifact); err != nil {
		return err
	}
	r.cache.DestroyGracefully(cacheKey(tenant, name))
	return nil
}

// Get returns the compiled artifact for (tenant, name), reading it from
// the ArtifactStore on first access and caching it thereafter.
func (r *Registry) Get(ctx context.Context, tenant, name string) ([]byte, error) {
	entry, err := r.cache.LookupOrBuildAsync(ctx, cacheKey(tenant, name), func(ctx context.Context) ([]byte, error) {
		path := artifactstore.ComponentPath(tenant, name)
		if !r.store.Exists(path) {
			return nil, errkind.Wrapf(errkind.NotFound, "registry: no component %q for tenant %q", name, tenant)
		}
		return r.store.Read(path)
	})
	if err != nil {
		return nil, err
	}
	g := entry.Read()
	defer g.Release()
	return g.Value(), nil
}

// Exists reports whether (tenant, name) has a deployed artifact, without
// populating the cache.
func (r *Registry) Exists(tenant, name string) bool {
	return r.store.Exists(artifactstore.ComponentPath(tenant, name))
}
