package container

import "sync"

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider registers bindings into the container at boot time.
//
// Register is called for every provider first; Boot runs once all providers
// are registered, so it is safe to resolve other bindings there.
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) {
//	    app.Singleton("reports", func(c *container.Container) any {
//	        return reports.New(container.MustResolve[*sql.DB](c, "db"))
//	    })
//	}
type ServiceProvider interface {
	// Register binds services into the container.
	Register(app *Container)

	// Boot is called after all providers are registered.
	Boot(app *Container)

	// Provides lists the abstracts a deferred provider registers.
	Provides() []string

	// IsDeferred reports whether registration waits until one of the
	// Provides() abstracts is first resolved.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider gives no-op Boot, Provides and IsDeferred implementations.
type BaseProvider struct{}

func (p *BaseProvider) Boot(_ *Container)  {}
func (p *BaseProvider) Provides() []string { return nil }
func (p *BaseProvider) IsDeferred() bool   { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry manages registration and booting of providers, including
// deferred ones.
type ProviderRegistry struct {
	mu         sync.Mutex
	bootMu     sync.Mutex // serializes Boot
	app        *Container
	eager      []ServiceProvider
	deferred   map[string]ServiceProvider // abstract → provider
	loaded     map[ServiceProvider]bool
	registered map[ServiceProvider]bool
	bootedSet  map[ServiceProvider]bool
	booted     bool
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	return &ProviderRegistry{
		app:        app,
		deferred:   make(map[string]ServiceProvider),
		loaded:     make(map[ServiceProvider]bool),
		registered: make(map[ServiceProvider]bool),
		bootedSet:  make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register method unless it is deferred.
// Providers registered after Boot are booted immediately. A provider whose
// Register or Boot panics is forgotten, so registering it again retries.
func (r *ProviderRegistry) Register(provider ServiceProvider) {
	r.mu.Lock()
	if r.registered[provider] {
		r.mu.Unlock()
		return
	}
	r.registered[provider] = true

	if provider.IsDeferred() {
		for _, abstract := range provider.Provides() {
			r.deferred[abstract] = provider
		}
		r.mu.Unlock()
		r.interceptDeferred(provider)
		return
	}

	r.loaded[provider] = true
	r.eager = append(r.eager, provider)
	booted := r.booted
	r.mu.Unlock()

	done := false
	defer func() {
		if !done {
			r.forget(provider)
		}
	}()
	provider.Register(r.app)
	if booted {
		provider.Boot(r.app)
		r.markBooted(provider)
	}
	done = true
}

// forget drops an eager provider whose registration did not finish.
func (r *ProviderRegistry) forget(provider ServiceProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, provider)
	delete(r.loaded, provider)
	for i, p := range r.eager {
		if p == provider {
			r.eager = append(r.eager[:i:i], r.eager[i+1:]...)
			break
		}
	}
}

func (r *ProviderRegistry) markBooted(provider ServiceProvider) {
	r.mu.Lock()
	r.bootedSet[provider] = true
	r.mu.Unlock()
}

// interceptDeferred binds a placeholder for each deferred abstract. The first
// resolution registers (and boots) the provider, whose own bindings replace
// the placeholders, then resolves again.
func (r *ProviderRegistry) interceptDeferred(provider ServiceProvider) {
	for _, abstract := range provider.Provides() {
		abs := abstract
		var placeholder *Binding
		_ = r.app.Bind(abs, Closure(func(c *Container, p Params) (any, error) {
			r.load(provider)
			if cur, _ := c.Binding(abs); cur == placeholder {
				return nil, &BindingResolutionError{Abstract: abs, Reason: "deferred provider did not register it"}
			}
			return c.resolve(abs, p, false, false)
		}))
		placeholder, _ = r.app.Binding(abs)
	}
}

// load registers a deferred provider once.
func (r *ProviderRegistry) load(provider ServiceProvider) {
	r.mu.Lock()
	if r.loaded[provider] {
		r.mu.Unlock()
		return
	}
	r.loaded[provider] = true
	for _, abs := range provider.Provides() {
		delete(r.deferred, abs)
	}
	booted := r.booted
	r.mu.Unlock()

	provider.Register(r.app)
	if booted {
		provider.Boot(r.app)
	}
}

// Boot calls Boot on every eager provider not booted yet, including those
// registered while booting. If a provider panics, the providers already
// booted stay booted and the next call resumes at the failed one.
func (r *ProviderRegistry) Boot() {
	r.bootMu.Lock()
	defer r.bootMu.Unlock()
	for {
		provider, done := r.nextToBoot()
		if done {
			return
		}
		provider.Boot(r.app)
		r.markBooted(provider)
	}
}

// nextToBoot returns the first eager provider not booted yet. When there is
// none the registry is marked booted.
func (r *ProviderRegistry) nextToBoot() (ServiceProvider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.booted {
		return nil, true
	}
	for _, p := range r.eager {
		if !r.bootedSet[p] {
			return p, false
		}
	}
	r.booted = true
	return nil, true
}

// Booted reports whether every eager provider has booted.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns the registered eager providers.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceProvider(nil), r.eager...)
}

// Deferred returns the abstracts still waiting on a deferred provider.
func (r *ProviderRegistry) Deferred() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deferred))
	for abs := range r.deferred {
		out = append(out, abs)
	}
	return out
}
