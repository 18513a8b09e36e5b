package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-foundation/framework/container"
)

// ── stub providers ────────────────────────────────────────────────────────────

type eagerProvider struct {
	container.BaseProvider
	registerCalls int
	bootCalled    bool
}

func (p *eagerProvider) Register(app *container.Container) {
	p.registerCalls++
	_ = app.Singleton("eager-svc", func(c *container.Container) any { return "eager" })
}

func (p *eagerProvider) Boot(app *container.Container) {
	p.bootCalled = true
}

// deferredProvider is lazy: only registered when "deferred-svc" is first resolved.
type deferredProvider struct {
	container.BaseProvider
	registerCalls int
	bootCalled    bool
}

func (p *deferredProvider) Register(app *container.Container) {
	p.registerCalls++
	_ = app.Singleton("deferred-svc", func(c *container.Container) any { return &counter{n: 7} })
}

func (p *deferredProvider) Boot(app *container.Container) { p.bootCalled = true }
func (p *deferredProvider) IsDeferred() bool              { return true }
func (p *deferredProvider) Provides() []string            { return []string{"deferred-svc"} }

// brokenDeferred claims an abstract it never binds.
type brokenDeferred struct{ container.BaseProvider }

func (p *brokenDeferred) Register(app *container.Container) {}
func (p *brokenDeferred) IsDeferred() bool                 { return true }
func (p *brokenDeferred) Provides() []string               { return []string{"ghost"} }

type multiProvider struct{ container.BaseProvider }

func (p *multiProvider) Register(app *container.Container) {
	_ = app.Singleton("alpha", func(c *container.Container) any { return "α" })
	_ = app.Singleton("beta", func(c *container.Container) any { return "β" })
}

// flakyProvider panics in Boot until healed.
type flakyProvider struct {
	container.BaseProvider
	healed    bool
	bootCalls int
}

func (p *flakyProvider) Register(*container.Container) {}

func (p *flakyProvider) Boot(*container.Container) {
	p.bootCalls++
	if !p.healed {
		panic("not ready")
	}
}

type counter struct{ n int }

// ── Eager providers ───────────────────────────────────────────────────────────

func TestRegistry_EagerProvider(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &eagerProvider{}
	reg.Register(p)
	assert.Equal(t, 1, p.registerCalls, "Register runs immediately for eager providers")
	assert.False(t, p.bootCalled, "Boot waits for registry.Boot")

	reg.Boot()
	assert.True(t, p.bootCalled)
	assert.True(t, reg.Booted())

	got, err := c.Get("eager-svc")
	require.NoError(t, err)
	assert.Equal(t, "eager", got)
}

func TestRegistry_Boot_Idempotent(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	assert.False(t, reg.Booted())

	reg.Register(&eagerProvider{})
	reg.Boot()
	reg.Boot()
	assert.True(t, reg.Booted())
}

func TestRegistry_DuplicateRegister_Ignored(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &eagerProvider{}
	reg.Register(p)
	reg.Register(p)
	assert.Equal(t, 1, p.registerCalls)
	assert.Len(t, reg.Providers(), 1)
}

func TestRegistry_RegisterAfterBoot_BootsImmediately(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	reg.Boot()

	p := &eagerProvider{}
	reg.Register(p)
	assert.True(t, p.bootCalled)
}

func TestRegistry_Boot_ResumesAfterPanic(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	first, flaky, last := &eagerProvider{}, &flakyProvider{}, &eagerProvider{}
	reg.Register(first)
	reg.Register(flaky)
	reg.Register(last)

	assert.PanicsWithValue(t, "not ready", reg.Boot)
	assert.False(t, reg.Booted())
	assert.True(t, first.bootCalled)
	assert.False(t, last.bootCalled)

	assert.Panics(t, reg.Boot, "a retry still fails while the cause persists")
	assert.False(t, reg.Booted())

	first.bootCalled = false
	flaky.healed = true
	reg.Boot()
	assert.True(t, reg.Booted())
	assert.False(t, first.bootCalled, "booted providers are not booted again")
	assert.True(t, last.bootCalled)
	assert.Equal(t, 3, flaky.bootCalls)
}

func TestRegistry_RegisterPanic_CanBeRetried(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	reg.Boot()

	flaky := &flakyProvider{}
	assert.Panics(t, func() { reg.Register(flaky) })
	assert.Empty(t, reg.Providers())

	flaky.healed = true
	reg.Register(flaky)
	assert.Len(t, reg.Providers(), 1)
	assert.Equal(t, 2, flaky.bootCalls)
}

// ── Deferred providers ────────────────────────────────────────────────────────

func TestRegistry_DeferredProvider(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &deferredProvider{}
	reg.Register(p)
	reg.Boot()

	assert.Zero(t, p.registerCalls, "deferred Register waits for first resolution")
	assert.ElementsMatch(t, []string{"deferred-svc"}, reg.Deferred())

	first, err := c.Get("deferred-svc")
	require.NoError(t, err)
	assert.Equal(t, 7, first.(*counter).n)
	assert.True(t, p.bootCalled, "late-loaded provider is booted when the registry already booted")

	second, err := c.Get("deferred-svc")
	require.NoError(t, err)
	assert.Same(t, first, second, "provider's singleton binding replaces the placeholder")
	assert.Equal(t, 1, p.registerCalls)
	assert.Empty(t, reg.Deferred())
}

func TestRegistry_DeferredProvider_MissingBinding(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	reg.Register(&brokenDeferred{})

	_, err := c.Get("ghost")
	assert.ErrorIs(t, err, container.ErrBindingResolution)
}

// ── Multiple providers ────────────────────────────────────────────────────────

func TestRegistry_MultipleProviders(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	reg.Register(&multiProvider{})
	reg.Register(&eagerProvider{})
	reg.Register(&deferredProvider{})
	reg.Boot()

	for abstract, want := range map[string]string{"alpha": "α", "beta": "β", "eager-svc": "eager"} {
		got, err := c.Get(abstract)
		require.NoError(t, err, abstract)
		assert.Equal(t, want, got, abstract)
	}
	assert.Len(t, reg.Providers(), 2, "deferred providers are not listed as eager")
}

// ── BaseProvider defaults ─────────────────────────────────────────────────────

func TestBaseProvider_Defaults(t *testing.T) {
	var p container.BaseProvider
	p.Boot(container.New())
	assert.False(t, p.IsDeferred())
	assert.Empty(t, p.Provides())
}
