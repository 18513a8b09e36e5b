package container

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ── Binding types ─────────────────────────────────────────────────────────────

// Factory is the short factory form used by service providers.
type Factory func(c *Container) any

// Closure is the normalized form every concrete is converted to before it is
// stored. c is the container handle for the running resolution; nested
// Get/Make calls made through it share the same build stack.
type Closure func(c *Container, p Params) (any, error)

// Binding links an abstract identifier to its normalized concrete.
type Binding struct {
	Abstract string
	Concrete Closure
	Shared   bool
}

// Extender wraps an already-resolved instance with decorator logic.
type Extender func(instance any, c *Container) any

// Params carries parameter overrides for a single resolution.
//
// Named overrides match struct fields by name (or lower camel name), Positional
// overrides match by index, and Typed values match any parameter whose type the
// value is assignable to.
type Params struct {
	Named      map[string]any
	Positional []any
	Typed      []any
}

func (p Params) empty() bool {
	return len(p.Named) == 0 && len(p.Positional) == 0 && len(p.Typed) == 0
}

// With is shorthand for named parameter overrides.
//
//	c.Make("report", container.With{"title": "Q3"})
type With map[string]any

// Params converts With to Params.
func (w With) Params() Params { return Params{Named: w} }

// ── Container ─────────────────────────────────────────────────────────────────

// Container is the IoC container.
//
// It supports:
//   - Bind / Singleton / Instance (Set) / Alias with cycle detection
//   - Get (cached) and Make (always fresh)
//   - Autowiring of registered struct types and constructor functions
//   - Call (method / func / invokable injection) and InjectOn (tag injection)
//   - Tags, Extend, contextual binding, rebound and resolved callbacks
//
// A *Container handed to a factory during resolution is a scoped handle onto
// the same registry; it carries the build stack of that resolution.
type Container struct {
	*registry
	res *resolution
}

type registry struct {
	mu sync.RWMutex

	// abstract → binding
	bindings map[string]*Binding

	// abstract → resolved shared instance
	instances map[string]any

	// alias → abstract (may itself be an alias)
	aliases map[string]string

	// abstract → extenders
	extenders map[string][]Extender

	// tag → []abstract
	tags map[string][]string

	// contextual: when[concrete][abstract] = closure
	contextual map[string]map[string]Closure

	// abstract → registered autowirable type
	types map[string]reflect.Type

	reboundCallbacks map[string][]func(any)
	afterResolving   []func(string, any)

	resolver *resolver
}

// resolution is the per-call state of a Get/Make: the abstracts being resolved
// (for contextual lookups), the bindings and concrete types being built (cycle
// guards) and the parameter override frames.
type resolution struct {
	abstracts []string
	chain     []frame
	building  []reflect.Type
	with      []Params
}

// frame is one binding being resolved. origin is the *Binding or
// reflect.Type that builds key, or nil for a contextual build.
type frame struct {
	key    string
	origin any
}

// enter pushes key onto the binding chain. Reaching a key again through the
// same origin is a cycle. A deferred placeholder re-resolving its own key
// hits the provider's binding instead, so it passes.
func (res *resolution) enter(key string, origin any) error {
	if origin != nil {
		for i, f := range res.chain {
			if f.key != key || f.origin != origin {
				continue
			}
			path := make([]string, 0, len(res.chain)-i+1)
			for _, g := range res.chain[i:] {
				path = append(path, g.key)
			}
			path = append(path, key)
			return &BindingResolutionError{
				Abstract: key,
				Reason:   "circular dependency detected: " + strings.Join(path, " -> "),
			}
		}
	}
	res.chain = append(res.chain, frame{key: key, origin: origin})
	return nil
}

// New creates an empty container.
func New() *Container {
	c := &Container{registry: &registry{}}
	c.reset()
	c.resolver = newResolver()
	c.Instance("container", c)
	return c
}

func (r *registry) reset() {
	r.bindings = make(map[string]*Binding)
	r.instances = make(map[string]any)
	r.aliases = make(map[string]string)
	r.extenders = make(map[string][]Extender)
	r.tags = make(map[string][]string)
	r.contextual = make(map[string]map[string]Closure)
	r.types = make(map[string]reflect.Type)
	r.reboundCallbacks = make(map[string][]func(any))
	r.afterResolving = nil
}

// scope returns a handle carrying resolution state, creating fresh state for
// top-level calls.
func (c *Container) scope() (*Container, *resolution) {
	if c.res != nil {
		return c, c.res
	}
	res := &resolution{}
	return &Container{registry: c.registry, res: res}, res
}

// ── Registration ──────────────────────────────────────────────────────────────

// Bind registers a concrete for abstract. shared marks it as a singleton.
//
// concrete may be a Factory, a func(*Container) any, a Closure, a constructor
// function, a reflect.Type, a typed nil pointer such as (*Repo)(nil), another
// abstract name, or nil to autowire the type registered under abstract.
//
//	c.Bind("UserRepository", func(c *container.Container) any {
//	    return &SQLUserRepository{DB: container.MustResolve[*sql.DB](c, "db")}
//	})
func (c *Container) Bind(abstract string, concrete any, shared ...bool) error {
	closure, err := c.normalize(abstract, concrete)
	if err != nil {
		return err
	}
	c.store(abstract, closure, len(shared) > 0 && shared[0])
	return nil
}

// Singleton registers a concrete whose result is cached after first resolution.
//
//	c.Singleton("cache", func(c *container.Container) any {
//	    return cache.NewManager(container.MustResolve[*config.Config](c, "config"))
//	})
func (c *Container) Singleton(abstract string, concrete any) error {
	return c.Bind(abstract, concrete, true)
}

func (c *Container) store(abstract string, closure Closure, shared bool) {
	c.mu.Lock()
	_, wasResolved := c.instances[abstract]
	delete(c.instances, abstract)
	delete(c.aliases, abstract)
	c.bindings[abstract] = &Binding{Abstract: abstract, Concrete: closure, Shared: shared}
	c.mu.Unlock()

	// Rebuild and notify listeners when a resolved abstract is rebound.
	if wasResolved {
		if inst, err := c.Get(abstract); err == nil {
			c.fireRebound(abstract, inst)
		}
	}
}

// Instance registers a pre-built value as a shared instance.
//
//	c.Instance("config", cfg)
func (c *Container) Instance(abstract string, instance any) {
	c.mu.Lock()
	_, wasBound := c.bindings[abstract]
	_, hadInstance := c.instances[abstract]
	delete(c.bindings, abstract)
	delete(c.aliases, abstract)
	c.instances[abstract] = instance
	c.mu.Unlock()

	if wasBound || hadInstance {
		c.fireRebound(abstract, instance)
	}
}

// Set is an alias of Instance.
func (c *Container) Set(abstract string, instance any) { c.Instance(abstract, instance) }

// RegisterType makes the type of each value autowirable under its TypeKey,
// so Get(TypeKey(v)) builds it without an explicit binding.
//
//	c.RegisterType((*UserController)(nil))
func (c *Container) RegisterType(values ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		t, ok := v.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(v)
		}
		if t == nil {
			continue
		}
		c.types[typeKey(t)] = t
	}
}

// Alias registers an alternative name for an abstract.
//
//	c.Alias("cache", "cacheManager")
func (c *Container) Alias(abstract, alias string) {
	if abstract == alias {
		panic(fmt.Sprintf("container: [%s] is aliased to itself", abstract))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aliases[alias] = abstract
}

// GetAlias follows the alias chain for name and returns the root abstract.
// A chain that revisits a name fails with *CircularAliasError.
func (c *Container) GetAlias(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aliasOf(name, make(map[string]bool), nil)
}

func (r *registry) aliasOf(name string, resolving map[string]bool, chain []string) (string, error) {
	target, ok := r.aliases[name]
	if !ok {
		return name, nil
	}
	chain = append(chain, name)
	if resolving[name] {
		return "", &CircularAliasError{Alias: name, Chain: chain}
	}
	resolving[name] = true
	return r.aliasOf(target, resolving, chain)
}

// IsAlias reports whether name is registered as an alias.
func (c *Container) IsAlias(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.aliases[name]
	return ok
}

// ── Extend ────────────────────────────────────────────────────────────────────

// Extend decorates the resolved instance of an abstract.
//
//	c.Extend("log", func(instance any, c *container.Container) any {
//	    return instance.(*zap.Logger).With(zap.String("component", "http"))
//	})
func (c *Container) Extend(abstract string, fn Extender) {
	key, err := c.GetAlias(abstract)
	if err != nil {
		key = abstract
	}

	c.mu.Lock()
	c.extenders[key] = append(c.extenders[key], fn)
	inst, resolved := c.instances[key]
	c.mu.Unlock()

	// Already-resolved instances are decorated in place.
	if resolved {
		inst = fn(inst, c)
		c.mu.Lock()
		c.instances[key] = inst
		c.mu.Unlock()
		c.fireRebound(key, inst)
	}
}

// ── Tags ──────────────────────────────────────────────────────────────────────

// Tag associates multiple abstracts under a named group.
//
//	c.Tag([]string{"seeder.Users", "seeder.Posts"}, "seeders")
func (c *Container) Tag(abstracts []string, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[tag] = append(c.tags[tag], abstracts...)
}

// Tagged resolves all abstracts registered under a tag.
func (c *Container) Tagged(tag string) ([]any, error) {
	c.mu.RLock()
	abstracts := append([]string(nil), c.tags[tag]...)
	c.mu.RUnlock()

	result := make([]any, 0, len(abstracts))
	for _, abs := range abstracts {
		inst, err := c.Get(abs)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, nil
}

// TaggedAbstracts returns the abstracts registered under a tag without resolving them.
func (c *Container) TaggedAbstracts(tag string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.tags[tag]...)
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Get resolves an abstract, returning the cached instance when one exists.
// Shared bindings are cached on first resolution.
func (c *Container) Get(abstract string) (any, error) {
	return c.resolve(abstract, Params{}, false, false)
}

// GetCached resolves an abstract and caches the result even when the binding
// is not shared.
func (c *Container) GetCached(abstract string) (any, error) {
	return c.resolve(abstract, Params{}, true, false)
}

// Make always builds a fresh instance: it neither reads nor writes the
// instance cache. Abstracts that only exist as instances are returned as is.
//
//	report, err := c.Make("report", container.With{"title": "Q3"}.Params())
func (c *Container) Make(abstract string, params ...Params) (any, error) {
	return c.resolve(abstract, mergeParams(params), false, true)
}

// MustGet is Get that panics on error. Intended for bootstrap code.
func (c *Container) MustGet(abstract string) any {
	inst, err := c.Get(abstract)
	if err != nil {
		panic(err)
	}
	return inst
}

func (c *Container) resolve(abstract string, p Params, useCache, fresh bool) (any, error) {
	sc, res := c.scope()

	key, err := c.GetAlias(abstract)
	if err != nil {
		return nil, err
	}

	contextual := c.contextualFor(res, abstract, key)
	needsContextualBuild := !p.empty() || contextual != nil

	c.mu.RLock()
	inst, cached := c.instances[key]
	b := c.bindings[key]
	t := c.types[key]
	c.mu.RUnlock()

	if cached && !needsContextualBuild && (!fresh || (b == nil && t == nil)) {
		return inst, nil
	}

	var concrete Closure
	var origin any
	shared := false
	switch {
	case contextual != nil:
		concrete = contextual
	case b != nil:
		concrete, shared, origin = b.Concrete, b.Shared, b
	case t != nil:
		concrete, origin = c.typeClosure(t), t
	default:
		return nil, &EntryNotFoundError{Abstract: abstract}
	}

	if err := res.enter(key, origin); err != nil {
		return nil, err
	}
	res.abstracts = append(res.abstracts, key)
	res.with = append(res.with, p)
	obj, err := concrete(sc, p)
	res.abstracts = res.abstracts[:len(res.abstracts)-1]
	res.with = res.with[:len(res.with)-1]
	res.chain = res.chain[:len(res.chain)-1]
	if err != nil {
		if isContainerError(err) {
			return nil, err
		}
		return nil, &BindingResolutionError{Abstract: key, Err: err}
	}

	c.mu.RLock()
	exts := append([]Extender(nil), c.extenders[key]...)
	c.mu.RUnlock()
	for _, ext := range exts {
		obj = ext(obj, sc)
	}

	if (shared || useCache) && !fresh && !needsContextualBuild {
		c.mu.Lock()
		c.instances[key] = obj
		c.mu.Unlock()
	}

	c.fireAfterResolving(key, obj)
	return obj, nil
}

// Build constructs concrete through the resolver. concrete may be a
// reflect.Type, a typed nil pointer, a struct value or a constructor function.
func (c *Container) Build(concrete any, params ...Params) (any, error) {
	sc, res := c.scope()
	p := mergeParams(params)
	res.with = append(res.with, p)
	defer func() { res.with = res.with[:len(res.with)-1] }()

	if fn := reflect.ValueOf(concrete); fn.Kind() == reflect.Func {
		return c.resolver.buildFunc(sc, fn, p)
	}
	t, err := concreteType(concrete)
	if err != nil {
		return nil, err
	}
	return c.resolver.build(sc, t, p)
}

func (c *Container) typeClosure(t reflect.Type) Closure {
	return func(sc *Container, p Params) (any, error) {
		return c.resolver.build(sc, t, p)
	}
}

// normalize converts every accepted concrete form into a Closure.
func (c *Container) normalize(abstract string, concrete any) (Closure, error) {
	switch fn := concrete.(type) {
	case nil:
		return func(sc *Container, p Params) (any, error) {
			sc.mu.RLock()
			t, ok := sc.types[abstract]
			sc.mu.RUnlock()
			if !ok {
				return nil, &EntryNotFoundError{Abstract: abstract}
			}
			return sc.resolver.build(sc, t, p)
		}, nil
	case Closure:
		return fn, nil
	case func(*Container, Params) (any, error):
		return fn, nil
	case Factory:
		return func(sc *Container, _ Params) (any, error) { return fn(sc), nil }, nil
	case func(*Container) any:
		return func(sc *Container, _ Params) (any, error) { return fn(sc), nil }, nil
	case string:
		if fn == abstract {
			return c.normalize(abstract, nil)
		}
		return func(sc *Container, p Params) (any, error) {
			return sc.resolve(fn, p, false, false)
		}, nil
	case reflect.Type:
		return c.typeClosure(fn), nil
	}

	v := reflect.ValueOf(concrete)
	if v.Kind() == reflect.Func {
		return func(sc *Container, p Params) (any, error) {
			return sc.resolver.buildFunc(sc, v, p)
		}, nil
	}
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return c.typeClosure(v.Type()), nil
	}
	return nil, fmt.Errorf("container: unsupported concrete %T for [%s]", concrete, abstract)
}

func concreteType(concrete any) (reflect.Type, error) {
	switch v := concrete.(type) {
	case nil:
		return nil, fmt.Errorf("container: cannot build nil concrete")
	case reflect.Type:
		return v, nil
	}
	return reflect.TypeOf(concrete), nil
}

func mergeParams(params []Params) Params {
	switch len(params) {
	case 0:
		return Params{}
	case 1:
		return params[0]
	}
	out := Params{Named: map[string]any{}}
	for _, p := range params {
		for k, v := range p.Named {
			out.Named[k] = v
		}
		out.Positional = append(out.Positional, p.Positional...)
		out.Typed = append(out.Typed, p.Typed...)
	}
	return out
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Bound reports whether abstract has a binding, an instance or is an alias.
func (c *Container) Bound(abstract string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, hasBinding := c.bindings[abstract]
	_, hasInstance := c.instances[abstract]
	_, isAlias := c.aliases[abstract]
	return hasBinding || hasInstance || isAlias
}

// Has reports whether Get can resolve abstract: it is bound or names a
// registered type (directly or through an alias).
func (c *Container) Has(abstract string) bool {
	key, err := c.GetAlias(abstract)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, hasBinding := c.bindings[key]
	_, hasInstance := c.instances[key]
	_, hasType := c.types[key]
	return hasBinding || hasInstance || hasType
}

// Resolved reports whether a shared instance exists for abstract.
func (c *Container) Resolved(abstract string) bool {
	key, err := c.GetAlias(abstract)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.instances[key]
	return ok
}

// Binding returns the binding registered for abstract.
func (c *Container) Binding(abstract string) (*Binding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bindings[abstract]
	return b, ok
}

// Forget removes the binding and instance for an abstract.
func (c *Container) Forget(abstract string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bindings, abstract)
	delete(c.instances, abstract)
}

// ForgetInstance drops the cached instance of a single abstract.
func (c *Container) ForgetInstance(abstract string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.instances, abstract)
}

// Flush resets the entire container.
func (c *Container) Flush() {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
	c.resolver.clear()
}

// ClearCache drops every resolved instance and the reflection cache but keeps
// bindings, aliases and tags.
func (c *Container) ClearCache() {
	c.mu.Lock()
	c.instances = make(map[string]any)
	c.mu.Unlock()
	c.resolver.clear()
}

// Bindings returns all registered abstract keys (for debugging).
func (c *Container) Bindings() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.bindings)+len(c.instances))
	for k := range c.bindings {
		out = append(out, k)
	}
	for k := range c.instances {
		if _, already := c.bindings[k]; !already {
			out = append(out, k)
		}
	}
	return out
}

// ── Callbacks ─────────────────────────────────────────────────────────────────

// Rebinding registers a callback fired whenever abstract is re-bound.
func (c *Container) Rebinding(abstract string, cb func(any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reboundCallbacks[abstract] = append(c.reboundCallbacks[abstract], cb)
}

// AfterResolving registers a callback fired after any abstract is resolved.
func (c *Container) AfterResolving(cb func(abstract string, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, cb)
}

func (c *Container) fireRebound(abstract string, instance any) {
	c.mu.RLock()
	cbs := append([]func(any){}, c.reboundCallbacks[abstract]...)
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(instance)
	}
}

func (c *Container) fireAfterResolving(abstract string, instance any) {
	c.mu.RLock()
	cbs := append([]func(string, any){}, c.afterResolving...)
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(abstract, instance)
	}
}

// ── Type keys ─────────────────────────────────────────────────────────────────

// TypeKey returns the package-qualified type name of v, used as the abstract
// key for autowired types and type-hinted dependencies.
//
//	key := container.TypeKey((*UserRepository)(nil))  // "example.com/app.UserRepository"
//	c.Singleton(key, factory)
func TypeKey(v any) string {
	if t, ok := v.(reflect.Type); ok {
		return typeKey(t)
	}
	return typeKey(reflect.TypeOf(v))
}

func typeKey(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// ── Generics helpers ──────────────────────────────────────────────────────────

// Resolve calls Get and type-asserts the result.
//
//	db, err := container.Resolve[*sql.DB](c, "db")
func Resolve[T any](c *Container, abstract string) (T, error) {
	var zero T
	instance, err := c.Get(abstract)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("container: Resolve[%T]: [%s] resolved to %T", zero, abstract, instance)
	}
	return typed, nil
}

// MustResolve is Resolve that panics on error.
func MustResolve[T any](c *Container, abstract string) T {
	typed, err := Resolve[T](c, abstract)
	if err != nil {
		panic(err)
	}
	return typed
}

// ── Global instance ───────────────────────────────────────────────────────────

var (
	globalMu sync.RWMutex
	global   *Container
)

// SetInstance sets the process-wide container returned by GetInstance.
func SetInstance(c *Container) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = c
}

// GetInstance returns the process-wide container, creating one on first use.
func GetInstance() *Container {
	globalMu.RLock()
	c := global
	globalMu.RUnlock()
	if c != nil {
		return c
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New()
	}
	return global
}
