// Package container provides the IoC container, the reflective resolver that
// autowires structs and constructor functions, method invocation with
// injected arguments, and the service provider registry.
//
// # Bindings
//
//	c := container.New()
//
//	// Transient: a new instance for every Get.
//	c.Bind("mailer", func(c *container.Container) any { return &SMTPMailer{} })
//
//	// Singleton: built once, cached by Get.
//	c.Singleton("cache", func(c *container.Container) any { return cache.NewMemory() })
//
//	// Pre-built value.
//	c.Instance("config", cfg)
//
//	// Alias chains are followed to their root; cycles fail with
//	// *CircularAliasError.
//	c.Alias("cache", "cache.store")
//
// # Resolving
//
// Get returns the cached instance when one exists. Make never touches the
// cache, so it always builds a fresh object for bound abstracts:
//
//	store, err := c.Get("cache")
//	report, err := c.Make("report", container.With{"Title": "Q3"}.Params())
//	db := container.MustResolve[*sql.DB](c, "db")
//
// An abstract that is neither bound nor registered fails with
// *EntryNotFoundError; a binding that cannot be built fails with
// *BindingResolutionError. Both match their Err* sentinels via errors.Is.
//
// # Autowiring
//
// Struct types registered with RegisterType (or bound with a typed nil
// pointer) are built field by field. Exported fields are resolved in this
// order: named override, positional override, typed override, the container
// itself for *Container fields, the inject tag, the field type's key, a nested
// autowirable struct, the default tag, then the optional tag.
//
//	type UserController struct {
//	    DB      *sql.DB       `inject:"db"`
//	    Log     *zap.Logger   // resolved by TypeKey
//	    PerPage int           `default:"20"`
//	    Mailer  Mailer        `optional:"true"`
//	    cache   map[string]any // unexported: ignored
//	}
//
//	c.RegisterType((*UserController)(nil))
//	ctrl, err := c.Get(container.TypeKey((*UserController)(nil)))
//
// Constructor functions returning T or (T, error) are autowired by argument
// type. A type that depends on itself, directly or indirectly, fails with a
// "circular dependency detected" resolution error. So does a binding that
// resolves back to itself, such as Bind("a", "b") with Bind("b", "a"), as
// long as nested lookups go through the container handed to the factory.
//
// # Calling
//
//	out, err := c.Call(func(log *zap.Logger, r *http.Request) error { ... },
//	    container.Params{Typed: []any{r}})
//	out, err = c.Call("UserController@Show", params)
//	out, err = c.Call(container.Method{Target: ctrl, Name: "Show"})
//
// InjectOn fills the inject-tagged fields of an existing struct and then calls
// the methods it lists in InjectMethods.
//
// # Service providers
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) {
//	    _ = app.Singleton("reports", func(c *container.Container) any { return reports.New() })
//	}
//
//	registry := container.NewProviderRegistry(c)
//	registry.Register(&AppServiceProvider{})
//	registry.Boot()
//
// A deferred provider (IsDeferred true) registers only when one of the
// abstracts from Provides is first resolved.
package container
