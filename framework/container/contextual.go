package container

// ContextualBuilder implements the fluent contextual binding API.
//
//	c.When(container.TypeKey((*PhotoController)(nil))).
//	    Needs("filesystem").
//	    Give(func(c *container.Container) any { return storage.NewLocal("/tmp/photos") })
type ContextualBuilder struct {
	container *Container
	concrete  []string
	needs     string
}

// When starts a contextual binding chain for one or more concretes. A concrete
// is the abstract being resolved (a binding name or a TypeKey).
func (c *Container) When(concrete ...string) *ContextualBuilder {
	return &ContextualBuilder{container: c, concrete: concrete}
}

// Needs specifies which abstract the concrete depends on.
func (b *ContextualBuilder) Needs(abstract string) *ContextualBuilder {
	b.needs = abstract
	return b
}

// Give provides the concrete used when the concrete resolves the needed
// abstract. It accepts every form Bind accepts.
func (b *ContextualBuilder) Give(concrete any) error {
	closure, err := b.container.normalize(b.needs, concrete)
	if err != nil {
		return err
	}

	b.container.mu.Lock()
	defer b.container.mu.Unlock()
	for _, when := range b.concrete {
		if _, ok := b.container.contextual[when]; !ok {
			b.container.contextual[when] = make(map[string]Closure)
		}
		b.container.contextual[when][b.needs] = closure
	}
	return nil
}

// GiveValue is Give for a pre-built value.
//
//	c.When("PhotoController").Needs("storagePath").GiveValue("/tmp/photos")
func (b *ContextualBuilder) GiveValue(value any) error {
	return b.Give(Closure(func(_ *Container, _ Params) (any, error) { return value, nil }))
}

// contextualFor returns the contextual closure registered for the abstract
// currently being built, looked up by the requested name and its alias root.
func (c *Container) contextualFor(res *resolution, abstract, key string) Closure {
	if len(res.abstracts) == 0 {
		return nil
	}
	caller := res.abstracts[len(res.abstracts)-1]

	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.contextual[caller]
	if !ok {
		return nil
	}
	if f, ok := m[abstract]; ok {
		return f
	}
	return m[key]
}
