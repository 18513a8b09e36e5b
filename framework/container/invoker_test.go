package container_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-foundation/framework/container"
)

type greeter struct{ prefix string }

func (g *greeter) Hello(name string) string { return g.prefix + " " + name }

type sumJob struct{}

func (sumJob) Invoke(extra int, s *service) int { return s.ID + extra }

func TestCall_FuncWithTypedOverride(t *testing.T) {
	c := container.New()
	out, err := c.Call(func(s *service, c *container.Container) int {
		require.NotNil(t, c)
		return s.ID * 2
	}, container.Params{Typed: []any{&service{ID: 4}}})

	require.NoError(t, err)
	assert.Equal(t, []any{8}, out)
}

func TestCall_FuncAutowiresArguments(t *testing.T) {
	c := container.New()
	out, err := c.Call(func(r *repo) string { return r.DSN })
	require.NoError(t, err)
	assert.Equal(t, []any{"postgres://localhost/app"}, out)
}

func TestCall_TrailingErrorIsReturned(t *testing.T) {
	errBoom := errors.New("boom")
	c := container.New()

	out, err := c.Call(func() (string, error) { return "partial", errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []any{"partial"}, out)

	out, err = c.Call(func() error { return nil })
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCall_AbstractAtMethod(t *testing.T) {
	c := container.New()
	c.Instance("greeter", &greeter{prefix: "hello"})

	out, err := c.Call("greeter@Hello", container.Params{Positional: []any{"ada"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"hello ada"}, out)
}

func TestCall_MethodValue(t *testing.T) {
	c := container.New()

	out, err := c.Call(container.Method{Target: &greeter{prefix: "hi"}, Name: "Hello"},
		container.Params{Positional: []any{"bob"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"hi bob"}, out)

	// Pointer-receiver method on a value target.
	out, err = c.Call(container.Method{Target: greeter{prefix: "hey"}, Name: "Hello"},
		container.Params{Positional: []any{"eve"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"hey eve"}, out)
}

func TestCall_MethodOnAbstractTarget(t *testing.T) {
	c := container.New()
	c.Instance("greeter", &greeter{prefix: "yo"})

	out, err := c.Call(container.Method{Target: "greeter", Name: "Hello"},
		container.With{}.Params(), container.Params{Positional: []any{"kim"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"yo kim"}, out)
}

func TestCall_Invokable(t *testing.T) {
	c := container.New()
	out, err := c.Call(sumJob{}, container.Params{
		Typed:      []any{&service{ID: 40}},
		Positional: []any{2},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{42}, out)
}

func TestCall_AbstractResolvingToFunc(t *testing.T) {
	c := container.New()
	c.Instance("ping", func() string { return "pong" })

	out, err := c.Call("ping")
	require.NoError(t, err)
	assert.Equal(t, []any{"pong"}, out)
}

func TestCall_Variadic(t *testing.T) {
	c := container.New()
	out, err := c.Call(func(prefix string, nums ...int) string {
		total := 0
		for _, n := range nums {
			total += n
		}
		return prefix + string(rune('0'+total))
	}, container.Params{Positional: []any{"sum=", 1, 2, 3}})

	require.NoError(t, err)
	assert.Equal(t, []any{"sum=6"}, out)
}

func TestCall_MissingMethod(t *testing.T) {
	c := container.New()
	_, err := c.Call(container.Method{Target: &greeter{}, Name: "Nope"})
	assert.Error(t, err)

	_, err = c.Call(nil)
	assert.Error(t, err)
}

func TestCall_UnresolvableArgument(t *testing.T) {
	c := container.New()
	_, err := c.Call(func(n int) int { return n })
	assert.ErrorIs(t, err, container.ErrBindingResolution)
}

func TestCall_UnknownAbstract(t *testing.T) {
	c := container.New()
	_, err := c.Call("missing@Run")
	assert.ErrorIs(t, err, container.ErrEntryNotFound)
}
