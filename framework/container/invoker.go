package container

import (
	"fmt"
	"reflect"
	"strings"
)

// invokeMethod is the method Call looks for on invokable values.
const invokeMethod = "Invoke"

// Method references a method by name on an object, or on the instance an
// abstract resolves to when Target is a string.
//
//	c.Call(container.Method{Target: "UserController", Name: "Show"}, params)
type Method struct {
	Target any
	Name   string
}

// Call resolves the arguments of callable and invokes it.
//
// Supported callables:
//   - Method{Target, Name} (Target is an object or an abstract)
//   - "Abstract@Method" strings
//   - a string abstract resolving to a func or to a value with an Invoke method
//   - any func value
//   - any value with an Invoke method
//
// A *Container parameter receives the container. Positional overrides that
// exceed the fixed parameters are passed to a variadic parameter. The
// non-error results are returned; a trailing non-nil error is returned as err.
func (c *Container) Call(callable any, params ...Params) ([]any, error) {
	sc, res := c.scope()
	p := mergeParams(params)
	res.with = append(res.with, p)
	defer func() { res.with = res.with[:len(res.with)-1] }()

	fn, owner, err := sc.callableFunc(callable)
	if err != nil {
		return nil, err
	}
	args, err := c.resolver.arguments(sc, fn.Type(), p, owner)
	if err != nil {
		return nil, err
	}
	return results(fn.Call(args))
}

func (c *Container) callableFunc(callable any) (reflect.Value, string, error) {
	switch v := callable.(type) {
	case Method:
		return c.methodOf(v.Target, v.Name)
	case *Method:
		return c.methodOf(v.Target, v.Name)
	case string:
		if abstract, method, ok := strings.Cut(v, "@"); ok {
			return c.methodOf(abstract, method)
		}
		inst, err := c.resolve(v, Params{}, false, false)
		if err != nil {
			return reflect.Value{}, "", err
		}
		if rv := reflect.ValueOf(inst); rv.Kind() == reflect.Func {
			return rv, v, nil
		}
		return c.methodOf(inst, invokeMethod)
	}

	rv := reflect.ValueOf(callable)
	if !rv.IsValid() {
		return reflect.Value{}, "", fmt.Errorf("container: cannot call nil")
	}
	if rv.Kind() == reflect.Func {
		return rv, rv.Type().String(), nil
	}
	return c.methodOf(callable, invokeMethod)
}

func (c *Container) methodOf(target any, name string) (reflect.Value, string, error) {
	if abstract, ok := target.(string); ok {
		inst, err := c.resolve(abstract, Params{}, false, false)
		if err != nil {
			return reflect.Value{}, "", err
		}
		target = inst
	}

	rv := reflect.ValueOf(target)
	if !rv.IsValid() {
		return reflect.Value{}, "", fmt.Errorf("container: cannot call method %s on nil", name)
	}
	m := rv.MethodByName(name)
	if !m.IsValid() && rv.Kind() != reflect.Ptr {
		// Pointer-receiver methods on a value target.
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		m = ptr.MethodByName(name)
	}
	if !m.IsValid() {
		return reflect.Value{}, "", fmt.Errorf("container: method %s not found on %T", name, target)
	}
	return m, fmt.Sprintf("%T.%s", target, name), nil
}

func results(out []reflect.Value) ([]any, error) {
	vals := make([]any, 0, len(out))
	for i, o := range out {
		if i == len(out)-1 && o.Type() == errorType {
			if !o.IsNil() {
				return vals, o.Interface().(error)
			}
			continue
		}
		vals = append(vals, o.Interface())
	}
	return vals, nil
}
