package container

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// parameter describes one injectable dependency: an exported struct field or
// a function argument.
type parameter struct {
	name     string // field name; empty for function arguments
	index    int    // field index or argument position
	position int    // position among injectable parameters
	typ      reflect.Type
	abstract string // inject:"abstract"
	def      string
	hasDef   bool
	optional bool
}

// resolver builds object graphs from reflected dependency lists.
type resolver struct {
	cache sync.Map // reflect.Type → []parameter
}

func newResolver() *resolver { return &resolver{} }

func (r *resolver) clear() {
	r.cache.Range(func(k, _ any) bool {
		r.cache.Delete(k)
		return true
	})
}

var (
	containerType = reflect.TypeOf((*Container)(nil))
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	durationType  = reflect.TypeOf(time.Duration(0))
)

// parameters returns the cached dependency list of a struct or func type.
func (r *resolver) parameters(t reflect.Type) []parameter {
	if cached, ok := r.cache.Load(t); ok {
		return cached.([]parameter)
	}

	var params []parameter
	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			tag, hasTag := f.Tag.Lookup("inject")
			if tag == "-" {
				continue
			}
			def, hasDef := f.Tag.Lookup("default")
			prm := parameter{
				name:     f.Name,
				index:    i,
				position: len(params),
				typ:      f.Type,
				def:      def,
				hasDef:   hasDef,
				optional: f.Tag.Get("optional") == "true",
			}
			if hasTag {
				prm.abstract = tag
			}
			params = append(params, prm)
		}
	case reflect.Func:
		n := t.NumIn()
		if t.IsVariadic() {
			n--
		}
		for i := 0; i < n; i++ {
			params = append(params, parameter{index: i, position: i, typ: t.In(i)})
		}
	}

	r.cache.Store(t, params)
	return params
}

// build autowires a struct (or pointer to struct) type.
func (r *resolver) build(c *Container, t reflect.Type, p Params) (any, error) {
	res := c.res
	st := t
	isPtr := st.Kind() == reflect.Ptr
	if isPtr {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, &BindingResolutionError{
			Abstract: typeKey(t),
			Reason:   fmt.Sprintf("target of kind %s is not instantiable", st.Kind()),
		}
	}

	if err := r.enter(res, st); err != nil {
		return nil, err
	}
	owner := typeKey(st)
	res.abstracts = append(res.abstracts, owner)
	defer func() {
		res.building = res.building[:len(res.building)-1]
		res.abstracts = res.abstracts[:len(res.abstracts)-1]
	}()

	v := reflect.New(st).Elem()
	for _, prm := range r.parameters(st) {
		val, ok, err := r.resolveParameter(c, prm, p, owner)
		if err != nil {
			return nil, err
		}
		if ok {
			v.Field(prm.index).Set(val)
		}
	}

	if isPtr {
		return v.Addr().Interface(), nil
	}
	return v.Interface(), nil
}

// buildFunc calls a constructor function with resolved arguments. The
// constructor returns T or (T, error).
func (r *resolver) buildFunc(c *Container, fn reflect.Value, p Params) (any, error) {
	ft := fn.Type()
	if ft.NumOut() == 0 || ft.NumOut() > 2 || (ft.NumOut() == 2 && !ft.Out(1).Implements(errorType)) {
		return nil, &BindingResolutionError{
			Abstract: ft.String(),
			Reason:   "constructor must return T or (T, error)",
		}
	}

	res := c.res
	produced := ft.Out(0)
	if err := r.enter(res, produced); err != nil {
		return nil, err
	}
	defer func() { res.building = res.building[:len(res.building)-1] }()

	args, err := r.arguments(c, ft, p, ft.String())
	if err != nil {
		return nil, err
	}
	out := fn.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// enter pushes t onto the build stack, failing when t is already being built.
func (r *resolver) enter(res *resolution, t reflect.Type) error {
	for i, b := range res.building {
		if b == t {
			chain := make([]string, 0, len(res.building)-i+1)
			for _, bt := range res.building[i:] {
				chain = append(chain, typeKey(bt))
			}
			chain = append(chain, typeKey(t))
			return &BindingResolutionError{
				Abstract: typeKey(t),
				Reason:   "circular dependency detected: " + strings.Join(chain, " -> "),
			}
		}
	}
	res.building = append(res.building, t)
	return nil
}

// arguments resolves every argument of a function type. Positional overrides
// beyond the fixed arguments are passed through to a variadic parameter.
func (r *resolver) arguments(c *Container, ft reflect.Type, p Params, owner string) ([]reflect.Value, error) {
	params := r.parameters(ft)
	args := make([]reflect.Value, 0, ft.NumIn())
	for _, prm := range params {
		val, ok, err := r.resolveParameter(c, prm, p, owner)
		if err != nil {
			return nil, err
		}
		if !ok {
			val = reflect.Zero(prm.typ)
		}
		args = append(args, val)
	}

	if ft.IsVariadic() && len(p.Positional) > len(params) {
		elem := ft.In(ft.NumIn() - 1).Elem()
		for _, extra := range p.Positional[len(params):] {
			v, ok := coerce(extra, elem)
			if !ok {
				return nil, &BindingResolutionError{
					Abstract: owner,
					Reason:   fmt.Sprintf("variadic argument %T is not assignable to %s", extra, elem),
				}
			}
			args = append(args, v)
		}
	}
	return args, nil
}

// resolveParameter applies the resolution order: named override, positional
// override, typed override, last override frame, container, type resolution,
// default value, optional. ok is false when the zero value should be kept.
func (r *resolver) resolveParameter(c *Container, prm parameter, p Params, owner string) (reflect.Value, bool, error) {
	if v, ok := named(p, prm); ok {
		return r.assign(v, prm, owner)
	}
	if prm.position < len(p.Positional) {
		if v, ok := coerce(p.Positional[prm.position], prm.typ); ok {
			return v, true, nil
		}
	}
	if v, ok := typedOverride(p.Typed, prm.typ); ok {
		return v, true, nil
	}
	if frames := c.res.with; len(frames) > 0 {
		if v, ok := named(frames[len(frames)-1], prm); ok {
			return r.assign(v, prm, owner)
		}
	}

	if prm.typ == containerType {
		return reflect.ValueOf(&Container{registry: c.registry}), true, nil
	}

	var resolveErr error
	if prm.abstract != "" {
		inst, err := c.resolve(prm.abstract, Params{}, false, false)
		if err == nil {
			return r.assign(inst, prm, owner)
		}
		resolveErr = err
	} else if !isBuiltin(prm.typ) {
		key := typeKey(prm.typ)
		switch {
		case c.Has(key) || c.contextualFor(c.res, key, key) != nil:
			inst, err := c.resolve(key, Params{}, false, false)
			if err == nil {
				return r.assign(inst, prm, owner)
			}
			resolveErr = err
		case autowirable(prm.typ):
			c.res.with = append(c.res.with, Params{})
			inst, err := r.build(c, prm.typ, Params{})
			c.res.with = c.res.with[:len(c.res.with)-1]
			if err == nil {
				return r.assign(inst, prm, owner)
			}
			resolveErr = err
		}
	}

	if prm.hasDef {
		v, err := parseDefault(prm.def, prm.typ)
		if err != nil {
			return reflect.Value{}, false, &BindingResolutionError{Abstract: owner, Reason: describe(prm), Err: err}
		}
		return v, true, nil
	}
	if prm.optional {
		return reflect.Value{}, false, nil
	}
	if resolveErr != nil {
		return reflect.Value{}, false, resolveErr
	}
	return reflect.Value{}, false, &BindingResolutionError{
		Abstract: owner,
		Reason:   "unresolvable dependency resolving " + describe(prm),
	}
}

func (r *resolver) assign(val any, prm parameter, owner string) (reflect.Value, bool, error) {
	v, ok := coerce(val, prm.typ)
	if !ok {
		return reflect.Value{}, false, &BindingResolutionError{
			Abstract: owner,
			Reason:   fmt.Sprintf("%T is not assignable to %s", val, describe(prm)),
		}
	}
	return v, true, nil
}

func named(p Params, prm parameter) (any, bool) {
	if prm.name == "" || len(p.Named) == 0 {
		return nil, false
	}
	if v, ok := p.Named[prm.name]; ok {
		return v, true
	}
	v, ok := p.Named[lowerFirst(prm.name)]
	return v, ok
}

// typedOverride returns the first typed value assignable to t. Empty
// interfaces never match so that `any` parameters are not captured.
func typedOverride(values []any, t reflect.Type) (reflect.Value, bool) {
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		return reflect.Value{}, false
	}
	for _, val := range values {
		if val == nil {
			continue
		}
		if v := reflect.ValueOf(val); v.Type().AssignableTo(t) {
			return v, true
		}
	}
	return reflect.Value{}, false
}

func describe(prm parameter) string {
	if prm.name != "" {
		return fmt.Sprintf("[%s %s]", prm.name, prm.typ)
	}
	return fmt.Sprintf("[#%d %s]", prm.index, prm.typ)
}

// coerce converts val to t when it is assignable, a pointer to an assignable
// value, or a numeric/string conversion of the same family.
func coerce(val any, t reflect.Type) (reflect.Value, bool) {
	if val == nil {
		switch t.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), true
		}
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(val)
	if v.Type().AssignableTo(t) {
		return v, true
	}
	if v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Type().AssignableTo(t) {
		return v.Elem(), true
	}
	if sameFamily(v.Kind(), t.Kind()) && v.Type().ConvertibleTo(t) {
		return v.Convert(t), true
	}
	return reflect.Value{}, false
}

func sameFamily(a, b reflect.Kind) bool {
	family := func(k reflect.Kind) int {
		switch k {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return 1
		case reflect.String:
			return 2
		case reflect.Bool:
			return 3
		}
		return 0
	}
	return family(a) != 0 && family(a) == family(b)
}

func isBuiltin(t reflect.Type) bool {
	return t.PkgPath() == "" && t.Kind() != reflect.Ptr && t.Kind() != reflect.Interface &&
		t.Kind() != reflect.Struct && t.Kind() != reflect.Func && t.Name() != ""
}

func autowirable(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func parseDefault(s string, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	switch {
	case t == durationType:
		d, err := time.ParseDuration(s)
		if err != nil {
			return v, err
		}
		v.SetInt(int64(d))
		return v, nil
	}

	switch t.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return v, err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return v, err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return v, err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return v, err
		}
		v.SetFloat(f)
	case reflect.Slice:
		if t.Elem().Kind() != reflect.String {
			return v, fmt.Errorf("unsupported default for %s", t)
		}
		parts := strings.Split(s, ",")
		out := reflect.MakeSlice(t, 0, len(parts))
		for _, part := range parts {
			out = reflect.Append(out, reflect.ValueOf(strings.TrimSpace(part)).Convert(t.Elem()))
		}
		v.Set(out)
	default:
		return v, fmt.Errorf("unsupported default for %s", t)
	}
	return v, nil
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
