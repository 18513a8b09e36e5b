package container

import (
	"fmt"
	"reflect"
)

// MethodInjectable is implemented by objects that want setter-style
// injection after their tagged fields are filled. Every named method is
// called through Call.
type MethodInjectable interface {
	InjectMethods() []string
}

// InjectOn fills the fields of an already-constructed struct that carry an
// inject tag, then runs its injection methods.
//
//	type ReportJob struct {
//	    Log   *zap.Logger `inject:"log"`
//	    Cache cache.Store `inject:""`            // resolved by type key
//	    Mail  Mailer      `inject:"mailer" optional:"true"`
//	}
//	err := c.InjectOn(&job)
func (c *Container) InjectOn(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("container: InjectOn needs a non-nil pointer to struct, got %T", target)
	}
	sc, _ := c.scope()

	sv := rv.Elem()
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		tag, ok := f.Tag.Lookup("inject")
		if !ok || tag == "-" {
			continue
		}
		if !f.IsExported() {
			return fmt.Errorf("container: cannot inject unexported field %s.%s", st.Name(), f.Name)
		}

		key := tag
		if key == "" {
			key = typeKey(f.Type)
		}
		inst, err := sc.resolve(key, Params{}, false, false)
		if err != nil {
			if f.Tag.Get("optional") == "true" {
				continue
			}
			return err
		}
		v, ok := coerce(inst, f.Type)
		if !ok {
			return &BindingResolutionError{
				Abstract: key,
				Reason:   fmt.Sprintf("%T is not assignable to field %s.%s", inst, st.Name(), f.Name),
			}
		}
		sv.Field(i).Set(v)
	}

	if mi, ok := target.(MethodInjectable); ok {
		for _, name := range mi.InjectMethods() {
			if _, err := sc.Call(Method{Target: target, Name: name}); err != nil {
				return err
			}
		}
	}
	return nil
}
