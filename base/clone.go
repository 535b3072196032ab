package base

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotClonable is returned for values that are not non-nil pointers to structs.
var ErrNotClonable = errors.New("base: value is not clonable")

// CopyMode tells Clone what to do with one field during a deep copy.
type CopyMode int

const (
	CopyDefault CopyMode = iota
	CopyReference
	CopyOmit
	CopyCustom
)

// CopyFunc produces the copy of a field value. It may clone nested objects
// through c so that they share the memo of the running clone.
type CopyFunc func(value any, c *Cloner) (any, error)

type FieldRule struct {
	Mode CopyMode
	Copy CopyFunc
}

// Policy maps field names to rules. Fields promoted from embedded structs
// are looked up by their own name.
type Policy map[string]FieldRule

func Reference() FieldRule { return FieldRule{Mode: CopyReference} }

func Omit() FieldRule { return FieldRule{Mode: CopyOmit} }

func Custom(fn CopyFunc) FieldRule { return FieldRule{Mode: CopyCustom, Copy: fn} }

// PolicyHolder is implemented by types that override the default deep copy of some fields.
type PolicyHolder interface {
	ClonePolicy() Policy
}

var objectType = reflect.TypeOf((*Object)(nil)).Elem()

type memoKey struct {
	ptr uintptr
	typ reflect.Type
}

// Cloner carries the memo of one deep copy.
type Cloner struct {
	memo map[memoKey]reflect.Value
}

func NewCloner() *Cloner {
	return &Cloner{memo: map[memoKey]reflect.Value{}}
}

// Clone copies o. A shallow clone copies every field as is; a deep clone
// follows the type's Policy and recursively clones nested objects.
func Clone[T Object](o T, deep bool) (T, error) {
	var zero T
	src := reflect.ValueOf(o)
	if !clonable(src) {
		return zero, ErrNotClonable
	}
	if !deep {
		dst := reflect.New(src.Elem().Type())
		dst.Elem().Set(src.Elem())
		return dst.Interface().(T), nil
	}
	dst, err := NewCloner().cloneObject(src)
	if err != nil {
		return zero, err
	}
	return dst.Interface().(T), nil
}

// Clone deep-copies o within the current memo.
func (c *Cloner) Clone(o Object) (Object, error) {
	src := reflect.ValueOf(o)
	if !clonable(src) {
		return nil, ErrNotClonable
	}
	dst, err := c.cloneObject(src)
	if err != nil {
		return nil, err
	}
	return dst.Interface().(Object), nil
}

func clonable(v reflect.Value) bool {
	return v.IsValid() && v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct
}

func (c *Cloner) cloneObject(src reflect.Value) (reflect.Value, error) {
	key := memoKey{ptr: src.Pointer(), typ: src.Type()}
	if dst, ok := c.memo[key]; ok {
		return dst, nil
	}
	dst := reflect.New(src.Elem().Type())
	c.memo[key] = dst

	var policy Policy
	if h, ok := src.Interface().(PolicyHolder); ok {
		policy = h.ClonePolicy()
	}
	if err := c.copyFields(dst.Elem(), src.Elem(), policy); err != nil {
		return reflect.Value{}, err
	}
	return dst, nil
}

// copyFields fills dst from src field by field. When dst starts zeroed, as
// it does for objects, unexported fields stay zero and a deep copy never
// shares private state with its source.
func (c *Cloner) copyFields(dst, src reflect.Value, policy Policy) error {
	t := src.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		sv, dv := src.Field(i), dst.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			if err := c.copyFields(dv, sv, policy); err != nil {
				return err
			}
			continue
		}

		if rule, ok := policy[f.Name]; ok {
			switch rule.Mode {
			case CopyReference:
				dv.Set(sv)
				continue
			case CopyOmit:
				continue
			case CopyCustom:
				if err := c.copyCustom(dv, sv, rule.Copy); err != nil {
					return fmt.Errorf("clone %s.%s: %w", t.Name(), f.Name, err)
				}
				continue
			}
		}

		nv, err := c.cloneValue(sv)
		if err != nil {
			return err
		}
		dv.Set(nv)
	}
	return nil
}

func (c *Cloner) copyCustom(dv, sv reflect.Value, fn CopyFunc) error {
	if fn == nil {
		dv.Set(sv)
		return nil
	}
	out, err := fn(sv.Interface(), c)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(out)
	if !rv.IsValid() || !rv.Type().AssignableTo(dv.Type()) {
		// a copy of the wrong type leaves the field at its zero value
		dv.Set(reflect.Zero(dv.Type()))
		return nil
	}
	dv.Set(rv)
	return nil
}

func (c *Cloner) cloneValue(v reflect.Value) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Func:
		return reflect.Zero(v.Type()), nil
	case reflect.Pointer:
		if !v.IsNil() && v.Elem().Kind() == reflect.Struct && v.Type().Implements(objectType) {
			return c.cloneObject(v)
		}
		return v, nil
	case reflect.Interface:
		if v.IsNil() {
			return v, nil
		}
		inner, err := c.cloneValue(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out, nil
	case reflect.Slice:
		if v.IsNil() {
			return v, nil
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			e, err := c.cloneValue(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(e)
		}
		return out, nil
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			e, err := c.cloneValue(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(e)
		}
		return out, nil
	case reflect.Map:
		if v.IsNil() {
			return v, nil
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			e, err := c.cloneValue(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(iter.Key(), e)
		}
		return out, nil
	case reflect.Struct:
		// plain values keep their private state, e.g. time.Time
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		if err := c.copyFields(out, v, nil); err != nil {
			return reflect.Value{}, err
		}
		return out, nil
	default:
		return v, nil
	}
}
