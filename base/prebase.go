// Package base holds the root of the object model: class introspection and cloning.
package base

import (
	"reflect"
	"sync"
)

// MaxAncestry bounds how many ancestors are read from a declared ancestry.
const MaxAncestry = 20

// ObjectClass closes every class list.
const ObjectClass = "object"

// ClassName names one level of a hierarchy.
type ClassName struct {
	Short     string
	Qualified string
}

// Object is anything taking part in the object model. Ancestry lists the
// type itself first, then its ancestors, closest first.
type Object interface {
	Ancestry() []ClassName
}

// ProtoM21Object is embedded by every model type.
type ProtoM21Object struct{}

var protoClass = ClassName{Short: "ProtoM21Object", Qualified: "music21.prebase.ProtoM21Object"}

// ProtoClass is the last declared ancestor of every model type.
func ProtoClass() ClassName { return protoClass }

func (p *ProtoM21Object) Ancestry() []ClassName {
	return []ClassName{protoClass}
}

// descriptors caches one *descriptor per dynamic type.
var descriptors sync.Map

type descriptor struct {
	classes []string
	set     map[string]struct{}
}

func newDescriptor(o Object) *descriptor {
	d := &descriptor{set: map[string]struct{}{}}
	for i, c := range o.Ancestry() {
		if i >= MaxAncestry || c.Short == "" {
			break
		}
		d.classes = append(d.classes, c.Short)
		d.set[c.Short] = struct{}{}
		if c.Qualified != "" {
			d.set[c.Qualified] = struct{}{}
		}
	}
	d.classes = append(d.classes, ObjectClass)
	d.set[ObjectClass] = struct{}{}
	return d
}

func describe(o Object) *descriptor {
	t := reflect.TypeOf(o)
	if d, ok := descriptors.Load(t); ok {
		return d.(*descriptor)
	}
	d, _ := descriptors.LoadOrStore(t, newDescriptor(o))
	return d.(*descriptor)
}

// Classes returns the short class names of o, most derived first, ending with "object".
func Classes(o Object) []string {
	classes := describe(o).classes
	out := make([]string, len(classes))
	copy(out, classes)
	return out
}

// ClassSet returns short and qualified class names of o.
func ClassSet(o Object) map[string]struct{} {
	set := describe(o).set
	out := make(map[string]struct{}, len(set))
	for k := range set {
		out[k] = struct{}{}
	}
	return out
}

// IsClass reports whether name is a short or qualified class name of o.
func IsClass(o Object, name string) bool {
	_, ok := describe(o).set[name]
	return ok
}

// IsAnyClass reports whether any of names matches.
func IsAnyClass(o Object, names ...string) bool {
	set := describe(o).set
	for _, n := range names {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}
