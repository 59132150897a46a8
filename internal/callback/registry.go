// Package callback resolves dotted-path strings to invocable units.
//
// Units are registered against a path ("reports.rebuild", "mailer").
// Resolution finds the longest registered prefix, then descends the
// remaining components through namespaces, exported fields and
// methods, so a registered value can expose several callbacks.
package callback

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"callq/internal/domain"
)

// Func is the invocable unit a callback path resolves to.
type Func func(ctx context.Context, kwargs domain.Kwargs) (any, error)

// Namespace groups named units under one registered prefix.
type Namespace map[string]any

// Lookup finds the unit registered at exactly path. It is the
// pluggable capability behind Resolve so the registry can be swapped.
type Lookup func(path string) (any, bool)

// Registry is a concurrency-safe path → unit table.
type Registry struct {
	mu    sync.RWMutex
	units map[string]any
}

func NewRegistry() *Registry {
	return &Registry{units: make(map[string]any)}
}

// Register binds unit to path, replacing any previous binding.
func (r *Registry) Register(path string, unit any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[path] = unit
}

// Lookup implements the Lookup capability.
func (r *Registry) Lookup(path string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	unit, ok := r.units[path]
	return unit, ok
}

// Resolve finds the invocable named by path. The longest registered
// prefix wins; remaining components are attribute lookups on the
// resolved unit. The final unit must be a Func (or have its
// signature).
func Resolve(lookup Lookup, path string) (Func, error) {
	parts := strings.Split(path, ".")
	for i := len(parts); i >= 1; i-- {
		prefix := strings.Join(parts[:i], ".")
		unit, ok := lookup(prefix)
		if !ok {
			continue
		}
		return descend(path, unit, parts[i:])
	}
	return nil, &domain.ResolutionError{Path: path, Reason: "no registered prefix"}
}

func descend(path string, unit any, rest []string) (Func, error) {
	for _, name := range rest {
		next, ok := attribute(unit, name)
		if !ok {
			return nil, &domain.ResolutionError{Path: path, Reason: "no attribute " + name}
		}
		unit = next
	}
	return invocable(path, unit)
}

// attribute looks name up on unit: namespace entries first, then
// exported methods and struct fields, matched case-insensitively so
// dotted paths can stay lowercase.
func attribute(unit any, name string) (any, bool) {
	switch ns := unit.(type) {
	case Namespace:
		v, ok := ns[name]
		return v, ok
	case map[string]any:
		v, ok := ns[name]
		return v, ok
	}

	v := reflect.ValueOf(unit)
	if !v.IsValid() {
		return nil, false
	}

	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.IsExported() && strings.EqualFold(m.Name, name) {
			return v.Method(i).Interface(), true
		}
	}

	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.IsExported() && strings.EqualFold(f.Name, name) {
				return v.Field(i).Interface(), true
			}
		}
	}
	return nil, false
}

func invocable(path string, unit any) (Func, error) {
	switch fn := unit.(type) {
	case Func:
		return fn, nil
	case func(context.Context, domain.Kwargs) (any, error):
		return fn, nil
	}
	return nil, &domain.ResolutionError{Path: path, Reason: "unit is not invocable"}
}
