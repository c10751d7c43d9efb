package msgroute

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
)

// ExceptionMethodSelector identifies the exception handler methods of a
// handler type.
type ExceptionMethodSelector interface {
	// ExceptionTypes reports whether method handles errors, and the error
	// types it handles. A nil or empty list means the types are taken from
	// the method's parameters that implement error.
	ExceptionTypes(method reflect.Method, handlerType reflect.Type) (types []reflect.Type, ok bool)
}

// noMatchingMethod marks error types known to have no handler method.
var noMatchingMethod = &reflect.Method{Name: "noMatchingMethod"}

// ExceptionResolver maps error types to the exception handler methods of
// one handler type.
//
// Lookups are cached per dynamic error type, including misses, so each
// distinct type is resolved against the declared mappings at most once
// (modulo concurrent first lookups, which compute the same answer).
type ExceptionResolver struct {
	handlerType reflect.Type
	declared    []reflect.Type
	methods     map[reflect.Type]reflect.Method
	cache       sync.Map // reflect.Type -> *reflect.Method
	scans       atomic.Int64
}

// NewExceptionResolver builds the exception mappings of handlerType. A nil
// selector yields a resolver without mappings.
func NewExceptionResolver(handlerType reflect.Type, selector ExceptionMethodSelector) (*ExceptionResolver, error) {
	r := &ExceptionResolver{
		handlerType: handlerType,
		methods:     make(map[reflect.Type]reflect.Method),
	}
	if selector == nil {
		return r, nil
	}

	var errs *multierror.Error
	for i := 0; i < handlerType.NumMethod(); i++ {
		method := handlerType.Method(i)
		types, ok := selector.ExceptionTypes(method, handlerType)
		if !ok {
			continue
		}
		if len(types) == 0 {
			types = errorParameters(method)
		}
		if len(types) == 0 {
			errs = multierror.Append(errs, &ExceptionMappingError{
				HandlerType: handlerType,
				Method:      method,
				Reason:      "no error types declared and no error parameters",
			})
			continue
		}
		for _, t := range types {
			if t == nil || !t.Implements(errorType) {
				errs = multierror.Append(errs, &ExceptionMappingError{
					HandlerType: handlerType,
					Method:      method,
					Reason:      fmt.Sprintf("%v does not implement error", t),
				})
				continue
			}
			if prev, dup := r.methods[t]; dup && prev.Name != method.Name {
				errs = multierror.Append(errs, &ExceptionMappingError{
					HandlerType: handlerType,
					Method:      method,
					Reason:      fmt.Sprintf("%v is already handled by %s", t, prev.Name),
				})
				continue
			}
			if _, dup := r.methods[t]; !dup {
				r.declared = append(r.declared, t)
			}
			r.methods[t] = method
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

func errorParameters(method reflect.Method) []reflect.Type {
	var types []reflect.Type
	for i := 1; i < method.Type.NumIn(); i++ {
		if t := method.Type.In(i); t.Implements(errorType) {
			types = append(types, t)
		}
	}
	return types
}

// HandlerType returns the type whose methods the resolver maps.
func (r *ExceptionResolver) HandlerType() reflect.Type { return r.handlerType }

// HasMappings reports whether any exception handler methods were found.
func (r *ExceptionResolver) HasMappings() bool { return len(r.methods) > 0 }

// ExceptionMatch is the result of resolving an error to a handler method.
type ExceptionMatch struct {
	// Method is the exception handler method.
	Method reflect.Method

	// Err is the error the method matched: the resolved error or one of
	// its causes.
	Err error
}

// Resolve finds the handler method for err. When no method handles err
// itself, its causes are tried in Unwrap order.
func (r *ExceptionResolver) Resolve(err error) (ExceptionMatch, bool) {
	if err == nil || !r.HasMappings() {
		return ExceptionMatch{}, false
	}
	if m, ok := r.ResolveType(reflect.TypeOf(err)); ok {
		return ExceptionMatch{Method: m, Err: err}, true
	}

	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return r.Resolve(u.Unwrap())
	case interface{ Unwrap() []error }:
		for _, cause := range u.Unwrap() {
			if match, ok := r.Resolve(cause); ok {
				return match, true
			}
		}
	}
	return ExceptionMatch{}, false
}

// ResolveType finds the most specific handler method for errors of
// dynamic type t.
func (r *ExceptionResolver) ResolveType(t reflect.Type) (reflect.Method, bool) {
	v, ok := r.cache.Load(t)
	if !ok {
		v, _ = r.cache.LoadOrStore(t, r.scan(t))
	}
	m := v.(*reflect.Method)
	if m == noMatchingMethod {
		return reflect.Method{}, false
	}
	return *m, true
}

func (r *ExceptionResolver) scan(thrown reflect.Type) *reflect.Method {
	r.scans.Add(1)

	var matches []reflect.Type
	for _, declared := range r.declared {
		if declared == thrown || (declared.Kind() == reflect.Interface && thrown.Implements(declared)) {
			matches = append(matches, declared)
		}
	}
	if len(matches) == 0 {
		return noMatchingMethod
	}
	slices.SortStableFunc(matches, errorDepthComparator(thrown))
	m := r.methods[matches[0]]
	return &m
}

// errorDepth ranks how close declared is to the thrown type: the type
// itself, then interfaces it implements, then the error interface.
func errorDepth(declared, thrown reflect.Type) int {
	switch {
	case declared == thrown:
		return 0
	case declared == errorType:
		return 2
	default:
		return 1
	}
}

// errorDepthComparator orders declared error types from most to least
// specific for thrown. Among interfaces, one that embeds another is more
// specific, then the one with more methods.
func errorDepthComparator(thrown reflect.Type) func(a, b reflect.Type) int {
	return func(a, b reflect.Type) int {
		if c := cmp.Compare(errorDepth(a, thrown), errorDepth(b, thrown)); c != 0 {
			return c
		}
		if a == b {
			return 0
		}
		if a.Kind() == reflect.Interface && b.Kind() == reflect.Interface {
			switch {
			case a.Implements(b):
				return -1
			case b.Implements(a):
				return 1
			}
			if c := cmp.Compare(b.NumMethod(), a.NumMethod()); c != 0 {
				return c
			}
		}
		return strings.Compare(a.String(), b.String())
	}
}
