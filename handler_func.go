package msgroute

import (
	"context"
	"reflect"
)

// Proc (procedure) processes a message payload without returning a result.
// Use this for fire-and-forget handlers that don't warrant a handler type.
//
// The type parameter P is the payload type; the payload resolver decodes
// and validates it.
type Proc[P any] interface {
	Run(ctx context.Context, payload P) error
}

// ProcFunc is a function adapter for Proc:
//
//	msgroute.RegisterProc(d, msgroute.OnMessage("/audit").Route(),
//	    msgroute.ProcFunc[AuditEvent](func(ctx context.Context, e AuditEvent) error {
//	        return nil
//	    }))
type ProcFunc[P any] func(ctx context.Context, payload P) error

// Run implements the Proc interface.
func (f ProcFunc[P]) Run(ctx context.Context, payload P) error {
	return f(ctx, payload)
}

// Func (function) processes a message payload and returns a result, which
// is passed to the return value handlers (by default, the message's
// Replier).
type Func[P, R any] interface {
	Call(ctx context.Context, payload P) (R, error)
}

// FuncFunc is a function adapter for Func.
type FuncFunc[P, R any] func(ctx context.Context, payload P) (R, error)

// Call implements the Func interface.
func (f FuncFunc[P, R]) Call(ctx context.Context, payload P) (R, error) {
	return f(ctx, payload)
}

// RegisterProc maps p's Run method under mapping.
func RegisterProc[T comparable, P any](d *Dispatcher[T], mapping T, p Proc[P]) error {
	return registerMethod(d, mapping, p, "Run")
}

// RegisterFunc maps f's Call method under mapping.
func RegisterFunc[T comparable, P, R any](d *Dispatcher[T], mapping T, f Func[P, R]) error {
	return registerMethod(d, mapping, f, "Call")
}

func registerMethod[T comparable](d *Dispatcher[T], mapping T, target any, name string) error {
	method, ok := reflect.TypeOf(target).MethodByName(name)
	if !ok {
		return &MethodShapeError{Method: method, Reason: "no method " + name}
	}
	return d.Register(target, method, mapping)
}
