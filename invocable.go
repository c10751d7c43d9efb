package msgroute

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
)

// InvocableHandlerMethod invokes a HandlerMethod with arguments drawn from
// caller-provided values and an argument resolver chain.
//
// The resolver responsible for each parameter is chosen once, when the
// InvocableHandlerMethod is created; Invoke only runs the chosen resolvers.
type InvocableHandlerMethod struct {
	*HandlerMethod
	resolvers []ArgumentResolver
	plan      []int // resolver index per parameter, -1 if none supports it
}

// NewInvocableHandlerMethod binds hm to resolvers.
func NewInvocableHandlerMethod(hm *HandlerMethod, resolvers []ArgumentResolver) *InvocableHandlerMethod {
	plan := make([]int, len(hm.params))
	for i, p := range hm.params {
		plan[i] = -1
		for j, r := range resolvers {
			if r.Supports(p) {
				plan[i] = j
				break
			}
		}
	}
	return &InvocableHandlerMethod{HandlerMethod: hm, resolvers: resolvers, plan: plan}
}

// Invoke calls the method on target. For each parameter the first provided
// value assignable to its type is used; otherwise the planned resolver
// produces it.
//
// The returned value is nil for void methods. A non-nil error result of the
// method is returned unchanged, and so is a panic whose value is an error;
// other panic values are wrapped in a PanicError. Panics raised by argument
// resolvers are treated the same way.
func (m *InvocableHandlerMethod) Invoke(ctx context.Context, target any, msg *Message, provided ...any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, panicError(r)
		}
	}()

	recv := reflect.ValueOf(target)
	if !recv.IsValid() || recv.Type() != m.recv {
		return nil, &TargetMismatchError{
			Method:     m.String(),
			Declaring:  m.recv,
			TargetType: reflect.TypeOf(target),
		}
	}

	in := make([]reflect.Value, 0, len(m.params)+1)
	in = append(in, recv)
	for i, p := range m.params {
		arg, err := m.resolveArg(ctx, i, p, msg, provided)
		if err != nil {
			return nil, err
		}
		in = append(in, arg)
	}
	return m.call(in)
}

func (m *InvocableHandlerMethod) resolveArg(ctx context.Context, i int, p Parameter, msg *Message, provided []any) (reflect.Value, error) {
	for _, v := range provided {
		if v != nil && reflect.TypeOf(v).AssignableTo(p.Type) {
			return reflect.ValueOf(v), nil
		}
	}

	if m.plan[i] < 0 {
		return reflect.Value{}, &ArgumentResolutionError{Index: p.Index, Type: p.Type, Method: m.String()}
	}
	v, err := m.resolvers[m.plan[i]].Resolve(ctx, p, msg)
	if err != nil {
		return reflect.Value{}, &ArgumentResolutionError{Index: p.Index, Type: p.Type, Method: m.String(), Cause: err}
	}
	if v == nil {
		return reflect.Zero(p.Type), nil
	}

	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(p.Type):
		return rv, nil
	case rv.Type().ConvertibleTo(p.Type):
		return rv.Convert(p.Type), nil
	}
	return reflect.Value{}, &ArgumentResolutionError{
		Index:  p.Index,
		Type:   p.Type,
		Method: m.String(),
		Cause:  fmt.Errorf("resolver produced %v", rv.Type()),
	}
}

func (m *InvocableHandlerMethod) call(in []reflect.Value) (any, error) {
	out := m.method.Func.Call(in)
	if m.ret.ReturnsError {
		if e := out[len(out)-1]; !e.IsNil() {
			return nil, e.Interface().(error)
		}
	}
	if m.ret.Type == nil {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// panicError converts a recovered value into the error reported for it.
func panicError(r any) error {
	if e, ok := r.(error); ok {
		return e
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}
