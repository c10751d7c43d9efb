package msgroute

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrSealed is returned when a handler is registered after the
	// dispatcher has started dispatching.
	ErrSealed = errors.New("msgroute: registration after first dispatch")

	// ErrNoBeanResolver is returned when a bean name is used without a
	// BeanResolver configured.
	ErrNoBeanResolver = errors.New("msgroute: no bean resolver configured")

	// ErrNotHandler is returned by Detect for targets the strategy does not
	// consider handlers.
	ErrNotHandler = errors.New("msgroute: not a handler")
)

// DuplicateMappingError reports two different handler methods registered
// under equal mapping conditions.
type DuplicateMappingError struct {
	Mapping  any
	Existing *HandlerMethod
	New      *HandlerMethod
}

func (e *DuplicateMappingError) Error() string {
	return fmt.Sprintf("ambiguous mapping %v: cannot map %s, %s is already mapped",
		e.Mapping, e.New, e.Existing)
}

// AmbiguousMappingError reports two top-ranked matches that compare equal
// for a message.
type AmbiguousMappingError struct {
	Destination string
	First       *HandlerMethod
	Second      *HandlerMethod
}

func (e *AmbiguousMappingError) Error() string {
	return fmt.Sprintf("ambiguous handler methods mapped for destination %q: {%s, %s}",
		e.Destination, e.First, e.Second)
}

// MethodShapeError reports a handler method whose results cannot be
// invoked by the dispatcher.
type MethodShapeError struct {
	Method reflect.Method
	Reason string
}

func (e *MethodShapeError) Error() string {
	return fmt.Sprintf("invalid handler method %s %v: %s", e.Method.Name, e.Method.Type, e.Reason)
}

// ExceptionMappingError reports an invalid exception handler declaration.
type ExceptionMappingError struct {
	HandlerType reflect.Type
	Method      reflect.Method
	Reason      string
}

func (e *ExceptionMappingError) Error() string {
	return fmt.Sprintf("invalid exception handler %v.%s: %s", e.HandlerType, e.Method.Name, e.Reason)
}

// RouteTableError reports a RouteTable entry naming a method the handler
// type does not have.
type RouteTableError struct {
	HandlerType reflect.Type
	Name        string
}

func (e *RouteTableError) Error() string {
	return fmt.Sprintf("route table of %v declares %q, which is not a method of the type", e.HandlerType, e.Name)
}

// ArgumentResolutionError reports a parameter neither a provided argument
// nor a resolver could satisfy, or a resolver that failed.
type ArgumentResolutionError struct {
	Index  int
	Type   reflect.Type
	Method string
	Cause  error
}

func (e *ArgumentResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("could not resolve parameter [%d] of type %v in %s: %v", e.Index, e.Type, e.Method, e.Cause)
	}
	return fmt.Sprintf("could not resolve parameter [%d] of type %v in %s: no suitable resolver", e.Index, e.Type, e.Method)
}

func (e *ArgumentResolutionError) Unwrap() error { return e.Cause }

// TargetMismatchError reports a resolved target that is not of the type
// declaring the handler method.
type TargetMismatchError struct {
	Method     string
	Declaring  reflect.Type
	TargetType reflect.Type
}

func (e *TargetMismatchError) Error() string {
	return fmt.Sprintf("handler %s is declared on %v but the target is a %v; "+
		"if the handler is wrapped or decorated, register the wrapper's methods instead",
		e.Method, e.Declaring, e.TargetType)
}

// PanicError wraps a non-error value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// ReturnValueError reports a handler result no return value handler
// accepted, or a handler that failed to process it.
type ReturnValueError struct {
	Type   reflect.Type
	Method string
	Cause  error
}

func (e *ReturnValueError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("handle return value %v of %s: %v", e.Type, e.Method, e.Cause)
	}
	return fmt.Sprintf("no return value handler for %v returned by %s", e.Type, e.Method)
}

func (e *ReturnValueError) Unwrap() error { return e.Cause }
