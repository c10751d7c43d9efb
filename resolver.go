package msgroute

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"
)

// Parameter describes one input of a handler method, excluding the
// receiver.
type Parameter struct {
	// Index is the zero-based position among the non-receiver inputs.
	Index int

	// Type is the declared parameter type.
	Type reflect.Type

	// Method is the method the parameter belongs to.
	Method reflect.Method

	// HandlerType is the receiver type declaring Method.
	HandlerType reflect.Type
}

// ReturnType describes the results of a handler method.
type ReturnType struct {
	// Type is the value result, or nil when the method returns no value
	// besides an optional error.
	Type reflect.Type

	// ReturnsError reports whether the last result is an error.
	ReturnsError bool

	// Method is the method the results belong to.
	Method reflect.Method
}

// ArgumentResolver produces values for handler method parameters.
//
// Supports is evaluated once per parameter when the handler is
// registered; Resolve runs on every invocation.
type ArgumentResolver interface {
	Supports(p Parameter) bool
	Resolve(ctx context.Context, p Parameter, msg *Message) (any, error)
}

// ReturnValueHandler processes the value returned by a handler method.
type ReturnValueHandler interface {
	Supports(rt ReturnType) bool
	Handle(ctx context.Context, value any, rt ReturnType, msg *Message) error
}

// DestinationVars are the template variables extracted from the matched
// destination pattern, e.g. {"id": "5"} for "/echo/{id}" and "/echo/5".
type DestinationVars map[string]string

var (
	contextType = reflect.TypeFor[context.Context]()
	messageType = reflect.TypeFor[*Message]()
	headersType = reflect.TypeFor[Headers]()
	varsType    = reflect.TypeFor[DestinationVars]()
	viewType    = reflect.TypeFor[View]()
)

// DefaultArgumentResolvers returns the built-in resolver chain in the order
// the dispatcher consults it.
func DefaultArgumentResolvers() []ArgumentResolver {
	return []ArgumentResolver{
		contextResolver{},
		messageResolver{},
		headersResolver{},
		destinationVarsResolver{},
		ViewResolver(JSONInspector()),
		PayloadResolver(validator.New(validator.WithRequiredStructEnabled())),
	}
}

type contextResolver struct{}

func (contextResolver) Supports(p Parameter) bool { return p.Type == contextType }

func (contextResolver) Resolve(ctx context.Context, _ Parameter, _ *Message) (any, error) {
	return ctx, nil
}

type messageResolver struct{}

func (messageResolver) Supports(p Parameter) bool { return p.Type == messageType }

func (messageResolver) Resolve(_ context.Context, _ Parameter, msg *Message) (any, error) {
	return msg, nil
}

type headersResolver struct{}

func (headersResolver) Supports(p Parameter) bool { return p.Type == headersType }

func (headersResolver) Resolve(_ context.Context, _ Parameter, msg *Message) (any, error) {
	return msg.Headers, nil
}

type destinationVarsResolver struct{}

func (destinationVarsResolver) Supports(p Parameter) bool { return p.Type == varsType }

func (destinationVarsResolver) Resolve(_ context.Context, _ Parameter, msg *Message) (any, error) {
	vars, _ := msg.Headers[HeaderDestinationVars].(DestinationVars)
	if vars == nil {
		vars = DestinationVars{}
	}
	return vars, nil
}

// ViewResolver returns a resolver that hands View parameters a view of the
// message payload produced by insp.
func ViewResolver(insp Inspector) ArgumentResolver {
	return viewResolver{insp: insp}
}

type viewResolver struct {
	insp Inspector
}

func (viewResolver) Supports(p Parameter) bool { return p.Type == viewType }

func (r viewResolver) Resolve(_ context.Context, _ Parameter, msg *Message) (any, error) {
	return r.insp.Inspect(msg.Payload)
}

// validatable is the interface for payload validation.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

// PayloadResolver returns a catch-all resolver that decodes the JSON
// payload into the parameter type. Struct payloads are checked with v's
// `validate` tags when v is non-nil, then with Validate() error when the
// type implements it.
func PayloadResolver(v *validator.Validate) ArgumentResolver {
	return payloadResolver{validate: v}
}

type payloadResolver struct {
	validate *validator.Validate
}

func (payloadResolver) Supports(p Parameter) bool {
	switch p.Type.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Interface:
		return p.Type == reflect.TypeFor[any]()
	}
	return true
}

func (r payloadResolver) Resolve(_ context.Context, p Parameter, msg *Message) (any, error) {
	ptr := reflect.New(p.Type)
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	data := ptr.Elem().Interface()

	if p.Type.Kind() == reflect.Pointer && ptr.Elem().IsNil() {
		return data, nil
	}
	if r.validate != nil && isStruct(p.Type) {
		if err := r.validate.Struct(data); err != nil {
			return nil, fmt.Errorf("validate payload: %w", err)
		}
	}
	if v, ok := data.(validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validate payload: %w", err)
		}
	} else if v, ok := ptr.Interface().(validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validate payload: %w", err)
		}
	}
	return data, nil
}

func isStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// ReplyReturnValueHandler returns a handler that marshals return values to
// JSON and sends them through the message's Replier. Values returned for
// messages without a Replier are dropped.
func ReplyReturnValueHandler(logger *slog.Logger) ReturnValueHandler {
	return replyHandler{logger: logger}
}

type replyHandler struct {
	logger *slog.Logger
}

func (replyHandler) Supports(rt ReturnType) bool { return rt.Type != nil }

func (h replyHandler) Handle(ctx context.Context, value any, rt ReturnType, msg *Message) error {
	if msg.Replier == nil {
		if h.logger != nil {
			h.logger.DebugContext(ctx, "no replier, dropping return value",
				slog.String("type", rt.Type.String()),
				slog.String(HeaderDestination, msg.Destination()))
		}
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	return msg.Replier.Reply(ctx, raw)
}
