package msgroute

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Route is the mapping condition of the built-in DestinationStrategy: a
// message type, a destination pattern and an optional payload guard.
//
// Routes are comparable; two routes are equal when type, pattern and guard
// are. Each When call creates a distinct guard.
type Route struct {
	typ     MessageType
	pattern string
	guard   *guard
}

type guard struct {
	d Discriminator
}

// Type returns the message type the route accepts; MessageTypeAny accepts
// all.
func (r Route) Type() MessageType { return r.typ }

// Pattern returns the destination pattern.
func (r Route) Pattern() string { return r.pattern }

// Guarded reports whether the route has a payload guard.
func (r Route) Guarded() bool { return r.guard != nil }

func (r Route) String() string {
	s := r.pattern
	if r.typ != MessageTypeAny {
		s = string(r.typ) + " " + s
	}
	if r.guard != nil {
		s += " [guarded]"
	}
	return s
}

// RouteSpec declares what a handler method does: handle messages for a
// Route, or handle errors.
type RouteSpec struct {
	route    Route
	catch    bool
	errTypes []reflect.Type
}

// OnMessage declares a handler for MESSAGE messages sent to pattern.
func OnMessage(pattern string) RouteSpec {
	return RouteSpec{route: Route{typ: MessageTypeMessage, pattern: pattern}}
}

// OnSubscribe declares a handler for SUBSCRIBE messages to pattern.
func OnSubscribe(pattern string) RouteSpec {
	return RouteSpec{route: Route{typ: MessageTypeSubscribe, pattern: pattern}}
}

// OnAny declares a handler for messages of any type sent to pattern.
func OnAny(pattern string) RouteSpec {
	return RouteSpec{route: Route{typ: MessageTypeAny, pattern: pattern}}
}

// When restricts the route to messages whose payload matches d. A guarded
// route ranks above an otherwise equal unguarded one.
//
// Example:
//
//	"Refund": msgroute.OnMessage("/orders/{id}").When(msgroute.FieldEquals("kind", "refund")),
func (s RouteSpec) When(d Discriminator) RouteSpec {
	s.route.guard = &guard{d: d}
	return s
}

// Route returns the declared route, for registering handlers directly
// with Dispatcher.Register, RegisterProc or RegisterFunc.
func (s RouteSpec) Route() Route { return s.route }

// Catch declares an exception handler method for the given error types.
// Without types, the method's error-typed parameters decide.
//
// Example:
//
//	"OnNotFound": msgroute.Catch(reflect.TypeFor[*NotFoundError]()),
//	"OnAnyError": msgroute.Catch(),
func Catch(types ...reflect.Type) RouteSpec {
	return RouteSpec{catch: true, errTypes: types}
}

// RouteTable maps method names of a handler type to their declarations.
type RouteTable map[string]RouteSpec

// RouteDeclarer is implemented by handler types served by the
// DestinationStrategy. Routes is called on the zero value of the type, so
// it must not depend on instance state.
//
// Example:
//
//	func (*Chat) Routes() msgroute.RouteTable {
//	    return msgroute.RouteTable{
//	        "Ping":    msgroute.OnMessage("/ping"),
//	        "Echo":    msgroute.OnMessage("/echo/{id}"),
//	        "OnError": msgroute.Catch(),
//	    }
//	}
type RouteDeclarer interface {
	Routes() RouteTable
}

var routeDeclarerType = reflect.TypeFor[RouteDeclarer]()

// DestinationStrategy is the built-in Strategy for Route conditions.
// Destinations are read from the HeaderDestination header and matched
// against path patterns.
type DestinationStrategy struct {
	sep       string
	inspector Inspector
	patterns  sync.Map // string -> *pathPattern
	tables    sync.Map // reflect.Type -> RouteTable
}

// RouteOption configures a DestinationStrategy.
type RouteOption func(*DestinationStrategy)

// WithPathSeparator sets the destination segment separator, "/" by
// default. Use "." for dot-separated destinations such as "orders.created".
func WithPathSeparator(sep string) RouteOption {
	return func(s *DestinationStrategy) {
		if sep != "" {
			s.sep = sep
		}
	}
}

// WithInspector sets the inspector used to evaluate route guards.
// Defaults to JSONInspector.
func WithInspector(i Inspector) RouteOption {
	return func(s *DestinationStrategy) {
		if i != nil {
			s.inspector = i
		}
	}
}

// NewDestinationStrategy creates a DestinationStrategy.
func NewDestinationStrategy(opts ...RouteOption) *DestinationStrategy {
	s := &DestinationStrategy{sep: "/", inspector: JSONInspector()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRouteDispatcher creates a Dispatcher using a default
// DestinationStrategy.
func NewRouteDispatcher(opts ...Option) *Dispatcher[Route] {
	return New[Route](NewDestinationStrategy(), opts...)
}

// Separator returns the destination segment separator.
func (s *DestinationStrategy) Separator() string { return s.sep }

func (s *DestinationStrategy) IsHandler(t reflect.Type) bool {
	return t.Implements(routeDeclarerType)
}

func (s *DestinationStrategy) MappingForMethod(method reflect.Method, handlerType reflect.Type) (Route, bool) {
	spec, ok := s.routeTable(handlerType)[method.Name]
	if !ok || spec.catch || spec.route.pattern == "" {
		return Route{}, false
	}
	return spec.route, true
}

func (s *DestinationStrategy) ExceptionTypes(method reflect.Method, handlerType reflect.Type) ([]reflect.Type, bool) {
	spec, ok := s.routeTable(handlerType)[method.Name]
	if !ok || !spec.catch {
		return nil, false
	}
	return spec.errTypes, true
}

// ValidateHandler reports every RouteTable entry of t that names no method
// in t's method set.
func (s *DestinationStrategy) ValidateHandler(t reflect.Type) error {
	table := s.routeTable(t)
	var errs *multierror.Error
	for _, name := range slices.Sorted(maps.Keys(table)) {
		if _, ok := t.MethodByName(name); !ok {
			errs = multierror.Append(errs, &RouteTableError{HandlerType: t, Name: name})
		}
	}
	return errs.ErrorOrNil()
}

func (s *DestinationStrategy) routeTable(t reflect.Type) RouteTable {
	if v, ok := s.tables.Load(t); ok {
		return v.(RouteTable)
	}
	if !s.IsHandler(t) {
		return nil
	}
	var zero reflect.Value
	if t.Kind() == reflect.Pointer {
		zero = reflect.New(t.Elem())
	} else {
		zero = reflect.Zero(t)
	}
	table := zero.Interface().(RouteDeclarer).Routes()
	v, _ := s.tables.LoadOrStore(t, table)
	return v.(RouteTable)
}

func (s *DestinationStrategy) DirectLookupDestinations(r Route) []string {
	if IsPattern(r.pattern) {
		return nil
	}
	return []string{r.pattern}
}

func (s *DestinationStrategy) Destination(msg *Message) string {
	return msg.Destination()
}

func (s *DestinationStrategy) MatchingMapping(r Route, msg *Message) (Route, bool) {
	if r.typ != MessageTypeAny && r.typ != msg.Type() {
		return Route{}, false
	}
	dest := lookupDestination(msg)
	if r.pattern != dest {
		if _, ok := s.compile(r.pattern).match(dest); !ok {
			return Route{}, false
		}
	}
	if r.guard != nil {
		view, err := s.inspector.Inspect(msg.Payload)
		if err != nil || !r.guard.d.Match(view) {
			return Route{}, false
		}
	}
	return r, true
}

func (s *DestinationStrategy) MappingComparator(msg *Message) func(a, b Route) int {
	dest := lookupDestination(msg)
	return func(a, b Route) int {
		if c := comparePatterns(s.compile(a.pattern), s.compile(b.pattern), dest); c != 0 {
			return c
		}
		if ag, bg := a.guard != nil, b.guard != nil; ag != bg {
			if ag {
				return -1
			}
			return 1
		}
		if aa, ba := a.typ == MessageTypeAny, b.typ == MessageTypeAny; aa != ba {
			if ba {
				return -1
			}
			return 1
		}
		return 0
	}
}

// OnMatch records the template variables of the matched route in the
// HeaderDestinationVars header.
func (s *DestinationStrategy) OnMatch(r Route, lookupDestination string, msg *Message) *Message {
	vars, ok := s.compile(r.pattern).match(lookupDestination)
	if !ok {
		vars = DestinationVars{}
	}
	return msg.WithHeader(HeaderDestinationVars, vars)
}

func (s *DestinationStrategy) compile(pattern string) *pathPattern {
	if v, ok := s.patterns.Load(pattern); ok {
		return v.(*pathPattern)
	}
	v, _ := s.patterns.LoadOrStore(pattern, compilePattern(pattern, s.sep))
	return v.(*pathPattern)
}

// lookupDestination prefers the prefix-stripped destination, which may be
// empty when the destination equals a prefix.
func lookupDestination(msg *Message) string {
	if dest, ok := msg.Headers[HeaderLookupDestination].(string); ok {
		return dest
	}
	return msg.Destination()
}

var (
	_ Strategy[Route]         = (*DestinationStrategy)(nil)
	_ MatchHandler[Route]     = (*DestinationStrategy)(nil)
	_ ExceptionMethodSelector = (*DestinationStrategy)(nil)
	_ HandlerValidator        = (*DestinationStrategy)(nil)
	_ fmt.Stringer            = Route{}
)
