package msgroute

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Dispatcher maps inbound messages to handler methods by destination and
// invokes the best match.
//
// Usage:
//  1. Create a dispatcher with New (or NewRouteDispatcher)
//  2. Register handlers with Detect, DetectBeans or Register
//  3. Optionally add global exception handlers with RegisterAdvice
//  4. Dispatch messages with Dispatch
//
// Dispatcher is safe for concurrent use after configuration. Registration
// must finish before the first Dispatch; later registrations fail with
// ErrSealed.
type Dispatcher[T comparable] struct {
	strategy Strategy[T]
	selector ExceptionMethodSelector
	hooks    hooks
	logger   *slog.Logger
	prefixes []string
	beans    BeanResolver

	resolvers []ArgumentResolver
	returns   []ReturnValueHandler

	// Written during registration only.
	mappings []T
	handlers map[T]*InvocableHandlerMethod
	index    map[string][]T
	advice   []adviceBean

	exceptionResolvers sync.Map // reflect.Type -> *ExceptionResolver
	exceptionInvokers  sync.Map // methodKey -> *InvocableHandlerMethod

	sealed atomic.Bool
}

type adviceBean struct {
	target   any
	resolver *ExceptionResolver
}

type methodKey struct {
	recv reflect.Type
	name string
}

// candidate pairs a narrowed condition with its handler for one dispatch.
type candidate[T comparable] struct {
	mapping T
	handler *InvocableHandlerMethod
}

// New creates a Dispatcher driven by strategy.
//
// Example:
//
//	d := msgroute.New[msgroute.Route](msgroute.NewDestinationStrategy(),
//	    msgroute.WithDestinationPrefixes("/app"),
//	    msgroute.WithLogger(logger),
//	)
func New[T comparable](strategy Strategy[T], opts ...Option) *Dispatcher[T] {
	o := newOptions(opts)

	resolvers := slices.Clone(o.resolvers)
	if o.defaultResolvers {
		resolvers = append(resolvers, DefaultArgumentResolvers()...)
	}
	returns := slices.Clone(o.returns)
	if o.defaultReturns {
		returns = append(returns, ReplyReturnValueHandler(o.logger))
	}
	selector, _ := any(strategy).(ExceptionMethodSelector)

	return &Dispatcher[T]{
		strategy:  strategy,
		selector:  selector,
		hooks:     o.hooks,
		logger:    o.logger,
		prefixes:  o.prefixes,
		beans:     o.beans,
		resolvers: resolvers,
		returns:   returns,
		handlers:  make(map[T]*InvocableHandlerMethod),
		index:     make(map[string][]T),
	}
}

// Register maps method, invoked on target, under mapping.
//
// Registering a different method under a mapping equal to an existing one
// fails with a DuplicateMappingError; registering the same target and
// method again is a no-op.
func (d *Dispatcher[T]) Register(target any, method reflect.Method, mapping T) error {
	hm, err := NewHandlerMethod(target, method)
	if err != nil {
		return err
	}
	return d.register(hm, mapping)
}

// RegisterBean maps method, invoked on the named bean, under mapping. The
// bean is looked up through the BeanResolver on every dispatch.
func (d *Dispatcher[T]) RegisterBean(name string, method reflect.Method, mapping T) error {
	hm, err := NewBeanHandlerMethod(name, method)
	if err != nil {
		return err
	}
	return d.register(hm, mapping)
}

func (d *Dispatcher[T]) register(hm *HandlerMethod, mapping T) error {
	if d.sealed.Load() {
		return ErrSealed
	}
	if existing, ok := d.handlers[mapping]; ok {
		if existing.Equal(hm) {
			return nil
		}
		return &DuplicateMappingError{Mapping: mapping, Existing: existing.HandlerMethod, New: hm}
	}

	d.handlers[mapping] = NewInvocableHandlerMethod(hm, d.resolvers)
	d.mappings = append(d.mappings, mapping)
	for _, dest := range d.strategy.DirectLookupDestinations(mapping) {
		d.index[dest] = append(d.index[dest], mapping)
	}

	d.logger.Debug("mapped handler method",
		slog.Any("mapping", mapping),
		slog.String("handler", hm.String()))
	return nil
}

// Detect scans each target's methods and registers every method the
// strategy maps. Targets whose type is not a handler are reported with
// ErrNotHandler. All failures are collected into one error.
func (d *Dispatcher[T]) Detect(targets ...any) error {
	var errs *multierror.Error
	for _, target := range targets {
		t := reflect.TypeOf(target)
		if t == nil || !d.strategy.IsHandler(t) {
			errs = multierror.Append(errs, fmt.Errorf("%w: %v", ErrNotHandler, t))
			continue
		}
		err := d.detect(t, func(m reflect.Method) (*HandlerMethod, error) {
			return NewHandlerMethod(target, m)
		})
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// DetectBeans is Detect for handlers registered by bean name. The bean
// types are taken from the configured BeanResolver.
func (d *Dispatcher[T]) DetectBeans(names ...string) error {
	if d.beans == nil {
		return ErrNoBeanResolver
	}

	var errs *multierror.Error
	for _, name := range names {
		t, err := d.beans.BeanType(name)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("bean %q: %w", name, err))
			continue
		}
		if !d.strategy.IsHandler(t) {
			errs = multierror.Append(errs, fmt.Errorf("%w: bean %q of type %v", ErrNotHandler, name, t))
			continue
		}
		err = d.detect(t, func(m reflect.Method) (*HandlerMethod, error) {
			return NewBeanHandlerMethod(name, m)
		})
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (d *Dispatcher[T]) detect(t reflect.Type, newHandlerMethod func(reflect.Method) (*HandlerMethod, error)) error {
	var errs *multierror.Error
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		mapping, ok := d.strategy.MappingForMethod(method, t)
		if !ok {
			continue
		}
		hm, err := newHandlerMethod(method)
		if err == nil {
			err = d.register(hm, mapping)
		}
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if v, ok := any(d.strategy).(HandlerValidator); ok {
		if err := v.ValidateHandler(t); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	// Surface invalid exception handler declarations at startup.
	if _, err := d.ExceptionResolverFor(t); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// RegisterAdvice adds target's exception handler methods as global
// handlers, consulted in registration order for failures the failing
// handler's own type does not handle.
func (d *Dispatcher[T]) RegisterAdvice(target any) error {
	if d.sealed.Load() {
		return ErrSealed
	}
	t := reflect.TypeOf(target)
	if t == nil {
		return fmt.Errorf("msgroute: nil advice target")
	}
	if v, ok := any(d.strategy).(HandlerValidator); ok {
		if err := v.ValidateHandler(t); err != nil {
			return err
		}
	}
	r, err := NewExceptionResolver(t, d.selector)
	if err != nil {
		return err
	}
	if !r.HasMappings() {
		return fmt.Errorf("msgroute: advice %v declares no exception handler methods", t)
	}
	d.advice = append(d.advice, adviceBean{target: target, resolver: r})
	return nil
}

// ExceptionResolverFor returns the exception resolver of handlerType,
// building and caching it on first use.
func (d *Dispatcher[T]) ExceptionResolverFor(handlerType reflect.Type) (*ExceptionResolver, error) {
	if v, ok := d.exceptionResolvers.Load(handlerType); ok {
		return v.(*ExceptionResolver), nil
	}
	r, err := NewExceptionResolver(handlerType, d.selector)
	if err != nil {
		return nil, err
	}
	v, _ := d.exceptionResolvers.LoadOrStore(handlerType, r)
	return v.(*ExceptionResolver), nil
}

// Mappings returns the registered mapping conditions in registration order.
func (d *Dispatcher[T]) Mappings() []T {
	return slices.Clone(d.mappings)
}

// HandlerMethods returns the registered handler methods by mapping.
func (d *Dispatcher[T]) HandlerMethods() map[T]*HandlerMethod {
	out := make(map[T]*HandlerMethod, len(d.handlers))
	for k, v := range d.handlers {
		out[k] = v.HandlerMethod
	}
	return out
}

// DestinationPrefixes returns the configured destination prefixes.
func (d *Dispatcher[T]) DestinationPrefixes() []string {
	return slices.Clone(d.prefixes)
}

// LookupDestination returns the part of a raw destination used for
// mapping lookup. Without prefixes the destination is used as is. With
// prefixes, the first prefix destination starts with is removed; a
// destination matching no prefix yields false.
func (d *Dispatcher[T]) LookupDestination(destination string) (string, bool) {
	if destination == "" {
		return "", false
	}
	if len(d.prefixes) == 0 {
		return destination, true
	}
	for _, prefix := range d.prefixes {
		if rest, ok := strings.CutPrefix(destination, prefix); ok {
			return rest, true
		}
	}
	return "", false
}

// Dispatch routes msg to the most specific matching handler method and
// invokes it.
//
// The processing flow:
//  1. Extract the destination and strip the configured prefix
//  2. Narrow the mappings indexed under the exact destination
//  3. If none match, narrow every registered mapping
//  4. Sort the matches by the strategy's comparator
//  5. Fail if the two best matches rank equally
//  6. Invoke the best match and handle its return value
//  7. On failure, invoke the most specific exception handler method
//
// Messages without a destination or matching handler are ignored. Handler
// failures are contained: they are passed to exception handlers, hooks and
// the log, never returned. The only error returned is an
// AmbiguousMappingError, which indicates a configuration defect.
func (d *Dispatcher[T]) Dispatch(ctx context.Context, msg *Message) error {
	if !d.sealed.Load() {
		d.sealed.Store(true)
	}

	raw := d.strategy.Destination(msg)
	lookup, ok := d.LookupDestination(raw)
	if !ok {
		d.logger.DebugContext(ctx, "no lookup destination, ignoring message", slog.String(HeaderDestination, raw))
		d.hooks.noDestination(ctx, raw)
		return nil
	}
	msg = msg.WithHeader(HeaderLookupDestination, lookup)

	matches := d.candidates(lookup, msg)
	if len(matches) == 0 {
		if h, ok := any(d.strategy).(NoMatchHandler[T]); ok {
			h.OnNoMatch(d.Mappings(), lookup, msg)
		}
		d.logger.DebugContext(ctx, "no matching handler method", slog.String(HeaderDestination, lookup))
		d.hooks.noMatch(ctx, lookup)
		return nil
	}

	compare := d.strategy.MappingComparator(msg)
	slices.SortStableFunc(matches, func(a, b candidate[T]) int {
		return compare(a.mapping, b.mapping)
	})
	best := matches[0]
	if len(matches) > 1 && compare(best.mapping, matches[1].mapping) == 0 {
		err := &AmbiguousMappingError{
			Destination: lookup,
			First:       best.handler.HandlerMethod,
			Second:      matches[1].handler.HandlerMethod,
		}
		d.logger.ErrorContext(ctx, "ambiguous handler methods", slog.String(HeaderDestination, lookup), slog.Any("error", err))
		d.hooks.ambiguous(ctx, lookup, err)
		return err
	}

	if h, ok := any(d.strategy).(MatchHandler[T]); ok {
		if enriched := h.OnMatch(best.mapping, lookup, msg); enriched != nil {
			msg = enriched
		}
	}
	d.invoke(ctx, best.handler, lookup, msg)
	return nil
}

func (d *Dispatcher[T]) candidates(lookup string, msg *Message) []candidate[T] {
	var matches []candidate[T]
	if direct, ok := d.index[lookup]; ok {
		matches = d.narrow(matches, direct, msg)
	}
	if len(matches) == 0 {
		matches = d.narrow(matches, d.mappings, msg)
	}
	return matches
}

func (d *Dispatcher[T]) narrow(matches []candidate[T], mappings []T, msg *Message) []candidate[T] {
	for _, mapping := range mappings {
		if narrowed, ok := d.strategy.MatchingMapping(mapping, msg); ok {
			matches = append(matches, candidate[T]{mapping: narrowed, handler: d.handlers[mapping]})
		}
	}
	return matches
}

func (d *Dispatcher[T]) invoke(ctx context.Context, inv *InvocableHandlerMethod, dest string, msg *Message) {
	name := inv.String()
	hm, err := inv.Resolved(d.beans)
	if err != nil {
		d.unhandled(ctx, name, dest, msg, err)
		return
	}

	d.hooks.dispatch(ctx, dest, name)
	start := time.Now()
	value, err := inv.Invoke(ctx, hm.Target(), msg)
	if err == nil && !inv.Void() {
		err = d.handleReturnValue(ctx, value, inv.ReturnType(), msg)
	}
	duration := time.Since(start)

	if err != nil {
		d.hooks.failure(ctx, dest, name, err, duration)
		d.processException(ctx, hm, dest, msg, err)
		return
	}
	d.hooks.success(ctx, dest, name, duration)
}

func (d *Dispatcher[T]) processException(ctx context.Context, hm *HandlerMethod, dest string, msg *Message, err error) {
	target := hm.Target()
	var found bool
	var m ExceptionMatch

	r, rerr := d.ExceptionResolverFor(hm.HandlerType())
	if rerr != nil {
		d.logger.ErrorContext(ctx, "invalid exception handler declarations",
			slog.String("handler", hm.String()), slog.Any("error", rerr))
	} else {
		m, found = r.Resolve(err)
	}
	if !found {
		for _, a := range d.advice {
			if m, found = a.resolver.Resolve(err); found {
				target = a.target
				break
			}
		}
	}
	if !found {
		d.unhandled(ctx, hm.String(), dest, msg, err)
		return
	}

	inv, xerr := d.exceptionInvoker(reflect.TypeOf(target), m.Method)
	if xerr != nil {
		d.unhandled(ctx, hm.String(), dest, msg, xerr)
		return
	}
	provided := []any{err}
	if !sameTarget(m.Err, err) {
		provided = append(provided, m.Err)
	}
	provided = append(provided, hm)

	value, xerr := inv.Invoke(ctx, target, msg, provided...)
	if xerr == nil && !inv.Void() {
		xerr = d.handleReturnValue(ctx, value, inv.ReturnType(), msg)
	}
	if xerr != nil {
		d.logger.ErrorContext(ctx, "exception handler method failed",
			slog.String(HeaderDestination, dest),
			slog.String("handler", inv.String()),
			slog.Any("error", xerr),
			slog.Any("cause", err))
	}
}

func (d *Dispatcher[T]) exceptionInvoker(recv reflect.Type, method reflect.Method) (*InvocableHandlerMethod, error) {
	key := methodKey{recv: recv, name: method.Name}
	if v, ok := d.exceptionInvokers.Load(key); ok {
		return v.(*InvocableHandlerMethod), nil
	}
	hm, err := newHandlerMethod(nil, "", method)
	if err != nil {
		return nil, err
	}
	v, _ := d.exceptionInvokers.LoadOrStore(key, NewInvocableHandlerMethod(hm, d.resolvers))
	return v.(*InvocableHandlerMethod), nil
}

func (d *Dispatcher[T]) unhandled(ctx context.Context, handler, dest string, msg *Message, err error) {
	d.logger.ErrorContext(ctx, "unhandled error from handler method",
		slog.String(HeaderDestination, dest),
		slog.String("handler", handler),
		slog.Any("error", err))
	d.hooks.unhandled(ctx, dest, handler, err)

	if msg.Replier != nil {
		if ferr := msg.Replier.Fail(ctx, err); ferr != nil {
			d.logger.ErrorContext(ctx, "reply failure", slog.String(HeaderDestination, dest), slog.Any("error", ferr))
		}
	}
}

func (d *Dispatcher[T]) handleReturnValue(ctx context.Context, value any, rt ReturnType, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ReturnValueError{Type: rt.Type, Method: rt.Method.Name, Cause: panicError(r)}
		}
	}()

	for _, h := range d.returns {
		if !h.Supports(rt) {
			continue
		}
		if err := h.Handle(ctx, value, rt, msg); err != nil {
			return &ReturnValueError{Type: rt.Type, Method: rt.Method.Name, Cause: err}
		}
		return nil
	}
	return &ReturnValueError{Type: rt.Type, Method: rt.Method.Name}
}

// String summarizes the dispatcher's registrations for logging.
func (d *Dispatcher[T]) String() string {
	return fmt.Sprintf("Dispatcher[%d mappings, %d direct destinations, prefixes=%v]",
		len(d.mappings), len(d.index), d.prefixes)
}
