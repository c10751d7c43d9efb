package msgroute

import (
	"context"
	"time"
)

// OnDispatchFunc is called just before the best-matching handler method
// executes. handler identifies the method, e.g. "*chat.Room.Post".
type OnDispatchFunc func(ctx context.Context, destination, handler string)

// OnSuccessFunc is called after the handler method completes without error.
type OnSuccessFunc func(ctx context.Context, destination, handler string, duration time.Duration)

// OnFailureFunc is called after the handler method fails, before exception
// handling runs.
type OnFailureFunc func(ctx context.Context, destination, handler string, err error, duration time.Duration)

// OnNoDestinationFunc is called when a message has no destination, or its
// destination matches none of the configured prefixes.
type OnNoDestinationFunc func(ctx context.Context, raw string)

// OnNoMatchFunc is called when no mapping matches the lookup destination.
type OnNoMatchFunc func(ctx context.Context, destination string)

// OnAmbiguousFunc is called when the two best matches rank equally.
type OnAmbiguousFunc func(ctx context.Context, destination string, err *AmbiguousMappingError)

// OnUnhandledFunc is called when no exception handler method claims a
// handler failure. The error is dropped after the hooks run.
type OnUnhandledFunc func(ctx context.Context, destination, handler string, err error)

// hooks holds all configured hook functions.
type hooks struct {
	onDispatch      []OnDispatchFunc
	onSuccess       []OnSuccessFunc
	onFailure       []OnFailureFunc
	onNoDestination []OnNoDestinationFunc
	onNoMatch       []OnNoMatchFunc
	onAmbiguous     []OnAmbiguousFunc
	onUnhandled     []OnUnhandledFunc
}

// WithOnDispatch adds a hook called just before the handler executes.
// Multiple hooks are called in order.
//
// Example:
//
//	msgroute.WithOnDispatch(func(ctx context.Context, dest, handler string) {
//	    logger.Info(ctx, "dispatching", "destination", dest, "handler", handler)
//	})
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(o *options) {
		o.hooks.onDispatch = append(o.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after the handler completes successfully.
// Multiple hooks are called in order.
//
// Example:
//
//	msgroute.WithOnSuccess(func(ctx context.Context, dest, handler string, d time.Duration) {
//	    metrics.Timing("dispatch.success", d, "handler:"+handler)
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(o *options) {
		o.hooks.onSuccess = append(o.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after the handler fails.
// Multiple hooks are called in order.
func WithOnFailure(fn OnFailureFunc) Option {
	return func(o *options) {
		o.hooks.onFailure = append(o.hooks.onFailure, fn)
	}
}

// WithOnNoDestination adds a hook called for messages dropped before
// lookup because they carry no usable destination.
func WithOnNoDestination(fn OnNoDestinationFunc) Option {
	return func(o *options) {
		o.hooks.onNoDestination = append(o.hooks.onNoDestination, fn)
	}
}

// WithOnNoMatch adds a hook called when no handler matches a destination.
// Unmatched messages are not errors; this is for observability.
//
// Example:
//
//	msgroute.WithOnNoMatch(func(ctx context.Context, dest string) {
//	    logger.Warn(ctx, "no handler", "destination", dest)
//	})
func WithOnNoMatch(fn OnNoMatchFunc) Option {
	return func(o *options) {
		o.hooks.onNoMatch = append(o.hooks.onNoMatch, fn)
	}
}

// WithOnAmbiguous adds a hook called when a dispatch fails because two
// handlers match equally well.
func WithOnAmbiguous(fn OnAmbiguousFunc) Option {
	return func(o *options) {
		o.hooks.onAmbiguous = append(o.hooks.onAmbiguous, fn)
	}
}

// WithOnUnhandled adds a hook called when a handler failure is not claimed
// by any exception handler method.
func WithOnUnhandled(fn OnUnhandledFunc) Option {
	return func(o *options) {
		o.hooks.onUnhandled = append(o.hooks.onUnhandled, fn)
	}
}

func (h *hooks) dispatch(ctx context.Context, dest, handler string) {
	for _, fn := range h.onDispatch {
		fn(ctx, dest, handler)
	}
}

func (h *hooks) success(ctx context.Context, dest, handler string, d time.Duration) {
	for _, fn := range h.onSuccess {
		fn(ctx, dest, handler, d)
	}
}

func (h *hooks) failure(ctx context.Context, dest, handler string, err error, d time.Duration) {
	for _, fn := range h.onFailure {
		fn(ctx, dest, handler, err, d)
	}
}

func (h *hooks) noDestination(ctx context.Context, raw string) {
	for _, fn := range h.onNoDestination {
		fn(ctx, raw)
	}
}

func (h *hooks) noMatch(ctx context.Context, dest string) {
	for _, fn := range h.onNoMatch {
		fn(ctx, dest)
	}
}

func (h *hooks) ambiguous(ctx context.Context, dest string, err *AmbiguousMappingError) {
	for _, fn := range h.onAmbiguous {
		fn(ctx, dest, err)
	}
}

func (h *hooks) unhandled(ctx context.Context, dest, handler string, err error) {
	for _, fn := range h.onUnhandled {
		fn(ctx, dest, handler, err)
	}
}
