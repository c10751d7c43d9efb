package msgroute

import (
	"log/slog"
	"strings"
)

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	hooks            hooks
	logger           *slog.Logger
	prefixes         []string
	resolvers        []ArgumentResolver
	defaultResolvers bool
	returns          []ReturnValueHandler
	defaultReturns   bool
	beans            BeanResolver
}

func newOptions(opts []Option) options {
	o := options{
		logger:           slog.Default(),
		defaultResolvers: true,
		defaultReturns:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger. Dropped and unmatched messages are
// logged at debug level, ambiguous mappings and unhandled handler failures
// at error level. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDestinationPrefixes restricts dispatch to destinations starting with
// one of prefixes; the first matching prefix is stripped before lookup.
// Messages matching no prefix are ignored. Empty prefixes are skipped.
//
// Example:
//
//	msgroute.WithDestinationPrefixes("/app/", "/user/")
func WithDestinationPrefixes(prefixes ...string) Option {
	return func(o *options) {
		for _, p := range prefixes {
			if p = strings.TrimSpace(p); p != "" {
				o.prefixes = append(o.prefixes, p)
			}
		}
	}
}

// WithArgumentResolvers adds custom argument resolvers. They are consulted
// in the given order, before the built-in resolvers.
func WithArgumentResolvers(rs ...ArgumentResolver) Option {
	return func(o *options) {
		o.resolvers = append(o.resolvers, rs...)
	}
}

// WithDefaultArgumentResolvers controls whether DefaultArgumentResolvers
// are appended after the custom resolvers. Enabled by default.
func WithDefaultArgumentResolvers(enabled bool) Option {
	return func(o *options) {
		o.defaultResolvers = enabled
	}
}

// WithReturnValueHandlers adds custom return value handlers, consulted in
// order before the built-in reply handler.
func WithReturnValueHandlers(hs ...ReturnValueHandler) Option {
	return func(o *options) {
		o.returns = append(o.returns, hs...)
	}
}

// WithDefaultReturnValueHandlers controls whether the built-in reply handler
// is appended after the custom return value handlers. Enabled by default.
func WithDefaultReturnValueHandlers(enabled bool) Option {
	return func(o *options) {
		o.defaultReturns = enabled
	}
}

// WithBeanResolver sets the resolver used for handlers registered by bean
// name.
func WithBeanResolver(r BeanResolver) Option {
	return func(o *options) {
		o.beans = r
	}
}
