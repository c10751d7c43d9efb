// Package msgroute maps inbound messages to handler methods by destination
// and invokes the most specific match.
//
// A Dispatcher keeps a registry of mapping conditions, each bound to one
// method of a handler. For every message it strips the configured
// destination prefix, narrows the candidate conditions against the message,
// picks the most specific one and calls its method with arguments produced
// by a resolver chain. Failures are routed to exception handler methods.
//
// # Quick Start
//
// Declare routes on a handler type:
//
//	type Chat struct{}
//
//	func (*Chat) Routes() msgroute.RouteTable {
//	    return msgroute.RouteTable{
//	        "Ping":    msgroute.OnMessage("/ping"),
//	        "Echo":    msgroute.OnMessage("/echo/{id}"),
//	        "OnError": msgroute.Catch(),
//	    }
//	}
//
//	func (c *Chat) Ping(ctx context.Context) (string, error) { return "pong", nil }
//
//	func (c *Chat) Echo(vars msgroute.DestinationVars, in EchoRequest) EchoReply {
//	    return EchoReply{ID: vars["id"], Text: in.Text}
//	}
//
//	func (c *Chat) OnError(err error, msg *msgroute.Message) { ... }
//
// Create a dispatcher, detect handlers and dispatch messages:
//
//	d := msgroute.NewRouteDispatcher(msgroute.WithDestinationPrefixes("/app"))
//	if err := d.Detect(&Chat{}); err != nil {
//	    return err
//	}
//	err := d.Dispatch(ctx, msgroute.NewMessage("/app/echo/5", payload))
//
// # Strategies
//
// The dispatch algorithm is generic over a comparable mapping condition T.
// A Strategy decides which types are handlers, which methods map to which
// conditions, how a condition is narrowed against a message and how
// matches are ranked. DestinationStrategy is the built-in strategy for
// Route conditions; applications with their own routing model implement
// Strategy and create the dispatcher with New.
//
// Detect fails for a RouteTable entry that names no method of the
// handler type, so a misspelled method name is reported at startup.
//
// # Lookup
//
// Conditions whose destinations are literal are indexed for direct lookup.
// If none of the indexed conditions matches, every registered condition is
// narrowed in registration order. The matches are sorted by the strategy's
// comparator; if the two best rank equally, Dispatch returns an
// AmbiguousMappingError.
//
// Route destinations support template variables and wildcards:
//
//	/echo/{id}      one segment, captured as DestinationVars["id"]
//	/orders/*       one segment, glob (also "ord-?" and "*.json")
//	/orders/**      any number of segments
//
// An exact match ranks first, then patterns with fewer wildcards and
// variables, then longer patterns. Routes with a payload guard (When) rank
// above otherwise equal routes without one.
//
// # Arguments and Return Values
//
// Handler method parameters are resolved by the argument resolver chain:
// context.Context, *Message, Headers, DestinationVars, View, and finally
// the JSON payload decoded into the parameter type. Decoded structs are
// validated with `validate` struct tags and with a Validate() error method
// if present. Add resolvers with WithArgumentResolvers.
//
// A non-error result is handed to the return value handlers; by default it
// is marshaled to JSON and sent through the message's Replier.
//
// # Exception Handling
//
// When a handler method fails, by returning an error or panicking, the
// dispatcher looks for an exception handler method on the same handler
// type, then on advice registered with RegisterAdvice. The method
// declared for the most specific error type wins: the exact type, then an
// interface the error implements, then error itself. If nothing matches
// the error, its causes are tried in Unwrap order.
//
// Failures no exception handler claims are logged, passed to the
// OnUnhandled hooks and to Replier.Fail. They are never returned from
// Dispatch.
//
// # Hooks
//
// Hooks provide observability without coupling to specific logging or
// metrics systems:
//
//	d := msgroute.NewRouteDispatcher(
//	    msgroute.WithOnSuccess(func(ctx context.Context, dest, handler string, d time.Duration) {
//	        metrics.Timing("dispatch.success", d, "handler:"+handler)
//	    }),
//	    msgroute.WithOnNoMatch(func(ctx context.Context, dest string) {
//	        logger.Warn("no handler", "destination", dest)
//	    }),
//	)
//
// Available hooks:
//   - WithOnDispatch: Called just before the handler executes
//   - WithOnSuccess: Called after the handler succeeds
//   - WithOnFailure: Called after the handler fails
//   - WithOnNoDestination: Called when a message has no usable destination
//   - WithOnNoMatch: Called when no handler matches
//   - WithOnAmbiguous: Called when two handlers match equally well
//   - WithOnUnhandled: Called when no exception handler claims a failure
//
// The metrics subpackage provides Prometheus collectors wired through
// these hooks. The config subpackage loads prefixes, the path separator
// and logging from a file and the environment.
//
// # Concurrency
//
// Registration must complete before the first Dispatch; afterwards the
// registry is read-only and Register fails with ErrSealed. Dispatch is
// safe for concurrent use and runs the handler on the calling goroutine.
package msgroute
