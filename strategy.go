package msgroute

import "reflect"

// Strategy supplies the protocol-specific decisions of a Dispatcher: which
// types are handlers, what mapping condition each method declares, and how
// conditions are matched against and ranked for a message.
//
// T is the mapping condition. Equal conditions (==) identify the same
// mapping; a Dispatcher refuses to register two different handler methods
// under equal conditions.
//
// A Strategy may additionally implement MatchHandler, NoMatchHandler and
// ExceptionMethodSelector.
type Strategy[T comparable] interface {
	// IsHandler reports whether instances of t should be scanned by Detect.
	IsHandler(t reflect.Type) bool

	// MappingForMethod returns the condition for method of handlerType, or
	// false if the method is not a message handler.
	MappingForMethod(method reflect.Method, handlerType reflect.Type) (T, bool)

	// DirectLookupDestinations returns the literal destinations of mapping
	// that can be indexed for direct lookup. Pattern-only mappings return
	// none.
	DirectLookupDestinations(mapping T) []string

	// Destination extracts the raw destination of msg. An empty result
	// drops the message.
	Destination(msg *Message) string

	// MatchingMapping narrows mapping against msg, returning the condition
	// for the part that matched, or false if it does not match.
	MatchingMapping(mapping T, msg *Message) (T, bool)

	// MappingComparator returns the specificity order for matches of msg;
	// more specific conditions sort first.
	MappingComparator(msg *Message) func(a, b T) int
}

// MatchHandler is implemented by strategies that enrich the message before
// the best match is invoked, for example with extracted template
// variables. lookupDestination has any configured prefix removed.
type MatchHandler[T comparable] interface {
	OnMatch(mapping T, lookupDestination string, msg *Message) *Message
}

// NoMatchHandler is implemented by strategies that want to observe
// messages no mapping matched.
type NoMatchHandler[T comparable] interface {
	OnNoMatch(mappings []T, lookupDestination string, msg *Message)
}

// HandlerValidator is implemented by strategies that check a handler
// type's declarations as a whole, such as declarations naming methods the
// type does not have. Detect and RegisterAdvice report its errors.
type HandlerValidator interface {
	ValidateHandler(handlerType reflect.Type) error
}
