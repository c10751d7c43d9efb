package msgroute

import (
	"context"
	"encoding/json"
	"maps"
)

// Well-known header keys.
const (
	// HeaderDestination holds the raw destination string of the message.
	HeaderDestination = "destination"

	// HeaderMessageType holds the MessageType of the message.
	HeaderMessageType = "messageType"

	// HeaderSessionID holds the transport session identifier, if any.
	HeaderSessionID = "sessionId"

	// HeaderLookupDestination is set by the Route strategy to the
	// destination with the matched prefix removed.
	HeaderLookupDestination = "lookupDestination"

	// HeaderDestinationVars is set by the Route strategy to the template
	// variables extracted from the matched destination pattern.
	HeaderDestinationVars = "destinationVars"
)

// MessageType classifies a message for routing. Transports set it in the
// HeaderMessageType header.
type MessageType string

// Message types understood by the Route strategy.
const (
	MessageTypeAny         MessageType = ""
	MessageTypeMessage     MessageType = "MESSAGE"
	MessageTypeSubscribe   MessageType = "SUBSCRIBE"
	MessageTypeUnsubscribe MessageType = "UNSUBSCRIBE"
	MessageTypeConnect     MessageType = "CONNECT"
	MessageTypeDisconnect  MessageType = "DISCONNECT"
)

// Headers are the metadata carried alongside a message payload.
type Headers map[string]any

// String returns the header value at key if it is a string.
func (h Headers) String(key string) string {
	s, _ := h[key].(string)
	return s
}

// Message is an inbound message handed to Dispatcher.Dispatch by a
// transport.
type Message struct {
	// Headers carry the destination, message type and any transport
	// specific metadata.
	Headers Headers

	// Payload is the raw JSON body. Handler parameters that are not
	// claimed by another resolver are decoded from it.
	Payload json.RawMessage

	// Replier handles sending responses back to the caller.
	// For fire-and-forget transports this is nil.
	//
	// When Replier is set:
	//   - A handler's non-void result is marshaled and passed to Reply
	//   - An error no exception handler claims is passed to Fail
	Replier Replier
}

// NewMessage creates a MESSAGE-typed message for destination.
func NewMessage(destination string, payload json.RawMessage) *Message {
	return &Message{
		Headers: Headers{
			HeaderDestination: destination,
			HeaderMessageType: MessageTypeMessage,
		},
		Payload: payload,
	}
}

// Destination returns the raw destination header.
func (m *Message) Destination() string {
	return m.Headers.String(HeaderDestination)
}

// Type returns the message type header, or MessageTypeAny if unset.
func (m *Message) Type() MessageType {
	switch t := m.Headers[HeaderMessageType].(type) {
	case MessageType:
		return t
	case string:
		return MessageType(t)
	}
	return MessageTypeAny
}

// WithHeader returns a shallow copy of m with key set to value. The
// receiver is left untouched so that one message can be shared between
// concurrent dispatches.
func (m *Message) WithHeader(key string, value any) *Message {
	headers := make(Headers, len(m.Headers)+1)
	maps.Copy(headers, m.Headers)
	headers[key] = value
	return &Message{Headers: headers, Payload: m.Payload, Replier: m.Replier}
}

// Replier sends responses back to the message originator.
// Implement this for request-response transport patterns.
type Replier interface {
	// Reply sends a successful response with the given JSON payload.
	Reply(ctx context.Context, result json.RawMessage) error

	// Fail sends a failure response with the given error.
	Fail(ctx context.Context, err error) error
}
