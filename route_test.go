package msgroute

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DestinationStrategySuite struct {
	suite.Suite
	strategy *DestinationStrategy
}

func (s *DestinationStrategySuite) SetupTest() {
	s.strategy = NewDestinationStrategy()
}

func TestDestinationStrategySuite(t *testing.T) {
	suite.Run(t, new(DestinationStrategySuite))
}

func (s *DestinationStrategySuite) method(target any, name string) reflect.Method {
	m, ok := reflect.TypeOf(target).MethodByName(name)
	s.Require().True(ok)
	return m
}

func (s *DestinationStrategySuite) TestIsHandler() {
	s.Assert().True(s.strategy.IsHandler(reflect.TypeFor[*chatHandler]()))
	s.Assert().True(s.strategy.IsHandler(reflect.TypeFor[sameRank]()))
	s.Assert().False(s.strategy.IsHandler(reflect.TypeFor[chatHandler]()))
	s.Assert().False(s.strategy.IsHandler(reflect.TypeFor[calc]()))
}

func (s *DestinationStrategySuite) TestMappingForMethod() {
	h := &chatHandler{}
	t := reflect.TypeOf(h)

	route, ok := s.strategy.MappingForMethod(s.method(h, "Echo"), t)
	s.Require().True(ok)
	s.Assert().Equal(MessageTypeMessage, route.Type())
	s.Assert().Equal("/echo/{id}", route.Pattern())
	s.Assert().False(route.Guarded())
	s.Assert().Equal("MESSAGE /echo/{id}", route.String())

	_, ok = s.strategy.MappingForMethod(s.method(h, "OnError"), t)
	s.Assert().False(ok, "exception handlers are not message handlers")
	_, ok = s.strategy.MappingForMethod(s.method(h, "Routes"), t)
	s.Assert().False(ok)
}

func (s *DestinationStrategySuite) TestRoutesAreStable() {
	h := &orderHandler{}
	t := reflect.TypeOf(h)

	first, ok := s.strategy.MappingForMethod(s.method(h, "Refund"), t)
	s.Require().True(ok)
	second, _ := s.strategy.MappingForMethod(s.method(h, "Refund"), t)
	s.Assert().Equal(first, second)
	s.Assert().True(first == second)
	s.Assert().Equal("MESSAGE /orders/{id} [guarded]", first.String())
}

func (s *DestinationStrategySuite) TestExceptionTypes() {
	types, ok := s.strategy.ExceptionTypes(s.method(codeAdvice{}, "Handle"), reflect.TypeFor[codeAdvice]())
	s.Require().True(ok)
	s.Assert().Equal([]reflect.Type{reflect.TypeFor[*codeError]()}, types)

	h := &chatHandler{}
	types, ok = s.strategy.ExceptionTypes(s.method(h, "OnError"), reflect.TypeOf(h))
	s.Require().True(ok)
	s.Assert().Empty(types)

	_, ok = s.strategy.ExceptionTypes(s.method(h, "Ping"), reflect.TypeOf(h))
	s.Assert().False(ok)
}

func (s *DestinationStrategySuite) TestValidateHandler() {
	s.Assert().NoError(s.strategy.ValidateHandler(reflect.TypeFor[*chatHandler]()))
	s.Assert().NoError(s.strategy.ValidateHandler(reflect.TypeFor[calc]()))

	err := s.strategy.ValidateHandler(reflect.TypeFor[misspelled]())
	s.Require().Error(err)
	s.Assert().ErrorContains(err, `"Pnig"`)
	s.Assert().ErrorContains(err, `"OnErorr"`)
	s.Assert().NotContains(err.Error(), `"Ping"`)

	err = s.strategy.ValidateHandler(reflect.TypeFor[chatHandler]())
	s.Assert().NoError(err, "a type that is not a handler declares nothing")
}

func (s *DestinationStrategySuite) TestDirectLookupDestinations() {
	s.Assert().Equal([]string{"/ping"}, s.strategy.DirectLookupDestinations(OnMessage("/ping").Route()))
	s.Assert().Empty(s.strategy.DirectLookupDestinations(OnMessage("/echo/{id}").Route()))
	s.Assert().Empty(s.strategy.DirectLookupDestinations(OnAny("/echo/**").Route()))
}

func (s *DestinationStrategySuite) TestMatchingMapping() {
	refund := FieldEquals("kind", "refund")

	tests := map[string]struct {
		route   Route
		msg     *Message
		matches bool
	}{
		"exact": {
			OnMessage("/ping").Route(), NewMessage("/ping", nil), true,
		},
		"pattern": {
			OnMessage("/echo/{id}").Route(), NewMessage("/echo/1", nil), true,
		},
		"pattern mismatch": {
			OnMessage("/echo/{id}").Route(), NewMessage("/echo", nil), false,
		},
		"any type": {
			OnAny("/ping").Route(), NewMessage("/ping", nil).WithHeader(HeaderMessageType, "CONNECT"), true,
		},
		"wrong type": {
			OnSubscribe("/ping").Route(), NewMessage("/ping", nil), false,
		},
		"untyped message": {
			OnMessage("/ping").Route(), &Message{Headers: Headers{HeaderDestination: "/ping"}}, false,
		},
		"lookup destination header wins": {
			OnMessage("/ping").Route(), NewMessage("/app/ping", nil).WithHeader(HeaderLookupDestination, "/ping"), true,
		},
		"empty lookup destination is kept": {
			OnMessage("/app").Route(), NewMessage("/app", nil).WithHeader(HeaderLookupDestination, ""), false,
		},
		"guard matches": {
			OnMessage("/orders/{id}").When(refund).Route(),
			NewMessage("/orders/1", json.RawMessage(`{"kind": "refund"}`)), true,
		},
		"guard rejects": {
			OnMessage("/orders/{id}").When(refund).Route(),
			NewMessage("/orders/1", json.RawMessage(`{"kind": "charge"}`)), false,
		},
		"guard on invalid payload": {
			OnMessage("/orders/{id}").When(refund).Route(),
			NewMessage("/orders/1", json.RawMessage(`{`)), false,
		},
	}

	for name, tt := range tests {
		s.Run(name, func() {
			got, ok := s.strategy.MatchingMapping(tt.route, tt.msg)
			s.Assert().Equal(tt.matches, ok)
			if ok {
				s.Assert().Equal(tt.route, got)
			}
		})
	}
}

func (s *DestinationStrategySuite) TestMappingComparator() {
	msg := NewMessage("/orders/7", nil)
	cmp := s.strategy.MappingComparator(msg)

	exact := OnMessage("/orders/7").Route()
	templ := OnMessage("/orders/{id}").Route()
	guarded := OnMessage("/orders/{id}").When(HasFields("kind")).Route()
	anyType := OnAny("/orders/{id}").Route()
	other := OnMessage("/orders/{n}").Route()

	s.Assert().Negative(cmp(exact, templ))
	s.Assert().Negative(cmp(guarded, templ))
	s.Assert().Positive(cmp(templ, guarded))
	s.Assert().Negative(cmp(templ, anyType))
	s.Assert().Positive(cmp(anyType, templ))
	s.Assert().Zero(cmp(templ, other))
}

func (s *DestinationStrategySuite) TestOnMatch() {
	msg := NewMessage("/rooms/r1/users/u2", nil)
	route := OnMessage("/rooms/{room}/users/{user}").Route()

	enriched := s.strategy.OnMatch(route, "/rooms/r1/users/u2", msg)

	s.Assert().Equal(DestinationVars{"room": "r1", "user": "u2"}, enriched.Headers[HeaderDestinationVars])
	s.Assert().NotContains(msg.Headers, HeaderDestinationVars)
}

func (s *DestinationStrategySuite) TestPathSeparator() {
	strategy := NewDestinationStrategy(WithPathSeparator("."), WithPathSeparator(""))
	s.Assert().Equal(".", strategy.Separator())

	route := OnMessage("orders.{id}.created").Route()
	_, ok := strategy.MatchingMapping(route, NewMessage("orders.7.created", nil))
	s.Assert().True(ok)

	enriched := strategy.OnMatch(route, "orders.7.created", NewMessage("orders.7.created", nil))
	s.Assert().Equal(DestinationVars{"id": "7"}, enriched.Headers[HeaderDestinationVars])
}

type countingInspector struct {
	calls int
}

func (i *countingInspector) Inspect(raw []byte) (View, error) {
	i.calls++
	return JSONInspector().Inspect(raw)
}

func (s *DestinationStrategySuite) TestCustomInspector() {
	insp := &countingInspector{}
	strategy := NewDestinationStrategy(WithInspector(insp), WithInspector(nil))

	route := OnMessage("/orders/{id}").When(HasFields("kind")).Route()
	_, ok := strategy.MatchingMapping(route, NewMessage("/orders/1", json.RawMessage(`{"kind": "x"}`)))

	s.Assert().True(ok)
	s.Assert().Equal(1, insp.calls)
}
