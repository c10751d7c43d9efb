package msgroute

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDivide = errors.New("divide by zero")

type label string

type calc struct {
	base int
}

func (c *calc) Add(ctx context.Context, n int) int { return c.base + n }

func (c *calc) Div(a, b int) (int, error) {
	if b == 0 {
		return 0, errDivide
	}
	return a / b, nil
}

func (c *calc) Tag(l label) string { return "tag:" + string(l) }

func (c *calc) Boom()    { panic("boom") }
func (c *calc) BoomErr() { panic(errBoom) }

func (c *calc) Need(ch chan int) {}

type signup struct {
	Email string `json:"email" validate:"required,email"`
	Age   int    `json:"age"`
}

func (s signup) Validate() error {
	if s.Age < 18 {
		return errors.New("too young")
	}
	return nil
}

func (c *calc) Signup(in signup) string { return in.Email }

func (c *calc) SignupPtr(in *signup) bool { return in == nil }

type constResolver struct {
	typ reflect.Type
	val any
	err error
}

func (r constResolver) Supports(p Parameter) bool { return p.Type == r.typ }

func (r constResolver) Resolve(context.Context, Parameter, *Message) (any, error) {
	return r.val, r.err
}

func invocable(t *testing.T, target any, name string, resolvers ...ArgumentResolver) *InvocableHandlerMethod {
	t.Helper()
	hm, err := NewHandlerMethod(target, methodOf(t, target, name))
	require.NoError(t, err)
	if len(resolvers) == 0 {
		resolvers = DefaultArgumentResolvers()
	}
	return NewInvocableHandlerMethod(hm, resolvers)
}

func TestInvocableHandlerMethod_Invoke(t *testing.T) {
	ctx := context.Background()
	c := &calc{base: 10}

	t.Run("resolves arguments from the message", func(t *testing.T) {
		inv := invocable(t, c, "Add")

		got, err := inv.Invoke(ctx, c, NewMessage("/add", json.RawMessage(`3`)))
		require.NoError(t, err)
		assert.Equal(t, 13, got)
	})

	t.Run("provided arguments take precedence", func(t *testing.T) {
		inv := invocable(t, c, "Add")

		got, err := inv.Invoke(ctx, c, NewMessage("/add", json.RawMessage(`3`)), "ignored", 5)
		require.NoError(t, err)
		assert.Equal(t, 15, got)
	})

	t.Run("first assignable provided argument is used for every match", func(t *testing.T) {
		inv := invocable(t, c, "Div")

		got, err := inv.Invoke(ctx, c, &Message{}, 6, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	})

	t.Run("error result is returned", func(t *testing.T) {
		inv := invocable(t, c, "Div")

		_, err := inv.Invoke(ctx, c, &Message{}, 0)
		assert.ErrorIs(t, err, errDivide)
	})

	t.Run("panic with a non-error value", func(t *testing.T) {
		inv := invocable(t, c, "Boom")

		got, err := inv.Invoke(ctx, c, &Message{})
		assert.Nil(t, got)
		var p *PanicError
		require.ErrorAs(t, err, &p)
		assert.Equal(t, "boom", p.Value)
		assert.Contains(t, string(p.Stack), "Boom")
	})

	t.Run("panic with an error value", func(t *testing.T) {
		inv := invocable(t, c, "BoomErr")

		_, err := inv.Invoke(ctx, c, &Message{})
		assert.Same(t, errBoom, err)
	})

	t.Run("unsupported parameter", func(t *testing.T) {
		inv := invocable(t, c, "Need")

		_, err := inv.Invoke(ctx, c, &Message{})
		var arg *ArgumentResolutionError
		require.ErrorAs(t, err, &arg)
		assert.Equal(t, 0, arg.Index)
		assert.Equal(t, reflect.TypeFor[chan int](), arg.Type)
		assert.NoError(t, arg.Cause)
	})

	t.Run("resolver failure", func(t *testing.T) {
		inv := invocable(t, c, "Tag", constResolver{typ: reflect.TypeFor[label](), err: errBoom})

		_, err := inv.Invoke(ctx, c, &Message{})
		var arg *ArgumentResolutionError
		require.ErrorAs(t, err, &arg)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("resolved value is converted", func(t *testing.T) {
		inv := invocable(t, c, "Tag", constResolver{typ: reflect.TypeFor[label](), val: "x"})

		got, err := inv.Invoke(ctx, c, &Message{})
		require.NoError(t, err)
		assert.Equal(t, "tag:x", got)
	})

	t.Run("nil resolved value is the zero value", func(t *testing.T) {
		inv := invocable(t, c, "Tag", constResolver{typ: reflect.TypeFor[label]()})

		got, err := inv.Invoke(ctx, c, &Message{})
		require.NoError(t, err)
		assert.Equal(t, "tag:", got)
	})

	t.Run("incompatible resolved value", func(t *testing.T) {
		inv := invocable(t, c, "Tag", constResolver{typ: reflect.TypeFor[label](), val: 42.5})

		_, err := inv.Invoke(ctx, c, &Message{})
		var arg *ArgumentResolutionError
		require.ErrorAs(t, err, &arg)
		assert.ErrorContains(t, err, "float64")
	})

	t.Run("target of another type", func(t *testing.T) {
		inv := invocable(t, c, "Add")

		_, err := inv.Invoke(ctx, calc{}, &Message{})
		var mismatch *TargetMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, reflect.TypeFor[*calc](), mismatch.Declaring)
		assert.Equal(t, reflect.TypeFor[calc](), mismatch.TargetType)
		assert.ErrorContains(t, err, "wrapped or decorated")

		_, err = inv.Invoke(ctx, nil, &Message{})
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("void method", func(t *testing.T) {
		inv := invocable(t, c, "Need")
		assert.True(t, inv.Void())
		assert.False(t, invocable(t, c, "Div").Void())
	})
}

func TestPayloadResolver(t *testing.T) {
	ctx := context.Background()
	c := &calc{}

	tests := map[string]struct {
		payload string
		want    string
		wantErr string
	}{
		"valid":           {`{"email": "a@b.c", "age": 30}`, "a@b.c", ""},
		"struct tag":      {`{"email": "nope", "age": 30}`, "", "Email"},
		"validate method": {`{"email": "a@b.c", "age": 3}`, "", "too young"},
		"malformed":       {`{"email": `, "", "unmarshal payload"},
		"missing":         {``, "", "Email"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			inv := invocable(t, c, "Signup")

			got, err := inv.Invoke(ctx, c, NewMessage("/signup", json.RawMessage(tt.payload)))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("null pointer payload", func(t *testing.T) {
		inv := invocable(t, c, "SignupPtr")

		got, err := inv.Invoke(ctx, c, NewMessage("/signup", json.RawMessage(`null`)))
		require.NoError(t, err)
		assert.Equal(t, true, got)
	})

	t.Run("pointer payload is validated", func(t *testing.T) {
		inv := invocable(t, c, "SignupPtr")

		_, err := inv.Invoke(ctx, c, NewMessage("/signup", json.RawMessage(`{"email": "a@b.c"}`)))
		assert.ErrorContains(t, err, "too young")
	})
}

func TestReplyReturnValueHandler(t *testing.T) {
	ctx := context.Background()
	h := ReplyReturnValueHandler(quietLogger())
	rt := ReturnType{Type: reflect.TypeFor[echoReply]()}

	assert.True(t, h.Supports(rt))
	assert.False(t, h.Supports(ReturnType{ReturnsError: true}))

	rec := &replyRecorder{}
	msg := NewMessage("/echo", nil)
	msg.Replier = rec
	require.NoError(t, h.Handle(ctx, echoReply{ID: "1", Text: "hi"}, rt, msg))
	assert.Equal(t, []string{`{"id":"1","text":"hi"}`}, rec.replies)

	assert.NoError(t, h.Handle(ctx, echoReply{}, rt, NewMessage("/echo", nil)))
	assert.Error(t, h.Handle(ctx, make(chan int), ReturnType{Type: reflect.TypeFor[chan int]()}, msg))
}
