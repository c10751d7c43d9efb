package msgroute

import (
	"fmt"
	"reflect"
	"sync"
)

var errorType = reflect.TypeFor[error]()

// BeanResolver looks up handler targets by name. Handlers registered by
// name are resolved once per dispatch, so a resolver may hand out a fresh
// instance every time.
type BeanResolver interface {
	// BeanType returns the type instances of the named bean will have.
	BeanType(name string) (reflect.Type, error)

	// Bean returns the instance to invoke for the named bean.
	Bean(name string) (any, error)
}

// HandlerMethod pairs a handler target with one of its methods. It is
// immutable once created.
type HandlerMethod struct {
	target   any
	beanName string
	method   reflect.Method
	recv     reflect.Type
	params   []Parameter
	ret      ReturnType
}

// NewHandlerMethod describes method invoked on target. The method must be
// taken from the target's type (for example reflect.TypeOf(target).Method(i))
// so that its receiver is the first input.
func NewHandlerMethod(target any, method reflect.Method) (*HandlerMethod, error) {
	if target == nil {
		return nil, fmt.Errorf("msgroute: nil target for method %s", method.Name)
	}
	return newHandlerMethod(target, "", method)
}

// NewBeanHandlerMethod describes method invoked on the bean with the given
// name, resolved through a BeanResolver at dispatch time.
func NewBeanHandlerMethod(beanName string, method reflect.Method) (*HandlerMethod, error) {
	if beanName == "" {
		return nil, fmt.Errorf("msgroute: empty bean name for method %s", method.Name)
	}
	return newHandlerMethod(nil, beanName, method)
}

func newHandlerMethod(target any, beanName string, method reflect.Method) (*HandlerMethod, error) {
	if !method.Func.IsValid() || method.Type.NumIn() == 0 {
		return nil, &MethodShapeError{Method: method, Reason: "method has no receiver; take it from a concrete type"}
	}
	hm := &HandlerMethod{
		target:   target,
		beanName: beanName,
		method:   method,
		recv:     method.Type.In(0),
	}
	for i := 1; i < method.Type.NumIn(); i++ {
		hm.params = append(hm.params, Parameter{
			Index:       i - 1,
			Type:        method.Type.In(i),
			Method:      method,
			HandlerType: hm.recv,
		})
	}
	ret, err := returnTypeOf(method)
	if err != nil {
		return nil, err
	}
	hm.ret = ret
	return hm, nil
}

func returnTypeOf(method reflect.Method) (ReturnType, error) {
	rt := ReturnType{Method: method}
	t := method.Type
	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			rt.ReturnsError = true
		} else {
			rt.Type = t.Out(0)
		}
	case 2:
		if t.Out(1) != errorType {
			return rt, &MethodShapeError{Method: method, Reason: "second result must be error"}
		}
		rt.Type = t.Out(0)
		rt.ReturnsError = true
	default:
		return rt, &MethodShapeError{Method: method, Reason: "at most two results are supported"}
	}
	return rt, nil
}

// Target returns the handler instance, or nil for a bean that has not been
// resolved.
func (h *HandlerMethod) Target() any { return h.target }

// BeanName returns the bean name for lazily resolved handlers.
func (h *HandlerMethod) BeanName() string { return h.beanName }

// Method returns the reflected method.
func (h *HandlerMethod) Method() reflect.Method { return h.method }

// HandlerType returns the receiver type declaring the method.
func (h *HandlerMethod) HandlerType() reflect.Type { return h.recv }

// Parameters returns the method's parameters, excluding the receiver.
func (h *HandlerMethod) Parameters() []Parameter { return h.params }

// ReturnType describes the method's results.
func (h *HandlerMethod) ReturnType() ReturnType { return h.ret }

// Void reports whether the method produces no value besides an error.
func (h *HandlerMethod) Void() bool { return h.ret.Type == nil }

// Resolved returns a HandlerMethod whose target is set, looking the bean up
// through resolver when the target is lazy. The result is not cached.
func (h *HandlerMethod) Resolved(resolver BeanResolver) (*HandlerMethod, error) {
	if h.beanName == "" {
		return h, nil
	}
	if resolver == nil {
		return nil, ErrNoBeanResolver
	}
	bean, err := resolver.Bean(h.beanName)
	if err != nil {
		return nil, fmt.Errorf("resolve bean %q: %w", h.beanName, err)
	}
	cp := *h
	cp.target = bean
	return &cp, nil
}

// Equal reports whether h and other describe the same method on the same
// target.
func (h *HandlerMethod) Equal(other *HandlerMethod) bool {
	if h == other {
		return true
	}
	if other == nil || h.recv != other.recv || h.method.Name != other.method.Name {
		return false
	}
	if h.beanName != "" || other.beanName != "" {
		return h.beanName == other.beanName
	}
	return sameTarget(h.target, other.target)
}

func sameTarget(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	switch {
	case ta != tb:
		return false
	case ta == nil:
		return true
	case !ta.Comparable():
		return false
	}
	return a == b
}

func (h *HandlerMethod) String() string {
	if h.beanName != "" {
		return fmt.Sprintf("%s#%v.%s", h.beanName, h.recv, h.method.Name)
	}
	return fmt.Sprintf("%v.%s", h.recv, h.method.Name)
}

// Beans is a BeanResolver backed by factory functions. Every Bean call
// runs the factory, so each dispatch gets a fresh instance.
type Beans struct {
	mu   sync.RWMutex
	defs map[string]beanDef
}

type beanDef struct {
	typ     reflect.Type
	factory func() (any, error)
}

// NewBeans creates an empty Beans resolver.
func NewBeans() *Beans {
	return &Beans{defs: make(map[string]beanDef)}
}

// Prototype registers a factory producing instances of B under name.
func Prototype[B any](beans *Beans, name string, factory func() (B, error)) {
	beans.mu.Lock()
	defer beans.mu.Unlock()

	beans.defs[name] = beanDef{
		typ: reflect.TypeFor[B](),
		factory: func() (any, error) {
			v, err := factory()
			if err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// BeanType implements BeanResolver.
func (b *Beans) BeanType(name string) (reflect.Type, error) {
	def, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	return def.typ, nil
}

// Bean implements BeanResolver.
func (b *Beans) Bean(name string) (any, error) {
	def, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	return def.factory()
}

func (b *Beans) lookup(name string) (beanDef, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	def, ok := b.defs[name]
	if !ok {
		return beanDef{}, fmt.Errorf("no bean named %q", name)
	}
	return def, nil
}
