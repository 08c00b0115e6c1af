package container

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
)

// Container wires the service graph by constructor injection. Providers
// are functions returning T or (T, error); their parameters are resolved
// from the container. Singletons that implement io.Closer are closed in
// reverse build order by Close.
type Container struct {
	mu        sync.Mutex
	prov      map[reflect.Type]provider
	instances map[reflect.Type]reflect.Value
	closers   []io.Closer
}

type provider struct {
	fn        reflect.Value
	singleton bool
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func New() *Container {
	return &Container{prov: make(map[reflect.Type]provider), instances: make(map[reflect.Type]reflect.Value)}
}

// Provide registers a constructor for the type of its first result.
func (c *Container) Provide(constructor any, singleton bool) error {
	v := reflect.ValueOf(constructor)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("container: constructor must be a function")
	}
	ft := v.Type()
	if ft.NumOut() == 0 || ft.NumOut() > 2 {
		return fmt.Errorf("container: constructor must return (T) or (T, error)")
	}
	if ft.NumOut() == 2 && ft.Out(1) != errType {
		return fmt.Errorf("container: second return value must be error")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	outType := ft.Out(0)
	if _, exists := c.prov[outType]; exists {
		return fmt.Errorf("container: provider already exists for %v", outType)
	}
	c.prov[outType] = provider{fn: v, singleton: singleton}
	return nil
}

// ProvideValue registers an already built singleton, such as the loaded
// config. It is not closed by Close.
func (c *Container) ProvideValue(value any) error {
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		return fmt.Errorf("container: nil value")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.instances[v.Type()]; exists {
		return fmt.Errorf("container: value already exists for %v", v.Type())
	}
	c.instances[v.Type()] = v
	return nil
}

// Resolve fills target, a pointer to the wanted type.
//
//	var db *database.DB
//	err := c.Resolve(&db)
func (c *Container) Resolve(target any) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return fmt.Errorf("container: target must be a non-nil pointer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	val, err := c.get(ptr.Elem().Type(), nil)
	if err != nil {
		return err
	}
	ptr.Elem().Set(val)
	return nil
}

// Invoke calls fn with its parameters resolved. A trailing error result is
// returned.
func (c *Container) Invoke(fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("container: Invoke requires a function")
	}
	ft := v.Type()
	args := make([]reflect.Value, ft.NumIn())
	c.mu.Lock()
	for i := range args {
		val, err := c.get(ft.In(i), nil)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		args[i] = val
	}
	c.mu.Unlock()

	outs := v.Call(args)
	if n := len(outs); n > 0 && ft.Out(n-1) == errType && !outs[n-1].IsNil() {
		return outs[n-1].Interface().(error)
	}
	return nil
}

// Close closes built singletons in reverse order and joins the errors.
func (c *Container) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// lookup finds the provider for t, falling back to one whose type
// implements the interface t. Callers hold c.mu.
func (c *Container) lookup(t reflect.Type) (reflect.Type, provider, bool) {
	if p, ok := c.prov[t]; ok {
		return t, p, true
	}
	if t.Kind() == reflect.Interface {
		for pt, p := range c.prov {
			if pt.Implements(t) {
				return pt, p, true
			}
		}
	}
	return nil, provider{}, false
}

// get builds t. path holds the types under construction on the current
// branch so shared dependencies are not mistaken for cycles.
func (c *Container) get(t reflect.Type, path []reflect.Type) (reflect.Value, error) {
	if v, ok := c.instances[t]; ok {
		return v, nil
	}
	key, prov, ok := c.lookup(t)
	if !ok {
		return reflect.Value{}, fmt.Errorf("container: no provider for %v", t)
	}
	if v, ok := c.instances[key]; ok {
		return v, nil
	}
	for _, p := range path {
		if p == key {
			return reflect.Value{}, fmt.Errorf("container: cyclic dependency for %v", key)
		}
	}
	path = append(path, key)

	ft := prov.fn.Type()
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		dep, err := c.get(ft.In(i), path)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("container: building %v: %w", key, err)
		}
		args[i] = dep
	}
	outs := prov.fn.Call(args)
	if len(outs) == 2 && !outs[1].IsNil() {
		return reflect.Value{}, outs[1].Interface().(error)
	}
	res := outs[0]

	if prov.singleton {
		c.instances[key] = res
		if cl, ok := res.Interface().(io.Closer); ok && !isNil(res) {
			c.closers = append(c.closers, cl)
		}
	}
	return res, nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
