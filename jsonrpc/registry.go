package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// HandlerFunc implements a method. args holds the resolved arguments in the
// order of the method's declared parameter names.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Method is a handler plus the parameter names used to resolve by-name
// params. A method with no names only accepts positional params.
//
// When RawParams is set the params are not resolved: the handler gets no
// arguments and reads Call.Request.Params itself.
type Method struct {
	Params    []string
	Handler   HandlerFunc
	RawParams bool
}

// MethodEntry is a registered method under its qualified name.
type MethodEntry struct {
	Name      string
	Params    []string
	Handler   HandlerFunc
	RawParams bool
}

// resolve maps p onto the entry's parameter names.
func (m *MethodEntry) resolve(p Params) (Args, *Error) {
	if !m.RawParams {
		return Resolve(p, m.Params)
	}
	if p.Kind == ParamsInvalid {
		return nil, codeError(CodeInvalidParams, "not an object or array")
	}
	return Args{}, nil
}

// Func creates a Method from explicit parameter names and a handler.
func Func(params []string, h HandlerFunc) Method {
	return Method{Params: params, Handler: h}
}

// Typed creates a Method from a function taking a params struct. The
// parameter names are the struct's json tag names in field order (the Go
// field name when untagged, skipped for "-"). P may be a struct or a
// pointer to one.
//
// Positional arguments fill fields in order; supplying more arguments than
// fields is an InvalidParams error. Missing arguments leave the zero value.
//
// Typed panics if P is not a struct type.
func Typed[P, R any](fn func(ctx context.Context, params P) (R, error)) Method {
	b, err := newParamBinder(reflect.TypeFor[P]())
	if err != nil {
		panic("jsonrpc: " + err.Error())
	}
	return Method{
		Params: b.names,
		Handler: func(ctx context.Context, args Args) (any, error) {
			v, err := b.bind(args)
			if err != nil {
				return nil, err
			}
			return fn(ctx, v.Interface().(P))
		},
	}
}

// Registry maps qualified method names to methods. Registration is meant to
// happen at startup; lookups are safe for concurrent use.
type Registry struct {
	namespace string

	mu      sync.RWMutex
	methods map[string]*MethodEntry
}

// NewRegistry creates a registry. When namespace is non-empty every method
// is registered as "<namespace>.<name>".
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace: namespace,
		methods:   make(map[string]*MethodEntry),
	}
}

func (r *Registry) Namespace() string { return r.namespace }

func (r *Registry) qualify(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "." + name
}

// Register adds a method. It panics if the qualified name is already taken
// or the handler is nil.
func (r *Registry) Register(name string, m Method) {
	if m.Handler == nil {
		panic("jsonrpc: nil handler for method: " + name)
	}
	qualified := r.qualify(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.methods[qualified]; exists {
		panic("jsonrpc: method name collision: " + qualified)
	}
	r.methods[qualified] = &MethodEntry{
		Name:      qualified,
		Params:    append([]string(nil), m.Params...),
		Handler:   m.Handler,
		RawParams: m.RawParams,
	}
}

// RegisterReceiver registers every exported method of receiver with the
// signature
//
//	func(ctx context.Context, params <StructType>) (result, error)
//
// under its Go name. A `_` field with a `jsonrpc` tag in the params struct
// overrides the method name. Methods with other signatures are skipped.
func (r *Registry) RegisterReceiver(receiver any) {
	val := reflect.ValueOf(receiver)
	typ := val.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}
		m, name, ok := reflectMethod(val, method)
		if !ok {
			continue
		}
		r.Register(name, m)
	}
}

// Lookup returns the method registered under the qualified name.
func (r *Registry) Lookup(name string) (*MethodEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// Names returns the qualified names of all registered methods, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for n := range r.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

func reflectMethod(receiver reflect.Value, method reflect.Method) (Method, string, bool) {
	ft := method.Func.Type()
	if ft.NumIn() != 3 || ft.In(1) != contextType {
		return Method{}, "", false
	}
	if ft.NumOut() != 2 || ft.Out(1) != errorType {
		return Method{}, "", false
	}
	b, err := newParamBinder(ft.In(2))
	if err != nil {
		return Method{}, "", false
	}
	name := method.Name
	if b.rename != "" {
		name = b.rename
	}
	fn := method.Func
	return Method{
		Params: b.names,
		Handler: func(ctx context.Context, args Args) (any, error) {
			v, err := b.bind(args)
			if err != nil {
				return nil, err
			}
			out := fn.Call([]reflect.Value{receiver, reflect.ValueOf(&ctx).Elem(), v})
			if e := out[1].Interface(); e != nil {
				return nil, e.(error)
			}
			return out[0].Interface(), nil
		},
	}, name, true
}

// paramBinder fills a params struct from resolved arguments.
type paramBinder struct {
	typ    reflect.Type
	ptr    bool
	names  []string
	fields []int
	rename string
}

func newParamBinder(t reflect.Type) (*paramBinder, error) {
	b := &paramBinder{}
	if t.Kind() == reflect.Pointer {
		b.ptr = true
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("params type %s is not a struct", t)
	}
	b.typ = t
	b.names = []string{}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Name == "_" {
			if tag := field.Tag.Get("jsonrpc"); tag != "" {
				b.rename = tag
			}
			continue
		}
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			n := strings.Split(tag, ",")[0]
			if n == "-" {
				continue
			}
			if n != "" {
				name = n
			}
		}
		b.names = append(b.names, name)
		b.fields = append(b.fields, i)
	}
	return b, nil
}

func (b *paramBinder) bind(args Args) (reflect.Value, error) {
	if len(args) > len(b.fields) {
		return reflect.Value{}, codeError(CodeInvalidParams, fmt.Sprintf("too many params: got %d, want at most %d", len(args), len(b.fields)))
	}
	v := reflect.New(b.typ)
	for i, raw := range args {
		if raw == nil {
			continue
		}
		field := v.Elem().Field(b.fields[i])
		if err := json.Unmarshal(raw, field.Addr().Interface()); err != nil {
			return reflect.Value{}, Wrap(CodeInvalidParams, fmt.Errorf("%s: %w", b.names[i], err), CodeText(CodeInvalidParams))
		}
	}
	if b.ptr {
		return v, nil
	}
	return v.Elem(), nil
}
