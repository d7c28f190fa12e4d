package chain

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Context is the per-execution state shared by every handler in a chain run:
// attributes, per-handler results and execution metadata. It is safe for
// concurrent use so observers may read it while a handler writes.
type Context struct {
	mu      sync.RWMutex
	id      string
	attrs   map[string]any
	results map[string]*Result
	current string
	broken  bool
	err     error
}

// NewContext creates an empty Context with a fresh execution id.
func NewContext() *Context {
	return &Context{
		id:      uuid.NewString(),
		attrs:   make(map[string]any),
		results: make(map[string]*Result),
	}
}

// NewContextFrom creates a Context seeded with a copy of attrs.
func NewContextFrom(attrs map[string]any) *Context {
	c := NewContext()
	c.Merge(attrs)
	return c
}

// ExecutionID returns the identifier assigned at construction (or last Reset).
func (c *Context) ExecutionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Set stores a value under key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs[key] = value
}

// Get retrieves a value by key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.attrs[key]
	return v, ok
}

// GetString retrieves a string value, returning "" if not found or not a string.
func (c *Context) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attrs, key)
}

// Snapshot returns a shallow copy of all attributes.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.attrs))
	for k, v := range c.attrs {
		out[k] = v
	}
	return out
}

// Merge copies all key-value pairs from src into the context (last-write-wins).
func (c *Context) Merge(src map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range src {
		c.attrs[k] = v
	}
}

// Attr reads key as a T. A missing key yields the zero value and false; a
// value of another type yields a *TypeMismatchError.
func Attr[T any](c *Context, key string) (T, bool, error) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, true, mismatch[T](key, v)
	}
	return t, true, nil
}

// AttrOr reads key as a T, returning def when the key is absent.
func AttrOr[T any](c *Context, key string, def T) (T, error) {
	v, ok, err := Attr[T](c, key)
	if err != nil {
		return v, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// ComputeIfAbsent returns the T stored under key, or stores and returns the
// value produced by factory when the key is absent. The check and the store
// happen under one write lock, so factory must not call back into c. A
// factory error leaves the context unchanged.
func ComputeIfAbsent[T any](c *Context, key string, factory func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.attrs[key]; ok {
		t, ok := v.(T)
		if !ok {
			var zero T
			return zero, mismatch[T](key, v)
		}
		return t, nil
	}
	t, err := factory()
	if err != nil {
		return t, fmt.Errorf("compute %q: %w", key, err)
	}
	c.attrs[key] = t
	return t, nil
}

func mismatch[T any](key string, got any) error {
	return &TypeMismatchError{
		Key:  key,
		Want: reflect.TypeFor[T]().String(),
		Got:  fmt.Sprintf("%T", got),
	}
}

// SetResult records the result of the named handler, replacing any earlier one.
func (c *Context) SetResult(name string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[name] = r
}

// Result returns the result recorded for the named handler.
func (c *Context) Result(name string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[name]
	return r, ok
}

// Results returns a copy of all recorded results keyed by handler name.
func (c *Context) Results() map[string]*Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*Result, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// IsHandlerSuccess reports whether the named handler recorded a successful
// result. Handlers without a result are not successful.
func (c *Context) IsHandlerSuccess(name string) bool {
	r, ok := c.Result(name)
	return ok && r != nil && r.Success
}

// ResultData reads the Data payload recorded by the named handler as a T.
func ResultData[T any](c *Context, name string) (T, bool, error) {
	var zero T
	r, ok := c.Result(name)
	if !ok || r == nil || r.Data == nil {
		return zero, false, nil
	}
	t, ok := r.Data.(T)
	if !ok {
		return zero, true, mismatch[T](name, r.Data)
	}
	return t, true, nil
}

// CurrentHandler returns the name of the handler most recently started.
func (c *Context) CurrentHandler() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Context) setCurrentHandler(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = name
}

// MarkBroken asks the executor to stop after the running handler returns.
func (c *Context) MarkBroken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
}

// IsBroken reports whether MarkBroken was called.
func (c *Context) IsBroken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.broken
}

// Err returns the last failure that no handler recovered from.
func (c *Context) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// SetErr records err as the last unrecovered failure.
func (c *Context) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Reset clears attributes, results and metadata and assigns a new execution id.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = uuid.NewString()
	c.attrs = make(map[string]any)
	c.results = make(map[string]*Result)
	c.current = ""
	c.broken = false
	c.err = nil
}
