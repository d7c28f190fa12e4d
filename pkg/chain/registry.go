package chain

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Registry holds the handlers of one chain in positional order. Every
// mutation installs a new backing slice, so a snapshot taken by Ordered is
// never affected by later changes.
type Registry struct {
	mu        sync.RWMutex
	handlers  []Handler
	logger    *slog.Logger
	fallbacks int
}

// NewRegistry creates an empty Registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register appends h.
func (r *Registry) Register(h Handler) error {
	return r.insert(h, func(list []Handler) int { return len(list) })
}

// RegisterFirst inserts h at the head.
func (r *Registry) RegisterFirst(h Handler) error {
	return r.insert(h, func([]Handler) int { return 0 })
}

// RegisterBefore inserts h immediately before anchor. An unknown anchor is
// not an error: h is appended and the fallback is logged.
func (r *Registry) RegisterBefore(anchor string, h Handler) error {
	return r.insert(h, func(list []Handler) int {
		if i := indexOf(list, anchor); i >= 0 {
			return i
		}
		r.fallback("before", anchor, h.Name())
		return len(list)
	})
}

// RegisterAfter inserts h immediately after anchor, falling back to append
// like RegisterBefore.
func (r *Registry) RegisterAfter(anchor string, h Handler) error {
	return r.insert(h, func(list []Handler) int {
		if i := indexOf(list, anchor); i >= 0 {
			return i + 1
		}
		r.fallback("after", anchor, h.Name())
		return len(list)
	})
}

// RegisterAll registers each handler in turn and stops at the first error.
func (r *Registry) RegisterAll(hs ...Handler) error {
	for _, h := range hs {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) insert(h Handler, position func([]Handler) int) error {
	if h == nil || h.Name() == "" {
		return fmt.Errorf("register: %w", ErrInvalidHandler)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if indexOf(r.handlers, h.Name()) >= 0 {
		return &DuplicateNameError{Name: h.Name()}
	}
	r.handlers = slices.Insert(slices.Clone(r.handlers), position(r.handlers), h)
	return nil
}

// fallback runs with r.mu held.
func (r *Registry) fallback(where, anchor, name string) {
	r.fallbacks++
	r.logger.Warn("anchor handler not found, appending at tail",
		"anchor", anchor, "position", where, "handler", name)
}

// Fallbacks returns how many before/after registrations missed their anchor.
func (r *Registry) Fallbacks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallbacks
}

// Remove deletes the named handler.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.handlers, name)
	if i < 0 {
		return &NotFoundError{Name: name}
	}
	r.handlers = slices.Delete(slices.Clone(r.handlers), i, i+1)
	return nil
}

// Replace swaps the named handler for h, keeping its position. h may carry a
// new name as long as no other handler uses it.
func (r *Registry) Replace(name string, h Handler) error {
	if h == nil || h.Name() == "" {
		return fmt.Errorf("replace %q: %w", name, ErrInvalidHandler)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := indexOf(r.handlers, name)
	if i < 0 {
		return &NotFoundError{Name: name}
	}
	if h.Name() != name && indexOf(r.handlers, h.Name()) >= 0 {
		return &DuplicateNameError{Name: h.Name()}
	}
	next := slices.Clone(r.handlers)
	next[i] = h
	r.handlers = next
	return nil
}

// Reorder rearranges positions: handlers named in names come first in that
// order, the rest follow in their current relative order. Unknown names are
// logged and ignored.
func (r *Registry) Reorder(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]Handler, 0, len(r.handlers))
	placed := make(map[string]bool, len(names))
	for _, name := range names {
		if placed[name] {
			continue
		}
		i := indexOf(r.handlers, name)
		if i < 0 {
			r.logger.Warn("order list names unknown handler", "handler", name)
			continue
		}
		next = append(next, r.handlers[i])
		placed[name] = true
	}
	for _, h := range r.handlers {
		if !placed[h.Name()] {
			next = append(next, h)
		}
	}
	r.handlers = next
}

// Ordered returns the execution order: handlers sorted by Order() with ties
// broken by position. The returned slice is owned by the caller.
func (r *Registry) Ordered() []Handler {
	r.mu.RLock()
	snapshot := r.handlers
	r.mu.RUnlock()
	out := slices.Clone(snapshot)
	slices.SortStableFunc(out, func(a, b Handler) int {
		return cmp.Compare(a.Order(), b.Order())
	})
	return out
}

// Get returns the named handler.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.handlers, name)
	if i < 0 {
		return nil, &NotFoundError{Name: name}
	}
	return r.handlers[i], nil
}

// Names returns handler names in positional order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.handlers))
	for i, h := range r.handlers {
		names[i] = h.Name()
	}
	return names
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Contains reports whether a handler named name is registered.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return indexOf(r.handlers, name) >= 0
}

func indexOf(list []Handler, name string) int {
	return slices.IndexFunc(list, func(h Handler) bool { return h.Name() == name })
}
