// Package handlers provides the built-in step kinds and turns parsed chain
// definitions into chain.Handler values.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ravi-parthasarathy/handlerchain/pkg/chain"
	"github.com/ravi-parthasarathy/handlerchain/pkg/definition"
)

// Action is the behaviour behind one step kind.
type Action interface {
	Run(ctx context.Context, step *definition.Step, pctx *chain.Context) (*chain.Result, error)
}

// Catalog maps step kinds to Actions.
type Catalog struct {
	mu      sync.RWMutex
	actions map[definition.Kind]Action
	logger  *slog.Logger
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{actions: make(map[definition.Kind]Action)}
}

// DefaultCatalog registers every built-in kind. defaultModel is used by
// prompt steps that do not name a model.
func DefaultCatalog(defaultModel string) *Catalog {
	c := NewCatalog()
	c.Register(definition.KindSet, &SetAction{})
	c.Register(definition.KindAssert, &AssertAction{})
	c.Register(definition.KindEnv, &EnvAction{})
	c.Register(definition.KindSleep, &SleepAction{})
	c.Register(definition.KindBreak, &BreakAction{})
	c.Register(definition.KindFail, &FailAction{})
	c.Register(definition.KindPrompt, &PromptAction{DefaultModel: defaultModel})
	c.Register(definition.KindTransform, &TransformAction{})
	c.Register(definition.KindRegex, &RegexAction{})
	c.Register(definition.KindJSON, &JSONDecodeAction{})
	c.Register(definition.KindHTTP, &HTTPAction{})
	return c
}

// Register associates an action with a kind, replacing any earlier one.
func (c *Catalog) Register(kind definition.Kind, a Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions[kind] = a
}

// SetLogger sets the logger handed to handlers built from this catalog.
func (c *Catalog) SetLogger(l *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
}

// Logger returns the catalog's logger, or slog.Default() when unset.
func (c *Catalog) Logger() *slog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Get returns the action for kind, or an error if none is registered.
func (c *Catalog) Get(kind definition.Kind) (Action, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actions[kind]
	if !ok {
		return nil, fmt.Errorf("no action registered for kind %q", kind)
	}
	return a, nil
}

// Kinds returns the registered kinds, sorted.
func (c *Catalog) Kinds() []definition.Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]definition.Kind, 0, len(c.actions))
	for k := range c.actions {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
