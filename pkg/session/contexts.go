package session

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// DefaultVariableTimeout bounds how long a reader waits for a deferred context value.
const DefaultVariableTimeout = 2 * time.Second

// LifespanPolicy decides what happens when a live context is set again with a new lifespan.
type LifespanPolicy int

const (
	// LifespanMax keeps the larger of the existing and the new lifespan.
	LifespanMax LifespanPolicy = iota
	// LifespanOverwrite always replaces the existing lifespan.
	LifespanOverwrite
)

// ParseLifespanPolicy maps "max" or "overwrite" to a policy.
func ParseLifespanPolicy(s string) (LifespanPolicy, error) {
	switch s {
	case "", "max":
		return LifespanMax, nil
	case "overwrite":
		return LifespanOverwrite, nil
	default:
		return LifespanMax, fmt.Errorf("%w: unknown lifespan policy %q", domain.ErrInvalidArgument, s)
	}
}

type liveContext struct {
	lifespan int
	values   map[string]any
}

// ContextStore maps context names to time-limited variables.
// It is owned by exactly one Session and is not safe for concurrent use.
type ContextStore struct {
	contexts        map[string]*liveContext
	policy          LifespanPolicy
	variableTimeout time.Duration
}

// ContextOption configures a ContextStore.
type ContextOption func(*ContextStore)

// WithLifespanPolicy selects how lifespans of live contexts are updated.
func WithLifespanPolicy(p LifespanPolicy) ContextOption {
	return func(c *ContextStore) {
		c.policy = p
	}
}

// WithVariableTimeout sets how long GetContextValue waits for deferred values.
func WithVariableTimeout(d time.Duration) ContextOption {
	return func(c *ContextStore) {
		c.variableTimeout = d
	}
}

// NewContextStore creates an empty store.
func NewContextStore(opts ...ContextOption) *ContextStore {
	c := &ContextStore{
		contexts:        make(map[string]*liveContext),
		variableTimeout: DefaultVariableTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VariableTimeout returns the configured deferred value timeout.
func (c *ContextStore) VariableTimeout() time.Duration {
	return c.variableTimeout
}

// SetContext ensures the named context is live with the given lifespan.
func (c *ContextStore) SetContext(name string, lifespan int) error {
	_, err := c.ensure(name, lifespan)
	return err
}

// SetContextValue ensures the context is live and upserts one of its variables.
func (c *ContextStore) SetContextValue(name string, lifespan int, key string, value any) error {
	if key == "" {
		return fmt.Errorf("%w: context variable key is empty", domain.ErrInvalidArgument)
	}
	lc, err := c.ensure(name, lifespan)
	if err != nil {
		return err
	}
	lc.values[key] = value
	return nil
}

// SetContextInstance writes a recognized out-context and every one of its values.
func (c *ContextStore) SetContextInstance(ci *domain.ContextInstance) error {
	if ci == nil || ci.Definition == nil {
		return fmt.Errorf("%w: context instance has no definition", domain.ErrInvalidArgument)
	}
	lc, err := c.ensure(ci.Definition.Name, ci.Definition.EffectiveLifespan())
	if err != nil {
		return err
	}
	for k, v := range ci.Values {
		lc.values[k] = v
	}
	return nil
}

func (c *ContextStore) ensure(name string, lifespan int) (*liveContext, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: context name is empty", domain.ErrInvalidArgument)
	}
	if lifespan <= 0 {
		return nil, fmt.Errorf("%w: lifespan of context '%s' must be positive, got %d", domain.ErrInvalidArgument, name, lifespan)
	}
	lc, ok := c.contexts[name]
	if !ok {
		lc = &liveContext{lifespan: lifespan, values: make(map[string]any)}
		c.contexts[name] = lc
		return lc, nil
	}
	if c.policy == LifespanOverwrite || lifespan > lc.lifespan {
		lc.lifespan = lifespan
	}
	return lc, nil
}

// GetContextVariables returns a copy of the variables of a live context, or an
// empty map when the context does not exist.
func (c *ContextStore) GetContextVariables(name string) map[string]any {
	lc, ok := c.contexts[name]
	if !ok {
		return map[string]any{}
	}
	return maps.Clone(lc.values)
}

// GetContextValue returns one variable. Deferred values are awaited up to the
// variable timeout and memoized once resolved. A missing variable yields nil.
func (c *ContextStore) GetContextValue(name, key string) (any, error) {
	lc, ok := c.contexts[name]
	if !ok {
		return nil, nil
	}
	v := lc.values[key]
	f, deferred := v.(domain.Future)
	if !deferred {
		return v, nil
	}

	timer := time.NewTimer(c.variableTimeout)
	defer timer.Stop()
	select {
	case resolved := <-f:
		lc.values[key] = resolved
		return resolved, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s.%s after %s", domain.ErrVariableTimeout, name, key, c.variableTimeout)
	}
}

// HasContext reports whether the named context is live.
func (c *ContextStore) HasContext(name string) bool {
	_, ok := c.contexts[name]
	return ok
}

// LifespanCount returns the remaining lifespan of a context, 0 when absent.
func (c *ContextStore) LifespanCount(name string) int {
	if lc, ok := c.contexts[name]; ok {
		return lc.lifespan
	}
	return 0
}

// RemoveContext evicts a context immediately.
func (c *ContextStore) RemoveContext(name string) {
	delete(c.contexts, name)
}

// Names returns the sorted names of the live contexts.
func (c *ContextStore) Names() []string {
	return slices.Sorted(maps.Keys(c.contexts))
}

// DecrementLifespanCounts consumes one turn of every live context and evicts
// those reaching zero. Recognizers call it once per attempt, before writing the
// attempt's own contexts.
func (c *ContextStore) DecrementLifespanCounts() {
	for name, lc := range c.contexts {
		lc.lifespan--
		if lc.lifespan <= 0 {
			delete(c.contexts, name)
		}
	}
}

// All returns a copy of every live context's variables, keyed by context name.
func (c *ContextStore) All() map[string]map[string]any {
	out := make(map[string]map[string]any, len(c.contexts))
	for name, lc := range c.contexts {
		out[name] = maps.Clone(lc.values)
	}
	return out
}

var templateVar = regexp.MustCompile(`\{\$([^.{}\s]+)\.([^{}\s]+)\}`)

// FillContextValues replaces every {$context.variable} in s with the live value.
// Missing values are replaced with an empty string.
func (c *ContextStore) FillContextValues(s string) (string, error) {
	var firstErr error
	out := templateVar.ReplaceAllStringFunc(s, func(m string) string {
		parts := templateVar.FindStringSubmatch(m)
		v, err := c.GetContextValue(parts[1], parts[2])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return ""
		}
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
	return out, firstErr
}

// Snapshot returns the persistable form of the store. Unresolved deferred values are skipped.
func (c *ContextStore) Snapshot() map[string]domain.ContextSnapshot {
	out := make(map[string]domain.ContextSnapshot, len(c.contexts))
	for name, lc := range c.contexts {
		values := make(map[string]any, len(lc.values))
		for k, v := range lc.values {
			if _, deferred := v.(domain.Future); deferred {
				continue
			}
			values[k] = v
		}
		out[name] = domain.ContextSnapshot{Lifespan: lc.lifespan, Values: values}
	}
	return out
}

// Restore replaces the store content with a snapshot. Entries with a non-positive lifespan are dropped.
func (c *ContextStore) Restore(snap map[string]domain.ContextSnapshot) {
	c.contexts = make(map[string]*liveContext, len(snap))
	for name, cs := range snap {
		if cs.Lifespan <= 0 {
			continue
		}
		values := maps.Clone(cs.Values)
		if values == nil {
			values = make(map[string]any)
		}
		c.contexts[name] = &liveContext{lifespan: cs.Lifespan, values: values}
	}
}
