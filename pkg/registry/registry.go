package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/action"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
)

// Handler defines the signature for an action implementation.
// It receives the session the action runs for and the resolved call arguments.
type Handler func(ctx context.Context, sess *session.Session, args []any) (any, error)

// Platform is an action.Platform that declares its own actions.
type Platform interface {
	action.Platform
	Actions() map[string]Handler
}

type entry struct {
	platform action.Platform
	handlers map[string]Handler
	disabled map[string]bool
}

// Registry manages the platforms and the actions they provide.
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]*entry
	order     []string
	logger    *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		platforms: make(map[string]*entry),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterPlatform adds a platform and every action it declares.
// Registering a platform with the same name replaces the previous one.
func (r *Registry) RegisterPlatform(p Platform) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("%w: platform has no name", domain.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.ensureLocked(p)
	maps.Copy(e.handlers, p.Actions())
	return nil
}

// Register adds a single action to a platform, registering the platform if needed.
// If an action with the same name exists, it is overwritten.
func (r *Registry) Register(p action.Platform, name string, fn Handler) error {
	if p == nil || p.Name() == "" || name == "" || fn == nil {
		return fmt.Errorf("%w: platform, action name and handler are required", domain.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(p).handlers[name] = fn
	return nil
}

func (r *Registry) ensureLocked(p action.Platform) *entry {
	e, ok := r.platforms[p.Name()]
	if !ok {
		e = &entry{handlers: make(map[string]Handler), disabled: make(map[string]bool)}
		r.platforms[p.Name()] = e
		r.order = append(r.order, p.Name())
	}
	e.platform = p
	return e
}

// Platform returns a registered platform.
func (r *Registry) Platform(name string) (action.Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.platforms[name]
	if !ok {
		return nil, false
	}
	return e.platform, true
}

// Platforms returns the registered platform names in registration order.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Actions returns the enabled actions of a platform, sorted.
func (r *Registry) Actions(platform string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.platforms[platform]
	if !ok {
		return nil
	}
	var names []string
	for name := range e.handlers {
		if !e.disabled[name] {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Has reports whether the call targets a registered and enabled action.
func (r *Registry) Has(call domain.ActionCall) bool {
	_, _, err := r.lookup(call)
	return err == nil
}

func (r *Registry) lookup(call domain.ActionCall) (action.Platform, Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.platforms[call.Platform]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrPlatformNotFound, call.Platform)
	}
	fn, ok := e.handlers[call.Action]
	if !ok || e.disabled[call.Action] {
		return nil, nil, fmt.Errorf("%w: %s.%s", domain.ErrActionNotFound, call.Platform, call.Action)
	}
	return e.platform, fn, nil
}

// Create binds the called action to a session with already-resolved arguments.
func (r *Registry) Create(call domain.ActionCall, sess *session.Session, args []any) (*action.Action, error) {
	p, fn, err := r.lookup(call)
	if err != nil {
		return nil, err
	}
	return action.New(p, sess, call.Action, func(ctx context.Context) (any, error) {
		return fn(ctx, sess, args)
	})
}

// Enable re-enables a disabled action.
func (r *Registry) Enable(platform, name string) error {
	return r.setDisabled(platform, name, false)
}

// Disable hides an action from Create without unregistering it.
func (r *Registry) Disable(platform, name string) error {
	return r.setDisabled(platform, name, true)
}

func (r *Registry) setDisabled(platform, name string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.platforms[platform]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPlatformNotFound, platform)
	}
	if _, ok := e.handlers[name]; !ok {
		return fmt.Errorf("%w: %s.%s", domain.ErrActionNotFound, platform, name)
	}
	e.disabled[name] = disabled
	return nil
}

// DisableAll disables every action of a platform.
func (r *Registry) DisableAll(platform string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.platforms[platform]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPlatformNotFound, platform)
	}
	for name := range e.handlers {
		e.disabled[name] = true
	}
	return nil
}

// Shutdown shuts every platform down in reverse registration order.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	order := slices.Clone(r.order)
	r.mu.RUnlock()

	var errs []error
	for _, name := range slices.Backward(order) {
		p, _ := r.Platform(name)
		if err := p.Shutdown(ctx); err != nil {
			r.logger.Error("Platform shutdown failed", "platform", name, "err", err)
			errs = append(errs, fmt.Errorf("platform '%s': %w", name, err))
		}
	}
	return errors.Join(errs...)
}
